// Package main is a diagnostic tool for testing database connectivity and
// inspecting live registry data. It connects to the database, queries the
// events and tickets tables, and prints a summary to stdout. The binary exits
// with a non-zero code on any failure so it can be embedded in health checks
// or CI/CD pipeline steps to gate deployments on a reachable, populated
// database.
package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"

	_ "github.com/lib/pq"
)

func main() {
	dbPassword := os.Getenv("DATABASE_PASSWORD")
	if dbPassword == "" {
		dbPassword = "registry"
	}

	connStr := fmt.Sprintf("host=localhost port=5432 user=registry password=%s dbname=ticket_registry sslmode=disable", dbPassword)
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer db.Close()

	// Check events
	fmt.Println("=== EVENTS ===")
	rows, err := db.Query("SELECT address, organization_address, state, current_supply, max_supply FROM events")
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}
	defer rows.Close()

	for rows.Next() {
		var addr, org, state string
		var current, max int64
		if err := rows.Scan(&addr, &org, &state, &current, &max); err != nil {
			log.Printf("Warning: failed to scan event row: %v", err)
			continue
		}
		fmt.Printf("Event: %s (org: %s, state: %s, sold: %d/%d)\n", addr, org, state, current, max)
	}

	// Check tickets
	fmt.Println("\n=== TICKETS ===")
	rows2, err := db.Query("SELECT event_address, ticket_id, holder_address FROM tickets ORDER BY event_address, ticket_id")
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}
	defer rows2.Close()

	count := 0
	for rows2.Next() {
		var eventAddr, holder string
		var ticketID int64
		if err := rows2.Scan(&eventAddr, &ticketID, &holder); err != nil {
			log.Printf("Warning: failed to scan ticket row: %v", err)
			continue
		}
		fmt.Printf("Ticket: %s #%d held by %s\n", eventAddr, ticketID, holder)
		count++
	}

	if count == 0 {
		fmt.Println("No tickets found!")
	}
}
