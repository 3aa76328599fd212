// Package main clears a stuck dirty flag in schema_migrations. golang-migrate
// sets dirty=true while a migration runs and clears it on completion; a crash
// or timeout in between leaves the flag set, and every later server start then
// refuses with "Dirty database version". Run this after verifying by hand that
// the half-applied migration was rolled back or finished.
package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"

	_ "github.com/lib/pq"
)

func migrationState(db *sql.DB) (version int, dirty bool, err error) {
	err = db.QueryRow("SELECT version, dirty FROM schema_migrations LIMIT 1").Scan(&version, &dirty)
	return version, dirty, err
}

func main() {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		password := os.Getenv("DATABASE_PASSWORD")
		if password == "" {
			password = "postgres"
		}
		dsn = fmt.Sprintf("host=localhost port=5432 user=registry password=%s dbname=ticket_registry sslmode=disable", password)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	version, dirty, err := migrationState(db)
	if err != nil {
		log.Fatalf("Failed to read migration state: %v", err)
	}
	log.Printf("Migration state: version=%d, dirty=%v", version, dirty)

	if !dirty {
		log.Println("Nothing to fix, migration state is clean")
		return
	}

	if _, err := db.Exec("UPDATE schema_migrations SET dirty = false"); err != nil {
		log.Fatalf("Failed to clear dirty flag: %v", err)
	}

	version, dirty, err = migrationState(db)
	if err != nil {
		log.Fatalf("Failed to re-read migration state: %v", err)
	}
	log.Printf("Cleared dirty flag: version=%d, dirty=%v", version, dirty)
}
