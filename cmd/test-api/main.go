// Package main is a post-deployment smoke check. It hits the health endpoint
// and the public event listing and prints what came back, which answers "is
// the server up and serving its API" without curl or a test suite. Set
// REGISTRY_URL to point it at a non-local deployment.
package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
)

func check(base, path string) error {
	resp, err := http.Get(base + path)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("GET %s: reading body: %w", path, err)
	}

	fmt.Printf("GET %s -> %d\n%s\n\n", path, resp.StatusCode, string(body))
	return nil
}

func main() {
	base := os.Getenv("REGISTRY_URL")
	if base == "" {
		base = "http://localhost:8080"
	}

	failed := false
	for _, path := range []string{"/health", "/api/v1/events"} {
		if err := check(base, path); err != nil {
			fmt.Printf("Error: %v\n", err)
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
}
