// Package main seeds a usable API key into a local development database. It
// mints a key through the same code path the server uses and prints the raw
// key together with a ready-to-run SQL UPDATE for the dev admin account's key
// row. Development only; real keys come from the admin API with expiry and
// scopes attached.
package main

import (
	"fmt"
	"log"

	"github.com/ticket-registry/ticket-registry/internal/auth"
)

func main() {
	fullKey, hash, displayPrefix, err := auth.GenerateAPIKey("tkr")
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println("==========================================================")
	fmt.Println("API Key Generated")
	fmt.Println("==========================================================")
	fmt.Printf("\nFull Key: %s\n", fullKey)
	fmt.Printf("\nHash: %s\n", hash)
	fmt.Printf("\nDisplay Prefix: %s\n", displayPrefix)
	fmt.Println("\n==========================================================")
	fmt.Println("SQL Update:")
	fmt.Println("==========================================================")
	fmt.Printf(`
UPDATE api_keys
SET key_hash = '%s',
    prefix = '%s'
WHERE account_id = (SELECT id FROM accounts WHERE email = 'admin@dev.local');
`, hash, displayPrefix)
	fmt.Println("\n==========================================================")
	fmt.Printf("Authorization Header: Bearer %s\n", fullKey)
	fmt.Println("==========================================================")
}
