// Package main prints the bcrypt hash of an API key value. The registry never
// stores raw keys, only their hashes, so seeding or repairing an api_keys row
// by hand needs this tool. Pass the key as the first argument; without one it
// hashes a throwaway sample key.
package main

import (
	"fmt"
	"os"

	"golang.org/x/crypto/bcrypt"
)

func main() {
	key := "tkr_qHlTX4JvjK1yVUgRukLlgiwFQmFOiHdEhHYVJNfhNXc"
	if len(os.Args) > 1 {
		key = os.Args[1]
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		panic(err)
	}
	fmt.Println(string(hash))
}
