// Command hashpw reads a password from the terminal and prints its bcrypt
// digest, for seeding accounts by hand.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"golang.org/x/term"

	"github.com/alexivashchenko/auth-service/internal/server/password"
)

func main() {
	cost := flag.Int("cost", password.DefaultCost, "bcrypt cost")
	flag.Parse()

	fmt.Fprint(os.Stderr, "Password: ")
	pw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		log.Fatalf("read password: %v", err)
	}

	hash, err := password.Hash(string(pw), *cost)
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}

	fmt.Println(hash)
}
