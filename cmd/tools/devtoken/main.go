// Command devtoken mints a bearer token for local testing against the API,
// signed with the JWT settings from the environment.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/noah-isme/backend-dealer/internal/auth"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	user := flag.String("user", "dev-rep", "subject (sales rep id)")
	store := flag.String("store", "", "dealership store id")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	flag.Parse()

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		log.Fatal("JWT_SECRET is not set")
	}
	verifier, err := auth.NewVerifier(auth.Config{
		Secret:   secret,
		Issuer:   os.Getenv("JWT_ISSUER"),
		Audience: os.Getenv("JWT_AUDIENCE"),
	})
	if err != nil {
		log.Fatalf("init verifier: %v", err)
	}
	token, err := verifier.Sign(auth.Identity{UserID: *user, StoreID: *store}, *ttl)
	if err != nil {
		log.Fatalf("sign token: %v", err)
	}
	fmt.Println(token)
}
