package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/rooksgc/rooksgc-dev-server/internal/auth"
	"github.com/rooksgc/rooksgc-dev-server/internal/config"
)

func main() {
	userID := flag.Int64("user", 0, "User id to issue the token for")
	email := flag.String("email", "", "Email claim")
	verify := flag.String("verify", "", "Validate a token instead of issuing one")
	flag.Parse()

	cfg := config.Load()
	a := auth.NewAuthenticator(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)

	if *verify != "" {
		claims, err := a.ValidateToken(*verify)
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			os.Exit(1)
		}
		fmt.Printf("user:    %s\n", claims.Subject)
		fmt.Printf("email:   %s\n", claims.Email)
		fmt.Printf("expires: %s\n", claims.ExpiresAt.Time)
		return
	}

	if *userID <= 0 {
		fmt.Fprintln(os.Stderr, "Usage: token -user <id> [-email <email>]")
		fmt.Fprintln(os.Stderr, "       token -verify <token>")
		fmt.Fprintln(os.Stderr, "  Uses JWT_SECRET, JWT_ISSUER and JWT_TTL from the environment")
		os.Exit(1)
	}

	token, err := a.GenerateToken(*userID, *email)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
