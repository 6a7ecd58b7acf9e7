// Command moneybook-token issues a personal API token for a user and prints
// the plaintext once. Only its hash is stored.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"moneybook/internal/auth"
	"moneybook/internal/cli"
	"moneybook/internal/config"
	"moneybook/internal/core"
	"moneybook/internal/log"
)

func main() {
	userID := flag.Int64("user", 0, "owner id the token authenticates as")
	name := flag.String("name", "cli", "label for the token")
	expires := flag.Duration("expires", 0, "lifetime of the token, 0 for no expiry")
	flag.Parse()

	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT")).WithComponent(log.ComponentAuth)

	if *userID <= 0 {
		fmt.Fprintln(os.Stderr, "usage: moneybook-token -user <id> [-name label] [-expires 720h]")
		os.Exit(2)
	}
	if *expires < 0 {
		fmt.Fprintln(os.Stderr, "-expires must not be negative")
		os.Exit(2)
	}

	cfg := cli.LoadAndValidateConfig(logger, (*config.Config).ValidateStore)
	if cfg.DataBackend == "memory" {
		logger.Error("Tokens issued against the memory store are lost on exit", "data_backend", cfg.DataBackend)
		os.Exit(1)
	}

	ctx := context.Background()
	store, cleanup := cli.OpenStore(ctx, logger, cfg)
	defer cleanup()

	plaintext, hash, err := auth.IssueToken()
	if err != nil {
		logger.Error("Failed to generate token", log.FieldError, err)
		os.Exit(1)
	}

	token := core.AccessToken{UserID: *userID, Name: *name, TokenHash: hash}
	if *expires > 0 {
		token.ExpiresAt = time.Now().Add(*expires).UTC()
	}
	saved, err := store.CreateToken(ctx, token)
	if err != nil {
		logger.Error("Failed to store token", log.FieldError, err, log.FieldOwnerID, *userID)
		os.Exit(1)
	}

	logger.Info("Issued API token", "token_id", saved.ID, log.FieldOwnerID, saved.UserID, "name", saved.Name)
	fmt.Println(plaintext)
}
