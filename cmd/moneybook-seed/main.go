// Command moneybook-seed fills the configured store with fake transactions
// for local development.
package main

import (
	"context"
	"flag"
	"os"

	"moneybook/internal/cli"
	"moneybook/internal/config"
	"moneybook/internal/core"
	"moneybook/internal/log"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/shopspring/decimal"
)

func main() {
	count := flag.Int("count", 50, "number of transactions to create")
	owners := flag.Int64("owners", 3, "spread transactions over owner ids 1..n")
	seed := flag.Int64("seed", 0, "random seed, 0 for a random one")
	flag.Parse()

	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
	cfg := cli.LoadAndValidateConfig(logger, (*config.Config).ValidateStore)

	if *count < 1 || *owners < 1 {
		logger.Error("count and owners must be positive", "count", *count, "owners", *owners)
		os.Exit(2)
	}

	ctx := context.Background()
	store, cleanup := cli.OpenStore(ctx, logger, cfg)
	defer cleanup()

	faker := gofakeit.New(*seed)
	created := 0
	for i := 0; i < *count; i++ {
		tx := fakeTransaction(faker, *owners)
		if _, err := store.CreateTransaction(ctx, tx); err != nil {
			logger.Error("Failed to create transaction", log.FieldError, err, "created", created)
			os.Exit(1)
		}
		created++
	}

	logger.Info("Seeded transactions", "count", created, "owners", *owners, "data_backend", cfg.DataBackend)
}

func fakeTransaction(faker *gofakeit.Faker, owners int64) core.Transaction {
	txType := core.Expense
	if faker.Bool() {
		txType = core.Income
	}
	tx := core.Transaction{
		OwnerID: int64(faker.IntRange(1, int(owners))),
		Name:    faker.Word(),
		Amount:  decimal.NewFromInt(int64(faker.IntRange(100000, 1000000))),
		Type:    txType,
	}
	if faker.Bool() {
		tx.Description = faker.Sentence(8)
	}
	return tx
}
