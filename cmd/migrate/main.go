// migrate applies the embedded Postgres schema; run with go run ./cmd/migrate -direction up.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/enterprise-hub/account-service/internal/infrastructure/db/postgres"
	"github.com/enterprise-hub/account-service/internal/pkg/config"
)

func main() {
	direction := flag.String("direction", "up", "Migration direction: up or down")
	flag.Parse()

	cfg := config.Load()
	if cfg.Postgres.URL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is not set")
		os.Exit(1)
	}

	if err := postgres.Migrate(cfg.Postgres.URL, postgres.Direction(*direction)); err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
}
