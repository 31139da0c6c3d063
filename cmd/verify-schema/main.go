// Command verify-schema applies the embedded migration against the
// configured Postgres database and checks that every table the
// repository layer depends on exists and is reachable. Grounded on the
// teacher's own per-table Supabase verification tool, generalized from
// REST-client smoke inserts to information_schema checks against the
// relational schema this module actually migrates.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/shadowatlas/discovery-core/internal/config"
	"github.com/shadowatlas/discovery-core/internal/repository"
)

var expectedTables = []string{
	"api_keys",
	"connections",
	"credentials",
	"discovery_runs",
	"automations",
	"risk_assessments",
	"feedback",
	"detector_configurations",
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using environment variables")
	}

	cfg := config.Get()

	repo, err := repository.NewPostgresRepository(cfg.Database.PostgresURL, log.New(os.Stderr, "", 0))
	if err != nil {
		log.Fatalf("failed to open postgres: %v", err)
	}
	defer repo.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	fmt.Println("applying migration...")
	if err := repo.Migrate(ctx); err != nil {
		log.Fatalf("migration failed: %v", err)
	}

	fmt.Println()
	fmt.Println("table               status")
	fmt.Println("-------------------------------")

	failed := 0
	for _, table := range expectedTables {
		ok, err := tableExists(ctx, repo.DB(), table)
		switch {
		case err != nil:
			failed++
			fmt.Printf("%-20s ERROR (%v)\n", table, err)
		case !ok:
			failed++
			fmt.Printf("%-20s MISSING\n", table)
		default:
			fmt.Printf("%-20s OK\n", table)
		}
	}

	fmt.Println("-------------------------------")
	if failed > 0 {
		fmt.Printf("%d of %d tables failed verification\n", failed, len(expectedTables))
		os.Exit(1)
	}
	fmt.Printf("all %d tables verified\n", len(expectedTables))
}

func tableExists(ctx context.Context, db *sql.DB, table string) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx, `SELECT EXISTS (
		SELECT 1 FROM information_schema.tables
		WHERE table_schema = 'public' AND table_name = $1
	)`, table).Scan(&exists)
	return exists, err
}
