// Command preflight is a pre-flight diagnostic for a discoveryd
// deployment: it exercises the same stores main() wires (Postgres,
// Redis, the credential vault) and reports which are reachable before
// an operator points traffic at the process. Grounded on the teacher's
// own component-checklist diagnostic, generalized from mocked
// component checks to real dials against this module's stores.
package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"time"

	_ "github.com/lib/pq"

	"github.com/shadowatlas/discovery-core/internal/config"
	"github.com/shadowatlas/discovery-core/internal/infra"
	"github.com/shadowatlas/discovery-core/internal/repository"
	"github.com/shadowatlas/discovery-core/internal/vault"
)

type component struct {
	name string
	test func(cfg *config.Config) error
}

func main() {
	cfg := config.Get()

	components := []component{
		{"Postgres (discovery store)", checkPostgres},
		{"Redis (job leases / events)", checkRedis},
		{"Credential vault (master key)", checkVault},
	}

	fmt.Println("discoveryd pre-flight diagnostic")
	fmt.Println("--------------------------------")

	failed := false
	for _, c := range components {
		fmt.Printf("checking %-32s ", c.name+"...")
		if err := c.test(cfg); err != nil {
			failed = true
			fmt.Println("FAIL")
			fmt.Printf("  >> %v\n", err)
			continue
		}
		fmt.Println("OK")
	}

	fmt.Println("--------------------------------")
	if failed {
		fmt.Println("status: one or more dependencies unreachable")
		os.Exit(1)
	}
	fmt.Println("status: ready")
}

func checkPostgres(cfg *config.Config) error {
	repo, err := repository.NewPostgresRepository(cfg.Database.PostgresURL, log.New(os.Stderr, "", 0))
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return repo.DB().PingContext(ctx)
}

func checkRedis(cfg *config.Config) error {
	if cfg.Database.RedisAddr == "" {
		return fmt.Errorf("REDIS_ADDR not configured, discoveryd will fall back to in-process bus/queue")
	}
	adapter, err := infra.NewGoRedisAdapter(cfg.Database.RedisAddr, cfg.Database.RedisPassword, cfg.Database.RedisDB)
	if err != nil {
		return err
	}
	return adapter.Close()
}

func checkVault(cfg *config.Config) error {
	if cfg.Vault.MasterKeyHex == "" {
		return fmt.Errorf("VAULT_MASTER_KEY_HEX not configured")
	}
	key, err := hex.DecodeString(cfg.Vault.MasterKeyHex)
	if err != nil {
		return fmt.Errorf("decode master key: %w", err)
	}
	_, err = vault.New(map[int][]byte{cfg.Vault.MasterKeyVersion: key}, cfg.Vault.MasterKeyVersion)
	return err
}
