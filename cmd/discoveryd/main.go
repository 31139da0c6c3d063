// Command discoveryd runs the discovery platform's API server: the HTTP
// facade, the repository/vault/connector wiring behind it, and (when
// Redis is reachable) the job orchestrator queues a worker process drains.
// Grounded on cmd/api/main.go's config-then-wire-then-serve shape.
package main

import (
	"context"
	"encoding/hex"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/cloudtasks/apiv2"
	_ "github.com/lib/pq"

	"github.com/shadowatlas/discovery-core/internal/api"
	"github.com/shadowatlas/discovery-core/internal/config"
	"github.com/shadowatlas/discovery-core/internal/connector"
	"github.com/shadowatlas/discovery-core/internal/connector/chatgpt"
	"github.com/shadowatlas/discovery-core/internal/connector/claude"
	"github.com/shadowatlas/discovery-core/internal/connector/gemini"
	"github.com/shadowatlas/discovery-core/internal/connector/google"
	"github.com/shadowatlas/discovery-core/internal/connector/jira"
	"github.com/shadowatlas/discovery-core/internal/connector/microsoft"
	"github.com/shadowatlas/discovery-core/internal/connector/slack"
	"github.com/shadowatlas/discovery-core/internal/events"
	"github.com/shadowatlas/discovery-core/internal/infra"
	"github.com/shadowatlas/discovery-core/internal/middleware"
	"github.com/shadowatlas/discovery-core/internal/multitenancy"
	"github.com/shadowatlas/discovery-core/internal/orchestrator"
	"github.com/shadowatlas/discovery-core/internal/repository"
	"github.com/shadowatlas/discovery-core/internal/risk"
	"github.com/shadowatlas/discovery-core/internal/telemetry"
	"github.com/shadowatlas/discovery-core/internal/vault"
)

func main() {
	cfg := config.Get()
	telemetry.Init(cfg.Server.Env)
	metrics := telemetry.New()

	repo, err := repository.NewPostgresRepository(cfg.Database.PostgresURL, telemetry.NewLogger("repository"))
	if err != nil {
		log.Fatalf("discoveryd: open postgres: %v", err)
	}

	orgStore := multitenancy.NewPostgresStore(repo.DB())
	if err := orgStore.Migrate(context.Background()); err != nil {
		log.Fatalf("discoveryd: migrate api keys: %v", err)
	}
	orgManager := multitenancy.NewOrganizationManager(orgStore)

	v, err := buildVault(cfg.Vault)
	if err != nil {
		log.Fatalf("discoveryd: build vault: %v", err)
	}

	oauthConfigs := connector.BuildOAuthConfigs(cfg.Connectors)
	registry := connector.NewRegistry()
	registry.Register(slack.New())
	registry.Register(chatgpt.New())
	registry.Register(claude.New())
	registry.Register(google.New(*oauthConfigs[connector.PlatformGoogle]))
	registry.Register(microsoft.New(*oauthConfigs[connector.PlatformMicrosoft]))
	registry.Register(gemini.New(*oauthConfigs[connector.PlatformGemini]))
	registry.Register(jira.New(*oauthConfigs[connector.PlatformJira], "", ""))

	var bus events.Bus
	var redisAdapter *infra.GoRedisAdapter
	if cfg.PubSub.Enabled {
		pubsubBus, err := events.NewPubSubBus(cfg.PubSub.ProjectID, cfg.PubSub.TopicID)
		if err != nil {
			slog.Warn("discoveryd: pub/sub topic unavailable, falling back to redis/local event bus", "error", err)
		} else {
			pubsubBus.SetMetrics(metrics)
			bus = pubsubBus
		}
	}
	if bus == nil && cfg.Database.RedisAddr != "" {
		adapter, err := infra.NewGoRedisAdapter(cfg.Database.RedisAddr, cfg.Database.RedisPassword, cfg.Database.RedisDB)
		if err != nil {
			slog.Warn("discoveryd: redis unreachable, falling back to in-process event bus", "error", err)
		} else {
			redisAdapter = adapter
			redisBus := events.NewRedisBus(adapter, "discovery:events:", nil)
			redisBus.SetMetrics(metrics)
			bus = redisBus
		}
	}
	if bus == nil {
		local := events.NewLocalBus(nil)
		local.SetMetrics(metrics)
		bus = local
	}
	if redisAdapter != nil {
		defer redisAdapter.Close()
	}

	var discoveryQueue *orchestrator.Queue
	if redisAdapter != nil {
		store := orchestrator.NewRedisStore(redisAdapter, "discovery:jobs:", 30*time.Second)
		queueLogger := telemetry.NewLogger("orchestrator")
		backend := buildDiscoveryBackend(cfg.Orchestrator, queueLogger)
		discoveryQueue = orchestrator.NewQueue(orchestrator.QueueDiscovery, backend, store, queueLogger, cfg.Orchestrator.DiscoveryConcurrency, metrics)
	} else {
		slog.Warn("discoveryd: no redis configured, discovery jobs run without durable lease tracking")
	}

	rateLimiter := middleware.NewRateLimiter(middleware.RateLimitConfig{MaxCallsPerMinute: 120})

	server := api.NewServer(api.Deps{
		Repo:        repo,
		Connectors:  registry,
		Discovery:   discoveryQueue,
		Vault:       v,
		Hub:         events.NewHub(bus, nil),
		Bus:         bus,
		OrgManager:  orgManager,
		RateLimiter: rateLimiter,
		States:      api.NewMemoryOAuthStateStore(),
		OAuthConfig: oauthConfigs,
		RiskWeights: risk.DefaultWeights(),
		Logger:      telemetry.NewLogger("discoveryd"),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := ":" + cfg.Server.Port
	readTimeout := time.Duration(cfg.Server.ReadTimeoutSec) * time.Second
	writeTimeout := time.Duration(cfg.Server.WriteTimeoutSec) * time.Second
	idleTimeout := time.Duration(cfg.Server.IdleTimeoutSec) * time.Second
	if idleTimeout == 0 {
		idleTimeout = 60 * time.Second
	}

	slog.Info("discoveryd starting", "addr", addr)
	if err := server.Serve(ctx, addr, readTimeout, writeTimeout, idleTimeout); err != nil && err != http.ErrServerClosed {
		log.Fatalf("discoveryd: serve: %v", err)
	}
	slog.Info("discoveryd stopped")
}

// buildDiscoveryBackend prefers Cloud Tasks when the operator has enabled
// it and a client can be built, falling back to the in-process backend
// otherwise rather than failing startup over a missing GCP credential.
func buildDiscoveryBackend(cfg config.OrchestratorConfig, logger *log.Logger) orchestrator.Backend {
	if !cfg.UseCloudTasks {
		return orchestrator.NewMemoryBackend(256)
	}
	client, err := cloudtasks.NewClient(context.Background())
	if err != nil {
		slog.Warn("discoveryd: cloud tasks client unavailable, falling back to in-process backend", "error", err)
		return orchestrator.NewMemoryBackend(256)
	}
	return orchestrator.NewCloudTasksBackend(client, cfg.ProjectID, cfg.LocationID, cfg.DiscoveryQueueID, "", logger)
}

func buildVault(cfg config.VaultConfig) (*vault.Vault, error) {
	keys := map[int][]byte{}
	if cfg.MasterKeyHex != "" {
		key, err := hex.DecodeString(cfg.MasterKeyHex)
		if err != nil {
			return nil, err
		}
		keys[cfg.MasterKeyVersion] = key
	}
	if cfg.PreviousKeyHex != "" {
		key, err := hex.DecodeString(cfg.PreviousKeyHex)
		if err != nil {
			return nil, err
		}
		keys[cfg.PreviousKeyVersion] = key
	}
	return vault.New(keys, cfg.MasterKeyVersion)
}

