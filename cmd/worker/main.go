// Command worker drains the discovery, risk-assessment, and notification
// queues: it runs each platform's discovery pass, folds the result into a
// risk assessment, and pushes alerting notifications out over the event
// bus. Grounded on cmd/api/main.go's wiring shape, generalized from one
// HTTP process to one queue-draining process sharing the same stores.
package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/shadowatlas/discovery-core/internal/config"
	"github.com/shadowatlas/discovery-core/internal/connector"
	"github.com/shadowatlas/discovery-core/internal/connector/chatgpt"
	"github.com/shadowatlas/discovery-core/internal/connector/claude"
	"github.com/shadowatlas/discovery-core/internal/connector/gemini"
	"github.com/shadowatlas/discovery-core/internal/connector/google"
	"github.com/shadowatlas/discovery-core/internal/connector/jira"
	"github.com/shadowatlas/discovery-core/internal/connector/microsoft"
	"github.com/shadowatlas/discovery-core/internal/connector/slack"
	"github.com/shadowatlas/discovery-core/internal/detection"
	"github.com/shadowatlas/discovery-core/internal/events"
	"github.com/shadowatlas/discovery-core/internal/feedback"
	"github.com/shadowatlas/discovery-core/internal/infra"
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
		log.Fatalf("worker: open postgres: %v", err)
	}

	v, err := buildVault(cfg.Vault)
	if err != nil {
		log.Fatalf("worker: build vault: %v", err)
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

	if cfg.Database.RedisAddr == "" {
		log.Fatal("worker: REDIS_ADDR is required, job leases are not durable without it")
	}
	redisAdapter, err := infra.NewGoRedisAdapter(cfg.Database.RedisAddr, cfg.Database.RedisPassword, cfg.Database.RedisDB)
	if err != nil {
		log.Fatalf("worker: connect redis: %v", err)
	}
	defer redisAdapter.Close()

	bus := events.NewRedisBus(redisAdapter, "discovery:events:", nil)
	bus.SetMetrics(metrics)

	queueLogger := telemetry.NewLogger("orchestrator")
	store := orchestrator.NewRedisStore(redisAdapter, "discovery:jobs:", 30*time.Second)

	discoveryQueue := orchestrator.NewQueue(orchestrator.QueueDiscovery, orchestrator.NewMemoryBackend(256), store, queueLogger, cfg.Orchestrator.DiscoveryConcurrency, metrics)
	riskQueue := orchestrator.NewQueue(orchestrator.QueueRiskAssessment, orchestrator.NewMemoryBackend(256), store, queueLogger, cfg.Orchestrator.RiskConcurrency, metrics)
	notifyQueue := orchestrator.NewQueue(orchestrator.QueueNotifications, orchestrator.NewMemoryBackend(256), store, queueLogger, cfg.Orchestrator.NotificationConcurrency, metrics)

	w := &worker{
		repo:        repo,
		registry:    registry,
		vault:       v,
		bus:         bus,
		catalog:     detection.NewProviderCatalog(),
		riskWeight:  risk.DefaultWeights(),
		riskMetrics: risk.NewMetrics(),
		metrics:     metrics,
	}

	coordinator := orchestrator.NewCoordinator(discoveryQueue, riskQueue, notifyQueue)
	coordinator.StartDiscovery(w.runDiscovery)
	coordinator.StartRiskAssessment(w.runRiskAssessment)
	coordinator.StartNotifications(w.runNotification)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	degradationLogger := telemetry.NewLogger("feedback")
	degradationCfg := feedback.DegradationConfig{
		SweepInterval:      time.Duration(cfg.Feedback.RollingWindowDays) * 24 * time.Hour,
		PrecisionDropAlert: cfg.Feedback.PrecisionDropAlert,
		SustainedWindows:   cfg.Feedback.DegradationWindows,
	}
	configVersions := feedback.NewConfigVersionStore()
	detector := feedback.NewDegradationDetector(degradationCfg, degradationLogger, func(ev feedback.DegradationEvent) {
		notif, err := events.NewSystemNotification(ev.OrganizationID, events.SystemNotificationData{
			Level:   "warning",
			Title:   "detector precision degrading",
			Message: "feedback-derived precision has dropped and stayed down across consecutive rolling windows",
			Details: ev.Metric,
			At:      ev.At,
		})
		if err == nil {
			_ = w.bus.Publish(ctx, notif)
		}

		current := detection.DefaultDetectorConfiguration()
		if active, err := repo.ActiveDetectorConfiguration(ctx, ev.OrganizationID, feedback.BehavioralDetectorCode); err == nil {
			current = active.Thresholds.Data
		}
		next := feedback.ProposeConfiguration(current, ev)
		version := configVersions.Push(ev.OrganizationID, next, "system:feedback-loop",
			fmt.Sprintf("precision dropped %.2f -> %.2f over %d windows", ev.BaselineValue, ev.CurrentValue, ev.ConsecutiveDrops))

		rec := &repository.DetectorConfigurationRecord{
			ID:           fmt.Sprintf("%s-v%d", ev.OrganizationID, version.Version),
			Version:      version.Version,
			DetectorCode: feedback.BehavioralDetectorCode,
			Enabled:      true,
		}
		rec.Thresholds.Data = next
		if err := repo.PutDetectorConfiguration(ctx, ev.OrganizationID, rec); err != nil {
			degradationLogger.Printf("failed to persist proposed detector configuration for org %s: %v", ev.OrganizationID, err)
		}
	})
	aggregator := feedback.NewAggregator(repo, time.Duration(cfg.Feedback.RollingWindowDays)*24*time.Hour, detector, degradationLogger)
	go aggregator.RunPeriodically(ctx, degradationCfg.SweepInterval)

	slog.Info("worker started", "discoveryConcurrency", cfg.Orchestrator.DiscoveryConcurrency)
	<-ctx.Done()
	slog.Info("worker shutting down")
	coordinator.Shutdown()
}

type worker struct {
	repo        repository.Repository
	registry    *connector.Registry
	vault       *vault.Vault
	bus         events.Bus
	catalog     *detection.ProviderCatalog
	riskWeight  risk.Weights
	riskMetrics *risk.Metrics
	metrics     *telemetry.Metrics
}

// runDiscovery opens the connection's credential, pulls every automation
// the platform reports, and upserts each as a DiscoveredAutomation row.
// On success it records the discovered automation ids on the job's
// payload so Coordinator's chaining enqueues a risk-assessment job.
func (w *worker) runDiscovery(ctx context.Context, job *orchestrator.Job) error {
	conn, err := w.repo.GetConnection(ctx, job.OrganizationID, job.ConnectionID)
	if err != nil {
		return err
	}
	cred, err := w.openCredential(ctx, job.OrganizationID, job.ConnectionID)
	if err != nil {
		return err
	}
	adapter, ok := w.registry.Get(conn.Platform)
	if !ok {
		return errors.New("worker: no connector registered for platform " + string(conn.Platform))
	}

	seq, err := adapter.DiscoverAutomations(ctx, cred, "", connector.DiscoveryFilters{})
	if err != nil {
		return err
	}

	var ids []string
	found := 0
	for {
		raw, ok, err := seq.Next(ctx)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		normalized := detection.Normalize(w.catalog, raw, detectionMethodFor(conn.Platform))
		automation := &repository.DiscoveredAutomation{
			ID:                orchestrator.RepeatableJobID(job.OrganizationID, job.ConnectionID) + "-" + normalized.ExternalID,
			ConnectionID:      job.ConnectionID,
			DiscoveryRunID:    job.DiscoveryRunID,
			ExternalID:        normalized.ExternalID,
			Name:              normalized.Name,
			AutomationType:    "integration",
			Status:            "active",
			IsActive:          true,
			FirstDiscoveredAt: time.Now(),
			LastSeenAt:        time.Now(),
		}
		automation.RequestedPermissions.Data = normalized.Scopes
		automation.PlatformMetadata.Data = normalized.PlatformMetadata
		automation.DetectionMetadata.Data = normalized.Detection

		if err := w.repo.UpsertAutomation(ctx, job.OrganizationID, automation); err != nil {
			return err
		}
		ids = append(ids, automation.ID)
		found++
		if w.metrics != nil {
			w.metrics.AutomationsDiscovered.WithLabelValues(string(conn.Platform)).Inc()
			provider := normalized.Detection.AIProvider
			if provider == "" {
				provider = "unknown"
			}
			w.metrics.DetectionConfidence.WithLabelValues(provider).Observe(normalized.Detection.Confidence)
		}

		if ev, err := events.NewAutomationDiscovered(job.OrganizationID, events.AutomationDiscoveredData{
			AutomationID: automation.ID,
			Name:         automation.Name,
			Platform:     string(conn.Platform),
			RiskLevel:    string(risk.LevelLow),
			At:           time.Now(),
		}); err == nil {
			_ = w.bus.Publish(ctx, ev)
		}
	}

	if err := w.repo.UpdateDiscoveryRunStatus(ctx, job.OrganizationID, job.DiscoveryRunID, "completed", repository.DiscoveryRunStats{
		AutomationsFound: found,
	}); err != nil {
		return err
	}
	if err := w.repo.UpdateConnectionLastSync(ctx, job.OrganizationID, job.ConnectionID, time.Now()); err != nil {
		return err
	}

	job.Payload = map[string]any{"discoveredAutomationIds": ids}
	return nil
}

// detectionMethodFor reports how a platform's adapter actually surfaces
// its automations, so DetectionMetadata.DetectionMethod reflects the real
// discovery path instead of a single hardcoded value (spec.md §8 scenario
// 1 audit trail). Google/Gemini/ChatGPT/Claude enumerate via an OAuth
// connected-apps/tokens endpoint; Slack's app list is an installed-app
// directory; Microsoft's is Azure AD service principals; Jira's connect
// add-on listing only covers marketplace apps, not native Jira Automation
// rules, so those surface via audit log pattern matching instead.
func detectionMethodFor(platform connector.Platform) detection.DetectionMethod {
	switch platform {
	case connector.PlatformSlack:
		return detection.MethodAppDirectory
	case connector.PlatformMicrosoft:
		return detection.MethodServicePrincipal
	case connector.PlatformJira:
		return detection.MethodAuditLogPattern
	default:
		return detection.MethodOAuthTokensAPI
	}
}

// runRiskAssessment computes and persists a risk.Assessment for every
// automation id carried on the job's payload, flagging the job for a
// follow-on notification when any assessment lands at high or critical.
func (w *worker) runRiskAssessment(ctx context.Context, job *orchestrator.Job) error {
	ids, _ := job.Payload["automationIds"].([]string)
	alert := false

	for _, id := range ids {
		automation, err := w.repo.GetAutomation(ctx, job.OrganizationID, id)
		if err != nil {
			return err
		}
		assessment := risk.Compute(automation.DetectionMetadata.Data, w.riskWeight)

		record := &repository.RiskAssessmentRecord{
			ID:              id + "-" + time.Now().Format("20060102150405"),
			AutomationID:    id,
			OverallRisk:     assessment.OverallRisk,
			RiskScore:       assessment.RiskScore,
			AssessedAt:      time.Now(),
			AssessorVersion: "v1",
		}
		record.RiskFactors.Data = assessment.RiskFactors
		if err := w.repo.PutRiskAssessment(ctx, job.OrganizationID, record); err != nil {
			return err
		}
		if w.riskMetrics != nil {
			w.riskMetrics.Record(job.OrganizationID, id, assessment)
		}

		if assessment.OverallRisk == risk.LevelHigh || assessment.OverallRisk == risk.LevelCritical {
			alert = true
		}
	}

	job.Payload = map[string]any{
		"alertRequired": alert,
		"automationIds": ids,
	}
	return nil
}

// runNotification publishes a system notification for a risk-assessment
// run that flagged at least one high/critical automation.
func (w *worker) runNotification(ctx context.Context, job *orchestrator.Job) error {
	ids, _ := job.Payload["automationIds"].([]string)
	ev, err := events.NewSystemNotification(job.OrganizationID, events.SystemNotificationData{
		Level:   "warning",
		Title:   "high-risk automation detected",
		Message: "a connected platform reported a high or critical risk automation requiring review",
		Details: joinIDs(ids),
		At:      time.Now(),
	})
	if err != nil {
		return err
	}
	return w.bus.Publish(ctx, ev)
}

func (w *worker) openCredential(ctx context.Context, organizationID, connectionID string) (*vault.Credential, error) {
	enc, err := w.repo.GetCredential(ctx, organizationID, connectionID)
	if err != nil {
		return nil, err
	}
	sealed := &vault.Sealed{
		Ciphertext:    enc.CiphertextAccess,
		Nonce:         enc.Encryption.Data.Nonce,
		KeyVersion:    enc.Encryption.Data.KeyVersion,
		IntegrityHash: enc.Encryption.Data.IntegrityHash,
	}
	plaintext, err := w.vault.Open(sealed)
	if err != nil {
		return nil, err
	}
	return vault.UnmarshalFromOpen(vault.CredentialOAuth2, plaintext)
}

func joinIDs(ids []string) string {
	out := ""
	for i, id := range ids {
		if i > 0 {
			out += ", "
		}
		out += id
	}
	return out
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
