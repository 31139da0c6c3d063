// Package config loads discoveryd configuration.
//
// Generalized from the teacher's internal/config/config.go: YAML file plus
// environment overrides, a process-wide singleton obtained via Get(), and a
// Manager (manager.go) that layers per-organization overrides on top of the
// global config. Files are read once; nothing re-reads them afterwards, and
// runtime changes go through Manager.SetOverride.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	Vault        VaultConfig        `yaml:"vault"`
	Connectors   ConnectorsConfig   `yaml:"connectors"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Detection    DetectionConfig    `yaml:"detection"`
	Risk         RiskConfig         `yaml:"risk"`
	Feedback     FeedbackConfig     `yaml:"feedback"`
	EventBus     EventBusConfig     `yaml:"event_bus"`
	PubSub       PubSubConfig       `yaml:"pubsub"`
	CloudTasks   CloudTasksConfig   `yaml:"cloud_tasks"`
}

type ServerConfig struct {
	Port             string   `yaml:"port"`
	Env              string   `yaml:"env"`
	ReadTimeoutSec   int      `yaml:"read_timeout_sec"`
	WriteTimeoutSec  int      `yaml:"write_timeout_sec"`
	IdleTimeoutSec   int      `yaml:"idle_timeout_sec"`
	ShutdownTimeout  int      `yaml:"shutdown_timeout_sec"`
	CORSAllowOrigins []string `yaml:"cors_allow_origins"`
}

type DatabaseConfig struct {
	PostgresURL     string `yaml:"postgres_url"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime_sec"`
	RedisAddr       string `yaml:"redis_addr"`
	RedisPassword   string `yaml:"redis_password"`
	RedisDB         int    `yaml:"redis_db"`
}

// VaultConfig for the Crypto & Vault component.
type VaultConfig struct {
	MasterKeyHex        string `yaml:"master_key_hex"`
	MasterKeyVersion    int    `yaml:"master_key_version"`
	PreviousKeyHex      string `yaml:"previous_key_hex"`
	PreviousKeyVersion  int    `yaml:"previous_key_version"`
	RefreshBufferSec    int    `yaml:"refresh_buffer_sec"`
}

// PlatformOAuthConfig holds OAuth client credentials for one platform.
type PlatformOAuthConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURL  string `yaml:"redirect_url"`
}

type ConnectorsConfig struct {
	Slack                 PlatformOAuthConfig `yaml:"slack"`
	Google                PlatformOAuthConfig `yaml:"google"`
	Microsoft             PlatformOAuthConfig `yaml:"microsoft"`
	Jira                  PlatformOAuthConfig `yaml:"jira"`
	ChatGPT               PlatformOAuthConfig `yaml:"chatgpt"`
	Claude                PlatformOAuthConfig `yaml:"claude"`
	Gemini                PlatformOAuthConfig `yaml:"gemini"`
	ClaudeExportMaxRangeDays int              `yaml:"claude_export_max_range_days"`
	DefaultSyncCadenceHours  int              `yaml:"default_sync_cadence_hours"`
}

type OrchestratorConfig struct {
	ProjectID              string `yaml:"project_id"`
	LocationID             string `yaml:"location_id"`
	DiscoveryQueueID       string `yaml:"discovery_queue_id"`
	RiskQueueID            string `yaml:"risk_queue_id"`
	NotificationQueueID    string `yaml:"notification_queue_id"`
	DiscoveryConcurrency   int    `yaml:"discovery_concurrency"`
	RiskConcurrency        int    `yaml:"risk_concurrency"`
	NotificationConcurrency int   `yaml:"notification_concurrency"`
	StalledIntervalSec     int    `yaml:"stalled_interval_sec"`
	MaxStalledCount        int    `yaml:"max_stalled_count"`
	DiscoveryTimeoutMin    int    `yaml:"discovery_timeout_min"`
	UseCloudTasks          bool   `yaml:"use_cloud_tasks"`
}

type DetectionConfig struct {
	VelocityThresholdPerMin int     `yaml:"velocity_threshold_per_min"`
	BatchSizeThreshold      int     `yaml:"batch_size_threshold"`
	BatchWindowSec          int     `yaml:"batch_window_sec"`
	BusinessHoursStart      int     `yaml:"business_hours_start"`
	BusinessHoursEnd        int     `yaml:"business_hours_end"`
	StalenessWindowHours    int     `yaml:"staleness_window_hours"`
	CorrelationWindowMin    int     `yaml:"correlation_window_min"`
	ConfidenceCap           float64 `yaml:"confidence_cap"`
}

type RiskConfig struct {
	BaselineAIScore   int `yaml:"baseline_ai_score"`
	BaseScore         int `yaml:"base_score"`
	PerFactorWeight   int `yaml:"per_factor_weight"`
}

type FeedbackConfig struct {
	RollingWindowDays   int     `yaml:"rolling_window_days"`
	PrecisionDropAlert  float64 `yaml:"precision_drop_alert"`
	DegradationWindows  int     `yaml:"degradation_windows"`
	MLBatchMaxSize      int     `yaml:"ml_batch_max_size"`
}

type EventBusConfig struct {
	BufferSize          int `yaml:"buffer_size"`
	CoalesceWindowMs    int `yaml:"coalesce_window_ms"`
}

type PubSubConfig struct {
	ProjectID string `yaml:"project_id"`
	TopicID   string `yaml:"topic_id"`
	Enabled   bool   `yaml:"enabled"`
}

type CloudTasksConfig struct {
	ProjectID  string `yaml:"project_id"`
	LocationID string `yaml:"location_id"`
	Enabled    bool   `yaml:"enabled"`
}

var (
	instance *Config
	once     sync.Once
)

// Get returns the process-wide singleton config instance, loaded from
// CONFIG_PATH (default "config.yaml") with environment overrides applied.
func Get() *Config {
	once.Do(func() {
		cfg, err := LoadConfig(getEnv("CONFIG_PATH", "config.yaml"))
		if err != nil {
			slog.Warn("config: failed to load config file, using defaults", "error", err)
		}
		if cfg == nil {
			cfg = &Config{}
		}
		cfg.applyEnvOverrides()
		cfg.applyDefaults()
		instance = cfg
	})
	return instance
}

// LoadConfig loads config from a YAML file.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnvOverrides() {
	c.Server.Port = getEnv("PORT", c.Server.Port)
	c.Server.Env = getEnv("DISCOVERY_ENV", c.Server.Env)

	c.Database.PostgresURL = getEnv("DATABASE_URL", c.Database.PostgresURL)
	c.Database.RedisAddr = getEnv("REDIS_ADDR", c.Database.RedisAddr)
	c.Database.RedisPassword = getEnv("REDIS_PASSWORD", c.Database.RedisPassword)

	c.Vault.MasterKeyHex = getEnv("VAULT_MASTER_KEY_HEX", c.Vault.MasterKeyHex)
	c.Vault.PreviousKeyHex = getEnv("VAULT_PREVIOUS_KEY_HEX", c.Vault.PreviousKeyHex)

	c.Connectors.Slack.ClientID = getEnv("SLACK_CLIENT_ID", c.Connectors.Slack.ClientID)
	c.Connectors.Slack.ClientSecret = getEnv("SLACK_CLIENT_SECRET", c.Connectors.Slack.ClientSecret)
	c.Connectors.Google.ClientID = getEnv("GOOGLE_CLIENT_ID", c.Connectors.Google.ClientID)
	c.Connectors.Google.ClientSecret = getEnv("GOOGLE_CLIENT_SECRET", c.Connectors.Google.ClientSecret)
	c.Connectors.Microsoft.ClientID = getEnv("MICROSOFT_CLIENT_ID", c.Connectors.Microsoft.ClientID)
	c.Connectors.Microsoft.ClientSecret = getEnv("MICROSOFT_CLIENT_SECRET", c.Connectors.Microsoft.ClientSecret)
	c.Connectors.Jira.ClientID = getEnv("JIRA_CLIENT_ID", c.Connectors.Jira.ClientID)
	c.Connectors.Jira.ClientSecret = getEnv("JIRA_CLIENT_SECRET", c.Connectors.Jira.ClientSecret)
	c.Connectors.ChatGPT.ClientID = getEnv("CHATGPT_CLIENT_ID", c.Connectors.ChatGPT.ClientID)
	c.Connectors.Claude.ClientID = getEnv("CLAUDE_API_KEY", c.Connectors.Claude.ClientID)
	c.Connectors.Gemini.ClientID = getEnv("GEMINI_CLIENT_ID", c.Connectors.Gemini.ClientID)

	c.Orchestrator.ProjectID = getEnv("CLOUDTASKS_PROJECT_ID", c.Orchestrator.ProjectID)
	c.Orchestrator.UseCloudTasks = getEnvBool("USE_CLOUD_TASKS", c.Orchestrator.UseCloudTasks)
	c.PubSub.ProjectID = getEnv("PUBSUB_PROJECT_ID", c.PubSub.ProjectID)
	c.PubSub.Enabled = getEnvBool("PUBSUB_ENABLED", c.PubSub.Enabled)
	c.CloudTasks.Enabled = getEnvBool("CLOUD_TASKS_ENABLED", c.CloudTasks.Enabled)

	if origins := getEnv("CORS_ALLOW_ORIGINS", ""); origins != "" {
		c.Server.CORSAllowOrigins = splitCSV(origins)
	}

	if v := getEnvInt("SERVER_READ_TIMEOUT_SEC", 0); v > 0 {
		c.Server.ReadTimeoutSec = v
	}
	if v := getEnvInt("SERVER_WRITE_TIMEOUT_SEC", 0); v > 0 {
		c.Server.WriteTimeoutSec = v
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Server.Env == "" {
		c.Server.Env = "development"
	}
	if c.Server.ReadTimeoutSec == 0 {
		c.Server.ReadTimeoutSec = 15
	}
	if c.Server.WriteTimeoutSec == 0 {
		c.Server.WriteTimeoutSec = 15
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 30
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 20
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.Vault.RefreshBufferSec == 0 {
		c.Vault.RefreshBufferSec = 300
	}
	if c.Vault.MasterKeyVersion == 0 {
		c.Vault.MasterKeyVersion = 1
	}
	if c.Connectors.ClaudeExportMaxRangeDays == 0 {
		c.Connectors.ClaudeExportMaxRangeDays = 180
	}
	if c.Connectors.DefaultSyncCadenceHours == 0 {
		c.Connectors.DefaultSyncCadenceHours = 24
	}
	if c.Orchestrator.DiscoveryConcurrency == 0 {
		c.Orchestrator.DiscoveryConcurrency = 10
	}
	if c.Orchestrator.RiskConcurrency == 0 {
		c.Orchestrator.RiskConcurrency = 10
	}
	if c.Orchestrator.NotificationConcurrency == 0 {
		c.Orchestrator.NotificationConcurrency = 5
	}
	if c.Orchestrator.StalledIntervalSec == 0 {
		c.Orchestrator.StalledIntervalSec = 30
	}
	if c.Orchestrator.MaxStalledCount == 0 {
		c.Orchestrator.MaxStalledCount = 3
	}
	if c.Orchestrator.DiscoveryTimeoutMin == 0 {
		c.Orchestrator.DiscoveryTimeoutMin = 30
	}
	if c.Detection.VelocityThresholdPerMin == 0 {
		c.Detection.VelocityThresholdPerMin = 20
	}
	if c.Detection.BatchSizeThreshold == 0 {
		c.Detection.BatchSizeThreshold = 50
	}
	if c.Detection.BatchWindowSec == 0 {
		c.Detection.BatchWindowSec = 30
	}
	if c.Detection.BusinessHoursEnd == 0 {
		c.Detection.BusinessHoursStart = 9
		c.Detection.BusinessHoursEnd = 18
	}
	if c.Detection.StalenessWindowHours == 0 {
		c.Detection.StalenessWindowHours = 14 * 24
	}
	if c.Detection.CorrelationWindowMin == 0 {
		c.Detection.CorrelationWindowMin = 15
	}
	if c.Detection.ConfidenceCap == 0 {
		c.Detection.ConfidenceCap = 0.98
	}
	if c.Risk.BaselineAIScore == 0 {
		c.Risk.BaselineAIScore = 85
	}
	if c.Risk.BaseScore == 0 {
		c.Risk.BaseScore = 30
	}
	if c.Risk.PerFactorWeight == 0 {
		c.Risk.PerFactorWeight = 15
	}
	if c.Feedback.RollingWindowDays == 0 {
		c.Feedback.RollingWindowDays = 30
	}
	if c.Feedback.PrecisionDropAlert == 0 {
		c.Feedback.PrecisionDropAlert = 0.15
	}
	if c.Feedback.DegradationWindows == 0 {
		c.Feedback.DegradationWindows = 3
	}
	if c.Feedback.MLBatchMaxSize == 0 {
		c.Feedback.MLBatchMaxSize = 100
	}
	if c.EventBus.BufferSize == 0 {
		c.EventBus.BufferSize = 256
	}
	if c.EventBus.CoalesceWindowMs == 0 {
		c.EventBus.CoalesceWindowMs = 500
	}
}

func (c *Config) IsProduction() bool { return c.Server.Env == "production" }

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return val == "true" || val == "1"
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func splitCSV(s string) []string {
	parts := make([]string, 0)
	for _, p := range strings.Split(s, ",") {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
