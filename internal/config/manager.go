package config

import (
	"os"
	"sync"

	"gopkg.in/yaml.v2"
)

// OrgOverrides holds per-organization overrides loaded from a separate YAML
// file, keyed by organizationId. Generalizes the teacher's TenantsConfig /
// Manager (internal/config/manager.go): most organizations run the global
// Detection/Risk thresholds unchanged, but DetectorConfiguration tuning or a
// negotiated risk-weight schedule for one customer should not require a
// redeploy of the global config.
type OrgOverrides struct {
	Organizations map[string]Config `yaml:"organizations"`
}

// Manager resolves the effective config for a given organization by layering
// its override (if any) on top of the global config.
type Manager struct {
	mu       sync.RWMutex
	global   *Config
	overrides map[string]Config
}

// NewManager loads the global config at globalPath and, if present, the
// per-organization override file at overridesPath. A missing overrides file
// is not an error -- it just means no organization has overrides yet.
func NewManager(globalPath, overridesPath string) (*Manager, error) {
	global, err := LoadConfig(globalPath)
	if err != nil {
		return nil, err
	}
	global.applyEnvOverrides()
	global.applyDefaults()

	f, err := os.Open(overridesPath)
	if err != nil {
		if os.IsNotExist(err) {
			return &Manager{global: global, overrides: make(map[string]Config)}, nil
		}
		return nil, err
	}
	defer f.Close()

	var oo OrgOverrides
	if err := yaml.NewDecoder(f).Decode(&oo); err != nil {
		return nil, err
	}
	return &Manager{global: global, overrides: oo.Organizations}, nil
}

// Get returns the effective config for organizationId: the global config
// with any non-zero fields from that organization's override applied on
// top. Only the Detection velocity/batch/staleness thresholds, the three
// Risk scores, Feedback.PrecisionDropAlert and
// Connectors.DefaultSyncCadenceHours are taken from an override; every other
// field always comes from the global config.
func (m *Manager) Get(organizationID string) *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	effective := *m.global

	override, ok := m.overrides[organizationID]
	if !ok {
		return &effective
	}

	if override.Detection.VelocityThresholdPerMin != 0 {
		effective.Detection.VelocityThresholdPerMin = override.Detection.VelocityThresholdPerMin
	}
	if override.Detection.BatchSizeThreshold != 0 {
		effective.Detection.BatchSizeThreshold = override.Detection.BatchSizeThreshold
	}
	if override.Detection.StalenessWindowHours != 0 {
		effective.Detection.StalenessWindowHours = override.Detection.StalenessWindowHours
	}
	if override.Risk.BaselineAIScore != 0 {
		effective.Risk.BaselineAIScore = override.Risk.BaselineAIScore
	}
	if override.Risk.BaseScore != 0 {
		effective.Risk.BaseScore = override.Risk.BaseScore
	}
	if override.Risk.PerFactorWeight != 0 {
		effective.Risk.PerFactorWeight = override.Risk.PerFactorWeight
	}
	if override.Feedback.PrecisionDropAlert != 0 {
		effective.Feedback.PrecisionDropAlert = override.Feedback.PrecisionDropAlert
	}
	if override.Connectors.DefaultSyncCadenceHours != 0 {
		effective.Connectors.DefaultSyncCadenceHours = override.Connectors.DefaultSyncCadenceHours
	}

	return &effective
}

// SetOverride installs or replaces the override for one organization at
// runtime, e.g. from an admin API call, without touching the overrides file.
func (m *Manager) SetOverride(organizationID string, override Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overrides[organizationID] = override
}
