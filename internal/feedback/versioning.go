package feedback

import (
	"fmt"
	"sync"
	"time"

	"github.com/shadowatlas/discovery-core/internal/detection"
)

// ConfigVersion is one versioned DetectorConfiguration, carrying the
// provenance of why it was proposed (spec.md §3: "each update produces
// a new row; the RL loop reads the active version and proposes the
// next").
type ConfigVersion struct {
	Version        int
	OrganizationID string
	Config         detection.DetectorConfiguration
	CreatedAt      time.Time
	ProposedBy     string // "system:feedback-loop" or a user id
	Reason         string
	Active         bool
}

// ConfigVersionStore keeps an ordered, per-organization history of
// DetectorConfiguration versions, with exactly one active version at a
// time. Grounded on internal/catalog/policy_versioning.go's
// PolicyVersionStore: push-activates-deactivate-rest, rollback by
// version number, diff between any two versions.
type ConfigVersionStore struct {
	mu       sync.RWMutex
	versions map[string][]*ConfigVersion // organizationId -> ordered versions
	active   map[string]int              // organizationId -> active version number
}

// NewConfigVersionStore returns an empty store.
func NewConfigVersionStore() *ConfigVersionStore {
	return &ConfigVersionStore{
		versions: make(map[string][]*ConfigVersion),
		active:   make(map[string]int),
	}
}

// Push adds a new configuration version for organizationID and makes it
// active.
func (s *ConfigVersionStore) Push(organizationID string, cfg detection.DetectorConfiguration, proposedBy, reason string) *ConfigVersion {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, v := range s.versions[organizationID] {
		v.Active = false
	}

	nextVersion := len(s.versions[organizationID]) + 1
	cfg.Version = nextVersion
	cv := &ConfigVersion{
		Version:        nextVersion,
		OrganizationID: organizationID,
		Config:         cfg,
		CreatedAt:      time.Now(),
		ProposedBy:     proposedBy,
		Reason:         reason,
		Active:         true,
	}
	s.versions[organizationID] = append(s.versions[organizationID], cv)
	s.active[organizationID] = nextVersion
	return cv
}

// Active returns the organization's currently active configuration
// version, or nil if none has ever been pushed.
func (s *ConfigVersionStore) Active(organizationID string) *ConfigVersion {
	s.mu.RLock()
	defer s.mu.RUnlock()

	activeVer, ok := s.active[organizationID]
	if !ok {
		return nil
	}
	versions := s.versions[organizationID]
	if activeVer < 1 || activeVer > len(versions) {
		return nil
	}
	return versions[activeVer-1]
}

// Rollback reactivates a previous version.
func (s *ConfigVersionStore) Rollback(organizationID string, targetVersion int) (*ConfigVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	versions, ok := s.versions[organizationID]
	if !ok || len(versions) == 0 {
		return nil, fmt.Errorf("feedback: no configuration versions for organization %s", organizationID)
	}
	if targetVersion < 1 || targetVersion > len(versions) {
		return nil, fmt.Errorf("feedback: invalid version %d (range 1-%d)", targetVersion, len(versions))
	}

	for _, v := range versions {
		v.Active = false
	}
	target := versions[targetVersion-1]
	target.Active = true
	s.active[organizationID] = targetVersion
	return target, nil
}

// History returns all versions for organizationID, oldest first.
func (s *ConfigVersionStore) History(organizationID string) []*ConfigVersion {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.versions[organizationID]
}

// BehavioralDetectorCode is the detector_code persisted for the single
// bundled velocity/batch/off-hours DetectorConfiguration this loop
// tunes; there is one active version per organization, not one per
// individual signal.
const BehavioralDetectorCode = "behavioral"

// ProposeConfiguration widens the behavioral detector's thresholds in
// response to a sustained precision drop: a falling precision means too
// many flagged automations turn out not to be true positives, so the
// next version requires more evidence (higher event counts, wider
// batch cardinality) before it flags one, trading recall for
// precision rather than the reverse.
func ProposeConfiguration(current detection.DetectorConfiguration, ev DegradationEvent) detection.DetectorConfiguration {
	const wideningFactor = 1.25
	next := current
	next.VelocityThreshold = int(float64(current.VelocityThreshold) * wideningFactor)
	next.BatchThreshold = int(float64(current.BatchThreshold) * wideningFactor)
	return next
}
