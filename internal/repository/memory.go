package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shadowatlas/discovery-core/internal/feedback"
)

// MemoryRepository is a Postgres-shaped in-memory fake used by unit
// tests so they don't need a live database. It enforces the same
// organization-scoping and optimistic-concurrency rules as
// PostgresRepository, just over plain maps instead of SQL.
type MemoryRepository struct {
	mu sync.Mutex

	connections map[string]PlatformConnection // id -> row
	credentials map[string]EncryptedCredential // connectionID -> row
	runs        map[string]DiscoveryRun        // id -> row
	automations map[string]DiscoveredAutomation
	risks       []RiskAssessmentRecord
	feedback    map[string]FeedbackRecord
	detectorCfg []DetectorConfigurationRecord
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		connections: make(map[string]PlatformConnection),
		credentials: make(map[string]EncryptedCredential),
		runs:        make(map[string]DiscoveryRun),
		automations: make(map[string]DiscoveredAutomation),
		feedback:    make(map[string]FeedbackRecord),
	}
}

func (m *MemoryRepository) CreateConnection(_ context.Context, organizationID string, c *PlatformConnection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.OrganizationID = organizationID
	c.CreatedAt, c.UpdatedAt = time.Now(), time.Now()
	m.connections[c.ID] = *c
	return nil
}

func (m *MemoryRepository) GetConnection(_ context.Context, organizationID, connectionID string) (*PlatformConnection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.connections[connectionID]
	if !ok || c.OrganizationID != organizationID {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (m *MemoryRepository) ListConnections(_ context.Context, organizationID string) ([]PlatformConnection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []PlatformConnection
	for _, c := range m.connections {
		if c.OrganizationID == organizationID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryRepository) UpdateConnectionStatus(_ context.Context, organizationID, connectionID, status, lastErrorMessage string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.connections[connectionID]
	if !ok || c.OrganizationID != organizationID {
		return ErrNotFound
	}
	c.Status = status
	c.LastErrorMessage = lastErrorMessage
	c.UpdatedAt = time.Now()
	m.connections[connectionID] = c
	return nil
}

func (m *MemoryRepository) UpdateConnectionLastSync(_ context.Context, organizationID, connectionID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.connections[connectionID]
	if !ok || c.OrganizationID != organizationID {
		return ErrNotFound
	}
	c.LastSyncAt = &at
	c.UpdatedAt = time.Now()
	m.connections[connectionID] = c
	return nil
}

func (m *MemoryRepository) DisconnectConnection(_ context.Context, organizationID, connectionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.connections[connectionID]
	if !ok || c.OrganizationID != organizationID {
		return ErrNotFound
	}
	delete(m.connections, connectionID)
	delete(m.credentials, connectionID)
	for id, a := range m.automations {
		if a.ConnectionID == connectionID {
			delete(m.automations, id)
		}
	}
	return nil
}

func (m *MemoryRepository) PutCredential(_ context.Context, organizationID string, cred *EncryptedCredential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cred.UpdatedAt = time.Now()
	if cred.CreatedAt.IsZero() {
		cred.CreatedAt = cred.UpdatedAt
	}
	m.credentials[cred.ConnectionID] = *cred
	_ = organizationID
	return nil
}

func (m *MemoryRepository) GetCredential(_ context.Context, organizationID, connectionID string) (*EncryptedCredential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conn, ok := m.connections[connectionID]
	if !ok || conn.OrganizationID != organizationID {
		return nil, ErrNotFound
	}
	cred, ok := m.credentials[connectionID]
	if !ok {
		return nil, ErrNotFound
	}
	return &cred, nil
}

func (m *MemoryRepository) CreateDiscoveryRun(_ context.Context, organizationID string, run *DiscoveryRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run.OrganizationID = organizationID
	m.runs[run.ID] = *run
	return nil
}

func (m *MemoryRepository) UpdateDiscoveryRunStatus(_ context.Context, organizationID, runID, status string, stats DiscoveryRunStats) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[runID]
	if !ok || run.OrganizationID != organizationID {
		return ErrNotFound
	}
	run.Status = status
	run.Stats = JSONB[DiscoveryRunStats]{Data: stats}
	if status == "completed" || status == "failed" || status == "cancelled" {
		now := time.Now()
		run.CompletedAt = &now
	}
	m.runs[runID] = run
	return nil
}

func (m *MemoryRepository) GetDiscoveryRun(_ context.Context, organizationID, runID string) (*DiscoveryRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[runID]
	if !ok || run.OrganizationID != organizationID {
		return nil, ErrNotFound
	}
	return &run, nil
}

func (m *MemoryRepository) UpsertAutomation(_ context.Context, organizationID string, a *DiscoveredAutomation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.OrganizationID = organizationID

	for id, existing := range m.automations {
		if existing.OrganizationID == organizationID && existing.ConnectionID == a.ConnectionID && existing.ExternalID == a.ExternalID {
			merged := *a
			merged.ID = id
			merged.FirstDiscoveredAt = existing.FirstDiscoveredAt
			if existing.LastSeenAt.After(merged.LastSeenAt) {
				merged.LastSeenAt = existing.LastSeenAt
			}
			merged.IsActive = true
			merged.CreatedAt = existing.CreatedAt
			merged.UpdatedAt = time.Now()
			m.automations[id] = merged
			*a = merged
			return nil
		}
	}

	a.IsActive = true
	a.CreatedAt, a.UpdatedAt = time.Now(), time.Now()
	if a.FirstDiscoveredAt.IsZero() {
		a.FirstDiscoveredAt = a.LastSeenAt
	}
	m.automations[a.ID] = *a
	return nil
}

func (m *MemoryRepository) GetAutomation(_ context.Context, organizationID, automationID string) (*DiscoveredAutomation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.automations[automationID]
	if !ok || a.OrganizationID != organizationID {
		return nil, ErrNotFound
	}
	return &a, nil
}

func (m *MemoryRepository) ListAutomations(_ context.Context, organizationID string, filter AutomationFilter) ([]DiscoveredAutomation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []DiscoveredAutomation
	for _, a := range m.automations {
		if a.OrganizationID != organizationID || !a.IsActive {
			continue
		}
		if filter.ConnectionID != "" && a.ConnectionID != filter.ConnectionID {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastSeenAt.After(out[j].LastSeenAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *MemoryRepository) SoftDeleteAutomation(_ context.Context, organizationID, automationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.automations[automationID]
	if !ok || a.OrganizationID != organizationID {
		return ErrNotFound
	}
	a.IsActive = false
	a.UpdatedAt = time.Now()
	m.automations[automationID] = a
	return nil
}

func (m *MemoryRepository) PutRiskAssessment(_ context.Context, organizationID string, a *RiskAssessmentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.OrganizationID = organizationID
	m.risks = append(m.risks, *a)
	return nil
}

func (m *MemoryRepository) LatestRiskAssessment(_ context.Context, organizationID, automationID string) (*RiskAssessmentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *RiskAssessmentRecord
	for i := range m.risks {
		r := m.risks[i]
		if r.OrganizationID != organizationID || r.AutomationID != automationID {
			continue
		}
		if latest == nil || r.AssessedAt.After(latest.AssessedAt) {
			copied := r
			latest = &copied
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	return latest, nil
}

func (m *MemoryRepository) RiskAssessmentHistory(_ context.Context, organizationID, automationID string, limit int) ([]RiskAssessmentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []RiskAssessmentRecord
	for _, r := range m.risks {
		if r.OrganizationID == organizationID && r.AutomationID == automationID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AssessedAt.After(out[j].AssessedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryRepository) CreateFeedback(_ context.Context, organizationID string, f *FeedbackRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f.OrganizationID = organizationID
	f.CreatedAt, f.UpdatedAt = time.Now(), time.Now()
	m.feedback[f.ID] = *f
	return nil
}

func (m *MemoryRepository) GetFeedback(_ context.Context, organizationID, feedbackID string) (*FeedbackRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.feedback[feedbackID]
	if !ok || f.OrganizationID != organizationID {
		return nil, ErrNotFound
	}
	return &f, nil
}

func (m *MemoryRepository) ListFeedback(_ context.Context, organizationID string, since, until time.Time) ([]FeedbackRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []FeedbackRecord
	for _, f := range m.feedback {
		if f.OrganizationID != organizationID {
			continue
		}
		if f.CreatedAt.Before(since) || f.CreatedAt.After(until) {
			continue
		}
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryRepository) MLTrainingBatch(ctx context.Context, organizationID string, size int) ([]FeedbackRecord, error) {
	if size <= 0 || size > 100 {
		size = 100
	}
	out, err := m.ListFeedback(ctx, organizationID, time.Time{}, time.Now().Add(time.Hour))
	if err != nil {
		return nil, err
	}
	if len(out) > size {
		out = out[:size]
	}
	return out, nil
}

func (m *MemoryRepository) ClassifiedFeedback(_ context.Context, organizationID string, since, until time.Time) ([]feedback.ClassifiedFeedback, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []feedback.ClassifiedFeedback
	for _, f := range m.feedback {
		if f.OrganizationID != organizationID {
			continue
		}
		if f.CreatedAt.Before(since) || f.CreatedAt.After(until) {
			continue
		}
		wasFlagged, _ := f.MLMetadata.Data["wasFlagged"].(bool)
		out = append(out, feedback.ClassifiedFeedback{
			Feedback: feedback.Feedback{
				ID:                f.ID,
				OrganizationID:    f.OrganizationID,
				AutomationID:      f.AutomationID,
				UserID:            f.UserID,
				Verdict:           feedback.Verdict(f.FeedbackType),
				Reasoning:         f.Comment,
				DetectionSnapshot: f.MLMetadata.Data,
				CreatedAt:         f.CreatedAt,
			},
			WasFlagged: wasFlagged,
		})
	}
	return out, nil
}

func (m *MemoryRepository) OrganizationIDs(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := map[string]bool{}
	var out []string
	for _, f := range m.feedback {
		if !seen[f.OrganizationID] {
			seen[f.OrganizationID] = true
			out = append(out, f.OrganizationID)
		}
	}
	return out, nil
}

func (m *MemoryRepository) PutDetectorConfiguration(_ context.Context, organizationID string, rec *DetectorConfigurationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec.OrganizationID = organizationID
	rec.CreatedAt = time.Now()
	m.detectorCfg = append(m.detectorCfg, *rec)
	return nil
}

func (m *MemoryRepository) ActiveDetectorConfiguration(_ context.Context, organizationID, detectorCode string) (*DetectorConfigurationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *DetectorConfigurationRecord
	for i := range m.detectorCfg {
		r := m.detectorCfg[i]
		if r.OrganizationID != organizationID || r.DetectorCode != detectorCode || !r.Enabled {
			continue
		}
		if best == nil || r.Version > best.Version {
			copied := r
			best = &copied
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	return best, nil
}

func (m *MemoryRepository) Close() error { return nil }

var _ Repository = (*MemoryRepository)(nil)
