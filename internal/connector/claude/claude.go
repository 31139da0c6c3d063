// Package claude implements the export-and-poll adapter for Claude
// Enterprise: RequestExport/PollExport/DownloadExport, composed internally
// into the same GetAuditLogs lazy sequence other adapters expose directly
// (spec.md §4.1 "callers see no difference"). Claude's audit export API
// imposes a 180-day maximum range, validated before any network call.
package claude

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shadowatlas/discovery-core/internal/connector"
	"github.com/shadowatlas/discovery-core/internal/connector/platformrest"
	"github.com/shadowatlas/discovery-core/internal/vault"
)

const (
	apiBase          = "https://api.anthropic.com/v1/organizations"
	exportRequestURL = apiBase + "/audit_exports"
	maxExportRangeDays = 180
)

// ErrRangeTooLarge is returned when a caller requests an export spanning
// more than maxExportRangeDays.
var ErrRangeTooLarge = fmt.Errorf("claude: export range exceeds %d days", maxExportRangeDays)

// Adapter implements connector.Connector and connector.Exporter for Claude
// Enterprise. Claude access uses a long-lived organization API key, so
// RefreshCredentials is non-refreshable, same as chatgpt and slack.
type Adapter struct {
	guard    *connector.Guard
	pollWait time.Duration
}

// New returns a Claude adapter. pollWait controls how long PollExport waits
// between status checks when called in a blocking loop by GetAuditLogs;
// tests override it to avoid real sleeps.
func New() *Adapter {
	return &Adapter{
		guard:    connector.NewGuard(connector.PlatformClaude, 2, 5, nil),
		pollWait: 5 * time.Second,
	}
}

func (a *Adapter) Platform() connector.Platform { return connector.PlatformClaude }

func (a *Adapter) Authenticate(ctx context.Context, cred *vault.Credential) error {
	_, err := a.ValidateCredentials(ctx, cred)
	return err
}

func (a *Adapter) ValidateCredentials(ctx context.Context, cred *vault.Credential) (connector.ValidationResult, error) {
	client := platformrest.NewClient(ctx, connector.PlatformClaude, cred, a.guard)
	req, err := http.NewRequest(http.MethodGet, apiBase+"/me", nil)
	if err != nil {
		return connector.ValidationResult{}, err
	}
	resp, err := client.Do(ctx, req)
	if err != nil {
		return connector.ValidationResult{Valid: false}, nil
	}
	defer resp.Body.Close()
	return connector.ValidationResult{Valid: true}, nil
}

// DiscoverAutomations has no platform equivalent for Claude Enterprise
// (there is no concept of a "connected app" to enumerate, only audit
// events of API key / workspace usage); it returns an already-exhausted
// sequence.
func (a *Adapter) DiscoverAutomations(ctx context.Context, cred *vault.Credential, cursor string, filters connector.DiscoveryFilters) (connector.AutomationSequence, error) {
	return &emptyAutomations{}, nil
}

// validateExportRange enforces the 180-day maximum before any network
// call is made.
func validateExportRange(from, until time.Time) error {
	if until.Sub(from) > maxExportRangeDays*24*time.Hour {
		return ErrRangeTooLarge
	}
	return nil
}

func (a *Adapter) RequestExport(ctx context.Context, cred *vault.Credential, from, until time.Time) (string, error) {
	if err := validateExportRange(from, until); err != nil {
		return "", err
	}
	client := platformrest.NewClient(ctx, connector.PlatformClaude, cred, a.guard)

	body, _ := json.Marshal(map[string]string{
		"start_time": from.Format(time.RFC3339),
		"end_time":   until.Format(time.RFC3339),
	})
	req, err := http.NewRequest(http.MethodPost, exportRequestURL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(ctx, req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var created struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", &connector.InvariantViolation{Platform: connector.PlatformClaude, Detail: err.Error()}
	}
	return created.ID, nil
}

func (a *Adapter) PollExport(ctx context.Context, cred *vault.Credential, handle string) (connector.ExportStatus, error) {
	client := platformrest.NewClient(ctx, connector.PlatformClaude, cred, a.guard)
	req, err := http.NewRequest(http.MethodGet, fmt.Sprintf("%s/%s", exportRequestURL, handle), nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(ctx, req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var status struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return "", &connector.InvariantViolation{Platform: connector.PlatformClaude, Detail: err.Error()}
	}
	switch status.Status {
	case "pending", "queued":
		return connector.ExportPending, nil
	case "running", "processing":
		return connector.ExportRunning, nil
	case "completed":
		return connector.ExportComplete, nil
	default:
		return connector.ExportFailed, nil
	}
}

func (a *Adapter) DownloadExport(ctx context.Context, cred *vault.Credential, handle string) ([]byte, error) {
	client := platformrest.NewClient(ctx, connector.PlatformClaude, cred, a.guard)
	req, err := http.NewRequest(http.MethodGet, fmt.Sprintf("%s/%s/download", exportRequestURL, handle), nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return io.ReadAll(resp.Body)
}

// GetAuditLogs composes RequestExport/PollExport/DownloadExport into the
// same lazy-sequence surface live-query adapters expose directly. Callers
// see no difference between Claude and a live-query platform.
func (a *Adapter) GetAuditLogs(ctx context.Context, cred *vault.Credential, query connector.AuditQuery) (connector.AuditLogSequence, error) {
	from, until := query.Since, query.Until
	if until.IsZero() {
		until = time.Now()
	}
	handle, err := a.RequestExport(ctx, cred, from, until)
	if err != nil {
		return nil, err
	}

	for {
		status, err := a.PollExport(ctx, cred, handle)
		if err != nil {
			return nil, err
		}
		if status == connector.ExportComplete {
			break
		}
		if status == connector.ExportFailed {
			return nil, &connector.TransientPlatformError{Platform: connector.PlatformClaude, Detail: "export failed"}
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(a.pollWait):
		}
	}

	raw, err := a.DownloadExport(ctx, cred, handle)
	if err != nil {
		return nil, err
	}

	var events []struct {
		ID         string `json:"id"`
		ActorEmail string `json:"actor_email"`
		Action     string `json:"action"`
		OccurredAt string `json:"occurred_at"`
	}
	if err := json.Unmarshal(raw, &events); err != nil {
		return nil, &connector.InvariantViolation{Platform: connector.PlatformClaude, Detail: err.Error()}
	}

	normalized := make([]connector.NormalizedAuditEvent, 0, len(events))
	for _, e := range events {
		occurredAt, _ := time.Parse(time.RFC3339, e.OccurredAt)
		normalized = append(normalized, connector.NormalizedAuditEvent{
			ExternalID: e.ID,
			ActorEmail: e.ActorEmail,
			Action:     e.Action,
			OccurredAt: occurredAt,
		})
	}
	return &downloadedSequence{events: normalized}, nil
}

func (a *Adapter) RefreshCredentials(ctx context.Context, cred *vault.Credential) (*vault.Credential, error) {
	return nil, connector.ErrNotRefreshable
}

type downloadedSequence struct {
	events []connector.NormalizedAuditEvent
	pos    int
}

func (s *downloadedSequence) Next(ctx context.Context) (connector.NormalizedAuditEvent, bool, error) {
	if s.pos >= len(s.events) {
		return connector.NormalizedAuditEvent{}, false, nil
	}
	e := s.events[s.pos]
	s.pos++
	return e, true, nil
}

func (s *downloadedSequence) Cursor() string {
	return fmt.Sprintf("%d", s.pos)
}

type emptyAutomations struct{}

func (e *emptyAutomations) Next(ctx context.Context) (connector.RawAutomation, bool, error) {
	return connector.RawAutomation{}, false, nil
}

func (e *emptyAutomations) Cursor() string { return "" }
