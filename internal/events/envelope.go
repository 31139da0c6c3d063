package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Kind enumerates the message kinds carried on the bus. Unlike the
// teacher's free-form event.Type string, these are the only four kinds
// a discovery organization ever emits.
type Kind string

const (
	KindConnectionUpdate     Kind = "connection:update"
	KindDiscoveryProgress    Kind = "discovery:progress"
	KindAutomationDiscovered Kind = "automation:discovered"
	KindSystemNotification   Kind = "system:notification"
)

var validate = validator.New()

// CloudEvent is the CloudEvents 1.0 envelope for all discovery-core events.
type CloudEvent struct {
	SpecVersion    string                 `json:"specversion"`
	Type           Kind                   `json:"type"`
	Source         string                 `json:"source"`
	ID             string                 `json:"id"`
	Time           time.Time              `json:"time"`
	Subject        string                 `json:"subject,omitempty"`
	OrganizationID string                 `json:"organizationid,omitempty"`
	ConnectionID   string                 `json:"connectionid,omitempty"`
	Data           map[string]interface{} `json:"data"`
}

// ConnectionUpdateData is the payload for KindConnectionUpdate.
type ConnectionUpdateData struct {
	ConnectionID string    `json:"connectionId" validate:"required"`
	Status       string    `json:"status" validate:"required,oneof=pending active error expired disconnected"`
	Platform     string    `json:"platform" validate:"required"`
	At           time.Time `json:"at" validate:"required"`
	Error        string    `json:"error,omitempty"`
}

// DiscoveryProgressData is the payload for KindDiscoveryProgress.
type DiscoveryProgressData struct {
	ConnectionID string    `json:"connectionId" validate:"required"`
	Progress     int       `json:"progress" validate:"gte=0,lte=100"`
	Status       string    `json:"status" validate:"required"`
	ItemsFound   int       `json:"itemsFound" validate:"gte=0"`
	Stage        string    `json:"stage,omitempty"`
	At           time.Time `json:"at" validate:"required"`
}

// AutomationDiscoveredData is the payload for KindAutomationDiscovered.
type AutomationDiscoveredData struct {
	AutomationID string    `json:"automationId" validate:"required"`
	Name         string    `json:"name" validate:"required"`
	Platform     string    `json:"platform" validate:"required"`
	RiskLevel    string    `json:"riskLevel" validate:"required,oneof=low medium high critical"`
	At           time.Time `json:"at" validate:"required"`
	RiskScore    int       `json:"riskScore,omitempty"`
	Type         string    `json:"type,omitempty"`
}

// SystemNotificationData is the payload for KindSystemNotification.
type SystemNotificationData struct {
	Level   string    `json:"level" validate:"required,oneof=info warning error"`
	Message string    `json:"message" validate:"required"`
	At      time.Time `json:"at" validate:"required"`
	Title   string    `json:"title,omitempty"`
	Details string    `json:"details,omitempty"`
}

func newEvent(kind Kind, organizationID, connectionID, subject string, payload interface{}) (*CloudEvent, error) {
	if err := validate.Struct(payload); err != nil {
		return nil, fmt.Errorf("events: invalid %s payload: %w", kind, err)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("events: marshal %s payload: %w", kind, err)
	}
	var data map[string]interface{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("events: decode %s payload: %w", kind, err)
	}
	return &CloudEvent{
		SpecVersion:    "1.0",
		Type:           kind,
		Source:         "discovery-core",
		ID:             fmt.Sprintf("ce-%d", time.Now().UnixNano()),
		Time:           time.Now(),
		Subject:        subject,
		OrganizationID: organizationID,
		ConnectionID:   connectionID,
		Data:           data,
	}, nil
}

// NewConnectionUpdate builds and validates a connection:update event.
func NewConnectionUpdate(organizationID string, d ConnectionUpdateData) (*CloudEvent, error) {
	return newEvent(KindConnectionUpdate, organizationID, d.ConnectionID, d.ConnectionID, d)
}

// NewDiscoveryProgress builds and validates a discovery:progress event.
func NewDiscoveryProgress(organizationID string, d DiscoveryProgressData) (*CloudEvent, error) {
	return newEvent(KindDiscoveryProgress, organizationID, d.ConnectionID, d.ConnectionID, d)
}

// NewAutomationDiscovered builds and validates an automation:discovered event.
func NewAutomationDiscovered(organizationID string, d AutomationDiscoveredData) (*CloudEvent, error) {
	return newEvent(KindAutomationDiscovered, organizationID, "", d.AutomationID, d)
}

// NewSystemNotification builds and validates a system:notification event.
func NewSystemNotification(organizationID string, d SystemNotificationData) (*CloudEvent, error) {
	return newEvent(KindSystemNotification, organizationID, "", "", d)
}

// JSON serializes the event.
func (ce *CloudEvent) JSON() ([]byte, error) {
	return json.Marshal(ce)
}

// SSEFormat returns the event in Server-Sent Events format.
func (ce *CloudEvent) SSEFormat() ([]byte, error) {
	data, err := json.Marshal(ce)
	if err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf("event: %s\ndata: %s\nid: %s\n\n", ce.Type, data, ce.ID)), nil
}

// coalesceKey identifies the (connection, kind) bucket used for
// last-value-wins back-pressure coalescing.
func (ce *CloudEvent) coalesceKey() string {
	return string(ce.Type) + "|" + ce.ConnectionID
}

// coalesceable reports whether this event kind may be dropped in favor
// of a newer one for the same connection when a subscriber falls behind.
// automation:discovered is exempt and always queued.
func (ce *CloudEvent) coalesceable() bool {
	return ce.Type == KindDiscoveryProgress
}
