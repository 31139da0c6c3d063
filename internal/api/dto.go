package api

import "time"

// createConnectionRequest is POST /connections' body.
type createConnectionRequest struct {
	Platform    string `json:"platform" validate:"required,oneof=slack google microsoft jira chatgpt claude gemini"`
	DisplayName string `json:"displayName" validate:"required"`
}

type createConnectionResponse struct {
	AuthorizationURL string `json:"authorizationUrl"`
	State            string `json:"state"`
}

type connectionResponse struct {
	ID               string     `json:"id"`
	OrganizationID   string     `json:"organizationId"`
	Platform         string     `json:"platform"`
	DisplayName      string     `json:"displayName"`
	Status           string     `json:"status"`
	LastSyncAt       *time.Time `json:"lastSyncAt,omitempty"`
	LastErrorMessage string     `json:"lastErrorMessage,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

type discoverResponse struct {
	JobID string `json:"jobId"`
}

type automationSummary struct {
	ID                string    `json:"id"`
	ConnectionID      string    `json:"connectionId"`
	Name              string    `json:"name"`
	AutomationType    string    `json:"automationType"`
	Status            string    `json:"status"`
	OverallRisk       string    `json:"overallRisk,omitempty"`
	RiskScore         int       `json:"riskScore,omitempty"`
	FirstDiscoveredAt time.Time `json:"firstDiscoveredAt"`
	LastSeenAt        time.Time `json:"lastSeenAt"`
}

type automationListResponse struct {
	Automations []automationSummary `json:"automations"`
	Limit       int                 `json:"limit"`
	Offset      int                 `json:"offset"`
}

type automationDetailResponse struct {
	automationSummary
	Description          string                 `json:"description"`
	TriggerType          string                 `json:"triggerType"`
	RequestedPermissions []string               `json:"requestedPermissions"`
	DataAccessPatterns   []string               `json:"dataAccessPatterns"`
	DetectionMetadata    map[string]interface{} `json:"detectionMetadata"`
	LatestRiskAssessment *riskAssessmentDTO      `json:"latestRiskAssessment,omitempty"`
}

type riskAssessmentDTO struct {
	OverallRisk string    `json:"overallRisk"`
	RiskScore   int       `json:"riskScore"`
	AssessedAt  time.Time `json:"assessedAt"`
}

type createFeedbackRequest struct {
	AutomationID string `json:"automationId" validate:"required"`
	UserID       string `json:"userId" validate:"required"`
	UserEmail    string `json:"userEmail" validate:"required,email"`
	FeedbackType string `json:"feedbackType" validate:"required,oneof=correct_detection false_positive false_negative incorrect_classification incorrect_risk_score incorrect_ai_provider"`
	Sentiment    string `json:"sentiment" validate:"omitempty,oneof=positive negative neutral"`
	Comment      string `json:"comment"`
}

type feedbackResponse struct {
	ID           string `json:"id"`
	AutomationID string `json:"automationId"`
	Status       string `json:"status"`
}
