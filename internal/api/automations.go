package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/shadowatlas/discovery-core/internal/multitenancy"
	"github.com/shadowatlas/discovery-core/internal/repository"
	"github.com/shadowatlas/discovery-core/pkg/apierrors"
)

func (s *Server) handleListAutomations(w http.ResponseWriter, r *http.Request) {
	organizationID, err := multitenancy.OrganizationID(r.Context())
	if err != nil {
		writeError(w, "automation", apierrors.Unauthorized(err.Error()))
		return
	}

	q := r.URL.Query()
	filter := repository.AutomationFilter{
		ConnectionID: q.Get("connectionId"),
		Platform:     q.Get("platform"),
		RiskLevel:    q.Get("riskLevel"),
		Search:       q.Get("search"),
		Limit:        atoiDefault(q.Get("limit"), 50),
		Offset:       atoiDefault(q.Get("offset"), 0),
	}

	automations, err := s.repo.ListAutomations(r.Context(), organizationID, filter)
	if err != nil {
		writeError(w, "automation", err)
		return
	}

	resp := automationListResponse{
		Automations: make([]automationSummary, 0, len(automations)),
		Limit:       filter.Limit,
		Offset:      filter.Offset,
	}
	for _, a := range automations {
		resp.Automations = append(resp.Automations, toAutomationSummary(&a, nil))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetAutomation(w http.ResponseWriter, r *http.Request) {
	organizationID, err := multitenancy.OrganizationID(r.Context())
	if err != nil {
		writeError(w, "automation", apierrors.Unauthorized(err.Error()))
		return
	}
	automationID := mux.Vars(r)["id"]
	ctx := r.Context()

	automation, err := s.repo.GetAutomation(ctx, organizationID, automationID)
	if err != nil {
		writeError(w, "automation", err)
		return
	}

	latest, err := s.repo.LatestRiskAssessment(ctx, organizationID, automationID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		writeError(w, "automation", err)
		return
	}

	resp := automationDetailResponse{
		automationSummary:    toAutomationSummary(automation, latest),
		Description:          automation.Description,
		TriggerType:          automation.TriggerType,
		RequestedPermissions: automation.RequestedPermissions.Data,
		DataAccessPatterns:   automation.DataAccessPatterns.Data,
		DetectionMetadata: map[string]interface{}{
			"isAiPlatform":    automation.DetectionMetadata.Data.IsAIPlatform,
			"aiProvider":      automation.DetectionMetadata.Data.AIProvider,
			"detectionMethod": automation.DetectionMetadata.Data.DetectionMethod,
			"confidence":      automation.DetectionMetadata.Data.Confidence,
		},
	}
	if latest != nil {
		resp.LatestRiskAssessment = &riskAssessmentDTO{
			OverallRisk: string(latest.OverallRisk),
			RiskScore:   latest.RiskScore,
			AssessedAt:  latest.AssessedAt,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func toAutomationSummary(a *repository.DiscoveredAutomation, latest *repository.RiskAssessmentRecord) automationSummary {
	s := automationSummary{
		ID:                a.ID,
		ConnectionID:       a.ConnectionID,
		Name:               a.Name,
		AutomationType:     a.AutomationType,
		Status:             a.Status,
		FirstDiscoveredAt:  a.FirstDiscoveredAt,
		LastSeenAt:         a.LastSeenAt,
	}
	if latest != nil {
		s.OverallRisk = string(latest.OverallRisk)
		s.RiskScore = latest.RiskScore
	}
	return s
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
