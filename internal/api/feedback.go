package api

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"

	"github.com/shadowatlas/discovery-core/internal/multitenancy"
	"github.com/shadowatlas/discovery-core/internal/repository"
	"github.com/shadowatlas/discovery-core/internal/risk"
	"github.com/shadowatlas/discovery-core/pkg/apierrors"
)

func (s *Server) handleCreateFeedback(w http.ResponseWriter, r *http.Request) {
	organizationID, err := multitenancy.OrganizationID(r.Context())
	if err != nil {
		writeError(w, "feedback", apierrors.Unauthorized(err.Error()))
		return
	}

	var req createFeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "feedback", apierrors.Validation(map[string]string{"body": "invalid json"}))
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, "feedback", err)
		return
	}

	ctx := r.Context()
	if _, err := s.repo.GetAutomation(ctx, organizationID, req.AutomationID); err != nil {
		writeError(w, "automation", err)
		return
	}

	// wasFlagged snapshots whether the detection engine had already
	// surfaced this automation as risky at feedback time, so the
	// rolling aggregation job can bucket the verdict into a TP/FP/FN/TN
	// confusion matrix without re-deriving it later from a value that
	// may have since changed.
	wasFlagged := false
	if assessment, err := s.repo.LatestRiskAssessment(ctx, organizationID, req.AutomationID); err == nil {
		wasFlagged = assessment.OverallRisk == risk.LevelHigh || assessment.OverallRisk == risk.LevelCritical
	}

	record := &repository.FeedbackRecord{
		ID:           newFeedbackID(),
		AutomationID: req.AutomationID,
		UserID:       req.UserID,
		UserEmail:    req.UserEmail,
		FeedbackType: req.FeedbackType,
		Sentiment:    req.Sentiment,
		Comment:      req.Comment,
		Status:       "pending",
	}
	record.MLMetadata.Data = map[string]interface{}{"wasFlagged": wasFlagged}
	if err := s.repo.CreateFeedback(ctx, organizationID, record); err != nil {
		writeError(w, "feedback", err)
		return
	}

	writeJSON(w, http.StatusCreated, feedbackResponse{
		ID:           record.ID,
		AutomationID: record.AutomationID,
		Status:       record.Status,
	})
}

func (s *Server) handleMLTrainingBatch(w http.ResponseWriter, r *http.Request) {
	organizationID, err := multitenancy.OrganizationID(r.Context())
	if err != nil {
		writeError(w, "feedback", apierrors.Unauthorized(err.Error()))
		return
	}

	size := atoiDefault(r.URL.Query().Get("size"), 100)
	batch, err := s.repo.MLTrainingBatch(r.Context(), organizationID, size)
	if err != nil {
		writeError(w, "feedback", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count": len(batch),
		"batch": batch,
	})
}

func newFeedbackID() string {
	buf := make([]byte, 12)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}
