package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shadowatlas/discovery-core/internal/feedback"
)

func (r *PostgresRepository) CreateFeedback(ctx context.Context, organizationID string, f *FeedbackRecord) error {
	f.OrganizationID = organizationID
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO feedback (id, organization_id, automation_id, user_id, user_email, feedback_type,
		                       sentiment, comment, suggested_corrections, status, ml_metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now(), now())`,
		f.ID, organizationID, f.AutomationID, f.UserID, f.UserEmail, f.FeedbackType,
		f.Sentiment, f.Comment, mustJSON(f.SuggestedCorrections.Data), f.Status, mustJSON(f.MLMetadata.Data))
	if err != nil {
		return fmt.Errorf("repository: create feedback: %w", err)
	}
	return nil
}

// GetFeedback scopes strictly by organization_id so a row belonging to
// another tenant is indistinguishable from a missing one — callers at
// the API boundary turn ErrNotFound into a 404, never a 403.
func (r *PostgresRepository) GetFeedback(ctx context.Context, organizationID, feedbackID string) (*FeedbackRecord, error) {
	row := r.db.QueryRowContext(ctx, feedbackSelect+` WHERE organization_id = $1 AND id = $2`,
		organizationID, feedbackID)
	return scanFeedback(row)
}

func (r *PostgresRepository) ListFeedback(ctx context.Context, organizationID string, since, until time.Time) ([]FeedbackRecord, error) {
	rows, err := r.db.QueryContext(ctx, feedbackSelect+`
		WHERE organization_id = $1 AND created_at >= $2 AND created_at <= $3
		ORDER BY created_at DESC`,
		organizationID, since, until)
	if err != nil {
		return nil, fmt.Errorf("repository: list feedback: %w", err)
	}
	defer rows.Close()
	return scanFeedbackRows(rows)
}

// MLTrainingBatch caps the export at size (≤100 per the API contract);
// callers that pass a larger size are silently clamped rather than erroring.
func (r *PostgresRepository) MLTrainingBatch(ctx context.Context, organizationID string, size int) ([]FeedbackRecord, error) {
	if size <= 0 || size > 100 {
		size = 100
	}
	rows, err := r.db.QueryContext(ctx, feedbackSelect+`
		WHERE organization_id = $1
		ORDER BY created_at DESC LIMIT $2`,
		organizationID, size)
	if err != nil {
		return nil, fmt.Errorf("repository: ml training batch: %w", err)
	}
	defer rows.Close()
	return scanFeedbackRows(rows)
}

const feedbackSelect = `
	SELECT id, organization_id, automation_id, user_id, user_email, feedback_type, sentiment,
	       comment, suggested_corrections, status, ml_metadata, created_at, updated_at
	FROM feedback`

func scanFeedback(row rowScanner) (*FeedbackRecord, error) {
	var f FeedbackRecord
	err := row.Scan(&f.ID, &f.OrganizationID, &f.AutomationID, &f.UserID, &f.UserEmail, &f.FeedbackType,
		&f.Sentiment, &f.Comment, &f.SuggestedCorrections, &f.Status, &f.MLMetadata, &f.CreatedAt, &f.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("repository: scan feedback: %w", err)
	}
	return &f, nil
}

func scanFeedbackRows(rows *sql.Rows) ([]FeedbackRecord, error) {
	var out []FeedbackRecord
	for rows.Next() {
		f, err := scanFeedback(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *f)
	}
	return out, rows.Err()
}

// ClassifiedFeedback implements internal/feedback.FeedbackSource: it
// pairs each feedback row's verdict with whether the detection engine
// had flagged that automation as risky at the time, read back from the
// "wasFlagged" key handleCreateFeedback stamps into ml_metadata.
func (r *PostgresRepository) ClassifiedFeedback(ctx context.Context, organizationID string, since, until time.Time) ([]feedback.ClassifiedFeedback, error) {
	rows, err := r.db.QueryContext(ctx, feedbackSelect+`
		WHERE organization_id = $1 AND created_at >= $2 AND created_at <= $3
		ORDER BY created_at ASC`,
		organizationID, since, until)
	if err != nil {
		return nil, fmt.Errorf("repository: classified feedback: %w", err)
	}
	defer rows.Close()

	records, err := scanFeedbackRows(rows)
	if err != nil {
		return nil, err
	}

	out := make([]feedback.ClassifiedFeedback, 0, len(records))
	for _, rec := range records {
		wasFlagged, _ := rec.MLMetadata.Data["wasFlagged"].(bool)
		out = append(out, feedback.ClassifiedFeedback{
			Feedback: feedback.Feedback{
				ID:                rec.ID,
				OrganizationID:    rec.OrganizationID,
				AutomationID:      rec.AutomationID,
				UserID:            rec.UserID,
				Verdict:           feedback.Verdict(rec.FeedbackType),
				Reasoning:         rec.Comment,
				DetectionSnapshot: rec.MLMetadata.Data,
				CreatedAt:         rec.CreatedAt,
			},
			WasFlagged: wasFlagged,
		})
	}
	return out, nil
}

// OrganizationIDs lists every organization that has submitted at least
// one piece of feedback, so the Aggregator only runs its rolling window
// over tenants that actually have something to aggregate.
func (r *PostgresRepository) OrganizationIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT organization_id FROM feedback`)
	if err != nil {
		return nil, fmt.Errorf("repository: organization ids: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
