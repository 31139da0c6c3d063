package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shadowatlas/discovery-core/internal/risk"
)

func (r *PostgresRepository) PutRiskAssessment(ctx context.Context, organizationID string, a *RiskAssessmentRecord) error {
	a.OrganizationID = organizationID
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO risk_assessments (id, automation_id, organization_id, overall_risk, risk_score, risk_factors, assessed_at, assessor_version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, a.AutomationID, organizationID, string(a.OverallRisk), a.RiskScore,
		mustJSON(a.RiskFactors.Data), a.AssessedAt, a.AssessorVersion)
	if err != nil {
		return fmt.Errorf("repository: put risk assessment: %w", err)
	}
	return nil
}

func (r *PostgresRepository) LatestRiskAssessment(ctx context.Context, organizationID, automationID string) (*RiskAssessmentRecord, error) {
	row := r.db.QueryRowContext(ctx, riskAssessmentSelect+`
		WHERE organization_id = $1 AND automation_id = $2
		ORDER BY assessed_at DESC LIMIT 1`,
		organizationID, automationID)
	return scanRiskAssessment(row)
}

func (r *PostgresRepository) RiskAssessmentHistory(ctx context.Context, organizationID, automationID string, limit int) ([]RiskAssessmentRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, riskAssessmentSelect+`
		WHERE organization_id = $1 AND automation_id = $2
		ORDER BY assessed_at DESC LIMIT $3`,
		organizationID, automationID, limit)
	if err != nil {
		return nil, fmt.Errorf("repository: risk assessment history: %w", err)
	}
	defer rows.Close()

	var out []RiskAssessmentRecord
	for rows.Next() {
		a, err := scanRiskAssessment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

const riskAssessmentSelect = `
	SELECT id, automation_id, organization_id, overall_risk, risk_score, risk_factors, assessed_at, assessor_version
	FROM risk_assessments`

func scanRiskAssessment(row rowScanner) (*RiskAssessmentRecord, error) {
	var a RiskAssessmentRecord
	var overallRisk string
	err := row.Scan(&a.ID, &a.AutomationID, &a.OrganizationID, &overallRisk, &a.RiskScore,
		&a.RiskFactors, &a.AssessedAt, &a.AssessorVersion)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("repository: scan risk assessment: %w", err)
	}
	a.OverallRisk = risk.Level(overallRisk)
	return &a, nil
}
