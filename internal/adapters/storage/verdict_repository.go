package storage

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/stoik/threat-engine/internal/domain"
)

type verdictRow struct {
	Outcome string `db:"outcome"`
	Record  string `db:"record"`
}

func (r *verdictRow) toEntity() (domain.VerdictRecord, error) {
	var rec domain.VerdictRecord
	if err := json.Unmarshal([]byte(r.Record), &rec); err != nil {
		return rec, err
	}
	// outcome is the only mutable part of a verdict and lives in its own column
	rec.Outcome = domain.Outcome(r.Outcome)
	return rec, nil
}

// SaveVerdict persists a verdict with its replay inputs
func (s *SQLStore) SaveVerdict(ctx context.Context, rec *domain.VerdictRecord) error {
	outcome := rec.Outcome
	if outcome == "" {
		outcome = domain.OutcomeUnknown
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return dbErr("marshal verdict", err)
	}

	res := rec.Result
	_, err = s.db.ExecContext(ctx, s.q(`
		INSERT INTO verdicts (verdict_id, tenant_id, message_id, threat_score, risk_level, threat_type,
		                      model_version, outcome, record, predicted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), res.VerdictID, res.TenantID, res.MessageID, res.ThreatScore, string(res.RiskLevel), string(res.ThreatType),
		res.ModelVersion, string(outcome), string(data), utc(res.PredictedAt))
	return dbErr("insert verdict", err)
}

// GetVerdict retrieves one verdict of a tenant
func (s *SQLStore) GetVerdict(ctx context.Context, tenantID, verdictID uuid.UUID) (*domain.VerdictRecord, error) {
	var row verdictRow
	err := s.db.GetContext(ctx, &row, s.q(`
		SELECT outcome, record FROM verdicts WHERE tenant_id = ? AND verdict_id = ?
	`), tenantID, verdictID)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, dbErr("get verdict", err)
	}
	rec, err := row.toEntity()
	if err != nil {
		return nil, dbErr("decode verdict", err)
	}
	return &rec, nil
}

// RecentVerdicts lists a tenant's verdicts since a time, newest first
func (s *SQLStore) RecentVerdicts(ctx context.Context, tenantID uuid.UUID, since time.Time, limit int) ([]domain.VerdictRecord, error) {
	rows := make([]verdictRow, 0)
	err := s.db.SelectContext(ctx, &rows, s.q(`
		SELECT outcome, record
		FROM verdicts
		WHERE tenant_id = ? AND predicted_at >= ?
		ORDER BY predicted_at DESC
		LIMIT ?
	`), tenantID, utc(since), limit)
	if err != nil {
		return nil, dbErr("list verdicts", err)
	}

	out := make([]domain.VerdictRecord, 0, len(rows))
	for i := range rows {
		rec, err := rows[i].toEntity()
		if err != nil {
			return nil, dbErr("decode verdict", err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// SetVerdictOutcome records ground truth on every verdict of a message
func (s *SQLStore) SetVerdictOutcome(ctx context.Context, tenantID uuid.UUID, messageID string, outcome domain.Outcome) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.q(`
		UPDATE verdicts SET outcome = ? WHERE tenant_id = ? AND message_id = ?
	`), string(outcome), tenantID, messageID)
	if err != nil {
		return 0, dbErr("record verdict outcome", err)
	}
	n, err := res.RowsAffected()
	return n, dbErr("record verdict outcome", err)
}
