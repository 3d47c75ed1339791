package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stoik/threat-engine/internal/domain"
)

type decisionRow struct {
	ID              uuid.UUID      `db:"id"`
	TenantID        uuid.UUID      `db:"tenant_id"`
	VerdictID       uuid.UUID      `db:"verdict_id"`
	AdminID         string         `db:"admin_id"`
	OriginalVerdict string         `db:"original_verdict"`
	Action          string         `db:"action"`
	Reason          sql.NullString `db:"reason"`
	DecidedAt       time.Time      `db:"decided_at"`
	Snapshot        string         `db:"snapshot"`
	ReportedAsPhish bool           `db:"reported_as_phish"`
	ReportedAt      sql.NullTime   `db:"reported_at"`
}

func (r *decisionRow) toEntity() (domain.AdminDecision, error) {
	d := domain.AdminDecision{
		ID:                        r.ID,
		TenantID:                  r.TenantID,
		VerdictID:                 r.VerdictID,
		AdminID:                   r.AdminID,
		OriginalVerdict:           domain.AdminVerdict(r.OriginalVerdict),
		Action:                    domain.AdminAction(r.Action),
		Reason:                    r.Reason.String,
		DecidedAt:                 r.DecidedAt.UTC(),
		SubsequentReportedAsPhish: r.ReportedAsPhish,
		ReportedAt:                timePtr(r.ReportedAt),
	}
	err := unmarshalColumn(sql.NullString{String: r.Snapshot, Valid: true}, &d.Snapshot)
	return d, err
}

const decisionColumns = `id, tenant_id, verdict_id, admin_id, original_verdict, action, reason,
	decided_at, snapshot, reported_as_phish, reported_at`

// InsertDecision appends an admin decision
func (s *SQLStore) InsertDecision(ctx context.Context, d *domain.AdminDecision) error {
	snapshot, err := marshalColumn(d.Snapshot)
	if err != nil {
		return dbErr("marshal decision snapshot", err)
	}

	res, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO admin_decisions (`+decisionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING
	`), d.ID, d.TenantID, d.VerdictID, d.AdminID, string(d.OriginalVerdict), string(d.Action), nullString(d.Reason),
		utc(d.DecidedAt), snapshot, d.SubsequentReportedAsPhish, nullTime(d.ReportedAt))
	if err != nil {
		return dbErr("insert admin decision", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.NewAlreadyExistsError("admin decision", d.ID.String())
	}
	return nil
}

// DecisionsSince lists a tenant's decisions, oldest first
func (s *SQLStore) DecisionsSince(ctx context.Context, tenantID uuid.UUID, since time.Time, limit int) ([]domain.AdminDecision, error) {
	rows := make([]decisionRow, 0)
	err := s.db.SelectContext(ctx, &rows, s.q(`
		SELECT `+decisionColumns+`
		FROM admin_decisions
		WHERE tenant_id = ? AND decided_at >= ?
		ORDER BY decided_at, id
		LIMIT ?
	`), tenantID, utc(since), limit)
	if err != nil {
		return nil, dbErr("list admin decisions", err)
	}

	decisions := make([]domain.AdminDecision, 0, len(rows))
	for i := range rows {
		d, err := rows[i].toEntity()
		if err != nil {
			return nil, dbErr("decode admin decision", err)
		}
		decisions = append(decisions, d)
	}
	return decisions, nil
}

// MarkReportedAsPhish flags the released decisions of a verdict reported after the fact
func (s *SQLStore) MarkReportedAsPhish(ctx context.Context, tenantID, verdictID uuid.UUID, at time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.q(`
		UPDATE admin_decisions
		SET reported_as_phish = TRUE, reported_at = ?
		WHERE tenant_id = ? AND verdict_id = ? AND action = ? AND reported_as_phish = FALSE
	`), utc(at), tenantID, verdictID, string(domain.ActionRelease))
	if err != nil {
		return 0, dbErr("record decision outcome", err)
	}
	n, err := res.RowsAffected()
	return n, dbErr("record decision outcome", err)
}

type adjustmentRow struct {
	ID             uuid.UUID      `db:"id"`
	TenantID       uuid.UUID      `db:"tenant_id"`
	Metric         string         `db:"metric"`
	Level          string         `db:"level"`
	CurrentValue   float64        `db:"current_value"`
	SuggestedValue float64        `db:"suggested_value"`
	Direction      string         `db:"direction"`
	Reason         string         `db:"reason"`
	Confidence     float64        `db:"confidence"`
	SampleSize     int            `db:"sample_size"`
	Status         string         `db:"status"`
	PreviousConfig sql.NullString `db:"previous_config"`
	CreatedAt      time.Time      `db:"created_at"`
	AppliedAt      sql.NullTime   `db:"applied_at"`
}

func (r *adjustmentRow) toEntity() (*domain.ThresholdAdjustment, error) {
	adj := &domain.ThresholdAdjustment{
		ID:             r.ID,
		TenantID:       r.TenantID,
		Metric:         r.Metric,
		Level:          domain.ThresholdLevel(r.Level),
		CurrentValue:   r.CurrentValue,
		SuggestedValue: r.SuggestedValue,
		Direction:      r.Direction,
		Reason:         r.Reason,
		Confidence:     r.Confidence,
		SampleSize:     r.SampleSize,
		Status:         domain.AdjustmentStatus(r.Status),
		CreatedAt:      r.CreatedAt.UTC(),
		AppliedAt:      timePtr(r.AppliedAt),
	}
	if r.PreviousConfig.Valid {
		var prev domain.ThresholdConfig
		if err := unmarshalColumn(r.PreviousConfig, &prev); err != nil {
			return nil, err
		}
		adj.PreviousConfig = &prev
	}
	adj.RollbackAvailable = adj.Status == domain.AdjustmentApplied && adj.PreviousConfig != nil
	return adj, nil
}

const adjustmentColumns = `id, tenant_id, metric, level, current_value, suggested_value, direction, reason,
	confidence, sample_size, status, previous_config, created_at, applied_at`

// InsertAdjustment stores a proposed threshold adjustment
func (s *SQLStore) InsertAdjustment(ctx context.Context, adj *domain.ThresholdAdjustment) error {
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO threshold_adjustments (`+adjustmentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, ?, NULL)
	`), adj.ID, adj.TenantID, adj.Metric, string(adj.Level), adj.CurrentValue, adj.SuggestedValue, adj.Direction,
		adj.Reason, adj.Confidence, adj.SampleSize, string(adj.Status), utc(adj.CreatedAt))
	return dbErr("insert threshold adjustment", err)
}

// GetAdjustment retrieves a threshold adjustment
func (s *SQLStore) GetAdjustment(ctx context.Context, tenantID, id uuid.UUID) (*domain.ThresholdAdjustment, error) {
	var row adjustmentRow
	err := s.db.GetContext(ctx, &row, s.q(`
		SELECT `+adjustmentColumns+`
		FROM threshold_adjustments
		WHERE tenant_id = ? AND id = ?
	`), tenantID, id)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, dbErr("get threshold adjustment", err)
	}
	adj, err := row.toEntity()
	return adj, dbErr("decode threshold adjustment", err)
}

// ApplyAdjustment stores next as the tenant's thresholds and marks adj
// applied, keeping adj.PreviousConfig for rollback
func (s *SQLStore) ApplyAdjustment(ctx context.Context, adj *domain.ThresholdAdjustment, next domain.ThresholdConfig, at time.Time) error {
	prev, err := marshalColumn(adj.PreviousConfig)
	if err != nil {
		return dbErr("marshal previous thresholds", err)
	}

	err = s.inTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, s.q(`
			UPDATE threshold_adjustments
			SET status = ?, previous_config = ?, applied_at = ?
			WHERE tenant_id = ? AND id = ? AND status = ?
		`), string(domain.AdjustmentApplied), prev, utc(at), adj.TenantID, adj.ID, string(domain.AdjustmentProposed))
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil || n == 0 {
			if err != nil {
				return err
			}
			return domain.NewConflictError("threshold adjustment is no longer proposed")
		}
		_, err = saveThresholds(ctx, tx, s.q, adj.TenantID, next, at)
		return err
	})
	return dbErr("apply threshold adjustment", err)
}

// RollbackAdjustment restores the thresholds captured when adj was applied
func (s *SQLStore) RollbackAdjustment(ctx context.Context, adj *domain.ThresholdAdjustment, at time.Time) error {
	if adj.PreviousConfig == nil {
		return domain.NewValidationError("threshold adjustment has no snapshot to restore")
	}

	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, s.q(`
			UPDATE threshold_adjustments
			SET status = ?
			WHERE tenant_id = ? AND id = ? AND status = ?
		`), string(domain.AdjustmentRolledBack), adj.TenantID, adj.ID, string(domain.AdjustmentApplied))
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil || n == 0 {
			if err != nil {
				return err
			}
			return domain.NewConflictError("threshold adjustment is not applied")
		}
		_, err = saveThresholds(ctx, tx, s.q, adj.TenantID, *adj.PreviousConfig, at)
		return err
	})
	return dbErr("roll back threshold adjustment", err)
}

type policyTestRow struct {
	ID             uuid.UUID      `db:"id"`
	TenantID       uuid.UUID      `db:"tenant_id"`
	Name           string         `db:"name"`
	Description    sql.NullString `db:"description"`
	Parameters     sql.NullString `db:"parameters"`
	TrafficPercent float64        `db:"traffic_percent"`
	Status         string         `db:"status"`
	StartedAt      time.Time      `db:"started_at"`
	EndedAt        sql.NullTime   `db:"ended_at"`
}

const policyTestColumns = `id, tenant_id, name, description, parameters, traffic_percent, status, started_at, ended_at`

// InsertPolicyTest starts a policy experiment
func (s *SQLStore) InsertPolicyTest(ctx context.Context, t *domain.PolicyABTest) error {
	var params sql.NullString
	if len(t.Parameters) > 0 {
		p, err := marshalColumn(t.Parameters)
		if err != nil {
			return dbErr("marshal policy test parameters", err)
		}
		params = nullString(p)
	}

	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO policy_ab_tests (`+policyTestColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), t.ID, t.TenantID, t.Name, nullString(t.Description), params, t.TrafficPercent, string(t.Status),
		utc(t.StartedAt), nullTime(t.EndedAt))
	return dbErr("insert policy test", err)
}

// GetPolicyTest retrieves a policy experiment
func (s *SQLStore) GetPolicyTest(ctx context.Context, tenantID, id uuid.UUID) (*domain.PolicyABTest, error) {
	var row policyTestRow
	err := s.db.GetContext(ctx, &row, s.q(`
		SELECT `+policyTestColumns+`
		FROM policy_ab_tests
		WHERE tenant_id = ? AND id = ?
	`), tenantID, id)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, dbErr("get policy test", err)
	}

	t := &domain.PolicyABTest{
		ID:             row.ID,
		TenantID:       row.TenantID,
		Name:           row.Name,
		Description:    row.Description.String,
		TrafficPercent: row.TrafficPercent,
		Status:         domain.ABTestStatus(row.Status),
		StartedAt:      row.StartedAt.UTC(),
		EndedAt:        timePtr(row.EndedAt),
	}
	if err := unmarshalColumn(row.Parameters, &t.Parameters); err != nil {
		return nil, dbErr("decode policy test", err)
	}
	return t, nil
}

// StopPolicyTest ends a running policy experiment
func (s *SQLStore) StopPolicyTest(ctx context.Context, tenantID, id uuid.UUID, at time.Time) error {
	_, err := s.db.ExecContext(ctx, s.q(`
		UPDATE policy_ab_tests
		SET status = ?, ended_at = ?
		WHERE tenant_id = ? AND id = ? AND status = ?
	`), string(domain.ABTestStopped), utc(at), tenantID, id, string(domain.ABTestRunning))
	return dbErr("stop policy test", err)
}
