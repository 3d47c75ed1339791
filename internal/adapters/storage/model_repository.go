package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stoik/threat-engine/internal/domain"
)

type modelVersionRow struct {
	Version     string         `db:"version"`
	Weights     string         `db:"weights"`
	Calibration string         `db:"calibration"`
	Metrics     sql.NullString `db:"metrics"`
	TrainedAt   time.Time      `db:"trained_at"`
	CreatedAt   time.Time      `db:"created_at"`
}

func (r *modelVersionRow) toEntity(active string) (*domain.ModelVersion, error) {
	mv := &domain.ModelVersion{
		Version:   r.Version,
		TrainedAt: r.TrainedAt.UTC(),
		CreatedAt: r.CreatedAt.UTC(),
		IsActive:  r.Version == active,
	}
	if err := unmarshalColumn(sql.NullString{String: r.Weights, Valid: true}, &mv.Weights); err != nil {
		return nil, err
	}
	if err := unmarshalColumn(sql.NullString{String: r.Calibration, Valid: true}, &mv.Calibration); err != nil {
		return nil, err
	}
	if err := unmarshalColumn(r.Metrics, &mv.Metrics); err != nil {
		return nil, err
	}
	return mv, nil
}

// CreateModelVersion appends an immutable model version
func (s *SQLStore) CreateModelVersion(ctx context.Context, mv *domain.ModelVersion) error {
	weights, err := marshalColumn(mv.Weights)
	if err != nil {
		return dbErr("marshal model weights", err)
	}
	calibration, err := marshalColumn(mv.Calibration)
	if err != nil {
		return dbErr("marshal model calibration", err)
	}
	var metrics sql.NullString
	if len(mv.Metrics) > 0 {
		m, err := marshalColumn(mv.Metrics)
		if err != nil {
			return dbErr("marshal model metrics", err)
		}
		metrics = nullString(m)
	}

	res, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO model_versions (version, weights, calibration, metrics, trained_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (version) DO NOTHING
	`), mv.Version, weights, calibration, metrics, utc(mv.TrainedAt), utc(mv.CreatedAt))
	if err != nil {
		return dbErr("insert model version", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.NewAlreadyExistsError("model version", mv.Version)
	}
	return nil
}

// GetModelVersion retrieves a model version by name
func (s *SQLStore) GetModelVersion(ctx context.Context, version string) (*domain.ModelVersion, error) {
	ptr, err := s.GetModelPointer(ctx)
	if err != nil {
		return nil, err
	}

	var row modelVersionRow
	err = s.db.GetContext(ctx, &row, s.q(`
		SELECT version, weights, calibration, metrics, trained_at, created_at
		FROM model_versions
		WHERE version = ?
	`), version)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, dbErr("get model version", err)
	}
	mv, err := row.toEntity(ptr.ActiveVersion)
	return mv, dbErr("decode model version", err)
}

// ListModelVersions lists versions, newest first
func (s *SQLStore) ListModelVersions(ctx context.Context, limit int) ([]domain.ModelVersion, error) {
	ptr, err := s.GetModelPointer(ctx)
	if err != nil {
		return nil, err
	}

	rows := make([]modelVersionRow, 0)
	err = s.db.SelectContext(ctx, &rows, s.q(`
		SELECT version, weights, calibration, metrics, trained_at, created_at
		FROM model_versions
		ORDER BY created_at DESC, version DESC
		LIMIT ?
	`), limit)
	if err != nil {
		return nil, dbErr("list model versions", err)
	}

	versions := make([]domain.ModelVersion, 0, len(rows))
	for i := range rows {
		mv, err := rows[i].toEntity(ptr.ActiveVersion)
		if err != nil {
			return nil, dbErr("decode model version", err)
		}
		versions = append(versions, *mv)
	}
	return versions, nil
}

type modelPointerRow struct {
	ActiveVersion   string    `db:"active_version"`
	PreviousVersion string    `db:"previous_version"`
	Generation      int64     `db:"generation"`
	UpdatedAt       time.Time `db:"updated_at"`
}

// GetModelPointer reads the active pointer; zero value before the first activation
func (s *SQLStore) GetModelPointer(ctx context.Context) (domain.ModelPointer, error) {
	var row modelPointerRow
	err := s.db.GetContext(ctx, &row, `
		SELECT active_version, previous_version, generation, updated_at
		FROM model_pointer
		WHERE id = 1
	`)
	if isNoRows(err) {
		return domain.ModelPointer{}, nil
	}
	if err != nil {
		return domain.ModelPointer{}, dbErr("get model pointer", err)
	}
	return domain.ModelPointer{
		ActiveVersion:   row.ActiveVersion,
		PreviousVersion: row.PreviousVersion,
		Generation:      row.Generation,
		UpdatedAt:       row.UpdatedAt.UTC(),
	}, nil
}

// SwapModelPointer moves the active pointer if nobody moved it since expected
func (s *SQLStore) SwapModelPointer(ctx context.Context, expected int64, active, previous string, at time.Time) (domain.ModelPointer, error) {
	res, err := s.db.ExecContext(ctx, s.q(`
		UPDATE model_pointer
		SET active_version = ?, previous_version = ?, generation = generation + 1, updated_at = ?
		WHERE id = 1 AND generation = ?
	`), active, previous, utc(at), expected)
	if err != nil {
		return domain.ModelPointer{}, dbErr("swap model pointer", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.ModelPointer{}, dbErr("swap model pointer", err)
	}
	if n == 0 {
		return domain.ModelPointer{}, domain.NewConflictError("model pointer was moved concurrently").
			WithDetail("expected_generation", expected)
	}
	return domain.ModelPointer{
		ActiveVersion:   active,
		PreviousVersion: previous,
		Generation:      expected + 1,
		UpdatedAt:       utc(at),
	}, nil
}

type modelTestRow struct {
	ID             uuid.UUID    `db:"id"`
	VariantVersion string       `db:"variant_version"`
	TrafficPercent float64      `db:"traffic_percent"`
	StartedAt      time.Time    `db:"started_at"`
	EndedAt        sql.NullTime `db:"ended_at"`
}

// GetActiveModelTest returns the running model test, if any
func (s *SQLStore) GetActiveModelTest(ctx context.Context) (*domain.ModelTest, error) {
	var row modelTestRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, variant_version, traffic_percent, started_at, ended_at
		FROM model_ab_tests
		WHERE ended_at IS NULL
		ORDER BY started_at DESC
		LIMIT 1
	`)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, dbErr("get active model test", err)
	}
	return &domain.ModelTest{
		ID:             row.ID,
		VariantVersion: row.VariantVersion,
		TrafficPercent: row.TrafficPercent,
		StartedAt:      row.StartedAt.UTC(),
		EndedAt:        timePtr(row.EndedAt),
	}, nil
}

// StartModelTest ends running tests and records t in one transaction
func (s *SQLStore) StartModelTest(ctx context.Context, t *domain.ModelTest) error {
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, s.q(`UPDATE model_ab_tests SET ended_at = ? WHERE ended_at IS NULL`), utc(t.StartedAt)); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, s.q(`
			INSERT INTO model_ab_tests (id, variant_version, traffic_percent, started_at, ended_at)
			VALUES (?, ?, ?, ?, NULL)
		`), t.ID, t.VariantVersion, t.TrafficPercent, utc(t.StartedAt))
		return err
	})
	return dbErr("start model test", err)
}

// EndModelTests ends every running model test
func (s *SQLStore) EndModelTests(ctx context.Context, at time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE model_ab_tests SET ended_at = ? WHERE ended_at IS NULL`), utc(at))
	if err != nil {
		return 0, dbErr("end model tests", err)
	}
	n, err := res.RowsAffected()
	return n, dbErr("end model tests", err)
}

type thresholdRow struct {
	Critical float64 `db:"critical"`
	High     float64 `db:"high"`
	Medium   float64 `db:"medium"`
	Low      float64 `db:"low"`
}

// GetThresholds retrieves the stored thresholds of a tenant
func (s *SQLStore) GetThresholds(ctx context.Context, tenantID uuid.UUID) (*domain.ThresholdConfig, error) {
	var row thresholdRow
	err := s.db.GetContext(ctx, &row, s.q(`
		SELECT critical, high, medium, low FROM thresholds WHERE tenant_id = ?
	`), tenantID)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, dbErr("get thresholds", err)
	}
	return &domain.ThresholdConfig{Critical: row.Critical, High: row.High, Medium: row.Medium, Low: row.Low}, nil
}

// SaveThresholds upserts the thresholds of a tenant
func (s *SQLStore) SaveThresholds(ctx context.Context, tenantID uuid.UUID, cfg domain.ThresholdConfig, at time.Time) error {
	_, err := saveThresholds(ctx, s.db, s.q, tenantID, cfg, at)
	return dbErr("save thresholds", err)
}

// saveThresholds runs on the pool or inside a transaction
func saveThresholds(ctx context.Context, ex sqlx.ExecerContext, q func(string) string, tenantID uuid.UUID, cfg domain.ThresholdConfig, at time.Time) (sql.Result, error) {
	return ex.ExecContext(ctx, q(`
		INSERT INTO thresholds (tenant_id, critical, high, medium, low, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id) DO UPDATE SET
			critical = excluded.critical,
			high = excluded.high,
			medium = excluded.medium,
			low = excluded.low,
			updated_at = excluded.updated_at
	`), tenantID, cfg.Critical, cfg.High, cfg.Medium, cfg.Low, utc(at))
}
