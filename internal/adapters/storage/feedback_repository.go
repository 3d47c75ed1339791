package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stoik/threat-engine/internal/domain"
	"github.com/stoik/threat-engine/internal/domain/learning"
)

type feedbackEventRow struct {
	TenantID        uuid.UUID      `db:"tenant_id"`
	FeedbackID      string         `db:"feedback_id"`
	MessageID       string         `db:"message_id"`
	SenderDomain    string         `db:"sender_domain"`
	SenderEmail     string         `db:"sender_email"`
	FeedbackType    string         `db:"feedback_type"`
	FeedbackClass   string         `db:"feedback_class"`
	OriginalVerdict string         `db:"original_verdict"`
	OriginalScore   float64        `db:"original_score"`
	Subject         sql.NullString `db:"subject"`
	URLs            sql.NullString `db:"urls"`
	ReceivedAt      time.Time      `db:"received_at"`
}

func (r *feedbackEventRow) toEntity() (*domain.FeedbackEvent, error) {
	ev := &domain.FeedbackEvent{
		FeedbackID:      r.FeedbackID,
		TenantID:        r.TenantID,
		MessageID:       r.MessageID,
		SenderDomain:    r.SenderDomain,
		SenderEmail:     r.SenderEmail,
		FeedbackType:    r.FeedbackType,
		OriginalVerdict: r.OriginalVerdict,
		OriginalScore:   r.OriginalScore,
		Subject:         r.Subject.String,
		ReceivedAt:      r.ReceivedAt.UTC(),
	}
	if err := unmarshalColumn(r.URLs, &ev.URLs); err != nil {
		return nil, err
	}
	return ev, nil
}

const feedbackColumns = `tenant_id, feedback_id, message_id, sender_domain, sender_email, feedback_type,
	feedback_class, original_verdict, original_score, subject, urls, received_at`

// execQueryer is satisfied by both *sqlx.DB and *sqlx.Tx
type execQueryer interface {
	sqlx.ExecerContext
	sqlx.QueryerContext
}

// InsertFeedbackEvent records a feedback event once per (tenant, feedback id)
func (s *SQLStore) InsertFeedbackEvent(ctx context.Context, ev *domain.FeedbackEvent, class domain.FeedbackClass) (bool, error) {
	return s.insertFeedbackEvent(ctx, s.db, ev, class)
}

func (s *SQLStore) insertFeedbackEvent(ctx context.Context, q execQueryer, ev *domain.FeedbackEvent, class domain.FeedbackClass) (bool, error) {
	var urls sql.NullString
	if len(ev.URLs) > 0 {
		u, err := marshalColumn(ev.URLs)
		if err != nil {
			return false, dbErr("marshal feedback urls", err)
		}
		urls = nullString(u)
	}

	res, err := q.ExecContext(ctx, s.q(`
		INSERT INTO feedback_events (`+feedbackColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, feedback_id) DO NOTHING
	`), ev.TenantID, ev.FeedbackID, ev.MessageID, ev.SenderDomain, ev.SenderEmail, ev.FeedbackType,
		string(class), ev.OriginalVerdict, ev.OriginalScore, nullString(ev.Subject), urls, utc(ev.ReceivedAt))
	if err != nil {
		return false, dbErr("insert feedback event", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, dbErr("insert feedback event", err)
	}
	return n == 1, nil
}

// RecordFeedback stores the event, its reputation delta and its pattern
// sightings in one transaction. A replayed event changes nothing and
// reports whether its earlier run finished.
func (s *SQLStore) RecordFeedback(ctx context.Context, w *domain.FeedbackWrite) (*domain.FeedbackRecord, error) {
	rec := &domain.FeedbackRecord{Status: domain.FeedbackNew}
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		inserted, err := s.insertFeedbackEvent(ctx, tx, w.Event, w.Class)
		if err != nil {
			return err
		}
		if !inserted {
			var processedAt sql.NullTime
			err := tx.GetContext(ctx, &processedAt, s.q(`
				SELECT processed_at FROM feedback_events WHERE tenant_id = ? AND feedback_id = ?
			`), w.Event.TenantID, w.Event.FeedbackID)
			if err != nil {
				return dbErr("get feedback status", err)
			}
			rec.Status = domain.FeedbackPending
			if processedAt.Valid {
				rec.Status = domain.FeedbackProcessed
			}
			return nil
		}

		if w.SenderDomain != "" {
			if rec.Reputation, err = s.incrementReputation(ctx, tx, w.Event.TenantID, w.SenderDomain, w.Reputation, w.At); err != nil {
				return err
			}
		}
		rec.Patterns = make([]domain.FeedbackPattern, 0, len(w.Candidates))
		for _, c := range w.Candidates {
			p, err := s.upsertPattern(ctx, tx, w.Event.TenantID, c.Type, c.Value, w.Class, w.At)
			if err != nil {
				return err
			}
			rec.Patterns = append(rec.Patterns, *p)
		}
		return nil
	})
	if err != nil {
		return nil, dbErr("record feedback", err)
	}
	return rec, nil
}

// MarkFeedbackProcessed closes a pending event so later replays are duplicates
func (s *SQLStore) MarkFeedbackProcessed(ctx context.Context, tenantID uuid.UUID, feedbackID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, s.q(`
		UPDATE feedback_events
		SET processed_at = ?
		WHERE tenant_id = ? AND feedback_id = ? AND processed_at IS NULL
	`), utc(at), tenantID, feedbackID)
	return dbErr("mark feedback processed", err)
}

// GetFeedbackEvent retrieves one feedback event
func (s *SQLStore) GetFeedbackEvent(ctx context.Context, tenantID uuid.UUID, feedbackID string) (*domain.FeedbackEvent, error) {
	var row feedbackEventRow
	err := s.db.GetContext(ctx, &row, s.q(`
		SELECT `+feedbackColumns+`
		FROM feedback_events
		WHERE tenant_id = ? AND feedback_id = ?
	`), tenantID, feedbackID)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, dbErr("get feedback event", err)
	}
	ev, err := row.toEntity()
	return ev, dbErr("decode feedback event", err)
}

// FeedbackSince lists a tenant's feedback events with their classes, newest first
func (s *SQLStore) FeedbackSince(ctx context.Context, tenantID uuid.UUID, since time.Time, limit int) ([]domain.FeedbackEvent, []domain.FeedbackClass, error) {
	rows := make([]feedbackEventRow, 0)
	err := s.db.SelectContext(ctx, &rows, s.q(`
		SELECT `+feedbackColumns+`
		FROM feedback_events
		WHERE tenant_id = ? AND received_at >= ?
		ORDER BY received_at DESC
		LIMIT ?
	`), tenantID, utc(since), limit)
	if err != nil {
		return nil, nil, dbErr("list feedback events", err)
	}

	events := make([]domain.FeedbackEvent, 0, len(rows))
	classes := make([]domain.FeedbackClass, 0, len(rows))
	for i := range rows {
		ev, err := rows[i].toEntity()
		if err != nil {
			return nil, nil, dbErr("decode feedback event", err)
		}
		events = append(events, *ev)
		classes = append(classes, domain.FeedbackClass(rows[i].FeedbackClass))
	}
	return events, classes, nil
}

type reputationRow struct {
	TenantID    uuid.UUID `db:"tenant_id"`
	Domain      string    `db:"domain"`
	SafeCount   int       `db:"safe_count"`
	ThreatCount int       `db:"threat_count"`
	SpamCount   int       `db:"spam_count"`
	Category    string    `db:"category"`
	TrustScore  float64   `db:"trust_score"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (r *reputationRow) toEntity() *domain.SenderReputation {
	return &domain.SenderReputation{
		TenantID:    r.TenantID,
		Domain:      r.Domain,
		SafeCount:   r.SafeCount,
		ThreatCount: r.ThreatCount,
		SpamCount:   r.SpamCount,
		Category:    domain.ReputationCategory(r.Category),
		TrustScore:  r.TrustScore,
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

const reputationColumns = `tenant_id, domain, safe_count, threat_count, spam_count, category, trust_score, updated_at`

// IncrementReputation adds delta to a sender's counters in one statement
func (s *SQLStore) IncrementReputation(ctx context.Context, tenantID uuid.UUID, senderDomain string, delta domain.ReputationDelta, at time.Time) (*domain.SenderReputation, error) {
	return s.incrementReputation(ctx, s.db, tenantID, senderDomain, delta, at)
}

func (s *SQLStore) incrementReputation(ctx context.Context, q execQueryer, tenantID uuid.UUID, senderDomain string, delta domain.ReputationDelta, at time.Time) (*domain.SenderReputation, error) {
	var row reputationRow
	err := sqlx.GetContext(ctx, q, &row, s.q(`
		INSERT INTO sender_reputation (`+reputationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, 50, ?)
		ON CONFLICT (tenant_id, domain) DO UPDATE SET
			safe_count = sender_reputation.safe_count + excluded.safe_count,
			threat_count = sender_reputation.threat_count + excluded.threat_count,
			spam_count = sender_reputation.spam_count + excluded.spam_count,
			updated_at = excluded.updated_at
		RETURNING `+reputationColumns,
	), tenantID, senderDomain, delta.Safe, delta.Threat, delta.Spam, string(domain.ReputationUnknown), utc(at))
	if err != nil {
		return nil, dbErr("increment sender reputation", err)
	}
	return row.toEntity(), nil
}

// SetReputationCategory moves a sender from one category to another.
// It changes nothing and returns false when the stored category is no
// longer from, so a stale evaluation cannot undo a newer one.
func (s *SQLStore) SetReputationCategory(ctx context.Context, tenantID uuid.UUID, senderDomain string,
	from, to domain.ReputationCategory, trust float64, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.q(`
		UPDATE sender_reputation
		SET category = ?, trust_score = ?, updated_at = ?
		WHERE tenant_id = ? AND domain = ? AND category = ?
	`), string(to), trust, utc(at), tenantID, senderDomain, string(from))
	if err != nil {
		return false, dbErr("update sender reputation", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, dbErr("update sender reputation", err)
	}
	return n == 1, nil
}

// GetReputation retrieves a sender's reputation
func (s *SQLStore) GetReputation(ctx context.Context, tenantID uuid.UUID, senderDomain string) (*domain.SenderReputation, error) {
	var row reputationRow
	err := s.db.GetContext(ctx, &row, s.q(`
		SELECT `+reputationColumns+`
		FROM sender_reputation
		WHERE tenant_id = ? AND domain = ?
	`), tenantID, senderDomain)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, dbErr("get sender reputation", err)
	}
	return row.toEntity(), nil
}

type patternRow struct {
	ID              uuid.UUID `db:"id"`
	TenantID        uuid.UUID `db:"tenant_id"`
	PatternType     string    `db:"pattern_type"`
	PatternValue    string    `db:"pattern_value"`
	FeedbackType    string    `db:"feedback_type"`
	Confidence      float64   `db:"confidence"`
	OccurrenceCount int       `db:"occurrence_count"`
	FirstSeen       time.Time `db:"first_seen"`
	LastSeen        time.Time `db:"last_seen"`
	IsActive        bool      `db:"is_active"`
}

func (r *patternRow) toEntity() domain.FeedbackPattern {
	return domain.FeedbackPattern{
		ID:              r.ID,
		TenantID:        r.TenantID,
		PatternType:     domain.PatternType(r.PatternType),
		PatternValue:    r.PatternValue,
		FeedbackType:    domain.FeedbackClass(r.FeedbackType),
		Confidence:      r.Confidence,
		OccurrenceCount: r.OccurrenceCount,
		FirstSeen:       r.FirstSeen.UTC(),
		LastSeen:        r.LastSeen.UTC(),
		IsActive:        r.IsActive,
	}
}

const patternColumns = `id, tenant_id, pattern_type, pattern_value, feedback_type, confidence,
	occurrence_count, first_seen, last_seen, is_active`

// UpsertPattern creates a pattern or records one more occurrence of it.
// Confidence grows by a fixed step up to the ceiling.
func (s *SQLStore) UpsertPattern(ctx context.Context, tenantID uuid.UUID, patternType domain.PatternType, value string, class domain.FeedbackClass, at time.Time) (*domain.FeedbackPattern, error) {
	return s.upsertPattern(ctx, s.db, tenantID, patternType, value, class, at)
}

func (s *SQLStore) upsertPattern(ctx context.Context, q execQueryer, tenantID uuid.UUID, patternType domain.PatternType, value string, class domain.FeedbackClass, at time.Time) (*domain.FeedbackPattern, error) {
	var row patternRow
	err := sqlx.GetContext(ctx, q, &row, s.q(`
		INSERT INTO feedback_patterns (`+patternColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?, TRUE)
		ON CONFLICT (tenant_id, pattern_type, pattern_value, feedback_type) DO UPDATE SET
			occurrence_count = feedback_patterns.occurrence_count + 1,
			confidence = CASE
				WHEN feedback_patterns.confidence + ? > ? THEN ?
				ELSE feedback_patterns.confidence + ?
			END,
			last_seen = excluded.last_seen,
			is_active = TRUE
		RETURNING `+patternColumns,
	), uuid.New(), tenantID, string(patternType), value, string(class), learning.PatternInitialConfidence, utc(at), utc(at),
		learning.PatternConfidenceStep, learning.PatternConfidenceCeiling, learning.PatternConfidenceCeiling, learning.PatternConfidenceStep)
	if err != nil {
		return nil, dbErr("upsert feedback pattern", err)
	}
	p := row.toEntity()
	return &p, nil
}

// PromotablePatterns lists active patterns past the promotion thresholds
func (s *SQLStore) PromotablePatterns(ctx context.Context, tenantID uuid.UUID, minOccurrences int, minConfidence float64, limit int) ([]domain.FeedbackPattern, error) {
	rows := make([]patternRow, 0)
	err := s.db.SelectContext(ctx, &rows, s.q(`
		SELECT `+patternColumns+`
		FROM feedback_patterns
		WHERE tenant_id = ? AND is_active = TRUE AND occurrence_count >= ? AND confidence >= ?
		ORDER BY occurrence_count DESC, pattern_value
		LIMIT ?
	`), tenantID, minOccurrences, minConfidence, limit)
	if err != nil {
		return nil, dbErr("list promotable patterns", err)
	}

	patterns := make([]domain.FeedbackPattern, 0, len(rows))
	for i := range rows {
		patterns = append(patterns, rows[i].toEntity())
	}
	return patterns, nil
}

// DecayPatterns ages out patterns nobody reported recently. A pattern is
// only deactivated once it is both below deactivateBelow and unseen since
// retireBefore; fresh patterns start below the floor and must survive.
func (s *SQLStore) DecayPatterns(ctx context.Context, staleBefore, retireBefore time.Time, step, floor, deactivateBelow float64) (int64, int64, error) {
	res, err := s.db.ExecContext(ctx, s.q(`
		UPDATE feedback_patterns
		SET confidence = CASE WHEN confidence - ? < ? THEN ? ELSE confidence - ? END
		WHERE is_active = TRUE AND last_seen < ?
	`), step, floor, floor, step, utc(staleBefore))
	if err != nil {
		return 0, 0, dbErr("decay feedback patterns", err)
	}
	decayed, _ := res.RowsAffected()

	res, err = s.db.ExecContext(ctx, s.q(`
		UPDATE feedback_patterns
		SET is_active = FALSE
		WHERE is_active = TRUE AND confidence < ? AND last_seen < ?
	`), deactivateBelow, utc(retireBefore))
	if err != nil {
		return decayed, 0, dbErr("deactivate feedback patterns", err)
	}
	deactivated, _ := res.RowsAffected()
	return decayed, deactivated, nil
}

type ruleRow struct {
	ID                  uuid.UUID    `db:"id"`
	TenantID            uuid.UUID    `db:"tenant_id"`
	RuleType            string       `db:"rule_type"`
	Field               string       `db:"field"`
	Operator            string       `db:"operator"`
	Value               string       `db:"value"`
	ScoreAdjustment     float64      `db:"score_adjustment"`
	Confidence          float64      `db:"confidence"`
	SourceFeedbackCount int          `db:"source_feedback_count"`
	SourcePatternID     uuid.UUID    `db:"source_pattern_id"`
	IsActive            bool         `db:"is_active"`
	CreatedAt           time.Time    `db:"created_at"`
	ExpiresAt           sql.NullTime `db:"expires_at"`
}

func (r *ruleRow) toEntity() domain.LearnedRule {
	return domain.LearnedRule{
		ID:       r.ID,
		TenantID: r.TenantID,
		RuleType: domain.RuleType(r.RuleType),
		Condition: domain.RuleCondition{
			Field:    domain.RuleField(r.Field),
			Operator: domain.Operator(r.Operator),
			Value:    r.Value,
		},
		ScoreAdjustment:     r.ScoreAdjustment,
		Confidence:          r.Confidence,
		SourceFeedbackCount: r.SourceFeedbackCount,
		SourcePatternID:     r.SourcePatternID,
		IsActive:            r.IsActive,
		CreatedAt:           r.CreatedAt.UTC(),
		ExpiresAt:           timePtr(r.ExpiresAt),
	}
}

const ruleColumns = `id, tenant_id, rule_type, field, operator, value, score_adjustment, confidence,
	source_feedback_count, source_pattern_id, is_active, created_at, expires_at`

// InsertRule adds a learned rule unless one exists for the same condition
func (s *SQLStore) InsertRule(ctx context.Context, rule *domain.LearnedRule) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO learned_rules (`+ruleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, field, value) DO NOTHING
	`), rule.ID, rule.TenantID, string(rule.RuleType), string(rule.Condition.Field), string(rule.Condition.Operator),
		rule.Condition.Value, rule.ScoreAdjustment, rule.Confidence, rule.SourceFeedbackCount, rule.SourcePatternID,
		rule.IsActive, utc(rule.CreatedAt), nullTime(rule.ExpiresAt))
	if err != nil {
		return false, dbErr("insert learned rule", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, dbErr("insert learned rule", err)
	}
	return n == 1, nil
}

// ActiveRules lists a tenant's active, unexpired rules
func (s *SQLStore) ActiveRules(ctx context.Context, tenantID uuid.UUID, now time.Time, limit int) ([]domain.LearnedRule, error) {
	rows := make([]ruleRow, 0)
	err := s.db.SelectContext(ctx, &rows, s.q(`
		SELECT `+ruleColumns+`
		FROM learned_rules
		WHERE tenant_id = ? AND is_active = TRUE AND (expires_at IS NULL OR expires_at > ?)
		ORDER BY created_at, id
		LIMIT ?
	`), tenantID, utc(now), limit)
	if err != nil {
		return nil, dbErr("list learned rules", err)
	}

	rules := make([]domain.LearnedRule, 0, len(rows))
	for i := range rows {
		rules = append(rules, rows[i].toEntity())
	}
	return rules, nil
}

// ExpireRules deactivates rules past their expiry
func (s *SQLStore) ExpireRules(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.q(`
		UPDATE learned_rules
		SET is_active = FALSE
		WHERE is_active = TRUE AND expires_at IS NOT NULL AND expires_at <= ?
	`), utc(now))
	if err != nil {
		return 0, dbErr("expire learned rules", err)
	}
	n, err := res.RowsAffected()
	return n, dbErr("expire learned rules", err)
}

// FeedbackClassCounts counts a tenant's feedback per class since a time
func (s *SQLStore) FeedbackClassCounts(ctx context.Context, tenantID uuid.UUID, since time.Time) (map[domain.FeedbackClass]int, error) {
	rows := make([]struct {
		Class string `db:"feedback_class"`
		Count int    `db:"n"`
	}, 0)
	err := s.db.SelectContext(ctx, &rows, s.q(`
		SELECT feedback_class, COUNT(*) AS n
		FROM feedback_events
		WHERE tenant_id = ? AND received_at >= ?
		GROUP BY feedback_class
	`), tenantID, utc(since))
	if err != nil {
		return nil, dbErr("count feedback", err)
	}

	counts := make(map[domain.FeedbackClass]int, len(rows))
	for _, r := range rows {
		counts[domain.FeedbackClass(r.Class)] = r.Count
	}
	return counts, nil
}

// TopFeedbackDomains ranks sender domains by feedback of one class
func (s *SQLStore) TopFeedbackDomains(ctx context.Context, tenantID uuid.UUID, class domain.FeedbackClass, since time.Time, limit int) ([]domain.DomainCount, error) {
	return s.topFeedbackValues(ctx, "sender_domain", tenantID, class, since, limit)
}

// TopFeedbackSenders ranks sender addresses by feedback of one class
func (s *SQLStore) TopFeedbackSenders(ctx context.Context, tenantID uuid.UUID, class domain.FeedbackClass, since time.Time, limit int) ([]domain.DomainCount, error) {
	return s.topFeedbackValues(ctx, "sender_email", tenantID, class, since, limit)
}

// column is one of two constants, never caller input
func (s *SQLStore) topFeedbackValues(ctx context.Context, column string, tenantID uuid.UUID, class domain.FeedbackClass, since time.Time, limit int) ([]domain.DomainCount, error) {
	out := make([]domain.DomainCount, 0)
	err := s.db.SelectContext(ctx, &out, s.q(`
		SELECT `+column+` AS value, COUNT(*) AS count
		FROM feedback_events
		WHERE tenant_id = ? AND feedback_class = ? AND received_at >= ? AND `+column+` <> ''
		GROUP BY `+column+`
		ORDER BY count DESC, value
		LIMIT ?
	`), tenantID, string(class), utc(since), limit)
	if err != nil {
		return nil, dbErr("rank feedback "+column, err)
	}
	return out, nil
}

// CountActivePatterns counts a tenant's active patterns
func (s *SQLStore) CountActivePatterns(ctx context.Context, tenantID uuid.UUID) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, s.q(`
		SELECT COUNT(*) FROM feedback_patterns WHERE tenant_id = ? AND is_active = TRUE
	`), tenantID)
	return n, dbErr("count feedback patterns", err)
}

// CountActiveRules counts a tenant's active, unexpired rules
func (s *SQLStore) CountActiveRules(ctx context.Context, tenantID uuid.UUID, now time.Time) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, s.q(`
		SELECT COUNT(*) FROM learned_rules
		WHERE tenant_id = ? AND is_active = TRUE AND (expires_at IS NULL OR expires_at > ?)
	`), tenantID, utc(now))
	return n, dbErr("count learned rules", err)
}

// CrossTenantPatterns aggregates active patterns seen by at least minTenants
// tenants. Only counts leave the query, never tenant ids.
func (s *SQLStore) CrossTenantPatterns(ctx context.Context, minTenants, limit int) ([]domain.CrossTenantPattern, error) {
	rows := make([]struct {
		PatternType      string `db:"pattern_type"`
		PatternValue     string `db:"pattern_value"`
		FeedbackType     string `db:"feedback_type"`
		TenantCount      int    `db:"tenant_count"`
		TotalOccurrences int    `db:"total_occurrences"`
	}, 0)
	err := s.db.SelectContext(ctx, &rows, s.q(`
		SELECT pattern_type, pattern_value, feedback_type,
		       COUNT(DISTINCT tenant_id) AS tenant_count,
		       SUM(occurrence_count) AS total_occurrences
		FROM feedback_patterns
		WHERE is_active = TRUE
		GROUP BY pattern_type, pattern_value, feedback_type
		HAVING COUNT(DISTINCT tenant_id) >= ?
		ORDER BY tenant_count DESC, total_occurrences DESC, pattern_value
		LIMIT ?
	`), minTenants, limit)
	if err != nil {
		return nil, dbErr("aggregate cross-tenant patterns", err)
	}

	out := make([]domain.CrossTenantPattern, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.CrossTenantPattern{
			PatternType:      domain.PatternType(r.PatternType),
			PatternValue:     r.PatternValue,
			FeedbackType:     domain.FeedbackClass(r.FeedbackType),
			TenantCount:      r.TenantCount,
			TotalOccurrences: r.TotalOccurrences,
		})
	}
	return out, nil
}
