package storage

// schema is portable between PostgreSQL and SQLite: ids are stored as
// VARCHAR(36), JSON as TEXT and timestamps as UTC TIMESTAMP.
var schema = []string{
	// ============================================================================
	// MODEL VERSIONS
	// ============================================================================
	// Append-only. A version is never updated once written; weight and
	// calibration updates derive a new version instead.
	`CREATE TABLE IF NOT EXISTS model_versions (
		version VARCHAR(64) PRIMARY KEY,
		weights TEXT NOT NULL,
		calibration TEXT NOT NULL,
		metrics TEXT,
		trained_at TIMESTAMP NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_model_versions_created ON model_versions(created_at)`,

	// Single row. generation is the compare-and-swap token of activation.
	`CREATE TABLE IF NOT EXISTS model_pointer (
		id INTEGER PRIMARY KEY,
		active_version VARCHAR(64) NOT NULL,
		previous_version VARCHAR(64) NOT NULL,
		generation BIGINT NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,

	// At most one row with ended_at IS NULL
	`CREATE TABLE IF NOT EXISTS model_ab_tests (
		id VARCHAR(36) PRIMARY KEY,
		variant_version VARCHAR(64) NOT NULL,
		traffic_percent DOUBLE PRECISION NOT NULL,
		started_at TIMESTAMP NOT NULL,
		ended_at TIMESTAMP
	)`,

	// ============================================================================
	// THRESHOLDS
	// ============================================================================
	// The all-zero tenant id holds the global default
	`CREATE TABLE IF NOT EXISTS thresholds (
		tenant_id VARCHAR(36) PRIMARY KEY,
		critical DOUBLE PRECISION NOT NULL,
		high DOUBLE PRECISION NOT NULL,
		medium DOUBLE PRECISION NOT NULL,
		low DOUBLE PRECISION NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS threshold_adjustments (
		id VARCHAR(36) PRIMARY KEY,
		tenant_id VARCHAR(36) NOT NULL,
		metric VARCHAR(64) NOT NULL,
		level VARCHAR(16) NOT NULL,
		current_value DOUBLE PRECISION NOT NULL,
		suggested_value DOUBLE PRECISION NOT NULL,
		direction VARCHAR(8) NOT NULL,
		reason TEXT NOT NULL,
		confidence DOUBLE PRECISION NOT NULL,
		sample_size INTEGER NOT NULL,
		status VARCHAR(16) NOT NULL,
		previous_config TEXT,
		created_at TIMESTAMP NOT NULL,
		applied_at TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_adjustments_tenant ON threshold_adjustments(tenant_id, created_at)`,

	// ============================================================================
	// FEEDBACK
	// ============================================================================
	// The primary key makes replayed feedback a no-op
	`CREATE TABLE IF NOT EXISTS feedback_events (
		tenant_id VARCHAR(36) NOT NULL,
		feedback_id VARCHAR(128) NOT NULL,
		message_id VARCHAR(255) NOT NULL,
		sender_domain VARCHAR(253) NOT NULL,
		sender_email VARCHAR(254) NOT NULL,
		feedback_type VARCHAR(32) NOT NULL,
		feedback_class VARCHAR(32) NOT NULL,
		original_verdict VARCHAR(32) NOT NULL,
		original_score DOUBLE PRECISION NOT NULL,
		subject TEXT,
		urls TEXT,
		received_at TIMESTAMP NOT NULL,
		processed_at TIMESTAMP,
		PRIMARY KEY (tenant_id, feedback_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_feedback_received ON feedback_events(tenant_id, received_at)`,

	`CREATE TABLE IF NOT EXISTS sender_reputation (
		tenant_id VARCHAR(36) NOT NULL,
		domain VARCHAR(253) NOT NULL,
		safe_count INTEGER NOT NULL,
		threat_count INTEGER NOT NULL,
		spam_count INTEGER NOT NULL,
		category VARCHAR(16) NOT NULL,
		trust_score DOUBLE PRECISION NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		PRIMARY KEY (tenant_id, domain)
	)`,

	// Mutated only by the atomic upsert and the decay sweep
	`CREATE TABLE IF NOT EXISTS feedback_patterns (
		id VARCHAR(36) PRIMARY KEY,
		tenant_id VARCHAR(36) NOT NULL,
		pattern_type VARCHAR(32) NOT NULL,
		pattern_value VARCHAR(255) NOT NULL,
		feedback_type VARCHAR(32) NOT NULL,
		confidence DOUBLE PRECISION NOT NULL,
		occurrence_count INTEGER NOT NULL,
		first_seen TIMESTAMP NOT NULL,
		last_seen TIMESTAMP NOT NULL,
		is_active BOOLEAN NOT NULL,
		UNIQUE (tenant_id, pattern_type, pattern_value, feedback_type)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_patterns_promotion ON feedback_patterns(tenant_id, is_active, occurrence_count)`,

	// The unique key makes rule synthesis idempotent across processes
	`CREATE TABLE IF NOT EXISTS learned_rules (
		id VARCHAR(36) PRIMARY KEY,
		tenant_id VARCHAR(36) NOT NULL,
		rule_type VARCHAR(32) NOT NULL,
		field VARCHAR(32) NOT NULL,
		operator VARCHAR(16) NOT NULL,
		value VARCHAR(255) NOT NULL,
		score_adjustment DOUBLE PRECISION NOT NULL,
		confidence DOUBLE PRECISION NOT NULL,
		source_feedback_count INTEGER NOT NULL,
		source_pattern_id VARCHAR(36) NOT NULL,
		is_active BOOLEAN NOT NULL,
		created_at TIMESTAMP NOT NULL,
		expires_at TIMESTAMP,
		UNIQUE (tenant_id, field, value)
	)`,

	// ============================================================================
	// ADMIN DECISIONS
	// ============================================================================
	// Immutable except for the subsequent report columns
	`CREATE TABLE IF NOT EXISTS admin_decisions (
		id VARCHAR(36) PRIMARY KEY,
		tenant_id VARCHAR(36) NOT NULL,
		verdict_id VARCHAR(36) NOT NULL,
		admin_id VARCHAR(128) NOT NULL,
		original_verdict VARCHAR(16) NOT NULL,
		action VARCHAR(16) NOT NULL,
		reason TEXT,
		decided_at TIMESTAMP NOT NULL,
		snapshot TEXT NOT NULL,
		reported_as_phish BOOLEAN NOT NULL,
		reported_at TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_decisions_tenant ON admin_decisions(tenant_id, decided_at)`,
	`CREATE INDEX IF NOT EXISTS idx_decisions_verdict ON admin_decisions(tenant_id, verdict_id)`,

	`CREATE TABLE IF NOT EXISTS policy_ab_tests (
		id VARCHAR(36) PRIMARY KEY,
		tenant_id VARCHAR(36) NOT NULL,
		name VARCHAR(128) NOT NULL,
		description TEXT,
		parameters TEXT,
		traffic_percent DOUBLE PRECISION NOT NULL,
		status VARCHAR(16) NOT NULL,
		started_at TIMESTAMP NOT NULL,
		ended_at TIMESTAMP
	)`,

	// ============================================================================
	// VERDICTS
	// ============================================================================
	// record holds the full verdict with its feature vector and thresholds so
	// explanations can replay it. The flat columns back the list queries.
	`CREATE TABLE IF NOT EXISTS verdicts (
		verdict_id VARCHAR(36) PRIMARY KEY,
		tenant_id VARCHAR(36) NOT NULL,
		message_id VARCHAR(255) NOT NULL,
		threat_score DOUBLE PRECISION NOT NULL,
		risk_level VARCHAR(16) NOT NULL,
		threat_type VARCHAR(16) NOT NULL,
		model_version VARCHAR(64) NOT NULL,
		outcome VARCHAR(32) NOT NULL,
		record TEXT NOT NULL,
		predicted_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_verdicts_predicted ON verdicts(tenant_id, predicted_at)`,
	`CREATE INDEX IF NOT EXISTS idx_verdicts_message ON verdicts(tenant_id, message_id)`,
}
