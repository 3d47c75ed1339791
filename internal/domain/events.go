package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditEvent is an append-only record of a state change or sensitive read
type AuditEvent struct {
	ID       uuid.UUID      `json:"id"`
	Action   string         `json:"action"`
	TenantID uuid.UUID      `json:"tenant_id"`
	Actor    string         `json:"actor,omitempty"`
	Resource string         `json:"resource,omitempty"`
	Details  map[string]any `json:"details,omitempty"`
	At       time.Time      `json:"at"`
}

// NotificationKind names what an operator is being told about
type NotificationKind string

const (
	NotifyEmergingPattern NotificationKind = "emerging_pattern"
	NotifyRuleCreated     NotificationKind = "rule_created"
	NotifyDriftDetected   NotificationKind = "drift_detected"
	NotifyAdminAnomaly    NotificationKind = "admin_anomaly"
)

// Notification is handed to the notifier; delivery is not the core's concern
type Notification struct {
	Kind     NotificationKind `json:"kind"`
	TenantID uuid.UUID        `json:"tenant_id"`
	Title    string           `json:"title"`
	Details  map[string]any   `json:"details,omitempty"`
	At       time.Time        `json:"at"`
}
