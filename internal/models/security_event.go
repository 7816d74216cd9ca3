package models

import (
	"time"
)

// SecurityEventType identifies the kind of audit record.
type SecurityEventType string

const (
	EventAuthFailure        SecurityEventType = "AUTH_FAILURE"
	EventRateLimitHit       SecurityEventType = "RATE_LIMIT_HIT"
	EventSuspiciousActivity SecurityEventType = "SUSPICIOUS_ACTIVITY"
	EventPaymentMismatch    SecurityEventType = "PAYMENT_MISMATCH"
	EventWebhookFailure     SecurityEventType = "WEBHOOK_FAILURE"
)

// SecurityEventSeverity grades an audit record.
type SecurityEventSeverity string

const (
	SeverityLow      SecurityEventSeverity = "LOW"
	SeverityMedium   SecurityEventSeverity = "MEDIUM"
	SeverityHigh     SecurityEventSeverity = "HIGH"
	SeverityCritical SecurityEventSeverity = "CRITICAL"
)

// SecurityEvent is an append-only audit record. Writing one is always
// best-effort: a failed insert must never abort the request that produced it.
type SecurityEvent struct {
	ID        string                 `json:"id" db:"id"`
	Type      SecurityEventType      `json:"event_type" db:"event_type"`
	Severity  SecurityEventSeverity  `json:"severity" db:"severity"`
	UserID    *string                `json:"user_id,omitempty" db:"user_id"`
	IPAddress string                 `json:"ip_address" db:"ip_address"`
	UserAgent string                 `json:"user_agent" db:"user_agent"`
	Metadata  map[string]interface{} `json:"metadata,omitempty" db:"metadata"`
	CreatedAt time.Time              `json:"created_at" db:"created_at"`
}
