package database

import (
	"encoding/json"
	"log"
	"time"

	"github.com/bitcoinsovereign/academy/internal/models"
	"github.com/google/uuid"
)

// LogSecurityEvent writes an append-only audit record. It is best-effort:
// failures are logged and swallowed so the triggering request is never
// aborted by its own audit trail.
func LogSecurityEvent(event models.SecurityEvent) {
	db := GetConnection()
	if db == nil {
		log.Printf("[AUDIT] Dropping security event %s: database not initialized", event.Type)
		return
	}

	var metadata interface{}
	if event.Metadata != nil {
		raw, err := json.Marshal(event.Metadata)
		if err != nil {
			log.Printf("[AUDIT] Failed to encode metadata for %s: %v", event.Type, err)
		} else {
			metadata = string(raw)
		}
	}

	_, err := db.Exec(Rebind(
		`INSERT INTO security_events (id, event_type, severity, user_id, ip_address, user_agent, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`),
		uuid.New().String(),
		string(event.Type),
		string(event.Severity),
		event.UserID,
		event.IPAddress,
		event.UserAgent,
		metadata,
		time.Now().UTC(),
	)
	if err != nil {
		log.Printf("[AUDIT] Failed to write security event %s: %v", event.Type, err)
	}
}

// SecurityEventsAfter returns audit records created strictly after the given
// time, oldest first. The exclusive bound lets the archive exporter resume
// from the timestamp of the last event it shipped without re-reading it.
func SecurityEventsAfter(after time.Time, limit int) ([]models.SecurityEvent, error) {
	db := GetConnection()
	rows, err := db.Query(Rebind(
		`SELECT id, event_type, severity, user_id, ip_address, user_agent, metadata, created_at
		 FROM security_events
		 WHERE created_at > $1
		 ORDER BY created_at ASC
		 LIMIT $2`),
		after, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.SecurityEvent
	for rows.Next() {
		var ev models.SecurityEvent
		var metadata *string
		if err := rows.Scan(&ev.ID, &ev.Type, &ev.Severity, &ev.UserID, &ev.IPAddress, &ev.UserAgent, &metadata, &ev.CreatedAt); err != nil {
			return nil, err
		}
		if metadata != nil && *metadata != "" {
			if err := json.Unmarshal([]byte(*metadata), &ev.Metadata); err != nil {
				log.Printf("[AUDIT] Bad metadata on event %s: %v", ev.ID, err)
			}
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
