package models

import (
	"time"

	"github.com/google/uuid"
)

// Issue statuses.
const (
	IssueUnresolved = "unresolved"
	IssueResolved   = "resolved"
	IssueIgnored    = "ignored"
)

// Issue is the durable aggregate of all events sharing one fingerprint hash
// within a project. One row per (project_id, fingerprint_hash); writes are
// full-row replaces, so concurrent counter bumps are approximate.
type Issue struct {
	ID              uuid.UUID `db:"id"               json:"id"`
	ProjectID       uuid.UUID `db:"project_id"       json:"project_id"`
	ShortID         string    `db:"short_id"         json:"short_id"`
	FingerprintHash string    `db:"fingerprint_hash" json:"fingerprint_hash"`
	Title           string    `db:"title"            json:"title"`
	Culprit         string    `db:"culprit"          json:"culprit,omitempty"`
	Level           string    `db:"level"            json:"level"`
	Status          string    `db:"status"           json:"status"`
	FirstSeen       time.Time `db:"first_seen"       json:"first_seen"`
	LastSeen        time.Time `db:"last_seen"        json:"last_seen"`
	EventCount      int64     `db:"event_count"      json:"event_count"`
	UserCount       int64     `db:"user_count"       json:"user_count"`
	// UserSketch is a serialized hyperloglog sketch backing UserCount.
	UserSketch   []byte    `db:"user_sketch"  json:"-"`
	Environments []string  `db:"environments" json:"environments"`
	Releases     []string  `db:"releases"     json:"releases"`
	CreatedAt    time.Time `db:"created_at"   json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"   json:"updated_at"`
}
