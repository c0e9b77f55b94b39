package models

import (
	"time"

	"github.com/google/uuid"
)

// Project owns events, issues, and alert rules. ShortIDPrefix seeds the
// human-readable issue short ids (e.g. "API" → API-42).
type Project struct {
	ID            uuid.UUID `db:"id"              json:"id"`
	Name          string    `db:"name"            json:"name"`
	Slug          string    `db:"slug"            json:"slug"`
	ShortIDPrefix string    `db:"short_id_prefix" json:"short_id_prefix"`
	Platform      string    `db:"platform"        json:"platform,omitempty"`
	CreatedAt     time.Time `db:"created_at"      json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"      json:"updated_at"`
}

// IngestKey authenticates SDK traffic for one project. The raw key is shown
// once at creation; only a bcrypt hash and a lookup prefix are stored.
type IngestKey struct {
	ID         uuid.UUID  `db:"id"           json:"id"`
	ProjectID  uuid.UUID  `db:"project_id"   json:"project_id"`
	Name       string     `db:"name"         json:"name"`
	KeyHash    string     `db:"key_hash"     json:"-"`
	KeyPrefix  string     `db:"key_prefix"   json:"key_prefix"`
	Scopes     []string   `db:"scopes"       json:"scopes"`
	LastUsedAt *time.Time `db:"last_used_at" json:"last_used_at,omitempty"`
	DeletedAt  *time.Time `db:"deleted_at"   json:"deleted_at,omitempty"`
	CreatedAt  time.Time  `db:"created_at"   json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at"   json:"updated_at"`
}
