package models

import (
	"time"

	"github.com/google/uuid"
)

// Alert rule trigger types.
const (
	TriggerNewIssue        = "new_issue"
	TriggerIssueRegression = "issue_regression"
	TriggerThreshold       = "threshold"
	TriggerSpike           = "spike"
	TriggerCustom          = "custom"
)

// Alert statuses.
const (
	AlertTriggered    = "triggered"
	AlertAcknowledged = "acknowledged"
	AlertResolved     = "resolved"
)

// Delivery outcomes for a single notification channel attempt.
const (
	DeliverySent   = "sent"
	DeliveryFailed = "failed"
)

// AlertAction is one configured notification target of a rule.
type AlertAction struct {
	Channel string `json:"channel" yaml:"channel"`
	// Target is channel specific: a webhook URL, a chat id, an email address.
	Target string `json:"target" yaml:"target"`
	// Token carries a bot/API token for channels that need one.
	Token string `json:"token,omitempty" yaml:"token,omitempty"`
}

// AlertRule is a project-owned alerting rule, evaluated independently of
// other rules. A rule fires at most once per cooldown window.
type AlertRule struct {
	ID                uuid.UUID     `db:"id"                  json:"id"`
	ProjectID         uuid.UUID     `db:"project_id"          json:"project_id"`
	Name              string        `db:"name"                json:"name"`
	TriggerType       string        `db:"trigger_type"        json:"trigger_type"`
	Threshold         int           `db:"threshold"           json:"threshold,omitempty"`
	TimeWindowSeconds int           `db:"time_window_seconds" json:"time_window_seconds,omitempty"`
	Environment       string        `db:"environment"         json:"environment,omitempty"`
	Level             string        `db:"level"               json:"level,omitempty"`
	Actions           []AlertAction `db:"actions"             json:"actions"`
	CooldownMinutes   int           `db:"cooldown_minutes"    json:"cooldown_minutes"`
	LastTriggeredAt   *time.Time    `db:"last_triggered_at"   json:"last_triggered_at,omitempty"`
	Enabled           bool          `db:"enabled"             json:"enabled"`
	CreatedAt         time.Time     `db:"created_at"          json:"created_at"`
	UpdatedAt         time.Time     `db:"updated_at"          json:"updated_at"`
}

// Delivery records the outcome of one notification channel attempt for an
// alert. Kept as a list so configuring multiple actions preserves every
// channel's result rather than only the last one attempted.
type Delivery struct {
	Channel     string    `json:"channel"`
	Status      string    `json:"status"`
	Error       string    `json:"error,omitempty"`
	AttemptedAt time.Time `json:"attempted_at"`
}

// Alert is one firing of a rule. History is immutable except status and
// delivery bookkeeping.
type Alert struct {
	ID          uuid.UUID  `db:"id"            json:"id"`
	RuleID      uuid.UUID  `db:"rule_id"       json:"rule_id"`
	ProjectID   uuid.UUID  `db:"project_id"    json:"project_id"`
	IssueID     *uuid.UUID `db:"issue_id"      json:"issue_id,omitempty"`
	Title       string     `db:"title"         json:"title"`
	Message     string     `db:"message"       json:"message"`
	Status      string     `db:"status"        json:"status"`
	Deliveries  []Delivery `db:"deliveries"    json:"deliveries,omitempty"`
	DeliveredAt *time.Time `db:"delivered_at"  json:"delivered_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at"    json:"created_at"`
}
