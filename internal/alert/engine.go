// Package alert evaluates alert rules against pipeline signals and periodic
// threshold checks, enforces per-rule cooldown, and fans out firings to the
// configured notification channels.
package alert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/vikramshenoy/faultline/internal/alert/notify"
	"github.com/vikramshenoy/faultline/internal/cache"
	"github.com/vikramshenoy/faultline/internal/store"
	"github.com/vikramshenoy/faultline/internal/telemetry"
	"github.com/vikramshenoy/faultline/pkg/models"
)

// cooldownLockTTL bounds the advisory lock around the cooldown check-and-set.
const cooldownLockTTL = 10 * time.Second

// Evaluator is the extension point for spike/custom triggers. It reports
// whether the rule's condition holds and a human-readable detail line.
type Evaluator func(ctx context.Context, rule *models.AlertRule) (bool, string, error)

// Engine evaluates rules. Each rule is independent; one rule's failure never
// affects another's evaluation.
type Engine struct {
	store           store.Store
	locker          cache.Locker
	notifyCfg       notify.Config
	cooldownDefault time.Duration
	evaluators      map[string]Evaluator
}

func NewEngine(s store.Store, locker cache.Locker, notifyCfg notify.Config, cooldownDefault time.Duration) *Engine {
	return &Engine{
		store:           s,
		locker:          locker,
		notifyCfg:       notifyCfg,
		cooldownDefault: cooldownDefault,
		evaluators:      make(map[string]Evaluator),
	}
}

// RegisterEvaluator plugs in a spike/custom trigger body. Rules with an
// unregistered trigger are skipped.
func (e *Engine) RegisterEvaluator(triggerType string, ev Evaluator) {
	e.evaluators[triggerType] = ev
}

// CheckNewIssue fires every enabled NEW_ISSUE rule whose filters match a
// freshly created issue.
func (e *Engine) CheckNewIssue(ctx context.Context, issue *models.Issue, event *models.RawEvent) {
	e.checkIssueRules(ctx, models.TriggerNewIssue, issue, event,
		fmt.Sprintf("New issue %s", issue.ShortID),
		fmt.Sprintf("%s\nCulprit: %s", issue.Title, issue.Culprit))
}

// CheckRegression fires every enabled ISSUE_REGRESSION rule whose filters
// match a resolved issue that just reopened.
func (e *Engine) CheckRegression(ctx context.Context, issue *models.Issue, event *models.RawEvent) {
	e.checkIssueRules(ctx, models.TriggerIssueRegression, issue, event,
		fmt.Sprintf("Regression in %s", issue.ShortID),
		fmt.Sprintf("%s\nPreviously resolved, seen again at %s", issue.Title, issue.LastSeen.Format(time.RFC3339)))
}

func (e *Engine) checkIssueRules(ctx context.Context, triggerType string, issue *models.Issue, event *models.RawEvent, title, message string) {
	rules, err := e.store.ListAlertRules(ctx, issue.ProjectID, true)
	if err != nil {
		slog.Error("alert rule listing failed", "project_id", issue.ProjectID, "error", err)
		return
	}

	for _, rule := range rules {
		if rule.TriggerType != triggerType {
			continue
		}
		if !Matches(rule, event.Environment, issue.Level) {
			continue
		}
		e.fire(ctx, rule, &issue.ID, title, message)
	}
}

// CheckThresholds runs the periodic evaluation paths for a project:
// THRESHOLD rules count trailing-window events; SPIKE/CUSTOM rules defer to
// registered evaluators.
func (e *Engine) CheckThresholds(ctx context.Context, projectID uuid.UUID) error {
	rules, err := e.store.ListAlertRules(ctx, projectID, true)
	if err != nil {
		return fmt.Errorf("list alert rules: %w", err)
	}

	for _, rule := range rules {
		switch rule.TriggerType {
		case models.TriggerThreshold:
			e.checkThresholdRule(ctx, rule)
		case models.TriggerSpike, models.TriggerCustom:
			ev, ok := e.evaluators[rule.TriggerType]
			if !ok {
				slog.Debug("no evaluator registered for trigger", "trigger", rule.TriggerType, "rule_id", rule.ID)
				continue
			}
			hit, detail, err := ev(ctx, rule)
			if err != nil {
				slog.Error("rule evaluator failed", "rule_id", rule.ID, "error", err)
				continue
			}
			if hit {
				e.fire(ctx, rule, nil, fmt.Sprintf("Alert: %s", rule.Name), detail)
			}
		}
	}
	return nil
}

func (e *Engine) checkThresholdRule(ctx context.Context, rule *models.AlertRule) {
	window := time.Duration(rule.TimeWindowSeconds) * time.Second
	if window <= 0 {
		window = time.Minute
	}

	count, err := e.store.CountEvents(ctx, store.EventFilter{
		ProjectID:   rule.ProjectID,
		Environment: rule.Environment,
		Level:       rule.Level,
		Since:       time.Now().Add(-window),
	})
	if err != nil {
		slog.Error("threshold count failed", "rule_id", rule.ID, "error", err)
		return
	}
	if count < int64(rule.Threshold) {
		return
	}

	e.fire(ctx, rule, nil,
		fmt.Sprintf("Threshold exceeded: %s", rule.Name),
		fmt.Sprintf("%d events in the last %s (threshold %d)", count, window, rule.Threshold))
}

// fire creates an alert for a rule unless it is inside its cooldown window,
// then fans out to each configured channel independently. The cooldown
// check-and-set runs under a best-effort advisory lock keyed by rule id.
func (e *Engine) fire(ctx context.Context, rule *models.AlertRule, issueID *uuid.UUID, title, message string) {
	err := e.locker.WithLock(ctx, cache.RuleLockKey(rule.ID), cooldownLockTTL, func(ctx context.Context) error {
		// The rule copy predates the lock; a holder we just waited on may
		// have fired. Re-read last_triggered_at so the check sees it.
		fresh, err := e.store.GetAlertRule(ctx, rule.ID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil
			}
			return fmt.Errorf("refresh rule: %w", err)
		}
		rule.LastTriggeredAt = fresh.LastTriggeredAt

		now := time.Now().UTC()
		if e.inCooldown(rule, now) {
			telemetry.AlertsSuppressed.WithLabelValues(rule.TriggerType).Inc()
			slog.Debug("alert suppressed by cooldown", "rule_id", rule.ID,
				"last_triggered_at", rule.LastTriggeredAt)
			return nil
		}

		alert := &models.Alert{
			ID:        uuid.New(),
			RuleID:    rule.ID,
			ProjectID: rule.ProjectID,
			IssueID:   issueID,
			Title:     title,
			Message:   message,
			Status:    models.AlertTriggered,
			CreatedAt: now,
		}
		if err := e.store.CreateAlert(ctx, alert); err != nil {
			return fmt.Errorf("create alert: %w", err)
		}
		if err := e.store.UpdateRuleLastTriggered(ctx, rule.ID, now); err != nil {
			slog.Error("cooldown timestamp update failed", "rule_id", rule.ID, "error", err)
		}
		rule.LastTriggeredAt = &now

		telemetry.AlertsFired.WithLabelValues(rule.TriggerType).Inc()
		slog.Info("alert fired", "rule_id", rule.ID, "trigger", rule.TriggerType, "alert_id", alert.ID)

		e.deliver(ctx, rule, alert)
		return nil
	})
	if err != nil {
		slog.Error("alert firing failed", "rule_id", rule.ID, "error", err)
	}
}

func (e *Engine) inCooldown(rule *models.AlertRule, now time.Time) bool {
	if rule.LastTriggeredAt == nil {
		return false
	}
	cooldown := time.Duration(rule.CooldownMinutes) * time.Minute
	if cooldown <= 0 {
		cooldown = e.cooldownDefault
	}
	return now.Before(rule.LastTriggeredAt.Add(cooldown))
}

// deliver fans out to every action. Each channel's outcome is recorded
// against the alert; one channel failing never blocks the rest.
func (e *Engine) deliver(ctx context.Context, rule *models.AlertRule, alert *models.Alert) {
	if len(rule.Actions) == 0 {
		return
	}

	project := rule.ProjectID.String()
	if p, err := e.store.GetProject(ctx, rule.ProjectID); err == nil {
		project = p.Name
	}

	msg := notify.Message{
		Title:     alert.Title,
		Body:      alert.Message,
		Level:     rule.Level,
		Project:   project,
		CreatedAt: alert.CreatedAt,
	}
	if alert.IssueID != nil {
		msg.IssueID = alert.IssueID.String()
	}

	deliveries := make([]models.Delivery, 0, len(rule.Actions))
	var anySent bool
	for _, action := range rule.Actions {
		delivery := models.Delivery{
			Channel:     action.Channel,
			AttemptedAt: time.Now().UTC(),
		}

		ch, err := notify.New(action, e.notifyCfg)
		if err == nil {
			err = ch.Send(ctx, msg)
		}
		if err != nil {
			delivery.Status = models.DeliveryFailed
			delivery.Error = err.Error()
			telemetry.Notifications.WithLabelValues(action.Channel, "failed").Inc()
			slog.Error("notification delivery failed", "alert_id", alert.ID,
				"channel", action.Channel, "error", err)
		} else {
			delivery.Status = models.DeliverySent
			anySent = true
			telemetry.Notifications.WithLabelValues(action.Channel, "sent").Inc()
		}
		deliveries = append(deliveries, delivery)
	}

	var deliveredAt *time.Time
	if anySent {
		t := time.Now().UTC()
		deliveredAt = &t
	}
	if err := e.store.UpdateAlertDeliveries(ctx, alert.ID, deliveries, deliveredAt); err != nil {
		slog.Error("delivery bookkeeping failed", "alert_id", alert.ID, "error", err)
	}
}
