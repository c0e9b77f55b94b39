package alert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/vikramshenoy/faultline/internal/alert/notify"
	"github.com/vikramshenoy/faultline/internal/store"
	"github.com/vikramshenoy/faultline/pkg/models"
	"gopkg.in/yaml.v3"
)

// Matches checks a rule's optional environment/level filters against an
// event's environment and an issue's level. Empty filter means match all.
func Matches(rule *models.AlertRule, environment, level string) bool {
	if rule.Environment != "" && rule.Environment != environment {
		return false
	}
	if rule.Level != "" && rule.Level != level {
		return false
	}
	return true
}

// ruleFile is the YAML shape of a rule seed file.
type ruleFile struct {
	Rules []ruleSeed `yaml:"rules"`
}

type ruleSeed struct {
	ProjectID         string               `yaml:"project_id"`
	Name              string               `yaml:"name"`
	Trigger           string               `yaml:"trigger"`
	Threshold         int                  `yaml:"threshold"`
	TimeWindowSeconds int                  `yaml:"time_window_seconds"`
	Environment       string               `yaml:"environment"`
	Level             string               `yaml:"level"`
	CooldownMinutes   int                  `yaml:"cooldown_minutes"`
	Actions           []models.AlertAction `yaml:"actions"`
}

var validTriggers = map[string]bool{
	models.TriggerNewIssue:        true,
	models.TriggerIssueRegression: true,
	models.TriggerThreshold:       true,
	models.TriggerSpike:           true,
	models.TriggerCustom:          true,
}

// ValidateRule checks a rule's shape before it is persisted.
func ValidateRule(rule *models.AlertRule) error {
	if rule.Name == "" {
		return errors.New("rule name is required")
	}
	if !validTriggers[rule.TriggerType] {
		return fmt.Errorf("unknown trigger %q", rule.TriggerType)
	}
	if rule.TriggerType == models.TriggerThreshold {
		if rule.Threshold <= 0 {
			return errors.New("threshold rules need a positive threshold")
		}
		if rule.TimeWindowSeconds <= 0 {
			return errors.New("threshold rules need a positive time window")
		}
	}
	if rule.CooldownMinutes < 0 {
		return errors.New("cooldown must not be negative")
	}
	for i, action := range rule.Actions {
		if !notify.KnownChannel(action.Channel) {
			return fmt.Errorf("action %d: unknown channel %q", i, action.Channel)
		}
	}
	return nil
}

// LoadRuleFile parses a YAML rule seed file into alert rules.
func LoadRuleFile(path string) ([]*models.AlertRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rule file: %w", err)
	}

	var f ruleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse rule file: %w", err)
	}

	now := time.Now().UTC()
	rules := make([]*models.AlertRule, 0, len(f.Rules))
	for i, seed := range f.Rules {
		projectID, err := uuid.Parse(seed.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("rule %d: invalid project_id %q", i, seed.ProjectID)
		}
		rule := &models.AlertRule{
			ID:                uuid.New(),
			ProjectID:         projectID,
			Name:              seed.Name,
			TriggerType:       seed.Trigger,
			Threshold:         seed.Threshold,
			TimeWindowSeconds: seed.TimeWindowSeconds,
			Environment:       seed.Environment,
			Level:             seed.Level,
			Actions:           seed.Actions,
			CooldownMinutes:   seed.CooldownMinutes,
			Enabled:           true,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if err := ValidateRule(rule); err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// SeedRules inserts seed rules, skipping ones that already exist by
// (project, name).
func SeedRules(ctx context.Context, s store.Store, rules []*models.AlertRule) error {
	for _, rule := range rules {
		err := s.CreateAlertRule(ctx, rule)
		if errors.Is(err, store.ErrDuplicateKey) {
			slog.Debug("rule seed already present", "project_id", rule.ProjectID, "name", rule.Name)
			continue
		}
		if err != nil {
			return fmt.Errorf("seed rule %q: %w", rule.Name, err)
		}
	}
	return nil
}
