package cache

import (
	"fmt"

	"github.com/google/uuid"
)

func IssueLockKey(projectID uuid.UUID, fingerprintHash string) string {
	return fmt.Sprintf("lock:issue:%s:%s", projectID, fingerprintHash)
}

func RuleLockKey(ruleID uuid.UUID) string {
	return fmt.Sprintf("lock:rule:%s", ruleID)
}

func RateLimitKey(keyPrefix string) string {
	return fmt.Sprintf("ratelimit:%s", keyPrefix)
}

func StatsKey(projectID uuid.UUID, rangeHash string) string {
	return fmt.Sprintf("stats:%s:%s", projectID, rangeHash)
}
