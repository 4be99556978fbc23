package validator

import (
	"time"

	"github.com/google/uuid"
)

// Severity classifies how strongly a finding indicates tampering.
type Severity string

const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// Violation and suspicion type tags. Violations are findings that cannot
// be legitimate; suspicions are anomalous but not conclusive.
const (
	ViolationExcessiveOfflineTime   = "EXCESSIVE_OFFLINE_TIME"
	ViolationTimestampRegression    = "TIMESTAMP_REGRESSION"
	ViolationExcessiveProgression   = "EXCESSIVE_PROGRESSION_RATE"
	ViolationProductionOverflow     = "PRODUCTION_OVERFLOW"
	ViolationImpossibleRate         = "IMPOSSIBLE_PRODUCTION_RATE"
	ViolationNegativeResource       = "NEGATIVE_RESOURCE"
	ViolationInvalidCurrencyGain    = "INVALID_CURRENCY_GAIN"
	ViolationBuildingLevelJump      = "BUILDING_LEVEL_JUMP"
	ViolationBuildingLevelRegress   = "BUILDING_LEVEL_REGRESSION"
	ViolationUnaffordableUpgrade    = "UNAFFORDABLE_UPGRADE"
	ViolationInvalidUnlock          = "INVALID_UNLOCK"
	ViolationInvalidAchievement     = "INVALID_ACHIEVEMENT"
	ViolationInvalidUpgrade         = "INVALID_UPGRADE"
	ViolationRequirementNotMet      = "REQUIREMENT_NOT_MET"
	ViolationMultiplePrestige       = "MULTIPLE_PRESTIGE"
	ViolationPrestigeCountRegress   = "PRESTIGE_COUNT_REGRESSION"
	ViolationEarlyPrestige          = "EARLY_PRESTIGE"
	ViolationExcessivePrestigeGain  = "EXCESSIVE_PRESTIGE_GAIN"
	SuspicionPlaytimeMismatch       = "PLAYTIME_MISMATCH"
	SuspicionBalanceExceedsLifetime = "BALANCE_EXCEEDS_LIFETIME"
	SuspicionLifetimeRegression     = "LIFETIME_REGRESSION"
)

// SecurityEvent is one validator finding.
type SecurityEvent struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Severity  Severity               `json:"severity"`
	Message   string                 `json:"message"`
	Timestamp int64                  `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// ValidationResult aggregates all findings for one state transition.
type ValidationResult struct {
	IsValid            bool            `json:"isValid"`
	Violations         []SecurityEvent `json:"violations"`
	SuspiciousActivity []SecurityEvent `json:"suspiciousActivity"`
	ConfidenceScore    float64         `json:"confidenceScore"`
	Recommendations    []string        `json:"recommendations"`
}

// collector accumulates findings across the check pipeline.
type collector struct {
	violations []SecurityEvent
	suspicious []SecurityEvent
}

func (c *collector) violation(severity Severity, typ, message string, metadata map[string]interface{}) {
	c.violations = append(c.violations, newEvent(severity, typ, message, metadata))
}

func (c *collector) suspicion(severity Severity, typ, message string, metadata map[string]interface{}) {
	c.suspicious = append(c.suspicious, newEvent(severity, typ, message, metadata))
}

func newEvent(severity Severity, typ, message string, metadata map[string]interface{}) SecurityEvent {
	return SecurityEvent{
		ID:        uuid.NewString(),
		Type:      typ,
		Severity:  severity,
		Message:   message,
		Timestamp: time.Now().UnixMilli(),
		Metadata:  metadata,
	}
}
