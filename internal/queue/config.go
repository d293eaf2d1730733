package queue

import (
	"fmt"
	"time"

	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/domain"
)

// Compliance check names accepted in Config.MandatoryChecks.
const (
	CheckDisclosure    = "disclosure"
	CheckHealthClaims  = "health_claims"
	CheckIncomeClaims  = "income_claims"
	CheckScriptPresent = "script_present"
	CheckArtifacts     = "artifacts"
)

// Config is the compliance section of the kernel policy.
type Config struct {
	MandatoryChecks        []string       `yaml:"mandatory_checks"`
	AdvertisingVocabulary  []string       `yaml:"advertising_vocabulary"`
	AffiliateVocabulary    []string       `yaml:"affiliate_vocabulary"`
	HealthClaimTerms       []string       `yaml:"health_claim_terms"`
	IncomeClaimTerms       []string       `yaml:"income_claim_terms"`
	ComplianceTimeoutHours float64        `yaml:"compliance_timeout_hours"`
	MaxQueueSize           int            `yaml:"max_queue_size"`
	AutoCleanupDays        int            `yaml:"auto_cleanup_days"`
	FeedbackRules          []FeedbackRule `yaml:"feedback_rules"`
}

func DefaultConfig() Config {
	return Config{
		MandatoryChecks:       []string{CheckDisclosure, CheckHealthClaims, CheckIncomeClaims, CheckScriptPresent, CheckArtifacts},
		AdvertisingVocabulary: []string{"ad", "advertisement", "sponsored", "paid partnership"},
		AffiliateVocabulary:   []string{"affiliate", "commission", "earn from"},
		HealthClaimTerms: []string{
			"cure", "cures", "treats", "heals", "prevents disease", "fda approved",
			"clinically proven", "miracle", "guaranteed results", "no side effects",
		},
		IncomeClaimTerms: []string{
			"get rich", "guaranteed income", "passive income guaranteed", "quit your job", "make $",
		},
		ComplianceTimeoutHours: 24,
		MaxQueueSize:           100,
		AutoCleanupDays:        30,
		FeedbackRules:          DefaultFeedbackRules(),
	}
}

// Validate rejects settings the queue cannot run with.
func (c Config) Validate() error {
	for _, name := range c.MandatoryChecks {
		if _, ok := checks[name]; !ok {
			return fmt.Errorf("unknown compliance check %q: %w", name, domain.ErrInvalidInput)
		}
	}
	if len(c.AdvertisingVocabulary) == 0 || len(c.AffiliateVocabulary) == 0 {
		return fmt.Errorf("disclosure vocabulary must list advertising and affiliate tokens: %w", domain.ErrInvalidInput)
	}
	if c.MaxQueueSize <= 0 {
		return fmt.Errorf("max_queue_size must be positive: %w", domain.ErrInvalidInput)
	}
	if c.ComplianceTimeoutHours <= 0 {
		return fmt.Errorf("compliance_timeout_hours must be positive: %w", domain.ErrInvalidInput)
	}
	return nil
}

func (c Config) complianceTimeout() time.Duration {
	return time.Duration(c.ComplianceTimeoutHours * float64(time.Hour))
}

func (c Config) cleanupAge() time.Duration {
	return time.Duration(c.AutoCleanupDays) * 24 * time.Hour
}
