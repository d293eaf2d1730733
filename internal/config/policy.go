package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/bridge"
	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/catalog"
	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/pipeline"
	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/queue"
	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/scheduler"
	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/scorer"
)

// Policy is the kernel's tunable behaviour, read from a YAML file. Keys
// missing from the file keep their built-in defaults.
type Policy struct {
	Criteria   scorer.Criteria   `yaml:"performance_criteria"`
	TierBudget scorer.Budget     `yaml:"tier_budget"`
	Compliance queue.Config      `yaml:"compliance"`
	Leads      bridge.Config     `yaml:"lead_scoring"`
	Pipeline   pipeline.Settings `yaml:"pipeline"`
	Schedule   scheduler.Config  `yaml:"schedule"`
	Listing    catalog.Selectors `yaml:"listing_selectors"`
	// AvoidTerms are phrases the script prompt forbids on top of the
	// compliance vocabulary.
	AvoidTerms []string `yaml:"avoid_terms"`
}

func DefaultPolicy() Policy {
	return Policy{
		Criteria:   scorer.DefaultCriteria(),
		TierBudget: scorer.DefaultBudget(),
		Compliance: queue.DefaultConfig(),
		Leads:      bridge.DefaultConfig(),
		Pipeline:   pipeline.DefaultSettings(),
		Schedule:   scheduler.DefaultConfig(),
		Listing:    catalog.DefaultSelectors(),
	}
}

// LoadPolicy reads path over the defaults. An empty path or a missing file
// yields the defaults.
func LoadPolicy(path string) (Policy, error) {
	p := DefaultPolicy()
	if path == "" {
		return p, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return p, nil
	}
	if err != nil {
		return Policy{}, fmt.Errorf("reading policy: %w", err)
	}
	return ParsePolicy(data)
}

// ParsePolicy decodes data over the defaults and validates the result.
func ParsePolicy(data []byte) (Policy, error) {
	p := DefaultPolicy()
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Policy{}, fmt.Errorf("parsing policy: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

func (p Policy) Validate() error {
	if err := p.Compliance.Validate(); err != nil {
		return fmt.Errorf("compliance: %w", err)
	}
	if err := p.Leads.Validate(); err != nil {
		return fmt.Errorf("lead_scoring: %w", err)
	}
	if err := p.Pipeline.Validate(); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	if err := p.Schedule.Validate(); err != nil {
		return fmt.Errorf("schedule: %w", err)
	}
	if p.TierBudget.TargetHumanAvatarRatio < 0 || p.TierBudget.TargetHumanAvatarRatio > 1 {
		return fmt.Errorf("tier_budget: target_human_avatar_ratio %v outside [0,1]", p.TierBudget.TargetHumanAvatarRatio)
	}
	if _, err := scorer.New(p.Criteria, p.TierBudget, nil); err != nil {
		return fmt.Errorf("performance_criteria: %w", err)
	}
	return nil
}

// Marshal renders p as YAML, e.g. to seed a policy file.
func (p Policy) Marshal() ([]byte, error) {
	return yaml.Marshal(p)
}
