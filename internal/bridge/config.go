package bridge

import (
	"fmt"
	"math"

	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/domain"
)

// Weights combine the qualification sub-scores and must sum to 1.
type Weights struct {
	Engagement  float64 `yaml:"engagement"`
	Resonance   float64 `yaml:"content_resonance"`
	Demographic float64 `yaml:"demographic_match"`
	Intent      float64 `yaml:"intent"`
	Traffic     float64 `yaml:"traffic_quality"`
	Conversion  float64 `yaml:"conversion"`
}

func (w Weights) Sum() float64 {
	return w.Engagement + w.Resonance + w.Demographic + w.Intent + w.Traffic + w.Conversion
}

// Thresholds are the inclusive lower bounds of each lead tier.
type Thresholds struct {
	Hot       float64 `yaml:"hot"`
	Warm      float64 `yaml:"warm"`
	Qualified float64 `yaml:"qualified"`
}

type Config struct {
	Weights          Weights    `yaml:"lead_scoring_weights"`
	Thresholds       Thresholds `yaml:"qualification_thresholds"`
	LeadsPerView     float64    `yaml:"leads_per_view"`
	MaxLeadsPerEvent int        `yaml:"max_leads_per_event"`
	TrafficQuality   float64    `yaml:"traffic_quality"`
}

func DefaultConfig() Config {
	return Config{
		Weights: Weights{
			Engagement:  0.25,
			Resonance:   0.20,
			Demographic: 0.20,
			Intent:      0.15,
			Traffic:     0.10,
			Conversion:  0.10,
		},
		Thresholds:       Thresholds{Hot: 0.8, Warm: 0.6, Qualified: 0.4},
		LeadsPerView:     0.001,
		MaxLeadsPerEvent: 50,
		TrafficQuality:   0.8,
	}
}

func (c Config) Validate() error {
	if math.Abs(c.Weights.Sum()-1) > 1e-9 {
		return fmt.Errorf("lead scoring weights sum to %v, want 1: %w", c.Weights.Sum(), domain.ErrInvalidInput)
	}
	t := c.Thresholds
	if !(t.Hot >= t.Warm && t.Warm >= t.Qualified && t.Qualified > 0 && t.Hot <= 1) {
		return fmt.Errorf("qualification thresholds %+v not ordered within (0,1]: %w", t, domain.ErrInvalidInput)
	}
	if c.LeadsPerView < 0 || c.MaxLeadsPerEvent < 0 {
		return fmt.Errorf("lead estimation settings must not be negative: %w", domain.ErrInvalidInput)
	}
	return nil
}
