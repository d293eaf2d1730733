package queue

import (
	"fmt"
	"regexp"

	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/domain"
)

// FeedbackRule turns reviewer phrases matching Pattern into a change.
type FeedbackRule struct {
	Pattern string              `yaml:"pattern"`
	Target  domain.ChangeTarget `yaml:"target"`
	Field   string              `yaml:"field"`
	Value   string              `yaml:"value"`
}

func DefaultFeedbackRules() []FeedbackRule {
	return []FeedbackRule{
		{Pattern: `(?i)\bhair\b.*\bshorter\b|\bshorter\s+hair\b`, Target: domain.TargetPersona, Field: "hair_length", Value: "short"},
		{Pattern: `(?i)\bhair\b.*\blonger\b|\blonger\s+hair\b`, Target: domain.TargetPersona, Field: "hair_length", Value: "long"},
		{Pattern: `(?i)\blighting\b.*\bblue\b|\bblue\s+lighting\b`, Target: domain.TargetVideo, Field: "lighting_color", Value: "blue"},
		{Pattern: `(?i)\blighting\b.*\bwarm(er)?\b|\bwarm(er)?\s+lighting\b`, Target: domain.TargetVideo, Field: "lighting_color", Value: "warm"},
		{Pattern: `(?i)\bfaster\b|\bspeed\s+(it\s+)?up\b`, Target: domain.TargetScript, Field: domain.ScriptPacingField, Value: "fast"},
		{Pattern: `(?i)\bslower\b|\bslow\s+(it\s+)?down\b`, Target: domain.TargetScript, Field: domain.ScriptPacingField, Value: "slow"},
	}
}

type compiledRule struct {
	re     *regexp.Regexp
	change domain.Change
}

// FeedbackParser maps free text to changes with a fixed rule table.
type FeedbackParser struct {
	rules []compiledRule
}

func NewFeedbackParser(rules []FeedbackRule) (*FeedbackParser, error) {
	p := &FeedbackParser{}
	for i, r := range rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("feedback rule %d: %w", i, err)
		}
		c := domain.Change{Target: r.Target, Field: r.Field, Value: r.Value}
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("feedback rule %d: %w", i, err)
		}
		p.rules = append(p.rules, compiledRule{re: re, change: c})
	}
	return p, nil
}

// Parse returns one change per field, in rule order. When two rules set the
// same field the later rule wins.
func (p *FeedbackParser) Parse(text string) []domain.Change {
	var out []domain.Change
	index := map[string]int{}
	for _, r := range p.rules {
		if !r.re.MatchString(text) {
			continue
		}
		key := r.change.Key()
		if i, ok := index[key]; ok {
			out[i] = r.change
			continue
		}
		index[key] = len(out)
		out = append(out, r.change)
	}
	return out
}

// needsRegeneration reports whether changes alter what the generators
// produce. Pacing and other script settings are re-validated only.
func needsRegeneration(changes []domain.Change) bool {
	for _, c := range changes {
		switch {
		case c.Target == domain.TargetPersona, c.Target == domain.TargetVideo:
			return true
		case c.Target == domain.TargetScript && c.Field == domain.ScriptContentField:
			return true
		}
	}
	return false
}
