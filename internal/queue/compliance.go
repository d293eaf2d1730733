package queue

import (
	"slices"
	"sort"
	"strings"
	"unicode"

	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/domain"
)

// MissingDisclosureIssue is reported whenever a script lacks a token from
// either disclosure vocabulary.
const MissingDisclosureIssue = "Missing mandatory disclosure elements"

// Result is the outcome of one compliance validation.
type Result struct {
	Compliance domain.ComplianceStatus
	Issues     []string
}

type finding struct {
	issue    string
	blocking bool
}

// A check inspects an item. generated is false until the first artifacts
// arrive, in which case only plan-level content is available.
type checkFunc func(cfg *Config, item domain.QueueItem, generated bool) []finding

var checks = map[string]checkFunc{
	CheckDisclosure:    checkDisclosure,
	CheckHealthClaims:  checkHealthClaims,
	CheckIncomeClaims:  checkIncomeClaims,
	CheckScriptPresent: checkScriptPresent,
	CheckArtifacts:     checkArtifacts,
}

// Checker runs the configured mandatory checks.
type Checker struct {
	cfg Config
}

func NewChecker(cfg Config) *Checker { return &Checker{cfg: cfg} }

// Validate applies every mandatory check to item. Before generation the
// outcome is always PENDING_APPROVAL with any issues found so far; after
// generation a blocking issue means NON_COMPLIANT, any other issue
// REQUIRES_REVIEW, and none COMPLIANT. The post-generation and approval
// checks are the same function.
func (c *Checker) Validate(item domain.QueueItem) Result {
	generated := len(item.Artifacts) > 0
	var issues []string
	blocking, review := false, false
	for _, name := range c.cfg.MandatoryChecks {
		fn, ok := checks[name]
		if !ok {
			continue
		}
		for _, f := range fn(&c.cfg, item, generated) {
			if slices.Contains(issues, f.issue) {
				continue
			}
			issues = append(issues, f.issue)
			if f.blocking {
				blocking = true
			} else {
				review = true
			}
		}
	}

	res := Result{Issues: issues}
	switch {
	case !generated:
		res.Compliance = domain.CompliancePending
	case blocking:
		res.Compliance = domain.ComplianceNonCompliant
	case review:
		res.Compliance = domain.ComplianceRequiresReview
	default:
		res.Compliance = domain.ComplianceCompliant
	}
	return res
}

// HasDisclosures reports whether script carries a token from both
// vocabularies. Matching is plain substring, so "ad" also matches inside
// longer words.
func (c *Checker) HasDisclosures(script string) bool {
	return len(missingDisclosures(&c.cfg, script)) == 0
}

func missingDisclosures(cfg *Config, script string) []string {
	lower := strings.ToLower(script)
	var missing []string
	if !containsAny(lower, cfg.AdvertisingVocabulary) {
		missing = append(missing, domain.DisclosureAdvertising)
	}
	if !containsAny(lower, cfg.AffiliateVocabulary) {
		missing = append(missing, domain.DisclosureAffiliate)
	}
	return missing
}

func containsAny(text string, tokens []string) bool {
	for _, t := range tokens {
		if t != "" && strings.Contains(text, strings.ToLower(t)) {
			return true
		}
	}
	return false
}

func checkDisclosure(cfg *Config, item domain.QueueItem, generated bool) []finding {
	var out []finding
	for _, d := range domain.MandatoryDisclosures {
		if !slices.Contains(item.RequiredDisclosures, d) {
			out = append(out, finding{issue: MissingDisclosureIssue, blocking: true})
			break
		}
	}
	if !generated {
		return out
	}
	missing := missingDisclosures(cfg, item.ScriptContent())
	if len(missing) > 0 {
		out = append(out, finding{issue: MissingDisclosureIssue, blocking: true})
		for _, d := range missing {
			out = append(out, finding{issue: d + " not found in script", blocking: true})
		}
	}
	return out
}

func checkHealthClaims(cfg *Config, item domain.QueueItem, _ bool) []finding {
	return claimFindings(scriptText(item), cfg.HealthClaimTerms, "Unverified health claim")
}

func checkIncomeClaims(cfg *Config, item domain.QueueItem, _ bool) []finding {
	return claimFindings(scriptText(item), cfg.IncomeClaimTerms, "Unverified income claim")
}

func claimFindings(text string, terms []string, label string) []finding {
	var out []finding
	for _, t := range terms {
		if containsTerm(text, strings.ToLower(t)) {
			out = append(out, finding{issue: label + `: "` + t + `"`})
		}
	}
	return out
}

func checkScriptPresent(_ *Config, item domain.QueueItem, generated bool) []finding {
	if generated && strings.TrimSpace(item.ScriptContent()) == "" {
		return []finding{{issue: "Script content is empty", blocking: true}}
	}
	return nil
}

func checkArtifacts(_ *Config, item domain.QueueItem, generated bool) []finding {
	if generated && item.Artifacts[domain.ArtifactVideo] == "" {
		return []finding{{issue: "Missing video artifact", blocking: true}}
	}
	return nil
}

// scriptText joins every script field in key order, lowercased.
func scriptText(item domain.QueueItem) string {
	keys := make([]string, 0, len(item.Script))
	for k := range item.Script {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		b.WriteString(strings.ToLower(item.Script[k]))
		b.WriteByte('\n')
	}
	return b.String()
}

// containsTerm matches term in text only at word boundaries. A term ending
// in punctuation, such as "make $", needs no boundary after it.
func containsTerm(text, term string) bool {
	if term == "" {
		return false
	}
	for from := 0; ; {
		i := strings.Index(text[from:], term)
		if i < 0 {
			return false
		}
		start := from + i
		end := start + len(term)
		if boundaryBefore(text, start) && (!wordRune(lastRune(term)) || boundaryAfter(text, end)) {
			return true
		}
		from = start + 1
	}
}

func boundaryBefore(text string, i int) bool {
	if i == 0 {
		return true
	}
	r := rune(text[i-1])
	return !wordRune(r)
}

func boundaryAfter(text string, i int) bool {
	if i >= len(text) {
		return true
	}
	return !wordRune(rune(text[i]))
}

func lastRune(s string) rune {
	r := []rune(s)
	return r[len(r)-1]
}

func wordRune(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }
