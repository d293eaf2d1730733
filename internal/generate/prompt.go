package generate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/domain"
)

const defaultMaxPromptTokens = 1500

// Composer assembles the script-writing prompt for a queue item. Required
// context is always included; optional sections are added by weight until
// the token budget runs out.
type Composer struct {
	MaxPromptTokens int
	// AvoidTerms are phrases the script must never use (health and income claims).
	AvoidTerms []string
}

func NewComposer(maxPromptTokens int, avoid []string) *Composer {
	if maxPromptTokens <= 0 {
		maxPromptTokens = defaultMaxPromptTokens
	}
	return &Composer{MaxPromptTokens: maxPromptTokens, AvoidTerms: avoid}
}

type section struct {
	title  string
	body   string
	weight float64
}

// Compose returns the system and user messages for item.
func (c *Composer) Compose(item domain.QueueItem) (system, user string) {
	return c.systemPrompt(), c.userPrompt(item)
}

func (c *Composer) systemPrompt() string {
	var sb strings.Builder
	sb.WriteString("You write 30 to 45 second vertical video scripts for affiliate product promotions.\n")
	sb.WriteString("Open with the hook, describe the problem, explain the mechanism plainly and end with a call to action.\n")
	sb.WriteString("The script must say that it is an ad (use \"#ad\") and that you earn a commission from affiliate links.\n")
	sb.WriteString("Describe how ingredients are studied; never promise outcomes.")
	if len(c.AvoidTerms) > 0 {
		sb.WriteString("\nNever use these phrases: ")
		sb.WriteString(strings.Join(c.AvoidTerms, ", "))
		sb.WriteString(".")
	}
	sb.WriteString("\nReturn only the spoken script text.")
	return sb.String()
}

func (c *Composer) userPrompt(item domain.QueueItem) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[Product]\n%s\n\n[Pain Point]\n%s\n\n[Hook]\n%s\n",
		item.Script["product_name"], item.Script["pain_point"], item.Script["hook"])

	optional := []section{
		{"Mechanism", item.Script["mechanism"], 0.9},
		{"Statistic", item.Script["statistical_hook"], 0.8},
		{"Voice", personaLine(item.Persona), 0.7},
		{"Reviewer Notes", item.ReviewerNotes, 0.6},
		{"Pacing", item.Script[domain.ScriptPacingField], 0.5},
	}
	sort.SliceStable(optional, func(i, j int) bool {
		return optional[i].weight > optional[j].weight
	})

	remaining := c.MaxPromptTokens - EstimateTokens(c.systemPrompt()) - EstimateTokens(sb.String())
	for _, s := range optional {
		if strings.TrimSpace(s.body) == "" {
			continue
		}
		entry := fmt.Sprintf("\n[%s]\n%s\n", s.title, s.body)
		tokens := EstimateTokens(entry)
		if tokens > remaining {
			continue
		}
		sb.WriteString(entry)
		remaining -= tokens
	}
	return sb.String()
}

func personaLine(p map[string]string) string {
	var parts []string
	if v := p["tone"]; v != "" {
		parts = append(parts, v+" tone")
	}
	if v := p["style"]; v != "" {
		parts = append(parts, strings.ReplaceAll(v, "_", " ")+" delivery")
	}
	return strings.Join(parts, ", ")
}

// EstimateTokens approximates the token count at four characters per token.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}
