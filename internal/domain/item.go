package domain

import (
	"fmt"
	"time"
)

// VideoStatus graph:
//
//	GENERATING ──► COMPLIANCE_REVIEW ──► READY_FOR_PREVIEW ──► APPROVED ──► PUBLISHED
//	    │  ▲              │                     │                  │
//	    ▼  │              ▼                     ▼                  │
//	REQUIRES_FIXES ◄──────┴─────────────────────┘                  │
//	    │                                                          │
//	    └──────────────────────────► REJECTED ◄────────────────────┘
//
// Edits and feedback may send any non-terminal item back through review or
// regeneration. PUBLISHED and REJECTED are terminal.
type VideoStatus string

const (
	StatusGenerating       VideoStatus = "GENERATING"
	StatusComplianceReview VideoStatus = "COMPLIANCE_REVIEW"
	StatusReadyForPreview  VideoStatus = "READY_FOR_PREVIEW"
	StatusRequiresFixes    VideoStatus = "REQUIRES_FIXES"
	StatusApproved         VideoStatus = "APPROVED"
	StatusPublished        VideoStatus = "PUBLISHED"
	StatusRejected         VideoStatus = "REJECTED"
)

type ComplianceStatus string

const (
	CompliancePending        ComplianceStatus = "PENDING_APPROVAL"
	ComplianceCompliant      ComplianceStatus = "COMPLIANT"
	ComplianceNonCompliant   ComplianceStatus = "NON_COMPLIANT"
	ComplianceRequiresReview ComplianceStatus = "REQUIRES_REVIEW"
)

var validTransitions = map[VideoStatus][]VideoStatus{
	StatusGenerating:       {StatusComplianceReview, StatusReadyForPreview, StatusRequiresFixes, StatusRejected},
	StatusComplianceReview: {StatusReadyForPreview, StatusRequiresFixes, StatusGenerating, StatusRejected},
	StatusReadyForPreview:  {StatusApproved, StatusComplianceReview, StatusRequiresFixes, StatusGenerating, StatusRejected},
	StatusRequiresFixes:    {StatusGenerating, StatusComplianceReview, StatusReadyForPreview, StatusRejected},
	StatusApproved:         {StatusPublished, StatusComplianceReview, StatusReadyForPreview, StatusRequiresFixes, StatusGenerating, StatusRejected},
}

// ParseVideoStatus converts a raw string, rejecting unknown values.
func ParseVideoStatus(s string) (VideoStatus, error) {
	st := VideoStatus(s)
	switch st {
	case StatusGenerating, StatusComplianceReview, StatusReadyForPreview, StatusRequiresFixes,
		StatusApproved, StatusPublished, StatusRejected:
		return st, nil
	}
	return "", fmt.Errorf("unknown video status %q: %w", s, ErrInvalidInput)
}

// IsTerminal reports whether no transition leaves s.
func (s VideoStatus) IsTerminal() bool {
	return s == StatusPublished || s == StatusRejected
}

// CanTransition reports whether from → to is in the lattice. Staying in the
// same non-terminal status is allowed; it records a re-validation.
func CanTransition(from, to VideoStatus) bool {
	if from == to {
		return !from.IsTerminal()
	}
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// StatusForCompliance is the status a re-validated item lands in.
func StatusForCompliance(c ComplianceStatus) (VideoStatus, bool) {
	switch c {
	case ComplianceCompliant:
		return StatusReadyForPreview, true
	case ComplianceNonCompliant:
		return StatusRequiresFixes, true
	case ComplianceRequiresReview:
		return StatusComplianceReview, true
	}
	return "", false
}

type ChangeTarget string

const (
	TargetPersona ChangeTarget = "persona"
	TargetScript  ChangeTarget = "script"
	TargetVideo   ChangeTarget = "video"
)

// Change edits one field of one settings group on a queue item.
type Change struct {
	Target ChangeTarget `json:"target" yaml:"target"`
	Field  string       `json:"field" yaml:"field"`
	Value  string       `json:"value" yaml:"value"`
}

// Key renders the change in the prefixed form reviewers see, e.g. persona_hair_length.
func (c Change) Key() string { return string(c.Target) + "_" + c.Field }

func (c Change) Validate() error {
	switch c.Target {
	case TargetPersona, TargetScript, TargetVideo:
	default:
		return fmt.Errorf("change target %q: %w", c.Target, ErrInvalidInput)
	}
	if c.Field == "" {
		return fmt.Errorf("change without field: %w", ErrInvalidInput)
	}
	return nil
}

// Script fields with special meaning.
const (
	ScriptContentField = "content"
	ScriptPacingField  = "pacing"
)

// Artifact kinds produced by generators.
const (
	ArtifactScript = "script"
	ArtifactVoice  = "voice"
	ArtifactVideo  = "video"
)

// HistoryEntry records one applied transition.
type HistoryEntry struct {
	At         time.Time        `json:"at"`
	Action     string           `json:"action"`
	Status     VideoStatus      `json:"status"`
	Compliance ComplianceStatus `json:"compliance"`
	Issues     []string         `json:"issues,omitempty"`
	Note       string           `json:"note,omitempty"`
}

type QueueItem struct {
	ID                   string            `json:"id"`
	PlanID               string            `json:"plan_id"`
	TenantID             string            `json:"tenant_id,omitempty"`
	Status               VideoStatus       `json:"status"`
	PriorStatus          VideoStatus       `json:"prior_status,omitempty"`
	Compliance           ComplianceStatus  `json:"compliance"`
	ComplianceIssues     []string          `json:"compliance_issues"`
	RequiredDisclosures  []string          `json:"required_disclosures"`
	Persona              map[string]string `json:"persona"`
	Script               map[string]string `json:"script"`
	Video                map[string]string `json:"video"`
	Artifacts            map[string]string `json:"artifacts"`
	RegenerationRequired bool              `json:"regeneration_required"`
	Generation           int               `json:"generation"`
	LastError            string            `json:"last_error,omitempty"`
	ReviewerNotes        string            `json:"reviewer_notes,omitempty"`
	RejectReason         string            `json:"reject_reason,omitempty"`
	VideoID              string            `json:"video_id,omitempty"`
	PublishedURL         string            `json:"published_url,omitempty"`
	History              []HistoryEntry    `json:"history"`
	CreatedAt            time.Time         `json:"created_at"`
	UpdatedAt            time.Time         `json:"updated_at"`
}

// ScriptContent is the generated or edited script text.
func (q QueueItem) ScriptContent() string { return q.Script[ScriptContentField] }

// Clone returns a deep copy so callers never share maps with the store.
func (q QueueItem) Clone() QueueItem {
	c := q
	c.ComplianceIssues = append([]string(nil), q.ComplianceIssues...)
	c.RequiredDisclosures = append([]string(nil), q.RequiredDisclosures...)
	c.Persona = cloneMap(q.Persona)
	c.Script = cloneMap(q.Script)
	c.Video = cloneMap(q.Video)
	c.Artifacts = cloneMap(q.Artifacts)
	c.History = append([]HistoryEntry(nil), q.History...)
	return c
}

func cloneMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Apply writes a change into the matching settings map.
func (q *QueueItem) Apply(c Change) {
	var m *map[string]string
	switch c.Target {
	case TargetPersona:
		m = &q.Persona
	case TargetScript:
		m = &q.Script
	case TargetVideo:
		m = &q.Video
	default:
		return
	}
	if *m == nil {
		*m = map[string]string{}
	}
	(*m)[c.Field] = c.Value
}

func (q QueueItem) Validate() error {
	if q.ID == "" || q.PlanID == "" {
		return invariant("queue item", "missing id or plan reference")
	}
	if _, err := ParseVideoStatus(string(q.Status)); err != nil {
		return invariant("queue item", "%v", err)
	}
	if q.Status == StatusApproved {
		if q.Compliance != ComplianceCompliant {
			return invariant("queue item", "approved with compliance %s", q.Compliance)
		}
		if len(q.ComplianceIssues) > 0 {
			return invariant("queue item", "approved with open compliance issues")
		}
	}
	if q.UpdatedAt.Before(q.CreatedAt) {
		return invariant("queue item", "updated_at before created_at")
	}
	return nil
}

// Transition is an intended change to a queue item, applied by the store.
// Empty Status or Compliance leave the current values in place. From, when
// set, lists the statuses the item must be in. Mutate runs on the stored
// copy first; Revalidate then sees the mutated copy and decides status,
// compliance and issues, overriding the fixed fields. An empty status from
// Revalidate keeps the current one. Guard, when set, sees the stored item
// before anything else runs; an error from it aborts the transition and is
// returned as is.
type Transition struct {
	At         time.Time
	Action     string
	From       []VideoStatus
	Guard      func(QueueItem) error
	Status     VideoStatus
	Compliance ComplianceStatus
	Issues     []string
	SetIssues  bool
	Note       string
	Mutate     func(*QueueItem)
	Revalidate func(QueueItem) (VideoStatus, ComplianceStatus, []string)
}
