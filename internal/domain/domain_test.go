package domain

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestScoreWeightsSumToOne(t *testing.T) {
	if got := ScoreWeights.Sum(); math.Abs(got-1) > 1e-9 {
		t.Fatalf("weights sum = %v, want 1", got)
	}
}

func TestPriorityThresholdsInclusive(t *testing.T) {
	cases := []struct {
		score float64
		want  Priority
	}{
		{0.90, PriorityUrgent},
		{0.8999, PriorityHigh},
		{0.80, PriorityHigh},
		{0.70, PriorityMedium},
		{0.6999, PriorityLow},
		{0, PriorityLow},
	}
	for _, c := range cases {
		if got := PriorityForScore(c.score); got != c.want {
			t.Errorf("PriorityForScore(%v) = %s, want %s", c.score, got, c.want)
		}
	}
}

func TestCanTransition(t *testing.T) {
	if !CanTransition(StatusGenerating, StatusReadyForPreview) {
		t.Error("GENERATING → READY_FOR_PREVIEW should be allowed")
	}
	if CanTransition(StatusGenerating, StatusApproved) {
		t.Error("GENERATING → APPROVED should be refused")
	}
	if CanTransition(StatusPublished, StatusPublished) {
		t.Error("terminal self transition should be refused")
	}
	if CanTransition(StatusRejected, StatusGenerating) {
		t.Error("REJECTED is terminal")
	}
	if !CanTransition(StatusRequiresFixes, StatusRequiresFixes) {
		t.Error("re-validation in place should be allowed")
	}
}

func TestQueueItemValidateApproved(t *testing.T) {
	now := time.Now()
	item := QueueItem{ID: "i", PlanID: "p", Status: StatusApproved, Compliance: ComplianceRequiresReview, CreatedAt: now, UpdatedAt: now}
	err := item.Validate()
	if !errors.Is(err, ErrInvariantViolation) {
		t.Fatalf("expected invariant violation, got %v", err)
	}
	item.Compliance = ComplianceCompliant
	if err := item.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestComplianceBlockedErrorIs(t *testing.T) {
	err := error(&ComplianceBlockedError{ItemID: "x", Issues: []string{"a"}})
	if !errors.Is(err, ErrComplianceBlocked) {
		t.Fatal("ComplianceBlockedError should match ErrComplianceBlocked")
	}
}

func TestEngagementNormalizeAndSuccessor(t *testing.T) {
	e := EngagementEvent{VideoID: "v", Views: 1000, Likes: 50, Comments: 20, Shares: 10}.Normalize()
	if math.Abs(e.EngagementRate-0.08) > 1e-12 {
		t.Fatalf("rate = %v, want 0.08", e.EngagementRate)
	}
	next := e
	next.Views = 900
	if err := next.CheckSuccessor(e); !errors.Is(err, ErrInvariantViolation) {
		t.Fatalf("decreasing views should violate invariant, got %v", err)
	}
}

func TestQueueItemApplyAndClone(t *testing.T) {
	var item QueueItem
	item.Apply(Change{Target: TargetPersona, Field: "hair_length", Value: "short"})
	clone := item.Clone()
	clone.Persona["hair_length"] = "long"
	if item.Persona["hair_length"] != "short" {
		t.Fatal("clone shares persona map with original")
	}
	if k := (Change{Target: TargetVideo, Field: "lighting_color"}).Key(); k != "video_lighting_color" {
		t.Fatalf("Key() = %q", k)
	}
}
