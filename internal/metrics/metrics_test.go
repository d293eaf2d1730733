package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/domain"
)

func TestSetQueueResetsMissingStatuses(t *testing.T) {
	SetQueue(map[domain.VideoStatus]int{domain.StatusApproved: 3}, 0.9)
	SetQueue(map[domain.VideoStatus]int{domain.StatusGenerating: 2}, 0.5)

	if got := testutil.ToFloat64(QueueItems.WithLabelValues("APPROVED")); got != 0 {
		t.Errorf("APPROVED = %v, want 0", got)
	}
	if got := testutil.ToFloat64(QueueItems.WithLabelValues("GENERATING")); got != 2 {
		t.Errorf("GENERATING = %v, want 2", got)
	}
	if got := testutil.ToFloat64(QueueHealth); got != 0.5 {
		t.Errorf("health = %v, want 0.5", got)
	}
}

func TestObserveGenerator(t *testing.T) {
	before := testutil.CollectAndCount(GeneratorDuration)
	ObserveGenerator("test-gen", time.Now(), errors.New("boom"))
	ObserveGenerator("test-gen", time.Now(), nil)
	if got := testutil.CollectAndCount(GeneratorDuration); got != before+2 {
		t.Errorf("series = %d, want %d", got, before+2)
	}
}

func TestHandlerExposesCollectors(t *testing.T) {
	ApprovalsBlocked.Inc()
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "ghost_approvals_blocked_total") {
		t.Error("metrics output missing ghost_approvals_blocked_total")
	}
}
