package sink

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/domain"
	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/storage"
)

func testItem() domain.QueueItem {
	return domain.QueueItem{
		ID:        "item-1",
		PlanID:    "plan-1",
		Status:    domain.StatusApproved,
		Script:    map[string]string{"content": "#ad affiliate script"},
		Artifacts: map[string]string{"video": "https://cdn/v.mp4"},
		Video:     map[string]string{"aspect_ratio": "9:16"},
	}
}

func fastPublisher(url string) *WebhookPublisher {
	p := NewWebhookPublisher(url, "pub-token")
	p.interval = time.Millisecond
	p.now = func() time.Time { return time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC) }
	return p
}

func TestWebhookPublisher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Idempotency-Key") != "item-1" || r.Header.Get("Authorization") != "Bearer pub-token" {
			t.Errorf("headers = %v", r.Header)
		}
		var req publishRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Script != "#ad affiliate script" || req.Artifacts["video"] != "https://cdn/v.mp4" {
			t.Errorf("request = %+v", req)
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"video_id":"tt-123","url":"https://tiktok.example/v/tt-123"}`))
	}))
	defer srv.Close()

	rec, err := fastPublisher(srv.URL).Publish(context.Background(), testItem())
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if rec.ItemID != "item-1" || rec.VideoID != "tt-123" || rec.URL != "https://tiktok.example/v/tt-123" || rec.PublishedAt.IsZero() {
		t.Errorf("receipt = %+v", rec)
	}
}

func TestWebhookPublisherRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"video_id":"tt-1"}`))
	}))
	defer srv.Close()

	if _, err := fastPublisher(srv.URL).Publish(context.Background(), testItem()); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestWebhookPublisherRejectedNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "video too long", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	_, err := fastPublisher(srv.URL).Publish(context.Background(), testItem())
	if !errors.Is(err, domain.ErrInvalidInput) || calls.Load() != 1 {
		t.Fatalf("err = %v after %d calls", err, calls.Load())
	}
}

type mockPublisher struct {
	calls     atomic.Int32
	publishFn func(ctx context.Context, item domain.QueueItem) (storage.PublishReceipt, error)
}

func (m *mockPublisher) Publish(ctx context.Context, item domain.QueueItem) (storage.PublishReceipt, error) {
	m.calls.Add(1)
	return m.publishFn(ctx, item)
}

func openStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestReceiptsIdempotent(t *testing.T) {
	store := openStore(t)
	n := 0
	inner := &mockPublisher{publishFn: func(_ context.Context, item domain.QueueItem) (storage.PublishReceipt, error) {
		n++
		return storage.PublishReceipt{VideoID: "tt-" + string(rune('0'+n)), URL: "u", PublishedAt: time.Now()}, nil
	}}
	r := NewReceipts(inner, store)

	first, err := r.Publish(context.Background(), testItem())
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	second, err := r.Publish(context.Background(), testItem())
	if err != nil {
		t.Fatalf("second Publish: %v", err)
	}
	if first.VideoID != "tt-1" || second.VideoID != first.VideoID || first.ItemID != "item-1" {
		t.Errorf("receipts = %+v / %+v", first, second)
	}
	if inner.calls.Load() != 1 {
		t.Errorf("inner calls = %d, want 1", inner.calls.Load())
	}
}

func TestReceiptsFailureNotStored(t *testing.T) {
	store := openStore(t)
	inner := &mockPublisher{publishFn: func(context.Context, domain.QueueItem) (storage.PublishReceipt, error) {
		return storage.PublishReceipt{}, domain.ErrProviderUnavailable
	}}
	if _, err := NewReceipts(inner, store).Publish(context.Background(), testItem()); !errors.Is(err, domain.ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
	if _, err := store.GetReceipt(context.Background(), "item-1"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("receipt stored after failure: %v", err)
	}
}

// recordHook captures commands instead of sending them to a server.
type recordHook struct {
	mu   sync.Mutex
	cmds [][]any
	fail error
}

func (h *recordHook) DialHook(next redis.DialHook) redis.DialHook { return next }

func (h *recordHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		return h.process([]redis.Cmder{cmd})
	}
}

func (h *recordHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		return h.process(cmds)
	}
}

func (h *recordHook) process(cmds []redis.Cmder) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range cmds {
		if c.Name() == "multi" || c.Name() == "exec" {
			continue
		}
		h.cmds = append(h.cmds, c.Args())
		if h.fail != nil {
			c.SetErr(h.fail)
		}
	}
	return h.fail
}

func testLead() domain.Lead {
	return domain.Lead{ID: "lead-1", SourceVideoID: "tt-123", Tier: domain.LeadHot, QualificationScore: 0.82}
}

func TestRedisNurtureEnqueue(t *testing.T) {
	hook := &recordHook{}
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer rdb.Close()
	rdb.AddHook(hook)

	n := NewRedisNurture(rdb, "")
	if err := n.Enqueue(context.Background(), testLead(), "hot_lead_sequence", "urgent"); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	if len(hook.cmds) != 2 {
		t.Fatalf("commands = %v, want LPUSH and PUBLISH", hook.cmds)
	}
	lpush, publish := hook.cmds[0], hook.cmds[1]
	if lpush[0] != "lpush" || lpush[1] != "ghost:nurture:urgent" {
		t.Errorf("lpush = %v", lpush[:2])
	}
	if publish[0] != "publish" || publish[1] != LeadChannel {
		t.Errorf("publish = %v", publish[:2])
	}

	var ev NurtureEvent
	if err := json.Unmarshal(lpush[2].([]byte), &ev); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if ev.Lead.ID != "lead-1" || ev.NurtureType != "hot_lead_sequence" || ev.Priority != "urgent" {
		t.Errorf("event = %+v", ev)
	}
}

func TestRedisNurtureFailure(t *testing.T) {
	hook := &recordHook{fail: errors.New("connection refused")}
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer rdb.Close()
	rdb.AddHook(hook)

	err := NewRedisNurture(rdb, "leads").Enqueue(context.Background(), testLead(), "hot_lead_sequence", "urgent")
	if !errors.Is(err, domain.ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
}

func TestStoreNurtureKeepsDuplicates(t *testing.T) {
	store := openStore(t)
	n := NewStoreNurture(store)
	for i := 0; i < 2; i++ {
		if err := n.Enqueue(context.Background(), testLead(), "hot_lead_sequence", "urgent"); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}
	tasks, err := store.ListNurtureTasks(context.Background(), 0)
	if err != nil {
		t.Fatalf("ListNurtureTasks: %v", err)
	}
	if len(tasks) != 2 || tasks[0].LeadID != "lead-1" || tasks[1].Priority != "urgent" {
		t.Errorf("tasks = %+v", tasks)
	}
}
