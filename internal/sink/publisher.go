// Package sink delivers kernel output to external systems: approved videos
// to a publisher and qualified leads to a nurture system.
package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/catalog"
	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/domain"
	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/storage"
)

const (
	defaultTimeout = 30 * time.Second
	maxRetries     = 3
	initialBackoff = time.Second
)

// Publisher delivers an approved item.
type Publisher interface {
	Publish(ctx context.Context, item domain.QueueItem) (storage.PublishReceipt, error)
}

// WebhookPublisher posts approved items to a publishing endpoint, which
// answers with the platform video id and URL. The item id is sent as the
// Idempotency-Key header.
type WebhookPublisher struct {
	url        string
	token      string
	httpClient *http.Client
	retries    uint64
	interval   time.Duration
	now        func() time.Time
}

func NewWebhookPublisher(url, token string) *WebhookPublisher {
	return &WebhookPublisher{
		url:        url,
		token:      token,
		httpClient: &http.Client{Timeout: defaultTimeout},
		retries:    maxRetries,
		interval:   initialBackoff,
		now:        time.Now,
	}
}

type publishRequest struct {
	ItemID    string            `json:"item_id"`
	PlanID    string            `json:"plan_id"`
	Script    string            `json:"script"`
	Artifacts map[string]string `json:"artifacts"`
	Video     map[string]string `json:"video"`
}

type publishResponse struct {
	VideoID string `json:"video_id"`
	URL     string `json:"url"`
}

func (p *WebhookPublisher) Publish(ctx context.Context, item domain.QueueItem) (storage.PublishReceipt, error) {
	body, err := json.Marshal(publishRequest{
		ItemID:    item.ID,
		PlanID:    item.PlanID,
		Script:    item.ScriptContent(),
		Artifacts: item.Artifacts,
		Video:     item.Video,
	})
	if err != nil {
		return storage.PublishReceipt{}, fmt.Errorf("marshaling request: %w", err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.interval
	var out publishResponse
	op := func() error {
		resp, err := p.post(ctx, item.ID, body)
		if err != nil {
			if errors.Is(err, domain.ErrInvalidInput) {
				return backoff.Permanent(err)
			}
			return err
		}
		out = resp
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, p.retries), ctx)); err != nil {
		return storage.PublishReceipt{}, err
	}
	if out.VideoID == "" {
		return storage.PublishReceipt{}, fmt.Errorf("publisher returned no video id: %w", domain.ErrProviderUnavailable)
	}
	return storage.PublishReceipt{ItemID: item.ID, VideoID: out.VideoID, URL: out.URL, PublishedAt: p.now().UTC()}, nil
}

func (p *WebhookPublisher) post(ctx context.Context, itemID string, body []byte) (publishResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return publishResponse{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", itemID)
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return publishResponse{}, fmt.Errorf("publisher: %v: %w", err, domain.ErrProviderUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return publishResponse{}, catalog.StatusError("publisher", resp.StatusCode, string(respBody))
	}
	var out publishResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return publishResponse{}, fmt.Errorf("publisher: decoding response: %v: %w", err, domain.ErrProviderUnavailable)
	}
	return out, nil
}

// ReceiptStore keeps the first receipt per item.
type ReceiptStore interface {
	GetReceipt(ctx context.Context, itemID string) (storage.PublishReceipt, error)
	PutReceipt(ctx context.Context, r storage.PublishReceipt) (storage.PublishReceipt, error)
}

// Receipts makes any publisher idempotent per item: a stored receipt is
// returned without calling the inner publisher again.
type Receipts struct {
	inner Publisher
	store ReceiptStore
}

func NewReceipts(inner Publisher, store ReceiptStore) *Receipts {
	return &Receipts{inner: inner, store: store}
}

func (r *Receipts) Publish(ctx context.Context, item domain.QueueItem) (storage.PublishReceipt, error) {
	rec, err := r.store.GetReceipt(ctx, item.ID)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return storage.PublishReceipt{}, err
	}
	rec, err = r.inner.Publish(ctx, item)
	if err != nil {
		return storage.PublishReceipt{}, err
	}
	rec.ItemID = item.ID
	return r.store.PutReceipt(ctx, rec)
}
