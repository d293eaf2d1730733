package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/domain"
)

// --- Engagement ---

// RecordEngagement appends a snapshot for its video. Snapshots whose counters
// go backwards are rejected with an invariant violation.
func (s *Store) RecordEngagement(ctx context.Context, e domain.EngagementEvent) error {
	if err := e.Validate(); err != nil {
		return err
	}
	data, err := encode(e)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, err := s.latestEngagement(ctx, e.VideoID)
	switch {
	case err == nil:
		if err := e.CheckSuccessor(prev); err != nil {
			return err
		}
	case err != ErrNotFound:
		return err
	}
	if _, err := s.db.ExecContext(ctx,
		"INSERT INTO engagement_events (video_id, data, recorded_at) VALUES (?, ?, ?)",
		e.VideoID, data, formatTime(time.Now())); err != nil {
		return fmt.Errorf("saving engagement for %s: %w", e.VideoID, err)
	}
	return nil
}

// LatestEngagement returns the most recent snapshot recorded for videoID.
func (s *Store) LatestEngagement(ctx context.Context, videoID string) (domain.EngagementEvent, error) {
	e, err := s.latestEngagement(ctx, videoID)
	if err == ErrNotFound {
		return e, fmt.Errorf("engagement for %s: %w", videoID, ErrNotFound)
	}
	return e, err
}

func (s *Store) latestEngagement(ctx context.Context, videoID string) (domain.EngagementEvent, error) {
	var e domain.EngagementEvent
	var raw string
	err := s.db.QueryRowContext(ctx,
		"SELECT data FROM engagement_events WHERE video_id = ? ORDER BY seq DESC LIMIT 1", videoID).Scan(&raw)
	if err == sql.ErrNoRows {
		return e, ErrNotFound
	}
	if err != nil {
		return e, err
	}
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return e, fmt.Errorf("decoding engagement for %s: %w", videoID, err)
	}
	return e, nil
}

// --- Leads ---

func (s *Store) PutLead(ctx context.Context, l domain.Lead) error {
	if err := l.Validate(); err != nil {
		return err
	}
	data, err := encode(l)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO leads (id, source_video_id, item_id, tier, data, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		l.ID, l.SourceVideoID, l.ItemID, string(l.Tier), data, formatTime(l.CreatedAt))
	if err != nil {
		return fmt.Errorf("saving lead %s: %w", l.ID, err)
	}
	return nil
}

func (s *Store) GetLead(ctx context.Context, id string) (domain.Lead, error) {
	return getData[domain.Lead](ctx, s.db, "leads", "lead", id)
}

func (s *Store) ListLeads(ctx context.Context, f LeadFilter) ([]domain.Lead, error) {
	b := sq.Select("data").From("leads").OrderBy("seq ASC")
	if len(f.Tiers) > 0 {
		ts := make([]string, len(f.Tiers))
		for i, t := range f.Tiers {
			ts[i] = string(t)
		}
		b = b.Where(sq.Eq{"tier": ts})
	}
	if f.VideoID != "" {
		b = b.Where(sq.Eq{"source_video_id": f.VideoID})
	}
	if f.Limit > 0 {
		b = b.Limit(uint64(f.Limit))
	}
	return queryData[domain.Lead](ctx, s.db, b)
}

// --- Nurture tasks ---

// AddNurtureTask records a hand-off; duplicates are kept.
func (s *Store) AddNurtureTask(ctx context.Context, t NurtureTask) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO nurture_tasks (lead_id, nurture_type, priority, created_at) VALUES (?, ?, ?, ?)",
		t.LeadID, t.NurtureType, t.Priority, formatTime(t.CreatedAt))
	return err
}

func (s *Store) ListNurtureTasks(ctx context.Context, limit int) ([]NurtureTask, error) {
	b := sq.Select("lead_id", "nurture_type", "priority", "created_at").From("nurture_tasks").OrderBy("seq ASC")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []NurtureTask
	for rows.Next() {
		var t NurtureTask
		var created string
		if err := rows.Scan(&t.LeadID, &t.NurtureType, &t.Priority, &created); err != nil {
			return nil, err
		}
		if t.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// --- Publish receipts ---

// PutReceipt stores the first receipt for an item; later calls keep it.
func (s *Store) PutReceipt(ctx context.Context, r PublishReceipt) (PublishReceipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO publish_receipts (item_id, video_id, url, published_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(item_id) DO NOTHING`,
		r.ItemID, r.VideoID, r.URL, formatTime(r.PublishedAt)); err != nil {
		return PublishReceipt{}, fmt.Errorf("saving receipt for %s: %w", r.ItemID, err)
	}
	return s.getReceipt(ctx, r.ItemID)
}

func (s *Store) GetReceipt(ctx context.Context, itemID string) (PublishReceipt, error) {
	return s.getReceipt(ctx, itemID)
}

func (s *Store) getReceipt(ctx context.Context, itemID string) (PublishReceipt, error) {
	var r PublishReceipt
	var published string
	err := s.db.QueryRowContext(ctx,
		"SELECT item_id, video_id, url, published_at FROM publish_receipts WHERE item_id = ?", itemID,
	).Scan(&r.ItemID, &r.VideoID, &r.URL, &published)
	if err == sql.ErrNoRows {
		return r, fmt.Errorf("receipt for %s: %w", itemID, ErrNotFound)
	}
	if err != nil {
		return r, err
	}
	if r.PublishedAt, err = time.Parse(timeLayout, published); err != nil {
		return r, fmt.Errorf("parsing published_at: %w", err)
	}
	return r, nil
}
