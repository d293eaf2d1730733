package storage

import (
	"context"
	"fmt"
	"slices"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/domain"
)

// --- Queue items ---

// PutItem stores a new queue item. Existing items change only through Advance.
func (s *Store) PutItem(ctx context.Context, item domain.QueueItem) error {
	if err := item.Validate(); err != nil {
		return err
	}
	data, err := encode(item)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO queue_items (id, plan_id, status, compliance, video_id, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.PlanID, string(item.Status), string(item.Compliance), item.VideoID, data,
		formatTime(item.CreatedAt), formatTime(item.UpdatedAt))
	if err != nil {
		return fmt.Errorf("saving queue item %s: %w", item.ID, err)
	}
	return nil
}

func (s *Store) GetItem(ctx context.Context, id string) (domain.QueueItem, error) {
	return getData[domain.QueueItem](ctx, s.db, "queue_items", "queue item", id)
}

// ItemByVideoID finds the queue item that was published as videoID.
func (s *Store) ItemByVideoID(ctx context.Context, videoID string) (domain.QueueItem, error) {
	out, err := queryData[domain.QueueItem](ctx, s.db,
		sq.Select("data").From("queue_items").Where(sq.Eq{"video_id": videoID}).Limit(1))
	if err != nil {
		return domain.QueueItem{}, err
	}
	if len(out) == 0 {
		return domain.QueueItem{}, fmt.Errorf("queue item for video %s: %w", videoID, ErrNotFound)
	}
	return out[0], nil
}

// ListItems returns queue items in insertion order.
func (s *Store) ListItems(ctx context.Context, f ItemFilter) ([]domain.QueueItem, error) {
	b := sq.Select("data").From("queue_items").OrderBy("seq ASC")
	if len(f.Statuses) > 0 {
		b = b.Where(sq.Eq{"status": statusStrings(f.Statuses)})
	}
	if len(f.Compliance) > 0 {
		cs := make([]string, len(f.Compliance))
		for i, c := range f.Compliance {
			cs[i] = string(c)
		}
		b = b.Where(sq.Eq{"compliance": cs})
	}
	if f.Limit > 0 {
		b = b.Limit(uint64(f.Limit))
	}
	return queryData[domain.QueueItem](ctx, s.db, b)
}

// CountItems counts items whose status is one of statuses, or all items.
func (s *Store) CountItems(ctx context.Context, statuses ...domain.VideoStatus) (int, error) {
	b := sq.Select("COUNT(*)").From("queue_items")
	if len(statuses) > 0 {
		b = b.Where(sq.Eq{"status": statusStrings(statuses)})
	}
	query, args, err := b.ToSql()
	if err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting queue items: %w", err)
	}
	return n, nil
}

// Advance applies t to the item atomically. The status change must be in the
// lattice, updated_at never moves backwards, and the result must satisfy the
// item invariants or nothing is written.
func (s *Store) Advance(ctx context.Context, id string, t domain.Transition) (domain.QueueItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.QueueItem{}, fmt.Errorf("beginning advance transaction: %w", err)
	}
	defer tx.Rollback()

	prev, err := getData[domain.QueueItem](ctx, tx, "queue_items", "queue item", id)
	if err != nil {
		return domain.QueueItem{}, err
	}
	if prev.Status.IsTerminal() {
		return domain.QueueItem{}, &domain.TransitionError{From: prev.Status, To: t.Status}
	}

	if len(t.From) > 0 && !slices.Contains(t.From, prev.Status) {
		return domain.QueueItem{}, &domain.TransitionError{From: prev.Status, To: t.Status}
	}
	if t.Guard != nil {
		if err := t.Guard(prev.Clone()); err != nil {
			return domain.QueueItem{}, err
		}
	}

	next := prev.Clone()
	if t.Mutate != nil {
		t.Mutate(&next)
	}
	if t.Revalidate != nil {
		st, c, issues := t.Revalidate(next.Clone())
		if st != "" {
			t.Status = st
		}
		t.Compliance = c
		t.Issues = issues
		t.SetIssues = true
	}
	if t.Status != "" {
		if !domain.CanTransition(prev.Status, t.Status) {
			return domain.QueueItem{}, &domain.TransitionError{From: prev.Status, To: t.Status}
		}
		if t.Status != prev.Status {
			next.PriorStatus = prev.Status
		}
		next.Status = t.Status
	}
	if t.Compliance != "" {
		next.Compliance = t.Compliance
	}
	if t.SetIssues {
		next.ComplianceIssues = append([]string{}, t.Issues...)
	}

	at := t.At
	if at.IsZero() {
		at = time.Now()
	}
	if at.Before(prev.UpdatedAt) {
		at = prev.UpdatedAt
	}
	next.UpdatedAt = at
	next.History = append(next.History, domain.HistoryEntry{
		At:         at,
		Action:     t.Action,
		Status:     next.Status,
		Compliance: next.Compliance,
		Issues:     next.ComplianceIssues,
		Note:       t.Note,
	})

	if err := next.Validate(); err != nil {
		return domain.QueueItem{}, err
	}
	data, err := encode(next)
	if err != nil {
		return domain.QueueItem{}, err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE queue_items SET status = ?, compliance = ?, video_id = ?, data = ?, updated_at = ? WHERE id = ?`,
		string(next.Status), string(next.Compliance), next.VideoID, data, formatTime(next.UpdatedAt), id); err != nil {
		return domain.QueueItem{}, fmt.Errorf("updating queue item %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return domain.QueueItem{}, fmt.Errorf("committing queue item %s: %w", id, err)
	}
	return next.Clone(), nil
}

// DeleteItems removes terminal items last updated before cutoff and returns
// how many were removed.
func (s *Store) DeleteItems(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	query, args, err := sq.Delete("queue_items").
		Where(sq.Eq{"status": statusStrings([]domain.VideoStatus{domain.StatusPublished, domain.StatusRejected})}).
		Where(sq.Lt{"updated_at": formatTime(cutoff)}).
		ToSql()
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("deleting queue items: %w", err)
	}
	return res.RowsAffected()
}

func statusStrings(in []domain.VideoStatus) []string {
	out := make([]string, len(in))
	for i, st := range in {
		out[i] = string(st)
	}
	return out
}
