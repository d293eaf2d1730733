package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/domain"
)

// --- Products ---

// PutProduct inserts or replaces a product keyed by id.
func (s *Store) PutProduct(ctx context.Context, p domain.Product) error {
	if err := p.Validate(); err != nil {
		return err
	}
	data, err := encode(p)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO products (id, merge_key, category, data, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET merge_key = excluded.merge_key, category = excluded.category,
			data = excluded.data, updated_at = excluded.updated_at`,
		p.ID, p.MergeKey, p.Category, data, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("saving product %s: %w", p.ID, err)
	}
	return nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	return getData[domain.Product](ctx, s.db, "products", "product", id)
}

// ProductByMergeKey finds a product previously stored under the same normalized name.
func (s *Store) ProductByMergeKey(ctx context.Context, key string) (domain.Product, error) {
	out, err := queryData[domain.Product](ctx, s.db,
		sq.Select("data").From("products").Where(sq.Eq{"merge_key": key}).Limit(1))
	if err != nil {
		return domain.Product{}, err
	}
	if len(out) == 0 {
		return domain.Product{}, fmt.Errorf("product with merge key %q: %w", key, ErrNotFound)
	}
	return out[0], nil
}

func (s *Store) ListProducts(ctx context.Context, category string, limit int) ([]domain.Product, error) {
	b := sq.Select("data").From("products").OrderBy("seq ASC")
	if category != "" {
		b = b.Where(sq.Eq{"category": category})
	}
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	return queryData[domain.Product](ctx, s.db, b)
}

// --- Opportunities ---

func (s *Store) PutOpportunity(ctx context.Context, o domain.Opportunity) error {
	if err := o.Validate(); err != nil {
		return err
	}
	data, err := encode(o)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO opportunities (id, product_id, run_id, priority, tier, score, data, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET priority = excluded.priority, tier = excluded.tier,
			score = excluded.score, data = excluded.data`,
		o.ID, o.ProductID, o.RunID, string(o.Priority), string(o.RecommendedTier), o.Score, data, formatTime(o.CreatedAt))
	if err != nil {
		return fmt.Errorf("saving opportunity %s: %w", o.ID, err)
	}
	return nil
}

func (s *Store) GetOpportunity(ctx context.Context, id string) (domain.Opportunity, error) {
	return getData[domain.Opportunity](ctx, s.db, "opportunities", "opportunity", id)
}

// ListOpportunities returns opportunities in insertion order, or by score
// when the filter asks for it.
func (s *Store) ListOpportunities(ctx context.Context, f OpportunityFilter) ([]domain.Opportunity, error) {
	b := sq.Select("data").From("opportunities")
	if f.RunID != "" {
		b = b.Where(sq.Eq{"run_id": f.RunID})
	}
	if f.ProductID != "" {
		b = b.Where(sq.Eq{"product_id": f.ProductID})
	}
	if f.ByScore {
		b = b.OrderBy("score DESC", "seq ASC")
	} else {
		b = b.OrderBy("seq ASC")
	}
	if f.Limit > 0 {
		b = b.Limit(uint64(f.Limit))
	}
	return queryData[domain.Opportunity](ctx, s.db, b)
}

// --- Script plans ---

func (s *Store) PutPlan(ctx context.Context, p domain.ScriptPlan) error {
	if err := p.Validate(); err != nil {
		return err
	}
	data, err := encode(p)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO script_plans (id, opportunity_id, pain_point, data, created_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET pain_point = excluded.pain_point, data = excluded.data`,
		p.ID, p.OpportunityID, string(p.PainPoint), data, formatTime(p.CreatedAt))
	if err != nil {
		return fmt.Errorf("saving script plan %s: %w", p.ID, err)
	}
	return nil
}

func (s *Store) GetPlan(ctx context.Context, id string) (domain.ScriptPlan, error) {
	return getData[domain.ScriptPlan](ctx, s.db, "script_plans", "script plan", id)
}

// --- Counters ---

// IncrementCounter adds one to key unless it already reached limit. It
// returns the counter value afterwards and whether the increment happened.
func (s *Store) IncrementCounter(ctx context.Context, key string, limit int64) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, fmt.Errorf("beginning counter transaction: %w", err)
	}
	defer tx.Rollback()

	var value int64
	err = tx.QueryRowContext(ctx, "SELECT value FROM counters WHERE key = ?", key).Scan(&value)
	if err != nil && err != sql.ErrNoRows {
		return 0, false, fmt.Errorf("reading counter %s: %w", key, err)
	}
	if value >= limit {
		return value, false, nil
	}
	value++
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO counters (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value); err != nil {
		return 0, false, fmt.Errorf("writing counter %s: %w", key, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, false, err
	}
	return value, true, nil
}

// Counter returns the current value of key, zero when unset.
func (s *Store) Counter(ctx context.Context, key string) (int64, error) {
	var value int64
	err := s.db.QueryRowContext(ctx, "SELECT value FROM counters WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return value, err
}
