package scorer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/domain"
)

// CatalogProvider lists raw product records for a category.
type CatalogProvider interface {
	Name() string
	List(ctx context.Context, category string, limit int) ([]domain.RawProduct, error)
}

// FetchAll queries every provider concurrently and concatenates the results
// in provider order. A provider that fails or exceeds timeout is skipped and
// its error returned alongside the records of the others.
func FetchAll(ctx context.Context, providers []CatalogProvider, category string, limit int, timeout time.Duration) ([]domain.RawProduct, []error) {
	results := make([][]domain.RawProduct, len(providers))
	errs := make([]error, len(providers))

	var g errgroup.Group
	g.SetLimit(4)
	for i, p := range providers {
		g.Go(func() error {
			pctx := ctx
			if timeout > 0 {
				var cancel context.CancelFunc
				pctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			recs, err := p.List(pctx, category, limit)
			if err != nil {
				slog.Warn("catalog provider skipped", "provider", p.Name(), "error", err)
				errs[i] = fmt.Errorf("provider %s: %w", p.Name(), err)
				return nil
			}
			now := time.Now()
			for j := range recs {
				if recs[j].Provider == "" {
					recs[j].Provider = p.Name()
				}
				if recs[j].ScrapedAt.IsZero() {
					recs[j].ScrapedAt = now
				}
			}
			results[i] = recs
			return nil
		})
	}
	g.Wait()

	var out []domain.RawProduct
	var failed []error
	for i := range providers {
		out = append(out, results[i]...)
		if errs[i] != nil {
			failed = append(failed, errs[i])
		}
	}
	return out, failed
}
