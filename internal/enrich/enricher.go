package enrich

import (
	"context"

	"github.com/MrSnakeDoc/sdsresolve/internal/domain"
	"github.com/MrSnakeDoc/sdsresolve/internal/logger"
)

const DefaultMaxPages = 2

// Enricher reads up to maxPages candidate pages and guesses a field from
// their text.
type Enricher struct {
	fetcher  PageFetcher
	maxPages int
	log      logger.Logger
}

func NewEnricher(fetcher PageFetcher, maxPages int, log logger.Logger) *Enricher {
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Enricher{fetcher: fetcher, maxPages: maxPages, log: log}
}

// Enrich returns the best page-derived result for field and how many pages
// were fetched. Failed pages are logged and skipped; only cancellation is
// returned as an error.
func (e *Enricher) Enrich(ctx context.Context, field string, urls []string) (domain.FieldResult, int, error) {
	best := domain.Unresolved(field, "")
	seen := make(map[string]struct{}, len(urls))
	fetched := 0

	for _, u := range urls {
		if fetched >= e.maxPages {
			break
		}
		if u == "" {
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}

		fetched++
		text, err := e.fetcher.Fetch(ctx, u)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return best, fetched, domain.Cancelled(ctxErr)
			}
			if domain.IsCancelled(err) {
				return best, fetched, err
			}
			e.log.Warn("page enrichment failed",
				logger.String("field", field),
				logger.String("url", u),
				logger.Error(err))
			continue
		}

		if res, ok := domain.GuessFromText(field, text, u); ok {
			best = domain.Better(best, res)
			if best.Confidence >= domain.ConfidencePageMatch {
				break
			}
		}
	}
	return best, fetched, nil
}

// MaxPages returns the per-field page budget.
func (e *Enricher) MaxPages() int { return e.maxPages }
