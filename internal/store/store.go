// Package store persists crawl runs and the offers they extract.
package store

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/cashback-intel/internal/db"
	"github.com/sells-group/cashback-intel/internal/model"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = eris.New("store: not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Site   string          `json:"site,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// OfferFilter specifies criteria for listing offers.
type OfferFilter struct {
	RunID         string  `json:"run_id,omitempty"`
	Site          string  `json:"site,omitempty"`
	Merchant      string  `json:"merchant,omitempty"`
	MinConfidence float64 `json:"min_confidence,omitempty"`
	Limit         int     `json:"limit,omitempty"`
	Offset        int     `json:"offset,omitempty"`
}

// Offer is a stored extraction result.
type Offer struct {
	ID    string `json:"id"`
	RunID string `json:"run_id"`
	Site  string `json:"site"`
	model.ExtractionResult
}

// Store defines the persistence interface for crawl runs.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, target model.CrawlTarget, level model.Level, backend string) (*model.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	FinishRun(ctx context.Context, runID string, status model.RunStatus, stats *model.RunStats, runErr string) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Offers
	SaveOffers(ctx context.Context, runID, site string, results []*model.ExtractionResult) (int, error)
	ListOffers(ctx context.Context, filter OfferFilter) ([]Offer, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open returns the store for driver. dsn is a file path for sqlite and a
// connection string for postgres.
func Open(ctx context.Context, driver, dsn string, pool db.PoolConfig) (Store, error) {
	switch strings.ToLower(driver) {
	case "", "sqlite":
		return NewSQLite(dsn)
	case "postgres", "postgresql":
		return NewPostgres(ctx, dsn, pool)
	}
	return nil, eris.Errorf("store: unknown driver %q", driver)
}

const defaultLimit = 100

func limitOr(n int) int {
	if n <= 0 {
		return defaultLimit
	}
	return n
}

// dedupe keeps the last result per URL.
func dedupe(results []*model.ExtractionResult) []*model.ExtractionResult {
	idx := make(map[string]int, len(results))
	out := make([]*model.ExtractionResult, 0, len(results))
	for _, r := range results {
		if r == nil {
			continue
		}
		if i, ok := idx[r.URL]; ok {
			out[i] = r
			continue
		}
		idx[r.URL] = len(out)
		out = append(out, r)
	}
	return out
}
