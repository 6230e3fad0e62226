package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/cashback-intel/internal/db"
	"github.com/sells-group/cashback-intel/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg db.PoolConfig) (*PostgresStore, error) {
	pool, err := db.Connect(ctx, connString, poolCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	site       TEXT NOT NULL,
	target     JSONB NOT NULL,
	level      TEXT NOT NULL,
	backend    TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL DEFAULT 'queued',
	stats      JSONB,
	error      TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS offers (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	run_id      TEXT NOT NULL REFERENCES runs(id),
	site        TEXT NOT NULL,
	url         TEXT NOT NULL,
	merchant    TEXT NOT NULL,
	offer       TEXT NOT NULL,
	confidence  DOUBLE PRECISION NOT NULL,
	method      TEXT NOT NULL,
	level       TEXT NOT NULL DEFAULT '',
	fields      JSONB,
	tokens_used BIGINT NOT NULL DEFAULT 0,
	cost        DOUBLE PRECISION NOT NULL DEFAULT 0,
	scraped_at  TIMESTAMPTZ NOT NULL,
	UNIQUE (run_id, url)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_site ON runs(site);
CREATE INDEX IF NOT EXISTS idx_offers_run_id ON offers(run_id);
CREATE INDEX IF NOT EXISTS idx_offers_merchant ON offers(lower(merchant));
`

var offerColumns = []string{
	"id", "run_id", "site", "url", "merchant", "offer", "confidence", "method",
	"level", "fields", "tokens_used", "cost", "scraped_at",
}

// offerMerge upserts by (run_id, url); a repeated URL overwrites the earlier offer.
var offerMerge = db.Merge{
	Table:   "offers",
	Columns: offerColumns,
	Keys:    []string{"run_id", "url"},
	Update:  []string{"merchant", "offer", "confidence", "method", "level", "fields", "tokens_used", "cost", "scraped_at"},
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, target model.CrawlTarget, level model.Level, backend string) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	targetJSON, err := json.Marshal(target)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal target")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO runs (id, site, target, level, backend, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		id, target.Site, targetJSON, string(level), backend, string(model.RunStatusQueued), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.Run{
		ID:        id,
		Target:    target,
		Level:     level,
		Backend:   backend,
		Status:    model.RunStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run status %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

func (s *PostgresStore) FinishRun(ctx context.Context, runID string, status model.RunStatus, stats *model.RunStats, runErr string) error {
	var statsJSON []byte
	if stats != nil {
		b, err := json.Marshal(stats)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal stats")
		}
		statsJSON = b
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, stats = $2, error = $3, updated_at = $4 WHERE id = $5`,
		string(status), statsJSON, runErr, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	r, err := scanPgRun(s.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM runs WHERE id = $1`, runID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.Site != "" {
		query += fmt.Sprintf(` AND site = $%d`, argIdx)
		args = append(args, filter.Site)
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, argIdx)
	args = append(args, limitOr(filter.Limit))
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanPgRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) SaveOffers(ctx context.Context, runID, site string, results []*model.ExtractionResult) (int, error) {
	results = dedupe(results)
	if len(results) == 0 {
		return 0, nil
	}

	rows := make([][]any, 0, len(results))
	for _, r := range results {
		var fields []byte
		if len(r.Fields) > 0 {
			b, err := json.Marshal(r.Fields)
			if err != nil {
				return 0, eris.Wrap(err, "postgres: marshal fields")
			}
			fields = b
		}
		rows = append(rows, []any{
			uuid.New().String(), runID, site, r.URL, r.Merchant, r.Offer, r.Confidence, r.Method,
			string(r.Level), fields, r.TokensUsed, r.Cost, r.ScrapedAt.UTC(),
		})
	}

	n, err := offerMerge.Run(ctx, s.pool, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: save offers")
	}
	return int(n), nil
}

func (s *PostgresStore) ListOffers(ctx context.Context, filter OfferFilter) ([]Offer, error) {
	query := `SELECT id, run_id, site, url, merchant, offer, confidence, method, level, fields, tokens_used, cost, scraped_at
		FROM offers WHERE true`
	args := []any{}
	argIdx := 1

	if filter.RunID != "" {
		query += fmt.Sprintf(` AND run_id = $%d`, argIdx)
		args = append(args, filter.RunID)
		argIdx++
	}
	if filter.Site != "" {
		query += fmt.Sprintf(` AND site = $%d`, argIdx)
		args = append(args, filter.Site)
		argIdx++
	}
	if filter.Merchant != "" {
		query += fmt.Sprintf(` AND merchant ILIKE $%d`, argIdx)
		args = append(args, "%"+filter.Merchant+"%")
		argIdx++
	}
	if filter.MinConfidence > 0 {
		query += fmt.Sprintf(` AND confidence >= $%d`, argIdx)
		args = append(args, filter.MinConfidence)
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY confidence DESC, merchant ASC LIMIT $%d`, argIdx)
	args = append(args, limitOr(filter.Limit))
	argIdx++
	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list offers")
	}
	defer rows.Close()

	var offers []Offer
	for rows.Next() {
		var o Offer
		var level string
		var fields []byte
		if err := rows.Scan(&o.ID, &o.RunID, &o.Site, &o.URL, &o.Merchant, &o.Offer, &o.Confidence,
			&o.Method, &level, &fields, &o.TokensUsed, &o.Cost, &o.ScrapedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan offer")
		}
		o.Level = model.Level(level)
		if len(fields) > 0 {
			if err := json.Unmarshal(fields, &o.Fields); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal fields")
			}
		}
		offers = append(offers, o)
	}
	return offers, eris.Wrap(rows.Err(), "postgres: list offers iterate")
}

func scanPgRun(row pgx.Row) (*model.Run, error) {
	var r model.Run
	var targetJSON, statsJSON []byte
	var level, status string

	if err := row.Scan(&r.ID, &targetJSON, &level, &r.Backend, &status, &statsJSON, &r.Error, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.Level = model.Level(level)
	r.Status = model.RunStatus(status)

	if err := json.Unmarshal(targetJSON, &r.Target); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal target")
	}
	if len(statsJSON) > 0 {
		r.Stats = model.NewRunStats()
		if err := json.Unmarshal(statsJSON, r.Stats); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal stats")
		}
	}
	return &r, nil
}
