package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/maclay/research-assistant/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses; pgxmock satisfies it
// in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	request    JSONB NOT NULL,
	status     TEXT NOT NULL DEFAULT 'queued',
	result     JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS reports (
	id                      TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	title                   TEXT NOT NULL,
	content                 TEXT NOT NULL,
	kind                    TEXT NOT NULL,
	product_description     TEXT NOT NULL DEFAULT '',
	segment                 TEXT NOT NULL DEFAULT '',
	research_element        TEXT NOT NULL DEFAULT '',
	product_characteristics TEXT NOT NULL DEFAULT '',
	benchmarks              TEXT NOT NULL DEFAULT '',
	required_players        TEXT NOT NULL DEFAULT '',
	required_countries      TEXT NOT NULL DEFAULT '',
	model                   TEXT NOT NULL DEFAULT '',
	processing_ms           BIGINT NOT NULL DEFAULT 0,
	is_active               BOOLEAN NOT NULL DEFAULT true,
	created_at              TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_reports_created_at ON reports(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_reports_is_active ON reports(is_active);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, req model.RunRequest) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	reqJSON, err := json.Marshal(req)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal request")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO runs (id, request, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		id, reqJSON, string(model.RunStatusQueued), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.Run{
		ID:        id,
		Request:   req,
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
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) UpdateRunResult(ctx context.Context, runID string, result *model.RunResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal result")
	}

	status := model.RunStatusComplete
	if !result.Success {
		status = model.RunStatusFailed
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET result = $1, status = $2, updated_at = $3 WHERE id = $4`,
		resultJSON, string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run result %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, request, status, result, created_at, updated_at FROM runs WHERE id = $1`,
		runID,
	)

	var r model.Run
	var reqJSON []byte
	var resultJSON []byte
	err := row.Scan(&r.ID, &reqJSON, &r.Status, &resultJSON, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get run")
	}

	if err := json.Unmarshal(reqJSON, &r.Request); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal request")
	}
	if len(resultJSON) > 0 {
		r.Result = &model.RunResult{}
		if err := json.Unmarshal(resultJSON, r.Result); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal result")
		}
	}
	return &r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, request, status, result, created_at, updated_at FROM runs`
	var args []any

	if filter.Status != "" {
		query += ` WHERE status = $1`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += ` LIMIT $` + strconv.Itoa(len(args))

	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += ` OFFSET $` + strconv.Itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		var r model.Run
		var reqJSON, resultJSON []byte
		if err := rows.Scan(&r.ID, &reqJSON, &r.Status, &resultJSON, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		if err := json.Unmarshal(reqJSON, &r.Request); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal request")
		}
		if len(resultJSON) > 0 {
			r.Result = &model.RunResult{}
			if err := json.Unmarshal(resultJSON, r.Result); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal result")
			}
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

const pgReportColumns = `id, title, content, kind, product_description, segment,
	research_element, product_characteristics, benchmarks, required_players,
	required_countries, model, processing_ms, is_active, created_at`

func (s *PostgresStore) SaveReport(ctx context.Context, report *model.Report) error {
	if report.ID == "" {
		report.ID = uuid.New().String()
	}
	if report.CreatedAt.IsZero() {
		report.CreatedAt = time.Now().UTC()
	}
	report.IsActive = true

	_, err := s.pool.Exec(ctx,
		`INSERT INTO reports (id, title, content, kind, product_description, segment,
			research_element, product_characteristics, benchmarks, required_players,
			required_countries, model, processing_ms, is_active, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, true, $14)`,
		report.ID, report.Title, report.Content, string(report.Kind),
		report.ProductDescription, report.Segment, report.ResearchElement,
		report.ProductCharacteristics, report.Benchmarks, report.RequiredPlayers,
		report.RequiredCountries, report.Model, report.ProcessingMillis, report.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert report")
}

func (s *PostgresStore) GetReport(ctx context.Context, reportID string) (*model.Report, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgReportColumns+` FROM reports WHERE id = $1 AND is_active`,
		reportID,
	)
	r, err := scanPgReport(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get report %s", reportID)
	}
	return r, nil
}

func (s *PostgresStore) ListRecentReports(ctx context.Context, limit int) ([]model.Report, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgReportColumns+` FROM reports WHERE is_active
		 ORDER BY created_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list reports")
	}
	defer rows.Close()
	return collectPgReports(rows)
}

func (s *PostgresStore) SearchReports(ctx context.Context, query string) ([]model.Report, error) {
	pattern := "%" + query + "%"
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgReportColumns+` FROM reports
		 WHERE is_active AND (title ILIKE $1 OR content ILIKE $1)
		 ORDER BY created_at DESC LIMIT 50`,
		pattern,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: search reports")
	}
	defer rows.Close()
	return collectPgReports(rows)
}

func (s *PostgresStore) DeleteReport(ctx context.Context, reportID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE reports SET is_active = false WHERE id = $1 AND is_active`,
		reportID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete report %s", reportID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("report not found: %s", reportID)
	}
	return nil
}

func scanPgReport(row pgx.Row) (*model.Report, error) {
	var r model.Report
	err := row.Scan(&r.ID, &r.Title, &r.Content, &r.Kind, &r.ProductDescription,
		&r.Segment, &r.ResearchElement, &r.ProductCharacteristics, &r.Benchmarks,
		&r.RequiredPlayers, &r.RequiredCountries, &r.Model, &r.ProcessingMillis,
		&r.IsActive, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func collectPgReports(rows pgx.Rows) ([]model.Report, error) {
	var reports []model.Report
	for rows.Next() {
		r, err := scanPgReport(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan report")
		}
		reports = append(reports, *r)
	}
	return reports, eris.Wrap(rows.Err(), "postgres: iterate reports")
}
