package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/maclay/research-assistant/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	request    TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'queued',
	result     TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS reports (
	id                      TEXT PRIMARY KEY,
	title                   TEXT NOT NULL,
	content                 TEXT NOT NULL,
	kind                    TEXT NOT NULL,
	product_description     TEXT,
	segment                 TEXT,
	research_element        TEXT,
	product_characteristics TEXT,
	benchmarks              TEXT,
	required_players        TEXT,
	required_countries      TEXT,
	model                   TEXT,
	processing_ms           INTEGER,
	is_active               INTEGER NOT NULL DEFAULT 1,
	created_at              DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_reports_created_at ON reports(created_at);
CREATE INDEX IF NOT EXISTS idx_reports_is_active ON reports(is_active);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, req model.RunRequest) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	reqJSON, err := json.Marshal(req)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal request")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, request, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, string(reqJSON), string(model.RunStatusQueued), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &model.Run{
		ID:        id,
		Request:   req,
		Status:    model.RunStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run status %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) UpdateRunResult(ctx context.Context, runID string, result *model.RunResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal result")
	}

	status := model.RunStatusComplete
	if !result.Success {
		status = model.RunStatusFailed
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET result = ?, status = ?, updated_at = ? WHERE id = ?`,
		string(resultJSON), string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run result %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, request, status, result, created_at, updated_at FROM runs WHERE id = ?`,
		runID,
	)
	return scanRun(row)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, request, status, result, created_at, updated_at FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) SaveReport(ctx context.Context, report *model.Report) error {
	if report.ID == "" {
		report.ID = uuid.New().String()
	}
	if report.CreatedAt.IsZero() {
		report.CreatedAt = time.Now().UTC()
	}
	report.IsActive = true

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reports (id, title, content, kind, product_description, segment,
			research_element, product_characteristics, benchmarks, required_players,
			required_countries, model, processing_ms, is_active, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?)`,
		report.ID, report.Title, report.Content, string(report.Kind),
		report.ProductDescription, report.Segment, report.ResearchElement,
		report.ProductCharacteristics, report.Benchmarks, report.RequiredPlayers,
		report.RequiredCountries, report.Model, report.ProcessingMillis, report.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: insert report")
}

const sqliteReportColumns = `id, title, content, kind, product_description, segment,
	research_element, product_characteristics, benchmarks, required_players,
	required_countries, model, processing_ms, is_active, created_at`

func (s *SQLiteStore) GetReport(ctx context.Context, reportID string) (*model.Report, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteReportColumns+` FROM reports WHERE id = ? AND is_active = 1`,
		reportID,
	)
	return scanReport(row)
}

func (s *SQLiteStore) ListRecentReports(ctx context.Context, limit int) ([]model.Report, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteReportColumns+` FROM reports WHERE is_active = 1
		 ORDER BY created_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list reports")
	}
	defer rows.Close()
	return collectReports(rows)
}

func (s *SQLiteStore) SearchReports(ctx context.Context, query string) ([]model.Report, error) {
	pattern := "%" + query + "%"
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteReportColumns+` FROM reports
		 WHERE is_active = 1 AND (title LIKE ? OR content LIKE ?)
		 ORDER BY created_at DESC LIMIT 50`,
		pattern, pattern,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: search reports")
	}
	defer rows.Close()
	return collectReports(rows)
}

func (s *SQLiteStore) DeleteReport(ctx context.Context, reportID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE reports SET is_active = 0 WHERE id = ? AND is_active = 1`,
		reportID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete report %s", reportID)
	}
	return checkRowsAffected(res, "report", reportID)
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var reqJSON string
	var resultJSON sql.NullString

	err := row.Scan(&r.ID, &reqJSON, &r.Status, &resultJSON, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.New("run not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}

	if err := json.Unmarshal([]byte(reqJSON), &r.Request); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal request")
	}
	if resultJSON.Valid {
		r.Result = &model.RunResult{}
		if err := json.Unmarshal([]byte(resultJSON.String), r.Result); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal result")
		}
	}
	return &r, nil
}

func scanReport(row scannable) (*model.Report, error) {
	var r model.Report
	err := row.Scan(&r.ID, &r.Title, &r.Content, &r.Kind, &r.ProductDescription,
		&r.Segment, &r.ResearchElement, &r.ProductCharacteristics, &r.Benchmarks,
		&r.RequiredPlayers, &r.RequiredCountries, &r.Model, &r.ProcessingMillis,
		&r.IsActive, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.New("report not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan report")
	}
	return &r, nil
}

func collectReports(rows *sql.Rows) ([]model.Report, error) {
	var reports []model.Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, *r)
	}
	return reports, eris.Wrap(rows.Err(), "sqlite: iterate reports")
}
