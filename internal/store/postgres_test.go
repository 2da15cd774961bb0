package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maclay/research-assistant/internal/model"
)

func testTime() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_CreateRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO runs`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), "queued", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	run, err := s.CreateRun(context.Background(), testRequest())
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunStatusQueued, run.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateRunStatus_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE runs SET status`).
		WithArgs("running", pgxmock.AnyArg(), "missing-run").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UpdateRunStatus(context.Background(), "missing-run", model.RunStatusRunning)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateRunResult_FailedStatus(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE runs SET result`).
		WithArgs(pgxmock.AnyArg(), "failed", pgxmock.AnyArg(), "run-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.UpdateRunResult(context.Background(), "run-1",
		&model.RunResult{Success: false, Error: "case_analysis failed"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, request, status, result, created_at, updated_at FROM runs WHERE id = \$1`).
		WithArgs("nonexistent-run").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetRun(context.Background(), "nonexistent-run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "get run")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveReport(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO reports`).
		WithArgs(pgxmock.AnyArg(), "Feature research: instant onboarding", "# Body", "feature",
			"", "", "", "", "", "", "", "gemini-2.5-flash", int64(1500), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	report := &model.Report{
		Title:            "Feature research: instant onboarding",
		Content:          "# Body",
		Kind:             model.KindFeature,
		Model:            "gemini-2.5-flash",
		ProcessingMillis: 1500,
	}
	require.NoError(t, s.SaveReport(context.Background(), report))
	assert.NotEmpty(t, report.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteReport_SoftDelete(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE reports SET is_active = false`).
		WithArgs("report-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.DeleteReport(context.Background(), "report-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRecentReports(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	rows := pgxmock.NewRows([]string{
		"id", "title", "content", "kind", "product_description", "segment",
		"research_element", "product_characteristics", "benchmarks",
		"required_players", "required_countries", "model", "processing_ms",
		"is_active", "created_at",
	}).AddRow("r1", "Title", "Body", "feature", "", "", "", "", "", "", "",
		"gemini-2.5-flash", int64(100), true, testTime())

	mock.ExpectQuery(`SELECT .+ FROM reports WHERE is_active`).
		WithArgs(10).
		WillReturnRows(rows)

	reports, err := s.ListRecentReports(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, "r1", reports[0].ID)
	assert.Equal(t, model.KindFeature, reports[0].Kind)
	assert.NoError(t, mock.ExpectationsWereMet())
}
