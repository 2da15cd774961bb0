// Package store persists research runs and finished reports. Two backends
// are provided: SQLite for single-node deployments and Postgres for shared
// ones; the serve and run commands pick one from config.
package store

import (
	"context"

	"github.com/maclay/research-assistant/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for the research pipeline.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, req model.RunRequest) (*model.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	UpdateRunResult(ctx context.Context, runID string, result *model.RunResult) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Reports
	SaveReport(ctx context.Context, report *model.Report) error
	GetReport(ctx context.Context, reportID string) (*model.Report, error)
	ListRecentReports(ctx context.Context, limit int) ([]model.Report, error)
	SearchReports(ctx context.Context, query string) ([]model.Report, error)
	DeleteReport(ctx context.Context, reportID string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
