package model

import "time"

// ResearchKind selects which flavor of research a run performs.
type ResearchKind string

const (
	// KindFeature researches how competitors implement a single product feature.
	KindFeature ResearchKind = "feature"
	// KindProduct researches whole products matching a set of characteristics.
	KindProduct ResearchKind = "product"
)

// Valid reports whether the kind is one of the supported research kinds.
func (k ResearchKind) Valid() bool {
	return k == KindFeature || k == KindProduct
}

// RunRequest is the immutable input to a pipeline run. Kind-specific fields:
// ResearchElement applies to feature research, ProductCharacteristics to
// product research.
type RunRequest struct {
	Kind                   ResearchKind `json:"kind"`
	ProductDescription     string       `json:"product_description"`
	Segment                string       `json:"segment"`
	ResearchElement        string       `json:"research_element,omitempty"`
	ProductCharacteristics string       `json:"product_characteristics,omitempty"`
	Benchmarks             string       `json:"benchmarks,omitempty"`
	RequiredPlayers        string       `json:"required_players,omitempty"`
	RequiredCountries      string       `json:"required_countries,omitempty"`
}

// Subject returns the kind-specific field describing what is being researched.
func (r RunRequest) Subject() string {
	if r.Kind == KindProduct {
		return r.ProductCharacteristics
	}
	return r.ResearchElement
}

// Stage identifies one step of the research pipeline.
type Stage string

const (
	StageDataCollection   Stage = "data_collection"
	StageLocalDocuments   Stage = "local_documents"
	StageCaseAnalysis     Stage = "case_analysis"
	StageReportGeneration Stage = "report_generation"
	StageLinkVerification Stage = "link_verification"

	// StageCompletion and StageError identify terminal events, not stages.
	StageCompletion Stage = "completion"
	StageError      Stage = "error"
)

// StageStatus is the state a stage reports in a progress event.
type StageStatus string

const (
	StatusPending   StageStatus = "pending"
	StatusActive    StageStatus = "active"
	StatusCompleted StageStatus = "completed"
	StatusError     StageStatus = "error"
)

// Event type discriminators for the progress stream.
const (
	EventStageUpdate = "stage_update"
	EventCompletion  = "completion"
)

// StageEvent is a progress notification pushed to the run's observer.
// Ephemeral: produced by stages, delivered best-effort, never persisted.
type StageEvent struct {
	Type      string      `json:"type"`
	Stage     Stage       `json:"stage"`
	Status    StageStatus `json:"status"`
	Progress  int         `json:"progress"`
	Message   string      `json:"message,omitempty"`
	Timestamp time.Time   `json:"timestamp"`

	// Completion-only fields.
	Success bool   `json:"success,omitempty"`
	Report  string `json:"report,omitempty"`
	Error   string `json:"error,omitempty"`
}

// StageUpdate builds a stage_update event stamped with the current time.
func StageUpdate(stage Stage, status StageStatus, progress int, message string) StageEvent {
	return StageEvent{
		Type:      EventStageUpdate,
		Stage:     stage,
		Status:    status,
		Progress:  progress,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
}

// Completion builds the terminal event for a run. On failure the report is
// empty and errMsg carries the consolidated error description.
func Completion(success bool, report, errMsg string) StageEvent {
	stage := StageCompletion
	status := StatusCompleted
	if !success {
		stage = StageError
		status = StatusError
	}
	return StageEvent{
		Type:      EventCompletion,
		Stage:     stage,
		Status:    status,
		Progress:  100,
		Timestamp: time.Now().UTC(),
		Success:   success,
		Report:    report,
		Error:     errMsg,
	}
}

// RunStatus represents the current state of a research run.
type RunStatus string

const (
	RunStatusQueued   RunStatus = "queued"
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run represents a single research run.
type Run struct {
	ID        string     `json:"id"`
	Request   RunRequest `json:"request"`
	Status    RunStatus  `json:"status"`
	Result    *RunResult `json:"result,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// RunResult holds the final outcome of a run: either a report or one
// consolidated error, never both.
type RunResult struct {
	Success         bool   `json:"success"`
	Report          string `json:"report,omitempty"`
	StagesCompleted int    `json:"stages_completed"`
	DurationMillis  int64  `json:"duration_ms"`
	Error           string `json:"error,omitempty"`
}
