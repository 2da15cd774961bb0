package pipeline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maclay/research-assistant/internal/documents"
	"github.com/maclay/research-assistant/internal/model"
	"github.com/maclay/research-assistant/internal/progress"
	"github.com/maclay/research-assistant/internal/resilience"
	"github.com/maclay/research-assistant/internal/verifier"
	"github.com/maclay/research-assistant/pkg/gemini"
)

// stubGen scripts generation-service responses in call order.
type stubGen struct {
	mu        sync.Mutex
	responses []string
	err       error
	prompts   []string
	temps     []float64
}

func (s *stubGen) GenerateText(_ context.Context, prompt string, temperature float64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, prompt)
	s.temps = append(s.temps, temperature)
	if s.err != nil {
		return "", s.err
	}
	if len(s.responses) == 0 {
		return "", nil
	}
	resp := s.responses[0]
	s.responses = s.responses[1:]
	return resp, nil
}

func (s *stubGen) GenerateContent(ctx context.Context, req gemini.GenerateContentRequest) (*gemini.GenerateContentResponse, error) {
	var temp float64
	if req.GenerationConfig != nil {
		temp = req.GenerationConfig.Temperature
	}
	text, err := s.GenerateText(ctx, req.Contents[0].Parts[0].Text, temp)
	if err != nil {
		return nil, err
	}
	return &gemini.GenerateContentResponse{
		Candidates: []gemini.Candidate{{Content: gemini.Content{Parts: []gemini.Part{{Text: text}}}}},
	}, nil
}

func (s *stubGen) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.prompts)
}

// recorderConn captures every event pushed for a run.
type recorderConn struct {
	mu     sync.Mutex
	events []model.StageEvent
}

func (r *recorderConn) Send(event model.StageEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recorderConn) Alive() bool  { return true }
func (r *recorderConn) Close() error { return nil }

func (r *recorderConn) all() []model.StageEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.StageEvent(nil), r.events...)
}

func (r *recorderConn) terminal() model.StageEvent {
	events := r.all()
	for _, e := range events {
		if e.Type == model.EventCompletion {
			return e
		}
	}
	return model.StageEvent{}
}

func featureRequest() model.RunRequest {
	return model.RunRequest{
		Kind:               model.KindFeature,
		ProductDescription: "Mobile banking app",
		Segment:            "Retail SMB",
		ResearchElement:    "instant onboarding",
	}
}

func newTestProcessor(t *testing.T, gen gemini.Client, docsDir string, ver *verifier.Verifier) (*Processor, *recorderConn) {
	t.Helper()
	if docsDir == "" {
		docsDir = t.TempDir()
	}
	if ver == nil {
		ver = verifier.New("")
	}
	hub := progress.NewHub()
	conn := &recorderConn{}
	hub.Register("run-1", conn)

	docs := documents.New(docsDir, "https://maclay.pro/data")
	p := New(gen, docs, ver, hub, WithRetry(3, time.Millisecond))
	return p, conn
}

func TestRunEndToEnd(t *testing.T) {
	t.Parallel()

	// One link target stays up, the other is gone; exactly one survives.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/gone" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	docsDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(docsDir, "pricing.txt"), []byte("Median deal size is $42k."), 0o644))

	gen := &stubGen{responses: []string{
		// data collection
		"Company: Acme\nWebsite: " + srv.URL + "/acme\nCountry: USA\nInstant KYC onboarding.\n\nCompany: Borealis\nCountry: Norway\n",
		// local documents
		`[{"source_file": "pricing.txt", "fact": "Median deal size is $42k", "metric": "$42k"}]`,
		// case analysis
		"**Case 1: Acme**\nCompany: Acme\nCountry: USA\nOnboarding in under two minutes.\nSources:\n- " + srv.URL + "/acme\n",
		// report draft
		"# Feature research: instant onboarding\n\nDraft body.",
		// link enhancement
		"# Feature research: instant onboarding\n\nSee [Acme onboarding](" + srv.URL + "/acme) and [stale writeup](" + srv.URL + "/gone).",
	}}

	p, conn := newTestProcessor(t, gen, docsDir, verifier.New("", verifier.WithHTTPClient(srv.Client())))
	result := p.Run(context.Background(), "run-1", featureRequest())

	require.True(t, result.Success)
	assert.Equal(t, 5, result.StagesCompleted)
	assert.Contains(t, result.Report, "[Acme onboarding]("+srv.URL+"/acme)")
	assert.NotContains(t, result.Report, "stale writeup")

	terminal := conn.terminal()
	assert.True(t, terminal.Success)
	assert.Equal(t, result.Report, terminal.Report)
	assert.Equal(t, model.StageCompletion, terminal.Stage)

	// Every stage reported active then completed, in pipeline order.
	var completed []model.Stage
	for _, e := range conn.all() {
		if e.Type == model.EventStageUpdate && e.Status == model.StatusCompleted {
			completed = append(completed, e.Stage)
		}
	}
	assert.Equal(t, []model.Stage{
		model.StageDataCollection,
		model.StageLocalDocuments,
		model.StageCaseAnalysis,
		model.StageReportGeneration,
		model.StageLinkVerification,
	}, completed)

	assert.Equal(t, 5, gen.calls())
	assert.Equal(t, []float64{0.7, 0.3, 0.5, 0.3, 0.3}, gen.temps)
}

func TestRunEmptyDocumentsSkipsGenerationCall(t *testing.T) {
	t.Parallel()

	gen := &stubGen{responses: []string{
		"Company: Acme\nWebsite: https://acme.example\nCountry: USA\n",
		// next response feeds case analysis, NOT local documents
		"Case 1: Acme\nCompany: Acme\n",
		"Report body without links.",
	}}

	p, conn := newTestProcessor(t, gen, "", nil)
	result := p.Run(context.Background(), "run-1", featureRequest())

	require.True(t, result.Success)
	// data collection + case analysis + report draft + enhancement
	// (companies carry a website); never a local-documents call.
	assert.Equal(t, 4, gen.calls())
	for _, prompt := range gen.prompts {
		assert.NotContains(t, prompt, "reference documents")
	}

	var docsMsg string
	for _, e := range conn.all() {
		if e.Stage == model.StageLocalDocuments && e.Status == model.StatusCompleted {
			docsMsg = e.Message
		}
	}
	assert.Equal(t, "No local documents found", docsMsg)
}

func TestRunUpstreamAlways500(t *testing.T) {
	t.Parallel()

	gen := &stubGen{err: &gemini.StatusError{StatusCode: http.StatusInternalServerError, Body: "boom"}}

	p, conn := newTestProcessor(t, gen, "", nil)
	result := p.Run(context.Background(), "run-1", featureRequest())

	require.False(t, result.Success)
	assert.Zero(t, result.StagesCompleted)
	assert.Contains(t, result.Error, "data_collection failed")
	assert.Equal(t, 3, gen.calls(), "every attempt of the retry budget is spent")

	terminal := conn.terminal()
	assert.False(t, terminal.Success)
	assert.Empty(t, terminal.Report)
	assert.NotEmpty(t, terminal.Error)

	var active, errored int
	for _, e := range conn.all() {
		if e.Stage != model.StageDataCollection {
			continue
		}
		switch e.Status {
		case model.StatusActive:
			active++
		case model.StatusError:
			errored++
		}
	}
	assert.Equal(t, 3, active, "stage start plus one progress event per retry")
	assert.Equal(t, 1, errored)
}

func TestRunMissingDocumentsDirFailsStage(t *testing.T) {
	t.Parallel()

	gen := &stubGen{responses: []string{
		"Company: Acme\nCountry: USA\n",
	}}

	hub := progress.NewHub()
	conn := &recorderConn{}
	hub.Register("run-1", conn)
	docs := documents.New(filepath.Join(t.TempDir(), "missing"), "")
	p := New(gen, docs, verifier.New(""), hub, WithRetry(1, time.Millisecond))

	result := p.Run(context.Background(), "run-1", featureRequest())

	require.False(t, result.Success)
	assert.Equal(t, 1, result.StagesCompleted)
	assert.Contains(t, result.Error, "local_documents failed")
	assert.False(t, conn.terminal().Success)
}

func TestRunInvalidKind(t *testing.T) {
	t.Parallel()

	gen := &stubGen{}
	p, conn := newTestProcessor(t, gen, "", nil)

	result := p.Run(context.Background(), "run-1", model.RunRequest{Kind: "sorcery"})

	require.False(t, result.Success)
	assert.Zero(t, gen.calls())
	assert.False(t, conn.terminal().Success)
	assert.Contains(t, conn.terminal().Error, "sorcery")
}

func TestRunDerivesInsightDownloadLinks(t *testing.T) {
	t.Parallel()

	docsDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(docsDir, "market report.txt"), []byte("facts"), 0o644))

	gen := &stubGen{responses: []string{
		"Company: Acme\nCountry: USA\n",
		// The model tries to supply its own download link; it must be ignored.
		`[{"source_file": "market report.txt", "fact": "Growth is strong", "urls": ["https://ext.example"]}]`,
		"Case 1: Acme\nCompany: Acme\n",
		"Report.",
	}}

	p, _ := newTestProcessor(t, gen, docsDir, nil)
	result := p.Run(context.Background(), "run-1", featureRequest())
	require.True(t, result.Success)

	// The derived link (asset base + escaped file name) reaches the
	// enhancement prompt's source list.
	var enhancement string
	for _, prompt := range gen.prompts {
		if strings.Contains(prompt, "DRAFT REPORT") {
			enhancement = prompt
		}
	}
	require.NotEmpty(t, enhancement)
	assert.Contains(t, enhancement, "https://maclay.pro/data/market%20report.txt")
}

func TestSourceURLsDeduplicatesAndCaps(t *testing.T) {
	t.Parallel()

	st := &stageState{
		companies: []model.CompanyRecord{{Website: "https://a.example", Links: []string{"https://a.example"}}},
		cases:     []model.CaseRecord{{Sources: []string{"https://a.example", "https://b.example"}}},
	}
	p := &Processor{}

	urls := p.sourceURLs(st)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, urls)

	var many []model.CaseRecord
	for i := 0; i < 50; i++ {
		many = append(many, model.CaseRecord{Sources: []string{"https://s.example/" + string(rune('a'+i))}})
	}
	st = &stageState{cases: many}
	assert.Len(t, p.sourceURLs(st), maxEnhancementURLs)
}

func TestNewUsesDefaultRetryBudget(t *testing.T) {
	t.Parallel()

	p := New(&stubGen{}, nil, nil, progress.NewHub())
	def := resilience.DefaultRetryConfig()
	assert.Equal(t, def.MaxAttempts, p.maxAttempts)
	assert.Equal(t, def.BackoffUnit, p.backoffUnit)
}
