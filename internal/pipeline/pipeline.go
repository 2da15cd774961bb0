// Package pipeline sequences the five research stages: market-data
// collection, local-document mining, case analysis, report generation, and
// link verification. State flows strictly forward; a stage that exhausts its
// retries aborts the whole run.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/maclay/research-assistant/internal/documents"
	"github.com/maclay/research-assistant/internal/extract"
	"github.com/maclay/research-assistant/internal/model"
	"github.com/maclay/research-assistant/internal/progress"
	"github.com/maclay/research-assistant/internal/resilience"
	"github.com/maclay/research-assistant/internal/verifier"
	"github.com/maclay/research-assistant/pkg/gemini"
)

// Temperatures per generation call, tuned per stage: exploratory collection
// runs hot, structured output runs cold.
const (
	tempDataCollection  = 0.7
	tempLocalDocuments  = 0.3
	tempCaseAnalysis    = 0.5
	tempReport          = 0.3
	tempLinkEnhancement = 0.3
)

const maxEnhancementURLs = 30

// Processor orchestrates one research run end to end.
type Processor struct {
	gen      gemini.Client
	docs     *documents.Library
	verifier *verifier.Verifier
	hub      *progress.Hub

	maxAttempts int
	backoffUnit time.Duration
}

// Option configures a Processor.
type Option func(*Processor)

// WithRetry overrides the per-stage retry budget and backoff unit.
func WithRetry(maxAttempts int, backoffUnit time.Duration) Option {
	return func(p *Processor) {
		if maxAttempts > 0 {
			p.maxAttempts = maxAttempts
		}
		if backoffUnit > 0 {
			p.backoffUnit = backoffUnit
		}
	}
}

// New builds a Processor over its collaborators.
func New(gen gemini.Client, docs *documents.Library, ver *verifier.Verifier, hub *progress.Hub, opts ...Option) *Processor {
	retry := resilience.DefaultRetryConfig()
	p := &Processor{
		gen:         gen,
		docs:        docs,
		verifier:    ver,
		hub:         hub,
		maxAttempts: retry.MaxAttempts,
		backoffUnit: retry.BackoffUnit,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// stageState carries the intermediate artifacts between stages.
type stageState struct {
	companies []model.CompanyRecord
	insights  []model.DocumentInsight
	cases     []model.CaseRecord
	report    string
}

// stageDescriptor is one entry of the run's fixed stage sequence.
type stageDescriptor struct {
	stage   model.Stage
	message string
	run     func(ctx context.Context, st *stageState) (string, error)
}

func (p *Processor) stages(req model.RunRequest) []stageDescriptor {
	return []stageDescriptor{
		{model.StageDataCollection, "Collecting market data...", func(ctx context.Context, st *stageState) (string, error) {
			return p.collectMarketData(ctx, req, st)
		}},
		{model.StageLocalDocuments, "Mining local documents...", func(ctx context.Context, st *stageState) (string, error) {
			return p.mineLocalDocuments(ctx, req, st)
		}},
		{model.StageCaseAnalysis, "Analyzing cases...", func(ctx context.Context, st *stageState) (string, error) {
			return p.analyzeCases(ctx, req, st)
		}},
		{model.StageReportGeneration, "Generating report...", func(ctx context.Context, st *stageState) (string, error) {
			return p.generateReport(ctx, req, st)
		}},
		{model.StageLinkVerification, "Verifying links...", func(ctx context.Context, st *stageState) (string, error) {
			return p.verifyLinks(ctx, st)
		}},
	}
}

// Run executes the full pipeline for runID. It always returns a result: on
// stage exhaustion the result carries Success=false and the consolidated
// error message, and the observer has already received the terminal
// completion event. Partial stage output never leaves the pipeline.
func (p *Processor) Run(ctx context.Context, runID string, req model.RunRequest) *model.RunResult {
	start := time.Now()
	st := &stageState{}

	if !req.Kind.Valid() {
		err := eris.Errorf("pipeline: unknown research kind %q", req.Kind)
		p.hub.Send(runID, model.Completion(false, "", err.Error()))
		return &model.RunResult{Error: err.Error(), DurationMillis: time.Since(start).Milliseconds()}
	}

	stages := p.stages(req)
	for i, desc := range stages {
		zap.L().Info("stage starting",
			zap.String("run_id", runID),
			zap.String("stage", string(desc.stage)))
		p.hub.Send(runID, model.StageUpdate(desc.stage, model.StatusActive, 0, desc.message))

		msg, err := p.executeStage(ctx, runID, desc.stage, func(ctx context.Context) (string, error) {
			return desc.run(ctx, st)
		})
		if err != nil {
			errMsg := fmt.Sprintf("%s failed: %s", desc.stage, eris.Cause(err).Error())
			zap.L().Error("run failed",
				zap.String("run_id", runID),
				zap.String("stage", string(desc.stage)),
				zap.Error(err))
			p.hub.Send(runID, model.Completion(false, "", errMsg))
			return &model.RunResult{
				Error:           errMsg,
				StagesCompleted: i,
				DurationMillis:  time.Since(start).Milliseconds(),
			}
		}

		p.hub.Send(runID, model.StageUpdate(desc.stage, model.StatusCompleted, 100, msg))
	}

	p.hub.Send(runID, model.Completion(true, st.report, ""))
	zap.L().Info("run complete",
		zap.String("run_id", runID),
		zap.Duration("elapsed", time.Since(start)))
	return &model.RunResult{
		Success:         true,
		Report:          st.report,
		StagesCompleted: len(stages),
		DurationMillis:  time.Since(start).Milliseconds(),
	}
}

func (p *Processor) collectMarketData(ctx context.Context, req model.RunRequest, st *stageState) (string, error) {
	text, err := p.gen.GenerateText(ctx, dataCollectionPrompt(req), tempDataCollection)
	if err != nil {
		return "", eris.Wrap(err, "pipeline: data collection")
	}
	st.companies = extract.Companies(text)
	return fmt.Sprintf("Found %d companies", len(st.companies)), nil
}

func (p *Processor) mineLocalDocuments(ctx context.Context, req model.RunRequest, st *stageState) (string, error) {
	corpus, included, err := p.docs.Corpus(ctx)
	if err != nil {
		return "", eris.Wrap(err, "pipeline: local documents")
	}
	// No documents is a normal outcome, not worth a generation call.
	if included == 0 {
		st.insights = nil
		return "No local documents found", nil
	}

	text, err := p.gen.GenerateText(ctx, localDocumentsPrompt(req, corpus), tempLocalDocuments)
	if err != nil {
		return "", eris.Wrap(err, "pipeline: local documents")
	}

	st.insights = extract.Insights(text)
	for i := range st.insights {
		if st.insights[i].SourceFile != "" {
			st.insights[i].DownloadLink = p.docs.DownloadLink(st.insights[i].SourceFile)
		}
	}
	return fmt.Sprintf("Extracted %d insights from %d documents", len(st.insights), included), nil
}

func (p *Processor) analyzeCases(ctx context.Context, req model.RunRequest, st *stageState) (string, error) {
	text, err := p.gen.GenerateText(ctx, caseAnalysisPrompt(req, st.companies, st.insights), tempCaseAnalysis)
	if err != nil {
		return "", eris.Wrap(err, "pipeline: case analysis")
	}
	st.cases = extract.Cases(text)
	return fmt.Sprintf("Analyzed %d cases", len(st.cases)), nil
}

func (p *Processor) generateReport(ctx context.Context, req model.RunRequest, st *stageState) (string, error) {
	draft, err := p.gen.GenerateText(ctx, reportPrompt(req, st.cases), tempReport)
	if err != nil {
		return "", eris.Wrap(err, "pipeline: report generation")
	}

	// Citation enhancement is best-effort: a failed or empty second call
	// falls back to the draft rather than burning a retry of the whole stage.
	if urls := p.sourceURLs(st); len(urls) > 0 {
		enhanced, err := p.gen.GenerateText(ctx, linkEnhancementPrompt(draft, urls), tempLinkEnhancement)
		if err != nil {
			zap.L().Warn("link enhancement failed, keeping draft", zap.Error(err))
		} else if enhanced != "" {
			draft = enhanced
		}
	}

	st.report = cleanReport(draft)
	return "Report ready", nil
}

func (p *Processor) verifyLinks(ctx context.Context, st *stageState) (string, error) {
	cleaned, results := p.verifier.Verify(ctx, st.report)
	st.report = cleaned

	working := 0
	for _, r := range results {
		if r.Outcome == model.LinkWorking {
			working++
		}
	}
	return fmt.Sprintf("Verified %d links, %d working", len(results), working), nil
}

// sourceURLs gathers the distinct source URLs accumulated by earlier stages,
// capped to keep the enhancement prompt bounded.
func (p *Processor) sourceURLs(st *stageState) []string {
	seen := make(map[string]struct{})
	var urls []string
	add := func(u string) {
		if u == "" || len(urls) >= maxEnhancementURLs {
			return
		}
		if _, ok := seen[u]; ok {
			return
		}
		seen[u] = struct{}{}
		urls = append(urls, u)
	}

	for _, c := range st.cases {
		for _, s := range c.Sources {
			add(s)
		}
	}
	for _, c := range st.companies {
		add(c.Website)
		for _, l := range c.Links {
			add(l)
		}
	}
	for _, ins := range st.insights {
		add(ins.DownloadLink)
		for _, u := range ins.URLs {
			add(u)
		}
	}
	return urls
}
