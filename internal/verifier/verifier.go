// Package verifier checks markdown links in a finished report and removes
// the ones that do not resolve.
package verifier

import (
	"context"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/maclay/research-assistant/internal/model"
)

// markdownLinkRe matches inline markdown links with absolute http(s) targets.
// Relative links and bare URLs are left alone.
var markdownLinkRe = regexp.MustCompile(`\[([^\]]+)\]\((https?://[^()\s]+)\)`)

// excessBlankRe collapses the holes left behind by removed links: runs of
// three or more blank lines (four or more newlines). Double-blank-line
// spacing is deliberate formatting and survives.
var excessBlankRe = regexp.MustCompile(`\n{4,}`)

const (
	defaultProbeTimeout    = 10 * time.Second
	defaultMaxConcurrent   = 8
	defaultProbesPerSecond = 10
)

// Verifier probes the links found in report text. Internal asset links
// (downloads served by this application) are trusted without probing.
type Verifier struct {
	client         *http.Client
	limiter        *rate.Limiter
	maxConcurrent  int
	internalPrefix string
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithHTTPClient replaces the probing client, primarily for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(v *Verifier) { v.client = c }
}

// WithTimeout bounds each individual probe.
func WithTimeout(d time.Duration) Option {
	return func(v *Verifier) { v.client.Timeout = d }
}

// WithMaxConcurrent caps the number of in-flight probes.
func WithMaxConcurrent(n int) Option {
	return func(v *Verifier) {
		if n > 0 {
			v.maxConcurrent = n
		}
	}
}

// WithProbeRate throttles outbound probes to r per second.
func WithProbeRate(r float64) Option {
	return func(v *Verifier) {
		if r > 0 {
			v.limiter = rate.NewLimiter(rate.Limit(r), 1)
		}
	}
}

// New builds a Verifier. internalPrefix marks URLs that point at this
// application's own document downloads; they are reported working without a
// network probe.
func New(internalPrefix string, opts ...Option) *Verifier {
	// Match on a path-segment boundary: a "/data" prefix must not trust
	// "/datamine/...".
	if internalPrefix != "" && !strings.HasSuffix(internalPrefix, "/") {
		internalPrefix += "/"
	}
	v := &Verifier{
		// The default client follows redirects, which is what we want: a
		// link that 301s to a live page is a working link.
		client:         &http.Client{Timeout: defaultProbeTimeout},
		limiter:        rate.NewLimiter(rate.Limit(defaultProbesPerSecond), 1),
		maxConcurrent:  defaultMaxConcurrent,
		internalPrefix: internalPrefix,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Links scans text and returns every markdown link found, in order of first
// appearance, without probing anything.
func Links(text string) []model.VerifiedLink {
	matches := markdownLinkRe.FindAllStringSubmatch(text, -1)
	links := make([]model.VerifiedLink, 0, len(matches))
	for _, m := range matches {
		links = append(links, model.VerifiedLink{Label: m[1], URL: m[2]})
	}
	return links
}

// Verify probes every distinct link in text and returns the text with broken
// links removed (anchor text and all) plus the per-link outcomes. The
// returned text is a fixed point: verifying it again changes nothing. Verify
// never fails; links whose probes error are treated as broken.
func (v *Verifier) Verify(ctx context.Context, text string) (string, []model.VerifiedLink) {
	links := Links(text)
	if len(links) == 0 {
		return text, nil
	}

	outcomes := v.probeAll(ctx, links)

	cleaned := markdownLinkRe.ReplaceAllStringFunc(text, func(match string) string {
		m := markdownLinkRe.FindStringSubmatch(match)
		if outcomes[m[2]].Outcome == model.LinkWorking {
			return match
		}
		return ""
	})
	cleaned = collapseBlankLines(cleaned)

	results := make([]model.VerifiedLink, 0, len(links))
	for _, l := range links {
		out := outcomes[l.URL]
		l.Outcome = out.Outcome
		l.StatusCode = out.StatusCode
		results = append(results, l)
	}
	return cleaned, results
}

type probeResult struct {
	Outcome    model.LinkOutcome
	StatusCode int
}

// probeAll checks each distinct URL exactly once, regardless of how many
// times it appears in the text.
func (v *Verifier) probeAll(ctx context.Context, links []model.VerifiedLink) map[string]probeResult {
	distinct := make([]string, 0, len(links))
	seen := make(map[string]struct{}, len(links))
	for _, l := range links {
		if _, ok := seen[l.URL]; ok {
			continue
		}
		seen[l.URL] = struct{}{}
		distinct = append(distinct, l.URL)
	}

	var mu sync.Mutex
	outcomes := make(map[string]probeResult, len(distinct))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.maxConcurrent)
	for _, url := range distinct {
		g.Go(func() error {
			res := v.probe(gctx, url)
			mu.Lock()
			outcomes[url] = res
			mu.Unlock()
			return nil
		})
	}
	g.Wait() //nolint:errcheck // workers never return errors

	return outcomes
}

func (v *Verifier) probe(ctx context.Context, url string) probeResult {
	if v.internalPrefix != "" && strings.HasPrefix(url, v.internalPrefix) {
		return probeResult{Outcome: model.LinkWorking}
	}

	if err := v.limiter.Wait(ctx); err != nil {
		return probeResult{Outcome: model.LinkError}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return probeResult{Outcome: model.LinkError}
	}

	resp, err := v.client.Do(req)
	if err != nil {
		zap.L().Debug("link probe failed",
			zap.String("url", url),
			zap.Error(eris.Wrap(err, "verifier: head request")))
		return probeResult{Outcome: model.LinkError}
	}
	resp.Body.Close()

	if resp.StatusCode < 400 {
		return probeResult{Outcome: model.LinkWorking, StatusCode: resp.StatusCode}
	}
	return probeResult{Outcome: model.LinkBroken, StatusCode: resp.StatusCode}
}

// collapseBlankLines squeezes runs of three or more blank lines down to a
// single blank line and trims leading newlines left by removed headers.
func collapseBlankLines(text string) string {
	text = excessBlankRe.ReplaceAllString(text, "\n\n")
	return strings.TrimLeft(text, "\n")
}
