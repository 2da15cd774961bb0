package model

import (
	"net/url"
	"strings"
)

// CompanyRecord is one company extracted from the data-collection stage
// output. Country may hold a comma-separated list when a company operates in
// several markets.
type CompanyRecord struct {
	Name        string   `json:"name"`
	Country     string   `json:"country,omitempty"`
	Website     string   `json:"website,omitempty"`
	Description string   `json:"description,omitempty"`
	Links       []string `json:"links,omitempty"`
}

// CaseRecord is one detailed case write-up extracted from the case-analysis
// stage output.
type CaseRecord struct {
	Number      int      `json:"number"`
	Title       string   `json:"title"`
	Company     string   `json:"company,omitempty"`
	Country     string   `json:"country,omitempty"`
	Description string   `json:"description,omitempty"`
	Sources     []string `json:"sources,omitempty"`
}

// Countries splits a possibly comma-separated country field into its parts.
func (c CaseRecord) Countries() []string {
	if c.Country == "" {
		return nil
	}
	parts := strings.Split(c.Country, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// DocumentInsight is one fact mined from a local reference document.
// DownloadLink is always derived from SourceFile via DeriveDownloadLink,
// never supplied by the generation service.
type DocumentInsight struct {
	SourceFile   string   `json:"source_file"`
	DownloadLink string   `json:"download_link"`
	Section      string   `json:"section,omitempty"`
	Fact         string   `json:"fact"`
	Metric       string   `json:"metric,omitempty"`
	Date         string   `json:"date,omitempty"`
	URLs         []string `json:"urls,omitempty"`
}

// DeriveDownloadLink builds the canonical download link for a reference
// document: the internal asset base joined with the path-escaped file name.
func DeriveDownloadLink(assetBase, sourceFile string) string {
	return strings.TrimRight(assetBase, "/") + "/" + url.PathEscape(sourceFile)
}

// LinkOutcome is the result of probing one hyperlink.
type LinkOutcome string

const (
	LinkWorking LinkOutcome = "working"
	LinkBroken  LinkOutcome = "broken"
	LinkError   LinkOutcome = "error"
)

// VerifiedLink is a markdown link annotated with its probe outcome.
// StatusCode is zero when the probe failed at the transport level.
type VerifiedLink struct {
	Label      string      `json:"label"`
	URL        string      `json:"url"`
	Outcome    LinkOutcome `json:"outcome"`
	StatusCode int         `json:"status_code,omitempty"`
}
