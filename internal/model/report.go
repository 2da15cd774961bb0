package model

import "time"

// Report is a persisted research report, the only artifact that survives a
// run. Deletion is soft: IsActive flips to false.
type Report struct {
	ID                     string       `json:"id"`
	Title                  string       `json:"title"`
	Content                string       `json:"content"`
	Kind                   ResearchKind `json:"kind"`
	ProductDescription     string       `json:"product_description,omitempty"`
	Segment                string       `json:"segment,omitempty"`
	ResearchElement        string       `json:"research_element,omitempty"`
	ProductCharacteristics string       `json:"product_characteristics,omitempty"`
	Benchmarks             string       `json:"benchmarks,omitempty"`
	RequiredPlayers        string       `json:"required_players,omitempty"`
	RequiredCountries      string       `json:"required_countries,omitempty"`
	Model                  string       `json:"model,omitempty"`
	ProcessingMillis       int64        `json:"processing_ms,omitempty"`
	IsActive               bool         `json:"is_active"`
	CreatedAt              time.Time    `json:"created_at"`
}

// ReportTitle derives a human-readable report title from the request.
func ReportTitle(req RunRequest) string {
	subject := req.Subject()
	if subject == "" {
		subject = req.ProductDescription
	}
	if req.Kind == KindProduct {
		return "Product research: " + subject
	}
	return "Feature research: " + subject
}
