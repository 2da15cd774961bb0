// Package extract turns loosely-structured generated text into typed records.
//
// The generation service answers in free-form markdown, in English or Russian
// depending on the prompt, so extraction is best-effort line-prefix matching
// with a documented fallback ladder: structured parse, then loose line parse,
// then empty. Every function here is total: arbitrary input yields a
// (possibly empty) slice, never an error.
package extract

import (
	"encoding/json"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/maclay/research-assistant/internal/model"
)

// Label vocabularies. The prompts ask for labeled lines like "Company: Acme",
// but the model localizes labels freely, so both languages are recognized.
var (
	nameLabels    = []string{"компания", "company", "название", "name"}
	websiteLabels = []string{"сайт", "website", "url"}
	countryLabels = []string{"страна", "country"}
	companyLabels = []string{"компания", "company"}
	sourcesLabels = []string{"источники", "sources"}
)

var caseHeaderRe = regexp.MustCompile(`(?i)^\*{0,2}\s*(?:кейс|case)\s*№?\s*(\d+)`)

// Companies extracts company records from data-collection output. A labeled
// name line opens a record, a blank line closes it, bare URLs append to the
// record's links, and unlabeled lines accumulate into the description.
func Companies(text string) []model.CompanyRecord {
	var companies []model.CompanyRecord
	var cur *model.CompanyRecord

	flush := func() {
		if cur != nil {
			cur.Description = strings.TrimSpace(cur.Description)
			companies = append(companies, *cur)
			cur = nil
		}
	}

	for _, line := range splitLines(text) {
		if line == "" {
			flush()
			continue
		}

		key, value := splitLabel(line)
		switch {
		case matchLabel(key, nameLabels):
			flush()
			cur = &model.CompanyRecord{Name: value}
		case cur == nil:
			// Field lines before any name line carry no record to attach to.
		case matchLabel(key, websiteLabels):
			cur.Website = value
		case matchLabel(key, countryLabels):
			cur.Country = value
		case isBareURL(line):
			cur.Links = append(cur.Links, bareURL(line))
		default:
			appendDescription(&cur.Description, line)
		}
	}
	flush()

	return companies
}

// Cases extracts case write-ups from case-analysis output. A numbered case
// header opens a record (closing any previous one); text ending mid-record
// still flushes the final case.
func Cases(text string) []model.CaseRecord {
	var cases []model.CaseRecord
	var cur *model.CaseRecord

	flush := func() {
		if cur != nil {
			cur.Description = strings.TrimSpace(cur.Description)
			cases = append(cases, *cur)
			cur = nil
		}
	}

	for _, line := range splitLines(text) {
		if line == "" {
			continue
		}

		if m := caseHeaderRe.FindStringSubmatch(line); m != nil {
			flush()
			cur = &model.CaseRecord{
				Number: atoiSafe(m[1]),
				Title:  strings.TrimSpace(strings.ReplaceAll(line, "*", "")),
			}
			continue
		}
		if cur == nil {
			continue
		}

		key, value := splitLabel(line)
		switch {
		case matchLabel(key, companyLabels):
			cur.Company = value
		case matchLabel(key, countryLabels):
			cur.Country = value
		case matchLabel(key, sourcesLabels):
			if cur.Sources == nil {
				cur.Sources = []string{}
			}
		case isBareURL(line):
			cur.Sources = append(cur.Sources, bareURL(line))
		case strings.HasPrefix(line, "**"):
			// Unrecognized bold section header, not description content.
		default:
			appendDescription(&cur.Description, line)
		}
	}
	flush()

	return cases
}

// insightPayload mirrors the JSON schema the local-documents prompt requests.
// download_link is deliberately absent: it is always derived from the source
// file, never trusted from generated output.
type insightPayload struct {
	SourceFile string   `json:"source_file"`
	Section    string   `json:"section"`
	Fact       string   `json:"fact"`
	Metric     string   `json:"metric"`
	Date       string   `json:"date"`
	URLs       []string `json:"urls"`
}

// Insights parses document insights from generated output. It expects a JSON
// array, locates the first top-level array in the text (tolerating
// surrounding prose), and decodes it element by element, skipping malformed
// elements. If no array parses, it degrades to one insight per nonblank line.
func Insights(text string) []model.DocumentInsight {
	text = norm.NFC.String(text)

	if insights, ok := insightsFromJSON(text); ok {
		return insights
	}

	// Loose fallback: treat every nonblank line as a bare fact.
	var insights []model.DocumentInsight
	for _, line := range splitLines(text) {
		if line == "" || isJSONDebris(line) {
			continue
		}
		insights = append(insights, model.DocumentInsight{Fact: line})
	}
	return insights
}

func insightsFromJSON(text string) ([]model.DocumentInsight, bool) {
	for i := 0; i < len(text); i++ {
		if text[i] != '[' {
			continue
		}
		dec := json.NewDecoder(strings.NewReader(text[i:]))
		var elems []json.RawMessage
		if err := dec.Decode(&elems); err != nil {
			continue
		}

		insights := make([]model.DocumentInsight, 0, len(elems))
		for _, raw := range elems {
			var p insightPayload
			if err := json.Unmarshal(raw, &p); err != nil {
				continue
			}
			if p.Fact == "" && p.SourceFile == "" {
				continue
			}
			insights = append(insights, model.DocumentInsight{
				SourceFile: p.SourceFile,
				Section:    p.Section,
				Fact:       p.Fact,
				Metric:     p.Metric,
				Date:       p.Date,
				URLs:       p.URLs,
			})
		}
		return insights, true
	}
	return nil, false
}

// isJSONDebris filters structural JSON lines out of the loose fallback so a
// half-parseable response does not become brackets-as-facts.
func isJSONDebris(line string) bool {
	trimmed := strings.Trim(line, " \t,")
	switch trimmed {
	case "[", "]", "{", "}", "[]", "{}":
		return true
	}
	return false
}

// splitLines normalizes and splits text into trimmed lines.
func splitLines(text string) []string {
	text = norm.NFC.String(text)
	raw := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	lines := make([]string, len(raw))
	for i, l := range raw {
		lines[i] = strings.TrimSpace(l)
	}
	return lines
}

// splitLabel splits "Label: value" lines, tolerating markdown decoration
// around the label. Returns an empty key for lines with no colon.
func splitLabel(line string) (key, value string) {
	idx := strings.Index(line, ":")
	if idx < 0 {
		return "", ""
	}
	key = strings.ToLower(strings.Trim(line[:idx], "*-•# \t"))
	value = strings.TrimSpace(strings.Trim(line[idx+1:], "*"))
	return key, value
}

func matchLabel(key string, labels []string) bool {
	if key == "" {
		return false
	}
	for _, l := range labels {
		if key == l {
			return true
		}
	}
	return false
}

func isBareURL(line string) bool {
	return strings.HasPrefix(bareURL(line), "http://") || strings.HasPrefix(bareURL(line), "https://")
}

// bareURL strips list markers from a line that carries just a URL.
func bareURL(line string) string {
	return strings.TrimSpace(strings.TrimLeft(line, "-*• \t"))
}

func appendDescription(desc *string, line string) {
	if *desc != "" {
		*desc += " "
	}
	*desc += line
}

func atoiSafe(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return n
		}
		n = n*10 + int(r-'0')
	}
	return n
}
