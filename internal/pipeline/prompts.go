package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/maclay/research-assistant/internal/model"
)

// Prompt builders for each generation call. Output-format instructions are
// load-bearing: the extractor's label vocabulary and the case template below
// must stay in sync with internal/extract.

func dataCollectionPrompt(req model.RunRequest) string {
	if req.Kind == model.KindFeature {
		return fmt.Sprintf(`You are an expert at researching fintech products.

GOAL: collect the most detailed information available about companies that use the feature "%s".

RESEARCH PARAMETERS:
- Product: %s
- Segment: %s
- Feature: %s
- Benchmarks: %s
- Must-include players: %s
- Must-include countries: %s

TASK:
1. Find at least 15-20 companies.
2. For EVERY company collect official source links: the official site, product and feature pages, case studies, customer reviews, press releases, funding news, partner integrations, documentation.
3. If links are scarce, dig deeper: LinkedIn, Crunchbase, TechCrunch, Product Hunt, industry publications.

OUTPUT FORMAT, one block per company, labeled lines:
Company: [name]
Website: [official site]
Country: [country]
[short description of how the company uses the feature]
[one source URL per line]

No images, no screenshots, text only. Group companies by country or region.`,
			req.ResearchElement,
			req.ProductDescription, req.Segment, req.ResearchElement,
			req.Benchmarks, req.RequiredPlayers, req.RequiredCountries)
	}

	return fmt.Sprintf(`You are an expert at researching fintech products.

GOAL: collect information about products matching the characteristics "%s".

RESEARCH PARAMETERS:
- Product: %s
- Segment: %s
- Characteristics: %s
- Must-include players: %s
- Must-include countries: %s

TASK:
1. Find 15-20 products matching the characteristics.
2. For each product give the company behind it, the product name, country, key characteristics, official site and additional sources.

OUTPUT FORMAT, one block per product, labeled lines. The Company line MUST
come first in every block:
Company: [company name]
Product: [product name]
Website: [official site]
Country: [country]
[key characteristics, one short paragraph]
[one source URL per line]

No images, no screenshots, text only.`,
		req.ProductCharacteristics,
		req.ProductDescription, req.Segment, req.ProductCharacteristics,
		req.RequiredPlayers, req.RequiredCountries)
}

func localDocumentsPrompt(req model.RunRequest, corpus string) string {
	return fmt.Sprintf(`You are a research analyst. Below are excerpts from internal reference documents, each introduced by "=== File: <name> ===" with its download link.

RESEARCH PARAMETERS:
- Product: %s
- Segment: %s
- Focus: %s

DOCUMENTS:
%s

TASK: extract every fact from the documents that is relevant to the research focus. Respond with ONLY a JSON array, no prose before or after. Each element:
{"source_file": "<file name exactly as given>", "section": "<section or heading>", "fact": "<the fact, one sentence>", "metric": "<number with unit, if any>", "date": "<date, if any>", "urls": ["<urls mentioned near the fact>"]}

Omit fields you cannot fill rather than inventing values. An empty array is a valid answer.`,
		req.ProductDescription, req.Segment, req.Subject(), corpus)
}

func caseAnalysisPrompt(req model.RunRequest, companies []model.CompanyRecord, insights []model.DocumentInsight) string {
	input := struct {
		Companies []model.CompanyRecord   `json:"companies"`
		Insights  []model.DocumentInsight `json:"document_insights,omitempty"`
	}{companies, insights}
	data, _ := json.MarshalIndent(input, "", "  ")

	focus := "Feature: " + req.ResearchElement
	if req.Kind == model.KindProduct {
		focus = "Characteristics: " + req.ProductCharacteristics
	}

	return fmt.Sprintf(`You are a senior fintech analyst. Analyze the collected data and produce detailed case studies.

INPUT DATA:
%s

RESEARCH PARAMETERS:
- Product: %s
- Segment: %s
- %s

TASK: write 10-12 detailed cases using exactly this template:

**Case [number]: [company or product name]**

**Company:** [company name]

**Country:** [country of registration]

[detailed description: how it works, where it sits in the user journey, who it targets, metrics and results with concrete dates where available]

**Sources:**
- [source URL]
- [source URL]

RULES:
- at least 5 supporting source URLs per case where the input data allows
- every case unique, every link taken from the input data or known to work
- text only, no images or screenshots`,
		string(data), req.ProductDescription, req.Segment, focus)
}

func reportPrompt(req model.RunRequest, cases []model.CaseRecord) string {
	data, _ := json.MarshalIndent(cases, "", "  ")

	if req.Kind == model.KindFeature {
		return fmt.Sprintf(`You are a senior fintech analyst. Produce the final research report from the analyzed cases.

ANALYZED CASES:
%s

RESEARCH PARAMETERS:
- Product: %s
- Segment: %s
- Feature: %s

PRODUCE THE REPORT IN THIS FORMAT:

# Feature research: %s

## Executive Summary
[5-7 bullet points]

## Case analysis
[detailed write-up of each case]

### Case comparison table
| # | Company | Country | Feature description | Sources |

## Applicability to our product
[analysis with concrete recommendations]

## Implementation plan
[step-by-step plan with difficulty estimates]

## Risks and constraints
[risks and how to mitigate them]

RULES: markdown only, tables for structured data, at least 3 source links per company in the comparison table, text only.`,
			string(data), req.ProductDescription, req.Segment, req.ResearchElement, req.ResearchElement)
	}

	return fmt.Sprintf(`You are a senior fintech analyst. Produce the final research report from the analyzed products.

ANALYZED PRODUCTS:
%s

RESEARCH PARAMETERS:
- Product: %s
- Segment: %s
- Characteristics: %s

PRODUCE THE REPORT IN THIS FORMAT:

# Product research: %s

## Executive Summary
[5-7 bullet points]

## Product analysis
[detailed write-up of each product]

### Product comparison table
| # | Product | Company | Country | Characteristics | Sources |

## Market trends
[trends and patterns]

## Recommendations
[concrete recommendations for our product]

## Development plan
[step-by-step plan]

RULES: markdown only, tables for structured data, at least 3 source links per product in the comparison table, text only.`,
		string(data), req.ProductDescription, req.Segment, req.ProductCharacteristics, req.ProductCharacteristics)
}

func linkEnhancementPrompt(draft string, sourceURLs []string) string {
	return fmt.Sprintf(`You are an expert at sourcing citations. Below is a draft research report and a list of verified source URLs collected during the research.

SOURCE URLS:
%s

DRAFT REPORT:
%s

TASK: return the SAME report with inline markdown citations added: wherever a claim, case or table row is supported by one of the source URLs, cite it as [descriptive label](url). Use only URLs from the list above. Do not change the report's structure, headings or conclusions. Return only the report markdown.`,
		"- "+strings.Join(sourceURLs, "\n- "), draft)
}
