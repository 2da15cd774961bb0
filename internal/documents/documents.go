// Package documents gives the pipeline access to the local research corpus:
// text, markdown, and PDF files dropped into a data directory, served back to
// readers as download links.
package documents

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/maclay/research-assistant/internal/model"
)

// DefaultMaxExcerptChars bounds how much of each document is handed to the
// generation model. Large PDFs otherwise blow the prompt budget.
const DefaultMaxExcerptChars = 8000

// Document is one file in the corpus.
type Document struct {
	Name string
	Path string
}

// PDFExtractor extracts plain text from a PDF file.
type PDFExtractor interface {
	ExtractText(ctx context.Context, pdfPath string) (string, error)
}

// Library reads the corpus directory.
type Library struct {
	dir             string
	assetBase       string
	maxExcerptChars int
	pdf             PDFExtractor
}

// Option configures a Library.
type Option func(*Library)

// WithMaxExcerptChars overrides the per-document excerpt cap.
func WithMaxExcerptChars(n int) Option {
	return func(l *Library) {
		if n > 0 {
			l.maxExcerptChars = n
		}
	}
}

// WithPDFExtractor replaces the PDF text extractor, primarily for tests.
func WithPDFExtractor(p PDFExtractor) Option {
	return func(l *Library) { l.pdf = p }
}

// New builds a Library over dir. assetBase is the public URL prefix under
// which the same files are served for download.
func New(dir, assetBase string, opts ...Option) *Library {
	l := &Library{
		dir:             dir,
		assetBase:       assetBase,
		maxExcerptChars: DefaultMaxExcerptChars,
		pdf:             NewPdfToText(""),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Dir returns the corpus directory path.
func (l *Library) Dir() string { return l.dir }

// List returns the readable documents in the corpus, sorted by name. A
// missing directory is an error; an existing empty directory is not.
func (l *Library) List() ([]Document, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, eris.Wrapf(err, "documents: read dir %s", l.dir)
	}

	var docs []Document
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".txt", ".md", ".pdf":
			docs = append(docs, Document{Name: e.Name(), Path: filepath.Join(l.dir, e.Name())})
		}
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Name < docs[j].Name })
	return docs, nil
}

// Excerpt returns up to the configured number of characters of a document's
// text. PDFs go through the PDF extractor; everything else is read directly.
func (l *Library) Excerpt(ctx context.Context, doc Document) (string, error) {
	var text string
	if strings.EqualFold(filepath.Ext(doc.Name), ".pdf") {
		extracted, err := l.pdf.ExtractText(ctx, doc.Path)
		if err != nil {
			return "", eris.Wrapf(err, "documents: extract pdf %s", doc.Name)
		}
		text = extracted
	} else {
		raw, err := os.ReadFile(doc.Path)
		if err != nil {
			return "", eris.Wrapf(err, "documents: read %s", doc.Name)
		}
		text = string(raw)
	}
	return truncateRunes(strings.TrimSpace(text), l.maxExcerptChars), nil
}

// DownloadLink returns the public URL for a document.
func (l *Library) DownloadLink(name string) string {
	return model.DeriveDownloadLink(l.assetBase, name)
}

// Corpus assembles the excerpts of every document into one prompt-ready
// block, each excerpt annotated with its file name and download link.
// Documents that cannot be read are skipped with a warning rather than
// failing the whole corpus.
func (l *Library) Corpus(ctx context.Context) (string, int, error) {
	docs, err := l.List()
	if err != nil {
		return "", 0, err
	}

	var b strings.Builder
	included := 0
	for _, doc := range docs {
		excerpt, err := l.Excerpt(ctx, doc)
		if err != nil {
			zap.L().Warn("skipping unreadable document",
				zap.String("file", doc.Name),
				zap.Error(err))
			continue
		}
		if excerpt == "" {
			continue
		}
		fmt.Fprintf(&b, "=== File: %s ===\nDownload link: %s\n\n%s\n\n", doc.Name, l.DownloadLink(doc.Name), excerpt)
		included++
	}
	return strings.TrimSpace(b.String()), included, nil
}

// truncateRunes cuts s to at most n runes without splitting a multibyte
// character.
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
