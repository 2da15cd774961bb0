package documents

import (
	"context"
	"errors"
	"os/exec"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// Excerpts are character-capped downstream, so extraction stops after
// maxPDFPages pages instead of rendering long decks in full.
const maxPDFPages = 25

// PdfToText extracts PDF text by shelling out to poppler's pdftotext.
type PdfToText struct {
	binPath string
}

// NewPdfToText returns an extractor invoking binPath, or "pdftotext" from
// PATH when binPath is empty.
func NewPdfToText(binPath string) *PdfToText {
	if binPath == "" {
		binPath = "pdftotext"
	}
	return &PdfToText{binPath: binPath}
}

// ExtractText converts the first maxPDFPages pages of the PDF to
// layout-preserving UTF-8 text on stdout.
func (p *PdfToText) ExtractText(ctx context.Context, pdfPath string) (string, error) {
	cmd := exec.CommandContext(ctx, p.binPath,
		"-q",
		"-layout",
		"-enc", "UTF-8",
		"-l", strconv.Itoa(maxPDFPages),
		pdfPath,
		"-",
	)

	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return "", eris.Errorf("documents: pdftotext %s: %s",
				pdfPath, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", eris.Wrapf(err, "documents: pdftotext %s", pdfPath)
	}
	return string(out), nil
}
