package ingest

import (
	"fmt"
	"io"
	"os"
	"strings"

	"themeflow/internal/models"
	"themeflow/internal/util"

	"github.com/ledongthuc/pdf"
)

// SourceFromPDF extracts a paper source from a PDF on disk. The source id is
// the content hash of the file so re-uploading the same paper is a no-op
// upsert.
func SourceFromPDF(path string) (models.Source, error) {
	text, err := ExtractText(path)
	if err != nil {
		return models.Source{}, err
	}

	f, err := os.Open(path)
	if err != nil {
		return models.Source{}, fmt.Errorf("open pdf for hashing: %w", err)
	}
	defer f.Close()
	id, err := util.SHA256HexFromReader(f)
	if err != nil {
		return models.Source{}, fmt.Errorf("hash pdf: %w", err)
	}

	return models.Source{
		SourceID: id,
		Type:     models.SourcePaper,
		Title:    heuristicTitle(text),
		Content:  text,
		Metadata: map[string]string{"contentType": "full_text", "origin": "pdf_upload"},
	}, nil
}

func ExtractText(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	reader, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text: %w", err)
	}
	buf := new(strings.Builder)
	if _, err := io.Copy(buf, reader); err != nil {
		return "", fmt.Errorf("read extracted text: %w", err)
	}
	text := util.SanitizeText(strings.TrimSpace(buf.String()))
	if text == "" {
		return "", util.ErrNoExtractableText
	}
	return text, nil
}

// heuristicTitle takes the first non-trivial line. Good enough for display;
// callers can overwrite it from richer metadata.
func heuristicTitle(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if len(line) >= 8 {
			if len(line) > 160 {
				line = line[:160]
			}
			return line
		}
	}
	fields := strings.Fields(text)
	if len(fields) > 12 {
		fields = fields[:12]
	}
	return strings.Join(fields, " ")
}
