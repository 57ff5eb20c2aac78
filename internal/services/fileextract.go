package services

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
)

// MaxDocumentBytes bounds uploaded and local documents.
const MaxDocumentBytes = 10 << 20

// SupportedDocumentTypes lists the extensions DocumentExtractor accepts.
var SupportedDocumentTypes = []string{".txt", ".md", ".pdf", ".docx"}

// DocumentExtractor turns a saved Terms & Conditions document into the plain
// text sent for analysis.
type DocumentExtractor struct{}

func NewDocumentExtractor() *DocumentExtractor {
	return &DocumentExtractor{}
}

func (e *DocumentExtractor) ExtractFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	return e.Extract(filepath.Base(path), f)
}

// Extract reads at most MaxDocumentBytes from r and dispatches on the
// extension of name.
func (e *DocumentExtractor) Extract(name string, r io.Reader) (string, error) {
	ext := strings.ToLower(filepath.Ext(name))
	if !isSupportedDocument(ext) {
		return "", fmt.Errorf("unsupported document type %q", ext)
	}

	data, err := io.ReadAll(io.LimitReader(r, MaxDocumentBytes+1))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", name, err)
	}
	if len(data) > MaxDocumentBytes {
		return "", fmt.Errorf("document %s exceeds %d bytes", name, MaxDocumentBytes)
	}

	var text string
	switch ext {
	case ".pdf":
		text, err = extractPDF(data)
	case ".docx":
		text, err = extractDOCX(data)
	default:
		text = string(data)
	}
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", name, err)
	}

	text = normalizeExtractedText(text)
	if text == "" {
		return "", fmt.Errorf("no extractable text found in %s", name)
	}
	return text, nil
}

func isSupportedDocument(ext string) bool {
	for _, supported := range SupportedDocumentTypes {
		if ext == supported {
			return true
		}
	}
	return false
}

func extractPDF(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for pageIndex := 1; pageIndex <= reader.NumPage(); pageIndex++ {
		page := reader.Page(pageIndex)
		if page.V.IsNull() {
			continue
		}

		content, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		b.WriteString(content)
		b.WriteString("\n")
	}
	return b.String(), nil
}

func extractDOCX(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}

	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", err
		}
		documentXML, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return "", err
		}
		return stripDOCXML(documentXML), nil
	}

	return "", fmt.Errorf("docx document.xml not found")
}

var xmlTagPattern = regexp.MustCompile(`<[^>]+>`)

var xmlEntities = strings.NewReplacer(
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&apos;", "'",
)

var docxBreaks = strings.NewReplacer(
	"</w:p>", "\n",
	"<w:br/>", "\n",
	"<w:br />", "\n",
	"<w:tab/>", "\t",
)

func stripDOCXML(src []byte) string {
	s := docxBreaks.Replace(string(src))
	s = xmlTagPattern.ReplaceAllString(s, "")
	return xmlEntities.Replace(s)
}

// normalizeExtractedText trims every line and collapses runs of blank lines
// to one.
func normalizeExtractedText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	var b strings.Builder
	blank := false
	for _, line := range strings.Split(s, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			if !blank {
				b.WriteString("\n")
			}
			blank = true
			continue
		}
		blank = false
		b.WriteString(trimmed)
		b.WriteString("\n")
	}

	return strings.TrimSpace(b.String())
}
