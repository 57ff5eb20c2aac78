package view

import (
	"bytes"
	"html/template"
	"log"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
)

var (
	markdown = goldmark.New()
	sanitize = bluemonday.UGCPolicy()
)

// RenderMarkdown converts an assistant answer to sanitized HTML. If the
// conversion fails the answer is shown as escaped text.
func RenderMarkdown(src string) template.HTML {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(src), &buf); err != nil {
		log.Printf("markdown conversion failed: %v", err)
		return template.HTML(template.HTMLEscapeString(src))
	}
	return template.HTML(sanitize.SanitizeBytes(buf.Bytes()))
}
