package chat

import (
	"strings"

	"termslens/internal/models"
)

// ContextFor returns the text a panel sends with every question. Submitted
// text is used as-is. A URL analysis has no local text, so the panel is
// grounded on the URL and the analysis result instead.
func ContextFor(text, url string, result models.AnalysisResult) string {
	if strings.TrimSpace(text) != "" {
		return text
	}

	var b strings.Builder
	if url != "" {
		b.WriteString("Source: " + url + "\n\n")
	}
	b.WriteString("Summary: " + result.Summary + "\n\n")
	b.WriteString("Risk Score: " + result.RiskScore)
	if len(result.Alerts) > 0 {
		b.WriteString("\n\nAlerts:")
		for _, alert := range result.Alerts {
			b.WriteString("\n- " + alert)
		}
	}
	return b.String()
}
