// Package view renders analysis results and chat sessions.
package view

import (
	"fmt"
	"html/template"
	"io"
	"strings"

	"termslens/internal/models"
)

// Palette is the pair of colors used for a risk badge.
type Palette struct {
	Foreground string
	Background string
}

var (
	paletteLow     = Palette{Foreground: "#4caf50", Background: "#e8f5e9"}
	paletteMedium  = Palette{Foreground: "#ff9800", Background: "#fff3e0"}
	paletteHigh    = Palette{Foreground: "#f44336", Background: "#ffebee"}
	paletteNeutral = Palette{Foreground: "#757575", Background: "#f5f5f5"}
)

// RiskColors maps a risk label to its palette. Unrecognized labels get the
// neutral gray pair.
func RiskColors(label string) Palette {
	switch label {
	case models.RiskLow:
		return paletteLow
	case models.RiskMedium:
		return paletteMedium
	case models.RiskHigh:
		return paletteHigh
	default:
		return paletteNeutral
	}
}

type Badge struct {
	Label   string
	Palette Palette
}

// Style is the inline CSS for the badge; the border uses the foreground.
func (b Badge) Style() template.CSS {
	return template.CSS(fmt.Sprintf("background-color: %s; color: %s; border-color: %s",
		b.Palette.Background, b.Palette.Foreground, b.Palette.Foreground))
}

type AlertItem struct {
	Index int // 1-based
	Text  string
}

// ResultView is the card layout for one AnalysisResult.
type ResultView struct {
	Summary string
	Badge   Badge
	Alerts  []AlertItem
}

func NewResultView(result models.AnalysisResult) ResultView {
	alerts := make([]AlertItem, len(result.Alerts))
	for i, alert := range result.Alerts {
		alerts[i] = AlertItem{Index: i + 1, Text: alert}
	}
	return ResultView{
		Summary: result.Summary,
		Badge:   Badge{Label: result.RiskScore, Palette: RiskColors(result.RiskScore)},
		Alerts:  alerts,
	}
}

// RenderResult writes the HTML result cards.
func RenderResult(w io.Writer, result models.AnalysisResult) error {
	return templates.ExecuteTemplate(w, "result", NewResultView(result))
}

// RenderResultText writes the result cards for a terminal.
func RenderResultText(w io.Writer, result models.AnalysisResult) error {
	v := NewResultView(result)

	var b strings.Builder
	b.WriteString("Analysis Summary\n")
	fmt.Fprintf(&b, "  %s\n\n", v.Summary)
	b.WriteString("Risk Assessment\n")
	fmt.Fprintf(&b, "  Risk Score: %s\n\n", v.Badge.Label)
	b.WriteString("Alerts & Concerns\n")
	for _, alert := range v.Alerts {
		fmt.Fprintf(&b, "  %d. %s\n", alert.Index, alert.Text)
	}

	_, err := io.WriteString(w, b.String())
	return err
}
