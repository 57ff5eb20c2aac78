package models

// Risk labels the analysis service is known to return. Anything else is
// still a valid risk score.
const (
	RiskLow    = "Low"
	RiskMedium = "Medium"
	RiskHigh   = "High"
)

// AnalysisRequest is sent to /analyze. Both fields are always present on the
// wire; an unset field is encoded as null.
type AnalysisRequest struct {
	Text *string `json:"text"`
	URL  *string `json:"url"`
}

// NewAnalysisRequest maps empty strings to nil.
func NewAnalysisRequest(text, url string) AnalysisRequest {
	return AnalysisRequest{Text: nullable(text), URL: nullable(url)}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

type AnalysisResult struct {
	Summary   string   `json:"summary"`
	RiskScore string   `json:"risk_score"`
	Alerts    []string `json:"alerts"`
}
