// Package providers wraps the LLM backends that turn filing sections into a
// structured risk analysis. All backends parse into the same Analysis shape,
// so the job runner never sees provider-specific output.
package providers

import (
	"context"
	"fmt"

	"riskradar/internal/config"
)

type ProviderInfo struct {
	Name  string `json:"name"`
	Model string `json:"model"`
}

type AnalyzeRequest struct {
	Ticker      string
	CompanyName string
	RiskFactors string
	MDA         string
}

// CategoryAssessment is one category's verdict: a 1-10 score and the specific
// risks backing it.
type CategoryAssessment struct {
	Score int      `json:"score"`
	Risks []string `json:"risks"`
}

type Analysis struct {
	Summary string                        `json:"summary"`
	Risk    map[string]CategoryAssessment `json:"risk_assessment"`
}

type Analyzer interface {
	Analyze(ctx context.Context, req AnalyzeRequest) (Analysis, ProviderInfo, error)
}

// New builds the configured analyzer. The mock backend needs no key and is
// the default so the system runs end to end without credentials.
func New(cfg config.Config) (Analyzer, error) {
	switch cfg.LLMProvider {
	case "mock", "":
		return NewMockAnalyzer(), nil
	case "openai":
		return NewOpenAIAnalyzer(cfg.LLMBaseURL, cfg.LLMModel, cfg.LLMAPIKey, cfg.SectionCharBudget), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLMProvider)
	}
}
