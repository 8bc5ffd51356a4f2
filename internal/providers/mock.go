package providers

import (
	"context"
	"crypto/sha256"
	"fmt"
)

// MockAnalyzer produces deterministic analyses keyed off the ticker, so
// repeated runs score a company identically. Used for local development and
// for exercising the pipeline without credentials.
type MockAnalyzer struct{}

func NewMockAnalyzer() *MockAnalyzer {
	return &MockAnalyzer{}
}

func (m *MockAnalyzer) Analyze(ctx context.Context, req AnalyzeRequest) (Analysis, ProviderInfo, error) {
	_ = ctx
	sum := sha256.Sum256([]byte(req.Ticker))
	risk := make(map[string]CategoryAssessment, len(categories))
	for i, cat := range categories {
		score := int(sum[i])%10 + 1
		risk[cat] = CategoryAssessment{
			Score: score,
			Risks: []string{
				fmt.Sprintf("Deterministic %s risk for %s", cat, req.Ticker),
			},
		}
	}
	return Analysis{
		Summary: fmt.Sprintf("Deterministic mock risk profile for %s.", req.Ticker),
		Risk:    risk,
	}, ProviderInfo{Name: "mock", Model: "mock-analyzer-v1"}, nil
}
