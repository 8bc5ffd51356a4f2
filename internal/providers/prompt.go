package providers

import (
	"fmt"
	"strings"
)

const systemPrompt = "You are a financial risk analyst. Respond only with valid JSON, no prose outside the JSON object."

// buildPrompt renders the analysis instruction with the filing sections
// clipped to the per-section budget. Sending full sections blows the context
// window on some models and adds cost without improving the scores.
func buildPrompt(req AnalyzeRequest, budget int) string {
	name := req.CompanyName
	if name == "" {
		name = req.Ticker
	}
	var b strings.Builder
	fmt.Fprintf(&b, `Analyze the following excerpts from the most recent 10-K filing of %s (%s).

Return a JSON object with exactly this structure:
{
  "summary": "2-3 sentence summary of the company's overall risk profile",
  "risk_assessment": {
    "operational": {"score": 1, "risks": ["..."]},
    "financial": {"score": 1, "risks": ["..."]},
    "regulatory": {"score": 1, "risks": ["..."]},
    "strategic": {"score": 1, "risks": ["..."]},
    "reputational": {"score": 1, "risks": ["..."]}
  }
}

Each score is an integer from 1 (minimal risk) to 10 (severe risk). Each
"risks" list names the 2-4 most significant specific risks in that category,
drawn from the text below.

=== RISK FACTORS ===
%s

=== MANAGEMENT'S DISCUSSION AND ANALYSIS ===
%s
`, name, req.Ticker, clip(req.RiskFactors, budget), clip(req.MDA, budget))
	return b.String()
}

func clip(s string, budget int) string {
	if budget <= 0 || len(s) <= budget {
		return s
	}
	return s[:budget]
}
