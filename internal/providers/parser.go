package providers

import (
	"encoding/json"
	"fmt"
	"strings"

	"riskradar/internal/util"
)

var categories = []string{"operational", "financial", "regulatory", "strategic", "reputational"}

// ParseAnalysis decodes a model response into an Analysis. Models wrap JSON
// in markdown fences or leading prose more often than not, so the parser
// strips fences and scans for the outermost object before decoding. Anything
// that still fails to decode is a malformed response.
func ParseAnalysis(text string) (Analysis, error) {
	raw := extractJSON(text)
	if raw == "" {
		return Analysis{}, fmt.Errorf("no JSON object in model response: %w", util.ErrMalformedResponse)
	}

	var out Analysis
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return Analysis{}, fmt.Errorf("decode model response: %w: %v", util.ErrMalformedResponse, err)
	}

	if out.Summary == "" {
		out.Summary = "No summary provided."
	}
	if out.Risk == nil {
		out.Risk = make(map[string]CategoryAssessment, len(categories))
	}
	// Missing categories get a neutral midpoint score rather than failing
	// the whole filing; out-of-range scores are clamped to 1..10.
	for _, cat := range categories {
		a, ok := out.Risk[cat]
		if !ok {
			out.Risk[cat] = CategoryAssessment{Score: 5, Risks: []string{}}
			continue
		}
		if a.Score < 1 {
			a.Score = 1
		}
		if a.Score > 10 {
			a.Score = 10
		}
		if a.Risks == nil {
			a.Risks = []string{}
		}
		out.Risk[cat] = a
	}
	return out, nil
}

func extractJSON(text string) string {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}
