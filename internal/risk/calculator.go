// Package risk computes dashboard-level statistics from the latest risk
// assessments. Everything here is pure: no storage, no mutation, recomputed
// on each request.
package risk

import (
	"math"

	"riskradar/internal/models"
)

// Categories is the fixed assessment taxonomy. Every analysis carries exactly
// one score per category.
var Categories = []string{"operational", "financial", "regulatory", "strategic", "reputational"}

const (
	SeverityHigh   = "high"
	SeverityMedium = "medium"
	SeverityLow    = "low"
)

// Severity labels a single category score.
func Severity(score int) string {
	switch {
	case score >= 7:
		return SeverityHigh
	case score >= 4:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Overall is the arithmetic mean of category scores, rounded to one decimal.
func Overall(scores []int) float64 {
	if len(scores) == 0 {
		return 0
	}
	sum := 0
	for _, s := range scores {
		sum += s
	}
	return round1(float64(sum) / float64(len(scores)))
}

// Bucket classifies an un-rounded overall score. The thresholds partition the
// analyzed set exactly: high ≥ 7.0, medium ≥ 4.0, low below.
func Bucket(overall float64) string {
	switch {
	case overall >= 7.0:
		return SeverityHigh
	case overall >= 4.0:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Summarize aggregates the latest assessments per company into the dashboard
// summary. Companies absent from byCompany have no completed analysis and are
// excluded from every statistic rather than counted as zero-risk.
func Summarize(totalCompanies int, byCompany map[int64][]models.RiskAssessment) models.RiskSummary {
	summary := models.RiskSummary{
		TotalCompanies: totalCompanies,
		RiskByCategory: make(map[string]*float64, len(Categories)),
	}

	categorySums := make(map[string]int, len(Categories))
	categoryCounts := make(map[string]int, len(Categories))
	var overallSum float64

	for _, assessments := range byCompany {
		if len(assessments) == 0 {
			continue
		}
		scores := make([]int, 0, len(assessments))
		for _, a := range assessments {
			scores = append(scores, a.Score)
			categorySums[a.Category] += a.Score
			categoryCounts[a.Category]++
		}
		overall := mean(scores)
		overallSum += overall
		summary.AnalyzedCompanies++
		switch Bucket(overall) {
		case SeverityHigh:
			summary.HighRiskCount++
		case SeverityMedium:
			summary.MediumRiskCount++
		default:
			summary.LowRiskCount++
		}
	}

	for _, cat := range Categories {
		if categoryCounts[cat] == 0 {
			summary.RiskByCategory[cat] = nil
			continue
		}
		avg := round1(float64(categorySums[cat]) / float64(categoryCounts[cat]))
		summary.RiskByCategory[cat] = &avg
	}

	if summary.AnalyzedCompanies > 0 {
		avg := round1(overallSum / float64(summary.AnalyzedCompanies))
		summary.AverageRiskScore = &avg
	}
	return summary
}

// Scores converts one company's assessments into the per-company view used by
// the companies endpoints.
func Scores(assessments []models.RiskAssessment) *models.RiskScores {
	if len(assessments) == 0 {
		return nil
	}
	out := &models.RiskScores{}
	scores := make([]int, 0, len(assessments))
	for i := range assessments {
		a := assessments[i]
		scores = append(scores, a.Score)
		switch a.Category {
		case "operational":
			out.Operational = &assessments[i].Score
		case "financial":
			out.Financial = &assessments[i].Score
		case "regulatory":
			out.Regulatory = &assessments[i].Score
		case "strategic":
			out.Strategic = &assessments[i].Score
		case "reputational":
			out.Reputational = &assessments[i].Score
		}
	}
	overall := Overall(scores)
	out.Overall = &overall
	return out
}

func mean(scores []int) float64 {
	sum := 0
	for _, s := range scores {
		sum += s
	}
	return float64(sum) / float64(len(scores))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
