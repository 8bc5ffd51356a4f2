package edgar

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleDoc = `<html><body>
<div>Table of Contents</div>
<p>Item 1. Business .......... 3</p>
<p>Item 1A. Risk Factors .......... 10</p>
<p>Item 7. Management's Discussion and Analysis .......... 30</p>
<h2>Item 1. Business</h2>
<p>We design widgets and sell them worldwide.</p>
<h2>Item 1A. Risk Factors</h2>
<p>Demand for widgets may decline. Supply chains may fail.</p>
<h2>Item 1B. Unresolved Staff Comments</h2>
<p>None.</p>
<h2>Item 7. Management's Discussion and Analysis</h2>
<p>Revenue grew 12 percent driven by widget volume.</p>
<h2>Item 7A. Quantitative and Qualitative Disclosures</h2>
<p>Interest rate exposure is limited.</p>
<script>ignore_me();</script>
</body></html>`

func TestExtractSections(t *testing.T) {
	s := ExtractSections(sampleDoc)

	require.Contains(t, s.Business, "design widgets")
	require.NotContains(t, s.Business, "Demand for widgets")

	require.Contains(t, s.RiskFactors, "Demand for widgets may decline")
	require.NotContains(t, s.RiskFactors, "Unresolved Staff Comments")

	require.Contains(t, s.MDA, "Revenue grew 12 percent")
	require.NotContains(t, s.MDA, "Interest rate exposure")
	require.NotContains(t, s.MDA, "ignore_me")
}

func TestExtractSectionsSkipsTableOfContents(t *testing.T) {
	// The heading appears twice; the section must start at the body
	// occurrence, not the contents entry.
	s := ExtractSections(sampleDoc)
	require.NotContains(t, s.RiskFactors, "..........")
}

func TestExtractSectionsMissingHeadings(t *testing.T) {
	s := ExtractSections("<html><body><p>quarterly report, no items</p></body></html>")
	require.Empty(t, s.Business)
	require.Empty(t, s.RiskFactors)
	require.Empty(t, s.MDA)
}

func TestExtractSectionsTruncates(t *testing.T) {
	long := "<h2>Item 1A. Risk Factors</h2><p>" + strings.Repeat("risk ", 20_000) + "</p><h2>Item 1B</h2>"
	s := ExtractSections("<html><body>" + long + "</body></html>")
	require.Len(t, s.RiskFactors, riskFactorsBudget)
}
