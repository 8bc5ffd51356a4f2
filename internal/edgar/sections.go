package edgar

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Sections holds the three narrative parts of a 10-K that feed analysis.
type Sections struct {
	Business    string
	RiskFactors string
	MDA         string
}

// Stored per section. RiskFactors and MD&A carry the analysis and get the
// larger budgets.
const (
	businessBudget    = 20_000
	riskFactorsBudget = 50_000
	mdaBudget         = 50_000
)

var (
	reItem1  = regexp.MustCompile(`(?i)item\s+1\s*[.:\x{2013}\x{2014}-]?\s*business`)
	reItem1A = regexp.MustCompile(`(?i)item\s+1a\s*[.:\x{2013}\x{2014}-]?\s*risk\s+factors`)
	reItem1B = regexp.MustCompile(`(?i)item\s+1b\b`)
	reItem2  = regexp.MustCompile(`(?i)item\s+2\b`)
	reItem7  = regexp.MustCompile(`(?i)item\s+7\s*[.:\x{2013}\x{2014}-]?\s*management`)
	reItem7A = regexp.MustCompile(`(?i)item\s+7a\b`)
	reItem8  = regexp.MustCompile(`(?i)item\s+8\b`)

	reSpace = regexp.MustCompile(`\s+`)
)

// ExtractSections pulls Item 1, Item 1A and Item 7 out of a 10-K primary
// document. Filing HTML is too inconsistent for structural selectors, so the
// document is flattened to text and split on the item headings.
func ExtractSections(html string) Sections {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Sections{}
	}
	doc.Find("script, style").Remove()
	text := reSpace.ReplaceAllString(doc.Text(), " ")

	return Sections{
		Business:    truncate(section(text, reItem1, reItem1A, reItem1B, reItem2), businessBudget),
		RiskFactors: truncate(section(text, reItem1A, reItem1B, reItem2), riskFactorsBudget),
		MDA:         truncate(section(text, reItem7, reItem7A, reItem8), mdaBudget),
	}
}

// section returns the text from the last occurrence of the start heading up
// to the nearest following end heading. Taking the last start occurrence
// skips the table of contents, where every heading also appears.
func section(text string, start *regexp.Regexp, ends ...*regexp.Regexp) string {
	starts := start.FindAllStringIndex(text, -1)
	if len(starts) == 0 {
		return ""
	}
	from := starts[len(starts)-1][1]

	to := len(text)
	for _, end := range ends {
		if loc := end.FindStringIndex(text[from:]); loc != nil && from+loc[0] < to {
			to = from + loc[0]
		}
	}
	return strings.TrimSpace(text[from:to])
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
