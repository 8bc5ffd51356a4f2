// Package edgar is the filing retrieval adapter: it resolves tickers to CIK
// numbers, locates the latest 10-K submission and pulls the primary document
// from the SEC archives. Failures are wrapped with the shared failure classes
// so the retry policy can match on them.
package edgar

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"riskradar/internal/util"
)

type Client struct {
	client    *http.Client
	userAgent string
	baseURL   string
	dataURL   string

	mu      sync.Mutex
	tickers map[string]tickerRecord
}

type tickerRecord struct {
	CIK  int64
	Name string
}

// Filing10K is the adapter's result: identity backfill data plus the latest
// 10-K with its extracted sections.
type Filing10K struct {
	CIK             string
	CompanyName     string
	Sector          string
	AccessionNumber string
	FilingDate      time.Time
	FiscalYear      *int
	DocumentURL     string
	Sections        Sections
}

func NewClient(userAgent, baseURL, dataURL string) *Client {
	return &Client{
		client:    &http.Client{Timeout: 60 * time.Second},
		userAgent: userAgent,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		dataURL:   strings.TrimSuffix(dataURL, "/"),
	}
}

// FetchLatest10K returns the most recent 10-K for the ticker. A ticker that
// is unknown to EDGAR, or known but without a 10-K on file, is NotFound.
func (c *Client) FetchLatest10K(ctx context.Context, ticker string) (Filing10K, error) {
	rec, err := c.resolveTicker(ctx, ticker)
	if err != nil {
		return Filing10K{}, err
	}

	subsURL := fmt.Sprintf("%s/submissions/CIK%010d.json", c.dataURL, rec.CIK)
	body, err := c.get(ctx, subsURL)
	if err != nil {
		return Filing10K{}, err
	}
	var subs submissions
	if err := json.Unmarshal(body, &subs); err != nil {
		return Filing10K{}, fmt.Errorf("decode submissions for %s: %w: %v", ticker, util.ErrTransient, err)
	}

	idx := -1
	for i, form := range subs.Filings.Recent.Form {
		if form == "10-K" {
			idx = i
			break
		}
	}
	if idx < 0 {
		return Filing10K{}, fmt.Errorf("no 10-K on file for %s: %w", ticker, util.ErrNotFound)
	}
	recent := subs.Filings.Recent
	// The recent arrays are parallel; a ragged payload must not panic the
	// fetch goroutine.
	if idx >= len(recent.AccessionNumber) || idx >= len(recent.FilingDate) || idx >= len(recent.PrimaryDocument) {
		return Filing10K{}, fmt.Errorf("ragged submissions arrays for %s: %w", ticker, util.ErrMalformedResponse)
	}
	accession := recent.AccessionNumber[idx]
	filingDate, err := time.Parse("2006-01-02", recent.FilingDate[idx])
	if err != nil {
		return Filing10K{}, fmt.Errorf("parse filing date %q: %w: %v", recent.FilingDate[idx], util.ErrTransient, err)
	}

	var fiscalYear *int
	if idx < len(recent.ReportDate) {
		if report, err := time.Parse("2006-01-02", recent.ReportDate[idx]); err == nil {
			y := report.Year()
			fiscalYear = &y
		}
	}

	docURL := fmt.Sprintf("%s/Archives/edgar/data/%d/%s/%s",
		c.baseURL, rec.CIK, strings.ReplaceAll(accession, "-", ""), recent.PrimaryDocument[idx])
	doc, err := c.get(ctx, docURL)
	if err != nil {
		return Filing10K{}, err
	}

	return Filing10K{
		CIK:             fmt.Sprintf("%010d", rec.CIK),
		CompanyName:     subs.Name,
		Sector:          subs.SICDescription,
		AccessionNumber: accession,
		FilingDate:      filingDate,
		FiscalYear:      fiscalYear,
		DocumentURL:     docURL,
		Sections:        ExtractSections(string(doc)),
	}, nil
}

func (c *Client) resolveTicker(ctx context.Context, ticker string) (tickerRecord, error) {
	c.mu.Lock()
	cached := c.tickers
	c.mu.Unlock()

	if cached == nil {
		body, err := c.get(ctx, c.baseURL+"/files/company_tickers.json")
		if err != nil {
			return tickerRecord{}, err
		}
		var raw map[string]struct {
			CIK    int64  `json:"cik_str"`
			Ticker string `json:"ticker"`
			Title  string `json:"title"`
		}
		if err := json.Unmarshal(body, &raw); err != nil {
			return tickerRecord{}, fmt.Errorf("decode ticker map: %w: %v", util.ErrTransient, err)
		}
		cached = make(map[string]tickerRecord, len(raw))
		for _, e := range raw {
			cached[strings.ToUpper(e.Ticker)] = tickerRecord{CIK: e.CIK, Name: e.Title}
		}
		c.mu.Lock()
		c.tickers = cached
		c.mu.Unlock()
	}

	rec, ok := cached[strings.ToUpper(ticker)]
	if !ok {
		return tickerRecord{}, fmt.Errorf("ticker %s not known to EDGAR: %w", ticker, util.ErrNotFound)
	}
	return rec, nil
}

// get performs one EDGAR request with the mandatory identifying User-Agent
// and maps HTTP outcomes onto the failure taxonomy.
func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build edgar request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("edgar get %s: %w: %v", url, util.ErrTransient, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("edgar get %s: status 404: %w", url, util.ErrNotFound)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusForbidden:
		// EDGAR throttles with 429 and serves a 403 block page to abusers.
		return nil, fmt.Errorf("edgar get %s: status %d: %w", url, resp.StatusCode, util.ErrRateLimited)
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("edgar get %s: status %d: %w", url, resp.StatusCode, util.ErrTransient)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read edgar response: %w: %v", util.ErrTransient, err)
	}
	return body, nil
}

type submissions struct {
	CIK            string `json:"cik"`
	Name           string `json:"name"`
	SICDescription string `json:"sicDescription"`
	Filings        struct {
		Recent struct {
			AccessionNumber []string `json:"accessionNumber"`
			FilingDate      []string `json:"filingDate"`
			ReportDate      []string `json:"reportDate"`
			Form            []string `json:"form"`
			PrimaryDocument []string `json:"primaryDocument"`
		} `json:"recent"`
	} `json:"filings"`
}
