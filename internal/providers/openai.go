package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"riskradar/internal/util"
)

// OpenAIAnalyzer talks to any OpenAI-compatible chat completions endpoint.
// The base URL is configurable so Groq, Ollama and other compatible backends
// work through the same client.
type OpenAIAnalyzer struct {
	baseURL string
	model   string
	apiKey  string
	budget  int
	client  *http.Client
}

func NewOpenAIAnalyzer(baseURL, model, apiKey string, budget int) *OpenAIAnalyzer {
	return &OpenAIAnalyzer{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		apiKey:  apiKey,
		budget:  budget,
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

func (o *OpenAIAnalyzer) Analyze(ctx context.Context, req AnalyzeRequest) (Analysis, ProviderInfo, error) {
	info := ProviderInfo{Name: "openai", Model: o.model}
	if o.apiKey == "" {
		return Analysis{}, info, fmt.Errorf("openai api key not configured")
	}

	payload, _ := json.Marshal(map[string]any{
		"model":       o.model,
		"temperature": 0.2,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": buildPrompt(req, o.budget)},
		},
	})
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return Analysis{}, info, fmt.Errorf("build completion request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return Analysis{}, info, fmt.Errorf("openai request failed: %w: %v", util.ErrTransient, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if err := classifyStatus(resp.StatusCode, body); err != nil {
		return Analysis{}, info, err
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil || len(parsed.Choices) == 0 {
		return Analysis{}, info, fmt.Errorf("unexpected completion envelope: %w", util.ErrMalformedResponse)
	}

	analysis, err := ParseAnalysis(parsed.Choices[0].Message.Content)
	if err != nil {
		return Analysis{}, info, err
	}
	return analysis, info, nil
}

func classifyStatus(status int, body []byte) error {
	switch {
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("openai error %d: %s: %w", status, string(body), util.ErrRateLimited)
	case status >= 500:
		return fmt.Errorf("openai error %d: %s: %w", status, string(body), util.ErrTransient)
	case status >= 400:
		// Quota exhaustion arrives as a 4xx with an insufficient_quota
		// code; it behaves like throttling for scheduling purposes.
		if bytes.Contains(bytes.ToLower(body), []byte("insufficient_quota")) {
			return fmt.Errorf("openai quota exhausted: %w", util.ErrRateLimited)
		}
		return fmt.Errorf("openai error %d: %s", status, string(body))
	}
	return nil
}
