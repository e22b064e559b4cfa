package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/elonfeng/bestpick/pkg/source"
)

const systemPrompt = "Be precise, avoid speculation, and prefer trustworthy sourcing."

const batchPrompt = `You are ranking products for the query: %q.
You get mixed sources (reddit threads, youtube videos, professional reviews). For EACH item:
1. "product": the product name/model the item is about (concise). Items about several products: pick the main one.
2. "sentiment": the item's opinion of that product, one of -1, -0.5, 0, 0.5, 1.
3. "confidence": 0-1, how sure you are of the sentiment label from the available text.
4. "pros": 0-4 short bullets, "cons": 0-3 short bullets, drawn from the text only.
5. "verdict": one sentence.
6. "price": the product price in USD if the text states it, else omit.
7. "bestPickScore": a refined 0-100 score that starts from preScore and adds for consistent positive sentiment, recency and credible sources.
If information is missing, leave fields minimal. DO NOT invent specs or quotes.

Items:
%s

Respond with a JSON array. Each element must have: "id" (the item ID), "product", "sentiment", "confidence", "pros", "cons", "verdict", and optionally "price" and "bestPickScore".
Return ONLY the JSON array, no other text.`

// LLMClassifier asks a chat model to label every item in one batch call.
type LLMClassifier struct {
	provider string // "openai" or "anthropic"
	model    string
	apiKey   string
	baseURL  string
	http     *http.Client
	oa       *openai.Client
	complete func(ctx context.Context, system, user string) (string, error)
}

// NewLLMClassifier creates a classifier for provider ("openai" or
// "anthropic"). baseURL is optional.
func NewLLMClassifier(provider, model, apiKey, baseURL string) *LLMClassifier {
	if model == "" {
		switch provider {
		case "anthropic":
			model = "claude-sonnet-4-20250514"
		default:
			model = "gpt-4o-mini"
		}
	}
	c := &LLMClassifier{
		provider: provider,
		model:    model,
		apiKey:   apiKey,
		baseURL:  baseURL,
		http:     &http.Client{Timeout: 90 * time.Second},
	}

	switch provider {
	case "anthropic":
		c.complete = c.callAnthropic
	default:
		cfg := openai.DefaultConfig(apiKey)
		if baseURL != "" {
			cfg.BaseURL = baseURL
		}
		c.oa = openai.NewClientWithConfig(cfg)
		c.complete = c.callOpenAI
	}
	return c
}

// Classify sends all items in one batch and returns labels for the items
// the model recognised. Replies matching neither an id nor a URL are dropped.
func (c *LLMClassifier) Classify(ctx context.Context, query string, items []source.Item) ([]Classification, error) {
	if len(items) == 0 {
		return nil, nil
	}

	known := make(map[string]bool, 2*len(items))
	var lines []string
	for _, it := range items {
		known[it.ID] = true
		known[it.URL] = true
		line := fmt.Sprintf("- ID: %s | Source: %s | PreScore: %d | Title: %s",
			it.ID, it.Source, it.Score, it.Title)
		if it.Snippet != "" {
			line += " | Snippet: " + source.Truncate(it.Snippet, 400)
		}
		if it.Upvotes > 0 {
			line += fmt.Sprintf(" | Upvotes: %d", it.Upvotes)
		}
		if it.Views > 0 {
			line += fmt.Sprintf(" | Views: %d", it.Views)
		}
		if it.PublishedAt != nil {
			line += " | Published: " + it.PublishedAt.Format("2006-01-02")
		}
		if it.URL != "" {
			line += " | URL: " + it.URL
		}
		lines = append(lines, line)
	}

	raw, err := c.complete(ctx, systemPrompt, fmt.Sprintf(batchPrompt, query, strings.Join(lines, "\n")))
	if err != nil {
		return nil, err
	}

	results, err := parseClassifications(raw)
	if err != nil {
		return nil, err
	}

	var out []Classification
	for _, r := range results {
		if !known[r.ID] && (r.URL == "" || !known[r.URL]) {
			continue
		}
		out = append(out, r.normalized())
	}
	return out, nil
}

// parseClassifications accepts a bare array, an {"items": [...]} object,
// and either one wrapped in a markdown code fence.
func parseClassifications(raw string) ([]Classification, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		if idx := strings.Index(raw[3:], "\n"); idx >= 0 {
			raw = raw[3+idx+1:]
		}
		raw = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(raw), "```"))
	}

	var results []Classification
	if strings.HasPrefix(raw, "{") {
		var wrapped struct {
			Items []Classification `json:"items"`
		}
		if err := json.Unmarshal([]byte(raw), &wrapped); err != nil {
			return nil, fmt.Errorf("parse llm response: %w\nraw: %s", err, source.Truncate(raw, 500))
		}
		return wrapped.Items, nil
	}
	if err := json.Unmarshal([]byte(raw), &results); err != nil {
		return nil, fmt.Errorf("parse llm response: %w\nraw: %s", err, source.Truncate(raw, 500))
	}
	return results, nil
}

func (c *LLMClassifier) callOpenAI(ctx context.Context, system, user string) (string, error) {
	resp, err := c.oa.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: 0.2,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	})
	if err != nil {
		return "", fmt.Errorf("call openai: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *LLMClassifier) callAnthropic(ctx context.Context, system, user string) (string, error) {
	baseURL := c.baseURL
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}

	payload := map[string]any{
		"model":      c.model,
		"max_tokens": 4096,
		"system":     system,
		"messages": []map[string]string{
			{"role": "user", "content": user},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal anthropic request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create anthropic request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("call anthropic: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		return "", fmt.Errorf("anthropic status %d: %v", resp.StatusCode, errResp)
	}

	var result struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode anthropic response: %w", err)
	}
	if len(result.Content) == 0 {
		return "", fmt.Errorf("anthropic: no content returned")
	}
	return result.Content[0].Text, nil
}
