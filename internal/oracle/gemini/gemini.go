// Package gemini implements oracle.Oracle on top of the official genai client.
// It only performs the API call; pacing and retries are applied as oracle middleware.
package gemini

import (
	"context"
	"fmt"
	"os"
	"strings"

	genai "google.golang.org/genai"

	"versefinder/internal/oracle"
)

// Config selects the models behind each tier.
type Config struct {
	APIKeyEnv string
	FastModel string
	DeepModel string
}

type generateFunc func(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)

type Client struct {
	fast     string
	deep     string
	generate generateFunc
}

func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.APIKeyEnv == "" {
		cfg.APIKeyEnv = "GEMINI_API_KEY"
	}
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: key, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, err
	}
	if cfg.FastModel == "" {
		cfg.FastModel = "gemini-2.5-flash"
	}
	if cfg.DeepModel == "" {
		cfg.DeepModel = "gemini-2.5-pro"
	}
	return &Client{fast: cfg.FastModel, deep: cfg.DeepModel, generate: cli.Models.GenerateContent}, nil
}

func (c *Client) Name() string { return "gemini" }
func (c *Client) Close() error { return nil }

func (c *Client) model(t oracle.Tier) string {
	if t == oracle.TierDeep {
		return c.deep
	}
	return c.fast
}

func (c *Client) Generate(ctx context.Context, req oracle.Request) (oracle.Response, error) {
	temp := req.Temperature
	gc := &genai.GenerateContentConfig{Temperature: &temp}
	if req.Mode == oracle.ModeJSON {
		gc.ResponseMIMEType = "application/json"
	}
	resp, err := c.generate(ctx, c.model(req.Tier),
		[]*genai.Content{{Parts: []*genai.Part{{Text: req.Instruction}}}},
		gc,
	)
	if err != nil {
		return oracle.Response{}, err
	}
	return fromResponse(resp)
}

func fromResponse(resp *genai.GenerateContentResponse) (oracle.Response, error) {
	if resp == nil {
		return oracle.Response{}, oracle.ErrEmptyResponse
	}
	var usage *oracle.Usage
	if m := resp.UsageMetadata; m != nil {
		usage = &oracle.Usage{PromptTokens: int(m.PromptTokenCount), CompletionTokens: int(m.CandidatesTokenCount)}
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return oracle.Response{Usage: usage}, oracle.NewPermanentError(fmt.Errorf("%w: %s", oracle.ErrBlocked, resp.PromptFeedback.BlockReason))
	}
	if len(resp.Candidates) == 0 {
		return oracle.Response{Usage: usage}, oracle.NewPermanentError(oracle.ErrBlocked)
	}
	cand := resp.Candidates[0]
	if cand.Content == nil || len(cand.Content.Parts) == 0 {
		if cand.FinishReason == genai.FinishReasonSafety {
			return oracle.Response{Usage: usage}, oracle.NewPermanentError(oracle.ErrBlocked)
		}
		return oracle.Response{Usage: usage}, oracle.ErrEmptyResponse
	}
	var b strings.Builder
	for _, p := range cand.Content.Parts {
		if p != nil && !p.Thought {
			b.WriteString(p.Text)
		}
	}
	if strings.TrimSpace(b.String()) == "" {
		return oracle.Response{Usage: usage}, oracle.ErrEmptyResponse
	}
	return oracle.Response{Text: b.String(), Usage: usage}, nil
}
