package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"versefinder/internal/oracle"
)

// Client is an OpenAI-compatible chat completions client implementing oracle.Oracle.
type Client struct {
	baseURL    string
	apiKey     string
	fastModel  string
	deepModel  string
	client     *http.Client
	maxRetries int
	sleep      func(context.Context, time.Duration) error
}

// Config configures the OpenAI-compatible chat client.
type Config struct {
	BaseURL    string
	APIKeyEnv  string
	FastModel  string
	DeepModel  string
	Timeout    time.Duration
	MaxRetries int
}

// NewClient creates a new chat client using the provided configuration.
func NewClient(cfg Config) (*Client, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.FastModel == "" {
		cfg.FastModel = "gpt-4o-mini"
	}
	if cfg.DeepModel == "" {
		cfg.DeepModel = "gpt-4o"
	}
	t := cfg.Timeout
	if t == 0 {
		t = 60 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     key,
		fastModel:  cfg.FastModel,
		deepModel:  cfg.DeepModel,
		client:     &http.Client{Timeout: t},
		maxRetries: cfg.MaxRetries,
		sleep:      sleepCtx,
	}, nil
}

// Name returns the identifier of this backend.
func (c *Client) Name() string { return "openai" }

func (c *Client) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

func (c *Client) model(t oracle.Tier) string {
	if t == oracle.TierDeep {
		return c.deepModel
	}
	return c.fastModel
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []message       `json:"messages"`
	Temperature    float32         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message      message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Generate sends one instruction as a single user message.
func (c *Client) Generate(ctx context.Context, r oracle.Request) (oracle.Response, error) {
	body := chatRequest{
		Model:       c.model(r.Tier),
		Messages:    []message{{Role: "user", Content: r.Instruction}},
		Temperature: r.Temperature,
	}
	if r.Mode == oracle.ModeJSON {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}
	data, err := json.Marshal(body)
	if err != nil {
		return oracle.Response{}, oracle.NewPermanentError(err)
	}
	url := c.baseURL + "/chat/completions"

	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
		if err != nil {
			return oracle.Response{}, oracle.NewPermanentError(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return oracle.Response{}, ctx.Err()
			}
			if attempt < c.maxRetries {
				if err := c.sleep(ctx, retryDelay(attempt)); err != nil {
					return oracle.Response{}, err
				}
				continue
			}
			return oracle.Response{}, err
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			wait := retryDelay(attempt)
			// Respect Retry-After if provided
			if ra := resp.Header.Get("Retry-After"); ra != "" {
				if secs, err := strconv.Atoi(ra); err == nil {
					wait = time.Duration(secs) * time.Second
				}
			}
			_ = resp.Body.Close()
			if attempt < c.maxRetries {
				if err := c.sleep(ctx, wait); err != nil {
					return oracle.Response{}, err
				}
				continue
			}
			return oracle.Response{}, fmt.Errorf("openai chat failed: %s", resp.Status)
		}

		payload, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if resp.StatusCode >= 300 {
			return oracle.Response{}, oracle.NewPermanentError(fmt.Errorf("openai chat failed: %s", resp.Status))
		}
		if err != nil {
			return oracle.Response{}, err
		}
		return decode(payload)
	}
}

func decode(payload []byte) (oracle.Response, error) {
	var out chatResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		return oracle.Response{}, fmt.Errorf("openai chat: decode: %w", err)
	}
	if len(out.Choices) == 0 {
		return oracle.Response{}, oracle.ErrEmptyResponse
	}
	ch := out.Choices[0]
	if ch.FinishReason == "content_filter" {
		return oracle.Response{}, oracle.NewPermanentError(oracle.ErrBlocked)
	}
	if strings.TrimSpace(ch.Message.Content) == "" {
		return oracle.Response{}, oracle.ErrEmptyResponse
	}
	res := oracle.Response{Text: ch.Message.Content}
	if out.Usage != nil {
		res.Usage = &oracle.Usage{PromptTokens: out.Usage.PromptTokens, CompletionTokens: out.Usage.CompletionTokens}
	}
	return res, nil
}

func retryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := 200 * time.Millisecond
	// exponential backoff capped at 5s
	d := base << attempt
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
