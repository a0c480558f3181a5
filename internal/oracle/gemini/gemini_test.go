package gemini

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	genai "google.golang.org/genai"

	"versefinder/internal/oracle"
)

func TestGenerateMapsTierAndMode(t *testing.T) {
	var gotModel string
	var gotCfg *genai.GenerateContentConfig
	c := &Client{fast: "flash", deep: "pro", generate: func(_ context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
		gotModel, gotCfg = model, cfg
		return &genai.GenerateContentResponse{
			Candidates:    []*genai.Candidate{{Content: &genai.Content{Parts: []*genai.Part{{Text: "{}"}}}}},
			UsageMetadata: &genai.GenerateContentResponseUsageMetadata{PromptTokenCount: 7, CandidatesTokenCount: 2},
		}, nil
	}}

	resp, err := c.Generate(context.Background(), oracle.Request{Instruction: "x", Mode: oracle.ModeJSON, Tier: oracle.TierDeep, Temperature: 0.2})
	require.NoError(t, err)
	assert.Equal(t, "pro", gotModel)
	assert.Equal(t, "application/json", gotCfg.ResponseMIMEType)
	require.NotNil(t, gotCfg.Temperature)
	assert.InDelta(t, 0.2, *gotCfg.Temperature, 1e-6)
	assert.Equal(t, "{}", resp.Text)
	assert.Equal(t, oracle.Usage{PromptTokens: 7, CompletionTokens: 2}, resp.Spent())

	_, err = c.Generate(context.Background(), oracle.Request{})
	require.NoError(t, err)
	assert.Equal(t, "flash", gotModel)
	assert.Empty(t, gotCfg.ResponseMIMEType)
}

func TestFromResponseBlocked(t *testing.T) {
	_, err := fromResponse(&genai.GenerateContentResponse{
		PromptFeedback: &genai.GenerateContentResponsePromptFeedback{BlockReason: genai.BlockedReasonSafety},
	})
	assert.ErrorIs(t, err, oracle.ErrBlocked)

	_, err = fromResponse(&genai.GenerateContentResponse{})
	assert.ErrorIs(t, err, oracle.ErrBlocked)

	_, err = fromResponse(&genai.GenerateContentResponse{Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonSafety}}})
	assert.ErrorIs(t, err, oracle.ErrBlocked)
}

func TestFromResponseEmpty(t *testing.T) {
	_, err := fromResponse(&genai.GenerateContentResponse{Candidates: []*genai.Candidate{{Content: &genai.Content{}}}})
	assert.ErrorIs(t, err, oracle.ErrEmptyResponse)
}
