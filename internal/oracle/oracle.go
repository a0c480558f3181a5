// Package oracle is the boundary to the external judgment service that builds plans,
// selects relevant verses and scores them. Backends live in subpackages; cross-cutting
// concerns (pacing, retries, logging) are applied with Middleware.
package oracle

import (
	"context"
	"errors"
)

var (
	// ErrEmptyResponse is returned when the backend answered without any text.
	ErrEmptyResponse = errors.New("oracle: empty response")
	// ErrBlocked is returned when the backend refused to answer.
	ErrBlocked = errors.New("oracle: response blocked")
)

// PermanentError wraps failures that will not resolve with retries.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

func NewPermanentError(err error) error {
	return &PermanentError{Err: err}
}

// Mode is the expected shape of the generated text.
type Mode int

const (
	ModeText Mode = iota
	ModeJSON
)

func (m Mode) String() string {
	if m == ModeJSON {
		return "json"
	}
	return "text"
}

// Tier picks the backing model: Deep for plan building, Fast for bulk judgments.
type Tier int

const (
	TierFast Tier = iota
	TierDeep
)

func (t Tier) String() string {
	if t == TierDeep {
		return "deep"
	}
	return "fast"
}

// Request is one natural-language instruction for the oracle.
type Request struct {
	Instruction string
	Mode        Mode
	Temperature float32
	Tier        Tier
}

// Usage is the token accounting of one call, filled the same way by every backend.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// Add returns the sum of u and o.
func (u Usage) Add(o Usage) Usage {
	return Usage{PromptTokens: u.PromptTokens + o.PromptTokens, CompletionTokens: u.CompletionTokens + o.CompletionTokens}
}

func (u Usage) Total() int { return u.PromptTokens + u.CompletionTokens }

// Response carries the generated text. Usage is nil when the backend did not report it.
type Response struct {
	Text  string
	Usage *Usage
}

// Spent returns the reported usage or zero.
func (r Response) Spent() Usage {
	if r.Usage == nil {
		return Usage{}
	}
	return *r.Usage
}

// Oracle answers judgment requests. Callers treat any error as "no result".
type Oracle interface {
	Name() string
	Generate(ctx context.Context, req Request) (Response, error)
	Close() error
}
