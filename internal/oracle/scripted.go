package oracle

import (
	"context"
	"errors"
	"sync"
)

// ErrScriptExhausted is returned by Scripted once every reply has been consumed.
var ErrScriptExhausted = errors.New("oracle: script exhausted")

// Reply is one canned answer of a Scripted oracle.
type Reply struct {
	Text  string
	Usage *Usage
	Err   error
}

// Scripted replays canned replies in order and records every request.
// It backs offline runs and tests.
type Scripted struct {
	mu      sync.Mutex
	replies []Reply
	calls   []Request
	// Handler, when set, answers instead of the queue.
	Handler func(Request) Reply
}

func NewScripted(replies ...Reply) *Scripted {
	return &Scripted{replies: replies}
}

func (s *Scripted) Name() string { return "scripted" }
func (s *Scripted) Close() error { return nil }

func (s *Scripted) Generate(ctx context.Context, req Request) (Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, req)
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	var r Reply
	switch {
	case s.Handler != nil:
		r = s.Handler(req)
	case len(s.replies) == 0:
		return Response{}, ErrScriptExhausted
	default:
		r = s.replies[0]
		s.replies = s.replies[1:]
	}
	if r.Err != nil {
		return Response{}, r.Err
	}
	return Response{Text: r.Text, Usage: r.Usage}, nil
}

// Calls returns a copy of the recorded requests.
func (s *Scripted) Calls() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.calls...)
}
