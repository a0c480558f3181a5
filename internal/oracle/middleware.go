package oracle

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"versefinder/internal/logging"
)

// Middleware decorates an Oracle with a cross-cutting concern.
type Middleware func(Oracle) Oracle

// Wrap applies middlewares in left-to-right order.
// Example: Wrap(inner, A, B) => A(B(inner))
func Wrap(inner Oracle, mws ...Middleware) Oracle {
	out := inner
	for i := len(mws) - 1; i >= 0; i-- {
		out = mws[i](out)
	}
	return out
}

// -------- Pacing --------

// Pacing sleeps for delay after every call, whatever its outcome, to stay under
// the backend's rate limits. A canceled context cuts the sleep short.
func Pacing(delay time.Duration) Middleware {
	return func(next Oracle) Oracle {
		return &paced{next: next, delay: delay}
	}
}

type paced struct {
	next  Oracle
	delay time.Duration
}

func (p *paced) Name() string { return p.next.Name() }
func (p *paced) Close() error { return p.next.Close() }

func (p *paced) Generate(ctx context.Context, req Request) (Response, error) {
	resp, err := p.next.Generate(ctx, req)
	if p.delay > 0 {
		t := time.NewTimer(p.delay)
		select {
		case <-ctx.Done():
			t.Stop()
		case <-t.C:
		}
	}
	return resp, err
}

// -------- Retry --------

// Retry retries failed calls up to maxAttempts with exponential backoff starting
// at baseDelay. Permanent errors and context cancellation stop immediately.
func Retry(maxAttempts int, baseDelay time.Duration) Middleware {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if baseDelay <= 0 {
		baseDelay = 300 * time.Millisecond
	}
	return func(next Oracle) Oracle {
		return &retrying{next: next, max: maxAttempts, base: baseDelay}
	}
}

type retrying struct {
	next Oracle
	max  int
	base time.Duration
}

func (r *retrying) Name() string { return r.next.Name() }
func (r *retrying) Close() error { return r.next.Close() }

func (r *retrying) Generate(ctx context.Context, req Request) (Response, error) {
	var last error
	for i := 0; i < r.max; i++ {
		resp, err := r.next.Generate(ctx, req)
		if err == nil {
			return resp, nil
		}
		var pErr *PermanentError
		if errors.As(err, &pErr) {
			return Response{}, err
		}
		last = err
		if i == r.max-1 {
			break
		}
		t := time.NewTimer(r.base * time.Duration(1<<i))
		select {
		case <-ctx.Done():
			t.Stop()
			return Response{}, ctx.Err()
		case <-t.C:
		}
	}
	return Response{}, last
}

// -------- Logging --------

// Logging records every call at debug level and failures at warn level.
func Logging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next Oracle) Oracle {
		return &logged{next: next, log: logger}
	}
}

type logged struct {
	next Oracle
	log  *slog.Logger
}

func (l *logged) Name() string { return l.next.Name() }
func (l *logged) Close() error { return l.next.Close() }

func (l *logged) Generate(ctx context.Context, req Request) (Response, error) {
	log := l.log
	if id := logging.SessionID(ctx); id != "" {
		log = log.With("session_id", id)
	}
	start := time.Now()
	resp, err := l.next.Generate(ctx, req)
	attrs := []any{
		"oracle", l.next.Name(),
		"tier", req.Tier.String(),
		"mode", req.Mode.String(),
		"request_bytes", len(req.Instruction),
		"duration", time.Since(start).Round(time.Millisecond),
	}
	if err != nil {
		log.WarnContext(ctx, "oracle call failed", append(attrs, "error", err)...)
		return resp, err
	}
	u := resp.Spent()
	log.DebugContext(ctx, "oracle call", append(attrs,
		"response_bytes", len(resp.Text),
		"prompt_tokens", u.PromptTokens,
		"completion_tokens", u.CompletionTokens)...)
	return resp, nil
}

// -------- Metering --------

// Metering records every call's reported usage in l, including failed calls.
func Metering(l *Ledger) Middleware {
	return func(next Oracle) Oracle {
		return &metered{next: next, ledger: l}
	}
}

type metered struct {
	next   Oracle
	ledger *Ledger
}

func (m *metered) Name() string { return m.next.Name() }
func (m *metered) Close() error { return m.next.Close() }

func (m *metered) Generate(ctx context.Context, req Request) (Response, error) {
	resp, err := m.next.Generate(ctx, req)
	m.ledger.Record(resp.Spent())
	return resp, err
}
