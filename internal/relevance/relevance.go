// Package relevance lets the oracle pick the candidate verses that fit a section theme.
package relevance

import (
	"context"
	"fmt"
	"strings"

	"versefinder/internal/domain"
	"versefinder/internal/logging"
	"versefinder/internal/oracle"
)

// DefaultBatchSize bounds how many candidates go into one request.
const DefaultBatchSize = 60

const selectPrompt = `Task: you are a theological expert. From the verse list below choose ONLY the verses that are thematically relevant to the theme: '%s'.

VERSE LIST:
---
%s
---

ANSWER FORMAT: return ONLY the COMPLETE, unmodified strings of the relevant verses, each on its own line. Do not add numbering, explanations or anything else.`

type Filter struct {
	oracle      oracle.Oracle
	BatchSize   int
	Temperature float32
}

func New(o oracle.Oracle, batchSize int) *Filter {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Filter{oracle: o, BatchSize: batchSize}
}

// Select returns the candidates the oracle judged relevant to theme. Output is
// always a subset of candidates: returned lines are intersected with the batch
// they answer, so invented citations never get through. A failed batch
// contributes nothing.
func (f *Filter) Select(ctx context.Context, candidates []string, theme string) ([]string, oracle.Usage) {
	size := f.BatchSize
	if size <= 0 {
		size = DefaultBatchSize
	}
	var usage oracle.Usage
	var out []string
	for start := 0; start < len(candidates); start += size {
		end := min(start+size, len(candidates))
		batch := candidates[start:end]
		picked, u, err := f.selectBatch(ctx, batch, theme)
		usage = usage.Add(u)
		if err != nil {
			logging.FromContext(ctx).Warn("relevance batch dropped", "theme", theme, "batch_start", start, "batch_size", len(batch), "error", err)
			continue
		}
		out = append(out, picked...)
	}
	return out, usage
}

func (f *Filter) selectBatch(ctx context.Context, batch []string, theme string) ([]string, oracle.Usage, error) {
	resp, err := f.oracle.Generate(ctx, oracle.Request{
		Instruction: fmt.Sprintf(selectPrompt, theme, strings.Join(batch, "\n")),
		Mode:        oracle.ModeText,
		Temperature: f.Temperature,
		Tier:        oracle.TierFast,
	})
	if err != nil {
		return nil, resp.Spent(), err
	}
	pool := make(map[string]string, len(batch))
	for _, c := range batch {
		pool[strings.TrimSpace(c)] = c
	}
	returned := domain.NewCitationSet()
	var picked []string
	for _, line := range oracle.Lines(resp.Text) {
		orig, ok := pool[line]
		if !ok || returned.Has(orig) {
			continue
		}
		returned.Add(orig)
		picked = append(picked, orig)
	}
	return picked, resp.Spent(), nil
}
