// Package ranking scores collected verses per outline section and sorts them into
// relevance tiers.
package ranking

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"versefinder/internal/domain"
	"versefinder/internal/logging"
	"versefinder/internal/oracle"
	"versefinder/internal/outline"
)

// DefaultBatchSize bounds how many bare citations are scored per request.
const DefaultBatchSize = 50

const scorePrompt = `You are a theological expert. Score every scripture verse below on a scale of 1-10 by how relevant it is to the theme: '%s'. Also take the main topic of the study into account: '%s'.

VERSES TO SCORE:
---
%s
---

ANSWER FORMAT: return ONLY a JSON object whose keys are the verse references and whose values are integers 1-10. Example:
{
  "1. Mooseksen kirja 1:1": 8,
  "Roomalaiskirje 3:23": 10
}`

// Progress observes ranking. It has no effect on control flow.
type Progress interface {
	Report(percent int, message string)
}

// ProgressFunc adapts a function to Progress.
type ProgressFunc func(percent int, message string)

func (f ProgressFunc) Report(percent int, message string) { f(percent, message) }

// Thresholds split scores into tiers: score >= High is high, Medium <= score < High is medium.
type Thresholds struct {
	High   int `yaml:"high_threshold"`
	Medium int `yaml:"medium_threshold"`
}

var DefaultThresholds = Thresholds{High: 7, Medium: 4}

// Bucket partitions verses with the default thresholds.
func Bucket(verses []string, scores map[string]int) domain.Buckets {
	return DefaultThresholds.Bucket(verses, scores)
}

// Bucket partitions verses by the score of their bare citation, keeping input order.
// Unscored verses count as 0 and land in neither tier.
func (t Thresholds) Bucket(verses []string, scores map[string]int) domain.Buckets {
	b := domain.Buckets{High: []string{}, Medium: []string{}}
	for _, v := range verses {
		s := scores[domain.BareCitation(v)]
		switch {
		case s >= t.High:
			b.High = append(b.High, v)
		case s >= t.Medium:
			b.Medium = append(b.Medium, v)
		}
	}
	return b
}

type Engine struct {
	oracle      oracle.Oracle
	BatchSize   int
	Thresholds  Thresholds
	Temperature float32
}

func New(o oracle.Oracle, batchSize int) *Engine {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Engine{oracle: o, BatchSize: batchSize, Thresholds: DefaultThresholds, Temperature: 0.1}
}

// ScoreAndBucket ranks every section in input order. Themes are read from outlineText;
// a section without a theme or without verses gets empty buckets and no oracle call.
func (e *Engine) ScoreAndBucket(ctx context.Context, topic, outlineText string, sections []domain.SectionVerses, progress Progress) (*domain.RelevanceMap, oracle.Usage) {
	out := domain.NewRelevanceMap()
	var usage oracle.Usage
	total := len(sections)
	for i, sec := range sections {
		theme, ok := outline.Theme(outlineText, sec.Number)
		if !ok || len(sec.Verses) == 0 {
			out.Set(sec.Number, domain.Buckets{High: []string{}, Medium: []string{}})
			report(progress, i+1, total, fmt.Sprintf("Skipping section %s", sec.Number))
			continue
		}
		report(progress, i+1, total, fmt.Sprintf("Ranking section %s: %s", sec.Number, theme))
		scores, u := e.Score(ctx, topic, theme, sec.Verses)
		usage = usage.Add(u)
		out.Set(sec.Number, e.Thresholds.Bucket(sec.Verses, scores))
	}
	return out, usage
}

// Score asks for a score per bare citation in batches. Batch maps are merged without
// overwriting keys already scored; a failed or malformed batch adds nothing.
func (e *Engine) Score(ctx context.Context, topic, theme string, verses []string) (map[string]int, oracle.Usage) {
	refs := make([]string, 0, len(verses))
	seen := make(map[string]struct{}, len(verses))
	for _, v := range verses {
		r := domain.BareCitation(v)
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		refs = append(refs, r)
	}

	size := e.BatchSize
	if size <= 0 {
		size = DefaultBatchSize
	}
	scores := make(map[string]int)
	var usage oracle.Usage
	for start := 0; start < len(refs); start += size {
		batch := refs[start:min(start+size, len(refs))]
		resp, err := e.oracle.Generate(ctx, oracle.Request{
			Instruction: fmt.Sprintf(scorePrompt, theme, topic, strings.Join(batch, "\n")),
			Mode:        oracle.ModeJSON,
			Temperature: e.Temperature,
			Tier:        oracle.TierFast,
		})
		usage = usage.Add(resp.Spent())
		if err != nil {
			logging.FromContext(ctx).Warn("score batch failed", "theme", theme, "batch_start", start, "error", err)
			continue
		}
		got, err := ParseScores(resp.Text)
		if err != nil {
			logging.FromContext(ctx).Warn("score batch unparseable", "theme", theme, "batch_start", start, "error", err)
			continue
		}
		for k, v := range got {
			if _, ok := scores[k]; !ok {
				scores[k] = v
			}
		}
	}
	return scores, usage
}

// ParseScores decodes a citation -> score object. Values may be integers, floats
// (truncated) or numeric strings; anything else is skipped.
func ParseScores(text string) (map[string]int, error) {
	var raw map[string]json.RawMessage
	if err := oracle.DecodeJSON(text, &raw); err != nil {
		return nil, err
	}
	out := make(map[string]int, len(raw))
	for k, v := range raw {
		if s, ok := scoreValue(v); ok {
			out[strings.TrimSpace(k)] = s
		}
	}
	return out, nil
}

func scoreValue(v json.RawMessage) (int, bool) {
	if strings.TrimSpace(string(v)) == "null" {
		return 0, false
	}
	var f float64
	if json.Unmarshal(v, &f) == nil {
		return int(math.Trunc(f)), true
	}
	var s string
	if json.Unmarshal(v, &s) == nil {
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return int(math.Trunc(f)), true
		}
	}
	return 0, false
}

func report(p Progress, done, total int, msg string) {
	if p == nil || total == 0 {
		return
	}
	p.Report(done*100/total, msg)
}
