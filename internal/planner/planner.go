// Package planner turns a topic and free-form notes into a confirmed outline with
// per-section search terms.
package planner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"versefinder/internal/domain"
	"versefinder/internal/logging"
	"versefinder/internal/oracle"
)

// ErrNoPlan is returned when the oracle produced no usable plan. Callers must not guess one.
var ErrNoPlan = errors.New("no search plan")

const (
	keyOutline  = "vahvistettu_sisallysluettelo"
	keyCommands = "hakukomennot"
)

// Preamble grounds every answer in the supplied verses and material.
const Preamble = "You are a theological research assistant. Base every answer and interpretation " +
	"only on the scripture verses and user material you are given. Avoid leaning on any particular " +
	"theological system and read verses in the light of the whole of scripture."

const planPrompt = `%s

Your task is to build a detailed search plan for a scripture study. Analyse the user input below and follow the instructions exactly.

MAIN TOPIC: %s

USER INPUT:
---
%s
---

INSTRUCTIONS:
1. Check and finish the outline: read the outline contained in the user input and return it as a logical, clear numbered outline.
2. Create targeted search terms: for EVERY section of the outline create its own list of 5-15 search terms in the language of the scripture corpus.%s
3. Return the answer EXACTLY in this JSON shape:

{
  "%s": "1. Title...",
  "%s": {
    "1.": ["term1", "term2"],
    "1.1.": ["term3", "term4"]
  }
}
`

const groupingHint = "\n   Group inflected forms and synonyms of the same word next to each other in the list."

// Builder asks the deep tier for a plan.
type Builder struct {
	oracle oracle.Oracle
	// GroupVariants asks the oracle to keep inflectional variants together in each term list.
	GroupVariants bool
	Temperature   float32
}

func New(o oracle.Oracle) *Builder {
	return &Builder{oracle: o, Temperature: 0.2}
}

// Build returns the confirmed outline and ordered sections. Any transport or parse
// failure yields ErrNoPlan together with whatever usage was reported.
func (b *Builder) Build(ctx context.Context, topic, notes string) (domain.Plan, oracle.Usage, error) {
	hint := ""
	if b.GroupVariants {
		hint = groupingHint
	}
	resp, err := b.oracle.Generate(ctx, oracle.Request{
		Instruction: fmt.Sprintf(planPrompt, Preamble, topic, notes, hint, keyOutline, keyCommands),
		Mode:        oracle.ModeJSON,
		Temperature: b.Temperature,
		Tier:        oracle.TierDeep,
	})
	usage := resp.Spent()
	if err != nil {
		return domain.Plan{}, usage, fmt.Errorf("%w: %w", ErrNoPlan, err)
	}
	plan, err := Decode(resp.Text)
	if err != nil {
		logging.FromContext(ctx).Warn("plan response unparseable", "error", err, "bytes", len(resp.Text))
		return domain.Plan{}, usage, fmt.Errorf("%w: %w", ErrNoPlan, err)
	}
	plan.Topic = topic
	return plan, usage, nil
}

// Decode parses the oracle's plan JSON, keeping sections in document order.
func Decode(text string) (domain.Plan, error) {
	var raw map[string]json.RawMessage
	if err := oracle.DecodeJSON(text, &raw); err != nil {
		return domain.Plan{}, err
	}
	var plan domain.Plan
	if v, ok := raw[keyOutline]; ok {
		if err := json.Unmarshal(v, &plan.Outline); err != nil {
			return domain.Plan{}, fmt.Errorf("%s: %w", keyOutline, err)
		}
	}
	cmds, ok := raw[keyCommands]
	if !ok {
		return domain.Plan{}, fmt.Errorf("missing %q", keyCommands)
	}
	sections, err := decodeSections(cmds)
	if err != nil {
		return domain.Plan{}, fmt.Errorf("%s: %w", keyCommands, err)
	}
	if strings.TrimSpace(plan.Outline) == "" && len(sections) == 0 {
		return domain.Plan{}, errors.New("empty plan")
	}
	plan.Sections = sections
	return plan, nil
}

// decodeSections walks the object token by token since a Go map would lose key order.
func decodeSections(data json.RawMessage) ([]domain.Section, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("expected object, got %v", tok)
	}
	var out []domain.Section
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, _ := tok.(string)
		var val json.RawMessage
		if err := dec.Decode(&val); err != nil {
			return nil, err
		}
		out = append(out, domain.Section{Number: strings.TrimSpace(key), Terms: flattenTerms(val)})
	}
	return out, nil
}

// flattenTerms accepts a list of terms, grouped lists of variants, or a comma separated string.
func flattenTerms(val json.RawMessage) []string {
	var flat []string
	if json.Unmarshal(val, &flat) == nil {
		return cleanTerms(flat)
	}
	var grouped []json.RawMessage
	if json.Unmarshal(val, &grouped) == nil {
		var out []string
		for _, g := range grouped {
			out = append(out, flattenTerms(g)...)
		}
		return cleanTerms(out)
	}
	var single string
	if json.Unmarshal(val, &single) == nil {
		return cleanTerms(strings.Split(single, ","))
	}
	return []string{}
}

func cleanTerms(in []string) []string {
	out := make([]string, 0, len(in))
	for _, t := range in {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
