// Package keywords refines plan search terms, either by asking the oracle for
// inflected variants or by validating them against words attested in the corpus.
package keywords

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"versefinder/internal/domain"
	"versefinder/internal/logging"
	"versefinder/internal/oracle"
)

const expandPrompt = `You are an expert in the language of the scripture corpus. Expand the list of search terms below. Return a JSON object whose keys are the original terms and whose values are lists holding the original term plus 1-3 related words or inflected forms that are likely to occur in the scripture text.

Example:
{
  "opetuslapseuttaminen": ["opetuslapseuttaminen", "opetuslapsi", "opettaa"],
  "hengellinen kypsyys": ["hengellinen kypsyys", "kypsyys", "kasvu"]
}

TERMS:
---
%s
---

Return ONLY the JSON object.`

// Expander maps terms to variants with one oracle call.
type Expander struct {
	oracle      oracle.Oracle
	Temperature float32
}

func NewExpander(o oracle.Oracle) *Expander {
	return &Expander{oracle: o, Temperature: 0.1}
}

// Expand returns term -> variants, each list starting with the term itself.
// It never fails: any oracle problem falls back to the identity mapping.
func (e *Expander) Expand(ctx context.Context, terms []string) (map[string][]string, oracle.Usage) {
	out := identity(terms)
	if len(terms) == 0 {
		return out, oracle.Usage{}
	}
	list, _ := json.Marshal(terms)
	resp, err := e.oracle.Generate(ctx, oracle.Request{
		Instruction: fmt.Sprintf(expandPrompt, list),
		Mode:        oracle.ModeJSON,
		Temperature: e.Temperature,
		Tier:        oracle.TierFast,
	})
	usage := resp.Spent()
	if err != nil {
		logging.FromContext(ctx).Warn("keyword expansion failed, keeping terms as is", "error", err)
		return out, usage
	}
	var raw map[string][]string
	if err := oracle.DecodeJSON(resp.Text, &raw); err != nil {
		logging.FromContext(ctx).Warn("keyword expansion unparseable, keeping terms as is", "error", err)
		return out, usage
	}
	for _, t := range terms {
		out[t] = dedupe(append([]string{t}, raw[t]...))
	}
	return out, usage
}

// Apply replaces every section's terms with their expansions, keeping order and dropping duplicates.
func Apply(plan domain.Plan, expansions map[string][]string) domain.Plan {
	out := plan
	out.Sections = make([]domain.Section, len(plan.Sections))
	for i, s := range plan.Sections {
		var terms []string
		for _, t := range s.Terms {
			if v, ok := expansions[t]; ok {
				terms = append(terms, v...)
			} else {
				terms = append(terms, t)
			}
		}
		out.Sections[i] = domain.Section{Number: s.Number, Terms: dedupe(terms)}
	}
	return out
}

func identity(terms []string) map[string][]string {
	out := make(map[string][]string, len(terms))
	for _, t := range terms {
		out[t] = []string{t}
	}
	return out
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, t := range in {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
