package keywords

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"

	"versefinder/internal/domain"
	"versefinder/internal/logging"
)

// SuffixPolicy yields candidate stems of a lowercase word. It is an approximate,
// per-language table, not a lemmatizer.
type SuffixPolicy interface {
	Name() string
	Stems(word string) []string
}

// SuffixTable strips any one listed suffix, keeping at least MinStem runes.
type SuffixTable struct {
	Label    string
	Suffixes []string
	MinStem  int
}

func (t SuffixTable) Name() string { return t.Label }

func (t SuffixTable) Stems(word string) []string {
	var out []string
	n := utf8.RuneCountInString(word)
	for _, s := range t.Suffixes {
		if !strings.HasSuffix(word, s) {
			continue
		}
		if n-utf8.RuneCountInString(s) < t.MinStem {
			continue
		}
		out = append(out, strings.TrimSuffix(word, s))
	}
	return out
}

// Finnish covers the common case endings: genitive and partitive vowels, the local cases
// and a few plural forms.
var Finnish = SuffixTable{
	Label: "fi",
	Suffixes: []string{
		"iden", "itten", "ien", "issa", "issä", "ista", "istä", "illa", "illä",
		"ssa", "ssä", "sta", "stä", "lla", "llä", "lta", "ltä", "lle", "ksi", "tta", "ttä",
		"en", "in", "na", "nä", "ta", "tä", "n", "t", "a", "ä",
	},
	MinStem: 3,
}

// NoSuffixes only accepts exact matches.
var NoSuffixes = SuffixTable{Label: "none"}

var policies = map[string]SuffixPolicy{
	Finnish.Label:    Finnish,
	NoSuffixes.Label: NoSuffixes,
}

// PolicyByName resolves a configured suffix policy.
func PolicyByName(name string) (SuffixPolicy, error) {
	p, ok := policies[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		names := make([]string, 0, len(policies))
		for k := range policies {
			names = append(names, k)
		}
		sort.Strings(names)
		return nil, fmt.Errorf("unknown suffix policy %q (known: %s)", name, strings.Join(names, ", "))
	}
	return p, nil
}

// Validator checks terms against a corpus dictionary.
type Validator struct {
	dict   *Dictionary
	policy SuffixPolicy
	stems  map[string]struct{}
}

func NewValidator(d *Dictionary, p SuffixPolicy) *Validator {
	if p == nil {
		p = NoSuffixes
	}
	v := &Validator{dict: d, policy: p, stems: make(map[string]struct{})}
	for w := range d.words {
		for _, s := range p.Stems(w) {
			v.stems[s] = struct{}{}
		}
	}
	return v
}

// Accepts reports whether any word of term is attested, directly or through a shared stem.
func (v *Validator) Accepts(term string) bool {
	lower := cases.Lower(v.dict.lang)
	for _, w := range wordRe.FindAllString(lower.String(term), -1) {
		if v.matches(w) {
			return true
		}
	}
	return false
}

func (v *Validator) matches(word string) bool {
	if v.dict.Has(word) {
		return true
	}
	if _, ok := v.stems[word]; ok {
		return true
	}
	for _, s := range v.policy.Stems(word) {
		if v.dict.Has(s) {
			return true
		}
		if _, ok := v.stems[s]; ok {
			return true
		}
	}
	return false
}

// Validate splits terms into accepted and rejected, preserving order.
func (v *Validator) Validate(terms []string) (accepted, rejected []string) {
	for _, t := range terms {
		if v.Accepts(t) {
			accepted = append(accepted, t)
		} else {
			rejected = append(rejected, t)
		}
	}
	return accepted, rejected
}

// ValidatePlan drops unattested terms from every section and reports each one.
func (v *Validator) ValidatePlan(ctx context.Context, plan domain.Plan) (domain.Plan, []domain.Rejection) {
	out := plan
	out.Sections = make([]domain.Section, len(plan.Sections))
	var rejections []domain.Rejection
	for i, s := range plan.Sections {
		ok, bad := v.Validate(s.Terms)
		if ok == nil {
			ok = []string{}
		}
		out.Sections[i] = domain.Section{Number: s.Number, Terms: ok}
		for _, t := range bad {
			logging.FromContext(ctx).Warn("search term not found in corpus", "section", s.Number, "term", t)
			rejections = append(rejections, domain.Rejection{Section: s.Number, Term: t})
		}
	}
	return out, rejections
}
