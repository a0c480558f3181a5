package domain

import (
	"context"
	"sort"
	"strings"
)

// CitationSeparator splits a text-bearing citation into its bare reference and verse text.
const CitationSeparator = " - "

// BareCitation returns the reference part of a citation ("Book 1:2 - text" -> "Book 1:2").
func BareCitation(citation string) string {
	if i := strings.Index(citation, CitationSeparator); i >= 0 {
		return strings.TrimSpace(citation[:i])
	}
	return strings.TrimSpace(citation)
}

// CitationSet is a set of citation strings deduplicated by exact string equality.
type CitationSet map[string]struct{}

// NewCitationSet builds a set from the given citations.
func NewCitationSet(citations ...string) CitationSet {
	s := make(CitationSet, len(citations))
	for _, c := range citations {
		s[c] = struct{}{}
	}
	return s
}

func (s CitationSet) Add(citation string) { s[citation] = struct{}{} }

// AddAll merges other into s.
func (s CitationSet) AddAll(other CitationSet) {
	for c := range other {
		s[c] = struct{}{}
	}
}

func (s CitationSet) Has(citation string) bool {
	_, ok := s[citation]
	return ok
}

// Sorted returns the members ordered by less.
func (s CitationSet) Sorted(less func(a, b string) bool) []string {
	out := make([]string, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

// Section holds the search terms generated for one outline section.
type Section struct {
	Number string   `yaml:"number" json:"number"`
	Terms  []string `yaml:"terms" json:"terms"`
}

// Plan is the confirmed outline plus per-section search terms. Users may edit it between stages.
type Plan struct {
	Topic    string    `yaml:"topic"`
	Outline  string    `yaml:"outline"`
	Sections []Section `yaml:"sections"`
}

// Terms returns every distinct non-empty term in plan order.
func (p Plan) Terms() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, s := range p.Sections {
		for _, t := range s.Terms {
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
	}
	return out
}

// SectionVerses is one section of a collection in a serializable, ordered form.
type SectionVerses struct {
	Number string   `yaml:"number"`
	Verses []string `yaml:"verses"`
}

// Collection accumulates citations per section, preserving the order sections were first seen.
type Collection struct {
	order    []string
	sections map[string]CitationSet
}

func NewCollection() *Collection {
	return &Collection{sections: make(map[string]CitationSet)}
}

// Ensure registers a section even when nothing is ever added to it.
func (c *Collection) Ensure(section string) CitationSet {
	set, ok := c.sections[section]
	if !ok {
		set = make(CitationSet)
		c.sections[section] = set
		c.order = append(c.order, section)
	}
	return set
}

// Add appends discovered citations to a section.
func (c *Collection) Add(section string, citations CitationSet) {
	c.Ensure(section).AddAll(citations)
}

// Sections returns the section numbers in insertion order.
func (c *Collection) Sections() []string {
	return append([]string(nil), c.order...)
}

func (c *Collection) Verses(section string) CitationSet {
	return c.sections[section]
}

// All returns the union of every section's citations.
func (c *Collection) All() CitationSet {
	all := make(CitationSet)
	for _, set := range c.sections {
		all.AddAll(set)
	}
	return all
}

// Retain drops every citation not in keep. Nothing can be inserted this way.
func (c *Collection) Retain(keep CitationSet) int {
	removed := 0
	for _, set := range c.sections {
		for citation := range set {
			if !keep.Has(citation) {
				delete(set, citation)
				removed++
			}
		}
	}
	return removed
}

// Sorted returns the sections in insertion order with verses ordered by less.
func (c *Collection) Sorted(less func(a, b string) bool) []SectionVerses {
	out := make([]SectionVerses, 0, len(c.order))
	for _, n := range c.order {
		out = append(out, SectionVerses{Number: n, Verses: c.sections[n].Sorted(less)})
	}
	return out
}

// CollectionFrom rebuilds a collection from its serialized form.
func CollectionFrom(sections []SectionVerses) *Collection {
	c := NewCollection()
	for _, s := range sections {
		c.Add(s.Number, NewCitationSet(s.Verses...))
	}
	return c
}

// Buckets are the relevance tiers of one section.
type Buckets struct {
	High   []string
	Medium []string
}

// Empty reports whether neither tier holds a verse.
func (b Buckets) Empty() bool { return len(b.High) == 0 && len(b.Medium) == 0 }

// RelevanceMap holds the bucketed verses per section in processing order.
type RelevanceMap struct {
	Order   []string
	Buckets map[string]Buckets
}

func NewRelevanceMap() *RelevanceMap {
	return &RelevanceMap{Buckets: make(map[string]Buckets)}
}

// Set stores the buckets for a section, remembering first-seen order.
func (m *RelevanceMap) Set(section string, b Buckets) {
	if _, ok := m.Buckets[section]; !ok {
		m.Order = append(m.Order, section)
	}
	m.Buckets[section] = b
}

// Searcher finds verses containing a term, widened by a verse window.
type Searcher interface {
	Find(term string, before, after int) CitationSet
}

// Rejection records a search term dropped from a section because the corpus never uses it.
type Rejection struct {
	Section string
	Term    string
}

// ResearchService defines the operations exposed by the application core.
type ResearchService interface {
	Plan(ctx context.Context, topic, notes string) (Plan, error)
	Refine(ctx context.Context, plan Plan) (Plan, []Rejection, error)
	Collect(ctx context.Context, plan Plan, mode SearchMode) (*Collection, error)
	Rank(ctx context.Context, plan Plan, collection *Collection) (*RelevanceMap, error)
}

// SearchMode selects how candidates are gathered.
type SearchMode string

const (
	// ModeFast expands hits mechanically with a forward window and no oracle filtering.
	ModeFast SearchMode = "fast"
	// ModePrecise uses a wider symmetric window and lets the oracle filter candidates.
	ModePrecise SearchMode = "precise"
)
