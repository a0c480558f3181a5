// Package search implements lexical verse search over a loaded corpus.
package search

import (
	"fmt"
	"log/slog"
	"regexp"

	lru "github.com/hashicorp/golang-lru/v2"

	"versefinder/internal/corpus"
	"versefinder/internal/domain"
)

// DefaultCacheSize bounds the number of memoized searches.
const DefaultCacheSize = 512

type cacheKey struct {
	term          string
	before, after int
}

// Searcher scans every verse of every book for a term. Results are memoized
// per (term, window) because plans repeat terms across sections.
type Searcher struct {
	index *corpus.Index
	cache *lru.Cache[cacheKey, domain.CitationSet]
}

// New returns a searcher over ix. A cacheSize of zero or less disables memoization.
func New(ix *corpus.Index, cacheSize int) (*Searcher, error) {
	s := &Searcher{index: ix}
	if cacheSize > 0 {
		c, err := lru.New[cacheKey, domain.CitationSet](cacheSize)
		if err != nil {
			return nil, fmt.Errorf("search cache: %w", err)
		}
		s.cache = c
	}
	return s, nil
}

var _ domain.Searcher = (*Searcher)(nil)

// Find returns every verse whose text contains term case-insensitively, widened to
// verses V-before..V+after of the same chapter. Window slots without a verse are skipped.
// The term is always matched literally.
func (s *Searcher) Find(term string, before, after int) domain.CitationSet {
	if before < 0 {
		before = 0
	}
	if after < 0 {
		after = 0
	}
	key := cacheKey{term: term, before: before, after: after}
	if s.cache != nil {
		if hit, ok := s.cache.Get(key); ok {
			return clone(hit)
		}
	}
	out := s.scan(term, before, after)
	if s.cache != nil {
		s.cache.Add(key, clone(out))
	}
	return out
}

func (s *Searcher) scan(term string, before, after int) domain.CitationSet {
	out := make(domain.CitationSet)
	if term == "" {
		return out
	}
	re, err := regexp.Compile("(?i)" + regexp.QuoteMeta(term))
	if err != nil {
		slog.Warn("search term rejected", "term", term, "error", err)
		return out
	}
	for _, book := range s.index.Books() {
		for _, ch := range book.Chapters {
			for _, v := range ch.Verses {
				if !re.MatchString(v.Text) {
					continue
				}
				for n := v.Number - before; n <= v.Number+after; n++ {
					if w, ok := ch.Verse(n); ok {
						out.Add(corpus.Cite(book, ch.Number, w))
					}
				}
			}
		}
	}
	return out
}

func clone(s domain.CitationSet) domain.CitationSet {
	out := make(domain.CitationSet, len(s))
	out.AddAll(s)
	return out
}
