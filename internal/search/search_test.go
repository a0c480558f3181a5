package search

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"versefinder/internal/corpus"
	"versefinder/internal/domain"
)

const fixture = `{"book": {
  "1": {"info": {"name": "Testi"}, "chapter": {
    "1": {"verse": {
      "1": {"text": "alku"},
      "2": {"text": "usko on luottamusta"},
      "3": {"text": "väli"},
      "4": {"text": "USKO tulee kuulemisesta"},
      "5": {"text": "loppu"},
      "7": {"text": "hinta (a+b) on suuri"}}},
    "2": {"verse": {"1": {"text": "toinen luku"}}}}}
}}`

func newSearcher(t *testing.T, cache int) *Searcher {
	t.Helper()
	ix, err := corpus.Parse(strings.NewReader(fixture))
	require.NoError(t, err)
	s, err := New(ix, cache)
	require.NoError(t, err)
	return s
}

func bare(set domain.CitationSet) []string {
	var out []string
	for c := range set {
		out = append(out, domain.BareCitation(c))
	}
	return out
}

func TestFindForwardWindow(t *testing.T) {
	got := newSearcher(t, 0).Find("usko", 0, 1)
	assert.ElementsMatch(t, []string{"Testi 1:2", "Testi 1:3", "Testi 1:4", "Testi 1:5"}, bare(got))
	assert.True(t, got.Has("Testi 1:2 - usko on luottamusta"))
}

func TestFindSkipsMissingWindowSlots(t *testing.T) {
	got := newSearcher(t, 0).Find("hinta", 1, 3)
	// verse 6 and 8..10 do not exist; the window never crosses into chapter 2
	assert.ElementsMatch(t, []string{"Testi 1:7"}, bare(got))
}

func TestFindTreatsTermLiterally(t *testing.T) {
	s := newSearcher(t, 0)
	assert.ElementsMatch(t, []string{"Testi 1:7"}, bare(s.Find("(a+b)", 0, 0)))
	assert.Empty(t, s.Find(".*", 0, 0))
	assert.Empty(t, s.Find("[", 0, 0))
}

func TestFindEmptyTerm(t *testing.T) {
	assert.Empty(t, newSearcher(t, 0).Find("", 1, 1))
}

func TestFindNeverReturnsUnrelatedVerses(t *testing.T) {
	s := newSearcher(t, 0)
	for c := range s.Find("luku", 3, 3) {
		assert.Equal(t, "Testi 2:1", domain.BareCitation(c))
	}
}

func TestFindCacheReturnsIndependentCopies(t *testing.T) {
	s := newSearcher(t, 8)
	first := s.Find("usko", 0, 0)
	first.Add("bogus")
	second := s.Find("usko", 0, 0)
	assert.False(t, second.Has("bogus"))
	assert.Len(t, second, 2)
}
