package ranking

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"versefinder/internal/domain"
	"versefinder/internal/oracle"
)

var candidates = []string{"Testi 1:2 - usko on luottamusta", "Testi 1:4 - Usko tulee", "Testi 1:3 - väli"}

func TestScoreAndBucketTiers(t *testing.T) {
	o := oracle.NewScripted(oracle.Reply{
		Text:  `{"Testi 1:2": 8, "Testi 1:4": 5}`,
		Usage: &oracle.Usage{PromptTokens: 30, CompletionTokens: 10},
	})
	rm, usage := New(o, 0).ScoreAndBucket(context.Background(), "Usko", "1. Usko", []domain.SectionVerses{
		{Number: "1.", Verses: candidates},
	}, nil)

	b := rm.Buckets["1."]
	assert.Equal(t, []string{"Testi 1:2 - usko on luottamusta"}, b.High)
	assert.Equal(t, []string{"Testi 1:4 - Usko tulee"}, b.Medium)
	assert.Equal(t, 40, usage.Total())

	calls := o.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Instruction, "'Usko'")
	assert.NotContains(t, calls[0].Instruction, "luottamusta", "only bare citations are sent")
}

func TestEmptySectionsSkipOracle(t *testing.T) {
	o := oracle.NewScripted(oracle.Reply{Text: `{"Testi 1:2": 9}`})
	var progress []int
	rm, _ := New(o, 0).ScoreAndBucket(context.Background(), "Usko", "1. Usko\n1.1. Alku", []domain.SectionVerses{
		{Number: "1.", Verses: candidates[:1]},
		{Number: "1.1.", Verses: nil},
		{Number: "2.", Verses: candidates[1:]},
	}, ProgressFunc(func(p int, _ string) { progress = append(progress, p) }))

	assert.Len(t, o.Calls(), 1)
	assert.Equal(t, []string{"1.", "1.1.", "2."}, rm.Order)
	assert.True(t, rm.Buckets["1.1."].Empty())
	assert.True(t, rm.Buckets["2."].Empty(), "no theme for section 2")
	assert.Equal(t, []string{"Testi 1:2 - usko on luottamusta"}, rm.Buckets["1."].High)
	assert.Equal(t, []int{33, 66, 100}, progress)
}

func TestMalformedBatchContributesNothing(t *testing.T) {
	o := oracle.NewScripted()
	o.Handler = func(req oracle.Request) oracle.Reply {
		switch {
		case strings.Contains(req.Instruction, "Testi 1:2"):
			return oracle.Reply{Text: `{"Testi 1:2": 9, "Testi 1:4": 1}`}
		case strings.Contains(req.Instruction, "Testi 1:4"):
			return oracle.Reply{Text: `{"Testi 1:4": 10`}
		default:
			return oracle.Reply{Err: errors.New("timeout")}
		}
	}
	scores, _ := New(o, 1).Score(context.Background(), "t", "theme", candidates)
	// batch two is malformed; the first batch's score for 1:4 stays.
	assert.Equal(t, map[string]int{"Testi 1:2": 9, "Testi 1:4": 1}, scores)
	assert.Len(t, o.Calls(), 3)
}

func TestBucketDisjointAndIdempotent(t *testing.T) {
	verses := []string{"A 1:1 - a", "A 1:2 - b", "A 1:3 - c", "A 1:4 - d", "A 1:5 - e", "A 1:6 - f"}
	scores := map[string]int{"A 1:1": 10, "A 1:2": 7, "A 1:3": 6, "A 1:4": 4, "A 1:5": 3}

	first := Bucket(verses, scores)
	assert.Equal(t, []string{"A 1:1 - a", "A 1:2 - b"}, first.High)
	assert.Equal(t, []string{"A 1:3 - c", "A 1:4 - d"}, first.Medium)
	assert.Equal(t, first, Bucket(verses, scores))

	inHigh := domain.NewCitationSet(first.High...)
	for _, m := range first.Medium {
		assert.False(t, inHigh.Has(m))
	}
}

func TestCustomThresholds(t *testing.T) {
	b := Thresholds{High: 9, Medium: 2}.Bucket([]string{"A 1:1 - a", "A 1:2 - b"}, map[string]int{"A 1:1": 8, "A 1:2": 2})
	assert.Empty(t, b.High)
	assert.Equal(t, []string{"A 1:1 - a", "A 1:2 - b"}, b.Medium)
}

func TestParseScoresLenient(t *testing.T) {
	got, err := ParseScores(`{"A 1:1": 8, "A 1:2": "6", "A 1:3": 7.9, " A 1:4 ": 5, "A 1:5": "high", "A 1:6": null}`)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"A 1:1": 8, "A 1:2": 6, "A 1:3": 7, "A 1:4": 5}, got)

	_, err = ParseScores("[1, 2]")
	assert.Error(t, err)
}

func TestScoreNonPositiveBatchSizeUsesDefault(t *testing.T) {
	o := oracle.NewScripted(oracle.Reply{Text: `{"Testi 1:2": 8, "Testi 1:4": 5}`})
	e := New(o, 1)
	e.BatchSize = -1
	scores, _ := e.Score(context.Background(), "t", "theme", candidates[:2])
	assert.Equal(t, map[string]int{"Testi 1:2": 8, "Testi 1:4": 5}, scores)
	assert.Len(t, o.Calls(), 1)
}
