package keywords

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"versefinder/internal/corpus"
	"versefinder/internal/domain"
	"versefinder/internal/logging"
	"versefinder/internal/oracle"
)

const fixture = `{"book": {"1": {"info": {"name": "Testi"}, "chapter": {"1": {"verse": {
  "1": {"text": "USKO on luottamusta."},
  "2": {"text": "Alussa loi Jumala taivaan ja maan, 3 kertaa."},
  "3": {"text": "Kirjassa on sana"}}}}}}}`

func dictionary(t *testing.T) *Dictionary {
	t.Helper()
	ix, err := corpus.Parse(strings.NewReader(fixture))
	require.NoError(t, err)
	return BuildDictionary(ix, language.Finnish)
}

func TestBuildDictionaryTokenizesAndLowercases(t *testing.T) {
	d := dictionary(t)
	assert.True(t, d.Has("usko"))
	assert.True(t, d.Has("luottamusta"))
	assert.True(t, d.Has("3"))
	assert.False(t, d.Has("USKO"))
	assert.False(t, d.Has("maan,"))
	assert.Equal(t, d.Len(), len(d.Words()))
}

func TestDictionarySaveLoad(t *testing.T) {
	d := dictionary(t)
	path := filepath.Join(t.TempDir(), "words.json")
	require.NoError(t, d.Save(path))

	loaded, err := LoadDictionary(path, language.Finnish)
	require.NoError(t, err)
	assert.Equal(t, d.Words(), loaded.Words())

	_, err = LoadDictionary(filepath.Join(t.TempDir(), "missing.json"), language.Finnish)
	assert.Error(t, err)
}

func TestValidatorFinnish(t *testing.T) {
	v := NewValidator(dictionary(t), Finnish)
	cases := []struct {
		term string
		want bool
	}{
		{"usko", true},
		{"Uskon", true},
		{"luottamus", true},
		{"suuri armo ja usko", true},
		{"kirja", true},
		{"armo", false},
		{"", false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, v.Accepts(c.term), c.term)
	}
}

func TestValidatorExactPolicy(t *testing.T) {
	v := NewValidator(dictionary(t), NoSuffixes)
	assert.True(t, v.Accepts("usko"))
	assert.False(t, v.Accepts("uskon"))
}

func TestValidatePlanDropsAndReports(t *testing.T) {
	v := NewValidator(dictionary(t), Finnish)
	plan := domain.Plan{Outline: "1. Usko", Sections: []domain.Section{
		{Number: "1.", Terms: []string{"usko", "armo", "uskon"}},
		{Number: "2.", Terms: []string{"armahdus"}},
	}}
	got, rejected := v.ValidatePlan(context.Background(), plan)
	assert.Equal(t, []string{"usko", "uskon"}, got.Sections[0].Terms)
	assert.Empty(t, got.Sections[1].Terms)
	assert.Equal(t, []domain.Rejection{{Section: "1.", Term: "armo"}, {Section: "2.", Term: "armahdus"}}, rejected)
	assert.Len(t, plan.Sections[0].Terms, 3, "input plan untouched")
}

func TestValidatePlanLogsSessionID(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	v := NewValidator(dictionary(t), Finnish)
	ctx := logging.WithSessionID(context.Background(), "s-42")
	v.ValidatePlan(ctx, domain.Plan{Sections: []domain.Section{{Number: "1.", Terms: []string{"armo"}}}})
	assert.Contains(t, buf.String(), "search term not found in corpus")
	assert.Contains(t, buf.String(), "session_id=s-42")
}

func TestSuffixTableRespectsMinStem(t *testing.T) {
	assert.Contains(t, Finnish.Stems("kirjassa"), "kirja")
	assert.Empty(t, Finnish.Stems("ja"))
	assert.Equal(t, []string{"maa"}, Finnish.Stems("maan"))
}

func TestPolicyByName(t *testing.T) {
	p, err := PolicyByName(" FI ")
	require.NoError(t, err)
	assert.Equal(t, "fi", p.Name())
	_, err = PolicyByName("klingon")
	assert.Error(t, err)
}

func TestExpand(t *testing.T) {
	o := oracle.NewScripted(oracle.Reply{
		Text:  `{"usko": ["usko", "uskon", "uskoa"], "toivo": ["toivoa"]}`,
		Usage: &oracle.Usage{PromptTokens: 10, CompletionTokens: 5},
	})
	got, usage := NewExpander(o).Expand(context.Background(), []string{"usko", "toivo", "rakkaus"})
	assert.Equal(t, map[string][]string{
		"usko":    {"usko", "uskon", "uskoa"},
		"toivo":   {"toivo", "toivoa"},
		"rakkaus": {"rakkaus"},
	}, got)
	assert.Equal(t, 15, usage.Total())
	assert.Equal(t, oracle.TierFast, o.Calls()[0].Tier)
}

func TestExpandFallsBackToIdentity(t *testing.T) {
	for name, reply := range map[string]oracle.Reply{
		"error":   {Err: errors.New("quota")},
		"garbage": {Text: "sorry"},
	} {
		t.Run(name, func(t *testing.T) {
			got, _ := NewExpander(oracle.NewScripted(reply)).Expand(context.Background(), []string{"usko"})
			assert.Equal(t, map[string][]string{"usko": {"usko"}}, got)
		})
	}
}

func TestExpandNoTermsSkipsOracle(t *testing.T) {
	o := oracle.NewScripted()
	got, _ := NewExpander(o).Expand(context.Background(), nil)
	assert.Empty(t, got)
	assert.Empty(t, o.Calls())
}

func TestApply(t *testing.T) {
	plan := domain.Plan{Sections: []domain.Section{{Number: "1.", Terms: []string{"usko", "uskon"}}}}
	got := Apply(plan, map[string][]string{"usko": {"usko", "uskon", "uskoa"}})
	assert.Equal(t, []string{"usko", "uskon", "uskoa"}, got.Sections[0].Terms)
}
