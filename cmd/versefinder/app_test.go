package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"versefinder/internal/config"
	"versefinder/internal/corpus"
	"versefinder/internal/domain"
	"versefinder/internal/keywords"
	"versefinder/internal/service"
)

const fixture = `{"book": {"1": {"info": {"name": "Testi"}, "chapter": {"1": {"verse": {
  "1": {"text": "Usko on luottamusta"}, "2": {"text": "toivo ja rakkaus"}}}}}}}`

func testIndex(t *testing.T) *corpus.Index {
	t.Helper()
	ix, err := corpus.Parse(strings.NewReader(fixture))
	require.NoError(t, err)
	return ix
}

func TestNewOracleUnknownProvider(t *testing.T) {
	_, err := newOracle(context.Background(), config.OracleConfig{Provider: "mystery"})
	assert.ErrorContains(t, err, "unknown oracle provider")
}

func TestNewOracleNeedsKey(t *testing.T) {
	t.Setenv("VF_TEST_KEY", "")
	_, err := newOracle(context.Background(), config.OracleConfig{Provider: "openai", APIKeyEnv: "VF_TEST_KEY"})
	assert.ErrorContains(t, err, "VF_TEST_KEY")

	t.Setenv("VF_TEST_KEY", "sk-test")
	o, err := newOracle(context.Background(), config.OracleConfig{Provider: "openai", APIKeyEnv: "VF_TEST_KEY", MaxAttempts: 3})
	require.NoError(t, err)
	assert.Equal(t, "openai", o.Name())
}

func TestServiceOptionsFromConfig(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)
	cfg.Search.FastAfter = 0
	cfg.Keywords.Strategy = "validate"

	opts, err := serviceOptions(cfg, testIndex(t))
	require.NoError(t, err)
	assert.Equal(t, service.Window{Before: 0, After: 0}, *opts.FastWindow)
	assert.Equal(t, service.Window{Before: 3, After: 3}, *opts.PreciseWindow)
	assert.Equal(t, keywords.Finnish, opts.SuffixPolicy)
	require.NotNil(t, opts.Dictionary)
	assert.True(t, opts.Dictionary.Has("usko"))
}

func TestServiceOptionsRejectsUnknownPolicy(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)
	cfg.Keywords.SuffixPolicy = "klingon"
	_, err = serviceOptions(cfg, testIndex(t))
	assert.Error(t, err)
}

func TestDictionaryFromFile(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)
	ix := testIndex(t)
	built, err := dictionary(cfg, ix)
	require.NoError(t, err)

	cfg.Corpus.DictionaryPath = filepath.Join(t.TempDir(), "words.json")
	require.NoError(t, built.Save(cfg.Corpus.DictionaryPath))
	loaded, err := dictionary(cfg, ix)
	require.NoError(t, err)
	assert.Equal(t, built.Words(), loaded.Words())
}

func TestExportDictionaryIgnoresConfiguredFile(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)
	dir := t.TempDir()
	cfg.Corpus.DictionaryPath = filepath.Join(dir, "stale.json")
	require.NoError(t, os.WriteFile(cfg.Corpus.DictionaryPath, []byte(`["vanha"]`), 0o644))

	out := filepath.Join(dir, "words.json")
	d, err := exportDictionary(cfg, testIndex(t), out)
	require.NoError(t, err)
	assert.True(t, d.Has("usko"))
	assert.False(t, d.Has("vanha"))

	lang, err := corpusLanguage(cfg)
	require.NoError(t, err)
	written, err := keywords.LoadDictionary(out, lang)
	require.NoError(t, err)
	assert.Equal(t, d.Words(), written.Words())
}

type failingClose struct{ bytes.Buffer }

func (f *failingClose) Close() error { return errors.New("disk full") }

func TestWriteReportReportsCloseError(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)
	a := &app{cfg: cfg}
	rm := domain.NewRelevanceMap()
	rm.Set("1.", domain.Buckets{High: []string{"Testi 1:1 - Usko on luottamusta"}})
	plan := domain.Plan{Outline: "1. Usko"}

	path := filepath.Join(t.TempDir(), "report.md")
	require.NoError(t, a.writeReport(path, plan, rm))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "## 1. Usko")

	prev := createFile
	t.Cleanup(func() { createFile = prev })
	sink := &failingClose{}
	createFile = func(string) (io.WriteCloser, error) { return sink, nil }
	err = a.writeReport("report.md", plan, rm)
	assert.ErrorContains(t, err, "disk full")
	assert.Contains(t, sink.String(), "Testi 1:1")
}
