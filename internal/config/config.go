package config

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"versefinder/internal/oracle"
	"versefinder/internal/report"
)

// CorpusConfig locates the scripture corpus and its attested word list.
type CorpusConfig struct {
	Path           string `yaml:"path"`
	Language       string `yaml:"language"`
	DictionaryPath string `yaml:"dictionary_path"`
}

// OracleConfig selects and configures the judgment backend.
type OracleConfig struct {
	Provider    string        `yaml:"provider"`
	FastModel   string        `yaml:"fast_model"`
	DeepModel   string        `yaml:"deep_model"`
	APIKeyEnv   string        `yaml:"api_key_env"`
	BaseURL     string        `yaml:"base_url,omitempty"`
	TimeoutSecs int           `yaml:"timeout_secs"`
	DelayMillis int           `yaml:"delay_ms"`
	MaxAttempts int           `yaml:"max_attempts"`
	Prices      oracle.Prices `yaml:"prices"`
}

// SearchConfig holds the verse windows per mode.
type SearchConfig struct {
	FastBefore    int `yaml:"fast_before"`
	FastAfter     int `yaml:"fast_after"`
	PreciseBefore int `yaml:"precise_before"`
	PreciseAfter  int `yaml:"precise_after"`
	CacheSize     int `yaml:"cache_size"`
}

// KeywordsConfig picks the term refinement strategy: none, expand or validate.
type KeywordsConfig struct {
	Strategy      string `yaml:"strategy"`
	SuffixPolicy  string `yaml:"suffix_policy"`
	GroupVariants bool   `yaml:"group_variants"`
}

type RelevanceConfig struct {
	BatchSize int `yaml:"batch_size"`
}

// RankingConfig configures scoring batches and tier thresholds.
type RankingConfig struct {
	BatchSize       int `yaml:"batch_size"`
	HighThreshold   int `yaml:"high_threshold"`
	MediumThreshold int `yaml:"medium_threshold"`
}

// ReportConfig holds the instruction block appended to reports; empty disables it.
type ReportConfig struct {
	Footer string `yaml:"footer"`
}

// StoreConfig points at the sqlite session ledger.
type StoreConfig struct {
	Path string `yaml:"path"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Corpus    CorpusConfig    `yaml:"corpus"`
	Oracle    OracleConfig    `yaml:"oracle"`
	Search    SearchConfig    `yaml:"search"`
	Keywords  KeywordsConfig  `yaml:"keywords"`
	Relevance RelevanceConfig `yaml:"relevance"`
	Ranking   RankingConfig   `yaml:"ranking"`
	Report    ReportConfig    `yaml:"report"`
	Store     StoreConfig     `yaml:"store"`
	Log       LogConfig       `yaml:"log"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig(), nil
		}
		return nil, err
	}
	cfg := baseConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	applyConfigDefaults(cfg)
	return cfg, nil
}

// LoadDefault tries ./versefinder.yaml first, then ~/.config/versefinder/config.yaml.
// If neither exists, it writes defaults to ~/.config/versefinder/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "versefinder.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "versefinder", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := baseConfig()
	applyConfigDefaults(cfg)
	return cfg
}

// baseConfig holds provider independent defaults; fields omitted from a file keep these.
func baseConfig() *AppConfig {
	return &AppConfig{
		Corpus:    CorpusConfig{Path: "bible.json", Language: "fi"},
		Oracle:    OracleConfig{Prices: oracle.DefaultPrices},
		Search:    SearchConfig{FastBefore: 0, FastAfter: 1, PreciseBefore: 3, PreciseAfter: 3, CacheSize: 512},
		Keywords:  KeywordsConfig{Strategy: "expand", SuffixPolicy: "fi"},
		Relevance: RelevanceConfig{BatchSize: 60},
		Ranking:   RankingConfig{BatchSize: 50, HighThreshold: 7, MediumThreshold: 4},
		Report:    ReportConfig{Footer: report.DefaultFooter},
		Store:     StoreConfig{Path: "versefinder.db"},
		Log:       LogConfig{Level: "info", Format: "text"},
	}
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Corpus.Language == "" {
		cfg.Corpus.Language = "fi"
	}
	o := &cfg.Oracle
	if o.Provider == "" {
		o.Provider = "gemini"
	}
	switch o.Provider {
	case "gemini":
		if o.APIKeyEnv == "" {
			o.APIKeyEnv = "GEMINI_API_KEY"
		}
		if o.FastModel == "" {
			o.FastModel = "gemini-2.5-flash"
		}
		if o.DeepModel == "" {
			o.DeepModel = "gemini-2.5-pro"
		}
	case "openai":
		if o.BaseURL == "" {
			o.BaseURL = "https://api.openai.com/v1"
		}
		if o.APIKeyEnv == "" {
			o.APIKeyEnv = "OPENAI_API_KEY"
		}
		if o.FastModel == "" {
			o.FastModel = "gpt-4o-mini"
		}
		if o.DeepModel == "" {
			o.DeepModel = "gpt-4o"
		}
	}
	if o.TimeoutSecs == 0 {
		o.TimeoutSecs = 120
	}
	if o.DelayMillis == 0 {
		o.DelayMillis = 800
	}
	if o.MaxAttempts == 0 {
		o.MaxAttempts = 3
	}
	if o.Prices == (oracle.Prices{}) {
		o.Prices = oracle.DefaultPrices
	}
	if cfg.Keywords.Strategy == "" {
		cfg.Keywords.Strategy = "expand"
	}
	if cfg.Keywords.SuffixPolicy == "" {
		cfg.Keywords.SuffixPolicy = cfg.Corpus.Language
	}
	if cfg.Relevance.BatchSize == 0 {
		cfg.Relevance.BatchSize = 60
	}
	if cfg.Ranking.BatchSize == 0 {
		cfg.Ranking.BatchSize = 50
	}
	if cfg.Ranking.HighThreshold == 0 {
		cfg.Ranking.HighThreshold = 7
	}
	if cfg.Ranking.MediumThreshold == 0 {
		cfg.Ranking.MediumThreshold = 4
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "versefinder.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
