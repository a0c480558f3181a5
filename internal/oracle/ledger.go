package oracle

import "fmt"

// Prices are USD per million tokens for each tier.
type Prices struct {
	FastInput  float64 `yaml:"fast_input"`
	FastOutput float64 `yaml:"fast_output"`
	DeepInput  float64 `yaml:"deep_input"`
	DeepOutput float64 `yaml:"deep_output"`
}

// DefaultPrices are rough list prices used when none are configured.
var DefaultPrices = Prices{FastInput: 0.35, FastOutput: 1.05, DeepInput: 3.5, DeepOutput: 10.5}

// Ledger accumulates usage across a session. It is owned by one goroutine.
type Ledger struct {
	total Usage
	calls int
}

// Record adds one call's usage.
func (l *Ledger) Record(u Usage) {
	l.total = l.total.Add(u)
	l.calls++
}

func (l *Ledger) Total() Usage { return l.total }

// Calls is the number of Record invocations.
func (l *Ledger) Calls() int { return l.calls }

// Cost estimates spend by averaging the fast and deep price per direction,
// since a session mixes both tiers.
func (l *Ledger) Cost(p Prices) float64 {
	in := float64(l.total.PromptTokens) / 1e6 * (p.FastInput + p.DeepInput) / 2
	out := float64(l.total.CompletionTokens) / 1e6 * (p.FastOutput + p.DeepOutput) / 2
	return in + out
}

// String renders the totals for operators.
func (l *Ledger) String() string {
	return fmt.Sprintf("input=%d output=%d total=%d", l.total.PromptTokens, l.total.CompletionTokens, l.total.Total())
}
