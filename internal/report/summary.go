package report

import (
	"fmt"
	"io"
	"time"

	"versefinder/internal/domain"
	"versefinder/internal/oracle"
)

// Summary is the closing statistics block of a headless run.
type Summary struct {
	Collected  int
	Ranked     int
	Placements int
	Usage      oracle.Usage
	Cost       float64
	Stages     []Stage
}

// Stage is one timed pipeline step.
type Stage struct {
	Name     string
	Duration time.Duration
}

// Summarize counts unique collected verses, unique ranked verses and total placements.
// A verse ranked in two sections counts once in Ranked and twice in Placements.
func Summarize(c *domain.Collection, rm *domain.RelevanceMap) Summary {
	ranked := domain.NewCitationSet()
	placements := 0
	for _, b := range rm.Buckets {
		for _, v := range b.High {
			ranked.Add(v)
		}
		for _, v := range b.Medium {
			ranked.Add(v)
		}
		placements += len(b.High) + len(b.Medium)
	}
	return Summary{Collected: len(c.All()), Ranked: len(ranked), Placements: placements}
}

func (s Summary) Write(w io.Writer) error {
	_, err := fmt.Fprintf(w, `SUMMARY
  unique verses collected: %d
  unique verses ranked:    %d
  section placements:      %d
  tokens: input=%d output=%d total=%d
  estimated cost: ~$%.4f
`, s.Collected, s.Ranked, s.Placements, s.Usage.PromptTokens, s.Usage.CompletionTokens, s.Usage.Total(), s.Cost)
	if err != nil {
		return err
	}
	for _, st := range s.Stages {
		if _, err := fmt.Fprintf(w, "  %-10s %s\n", st.Name, st.Duration.Round(time.Millisecond)); err != nil {
			return err
		}
	}
	return nil
}
