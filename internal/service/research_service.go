package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"versefinder/internal/corpus"
	"versefinder/internal/domain"
	"versefinder/internal/keywords"
	"versefinder/internal/logging"
	"versefinder/internal/oracle"
	"versefinder/internal/outline"
	"versefinder/internal/planner"
	"versefinder/internal/ranking"
	"versefinder/internal/relevance"
	"versefinder/internal/search"
)

// Strategy selects how plan terms are refined before searching.
type Strategy string

const (
	StrategyNone     Strategy = "none"
	StrategyExpand   Strategy = "expand"
	StrategyValidate Strategy = "validate"
)

// Window is the number of neighbouring verses taken around each hit.
type Window struct {
	Before int
	After  int
}

// Options tune the pipeline. Zero values fall back to DefaultOptions; a nil window
// takes the default, a zero window keeps only the hit itself.
type Options struct {
	FastWindow    *Window
	PreciseWindow *Window
	CacheSize     int
	Strategy      Strategy
	// Dictionary is built from the corpus when nil and the strategy is validate.
	Dictionary    *keywords.Dictionary
	SuffixPolicy  keywords.SuffixPolicy
	GroupVariants bool
	FilterBatch   int
	RankBatch     int
	Thresholds    ranking.Thresholds
}

func DefaultOptions() Options {
	return Options{
		FastWindow:    &Window{Before: 0, After: 1},
		PreciseWindow: &Window{Before: 3, After: 3},
		CacheSize:     search.DefaultCacheSize,
		Strategy:      StrategyExpand,
		SuffixPolicy:  keywords.Finnish,
		FilterBatch:   relevance.DefaultBatchSize,
		RankBatch:     ranking.DefaultBatchSize,
		Thresholds:    ranking.DefaultThresholds,
	}
}

// ResearchServiceImpl runs the verse discovery pipeline over one corpus.
// It is not safe for concurrent use.
type ResearchServiceImpl struct {
	index     *corpus.Index
	searcher  domain.Searcher
	planner   *planner.Builder
	expander  *keywords.Expander
	validator *keywords.Validator
	filter    *relevance.Filter
	ranker    *ranking.Engine
	ledger    *oracle.Ledger
	opts      Options

	// Progress, when set, observes ranking.
	Progress ranking.Progress
}

var _ domain.ResearchService = (*ResearchServiceImpl)(nil)

// NewResearchService wires the pipeline. Every oracle call is metered into the service ledger.
func NewResearchService(ix *corpus.Index, o oracle.Oracle, opts Options) (*ResearchServiceImpl, error) {
	def := DefaultOptions()
	if opts.FastWindow == nil {
		opts.FastWindow = def.FastWindow
	}
	if opts.PreciseWindow == nil {
		opts.PreciseWindow = def.PreciseWindow
	}
	if opts.Strategy == "" {
		opts.Strategy = def.Strategy
	}
	if opts.Thresholds == (ranking.Thresholds{}) {
		opts.Thresholds = def.Thresholds
	}
	if opts.SuffixPolicy == nil {
		opts.SuffixPolicy = def.SuffixPolicy
	}

	searcher, err := search.New(ix, opts.CacheSize)
	if err != nil {
		return nil, err
	}
	ledger := &oracle.Ledger{}
	metered := oracle.Wrap(o, oracle.Metering(ledger))

	s := &ResearchServiceImpl{
		index:    ix,
		searcher: searcher,
		planner:  planner.New(metered),
		filter:   relevance.New(metered, opts.FilterBatch),
		ranker:   ranking.New(metered, opts.RankBatch),
		ledger:   ledger,
		opts:     opts,
	}
	s.planner.GroupVariants = opts.GroupVariants
	s.ranker.Thresholds = opts.Thresholds

	switch opts.Strategy {
	case StrategyNone:
	case StrategyExpand:
		s.expander = keywords.NewExpander(metered)
	case StrategyValidate:
		dict := opts.Dictionary
		if dict == nil {
			return nil, fmt.Errorf("validate strategy needs a dictionary")
		}
		s.validator = keywords.NewValidator(dict, opts.SuffixPolicy)
	default:
		return nil, fmt.Errorf("unknown keyword strategy %q", opts.Strategy)
	}
	return s, nil
}

// Ledger returns the accumulated token usage of this service.
func (s *ResearchServiceImpl) Ledger() *oracle.Ledger { return s.ledger }

// Plan builds the search plan. Failure is terminal for the request.
func (s *ResearchServiceImpl) Plan(ctx context.Context, topic, notes string) (domain.Plan, error) {
	if strings.TrimSpace(topic) == "" && strings.TrimSpace(notes) == "" {
		return domain.Plan{}, fmt.Errorf("%w: topic and notes are empty", planner.ErrNoPlan)
	}
	plan, usage, err := s.planner.Build(ctx, topic, notes)
	if err != nil {
		return domain.Plan{}, err
	}
	logging.FromContext(ctx).Info("plan built", "sections", len(plan.Sections), "terms", len(plan.Terms()), "tokens", usage.Total())
	return plan, nil
}

// Refine applies the configured keyword strategy over the plan's whole term universe.
func (s *ResearchServiceImpl) Refine(ctx context.Context, plan domain.Plan) (domain.Plan, []domain.Rejection, error) {
	switch {
	case s.expander != nil:
		expansions, usage := s.expander.Expand(ctx, plan.Terms())
		if err := ctx.Err(); err != nil {
			return plan, nil, err
		}
		out := keywords.Apply(plan, expansions)
		logging.FromContext(ctx).Info("terms expanded", "before", len(plan.Terms()), "after", len(out.Terms()), "tokens", usage.Total())
		return out, nil, nil
	case s.validator != nil:
		out, rejected := s.validator.ValidatePlan(ctx, plan)
		logging.FromContext(ctx).Info("terms validated", "kept", len(out.Terms()), "rejected", len(rejected))
		return out, rejected, nil
	}
	return plan, nil, nil
}

// Collect searches every section's terms. Fast mode keeps every windowed hit; precise
// mode widens the window and keeps only what the oracle selects for the section theme.
// Every plan section appears in the result, even when it finds nothing.
func (s *ResearchServiceImpl) Collect(ctx context.Context, plan domain.Plan, mode domain.SearchMode) (*domain.Collection, error) {
	coll := domain.NewCollection()
	for _, sec := range plan.Sections {
		if err := ctx.Err(); err != nil {
			return coll, err
		}
		found := coll.Ensure(sec.Number)
		theme := s.theme(plan, sec.Number)
		for _, term := range sec.Terms {
			term = strings.TrimSpace(term)
			if term == "" {
				continue
			}
			switch mode {
			case domain.ModePrecise:
				w := *s.opts.PreciseWindow
				hits := s.searcher.Find(term, w.Before, w.After)
				if len(hits) == 0 {
					continue
				}
				picked, _ := s.filter.Select(ctx, hits.Sorted(s.index.Less), theme)
				for _, c := range picked {
					found.Add(c)
				}
			default:
				w := *s.opts.FastWindow
				found.AddAll(s.searcher.Find(term, w.Before, w.After))
			}
		}
		logging.FromContext(ctx).Debug("section collected", "section", sec.Number, "mode", mode, "verses", len(found))
	}
	logging.FromContext(ctx).Info("verses collected", "sections", len(coll.Sections()), "unique", len(coll.All()), "mode", mode)
	return coll, nil
}

// theme resolves a section title from the current outline, falling back to the topic.
func (s *ResearchServiceImpl) theme(plan domain.Plan, section string) string {
	if t, ok := outline.Theme(plan.Outline, section); ok {
		return t
	}
	return plan.Topic
}

// Review drops every collected verse not in keep from all sections.
func (s *ResearchServiceImpl) Review(coll *domain.Collection, keep domain.CitationSet) int {
	removed := coll.Retain(keep)
	slog.Info("collection reviewed", "removed", removed, "remaining", len(coll.All()))
	return removed
}

// Sorted returns the collection with every section's verses in canonical order.
func (s *ResearchServiceImpl) Sorted(coll *domain.Collection) []domain.SectionVerses {
	return coll.Sorted(s.index.Less)
}

// Rank scores and buckets every section in plan order.
func (s *ResearchServiceImpl) Rank(ctx context.Context, plan domain.Plan, coll *domain.Collection) (*domain.RelevanceMap, error) {
	rm, usage := s.ranker.ScoreAndBucket(ctx, plan.Topic, plan.Outline, s.Sorted(coll), s.Progress)
	if err := ctx.Err(); err != nil {
		return rm, err
	}
	logging.FromContext(ctx).Info("verses ranked", "sections", len(rm.Order), "tokens", usage.Total())
	return rm, nil
}
