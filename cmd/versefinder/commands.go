package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"versefinder/internal/corpus"
	"versefinder/internal/domain"
	"versefinder/internal/logging"
	"versefinder/internal/ranking"
	"versefinder/internal/report"
	"versefinder/internal/store"
	"versefinder/internal/tui"
)

// PlanCmd starts a session from a topic and optional notes.
type PlanCmd struct {
	Topic string `arg:"" help:"Study topic"`
	Notes string `help:"File with free-form notes or a draft outline" type:"existingfile"`
	Out   string `help:"Also write the plan to this YAML file for editing" type:"path"`
}

func (c *PlanCmd) Run(ctx context.Context, g *Globals) error {
	notes, err := readOptional(c.Notes)
	if err != nil {
		return err
	}
	a, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	sess, err := a.store.Create(ctx, c.Topic)
	if err != nil {
		return err
	}
	ctx = logging.WithSessionID(ctx, sess.ID)
	defer a.flushUsage(ctx, sess.ID)

	plan, err := a.svc.Plan(ctx, c.Topic, notes)
	if err != nil {
		return err
	}
	if err := a.store.SavePlan(ctx, sess.ID, plan); err != nil {
		return err
	}
	if c.Out != "" {
		if err := writeYAML(c.Out, plan); err != nil {
			return err
		}
	}
	fmt.Printf("Session %s\n\n%s\n", sess.ID, strings.TrimSpace(plan.Outline))
	return nil
}

// PlanSource is embedded by commands that accept an edited plan file.
type PlanSource struct {
	Session string `arg:"" help:"Session id or unique prefix"`
	Plan    string `help:"Replace the stored plan with this edited YAML file first" type:"existingfile"`
}

// plan resolves the session and returns its current plan, importing an edited file if given.
func (p PlanSource) plan(ctx context.Context, a *app) (store.Session, domain.Plan, error) {
	sess, err := a.store.Get(ctx, p.Session)
	if err != nil {
		return store.Session{}, domain.Plan{}, err
	}
	if p.Plan != "" {
		data, err := os.ReadFile(p.Plan)
		if err != nil {
			return sess, domain.Plan{}, err
		}
		var plan domain.Plan
		if err := yaml.Unmarshal(data, &plan); err != nil {
			return sess, domain.Plan{}, fmt.Errorf("parse %s: %w", p.Plan, err)
		}
		if err := a.store.SavePlan(ctx, sess.ID, plan); err != nil {
			return sess, domain.Plan{}, err
		}
		return sess, plan, nil
	}
	plan, err := a.store.LoadPlan(ctx, sess.ID)
	return sess, plan, err
}

// RefineCmd expands or validates the plan's terms.
type RefineCmd struct {
	PlanSource
	Out string `help:"Also write the refined plan to this YAML file" type:"path"`
}

func (c *RefineCmd) Run(ctx context.Context, g *Globals) error {
	a, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	sess, plan, err := c.plan(ctx, a)
	if err != nil {
		return err
	}
	ctx = logging.WithSessionID(ctx, sess.ID)
	defer a.flushUsage(ctx, sess.ID)

	refined, rejected, err := a.svc.Refine(ctx, plan)
	if err != nil {
		return err
	}
	if err := a.store.SavePlan(ctx, sess.ID, refined); err != nil {
		return err
	}
	if err := a.store.SetStage(ctx, sess.ID, store.StageRefined); err != nil {
		return err
	}
	if c.Out != "" {
		if err := writeYAML(c.Out, refined); err != nil {
			return err
		}
	}
	for _, r := range rejected {
		fmt.Printf("rejected %q in section %s\n", r.Term, r.Section)
	}
	fmt.Printf("%d terms in %d sections\n", len(refined.Terms()), len(refined.Sections))
	return nil
}

// CollectCmd searches the corpus for a session's plan.
type CollectCmd struct {
	PlanSource
	Mode string `help:"Search mode" enum:"fast,precise" default:"fast"`
}

func (c *CollectCmd) Run(ctx context.Context, g *Globals) error {
	a, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	sess, plan, err := c.plan(ctx, a)
	if err != nil {
		return err
	}
	ctx = logging.WithSessionID(ctx, sess.ID)
	defer a.flushUsage(ctx, sess.ID)

	coll, err := a.svc.Collect(ctx, plan, domain.SearchMode(c.Mode))
	if err != nil {
		return err
	}
	if err := a.store.SaveCollection(ctx, sess.ID, a.svc.Sorted(coll)); err != nil {
		return err
	}
	if err := a.store.SetStage(ctx, sess.ID, store.StageCollected); err != nil {
		return err
	}
	for _, sv := range a.svc.Sorted(coll) {
		fmt.Printf("%-8s %d verses\n", sv.Number, len(sv.Verses))
	}
	fmt.Printf("%d unique verses\n", len(coll.All()))
	return nil
}

// ReviewCmd opens the interactive review of a session's collection.
type ReviewCmd struct {
	Session string `arg:"" help:"Session id or unique prefix"`
}

func (c *ReviewCmd) Run(ctx context.Context, g *Globals) error {
	a, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	sess, err := a.store.Get(ctx, c.Session)
	if err != nil {
		return err
	}
	ctx = logging.WithSessionID(ctx, sess.ID)
	sections, err := a.store.LoadCollection(ctx, sess.ID)
	if err != nil {
		return err
	}
	coll := domain.CollectionFrom(sections)

	keep, err := tui.Run("Review: "+sess.Topic, coll.All().Sorted(a.index.Less))
	if errors.Is(err, tui.ErrAborted) {
		fmt.Println("review aborted, collection unchanged")
		return nil
	}
	if err != nil {
		return err
	}
	removed := a.svc.Review(coll, keep)
	if err := a.store.SaveCollection(ctx, sess.ID, a.svc.Sorted(coll)); err != nil {
		return err
	}
	if err := a.store.SetStage(ctx, sess.ID, store.StageReviewed); err != nil {
		return err
	}
	fmt.Printf("dropped %d placements, %d unique verses remain\n", removed, len(coll.All()))
	return nil
}

// ReportCmd ranks a session's collection and writes the report.
type ReportCmd struct {
	Session string `arg:"" help:"Session id or unique prefix"`
	Out     string `help:"Write the report to this file instead of stdout" type:"path" short:"o"`
}

func (c *ReportCmd) Run(ctx context.Context, g *Globals) error {
	a, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	sess, err := a.store.Get(ctx, c.Session)
	if err != nil {
		return err
	}
	ctx = logging.WithSessionID(ctx, sess.ID)
	defer a.flushUsage(ctx, sess.ID)

	plan, err := a.store.LoadPlan(ctx, sess.ID)
	if err != nil {
		return err
	}
	sections, err := a.store.LoadCollection(ctx, sess.ID)
	if err != nil {
		return err
	}
	a.svc.Progress = stderrProgress()
	rm, err := a.svc.Rank(ctx, plan, domain.CollectionFrom(sections))
	if err != nil {
		return err
	}
	if err := a.writeReport(c.Out, plan, rm); err != nil {
		return err
	}
	return a.store.SetStage(ctx, sess.ID, store.StageReported)
}

// RunCmd executes every stage without interaction.
type RunCmd struct {
	Topic string `arg:"" help:"Study topic"`
	Notes string `help:"File with free-form notes or a draft outline" type:"existingfile"`
	Mode  string `help:"Search mode" enum:"fast,precise" default:"fast"`
	Out   string `help:"Write the report to this file instead of stdout" type:"path" short:"o"`
}

func (c *RunCmd) Run(ctx context.Context, g *Globals) error {
	notes, err := readOptional(c.Notes)
	if err != nil {
		return err
	}
	a, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	sess, err := a.store.Create(ctx, c.Topic)
	if err != nil {
		return err
	}
	ctx = logging.WithSessionID(ctx, sess.ID)
	defer a.flushUsage(ctx, sess.ID)
	log := logging.FromContext(ctx)

	var stages []report.Stage
	timed := func(name string, fn func() error) error {
		start := time.Now()
		err := fn()
		stages = append(stages, report.Stage{Name: name, Duration: time.Since(start)})
		log.Info("stage finished", "stage", name, "duration", time.Since(start).Round(time.Millisecond), "ok", err == nil)
		return err
	}

	var (
		plan domain.Plan
		coll *domain.Collection
		rm   *domain.RelevanceMap
	)
	if err := timed("plan", func() (err error) {
		plan, err = a.svc.Plan(ctx, c.Topic, notes)
		return err
	}); err != nil {
		return err
	}
	if err := a.store.SavePlan(ctx, sess.ID, plan); err != nil {
		return err
	}
	if err := timed("refine", func() (err error) {
		plan, _, err = a.svc.Refine(ctx, plan)
		return err
	}); err != nil {
		return err
	}
	if err := a.store.SavePlan(ctx, sess.ID, plan); err != nil {
		return err
	}
	if err := timed("collect", func() (err error) {
		coll, err = a.svc.Collect(ctx, plan, domain.SearchMode(c.Mode))
		return err
	}); err != nil {
		return err
	}
	if err := a.store.SaveCollection(ctx, sess.ID, a.svc.Sorted(coll)); err != nil {
		return err
	}
	a.svc.Progress = stderrProgress()
	if err := timed("rank", func() (err error) {
		rm, err = a.svc.Rank(ctx, plan, coll)
		return err
	}); err != nil {
		return err
	}
	if err := timed("report", func() error {
		return a.writeReport(c.Out, plan, rm)
	}); err != nil {
		return err
	}
	if err := a.store.SetStage(ctx, sess.ID, store.StageReported); err != nil {
		return err
	}

	sum := report.Summarize(coll, rm)
	sum.Usage = a.svc.Ledger().Total()
	sum.Cost = a.svc.Ledger().Cost(a.cfg.Oracle.Prices)
	sum.Stages = stages
	return sum.Write(os.Stderr)
}

// DictionaryCmd writes the attested word list of the corpus.
type DictionaryCmd struct {
	Out string `help:"Output JSON file" type:"path" required:""`
}

func (c *DictionaryCmd) Run(g *Globals) error {
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	ix, err := corpus.Load(cfg.Corpus.Path)
	if err != nil {
		return err
	}
	d, err := exportDictionary(cfg, ix, c.Out)
	if err != nil {
		return err
	}
	fmt.Printf("%d words written to %s\n", d.Len(), c.Out)
	return nil
}

// SessionsCmd lists stored sessions, newest first.
type SessionsCmd struct{}

func (c *SessionsCmd) Run(ctx context.Context, g *Globals) error {
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	sessions, err := st.List(ctx)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("No sessions.")
		return nil
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTAGE\tUPDATED\tCALLS\tTOKENS\tTOPIC")
	for _, s := range sessions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n",
			s.ID[:8], s.Stage, s.UpdatedAt.Local().Format("2006-01-02 15:04"), s.Calls, s.Usage.Total(), s.Topic)
	}
	return tw.Flush()
}

var createFile = func(path string) (io.WriteCloser, error) { return os.Create(path) }

// writeReport renders to path, or stdout when path is empty. A failed close is reported.
func (a *app) writeReport(path string, plan domain.Plan, rm *domain.RelevanceMap) (err error) {
	r := &report.Renderer{
		Thresholds: ranking.Thresholds{High: a.cfg.Ranking.HighThreshold, Medium: a.cfg.Ranking.MediumThreshold},
		Footer:     a.cfg.Report.Footer,
	}
	if path == "" {
		return r.Render(os.Stdout, plan.Outline, rm)
	}
	f, err := createFile(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", path, cerr)
		}
	}()
	return r.Render(f, plan.Outline, rm)
}

func stderrProgress() ranking.Progress {
	return ranking.ProgressFunc(func(percent int, msg string) {
		fmt.Fprintf(os.Stderr, "[%3d%%] %s\n", percent, msg)
	})
}

func readOptional(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func writeYAML(path string, v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
