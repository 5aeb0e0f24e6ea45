// Package export writes the signed-in user's analysis history, with each
// record's metrics and feedback, to an xlsx workbook.
package export

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/shotsense-cli/internal/auth"
	"github.com/sells-group/shotsense-cli/internal/model"
	"github.com/sells-group/shotsense-cli/internal/outcome"
	"github.com/sells-group/shotsense-cli/internal/phase"
	"github.com/sells-group/shotsense-cli/internal/render"
)

// Sheet names.
const (
	SheetHistory  = "History"
	SheetMetrics  = "Metrics"
	SheetFeedback = "Feedback"
)

var (
	historyHeader  = []string{"Analysis ID", "Date", "Video", "Status", "Make probability", "Score", "Message"}
	metricsHeader  = []string{"Analysis ID", "Phase", "Metric", "Label", "Value"}
	feedbackHeader = []string{"Analysis ID", "Feature", "Score", "Short", "Detailed"}
)

// Lister loads the history list.
type Lister interface {
	List(ctx context.Context) outcome.Outcome[[]model.AnalysisSummary]
}

// Resolver loads one record.
type Resolver interface {
	Resolve(ctx context.Context, id string, handoff *model.Handoff) outcome.Outcome[*model.AnalysisRecord]
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithConcurrency bounds how many records are fetched at once.
func WithConcurrency(n int) Option {
	return func(e *Exporter) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithNormalizer sets the phase normalizer used for the Metrics sheet.
func WithNormalizer(n *phase.Normalizer) Option {
	return func(e *Exporter) {
		if n != nil {
			e.normalizer = n
		}
	}
}

// Exporter builds history workbooks.
type Exporter struct {
	lister      Lister
	resolver    Resolver
	normalizer  *phase.Normalizer
	concurrency int
}

// New creates an Exporter.
func New(lister Lister, resolver Resolver, opts ...Option) *Exporter {
	e := &Exporter{
		lister:      lister,
		resolver:    resolver,
		normalizer:  phase.NewNormalizer(),
		concurrency: 4,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Summary counts what an export contained.
type Summary struct {
	Analyses int `json:"analyses" yaml:"analyses"`
	Resolved int `json:"resolved" yaml:"resolved"`
	Failed   int `json:"failed" yaml:"failed"`
	Metrics  int `json:"metrics" yaml:"metrics"`
}

type result struct {
	summary model.AnalysisSummary
	out     outcome.Outcome[*model.AnalysisRecord]
}

// Build fetches the history and every record in it. A record that cannot be
// loaded gets a History row with its failure message; an expired session
// aborts the whole export with auth.ErrSessionExpired.
func (e *Exporter) Build(ctx context.Context) (*xlsx.File, *Summary, error) {
	ctx, cancel := auth.WithAction(ctx)
	defer cancel(nil)

	list := e.lister.List(ctx)
	if !list.IsOK() {
		return nil, nil, failure("list history", list.Kind, list.Message, list.Err)
	}

	results := make([]result, len(list.Value))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, s := range list.Value {
		g.Go(func() error {
			out := e.resolver.Resolve(gctx, s.ID, nil)
			if out.Kind == outcome.KindAuthExpired {
				return failure("resolve "+s.ID, out.Kind, out.Message, out.Err)
			}
			results[i] = result{summary: s, out: out}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	f, sum, err := e.workbook(results)
	if err != nil {
		return nil, nil, err
	}
	zap.L().Info("export: workbook built",
		zap.Int("analyses", sum.Analyses),
		zap.Int("failed", sum.Failed),
		zap.Int("metrics", sum.Metrics),
	)
	return f, sum, nil
}

// WriteFile builds the workbook and saves it to path.
func (e *Exporter) WriteFile(ctx context.Context, path string) (*Summary, error) {
	f, sum, err := e.Build(ctx)
	if err != nil {
		return nil, err
	}
	if err := f.Save(path); err != nil {
		return nil, eris.Wrapf(err, "export: save %s", path)
	}
	return sum, nil
}

func (e *Exporter) workbook(results []result) (*xlsx.File, *Summary, error) {
	f := xlsx.NewFile()
	sheets := make(map[string]*xlsx.Sheet, 3)
	for _, def := range []struct {
		name   string
		header []string
	}{
		{SheetHistory, historyHeader},
		{SheetMetrics, metricsHeader},
		{SheetFeedback, feedbackHeader},
	} {
		sh, err := f.AddSheet(def.name)
		if err != nil {
			return nil, nil, eris.Wrapf(err, "export: add sheet %s", def.name)
		}
		addStrings(sh.AddRow(), def.header...)
		sheets[def.name] = sh
	}

	sum := &Summary{Analyses: len(results)}
	for _, r := range results {
		row := sheets[SheetHistory].AddRow()
		addStrings(row, r.summary.ID, formatDate(r.summary.CreatedAt), deref(r.summary.VideoURL))

		if !r.out.IsOK() || r.out.Value == nil {
			sum.Failed++
			msg := r.out.Message
			if msg == "" {
				msg = outcome.GenericFailureMessage
			}
			addStrings(row, string(r.out.Kind), "", "", msg)
			continue
		}
		sum.Resolved++

		rec := r.out.Value
		addStrings(row, "ready")
		row.AddCell().SetFloat(render.ClampProbability(rec.MakeProbability))
		row.AddCell().SetFloat(render.Score10(rec.MakeProbability))
		addStrings(row, "")

		view := e.normalizer.Normalize(rec.Metrics)
		for _, p := range phase.All {
			for _, m := range view.Group(p) {
				mr := sheets[SheetMetrics].AddRow()
				addStrings(mr, r.summary.ID, string(p), m.Source, render.Label(m.Key))
				addValue(mr, m.Value)
				sum.Metrics++
			}
		}

		for _, fb := range rec.FormFeedback {
			fr := sheets[SheetFeedback].AddRow()
			addStrings(fr, r.summary.ID, fb.Feature)
			fr.AddCell().SetFloat(fb.Score)
			addStrings(fr, fb.Short, fb.Detailed)
		}
	}
	return f, sum, nil
}

func failure(action string, kind outcome.Kind, msg string, err error) error {
	if kind == outcome.KindAuthExpired {
		return eris.Wrapf(auth.ErrSessionExpired, "export: %s", action)
	}
	if msg == "" {
		msg = outcome.GenericFailureMessage
	}
	if err != nil {
		return eris.Wrapf(err, "export: %s: %s", action, msg)
	}
	return eris.Errorf("export: %s: %s", action, msg)
}

func addStrings(row *xlsx.Row, values ...string) {
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}

func addValue(row *xlsx.Row, v any) {
	switch x := v.(type) {
	case float64:
		row.AddCell().SetFloat(x)
	case nil:
		row.AddCell().SetString("")
	default:
		row.AddCell().SetString(render.FormatValue(x))
	}
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
