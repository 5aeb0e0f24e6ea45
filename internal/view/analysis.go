package view

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/shotsense-cli/internal/model"
	"github.com/sells-group/shotsense-cli/internal/outcome"
	"github.com/sells-group/shotsense-cli/internal/phase"
)

// Resolver produces the record for an analysis id.
type Resolver interface {
	Resolve(ctx context.Context, id string, handoff *model.Handoff) outcome.Outcome[*model.AnalysisRecord]
}

// AnalysisState is what the analysis view shows.
type AnalysisState struct {
	Status    Status                `json:"status" yaml:"status"`
	ID        string                `json:"id" yaml:"id"`
	Record    *model.AnalysisRecord `json:"record,omitempty" yaml:"record,omitempty"`
	Phases    phase.View            `json:"phases" yaml:"phases"`
	Message   string                `json:"message,omitempty" yaml:"message,omitempty"`
	Retryable bool                  `json:"retryable" yaml:"retryable"`
}

// AnalysisView shows one analysis record.
type AnalysisView struct {
	resolver   Resolver
	normalizer *phase.Normalizer
	ctl        controller[AnalysisState]
}

// NewAnalysisView creates an idle view. A nil normalizer uses the default
// phase prefixes.
func NewAnalysisView(resolver Resolver, normalizer *phase.Normalizer) *AnalysisView {
	if normalizer == nil {
		normalizer = phase.NewNormalizer()
	}
	v := &AnalysisView{resolver: resolver, normalizer: normalizer}
	v.ctl.state = AnalysisState{Status: StatusIdle}
	return v
}

// Navigate shows id, preferring the handoff record when one is pending. It
// enters Loading at once and resolves in the background; the returned
// channel closes when that resolve has finished, committed or not.
func (v *AnalysisView) Navigate(ctx context.Context, id string, handoff *model.Handoff) <-chan struct{} {
	actx, gen, ok := v.ctl.begin(ctx, id, AnalysisState{Status: StatusLoading, ID: id})
	if !ok {
		return closed()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		out := v.resolver.Resolve(actx, id, handoff)
		v.apply(gen, id, out)
	}()
	return done
}

// Retry re-runs the last navigation from NotFound or Error. It reports false
// and does nothing in any other state.
func (v *AnalysisView) Retry(ctx context.Context) (<-chan struct{}, bool) {
	s := v.ctl.snapshot()
	if s.Status != StatusNotFound && s.Status != StatusError {
		return closed(), false
	}
	return v.Navigate(ctx, v.ctl.lastKey(), nil), true
}

// Unmount cancels the pending resolve. Nothing is committed afterwards.
func (v *AnalysisView) Unmount() {
	v.ctl.unmount()
}

// State returns the current state.
func (v *AnalysisView) State() AnalysisState {
	return v.ctl.snapshot()
}

// Subscribe registers fn for every committed state, in commit order.
func (v *AnalysisView) Subscribe(fn func(AnalysisState)) {
	v.ctl.subscribe(fn)
}

// Redirected reports whether the latest navigation left for sign-in.
func (v *AnalysisView) Redirected() bool {
	return v.ctl.wasRedirected()
}

func (v *AnalysisView) apply(gen uint64, id string, out outcome.Outcome[*model.AnalysisRecord]) {
	var s AnalysisState
	switch out.Kind {
	case outcome.KindOK:
		s = AnalysisState{
			Status: StatusReady,
			ID:     id,
			Record: out.Value,
			Phases: v.normalizer.Normalize(out.Value.Metrics),
		}
	case outcome.KindAuthExpired:
		v.ctl.escape(gen, id)
		return
	case outcome.KindNotFound:
		s = AnalysisState{Status: StatusNotFound, ID: id, Message: out.Message}
	default:
		s = AnalysisState{Status: StatusError, ID: id, Message: out.Message, Retryable: out.Retryable()}
	}

	if !v.ctl.commit(gen, id, s) {
		zap.L().Debug("view: discarded stale analysis result", zap.String("analysis_id", id), zap.String("kind", string(out.Kind)))
	}
}
