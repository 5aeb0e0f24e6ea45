package view

import (
	"context"

	"github.com/sells-group/shotsense-cli/internal/model"
	"github.com/sells-group/shotsense-cli/internal/outcome"
)

// Lister produces the analysis history.
type Lister interface {
	List(ctx context.Context) outcome.Outcome[[]model.AnalysisSummary]
}

// HistoryState is what the history view shows. Entries is empty, not nil,
// for a user without analyses.
type HistoryState struct {
	Status    Status                  `json:"status" yaml:"status"`
	Entries   []model.AnalysisSummary `json:"entries" yaml:"entries"`
	Message   string                  `json:"message,omitempty" yaml:"message,omitempty"`
	Retryable bool                    `json:"retryable" yaml:"retryable"`
}

// HistoryView lists past analyses.
type HistoryView struct {
	lister Lister
	ctl    controller[HistoryState]
}

// NewHistoryView creates an idle view.
func NewHistoryView(lister Lister) *HistoryView {
	v := &HistoryView{lister: lister}
	v.ctl.state = HistoryState{Status: StatusIdle, Entries: []model.AnalysisSummary{}}
	return v
}

// Load fetches the history in the background. The returned channel closes
// when the fetch has finished.
func (v *HistoryView) Load(ctx context.Context) <-chan struct{} {
	loading := HistoryState{Status: StatusLoading, Entries: []model.AnalysisSummary{}}
	actx, gen, ok := v.ctl.begin(ctx, "", loading)
	if !ok {
		return closed()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		v.apply(gen, v.lister.List(actx))
	}()
	return done
}

// Retry reloads after an error.
func (v *HistoryView) Retry(ctx context.Context) (<-chan struct{}, bool) {
	if v.ctl.snapshot().Status != StatusError {
		return closed(), false
	}
	return v.Load(ctx), true
}

// Unmount cancels the pending fetch. Nothing is committed afterwards.
func (v *HistoryView) Unmount() {
	v.ctl.unmount()
}

// State returns the current state.
func (v *HistoryView) State() HistoryState {
	return v.ctl.snapshot()
}

// Subscribe registers fn for every committed state.
func (v *HistoryView) Subscribe(fn func(HistoryState)) {
	v.ctl.subscribe(fn)
}

// Redirected reports whether the latest load left for sign-in.
func (v *HistoryView) Redirected() bool {
	return v.ctl.wasRedirected()
}

func (v *HistoryView) apply(gen uint64, out outcome.Outcome[[]model.AnalysisSummary]) {
	var s HistoryState
	switch out.Kind {
	case outcome.KindOK:
		entries := out.Value
		if entries == nil {
			entries = []model.AnalysisSummary{}
		}
		s = HistoryState{Status: StatusReady, Entries: entries}
	case outcome.KindAuthExpired:
		v.ctl.escape(gen, "")
		return
	default:
		s = HistoryState{Status: StatusError, Entries: []model.AnalysisSummary{}, Message: out.Message, Retryable: out.Retryable()}
	}
	v.ctl.commit(gen, "", s)
}
