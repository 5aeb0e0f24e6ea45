// Package history lists the signed-in user's past analyses.
package history

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/shotsense-cli/internal/analysis"
	"github.com/sells-group/shotsense-cli/internal/auth"
	"github.com/sells-group/shotsense-cli/internal/model"
	"github.com/sells-group/shotsense-cli/internal/outcome"
	"github.com/sells-group/shotsense-cli/pkg/shotsense"
)

// FailureMessage is shown when the history cannot be loaded.
const FailureMessage = "Failed to load analysis videos. Please try again later."

// Lister is the slice of the service client the fetcher needs.
type Lister interface {
	CurrentUser(ctx context.Context) (*shotsense.User, error)
	ListAnalyses(ctx context.Context) ([]shotsense.Payload, error)
}

// Fetcher loads the analysis history for the gate's session.
type Fetcher struct {
	client Lister
	gate   *auth.Gate
}

// NewFetcher creates a fetcher.
func NewFetcher(client Lister, gate *auth.Gate) *Fetcher {
	return &Fetcher{client: client, gate: gate}
}

// List confirms the session and lists its analyses in the order the service
// returned them. An empty history is a successful, empty list.
func (f *Fetcher) List(ctx context.Context) outcome.Outcome[[]model.AnalysisSummary] {
	var (
		user    outcome.Outcome[*shotsense.User]
		entries outcome.Outcome[[]shotsense.Payload]
	)

	// Both calls always run to completion; failures are ranked afterwards.
	var g errgroup.Group
	g.Go(func() error {
		user = auth.Guard(ctx, f.gate, f.client.CurrentUser)
		return nil
	})
	g.Go(func() error {
		entries = auth.Guard(ctx, f.gate, f.client.ListAnalyses)
		return nil
	})
	_ = g.Wait()

	if failed := worst(user.Kind, entries.Kind); failed != outcome.KindOK {
		var out outcome.Outcome[[]model.AnalysisSummary]
		if failed == user.Kind {
			out = outcome.Convert[[]model.AnalysisSummary](user)
		} else {
			out = outcome.Convert[[]model.AnalysisSummary](entries)
		}
		if out.Kind == outcome.KindTransport {
			out.Message = FailureMessage
		}
		return out
	}

	if user.Value != nil {
		f.gate.Session().SetUser(&model.User{Name: user.Value.Name, Email: user.Value.Email})
	}

	list := make([]model.AnalysisSummary, 0, len(entries.Value))
	for i, p := range entries.Value {
		s, err := analysis.CoalesceSummary(p)
		if err != nil {
			zap.L().Warn("history: skipping malformed entry", zap.Int("index", i), zap.Error(err))
			continue
		}
		list = append(list, s)
	}
	return outcome.OK(list)
}

func worst(a, b outcome.Kind) outcome.Kind {
	if outcome.Priority(b) > outcome.Priority(a) {
		return b
	}
	return a
}
