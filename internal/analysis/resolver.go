// Package analysis resolves analysis records, either from an upload handoff
// or from the service, and maps service payloads onto the canonical record.
package analysis

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/shotsense-cli/internal/auth"
	"github.com/sells-group/shotsense-cli/internal/model"
	"github.com/sells-group/shotsense-cli/internal/outcome"
	"github.com/sells-group/shotsense-cli/pkg/shotsense"
)

// NotFoundMessage is shown when the service has no record for an id.
const NotFoundMessage = "Analysis not found"

// Fetcher is the slice of the service client the resolver needs.
type Fetcher interface {
	GetAnalysis(ctx context.Context, id string) (shotsense.Payload, error)
}

// Resolver produces the record a view should display.
type Resolver struct {
	client Fetcher
	gate   *auth.Gate
}

// NewResolver creates a resolver.
func NewResolver(client Fetcher, gate *auth.Gate) *Resolver {
	return &Resolver{client: client, gate: gate}
}

// Resolve returns the record for id. A pending handoff is adopted without a
// network call and consumed; otherwise the record is fetched under the auth
// gate. The resolver never retries.
func (r *Resolver) Resolve(ctx context.Context, id string, handoff *model.Handoff) outcome.Outcome[*model.AnalysisRecord] {
	if rec := handoff.Take(); rec != nil {
		switch {
		case rec.ID == "" || id == "" || rec.ID == id:
			if rec.ID == "" {
				rec.ID = id
			}
			return outcome.OK(rec)
		default:
			zap.L().Warn("analysis: handoff is for another record, fetching",
				zap.String("analysis_id", id),
				zap.String("handoff_id", rec.ID),
			)
		}
	}

	if id == "" {
		return outcome.Validation[*model.AnalysisRecord]("Missing analysis id.", eris.New("analysis: empty id"))
	}

	fetched := auth.Guard(ctx, r.gate, func(ctx context.Context) (shotsense.Payload, error) {
		return r.client.GetAnalysis(ctx, id)
	})
	if !fetched.IsOK() {
		out := outcome.Convert[*model.AnalysisRecord](fetched)
		if out.Kind == outcome.KindNotFound && out.Message == "" {
			out.Message = NotFoundMessage
		}
		return out
	}

	rec, err := Coalesce(fetched.Value, id)
	if err != nil {
		zap.L().Error("analysis: malformed payload", zap.String("analysis_id", id), zap.Error(err))
		return outcome.Transport[*model.AnalysisRecord](err)
	}
	return outcome.OK(rec)
}
