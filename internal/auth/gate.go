package auth

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/shotsense-cli/internal/outcome"
	"github.com/sells-group/shotsense-cli/pkg/shotsense"
)

// ErrSessionExpired is the cancellation cause of an action whose session
// expired.
var ErrSessionExpired = eris.New("auth: session expired")

// Redirector sends the user to the sign-in entry point.
type Redirector interface {
	RedirectToSignIn(ctx context.Context, reason error)
}

// RedirectFunc adapts a function to Redirector.
type RedirectFunc func(ctx context.Context, reason error)

// RedirectToSignIn calls f.
func (f RedirectFunc) RedirectToSignIn(ctx context.Context, reason error) {
	f(ctx, reason)
}

// Gate classifies service failures for one session.
type Gate struct {
	session  *Session
	redirect Redirector
}

// NewGate creates a gate. A nil redirector only logs.
func NewGate(session *Session, redirect Redirector) *Gate {
	if redirect == nil {
		redirect = RedirectFunc(func(_ context.Context, reason error) {
			zap.L().Info("sign-in required", zap.Error(reason))
		})
	}
	return &Gate{session: session, redirect: redirect}
}

// Session returns the gate's session.
func (g *Gate) Session() *Session {
	return g.session
}

type actionKey struct{}

type action struct {
	cancel   context.CancelCauseFunc
	redirect sync.Once
}

// WithAction scopes ctx to one view action (a navigation, a submit). An
// expired session cancels the action with ErrSessionExpired and redirects at
// most once per action.
func WithAction(parent context.Context) (context.Context, context.CancelCauseFunc) {
	ctx, cancel := context.WithCancelCause(parent)
	return context.WithValue(ctx, actionKey{}, &action{cancel: cancel}), cancel
}

// Expired reports whether ctx's action was cancelled by an expired session.
func Expired(ctx context.Context) bool {
	return errors.Is(context.Cause(ctx), ErrSessionExpired)
}

// Guard runs fn under the gate and converts its result into an outcome:
// 401 redirects to sign-in and yields AuthExpired, 404 yields NotFound, a
// structured service message yields Remote, anything else Transport.
func Guard[T any](ctx context.Context, g *Gate, fn func(ctx context.Context) (T, error)) outcome.Outcome[T] {
	if Expired(ctx) {
		return outcome.AuthExpired[T](ErrSessionExpired)
	}

	v, err := fn(ctx)
	if err == nil {
		return outcome.OK(v)
	}
	return Classify[T](ctx, g, err)
}

// Classify converts a service error into a failed outcome. See Guard.
func Classify[T any](ctx context.Context, g *Gate, err error) outcome.Outcome[T] {
	switch {
	case shotsense.IsUnauthorized(err):
		g.expire(ctx, err)
		return outcome.AuthExpired[T](err)
	case Expired(ctx):
		return outcome.AuthExpired[T](ErrSessionExpired)
	}

	if apiErr, ok := shotsense.AsAPIError(err); ok {
		if apiErr.StatusCode == http.StatusNotFound {
			return outcome.NotFound[T](apiErr.Message, err)
		}
		if apiErr.Message != "" {
			return outcome.Remote[T](apiErr.Message, err)
		}
	}
	return outcome.Transport[T](err)
}

func (g *Gate) expire(ctx context.Context, reason error) {
	g.session.SetUser(nil)

	a, _ := ctx.Value(actionKey{}).(*action)
	if a == nil {
		g.redirect.RedirectToSignIn(ctx, reason)
		return
	}
	a.redirect.Do(func() {
		g.redirect.RedirectToSignIn(ctx, reason)
	})
	a.cancel(ErrSessionExpired)
}
