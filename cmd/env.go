package main

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/shotsense-cli/internal/analysis"
	"github.com/sells-group/shotsense-cli/internal/auth"
	"github.com/sells-group/shotsense-cli/internal/history"
	"github.com/sells-group/shotsense-cli/internal/media"
	"github.com/sells-group/shotsense-cli/internal/resilience"
	"github.com/sells-group/shotsense-cli/internal/store"
	"github.com/sells-group/shotsense-cli/internal/upload"
	"github.com/sells-group/shotsense-cli/pkg/shotsense"
)

// errSessionExpired is returned by commands whose session ran out. The
// redirector has already told the user what to do.
var errSessionExpired = eris.New("session expired")

// cliEnv holds everything a command needs to talk to the service.
type cliEnv struct {
	Store     store.Store
	Session   *auth.Session
	Client    shotsense.Client
	Gate      *auth.Gate
	Resolver  *analysis.Resolver
	History   *history.Fetcher
	Submitter *upload.Submitter

	cookieURL  *url.URL
	redirector *cliRedirector
	expired    atomic.Bool
	clearOnce  sync.Once
}

// Close saves the session cookies (unless the session expired) and closes
// the store.
func (e *cliEnv) Close(ctx context.Context) {
	if e.Store == nil {
		return
	}
	if !e.expired.Load() {
		if cookies := e.Session.Cookies(e.cookieURL); len(cookies) > 0 {
			if err := e.Store.SaveCookies(ctx, cfg.Service.BaseURL, cookies); err != nil {
				zap.L().Warn("cmd: save session cookies", zap.Error(err))
			}
		}
	}
	_ = e.Store.Close()
}

// expire marks the session expired and forgets the stored cookies. It reports
// whether this call did the work; later calls only see the flag.
func (e *cliEnv) expire(ctx context.Context) bool {
	e.expired.Store(true)
	first := false
	e.clearOnce.Do(func() {
		first = true
		if err := e.Store.ClearCookies(ctx, cfg.Service.BaseURL); err != nil {
			zap.L().Warn("cmd: clear session cookies", zap.Error(err))
		}
	})
	return first
}

// cliRedirector is the sign-in redirect of a terminal: it forgets the stored
// session and tells the user to log in again. The serve command shares one
// redirector across requests, so it may be called concurrently.
type cliRedirector struct {
	env *cliEnv
	out io.Writer
}

func (r *cliRedirector) RedirectToSignIn(ctx context.Context, reason error) {
	zap.L().Debug("cmd: session expired", zap.Error(reason))
	if r.env.expire(ctx) {
		fmt.Fprintln(r.out, "Your session has expired. Run `shotsense login` to sign in again.")
	}
}

// initEnv opens the store, restores the saved session and builds the service
// client. Callers should defer env.Close().
func initEnv(ctx context.Context, errOut io.Writer) (*cliEnv, error) {
	base, err := url.Parse(cfg.Service.BaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "parse service base url")
	}
	cookieURL := *base
	cookieURL.Path = "/"

	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}

	env := &cliEnv{Store: st, cookieURL: &cookieURL}
	env.Session = auth.NewSession(nil)

	saved, err := st.LoadCookies(ctx, cfg.Service.BaseURL)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	env.Session.Restore(&cookieURL, saved)

	env.Client = shotsense.NewClient(
		shotsense.WithBaseURL(cfg.Service.BaseURL),
		shotsense.WithUserAgent(cfg.Service.UserAgent),
		shotsense.WithCookieJar(env.Session.Jar()),
		shotsense.WithRateLimit(cfg.Service.RatePerSec),
		shotsense.WithRetryPolicy(cfg.Service.Policy()),
		shotsense.WithBreaker(resilience.NewBreaker(cfg.Service.Breaker())),
		shotsense.WithTimeout(cfg.Service.Timeout()),
	)
	env.redirector = &cliRedirector{env: env, out: errOut}
	env.Gate = auth.NewGate(env.Session, env.redirector)
	env.Resolver = analysis.NewResolver(env.Client, env.Gate)
	env.History = history.NewFetcher(env.Client, env.Gate)
	env.Submitter = upload.NewSubmitter(env.Client, env.Gate, st)
	return env, nil
}

// newDownloader builds the media downloader sharing the session cookies.
func (e *cliEnv) newDownloader() (*media.Downloader, error) {
	return media.NewDownloader(media.Options{
		BaseURL:    cfg.Service.BaseURL,
		UserAgent:  cfg.Service.UserAgent,
		MaxRetries: cfg.Download.MaxRetries,
		RatePerSec: cfg.Download.RatePerSec,
		Jar:        e.Session.Jar(),
	})
}
