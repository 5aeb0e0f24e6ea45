// Package media downloads the videos and frames an analysis record points to.
package media

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/shotsense-cli/internal/auth"
	"github.com/sells-group/shotsense-cli/internal/model"
	"github.com/sells-group/shotsense-cli/internal/resilience"
)

// Options configures the Downloader.
type Options struct {
	// BaseURL resolves relative locators such as "/videos/x.mp4".
	BaseURL     string
	UserAgent   string
	Timeout     time.Duration
	MaxRetries  int
	RatePerSec  float64
	BackoffBase time.Duration
	// Jar carries the session cookie for media served behind sign-in.
	Jar http.CookieJar
}

// AdaptiveLimiter wraps a rate.Limiter that slows down on 429 and speeds
// back up on success. The rate stays within [initial/4, initial*2].
type AdaptiveLimiter struct {
	mu          sync.Mutex
	limiter     *rate.Limiter
	maxRate     rate.Limit
	minRate     rate.Limit
	currentRate rate.Limit
}

// NewAdaptiveLimiter creates an adaptive limiter.
func NewAdaptiveLimiter(initialRate rate.Limit, burst int) *AdaptiveLimiter {
	return &AdaptiveLimiter{
		limiter:     rate.NewLimiter(initialRate, burst),
		maxRate:     initialRate * 2,
		minRate:     initialRate / 4,
		currentRate: initialRate,
	}
}

// Wait blocks until the limiter allows an event.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// OnSuccess raises the rate by 20%.
func (a *AdaptiveLimiter) OnSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.currentRate = min(a.currentRate*1.2, a.maxRate)
	a.limiter.SetLimit(a.currentRate)
}

// OnRateLimit halves the rate.
func (a *AdaptiveLimiter) OnRateLimit() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.currentRate = max(a.currentRate*0.5, a.minRate)
	a.limiter.SetLimit(a.currentRate)
	zap.L().Warn("media: reducing download rate after 429",
		zap.Float64("new_rate", float64(a.currentRate)),
	)
}

// Limit returns the current rate.
func (a *AdaptiveLimiter) Limit() rate.Limit {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentRate
}

// Downloader fetches media with retry and rate limiting.
type Downloader struct {
	client  *http.Client
	opts    Options
	base    *url.URL
	limiter *AdaptiveLimiter
}

// NewDownloader creates a Downloader.
func NewDownloader(opts Options) (*Downloader, error) {
	if opts.Timeout == 0 {
		opts.Timeout = 5 * time.Minute
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "shotsense-cli"
	}
	if opts.RatePerSec <= 0 {
		opts.RatePerSec = 4
	}
	if opts.BackoffBase == 0 {
		opts.BackoffBase = time.Second
	}

	d := &Downloader{
		client: &http.Client{
			Timeout: opts.Timeout,
			Jar:     opts.Jar,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		opts:    opts,
		limiter: NewAdaptiveLimiter(rate.Limit(opts.RatePerSec), max(int(opts.RatePerSec), 1)),
	}
	if opts.BaseURL != "" {
		u, err := url.Parse(opts.BaseURL)
		if err != nil {
			return nil, eris.Wrapf(err, "media: parse base url %q", opts.BaseURL)
		}
		d.base = u
	}
	return d, nil
}

// Resolve turns a locator into an absolute URL.
func (d *Downloader) Resolve(locator string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(locator))
	if err != nil {
		return "", eris.Wrapf(err, "media: parse locator %q", locator)
	}
	if u.IsAbs() {
		return u.String(), nil
	}
	if d.base == nil {
		return "", eris.Errorf("media: relative locator %q without base url", locator)
	}
	return d.base.ResolveReference(u).String(), nil
}

// fetch sends req under the retry policy. 429 and 5xx answers and transport
// failures are retried; 401 means the media sits behind an expired session.
// Any other status is returned for the caller to judge.
func (d *Downloader) fetch(ctx context.Context, req *http.Request) (*http.Response, error) {
	target := req.URL.String()
	policy := resilience.Policy{
		MaxAttempts:    d.opts.MaxRetries,
		InitialBackoff: d.opts.BackoffBase,
		MaxBackoff:     30 * time.Second,
		Multiplier:     2,
		JitterFraction: 0.25,
		ShouldRetry: func(err error) bool {
			var te *resilience.TransientError
			return errors.As(err, &te)
		},
		OnRetry: func(attempt int, err error) {
			zap.L().Warn("media: retrying download",
				zap.String("url", target),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
		},
	}

	resp, err := resilience.Retry(ctx, policy, func(ctx context.Context) (*http.Response, error) {
		if err := d.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "media: rate limiter wait")
		}

		resp, err := d.client.Do(req.Clone(ctx))
		if err != nil {
			return nil, resilience.NewTransientError(err, 0)
		}

		switch {
		case resp.StatusCode == http.StatusUnauthorized:
			_ = resp.Body.Close()
			return nil, eris.Wrapf(auth.ErrSessionExpired, "media: http 401 from %s", target)
		case resp.StatusCode == http.StatusTooManyRequests:
			_ = resp.Body.Close()
			d.limiter.OnRateLimit()
			return nil, resilience.NewTransientError(eris.Errorf("media: http 429 from %s", target), resp.StatusCode)
		case resp.StatusCode >= 500:
			_ = resp.Body.Close()
			return nil, resilience.NewTransientError(eris.Errorf("media: http %d from %s", resp.StatusCode, target), resp.StatusCode)
		}

		d.limiter.OnSuccess()
		return resp, nil
	})
	if err != nil {
		var te *resilience.TransientError
		if errors.As(err, &te) {
			return nil, eris.Wrap(te.Err, "media: all retries exhausted")
		}
		return nil, err
	}
	return resp, nil
}

// Download fetches locator and returns the response body.
func (d *Downloader) Download(ctx context.Context, locator string) (io.ReadCloser, error) {
	rawURL, err := d.Resolve(locator)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "media: create request")
	}
	req.Header.Set("User-Agent", d.opts.UserAgent)

	resp, err := d.fetch(ctx, req)
	if err != nil {
		return nil, eris.Wrap(err, "media: download")
	}

	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, eris.Errorf("media: unexpected status %d from %s", resp.StatusCode, rawURL)
	}
	return resp.Body, nil
}

// DownloadToFile fetches locator into dst. The file appears only once it is
// complete.
func (d *Downloader) DownloadToFile(ctx context.Context, locator, dst string) (int64, error) {
	body, err := d.Download(ctx, locator)
	if err != nil {
		return 0, err
	}
	defer body.Close() //nolint:errcheck

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return 0, eris.Wrap(err, "media: create directory")
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".download-*")
	if err != nil {
		return 0, eris.Wrap(err, "media: create temp file")
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	n, err := io.Copy(tmp, body)
	if err != nil {
		_ = tmp.Close()
		return n, eris.Wrap(err, "media: write file")
	}
	if err := tmp.Close(); err != nil {
		return n, eris.Wrap(err, "media: close file")
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return n, eris.Wrap(err, "media: move file into place")
	}
	return n, nil
}

// AssetKind names one of the media a record can point to.
type AssetKind string

const (
	AssetOriginalVideo AssetKind = "original"
	AssetAnalysisVideo AssetKind = "analysis"
	AssetSetupFrame    AssetKind = "setup"
	AssetReleaseFrame  AssetKind = "release"
	AssetFollowFrame   AssetKind = "follow"
)

// Asset is a downloadable locator of a record.
type Asset struct {
	Kind    AssetKind
	Locator string
}

// Assets lists the non-empty locators of rec in a fixed order.
func Assets(rec *model.AnalysisRecord) []Asset {
	if rec == nil {
		return nil
	}
	var out []Asset
	for _, a := range []struct {
		kind AssetKind
		loc  *string
	}{
		{AssetOriginalVideo, rec.OriginalVideoURL},
		{AssetAnalysisVideo, rec.AnalysisVideoURL},
		{AssetSetupFrame, rec.SetupFrameURL},
		{AssetReleaseFrame, rec.ReleaseFrameURL},
		{AssetFollowFrame, rec.FollowFrameURL},
	} {
		if a.loc != nil && strings.TrimSpace(*a.loc) != "" {
			out = append(out, Asset{Kind: a.kind, Locator: *a.loc})
		}
	}
	return out
}

// Saved is one downloaded asset.
type Saved struct {
	Asset Asset
	Path  string
	Bytes int64
}

// SaveAll downloads every asset of rec into dir, two at a time. Files are
// named <id>-<kind><ext>.
func (d *Downloader) SaveAll(ctx context.Context, rec *model.AnalysisRecord, dir string, kinds ...AssetKind) ([]Saved, error) {
	assets := filterKinds(Assets(rec), kinds)
	saved := make([]Saved, len(assets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(2)
	for i, a := range assets {
		g.Go(func() error {
			dst := filepath.Join(dir, FileName(rec.ID, a))
			n, err := d.DownloadToFile(gctx, a.Locator, dst)
			if err != nil {
				return eris.Wrapf(err, "media: save %s", a.Kind)
			}
			saved[i] = Saved{Asset: a, Path: dst, Bytes: n}
			zap.L().Info("media: saved asset",
				zap.String("analysis_id", rec.ID),
				zap.String("kind", string(a.Kind)),
				zap.String("path", dst),
				zap.Int64("bytes", n),
			)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return saved, nil
}

// FileName is the local file name for asset a of record id.
func FileName(id string, a Asset) string {
	ext := ""
	if u, err := url.Parse(a.Locator); err == nil {
		ext = strings.ToLower(path.Ext(u.Path))
	}
	if ext == "" {
		switch a.Kind {
		case AssetOriginalVideo, AssetAnalysisVideo:
			ext = ".mp4"
		default:
			ext = ".jpg"
		}
	}
	safe := strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == os.PathSeparator {
			return '_'
		}
		return r
	}, id)
	if safe == "" {
		safe = "analysis"
	}
	return safe + "-" + string(a.Kind) + ext
}

func filterKinds(assets []Asset, kinds []AssetKind) []Asset {
	if len(kinds) == 0 {
		return assets
	}
	want := make(map[AssetKind]bool, len(kinds))
	for _, k := range kinds {
		want[k] = true
	}
	out := assets[:0:0]
	for _, a := range assets {
		if want[a.Kind] {
			out = append(out, a)
		}
	}
	return out
}
