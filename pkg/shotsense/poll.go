package shotsense

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const (
	defaultPollInitial = 2 * time.Second
	defaultPollCap     = 15 * time.Second
	defaultPollTimeout = 5 * time.Minute
)

// PollOption configures polling behavior.
type PollOption func(*pollConfig)

type pollConfig struct {
	initial time.Duration
	cap     time.Duration
	timeout time.Duration
}

func defaultPollConfig() pollConfig {
	return pollConfig{
		initial: defaultPollInitial,
		cap:     defaultPollCap,
		timeout: defaultPollTimeout,
	}
}

// WithPollInterval overrides the initial poll interval.
func WithPollInterval(d time.Duration) PollOption {
	return func(c *pollConfig) {
		if d > 0 {
			c.initial = d
		}
	}
}

// WithPollCap overrides the maximum poll interval.
func WithPollCap(d time.Duration) PollOption {
	return func(c *pollConfig) {
		if d > 0 {
			c.cap = d
		}
	}
}

// WithPollTimeout overrides the default timeout (applied only if the parent
// context has no deadline).
func WithPollTimeout(d time.Duration) PollOption {
	return func(c *pollConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// pendingStatuses are reported by service revisions that analyse
// asynchronously.
var pendingStatuses = map[string]bool{
	"pending":    true,
	"queued":     true,
	"processing": true,
	"running":    true,
}

// PollAnalysis polls GetAnalysis until the record for id exists, or the
// context expires. A 404 or a pending status keeps polling; any other error
// is returned as is. Uses exponential backoff: 2s -> 4s -> 8s -> 15s (capped).
func PollAnalysis(ctx context.Context, client Client, id string, opts ...PollOption) (Payload, error) {
	cfg := defaultPollConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.timeout)
		defer cancel()
	}

	interval := cfg.initial
	for attempt := 1; ; attempt++ {
		payload, err := client.GetAnalysis(ctx, id)
		switch {
		case err == nil && !pending(payload):
			return payload, nil
		case err != nil && !IsNotFound(err):
			return nil, eris.Wrapf(err, "shotsense: poll analysis %s", id)
		}

		zap.L().Debug("analysis not ready",
			zap.String("analysis_id", id),
			zap.Int("attempt", attempt),
			zap.Duration("next", interval),
		)

		select {
		case <-ctx.Done():
			return nil, eris.Wrapf(ctx.Err(), "shotsense: poll analysis %s timed out", id)
		case <-time.After(interval):
		}

		interval *= 2
		if interval > cfg.cap {
			interval = cfg.cap
		}
	}
}

func pending(p Payload) bool {
	raw, ok := p["status"]
	if !ok {
		return false
	}
	var status string
	if json.Unmarshal(raw, &status) != nil {
		return false
	}
	return pendingStatuses[strings.ToLower(status)]
}
