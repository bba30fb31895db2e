package providers

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/conclave/internal/metrics"
	"github.com/dshills/conclave/internal/redact"
)

// rateLimitDelay is the base wait after a 429.
const rateLimitDelay = 30 * time.Second

// minRateLimitAttempts is the floor on tries for rate-limited calls.
const minRateLimitAttempts = 5

type errorClass int

const (
	classFatal errorClass = iota
	classRateLimit
	classTransient
)

var (
	fatalMarkers     = []string{"400", "401", "403", "404"}
	transientMarkers = []string{"500", "502", "503", "504", "timeout", "timed out"}
)

// classify inspects an error message for status markers. A fatal marker wins
// over any other marker in the same message.
func classify(err error) errorClass {
	if errors.Is(err, context.Canceled) {
		return classFatal
	}
	msg := err.Error()
	if containsAny(msg, fatalMarkers) {
		return classFatal
	}
	if strings.Contains(msg, "429") {
		return classRateLimit
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return classTransient
	}
	if containsAny(msg, transientMarkers) {
		return classTransient
	}
	return classFatal
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

// Client wraps a Provider with retry, logging and metrics.
type Client struct {
	provider Provider
	attempts int
	delay    time.Duration
	log      *zap.SugaredLogger
	sleep    func(context.Context, time.Duration) error
}

// NewClient returns a Client that tries each call up to attempts times for
// transient failures, waiting delay × min(attempt, 3) between tries.
func NewClient(p Provider, attempts int, delay time.Duration, log *zap.SugaredLogger) *Client {
	if attempts < 1 {
		attempts = 1
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Client{provider: p, attempts: attempts, delay: delay, log: log, sleep: sleepContext}
}

// Name returns the wrapped provider's name.
func (c *Client) Name() string { return c.provider.Name() }

// Complete implements Provider by delegating to CompleteWithRetry.
func (c *Client) Complete(ctx context.Context, req Request) (Response, error) {
	return c.CompleteWithRetry(ctx, req)
}

// CompleteWithRetry calls the provider until it succeeds, hits a fatal
// error, or runs out of attempts. Rate-limited calls get at least five tries
// with a 30s base wait. The returned error has credentials scrubbed.
func (c *Client) CompleteWithRetry(ctx context.Context, req Request) (Response, error) {
	name := c.provider.Name()
	rateLimitMax := max(c.attempts, minRateLimitAttempts)

	for attempt := 1; ; attempt++ {
		resp, err := c.provider.Complete(ctx, req)
		if err == nil {
			metrics.ObserveProviderAttempt(name, metrics.OutcomeSuccess)
			if resp.Usage != nil {
				metrics.ObserveTokens(name, resp.Usage.Input, resp.Usage.Output, resp.Usage.CacheRead, resp.Usage.CacheWrite)
			}
			return resp, nil
		}

		class := classify(err)
		limit, base := c.attempts, c.delay
		if class == classRateLimit {
			limit, base = rateLimitMax, rateLimitDelay
		}
		if class == classFatal || attempt >= limit || ctx.Err() != nil {
			metrics.ObserveProviderAttempt(name, metrics.OutcomeError)
			safe := redact.Error(err)
			c.log.Errorw("provider call failed", "provider", name, "attempt", attempt, "error", safe)
			return Response{}, safe
		}

		wait := base * time.Duration(min(attempt, 3))
		metrics.ObserveProviderAttempt(name, metrics.OutcomeRetry)
		c.log.Warnw("provider call failed, retrying",
			"provider", name,
			"attempt", attempt,
			"max_attempts", limit,
			"wait", wait,
			"error", redact.SanitizeError(err.Error()),
		)
		if err := c.sleep(ctx, wait); err != nil {
			return Response{}, err
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
