package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

// scripted returns the queued errors in order, then succeeds.
type scripted struct {
	errs  []error
	calls int
}

func (s *scripted) Name() string { return "scripted" }

func (s *scripted) Complete(ctx context.Context, req Request) (Response, error) {
	s.calls++
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return Response{}, err
	}
	return Response{Content: "ok", Usage: &Usage{Input: 1, Output: 1}}, nil
}

func repeat(err error, n int) []error {
	out := make([]error, n)
	for i := range out {
		out[i] = err
	}
	return out
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "dial tcp: i/o deadline" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func newTestClient(p Provider, attempts int) (*Client, *[]time.Duration) {
	var slept []time.Duration
	c := NewClient(p, attempts, 5*time.Second, nil)
	c.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return ctx.Err()
	}
	return c, &slept
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want errorClass
	}{
		{"rate limit", &StatusError{Code: 429, Body: "slow down"}, classRateLimit},
		{"server error", &StatusError{Code: 503, Body: "unavailable"}, classTransient},
		{"timeout text", errors.New("request timed out"), classTransient},
		{"net timeout", fmt.Errorf("sending request: %w", timeoutErr{}), classTransient},
		{"auth", &StatusError{Code: 401, Body: "bad key"}, classFatal},
		{"fatal marker wins", &StatusError{Code: 400, Body: "upstream said 503"}, classFatal},
		{"fatal beats rate limit", errors.New("404 | 429"), classFatal},
		{"no marker", errors.New("parsing response: unexpected EOF"), classFatal},
		{"cancelled", context.Canceled, classFatal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classify(tt.err); got != tt.want {
				t.Errorf("classify(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestCompleteWithRetry(t *testing.T) {
	tests := []struct {
		name      string
		errs      []error
		attempts  int
		wantCalls int
		wantSleep []time.Duration
		wantErr   bool
	}{
		{
			name:      "success first try",
			attempts:  3,
			wantCalls: 1,
		},
		{
			name:      "transient then success",
			errs:      repeat(&StatusError{Code: 500}, 2),
			attempts:  3,
			wantCalls: 3,
			wantSleep: []time.Duration{5 * time.Second, 10 * time.Second},
		},
		{
			name:      "transient exhausted",
			errs:      repeat(&StatusError{Code: 502}, 5),
			attempts:  3,
			wantCalls: 3,
			wantSleep: []time.Duration{5 * time.Second, 10 * time.Second},
			wantErr:   true,
		},
		{
			name:      "rate limit gets at least five tries",
			errs:      repeat(&StatusError{Code: 429}, 10),
			attempts:  3,
			wantCalls: 5,
			wantSleep: []time.Duration{30 * time.Second, 60 * time.Second, 90 * time.Second, 90 * time.Second},
			wantErr:   true,
		},
		{
			name:      "fatal is not retried",
			errs:      repeat(&StatusError{Code: 403}, 3),
			attempts:  3,
			wantCalls: 1,
			wantErr:   true,
		},
		{
			name:      "single attempt",
			errs:      repeat(&StatusError{Code: 500}, 1),
			attempts:  1,
			wantCalls: 1,
			wantErr:   true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &scripted{errs: tt.errs}
			c, slept := newTestClient(p, tt.attempts)
			resp, err := c.CompleteWithRetry(context.Background(), Request{UserPrompt: "u"})
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && resp.Content != "ok" {
				t.Errorf("Content = %q", resp.Content)
			}
			if p.calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", p.calls, tt.wantCalls)
			}
			if fmt.Sprint(*slept) != fmt.Sprint(tt.wantSleep) && !(len(*slept) == 0 && len(tt.wantSleep) == 0) {
				t.Errorf("sleeps = %v, want %v", *slept, tt.wantSleep)
			}
		})
	}
}

func TestCompleteWithRetry_SanitizesError(t *testing.T) {
	p := &scripted{errs: []error{&StatusError{Code: 401, Body: "invalid key sk-ant-api03-secretsecret"}}}
	c, _ := newTestClient(p, 3)
	_, err := c.CompleteWithRetry(context.Background(), Request{})
	if err == nil {
		t.Fatal("expected error")
	}
	if strings.Contains(err.Error(), "secretsecret") {
		t.Errorf("key leaked: %v", err)
	}
	var se *StatusError
	if !errors.As(err, &se) || se.Code != 401 {
		t.Errorf("sanitized error should still unwrap to StatusError, got %v", err)
	}
}

func TestCompleteWithRetry_CancelledDuringSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := &scripted{errs: repeat(&StatusError{Code: 503}, 5)}
	c := NewClient(p, 5, time.Hour, nil)
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := c.CompleteWithRetry(ctx, Request{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("cancellation did not interrupt the back-off sleep")
	}
	if p.calls != 1 {
		t.Errorf("calls = %d, want 1", p.calls)
	}
}

func TestClient_DelegatesName(t *testing.T) {
	c := NewClient(&scripted{}, 0, 0, nil)
	if c.Name() != "scripted" {
		t.Errorf("Name = %q", c.Name())
	}
	if c.attempts != 1 {
		t.Errorf("attempts = %d, want floor of 1", c.attempts)
	}
}
