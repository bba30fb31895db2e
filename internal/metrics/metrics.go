package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "conclave"

const (
	// OutcomeSuccess labels a completed provider call or agent run.
	OutcomeSuccess = "success"
	// OutcomeRetry labels a failed provider attempt that will be retried.
	OutcomeRetry = "retry"
	// OutcomeError labels a call or run that failed for good.
	OutcomeError = "error"
)

var (
	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Total number of review runs, partitioned by verdict.",
		},
		[]string{"verdict"},
	)

	runDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_seconds",
			Help:      "Review run latency in seconds.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		},
	)

	agentRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_runs_total",
			Help:      "Agent runs, partitioned by agent and outcome.",
		},
		[]string{"agent", "outcome"},
	)

	agentDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "agent_seconds",
			Help:      "Per-agent latency in seconds.",
			Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 120, 300},
		},
		[]string{"agent"},
	)

	findingsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "findings_total",
			Help:      "Findings reported, partitioned by agent and severity.",
		},
		[]string{"agent", "severity"},
	)

	providerAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_attempts_total",
			Help:      "AI provider call attempts, partitioned by provider and outcome.",
		},
		[]string{"provider", "outcome"},
	)

	providerTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_tokens_total",
			Help:      "Tokens consumed, partitioned by provider and kind.",
		},
		[]string{"provider", "kind"},
	)

	validationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validation_decisions_total",
			Help:      "Validator decisions applied to findings.",
		},
		[]string{"decision"},
	)

	cacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Provider response cache lookups, partitioned by result.",
		},
		[]string{"result"},
	)
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{
		runsTotal,
		runDurationSeconds,
		agentRunsTotal,
		agentDurationSeconds,
		findingsTotal,
		providerAttemptsTotal,
		providerTokensTotal,
		validationsTotal,
		cacheLookupsTotal,
	}
}

// Register attaches conclave collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	for _, collector := range collectors() {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveRun records a finished review run.
func ObserveRun(verdict string, duration time.Duration) {
	runsTotal.WithLabelValues(verdict).Inc()
	runDurationSeconds.Observe(clamp(duration).Seconds())
}

// ObserveAgent records one agent's run.
func ObserveAgent(agent, outcome string, duration time.Duration) {
	if outcome != OutcomeError {
		outcome = OutcomeSuccess
	}
	agentRunsTotal.WithLabelValues(agent, outcome).Inc()
	agentDurationSeconds.WithLabelValues(agent).Observe(clamp(duration).Seconds())
}

// ObserveFindings adds n findings of one severity for an agent.
func ObserveFindings(agent, severity string, n int) {
	if n > 0 {
		findingsTotal.WithLabelValues(agent, severity).Add(float64(n))
	}
}

// ObserveProviderAttempt counts one provider call attempt.
func ObserveProviderAttempt(provider, outcome string) {
	providerAttemptsTotal.WithLabelValues(provider, outcome).Inc()
}

// ObserveTokens adds token usage for a provider.
func ObserveTokens(provider string, input, output, cacheRead, cacheWrite int) {
	for kind, n := range map[string]int{"input": input, "output": output, "cache_read": cacheRead, "cache_write": cacheWrite} {
		if n > 0 {
			providerTokensTotal.WithLabelValues(provider, kind).Add(float64(n))
		}
	}
}

// ObserveValidation adds n validator decisions of one kind.
func ObserveValidation(decision string, n int) {
	if n > 0 {
		validationsTotal.WithLabelValues(decision).Add(float64(n))
	}
}

// ObserveCacheLookup counts a response cache hit or miss.
func ObserveCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookupsTotal.WithLabelValues(result).Inc()
}

// WriteTextfile writes every conclave metric to path in the Prometheus text
// format, for node_exporter's textfile collector.
func WriteTextfile(path string) error {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, reg); err != nil {
		return fmt.Errorf("writing metrics: %w", err)
	}
	return nil
}

func clamp(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
