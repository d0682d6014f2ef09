// Package metrics exposes Prometheus collectors for tasks, tool invocations,
// agent runs and the HTTP control surface.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "openagents"

var (
	registry = prometheus.NewRegistry()

	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests processed.",
	}, []string{"handler", "method", "code"})

	httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"handler", "method"})

	taskTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "task_transitions_total",
		Help:      "Task state transitions by target status.",
	}, []string{"status"})

	toolInvocations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tool_invocations_total",
		Help:      "Tool gateway invocations by tool and outcome.",
	}, []string{"tool", "outcome"})

	toolDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "tool_invocation_duration_seconds",
		Help:      "Tool gateway invocation latency in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"tool"})

	agentIterations = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "agent_iterations",
		Help:      "Number of LLM round trips per agent run.",
		Buckets:   []float64{1, 2, 3, 5, 8, 13, 20},
	})

	llmCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "llm_calls_total",
		Help:      "LLM chat calls by provider and outcome.",
	}, []string{"provider", "outcome"})
)

func init() {
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		httpRequests,
		httpDuration,
		taskTransitions,
		toolInvocations,
		toolDuration,
		agentIterations,
		llmCalls,
	)
}

// ObserveHTTPRequest records metrics about an HTTP request lifecycle.
func ObserveHTTPRequest(handler, method string, status int, duration time.Duration) {
	httpRequests.WithLabelValues(handler, method, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(handler, method).Observe(duration.Seconds())
}

// ObserveTaskTransition counts a task entering status.
func ObserveTaskTransition(status string) {
	taskTransitions.WithLabelValues(status).Inc()
}

// ObserveToolInvocation records one gateway invocation.
func ObserveToolInvocation(tool, outcome string, duration time.Duration) {
	toolInvocations.WithLabelValues(tool, outcome).Inc()
	toolDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

// ObserveAgentRun records how many iterations an agent run used.
func ObserveAgentRun(iterations int) {
	agentIterations.Observe(float64(iterations))
}

// ObserveLLMCall records the outcome of a single chat call.
func ObserveLLMCall(provider, outcome string) {
	llmCalls.WithLabelValues(provider, outcome).Inc()
}

// Registry returns the registry holding every collector of this package.
func Registry() *prometheus.Registry {
	return registry
}

// Handler exposes the metrics in Prometheus text exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// StartServer launches a standalone HTTP server exposing the /metrics endpoint.
func StartServer(ctx context.Context, addr string) error {
	if addr == "" {
		return errors.New("metrics address is empty")
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return err
	}
}
