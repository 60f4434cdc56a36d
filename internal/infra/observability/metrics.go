package observability

import (
	"time"

	"github.com/boddenberg/support-assistant-bfa-go/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the BFA.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration *prometheus.HistogramVec
	externalErrors  *prometheus.CounterVec
	cacheHits       *prometheus.CounterVec
	cacheMisses     *prometheus.CounterVec
	tokensUsed      *prometheus.CounterVec
	requestsTotal   *prometheus.CounterVec
	classifications *prometheus.CounterVec
	handlerOutcomes *prometheus.CounterVec
	rateLimited     *prometheus.CounterVec
	callPollExits   *prometheus.CounterVec
}

const (
	metricClassifications = "bfa_chat_classifications_total"
	metricCallPollExits   = "bfa_call_poll_exits_total"
)

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bfa_request_duration_seconds",
				Help:    "Duration of requests by operation.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bfa_external_errors_total",
				Help: "Total errors from external services.",
			},
			[]string{"service"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bfa_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bfa_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		tokensUsed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bfa_llm_tokens_total",
				Help: "Total LLM tokens consumed.",
			},
			[]string{"type"},
		),
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bfa_chat_requests_total",
				Help: "Total chat requests processed, by status.",
			},
			[]string{"status"},
		),
		classifications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricClassifications,
				Help: "Classified messages by intent.",
			},
			[]string{"intent"},
		),
		handlerOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bfa_chat_handler_outcomes_total",
				Help: "Intent handler results by intent and outcome.",
			},
			[]string{"intent", "outcome"},
		),
		rateLimited: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bfa_rate_limited_total",
				Help: "Requests rejected by the rate limiter.",
			},
			[]string{"route"},
		),
		callPollExits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricCallPollExits,
				Help: "Outbound-call status polling exits by reason.",
			},
			[]string{"reason"},
		),
	}
}

// RecordRequestDuration records the duration of an operation.
func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	if m == nil {
		return
	}
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrExternalError increments the external error counter.
func (m *Metrics) IncrExternalError(service string) {
	if m == nil {
		return
	}
	m.externalErrors.WithLabelValues(service).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	if m == nil {
		return
	}
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	if m == nil {
		return
	}
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// RecordTokens records prompt and completion token usage.
func (m *Metrics) RecordTokens(prompt, completion int) {
	if m == nil {
		return
	}
	m.tokensUsed.WithLabelValues("prompt").Add(float64(prompt))
	m.tokensUsed.WithLabelValues("completion").Add(float64(completion))
}

// IncrRequest increments the chat request counter with a status label
// (success, error, timeout, admin_takeover).
func (m *Metrics) IncrRequest(status string) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(status).Inc()
}

// IncrClassification counts one classified message.
func (m *Metrics) IncrClassification(intent string) {
	if m == nil {
		return
	}
	m.classifications.WithLabelValues(intent).Inc()
}

// IncrHandlerOutcome counts how an intent handler finished
// (e.g. replied, missing_info, invalid_order, adapter_error, applied).
func (m *Metrics) IncrHandlerOutcome(intent, outcome string) {
	if m == nil {
		return
	}
	m.handlerOutcomes.WithLabelValues(intent, outcome).Inc()
}

// IncrRateLimited counts a rejected request.
func (m *Metrics) IncrRateLimited(route string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(route).Inc()
}

// IncrCallPollExit counts how a call-status poll loop ended
// (terminal, soft_cap, hard_cap, canceled).
func (m *Metrics) IncrCallPollExit(reason string) {
	if m == nil {
		return
	}
	m.callPollExits.WithLabelValues(reason).Inc()
}

// GetChatSnapshot returns a snapshot of chat metrics suitable for the
// GET /v1/metrics/chat endpoint.
func (m *Metrics) GetChatSnapshot() *domain.ChatMetrics {
	// Prometheus counters expose cumulative values.
	promptTokens := getCounterValue(m.tokensUsed, "prompt")
	completionTokens := getCounterValue(m.tokensUsed, "completion")
	success := getCounterValue(m.requestsTotal, "success")
	errorCount := getCounterValue(m.requestsTotal, "error")
	timeouts := getCounterValue(m.requestsTotal, "timeout")
	takeovers := getCounterValue(m.requestsTotal, "admin_takeover")
	totalRequests := success + errorCount + timeouts + takeovers
	cacheHits := getCounterValue(m.cacheHits, "catalog")
	cacheMisses := getCounterValue(m.cacheMisses, "catalog")

	avgTokens := float64(0)
	errorRate := float64(0)
	timeoutRate := float64(0)
	cacheHitRate := float64(0)

	if totalRequests > 0 {
		avgTokens = (promptTokens + completionTokens) / totalRequests
		errorRate = errorCount / totalRequests
		timeoutRate = timeouts / totalRequests
	}
	if cacheHits+cacheMisses > 0 {
		cacheHitRate = cacheHits / (cacheHits + cacheMisses)
	}

	// gpt-4o-mini list price: $0.15/1M prompt tokens, $0.60/1M completion tokens
	estimatedCost := (promptTokens/1e6)*0.15 + (completionTokens/1e6)*0.60

	return &domain.ChatMetrics{
		TotalRequests:       int64(totalRequests),
		ErrorRate:           errorRate,
		TimeoutRate:         timeoutRate,
		RateLimited:         int64(m.sumFamily("bfa_rate_limited_total")),
		AvgTokensPerRequest: avgTokens,
		EstimatedCostUsd:    estimatedCost,
		CacheHitRate:        cacheHitRate,
		Intents:             m.countsByLabel(metricClassifications, "intent"),
		CallPollExits:       m.countsByLabel(metricCallPollExits, "reason"),
		Period:              "all_time",
	}
}

// getCounterValue extracts the current float64 value from a CounterVec for a given label.
func getCounterValue(cv *prometheus.CounterVec, label string) float64 {
	counter := cv.WithLabelValues(label)
	m := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}

// countsByLabel gathers one counter family and groups its values by label.
func (m *Metrics) countsByLabel(family, label string) map[string]int64 {
	out := make(map[string]int64)
	for _, metric := range m.family(family) {
		for _, lp := range metric.GetLabel() {
			if lp.GetName() == label {
				out[lp.GetValue()] += int64(metric.GetCounter().GetValue())
			}
		}
	}
	return out
}

func (m *Metrics) sumFamily(family string) float64 {
	var total float64
	for _, metric := range m.family(family) {
		total += metric.GetCounter().GetValue()
	}
	return total
}

func (m *Metrics) family(name string) []*dto.Metric {
	families, err := m.Registry.Gather()
	if err != nil {
		return nil
	}
	for _, f := range families {
		if f.GetName() == name {
			return f.GetMetric()
		}
	}
	return nil
}
