package observability

import (
	"fmt"

	"github.com/Zhima-Mochi/minishop-fulfillment/internal/infrastructure/observability/prometrics"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability"
)

type provider struct {
	tracer  observability.Tracer
	logger  observability.Logger
	metrics observability.Metrics
}

type metricSpec struct {
	help      string
	histogram bool
	buckets   []float64
}

var latencyBuckets = []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5}

var metricSpecs = map[observability.MetricKey]metricSpec{
	observability.MUsecaseRequests:         {help: "Use case executions by outcome."},
	observability.MUsecaseDuration:         {help: "Use case latency.", histogram: true, buckets: latencyBuckets},
	observability.MHTTPRequests:            {help: "HTTP requests by route and status."},
	observability.MHTTPRequestDuration:     {help: "HTTP request latency.", histogram: true, buckets: latencyBuckets},
	observability.MExternalRequests:        {help: "Calls to external peers by outcome."},
	observability.MExternalRequestDuration: {help: "Latency of calls to external peers.", histogram: true, buckets: latencyBuckets},
	observability.MLockWait:                {help: "Time spent waiting for store row locks.", histogram: true, buckets: latencyBuckets},
}

type registeredMetrics struct {
	counters   map[observability.MetricKey]observability.Counter
	histograms map[observability.MetricKey]observability.Histogram
}

func (m *registeredMetrics) Counter(name observability.MetricKey) observability.Counter {
	if c, ok := m.counters[name]; ok {
		return c
	}
	return observability.NopCounter()
}

func (m *registeredMetrics) Histogram(name observability.MetricKey) observability.Histogram {
	if h, ok := m.histograms[name]; ok {
		return h
	}
	return observability.NopHistogram()
}

// RegisterMetrics creates every known metric in reg with the label keys
// listed in observability.MetricLabels.
func RegisterMetrics(reg prometrics.Registry) (observability.Metrics, error) {
	m := &registeredMetrics{
		counters:   make(map[observability.MetricKey]observability.Counter),
		histograms: make(map[observability.MetricKey]observability.Histogram),
	}
	for key, spec := range metricSpecs {
		labels := observability.MetricLabels[key]
		if spec.histogram {
			h, err := reg.Histogram(string(key), spec.help, spec.buckets, labels...)
			if err != nil {
				return nil, fmt.Errorf("register %s: %w", key, err)
			}
			m.histograms[key] = h
			continue
		}
		c, err := reg.Counter(string(key), spec.help, labels...)
		if err != nil {
			return nil, fmt.Errorf("register %s: %w", key, err)
		}
		m.counters[key] = c
	}
	return m, nil
}

// New assembles an Observability from concrete adapters. Nil parts fall back
// to no-ops.
func New(tracer observability.Tracer, logger observability.Logger, metrics observability.Metrics) observability.Observability {
	if tracer == nil {
		tracer = observability.NopTracer()
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	if metrics == nil {
		metrics = observability.NopMetrics()
	}
	return &provider{tracer: tracer, logger: logger, metrics: metrics}
}

func (p *provider) Tracer() observability.Tracer   { return p.tracer }
func (p *provider) Logger() observability.Logger   { return p.logger }
func (p *provider) Metrics() observability.Metrics { return p.metrics }
