// Package metricsutil provides the abstract Metrics interface alya's
// metrics package defines, plus the concrete Prometheus implementation
// (adapted verbatim — this is ambient infra, not domain logic) and the
// fixed set of judge-service metric names every component registers
// against it.
package metricsutil

import (
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is a unified, simple API for common metric operations, carried
// over from alya's metrics.Metrics so the coordinator/worker/supervisor
// never import the prometheus client package directly.
type Metrics interface {
	Register(name, metricType, help string)
	Record(name string, value float64)
	RegisterWithLabels(name, metricType, help string, labels []string)
	RecordWithLabels(name string, value float64, labelValues ...string)
}

// Metric names every component in this service registers. Kept in one
// place so the supervisor's sweep line and httpapi's /metrics endpoint agree
// on spelling. Only the five worker-pool gauges are recorded (by the
// supervisor sweep); the queue-depth, batch-latency, judged-items and
// dropped-items metrics are registered but never recorded and stay at zero.
const (
	MetricWorkersTotal  = "judge_workers_total"
	MetricWorkersFree   = "judge_workers_free"
	MetricWorkersBusy   = "judge_workers_busy"
	MetricWorkersFailed = "judge_workers_failed"
	MetricWorkersHanged = "judge_workers_hanged"

	MetricQueueDepth       = "judge_work_queue_depth"
	MetricBatchLatencySecs = "judge_batch_latency_seconds"
	MetricItemsJudgedTotal = "judge_items_judged_total"
	MetricItemsDroppedTotal = "judge_items_dropped_total"
)

// RegisterJudgeMetrics wires the fixed metric set above into m. Called once at process
// startup by cmd/judgeapi and cmd/judgeworker.
func RegisterJudgeMetrics(m Metrics) {
	m.Register(MetricWorkersTotal, "Gauge", "Worker processes spawned by the supervisor")
	m.Register(MetricWorkersFree, "Gauge", "Worker processes currently idle")
	m.Register(MetricWorkersBusy, "Gauge", "Worker processes currently judging an item")
	m.Register(MetricWorkersFailed, "Gauge", "Worker processes that exited and were replaced in the last sweep")
	m.Register(MetricWorkersHanged, "Gauge", "Workers with a child process force-killed for exceeding its wall-age budget in the last sweep")

	m.Register(MetricQueueDepth, "Gauge", "Work queue length at last sample")
	m.Register(MetricBatchLatencySecs, "Histogram", "Wall-clock time to resolve a batch")
	m.RegisterWithLabels(MetricItemsJudgedTotal, "Counter", "Items judged, by result reason", []string{"reason"})
	m.Register(MetricItemsDroppedTotal, "Counter", "Items dropped unjudged (stale or unrecoverable parse failure)")
}

// PrometheusMetrics implements Metrics for Prometheus, adapted from alya's
// metrics.PrometheusMetrics.
type PrometheusMetrics struct {
	counters      map[string]prometheus.Counter
	counterVecs   map[string]*prometheus.CounterVec
	gauges        map[string]prometheus.Gauge
	gaugeVecs     map[string]*prometheus.GaugeVec
	histograms    map[string]prometheus.Histogram
	histogramVecs map[string]*prometheus.HistogramVec
	customBuckets map[string][]float64
}

var _ Metrics = (*PrometheusMetrics)(nil)

// NewPrometheusMetrics creates a new PrometheusMetrics instance.
func NewPrometheusMetrics() *PrometheusMetrics {
	return &PrometheusMetrics{
		counters:      make(map[string]prometheus.Counter),
		counterVecs:   make(map[string]*prometheus.CounterVec),
		gauges:        make(map[string]prometheus.Gauge),
		gaugeVecs:     make(map[string]*prometheus.GaugeVec),
		histograms:    make(map[string]prometheus.Histogram),
		histogramVecs: make(map[string]*prometheus.HistogramVec),
		customBuckets: make(map[string][]float64),
	}
}

// SetCustomBuckets allows setting custom buckets for a specific histogram.
func (p *PrometheusMetrics) SetCustomBuckets(name string, buckets []float64) {
	p.customBuckets[name] = buckets
}

func (p *PrometheusMetrics) Register(name, metricType, help string) {
	switch metricType {
	case "Counter":
		counter := prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: help})
		prometheus.MustRegister(counter)
		p.counters[name] = counter
	case "Gauge":
		gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: help})
		prometheus.MustRegister(gauge)
		p.gauges[name] = gauge
	case "Histogram":
		buckets, ok := p.customBuckets[name]
		if !ok {
			buckets = prometheus.DefBuckets
		}
		histogram := prometheus.NewHistogram(prometheus.HistogramOpts{Name: name, Help: help, Buckets: buckets})
		prometheus.MustRegister(histogram)
		p.histograms[name] = histogram
	default:
		log.Printf("metricsutil: unknown metric type %q for %q", metricType, name)
	}
}

func (p *PrometheusMetrics) Record(name string, value float64) {
	if counter, ok := p.counters[name]; ok {
		counter.Add(value)
		return
	}
	if gauge, ok := p.gauges[name]; ok {
		gauge.Set(value)
		return
	}
	if histogram, ok := p.histograms[name]; ok {
		histogram.Observe(value)
		return
	}
}

func (p *PrometheusMetrics) RegisterWithLabels(name, metricType, help string, labels []string) {
	switch metricType {
	case "Counter":
		counterVec := prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help}, labels)
		prometheus.MustRegister(counterVec)
		p.counterVecs[name] = counterVec
	case "Gauge":
		gaugeVec := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: help}, labels)
		prometheus.MustRegister(gaugeVec)
		p.gaugeVecs[name] = gaugeVec
	case "Histogram":
		buckets, ok := p.customBuckets[name]
		if !ok {
			buckets = prometheus.DefBuckets
		}
		histogramVec := prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: name, Help: help, Buckets: buckets}, labels)
		prometheus.MustRegister(histogramVec)
		p.histogramVecs[name] = histogramVec
	}
}

func (p *PrometheusMetrics) RecordWithLabels(name string, value float64, labelValues ...string) {
	if counterVec, ok := p.counterVecs[name]; ok {
		counterVec.WithLabelValues(labelValues...).Add(value)
		return
	}
	if gaugeVec, ok := p.gaugeVecs[name]; ok {
		gaugeVec.WithLabelValues(labelValues...).Set(value)
		return
	}
	if histogramVec, ok := p.histogramVecs[name]; ok {
		histogramVec.WithLabelValues(labelValues...).Observe(value)
		return
	}
}

// Handler returns the promhttp handler, mounted at /metrics by httpapi.
func Handler() http.Handler {
	return promhttp.Handler()
}
