package metrics

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "edgebundle"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	stageDuration *prom.HistogramVec
	buildDuration prom.Histogram
	stageResults  *prom.CounterVec
	buildOutcome  *prom.CounterVec
	functions     *prom.GaugeVec
	chunks        prom.Gauge
	bytesSaved    prom.Gauge
	bundleBytes   *prom.GaugeVec
}

// NewPrometheusRecorder constructs the metrics and registers them with reg.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		stageDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of individual build stages",
			Buckets:   prom.DefBuckets,
		}, []string{"stage"}),
		buildDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "build_duration_seconds",
			Help:      "Total build duration",
			Buckets:   prom.DefBuckets,
		}),
		stageResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "stage_results_total",
			Help:      "Stage result counts by outcome",
		}, []string{"stage", "result"}),
		buildOutcome: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "build_outcomes_total",
			Help:      "Build outcomes by final status",
		}, []string{"outcome"}),
		functions: prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "functions",
			Help:      "Functions in the last build by runtime kind",
		}, []string{"kind"}),
		chunks: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "chunks",
			Help:      "Shared chunks hoisted in the last build",
		}),
		bytesSaved: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "dedup_bytes_saved",
			Help:      "Bytes saved by chunk deduplication in the last build",
		}),
		bundleBytes: prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "bundle_bytes",
			Help:      "Size of the last bundle, raw and gzip-compressed",
		}, []string{"encoding"}),
	}
	reg.MustRegister(pr.stageDuration, pr.buildDuration, pr.stageResults, pr.buildOutcome,
		pr.functions, pr.chunks, pr.bytesSaved, pr.bundleBytes)
	return pr
}

func (p *PrometheusRecorder) ObserveStageDuration(stage string, d time.Duration) {
	if p == nil {
		return
	}
	p.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveBuildDuration(d time.Duration) {
	if p == nil {
		return
	}
	p.buildDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncStageResult(stage string, result ResultLabel) {
	if p == nil {
		return
	}
	p.stageResults.WithLabelValues(stage, string(result)).Inc()
}

func (p *PrometheusRecorder) IncBuildOutcome(outcome BuildOutcomeLabel) {
	if p == nil {
		return
	}
	p.buildOutcome.WithLabelValues(string(outcome)).Inc()
}

func (p *PrometheusRecorder) SetFunctions(kind string, n int) {
	if p == nil {
		return
	}
	p.functions.WithLabelValues(kind).Set(float64(n))
}

func (p *PrometheusRecorder) SetDedup(chunks int, bytesSaved int64) {
	if p == nil {
		return
	}
	p.chunks.Set(float64(chunks))
	p.bytesSaved.Set(float64(bytesSaved))
}

func (p *PrometheusRecorder) SetBundleBytes(raw, gzip int64) {
	if p == nil {
		return
	}
	p.bundleBytes.WithLabelValues("raw").Set(float64(raw))
	p.bundleBytes.WithLabelValues("gzip").Set(float64(gzip))
}

// WriteTextfile writes every metric in reg to path in the Prometheus text format.
func WriteTextfile(reg *prom.Registry, path string) error {
	return prom.WriteToTextfile(path, reg)
}
