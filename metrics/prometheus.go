package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric name.
const Namespace = "chunkd"

// Prometheus is an Observer backed by Prometheus counters.
type Prometheus struct {
	enqueued       prometheus.Counter
	uploaded       prometheus.Counter
	uploadedBytes  prometheus.Counter
	uploadFailures *prometheus.CounterVec
	downloads      *prometheus.CounterVec
	downloadBytes  *prometheus.CounterVec
	downloadFails  prometheus.Counter
	mismatches     *prometheus.CounterVec
	providerMsgs   *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

var _ Observer = (*Prometheus)(nil)

// NewPrometheus registers the chunkd collectors on a fresh registry.
func NewPrometheus() (*Prometheus, error) {
	reg := prometheus.NewRegistry()
	p := &Prometheus{
		enqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace, Subsystem: "upload", Name: "enqueued_total",
			Help: "Chunks enqueued for upload.",
		}),
		uploaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace, Subsystem: "upload", Name: "completed_total",
			Help: "Chunks uploaded and validated.",
		}),
		uploadedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace, Subsystem: "upload", Name: "bytes_total",
			Help: "Bytes of chunk data uploaded.",
		}),
		uploadFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace, Subsystem: "upload", Name: "failures_total",
			Help: "Failed upload attempts by stage.",
		}, []string{"stage"}),
		downloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace, Subsystem: "download", Name: "completed_total",
			Help: "Chunks fetched by source.",
		}, []string{"source"}),
		downloadBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace, Subsystem: "download", Name: "bytes_total",
			Help: "Bytes fetched by source.",
		}, []string{"source"}),
		downloadFails: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace, Subsystem: "download", Name: "failures_total",
			Help: "Chunks no source could provide.",
		}),
		mismatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace, Subsystem: "download", Name: "digest_mismatch_total",
			Help: "Payloads rejected for failing digest verification.",
		}, []string{"source"}),
		providerMsgs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace, Subsystem: "provider", Name: "messages_total",
			Help: "Provider protocol messages handled by type and result code.",
		}, []string{"type", "code"}),
		gatherer: reg,
	}

	for _, c := range []prometheus.Collector{
		p.enqueued, p.uploaded, p.uploadedBytes, p.uploadFailures,
		p.downloads, p.downloadBytes, p.downloadFails, p.mismatches, p.providerMsgs,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Handler serves the registry in the Prometheus exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.gatherer, promhttp.HandlerOpts{})
}

func (p *Prometheus) ChunkEnqueued(string) { p.enqueued.Inc() }

func (p *Prometheus) ChunkUploaded(_ string, size int) {
	p.uploaded.Inc()
	p.uploadedBytes.Add(float64(size))
}

func (p *Prometheus) ChunkUploadFailed(_ string, validation bool) {
	stage := "send"
	if validation {
		stage = "validate"
	}
	p.uploadFailures.WithLabelValues(stage).Inc()
}

func (p *Prometheus) ChunkDownloaded(_ string, source string, size int) {
	p.downloads.WithLabelValues(source).Inc()
	p.downloadBytes.WithLabelValues(source).Add(float64(size))
}

func (p *Prometheus) ChunkDownloadFailed(string) { p.downloadFails.Inc() }

func (p *Prometheus) SourceMismatch(_ string, source string) {
	p.mismatches.WithLabelValues(source).Inc()
}

func (p *Prometheus) ProviderMessage(msgType, code string) {
	if code == "" {
		code = "OK"
	}
	p.providerMsgs.WithLabelValues(msgType, code).Inc()
}
