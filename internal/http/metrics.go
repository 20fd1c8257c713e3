package http

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"songgrab/internal/core"
)

// Metrics holds the Prometheus collectors of the service. It implements the
// recorder interfaces of the downloader, the reconciler, search and the resolver.
type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RateLimitedTotal prometheus.Counter
	DownloadsTotal   *prometheus.CounterVec
	DownloadBytes    prometheus.Counter
	DownloadDuration prometheus.Histogram
	AssetsTotal      *prometheus.CounterVec
	SearchesTotal    *prometheus.CounterVec
	SearchDuration   *prometheus.HistogramVec
	ResolvesTotal    *prometheus.CounterVec
	ResolvedSongs    *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "songgrab_http_requests_total",
				Help: "Total number of API requests",
			},
			[]string{"route", "code"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "songgrab_http_request_duration_seconds",
				Help:    "Time spent serving API requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		RateLimitedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "songgrab_rate_limited_total",
				Help: "Total number of API requests rejected by the flood limit",
			},
		),
		DownloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "songgrab_downloads_total",
				Help: "Total number of file downloads",
			},
			[]string{"outcome"},
		),
		DownloadBytes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "songgrab_download_bytes_total",
				Help: "Total number of bytes written by downloads",
			},
		),
		DownloadDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "songgrab_download_duration_seconds",
				Help:    "Time spent downloading files",
				Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
		),
		AssetsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "songgrab_assets_total",
				Help: "Total number of asset transfers",
			},
			[]string{"kind", "outcome"},
		),
		SearchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "songgrab_searches_total",
				Help: "Total number of catalog searches",
			},
			[]string{"platform", "outcome"},
		),
		SearchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "songgrab_search_duration_seconds",
				Help:    "Time spent on catalog searches",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"platform"},
		),
		ResolvesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "songgrab_resolves_total",
				Help: "Total number of resolver parse calls",
			},
			[]string{"platform", "outcome"},
		),
		ResolvedSongs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "songgrab_resolved_songs_total",
				Help: "Total number of songs returned by the resolver",
			},
			[]string{"platform"},
		),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.RateLimitedTotal,
		m.DownloadsTotal,
		m.DownloadBytes,
		m.DownloadDuration,
		m.AssetsTotal,
		m.SearchesTotal,
		m.SearchDuration,
		m.ResolvesTotal,
		m.ResolvedSongs,
	)
	return m
}

func (m *Metrics) ObserveDownload(outcome string, bytes int64, elapsed time.Duration) {
	m.DownloadsTotal.WithLabelValues(outcome).Inc()
	if bytes > 0 {
		m.DownloadBytes.Add(float64(bytes))
	}
	m.DownloadDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveAsset(kind core.AssetKind, outcome string) {
	m.AssetsTotal.WithLabelValues(kind.String(), outcome).Inc()
}

func (m *Metrics) ObserveSearch(platform core.Platform, outcome string, elapsed time.Duration) {
	m.SearchesTotal.WithLabelValues(string(platform), outcome).Inc()
	m.SearchDuration.WithLabelValues(string(platform)).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveResolve(platform core.Platform, outcome string, songs int) {
	m.ResolvesTotal.WithLabelValues(string(platform), outcome).Inc()
	if songs > 0 {
		m.ResolvedSongs.WithLabelValues(string(platform)).Add(float64(songs))
	}
}
