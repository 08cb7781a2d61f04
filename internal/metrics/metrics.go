// Package metrics exposes Prometheus instrumentation for the bot.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the transcription bot.
type Metrics struct {
	RequestsTotal *prometheus.CounterVec
	MediaTotal    *prometheus.CounterVec

	DownloadDuration prometheus.Histogram
	SpeechDuration   prometheus.Histogram
	RequestDuration  prometheus.Histogram

	UpdatesTotal  prometheus.Counter
	CommandsTotal *prometheus.CounterVec
}

// New creates the bot metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voxgram_requests_total",
			Help: "Total number of media requests by terminal outcome",
		}, []string{"outcome"}),
		MediaTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voxgram_media_total",
			Help: "Total number of media items seen by media type",
		}, []string{"media_type"}),
		DownloadDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "voxgram_download_duration_seconds",
			Help:    "Time spent downloading media from Telegram",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~2 minutes
		}),
		SpeechDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "voxgram_speech_duration_seconds",
			Help:    "Time spent in speech API calls",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		RequestDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "voxgram_request_duration_seconds",
			Help:    "Total time spent processing one media request",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10), // 250ms to ~4 minutes
		}),
		UpdatesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "voxgram_updates_total",
			Help: "Total number of Telegram updates received",
		}),
		CommandsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voxgram_commands_total",
			Help: "Total number of bot commands handled by command name",
		}, []string{"command"}),
	}
}

// RecordRequest records one finished media request.
func (m *Metrics) RecordRequest(outcome string, totalSeconds float64) {
	m.RequestsTotal.WithLabelValues(outcome).Inc()
	m.RequestDuration.Observe(totalSeconds)
}

// RecordMedia counts one inbound media item.
func (m *Metrics) RecordMedia(mediaType string) {
	m.MediaTotal.WithLabelValues(mediaType).Inc()
}

// RecordDownload records the Telegram file download time.
func (m *Metrics) RecordDownload(seconds float64) {
	m.DownloadDuration.Observe(seconds)
}

// RecordSpeechCall records one speech API round trip.
func (m *Metrics) RecordSpeechCall(seconds float64) {
	m.SpeechDuration.Observe(seconds)
}

// RecordUpdate counts one inbound Telegram update.
func (m *Metrics) RecordUpdate() {
	m.UpdatesTotal.Inc()
}

// RecordCommand counts one handled bot command.
func (m *Metrics) RecordCommand(command string) {
	m.CommandsTotal.WithLabelValues(command).Inc()
}
