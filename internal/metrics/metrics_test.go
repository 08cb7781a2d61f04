package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordRequest(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordRequest("delivered", 1.5)
	m.RecordRequest("delivered", 0.5)
	m.RecordRequest("rate_limited", 0.1)

	if got := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("delivered")); got != 2 {
		t.Errorf("delivered = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("rate_limited")); got != 1 {
		t.Errorf("rate_limited = %v, want 1", got)
	}
}

func TestRecordCommandAndMedia(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordCommand("transcribe")
	m.RecordMedia("voice")
	m.RecordMedia("voice")
	m.RecordUpdate()

	if got := testutil.ToFloat64(m.CommandsTotal.WithLabelValues("transcribe")); got != 1 {
		t.Errorf("commands = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.MediaTotal.WithLabelValues("voice")); got != 2 {
		t.Errorf("media = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.UpdatesTotal); got != 1 {
		t.Errorf("updates = %v, want 1", got)
	}
}

func TestRegistersAllCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordRequest("delivered", 1)
	m.RecordDownload(0.2)
	m.RecordSpeechCall(0.8)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{
		"voxgram_requests_total",
		"voxgram_download_duration_seconds",
		"voxgram_speech_duration_seconds",
		"voxgram_request_duration_seconds",
	} {
		if !names[want] {
			t.Errorf("metric %s not registered", want)
		}
	}
}
