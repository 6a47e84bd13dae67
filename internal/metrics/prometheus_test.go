package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestPrometheusHandler_ExposesSnapshot(t *testing.T) {
	m := New()
	m.Inc(RoomCreated)
	m.Add(RelayMessage, 3)
	m.Inc(`quote"back\slash`)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()

	PrometheusHandler(m).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d, want %d", rr.Code, http.StatusOK)
	}

	body := rr.Body.String()
	if !strings.Contains(body, "# TYPE signal_relay_events_total counter") {
		t.Fatalf("missing TYPE header: %s", body)
	}
	if !strings.Contains(body, `signal_relay_events_total{event="relay_message"} 3`) {
		t.Fatalf("missing relay_message counter: %s", body)
	}
	if !strings.Contains(body, `signal_relay_events_total{event="room_created"} 1`) {
		t.Fatalf("missing room_created counter: %s", body)
	}
	// Label escaping must match Prometheus text format rules.
	if !strings.Contains(body, `signal_relay_events_total{event="quote\"back\\slash"} 1`) {
		t.Fatalf("missing escaped counter: %s", body)
	}
}

func TestMetrics_NilReceiverIsNoop(t *testing.T) {
	var m *Metrics
	m.Inc("anything")
	if got := m.Get("anything"); got != 0 {
		t.Fatalf("Get on nil = %d, want 0", got)
	}
	if snap := m.Snapshot(); snap != nil {
		t.Fatalf("Snapshot on nil = %v, want nil", snap)
	}
}
