package httpserver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"github.com/openmeet/signal-relay/internal/config"
	"github.com/openmeet/signal-relay/internal/metrics"
	"github.com/openmeet/signal-relay/internal/room"
	"github.com/openmeet/signal-relay/internal/signaling"
)

func testConfig() config.Config {
	return config.Config{
		ListenAddr:                    "127.0.0.1:0",
		LogFormat:                     config.LogFormatText,
		LogLevel:                      slog.LevelInfo,
		Mode:                          config.ModeDev,
		ShutdownTimeout:               2 * time.Second,
		RoomIDLength:                  8,
		AuthMode:                      config.AuthModeNone,
		SignalingAuthTimeout:          time.Second,
		SignalingWSIdleTimeout:        10 * time.Second,
		SignalingWSPingInterval:       time.Second,
		MaxSignalingMessageBytes:      64 * 1024,
		MaxSignalingMessagesPerSecond: 100,
	}
}

func startTestServer(t *testing.T, cfg config.Config) (baseURL string) {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.New()
	store := room.NewStore(cfg.RoomIDLength, m)
	signal, err := signaling.NewServer(cfg, store, log, m)
	if err != nil {
		t.Fatalf("signaling.NewServer: %v", err)
	}
	srv, err := New(cfg, log, BuildInfo{Commit: "abc", BuildTime: "time"}, signal, store, m)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
		<-errCh
	})

	return "http://" + ln.Addr().String()
}

func getJSON(t *testing.T, url string, wantStatus int) map[string]any {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		t.Fatalf("GET %s status=%d, want %d", url, resp.StatusCode, wantStatus)
	}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return body
}

func TestHealthzReadyzVersion(t *testing.T) {
	baseURL := startTestServer(t, testConfig())

	if body := getJSON(t, baseURL+"/healthz", http.StatusOK); body["ok"] != true {
		t.Fatalf("healthz body=%v", body)
	}
	if body := getJSON(t, baseURL+"/readyz", http.StatusOK); body["ready"] != true {
		t.Fatalf("readyz body=%v", body)
	}
	if body := getJSON(t, baseURL+"/version", http.StatusOK); body["commit"] != "abc" {
		t.Fatalf("version body=%v", body)
	}
}

func TestICEEndpoint(t *testing.T) {
	cfg := testConfig()
	cfg.ICEServers = []webrtc.ICEServer{
		{URLs: []string{"stun:stun.example.com:3478"}},
		{URLs: []string{"turn:turn.example.com:3478"}},
	}
	cfg.TURNREST = config.TurnRESTConfig{
		SharedSecret:   "north",
		TTLSeconds:     600,
		UsernamePrefix: "relay",
	}
	baseURL := startTestServer(t, cfg)

	body := getJSON(t, baseURL+"/webrtc/ice", http.StatusOK)
	servers, ok := body["iceServers"].([]any)
	if !ok || len(servers) != 2 {
		t.Fatalf("iceServers = %v", body["iceServers"])
	}
	turn, ok := servers[1].(map[string]any)
	if !ok {
		t.Fatalf("turn entry = %v", servers[1])
	}
	username, _ := turn["username"].(string)
	if !strings.Contains(username, ":relay:") {
		t.Fatalf("turn username = %q, want minted REST credential", username)
	}
	if cred, _ := turn["credential"].(string); cred == "" {
		t.Fatal("turn credential missing")
	}
	stun, _ := servers[0].(map[string]any)
	if _, hasUser := stun["username"]; hasUser {
		t.Fatalf("stun entry gained credentials: %v", stun)
	}
	if _, ok := body["expiresAt"].(float64); !ok {
		t.Fatalf("expiresAt = %v", body["expiresAt"])
	}
}

func TestOriginPolicy(t *testing.T) {
	cfg := testConfig()
	cfg.AllowedOrigins = []string{"https://app.example.com"}
	baseURL := startTestServer(t, cfg)

	get := func(origin string) *http.Response {
		req, _ := http.NewRequest(http.MethodGet, baseURL+"/webrtc/ice", nil)
		if origin != "" {
			req.Header.Set("Origin", origin)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("do: %v", err)
		}
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	if resp := get(""); resp.StatusCode != http.StatusOK {
		t.Fatalf("no origin: status=%d", resp.StatusCode)
	}
	resp := get("https://app.example.com")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("allowed origin: status=%d", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Fatalf("allow-origin header = %q", got)
	}
	if resp := get("https://evil.example.com"); resp.StatusCode != http.StatusForbidden {
		t.Fatalf("disallowed origin: status=%d", resp.StatusCode)
	}
}

// The /ws route sits behind the logging middleware; this covers the upgrade
// path end to end through the real middleware chain.
func TestWebSocketThroughMiddleware(t *testing.T) {
	baseURL := startTestServer(t, testConfig())
	wsURL := "ws" + strings.TrimPrefix(baseURL, "http") + "/ws"

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	msg := `{"type":"create-room","data":{"userId":"alice","userName":"Alice"}}`
	if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var reply struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &reply); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
	if reply.Type != "room-created" {
		t.Fatalf("reply type = %q, want room-created", reply.Type)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	baseURL := startTestServer(t, testConfig())

	resp, err := http.Get(baseURL + "/metrics")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "signal_relay_events_total") {
		t.Fatalf("metrics body missing counter family:\n%s", body)
	}
}
