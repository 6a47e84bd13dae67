package signaling

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/openmeet/signal-relay/internal/auth"
	"github.com/openmeet/signal-relay/internal/config"
	"github.com/openmeet/signal-relay/internal/metrics"
	"github.com/openmeet/signal-relay/internal/ratelimit"
	"github.com/openmeet/signal-relay/internal/room"
)

const wsWriteWait = 1 * time.Second

// Server upgrades HTTP requests to signaling WebSocket connections and runs
// each connection's read loop. Authentication (when enabled) happens before
// the connection joins the registry: either via the upgrade query string or
// as the first in-band frame within the auth timeout.
type Server struct {
	cfg        config.Config
	verifier   auth.Verifier
	registry   *Registry
	dispatcher *Dispatcher
	logger     *slog.Logger
	metrics    *metrics.Metrics
	upgrader   websocket.Upgrader
	clock      ratelimit.Clock
}

func NewServer(cfg config.Config, store *room.Store, logger *slog.Logger, m *metrics.Metrics) (*Server, error) {
	var verifier auth.Verifier
	if cfg.AuthMode != config.AuthModeNone {
		v, err := auth.NewVerifier(cfg)
		if err != nil {
			return nil, err
		}
		verifier = v
	}

	registry := NewRegistry()
	return &Server{
		cfg:        cfg,
		verifier:   verifier,
		registry:   registry,
		dispatcher: NewDispatcher(store, registry, logger, m),
		logger:     logger,
		metrics:    m,
		upgrader: websocket.Upgrader{
			// Origin enforcement happens in the HTTP middleware before the
			// upgrade is ever attempted.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clock: ratelimit.RealClock{},
	}, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	conn.SetReadLimit(s.cfg.MaxSignalingMessageBytes)

	if s.verifier != nil {
		if !s.authenticate(conn, r) {
			s.metrics.Inc(metrics.AuthFailure)
			return
		}
	}

	connID := room.ConnID(uuid.NewString())
	c := newClient(connID, conn, s.cfg.SignalingWSPingInterval, s.logger, s.metrics)
	s.registry.register(c)
	go c.writePump()

	defer func() {
		s.dispatcher.HandleDisconnect(connID)
		s.registry.unregister(connID)
	}()

	s.logger.Debug("signaling connection open", slog.String("connId", string(connID)))
	s.readLoop(c)
	s.logger.Debug("signaling connection closed", slog.String("connId", string(connID)))
}

func (s *Server) readLoop(c *client) {
	conn := c.conn
	_ = conn.SetReadDeadline(time.Now().Add(s.cfg.SignalingWSIdleTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.cfg.SignalingWSIdleTimeout))
	})

	rate := int64(s.cfg.MaxSignalingMessagesPerSecond)
	limiter := ratelimit.NewTokenBucket(s.clock, rate, rate)

	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			writeClose(conn, websocket.CloseUnsupportedData, "expected text message")
			return
		}
		if !limiter.Allow(1) {
			s.metrics.Inc(metrics.DropReasonRateLimited)
			writeClose(conn, websocket.ClosePolicyViolation, "rate limit exceeded")
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(s.cfg.SignalingWSIdleTimeout))
		s.dispatcher.HandleMessage(c.id, msg)
	}
}

// authenticate verifies credentials from the query string or, failing that,
// from the connection's first frame. It reports whether the connection may
// proceed; on failure it has already sent a close frame.
func (s *Server) authenticate(conn *websocket.Conn, r *http.Request) bool {
	cred, err := auth.CredentialFromQuery(s.cfg.AuthMode, r.URL.Query())
	if err == nil {
		if s.verifier.Verify(cred) != nil {
			writeClose(conn, websocket.ClosePolicyViolation, "invalid credentials")
			return false
		}
		return true
	}
	if !errors.Is(err, auth.ErrMissingCredentials) {
		writeClose(conn, websocket.CloseInternalServerErr, "invalid auth configuration")
		return false
	}

	_ = conn.SetReadDeadline(time.Now().Add(s.cfg.SignalingAuthTimeout))
	msgType, msg, err := conn.ReadMessage()
	if err != nil {
		if isTimeout(err) {
			writeClose(conn, websocket.ClosePolicyViolation, "authentication timeout")
		}
		return false
	}
	if msgType != websocket.TextMessage {
		writeClose(conn, websocket.CloseUnsupportedData, "expected text message")
		return false
	}

	env, err := parseEnvelope(msg)
	if err != nil || env.Type != KindAuth {
		writeClose(conn, websocket.ClosePolicyViolation, "authentication required")
		return false
	}
	var authMsg auth.WireAuthMessage
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &authMsg); err != nil {
			writeClose(conn, websocket.CloseUnsupportedData, "invalid auth message")
			return false
		}
	}
	cred, err = auth.CredentialFromAuthMessage(s.cfg.AuthMode, authMsg)
	if err != nil {
		writeClose(conn, websocket.ClosePolicyViolation, "missing credentials")
		return false
	}
	if s.verifier.Verify(cred) != nil {
		writeClose(conn, websocket.ClosePolicyViolation, "invalid credentials")
		return false
	}
	_ = conn.SetReadDeadline(time.Time{})
	return true
}

func writeClose(conn *websocket.Conn, code int, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(wsWriteWait))
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
