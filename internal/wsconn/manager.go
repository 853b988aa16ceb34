// Package wsconn implements the WebSocket connection manager (component
// 4.H): subprotocol negotiation, per-station duplicate-connection policy,
// liveness ping/pong, a per-connection send queue that keeps outbound
// frames from interleaving, and the bridge between inbound CALL frames and
// the dispatcher, and outbound server-initiated CALLs and the pending
// tracker.
package wsconn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chargepoint/central-system/internal/clock"
	"github.com/chargepoint/central-system/internal/dispatch"
	"github.com/chargepoint/central-system/internal/logging"
	"github.com/chargepoint/central-system/internal/metrics"
	"github.com/chargepoint/central-system/internal/ocpp"
	"github.com/chargepoint/central-system/internal/ocpp/codec"
	"github.com/chargepoint/central-system/internal/pending"
)

// SupportedSubprotocols are the only OCPP versions this central system
// speaks. Anything else in the Sec-WebSocket-Protocol header is ignored by
// the negotiation and the handshake is rejected if none match.
var SupportedSubprotocols = []string{"ocpp1.6.1", "ocpp1.6"}

// Config controls the manager's transport behavior.
type Config struct {
	ReadBufferSize    int
	WriteBufferSize   int
	HandshakeTimeout  time.Duration
	PingInterval      time.Duration
	PongTimeout       time.Duration
	MaxMessageSize    int64
	CheckOrigin       bool
	AllowedOrigins    []string
	MaxOutboundQueue  int
	// DuplicatePolicy is "takeover" (default: close the existing connection
	// and let the new one through) or "reject" (refuse the new connection).
	DuplicatePolicy string
}

// DefaultConfig mirrors the defaults in internal/config.
func DefaultConfig() Config {
	return Config{
		ReadBufferSize:   4096,
		WriteBufferSize:  4096,
		HandshakeTimeout: 10 * time.Second,
		PingInterval:     30 * time.Second,
		PongTimeout:      10 * time.Second,
		MaxMessageSize:   1 << 20,
		MaxOutboundQueue: 100,
		DuplicatePolicy:  "takeover",
	}
}

// Manager owns every live charge-point connection, keyed by station ID.
type Manager struct {
	cfg      Config
	upgrader websocket.Upgrader
	dispatch *dispatch.Dispatcher
	pending  *pending.Tracker
	clk      clock.Clock
	log      *logging.Logger

	mu    sync.RWMutex
	conns map[string]*Connection
}

// New builds a Manager. dispatcher handles inbound CALLs; tracker
// correlates outbound server-initiated CALLs with their responses.
func New(cfg Config, dispatcher *dispatch.Dispatcher, tracker *pending.Tracker, clk clock.Clock, log *logging.Logger) *Manager {
	m := &Manager{
		cfg:      cfg,
		dispatch: dispatcher,
		pending:  tracker,
		clk:      clk,
		log:      log,
		conns:    make(map[string]*Connection),
	}
	m.upgrader = websocket.Upgrader{
		ReadBufferSize:   cfg.ReadBufferSize,
		WriteBufferSize:  cfg.WriteBufferSize,
		HandshakeTimeout: cfg.HandshakeTimeout,
		Subprotocols:     SupportedSubprotocols,
		CheckOrigin: func(r *http.Request) bool {
			if !cfg.CheckOrigin {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range cfg.AllowedOrigins {
				if origin == allowed {
					return true
				}
			}
			return false
		},
	}
	return m
}

// stationIDFromPath extracts the last non-empty path segment, the charge
// point identity per the OCPP 1.6J URL convention (.../ocpp/{chargePointId}).
func stationIDFromPath(path string) string {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	if len(segments) == 0 {
		return ""
	}
	return segments[len(segments)-1]
}

// ServeHTTP upgrades the request to a WebSocket connection, applying the
// duplicate-connection policy before the upgrade completes subprotocol
// negotiation.
func (m *Manager) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	stationID := stationIDFromPath(r.URL.Path)
	if stationID == "" {
		http.Error(w, "missing charge point id in path", http.StatusBadRequest)
		return
	}

	offered := false
	for _, p := range websocket.Subprotocols(r) {
		for _, s := range SupportedSubprotocols {
			if p == s {
				offered = true
			}
		}
	}
	if !offered {
		http.Error(w, "no supported OCPP subprotocol offered", http.StatusBadRequest)
		return
	}

	if existing, ok := m.get(stationID); ok {
		if m.cfg.DuplicatePolicy == "reject" {
			http.Error(w, "charge point already connected", http.StatusConflict)
			return
		}
		existing.closeWithCode(websocket.ClosePolicyViolation, "superseded by a new connection")
		metrics.ConnectionTakeovers.Inc()
	}

	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.log.Warnf("websocket upgrade failed for %s: %v", stationID, err)
		return
	}

	c := newConnection(m, stationID, conn)
	m.set(stationID, c)
	metrics.ActiveConnections.Inc()

	go c.run()
}

func (m *Manager) get(stationID string) (*Connection, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.conns[stationID]
	return c, ok
}

func (m *Manager) set(stationID string, c *Connection) {
	m.mu.Lock()
	m.conns[stationID] = c
	m.mu.Unlock()
}

func (m *Manager) remove(stationID string, c *Connection) {
	m.mu.Lock()
	if cur, ok := m.conns[stationID]; ok && cur == c {
		delete(m.conns, stationID)
	}
	m.mu.Unlock()
	metrics.ActiveConnections.Dec()
	m.pending.CancelAll(stationID)
}

// Count returns the number of live connections.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conns)
}

// SendCall sends a server-initiated CALL to stationID and blocks until the
// charge point answers, the default TTL elapses, or ctx is cancelled.
// Returns an error when there is no live connection to send on.
func (m *Manager) SendCall(ctx context.Context, stationID string, action ocpp.Action, payload interface{}) (json.RawMessage, error) {
	c, ok := m.get(stationID)
	if !ok {
		return nil, fmt.Errorf("wsconn: no connection for charge point %q", stationID)
	}

	messageID := m.pending.NextMessageID(m.clk.Now().UnixNano())
	frame, err := codec.EncodeCall(messageID, action, payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s call: %w", action, err)
	}

	resultCh := m.pending.Register(messageID, stationID, action, m.clk.Now())
	metrics.PendingRequests.Inc()
	defer metrics.PendingRequests.Dec()

	if err := c.enqueue(frame); err != nil {
		return nil, err
	}
	metrics.MessagesSent.WithLabelValues(string(action)).Inc()

	select {
	case res := <-resultCh:
		if res.Err != nil {
			if errors.Is(res.Err, pending.ErrTimeout) {
				metrics.PendingRequestTimeouts.Inc()
			}
			return nil, res.Err
		}
		return res.Payload, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Shutdown closes every live connection.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	conns := make([]*Connection, 0, len(m.conns))
	for _, c := range m.conns {
		conns = append(conns, c)
	}
	m.mu.Unlock()

	for _, c := range conns {
		c.closeWithCode(websocket.CloseNormalClosure, "server shutting down")
	}
}
