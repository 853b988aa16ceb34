package wsconn

import (
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chargepoint/central-system/internal/logging"
	"github.com/chargepoint/central-system/internal/metrics"
	"github.com/chargepoint/central-system/internal/ocpp"
	"github.com/chargepoint/central-system/internal/ocpp/codec"
	"github.com/chargepoint/central-system/internal/validation"
)

// Connection is one live charge-point WebSocket, with a bounded outbound
// queue so concurrent writers never interleave frame bytes on the wire.
type Connection struct {
	mgr       *Manager
	stationID string
	conn      *websocket.Conn
	log       *logging.Logger

	sendCh   chan []byte
	closeCh  chan struct{}
	closeOne sync.Once
}

func newConnection(m *Manager, stationID string, conn *websocket.Conn) *Connection {
	conn.SetReadLimit(m.cfg.MaxMessageSize)
	c := &Connection{
		mgr:       m,
		stationID: stationID,
		conn:      conn,
		log:       m.log.With(stationID),
		sendCh:    make(chan []byte, max(1, m.cfg.MaxOutboundQueue)),
		closeCh:   make(chan struct{}),
	}
	return c
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// run drives the connection until it closes: a send goroutine, a ping
// goroutine, and the receive loop on the calling goroutine.
func (c *Connection) run() {
	defer c.teardown()

	go c.sendLoop()
	go c.pingLoop()

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.mgr.cfg.PingInterval + c.mgr.cfg.PongTimeout))
	})
	c.conn.SetReadDeadline(time.Now().Add(c.mgr.cfg.PingInterval + c.mgr.cfg.PongTimeout))

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.handleFrame(data)
	}
}

func (c *Connection) teardown() {
	c.closeOne.Do(func() { close(c.closeCh) })
	c.conn.Close()
	c.mgr.remove(c.stationID, c)
}

func (c *Connection) sendLoop() {
	for {
		select {
		case frame, ok := <-c.sendCh:
			if !ok {
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.log.Warnf("write failed: %v", err)
				return
			}
		case <-c.closeCh:
			return
		}
	}
}

func (c *Connection) pingLoop() {
	ticker := time.NewTicker(c.mgr.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.closeCh:
			return
		}
	}
}

// enqueue hands frame to the send loop. When the outbound queue is full
// (a slow or stalled charge point), the connection is closed with 1011
// rather than growing the queue unbounded.
func (c *Connection) enqueue(frame []byte) error {
	select {
	case c.sendCh <- frame:
		return nil
	default:
		c.closeWithCode(websocket.CloseInternalServerErr, "outbound queue overflow")
		return fmt.Errorf("wsconn: outbound queue full for %q", c.stationID)
	}
}

func (c *Connection) closeWithCode(code int, reason string) {
	c.closeOne.Do(func() {
		close(c.closeCh)
		deadline := time.Now().Add(time.Second)
		msg := websocket.FormatCloseMessage(code, reason)
		c.conn.WriteControl(websocket.CloseMessage, msg, deadline)
		c.conn.Close()
	})
}

// handleFrame decodes one inbound frame and routes it: a CALL goes to the
// dispatcher, a CALLRESULT/CALLERROR resolves a pending server-initiated
// request.
func (c *Connection) handleFrame(data []byte) {
	decoded, err := codec.Decode(data)
	if err != nil {
		// Any envelope Decode rejects closes the connection, even when its
		// messageId was readable; no CALLERROR is sent. The charge point
		// recovers by reconnecting.
		c.log.Warnf("malformed frame: %v", err)
		c.closeWithCode(websocket.CloseUnsupportedData, "malformed OCPP frame")
		return
	}

	switch decoded.Type {
	case ocpp.Call:
		c.handleCall(decoded)
	case ocpp.CallResult:
		c.mgr.pending.Resolve(decoded.MessageID, decoded.Payload)
	case ocpp.CallError:
		c.mgr.pending.Reject(decoded.MessageID, decoded.ErrorCode, decoded.ErrorDescription)
	}
}

func (c *Connection) handleCall(decoded *codec.Decoded) {
	if failure := validation.ValidateMessageID(decoded.MessageID); failure != nil {
		metrics.ValidationFailures.WithLabelValues(failure.Code).Inc()
		frame, err := codec.EncodeCallError(decoded.MessageID, failure.Code, failure.Description, nil)
		if err != nil {
			c.log.Errorf("encode CALLERROR: %v", err)
			return
		}
		c.enqueue(frame)
		return
	}

	metrics.MessagesReceived.WithLabelValues(string(decoded.Action)).Inc()
	timer := metrics.MessageProcessingDuration.WithLabelValues(string(decoded.Action))
	start := time.Now()
	resp, failure := c.mgr.dispatch.HandleCall(c.stationID, decoded.Action, decoded.Payload)
	timer.Observe(time.Since(start).Seconds())

	if failure != nil {
		metrics.ValidationFailures.WithLabelValues(failure.Code).Inc()
		frame, err := codec.EncodeCallError(decoded.MessageID, failure.Code, failure.Description, nil)
		if err != nil {
			c.log.Errorf("encode CALLERROR: %v", err)
			return
		}
		c.enqueue(frame)
		return
	}

	frame, err := codec.EncodeCallResult(decoded.MessageID, resp)
	if err != nil {
		c.log.Errorf("encode CALLRESULT: %v", err)
		return
	}
	metrics.MessagesSent.WithLabelValues(string(decoded.Action)).Inc()
	c.enqueue(frame)
}

