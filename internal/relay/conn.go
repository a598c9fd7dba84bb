package relay

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"computeruse-backend/internal/models"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20

	// maxCloseReason is the control frame payload limit minus the status code.
	maxCloseReason = 123
)

// Close codes sent to clients.
const (
	CloseSessionNotFound = 4404
	CloseServerError     = websocket.CloseInternalServerErr
	CloseGoingAway       = websocket.CloseGoingAway
)

// Transport is the relay's view of a client connection.
type Transport interface {
	// Next blocks until the next valid user message arrives. It returns false
	// once the connection is closed and nothing is left queued.
	Next() (string, bool)
	// Send queues an event for delivery. It is a no-op after disconnect.
	Send(models.OutboundEvent)
	// Close queues a close frame after pending events and ends the connection.
	Close(code int, reason string)
	Disconnected() bool
}

type outgoing struct {
	event     models.OutboundEvent
	close     bool
	closeCode int
	reason    string
}

// Conn pumps a gorilla websocket. One reader goroutine validates inbound
// frames and one writer goroutine delivers outbound frames in order.
type Conn struct {
	ws     *websocket.Conn
	logger *slog.Logger

	inbound  *queue[string]
	outbound *queue[outgoing]

	done         chan struct{}
	doneOnce     sync.Once
	disconnected atomic.Bool
	closing      atomic.Bool
	wg           sync.WaitGroup
}

// NewUpgrader returns an upgrader accepting the given origins. "*" or an
// empty list accepts any origin.
func NewUpgrader(allowedOrigins []string) *websocket.Upgrader {
	allowAll := len(allowedOrigins) == 0
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		o = strings.TrimSpace(o)
		if o == "*" {
			allowAll = true
		}
		allowed[o] = true
	}
	return &websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return allowAll || origin == "" || allowed[origin]
		},
	}
}

// Upgrade upgrades the request and starts the pumps.
func Upgrade(upgrader *websocket.Upgrader, w http.ResponseWriter, r *http.Request, logger *slog.Logger) (*Conn, error) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return NewConn(ws, logger), nil
}

// NewConn starts the read and write pumps on an established websocket.
func NewConn(ws *websocket.Conn, logger *slog.Logger) *Conn {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Conn{
		ws:       ws,
		logger:   logger,
		inbound:  newQueue[string](),
		outbound: newQueue[outgoing](),
		done:     make(chan struct{}),
	}
	c.wg.Add(2)
	go c.readPump()
	go c.writePump()
	return c
}

func (c *Conn) triggerDone() {
	c.doneOnce.Do(func() {
		c.disconnected.Store(true)
		close(c.done)
	})
}

func (c *Conn) Disconnected() bool { return c.disconnected.Load() }

func (c *Conn) Next() (string, bool) {
	return c.inbound.pop(c.done)
}

func (c *Conn) Send(ev models.OutboundEvent) {
	if c.disconnected.Load() || c.closing.Load() {
		return
	}
	c.outbound.push(outgoing{event: ev})
}

func (c *Conn) Close(code int, reason string) {
	if c.disconnected.Load() || !c.closing.CompareAndSwap(false, true) {
		return
	}
	c.outbound.push(outgoing{close: true, closeCode: code, reason: truncateCloseReason(reason)})
}

// truncateCloseReason cuts reason to maxCloseReason bytes on a rune boundary.
func truncateCloseReason(reason string) string {
	if len(reason) <= maxCloseReason {
		return reason
	}
	cut := maxCloseReason
	for cut > 0 && !utf8.RuneStart(reason[cut]) {
		cut--
	}
	return reason[:cut]
}

// Wait blocks until both pumps have exited and the socket is closed.
func (c *Conn) Wait() {
	c.wg.Wait()
}

func (c *Conn) readPump() {
	defer c.wg.Done()
	defer c.triggerDone()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				c.logger.Debug("WebSocket read failed", "error", err)
			}
			return
		}
		if kind != websocket.TextMessage {
			c.logger.Debug("Ignoring non-text frame", "kind", kind)
			continue
		}
		msg, err := decodeInbound(data)
		if err != nil {
			c.logger.Debug("Ignoring inbound frame", "error", err)
			continue
		}
		c.inbound.push(msg)
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
		c.wg.Done()
	}()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.triggerDone()
				return
			}
		case <-c.outbound.ready:
			for _, out := range c.outbound.drain() {
				if out.close {
					msg := websocket.FormatCloseMessage(out.closeCode, out.reason)
					if err := c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil {
						c.logger.Warn("WebSocket close frame failed", "code", out.closeCode, "error", err)
					}
					c.triggerDone()
					return
				}
				_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
				if err := c.ws.WriteJSON(out.event); err != nil {
					c.logger.Debug("WebSocket send failed, marking disconnected", "error", err)
					c.triggerDone()
					return
				}
			}
		}
	}
}

// ErrMalformedInbound marks an inbound frame that is ignored.
var ErrMalformedInbound = errors.New("malformed inbound message")

// decodeInbound extracts the user message from a text frame. Frames that are
// not JSON objects with a non-blank string "message" are malformed.
func decodeInbound(data []byte) (string, error) {
	var frame models.InboundMessage
	if err := json.Unmarshal(data, &frame); err != nil {
		return "", ErrMalformedInbound
	}
	if strings.TrimSpace(frame.Message) == "" {
		return "", ErrMalformedInbound
	}
	return frame.Message, nil
}
