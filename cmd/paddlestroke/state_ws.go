package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ============================================================================
// Live WebSocket feed: hub + per-client pumps + broadcaster
// ============================================================================
//
// Messages are JSON text frames: {"type": ..., "ts": ..., "data": ...}.
// The first frame after connect is "state_init" carrying a StateSnapshot that
// was produced by the daemon loop. Everything after comes from reducer
// broadcasts. A client whose send queue is full is dropped.
//
// ============================================================================

// wsOutbound is a typed message ready to be enveloped.
type wsOutbound struct {
	Type string
	Data any
	At   time.Time
}

// envelope is the wire format for WS messages.
type envelope struct {
	Type string     `json:"type"`
	Ts   *time.Time `json:"ts,omitempty"`
	Data any        `json:"data,omitempty"`
}

func marshalEnvelope(typ string, at time.Time, data any) ([]byte, error) {
	if at.IsZero() {
		at = time.Now().UTC()
	}
	return json.Marshal(envelope{Type: typ, Ts: &at, Data: data})
}

// Hub fans serialized frames out to connected clients.
type Hub struct {
	logger *slog.Logger

	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	mu      sync.Mutex
	clients map[*Client]struct{}

	sendBuf int
}

type HubConfig struct {
	SendBuf      int // per-client queue, default 32
	BroadcastBuf int // hub inbound queue, default 128
}

// NewHub constructs a hub. Call Run(ctx) to start it.
func NewHub(logger *slog.Logger, cfg HubConfig) *Hub {
	if cfg.SendBuf <= 0 {
		cfg.SendBuf = 32
	}
	if cfg.BroadcastBuf <= 0 {
		cfg.BroadcastBuf = 128
	}
	return &Hub{
		logger:     logger,
		broadcast:  make(chan []byte, cfg.BroadcastBuf),
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		clients:    make(map[*Client]struct{}),
		sendBuf:    cfg.SendBuf,
	}
}

// Run serves registrations and broadcasts until ctx is canceled, then drops
// every client.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("ws hub starting")
	for {
		select {
		case <-ctx.Done():
			h.logger.Info("ws hub stopping (context canceled)")
			h.dropAll()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("ws client registered", "remote_addr", c.remoteAddr, "clients", n)

		case c := <-h.unregister:
			h.drop(c, "unregister")

		case msg := <-h.broadcast:
			h.fanout(msg)
		}
	}
}

// fanout queues msg on every client. Clients that cannot take it are dropped
// after the lock is released.
func (h *Hub) fanout(msg []byte) {
	var stuck []*Client
	h.mu.Lock()
	for c := range h.clients {
		if !c.trySend(msg) {
			stuck = append(stuck, c)
		}
	}
	h.mu.Unlock()

	for _, c := range stuck {
		h.drop(c, "slow_client")
	}
}

func (h *Hub) dropAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.close()
		delete(h.clients, c)
	}
}

func (h *Hub) drop(c *Client, reason string) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	if !ok {
		return
	}
	c.close()
	h.logger.Info("ws client disconnected", "remote_addr", c.remoteAddr, "reason", reason, "clients", n)
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// BroadcastBytes queues a serialized frame. It never blocks; a full queue
// drops the frame.
func (h *Hub) BroadcastBytes(msg []byte) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("ws hub broadcast queue full, dropping message", "bytes", len(msg))
	}
}

// ============================================================================
// Client
// ============================================================================

type Client struct {
	hub *Hub

	conn *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	closed bool

	remoteAddr string
	logger     *slog.Logger
}

func NewClient(hub *Hub, conn *websocket.Conn, remoteAddr string, logger *slog.Logger) *Client {
	n := 32
	if hub != nil && hub.sendBuf > 0 {
		n = hub.sendBuf
	}
	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, n),
		remoteAddr: remoteAddr,
		logger:     logger,
	}
}

// trySend queues msg without blocking. It reports false when the queue is
// full or the client is already closed.
func (c *Client) trySend(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// close shuts the connection and the send queue exactly once. A nil conn is
// allowed so the hub can be exercised without sockets.
func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	if c.conn != nil {
		_ = c.conn.Close()
	}
	close(c.send)
}

const (
	writeWait  = 5 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = 20 * time.Second
)

// wsOutputsCoalesceWindow bounds how often continuous outputs reach clients.
const wsOutputsCoalesceWindow = 50 * time.Millisecond

func closeStatus(err error) (code int, text string, ok bool) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Text, true
	}
	return 0, "", false
}

func (c *Client) logExit(pump string, err error) {
	if errors.Is(err, websocket.ErrCloseSent) {
		return
	}
	if code, text, ok := closeStatus(err); ok {
		c.logger.Info("ws "+pump+" exiting (close)", "remote_addr", c.remoteAddr, "code", code, "reason", text)
		return
	}
	c.logger.Info("ws "+pump+" exiting", "remote_addr", c.remoteAddr, "error", err)
}

// writePump drains the send queue into the socket and keeps the connection
// alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.logExit("writePump", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logExit("writePump", err)
				return
			}
		}
	}
}

// readPump discards inbound frames. Its only job is noticing disconnects and
// extending the read deadline on pong.
func (c *Client) readPump() {
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			c.logExit("readPump", err)
			if c.hub != nil {
				c.hub.unregister <- c
			}
			return
		}
	}
}

// ============================================================================
// HTTP handler
// ============================================================================

type Server struct {
	logger *slog.Logger
	hub    *Hub

	// events carries RequestStateSnapshot into the daemon loop.
	events chan<- Event
}

func NewServer(logger *slog.Logger, events chan<- Event, cfg HubConfig) *Server {
	return &Server{
		logger: logger,
		hub:    NewHub(logger, cfg),
		events: events,
	}
}

func (s *Server) Hub() *Hub { return s.hub }

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// requestSnapshot asks the daemon for a snapshot and waits up to one second.
func requestSnapshot(ctx context.Context, events chan<- Event) (StateSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()

	reply := make(chan StateSnapshot, 1)
	select {
	case <-ctx.Done():
		return StateSnapshot{}, ctx.Err()
	case events <- RequestStateSnapshot{Reply: reply}:
	}

	select {
	case <-ctx.Done():
		return StateSnapshot{}, ctx.Err()
	case snap := <-reply:
		return snap, nil
	}
}

// ServeHTTP upgrades the connection, registers the client and queues
// state_init.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed", "error", err)
		return
	}

	client := NewClient(s.hub, conn, r.RemoteAddr, s.logger)
	s.hub.register <- client

	// Pump lifetime follows the socket, not the request context, which
	// net/http cancels when this handler returns.
	go client.writePump()
	go client.readPump()

	if s.events == nil {
		return
	}
	snap, err := requestSnapshot(r.Context(), s.events)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.logger.Warn("ws snapshot request failed", "error", err)
		}
		return
	}
	msg, err := marshalEnvelope("state_init", snap.At.UTC(), snap)
	if err != nil {
		s.logger.Warn("ws state_init marshal failed", "error", err)
		return
	}
	if !client.trySend(msg) {
		s.hub.unregister <- client
	}
}

// ============================================================================
// Broadcaster
// ============================================================================

// RunBroadcaster converts reducer broadcasts into frames for the hub.
// "outputs" frames are rate limited to one per wsOutputsCoalesceWindow with
// the latest value winning; every other type is sent immediately, after any
// pending outputs frame so ordering is preserved.
func RunBroadcaster(ctx context.Context, hub *Hub, src <-chan StateBroadcast, logger *slog.Logger) {
	if hub == nil || src == nil {
		return
	}

	var pending *wsOutbound
	var timer *time.Timer
	var timerC <-chan time.Time

	send := func(ev wsOutbound) {
		msg, err := marshalEnvelope(ev.Type, ev.At, ev.Data)
		if err != nil {
			logger.Warn("ws broadcaster marshal failed", "error", err, "type", ev.Type)
			return
		}
		hub.BroadcastBytes(msg)
	}
	flush := func() {
		if pending != nil {
			send(*pending)
			pending = nil
		}
	}
	stopTimer := func() {
		if timer != nil {
			timer.Stop()
		}
		timer, timerC = nil, nil
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			stopTimer()
			return

		case <-timerC:
			flush()
			stopTimer()

		case b, ok := <-src:
			if !ok {
				flush()
				stopTimer()
				logger.Info("ws broadcaster stopping (source ended)")
				return
			}

			ev, ok := convertBroadcast(b)
			if !ok {
				continue
			}

			if ev.Type == "outputs" {
				pending = &ev
				if timer == nil {
					timer = time.NewTimer(wsOutputsCoalesceWindow)
					timerC = timer.C
				}
				continue
			}

			flush()
			stopTimer()
			send(ev)
		}
	}
}

type wsStatsData struct {
	DistanceMeters int `json:"distance_m"`
	StrokeCount    int `json:"stroke_count"`
	LeftCount      int `json:"left_count"`
	RightCount     int `json:"right_count"`
	SmallTaps      int `json:"small_taps"`
	FullTaps       int `json:"full_taps"`
}

type wsSessionData struct {
	Active bool `json:"active"`
}

type wsCalibratedData struct {
	BaselineLeftDeg  float64 `json:"baseline_left_deg"`
	BaselineRightDeg float64 `json:"baseline_right_deg"`
}

func convertBroadcast(b StateBroadcast) (wsOutbound, bool) {
	switch ev := b.(type) {
	case BroadcastStroke:
		return wsOutbound{Type: "stroke", Data: ev.Stroke, At: ev.Stroke.At}, true
	case BroadcastTap:
		return wsOutbound{Type: "tap", Data: ev.Tap, At: ev.Tap.At}, true
	case BroadcastHold:
		return wsOutbound{Type: "hold", Data: ev.Hold, At: ev.Hold.At}, true
	case BroadcastOutputs:
		return wsOutbound{Type: "outputs", Data: ev.Outputs, At: ev.At}, true
	case BroadcastSession:
		return wsOutbound{Type: "session", Data: wsSessionData{Active: ev.Active}, At: ev.At}, true
	case BroadcastSummary:
		return wsOutbound{Type: "summary", Data: ev.Summary, At: ev.At}, true
	case BroadcastCalibrated:
		return wsOutbound{
			Type: "calibrated",
			Data: wsCalibratedData{BaselineLeftDeg: ev.BaselineLeftDeg, BaselineRightDeg: ev.BaselineRightDeg},
			At:   ev.At,
		}, true
	case BroadcastStats:
		return wsOutbound{
			Type: "stats",
			Data: wsStatsData{
				DistanceMeters: ev.DistanceMeters,
				StrokeCount:    ev.StrokeCount,
				LeftCount:      ev.LeftCount,
				RightCount:     ev.RightCount,
				SmallTaps:      ev.SmallTaps,
				FullTaps:       ev.FullTaps,
			},
			At: ev.At,
		}, true
	default:
		return wsOutbound{}, false
	}
}
