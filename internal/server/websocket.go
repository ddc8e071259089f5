package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/SmitUplenchwar2687/Folio/internal/identity"
	"github.com/SmitUplenchwar2687/Folio/internal/quota"
)

const (
	wsWriteWait = 5 * time.Second
	// wsSendBuffer is how many updates may wait for a slow client before
	// newer ones are dropped.
	wsSendBuffer = 8
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// QuotaUpdate is the websocket message sent to a client whenever its usage
// changes or is read.
type QuotaUpdate struct {
	Type    string `json:"type"`
	Outcome string `json:"outcome,omitempty"`
	quota.State
}

type wsClient struct {
	conn     *websocket.Conn
	out      chan QuotaUpdate
	done     chan struct{}
	stopOnce sync.Once
}

func newWSClient(conn *websocket.Conn) *wsClient {
	return &wsClient{
		conn: conn,
		out:  make(chan QuotaUpdate, wsSendBuffer),
		done: make(chan struct{}),
	}
}

// enqueue hands msg to the writer without blocking. It reports false when
// the queue is full or the client has stopped.
func (c *wsClient) enqueue(msg QuotaUpdate) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.out <- msg:
		return true
	default:
		return false
	}
}

func (c *wsClient) stop() {
	c.stopOnce.Do(func() { close(c.done) })
}

// writeLoop owns every data write on conn. A failed write closes the
// connection so the read loop unregisters the client.
func (c *wsClient) writeLoop(logger zerolog.Logger) {
	defer c.conn.Close()
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.out:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				logger.Debug().Err(err).Msg("websocket write error")
				return
			}
		}
	}
}

// Hub fans quota updates out to websocket clients. Clients are grouped by
// identity, so a browser only sees updates for its own ip and user token,
// across window rollovers.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*wsClient]struct{}
	closed  bool

	// initial, when set, provides the state sent right after connecting.
	initial func(r *http.Request, c identity.Client) (quota.State, error)
	logger  zerolog.Logger
}

// NewHub creates a new WebSocket hub.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[string]map[*wsClient]struct{}),
		logger:  logger.With().Str("component", "ws").Logger(),
	}
}

// SetInitialState registers the lookup used to greet new connections.
func (h *Hub) SetInitialState(fn func(r *http.Request, c identity.Client) (quota.State, error)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.initial = fn
}

func groupKey(c identity.Client) string {
	return c.IP + "\x00" + c.UserID
}

// HandleWebSocket upgrades the HTTP connection and registers the client
// under the identity resolved from the upgrade request.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade error")
		return
	}

	id := identity.FromRequest(r)
	group := groupKey(id)
	client := newWSClient(conn)

	initial, ok := h.add(group, client)
	if !ok {
		conn.Close()
		return
	}
	go client.writeLoop(h.logger)

	if initial != nil {
		if st, err := initial(r, id); err == nil {
			client.enqueue(QuotaUpdate{Type: "quota", State: st})
		} else {
			h.logger.Warn().Err(err).Msg("initial quota state unavailable")
		}
	}

	// Read loop keeps the connection alive and notices disconnects.
	go func() {
		defer h.remove(group, client)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// add registers c under group and returns the greeting lookup. It reports
// false once the hub is closed.
func (h *Hub) add(group string, c *wsClient) (func(*http.Request, identity.Client) (quota.State, error), bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	if h.clients[group] == nil {
		h.clients[group] = make(map[*wsClient]struct{})
	}
	h.clients[group][c] = struct{}{}
	return h.initial, true
}

func (h *Hub) remove(group string, c *wsClient) {
	h.mu.Lock()
	if set := h.clients[group]; set != nil {
		delete(set, c)
		if len(set) == 0 {
			delete(h.clients, group)
		}
	}
	h.mu.Unlock()
	c.stop()
	c.conn.Close()
}

// Publish is an accountant event hook. Recorded uses, allowed or denied,
// are queued for every connection of the same identity. It never waits on
// the network; a client whose queue is full misses the update.
func (h *Hub) Publish(ev quota.Event) {
	if ev.Op != quota.OpRecord {
		return
	}
	if ev.Outcome != quota.OutcomeAllowed && ev.Outcome != quota.OutcomeDenied {
		return
	}

	msg := QuotaUpdate{Type: "quota", Outcome: string(ev.Outcome), State: ev.State}

	h.mu.RLock()
	targets := make([]*wsClient, 0, len(h.clients[groupKey(ev.Client)]))
	for c := range h.clients[groupKey(ev.Client)] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if !c.enqueue(msg) {
			h.logger.Debug().Str("ip", ev.Client.IP).Msg("websocket client lagging, update dropped")
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, set := range h.clients {
		n += len(set)
	}
	return n
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	var all []*wsClient
	for _, set := range h.clients {
		for c := range set {
			all = append(all, c)
		}
	}
	h.mu.Unlock()

	for _, c := range all {
		c.stop()
		// WriteControl may run alongside the writer goroutine.
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(wsWriteWait))
		c.conn.Close()
	}
}
