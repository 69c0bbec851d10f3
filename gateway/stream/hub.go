package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"wagerchain/core/types"
)

// Hub fans committed node events out to websocket clients. Clients that fall
// behind by more than the buffer size are disconnected.
type Hub struct {
	logger       *slog.Logger
	bufferSize   int
	writeTimeout time.Duration

	mu      sync.Mutex
	clients map[*client]struct{}
}

type client struct {
	events  chan *types.Event
	filter  map[string]struct{}
	dropped chan struct{}
	once    sync.Once
}

func (c *client) drop() {
	c.once.Do(func() { close(c.dropped) })
}

func (c *client) wants(evt *types.Event) bool {
	if len(c.filter) == 0 {
		return true
	}
	if _, ok := c.filter[evt.Type]; ok {
		return true
	}
	prefix, _, _ := strings.Cut(evt.Type, ".")
	_, ok := c.filter[prefix]
	return ok
}

func NewHub(bufferSize int, writeTimeout time.Duration, logger *slog.Logger) *Hub {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger:       logger,
		bufferSize:   bufferSize,
		writeTimeout: writeTimeout,
		clients:      make(map[*client]struct{}),
	}
}

// Publish delivers evt to every interested client without blocking.
func (h *Hub) Publish(evt *types.Event) {
	if evt == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if !c.wants(evt) {
			continue
		}
		select {
		case c.events <- evt:
		default:
			c.drop()
			delete(h.clients, c)
		}
	}
}

// Clients reports the number of connected subscribers.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) register(filter map[string]struct{}) *client {
	c := &client{
		events:  make(chan *types.Event, h.bufferSize),
		filter:  filter,
		dropped: make(chan struct{}),
	}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	return c
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// ServeHTTP upgrades the request and streams events as JSON text frames. The
// optional types query parameter filters by event type or module prefix,
// e.g. types=bet,ledger.deposited.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	filter := parseFilter(r.URL.Query().Get("types"))
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	c := h.register(filter)
	defer h.unregister(c)

	// Reads are only used to observe the client closing the connection.
	ctx := conn.CloseRead(r.Context())
	if err := h.stream(ctx, conn, c); err != nil {
		if status := websocket.CloseStatus(err); status == -1 {
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func (h *Hub) stream(ctx context.Context, conn *websocket.Conn, c *client) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.dropped:
			h.logger.Warn("event stream client too slow; disconnecting")
			return conn.Close(websocket.StatusPolicyViolation, "client too slow")
		case evt := <-c.events:
			data, err := json.Marshal(evt)
			if err != nil {
				return err
			}
			writeCtx, cancel := context.WithTimeout(ctx, h.writeTimeout)
			err = conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return err
			}
		}
	}
}

func parseFilter(raw string) map[string]struct{} {
	filter := make(map[string]struct{})
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.ToLower(strings.TrimSpace(part)); trimmed != "" {
			filter[trimmed] = struct{}{}
		}
	}
	return filter
}
