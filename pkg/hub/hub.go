package hub

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-dms/pkg/driverstate"
	"github.com/teslashibe/go-dms/pkg/protocol"
	"github.com/teslashibe/go-dms/pkg/session"
)

// Hub maintains the set of observers and broadcasts messages to them
type Hub struct {
	// Name for logging
	name string
	log  *slog.Logger

	// Registered clients
	clients map[*Client]bool

	// Inbound messages to broadcast
	broadcast chan Message

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Closed when Run returns
	done chan struct{}

	// Mutex for client count (read-only access from outside)
	mu sync.RWMutex

	running atomic.Bool
	dropped atomic.Uint64
}

// New creates a new Hub. A nil logger uses slog.Default().
func New(name string, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		name:       name,
		log:        logger.With("hub", name),
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main loop and returns when ctx is done.
// This should be called in a goroutine
func (h *Hub) Run(ctx context.Context) {
	h.running.Store(true)
	defer func() {
		h.running.Store(false)
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mu.Unlock()
			h.log.Info("observer connected", "stream", client.stream, "observers", count)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			count := len(h.clients)
			h.mu.Unlock()
			h.log.Info("observer disconnected", "observers", count)

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if !client.wants(message) {
					continue
				}
				select {
				case client.send <- message:
				default:
					// Too slow to keep up: drop the observer
					close(client.send)
					delete(h.clients, client)
					h.log.Warn("dropped slow observer", "stream", client.stream)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast queues a message for all matching observers
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		h.dropped.Add(1)
		h.log.Warn("broadcast channel full, dropping message", "stream", msg.Stream)
	}
}

// BroadcastProtocol encodes and broadcasts a protocol message
func (h *Hub) BroadcastProtocol(stream string, msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}
	h.Broadcast(NewMessage(stream, data))
	return nil
}

// BroadcastReport sends a report message for stream. Its signature matches
// session.Registry.OnReport.
func (h *Hub) BroadcastReport(stream string, r driverstate.Report) {
	if h.ClientCount() == 0 {
		return
	}
	msg, err := protocol.NewReportMessage(stream, r)
	if err != nil {
		h.log.Error("encode report", "stream", stream, "error", err)
		return
	}
	h.BroadcastProtocol(stream, msg)
}

// HandleAlert implements session.AlertSink.
func (h *Hub) HandleAlert(_ context.Context, a session.Alert) error {
	msg, err := protocol.NewAlertMessage(protocol.AlertData{
		Stream:         a.Stream,
		Kind:           string(a.Kind),
		Active:         a.Active,
		Frame:          a.Frame,
		ClosedTime:     a.ClosedTime,
		DistractedTime: a.DistractedTime,
	})
	if err != nil {
		return err
	}
	return h.BroadcastProtocol(a.Stream, msg)
}

// Handler returns the fiber websocket handler for observers.
// The optional ?stream= query restricts the observer to one stream.
func (h *Hub) Handler() fiber.Handler {
	return websocket.New(func(c *websocket.Conn) {
		if client := NewClient(h, c, c.Query("stream")); client != nil {
			client.Run()
		}
	})
}

// ClientCount returns the number of connected observers
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns how many broadcasts were discarded on a full queue
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// IsRunning returns whether the hub loop is running
func (h *Hub) IsRunning() bool {
	return h.running.Load()
}
