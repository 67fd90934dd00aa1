// Package monitor accepts camera stream connections over WebSocket and
// exposes the stream REST API.
package monitor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/teslashibe/go-dms/pkg/driverstate"
	"github.com/teslashibe/go-dms/pkg/journal"
	"github.com/teslashibe/go-dms/pkg/protocol"
	"github.com/teslashibe/go-dms/pkg/session"
)

// ErrNotConnected is returned when sending to a stream without a live connection.
var ErrNotConnected = errors.New("monitor: stream not connected")

// AlertStore serves alert history. *journal.Journal satisfies it.
type AlertStore interface {
	Recent(ctx context.Context, streamID string, limit int) ([]journal.Entry, error)
}

// Config configures a Monitor.
type Config struct {
	Registry *session.Registry

	// Alerts is optional; without it GET /alerts answers 503.
	Alerts AlertStore

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// StreamConnection is a connected camera client
type StreamConnection struct {
	ID        string
	Conn      *websocket.Conn
	Connected time.Time
	LastSeen  time.Time

	mu sync.Mutex
}

// Send writes a message to the client
func (s *StreamConnection) Send(msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Conn.WriteMessage(websocket.TextMessage, data)
}

// Monitor manages camera stream connections
type Monitor struct {
	registry *session.Registry
	alerts   AlertStore
	log      *slog.Logger

	mu    sync.RWMutex
	conns map[string]*StreamConnection

	// Stats
	messagesReceived atomic.Uint64
	messagesSent     atomic.Uint64
	framesReceived   atomic.Uint64
	badMessages      atomic.Uint64
}

// New creates a monitor bound to a session registry
func New(cfg Config) *Monitor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		registry: cfg.Registry,
		alerts:   cfg.Alerts,
		log:      logger,
		conns:    make(map[string]*StreamConnection),
	}
}

// RegisterRoutes registers WebSocket routes on a Fiber app
func (m *Monitor) RegisterRoutes(app *fiber.App) {
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/stream", websocket.New(m.handleStream))
	app.Get("/ws/stream/:id", websocket.New(m.handleStream))
}

// handleStream serves one camera connection
func (m *Monitor) handleStream(c *websocket.Conn) {
	streamID := c.Params("id")
	if streamID == "" {
		streamID = uuid.NewString()
	}

	if _, err := m.registry.Open(streamID); err != nil {
		m.log.Error("open stream", "stream", streamID, "error", err)
		return
	}

	conn := &StreamConnection{
		ID:        streamID,
		Conn:      c,
		Connected: time.Now(),
		LastSeen:  time.Now(),
	}

	m.mu.Lock()
	if old, ok := m.conns[streamID]; ok {
		// A reconnect replaces the previous socket
		old.Conn.Close()
	}
	m.conns[streamID] = conn
	count := len(m.conns)
	m.mu.Unlock()

	m.log.Info("stream connected", "stream", streamID, "connections", count)

	defer func() {
		m.mu.Lock()
		if m.conns[streamID] == conn {
			delete(m.conns, streamID)
		}
		count := len(m.conns)
		m.mu.Unlock()
		m.log.Info("stream disconnected", "stream", streamID, "connections", count)
	}()

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			m.log.Debug("stream read error", "stream", streamID, "error", err)
			return
		}

		conn.mu.Lock()
		conn.LastSeen = time.Now()
		conn.mu.Unlock()

		m.messagesReceived.Add(1)
		if reply := m.handleMessage(streamID, data); reply != nil {
			m.messagesSent.Add(1)
			if err := conn.Send(reply); err != nil {
				m.log.Debug("stream write error", "stream", streamID, "error", err)
				return
			}
		}
	}
}

// handleMessage processes one client message and returns the reply
func (m *Monitor) handleMessage(streamID string, data []byte) *protocol.Message {
	ctx := context.Background()

	msg, err := protocol.ParseMessage(data)
	if err != nil {
		return m.errorReply(streamID, protocol.CodeBadMessage, err)
	}

	switch msg.Type {
	case protocol.TypeFeatures:
		m.framesReceived.Add(1)
		fd, err := msg.GetFeaturesData()
		if err != nil {
			var fe *driverstate.FeatureError
			if errors.As(err, &fe) {
				m.registry.Skip(streamID, err)
			}
			return m.errorReply(streamID, protocol.CodeBadMessage, err)
		}
		if fd.NoFace {
			rep, _ := m.registry.Skip(streamID, driverstate.ErrNoFace)
			return m.reportReply(streamID, rep)
		}
		rep, err := m.registry.Process(ctx, streamID, fd.FrameFeatures)
		return m.frameReply(streamID, rep, err)

	case protocol.TypeLandmarks:
		m.framesReceived.Add(1)
		ld, err := msg.GetLandmarksData()
		if err != nil {
			return m.errorReply(streamID, protocol.CodeBadMessage, err)
		}
		rep, err := m.registry.ProcessLandmarks(ctx, streamID, ld.Face, ld.FrameDuration)
		return m.frameReply(streamID, rep, err)

	case protocol.TypeReset:
		rep, err := m.registry.Reset(ctx, streamID)
		if err != nil {
			return m.errorReply(streamID, protocol.CodeBadMessage, err)
		}
		return m.reportReply(streamID, rep)

	case protocol.TypePing:
		ping, _ := msg.GetPingData()
		id := ""
		if ping != nil {
			id = ping.ID
		}
		reply, _ := protocol.NewPongMessage(id, msg.Timestamp, time.Now().UnixMilli())
		return reply

	default:
		return m.errorReply(streamID, protocol.CodeUnsupported, errors.New("unsupported message type "+string(msg.Type)))
	}
}

// frameReply turns a processing result into a reply. Frames without a usable
// face still get the repeated report; malformed features get an error.
func (m *Monitor) frameReply(streamID string, rep driverstate.Report, err error) *protocol.Message {
	var fe *driverstate.FeatureError
	switch {
	case err == nil:
		return m.reportReply(streamID, rep)
	case errors.As(err, &fe):
		return m.errorReply(streamID, protocol.CodeSkipped, err)
	case driverstate.IsSkippable(err):
		return m.reportReply(streamID, rep)
	default:
		return m.errorReply(streamID, protocol.CodeBadMessage, err)
	}
}

func (m *Monitor) reportReply(streamID string, rep driverstate.Report) *protocol.Message {
	msg, err := protocol.NewReportMessage(streamID, rep)
	if err != nil {
		m.log.Error("encode report", "stream", streamID, "error", err)
		return nil
	}
	return msg
}

func (m *Monitor) errorReply(streamID, code string, err error) *protocol.Message {
	m.badMessages.Add(1)
	m.log.Warn("rejected message", "stream", streamID, "code", code, "error", err)
	msg, _ := protocol.NewErrorMessage(code, err.Error())
	return msg
}

// Send sends a message to a connected stream
func (m *Monitor) Send(streamID string, msg *protocol.Message) error {
	m.mu.RLock()
	conn, ok := m.conns[streamID]
	m.mu.RUnlock()

	if !ok {
		return ErrNotConnected
	}

	m.messagesSent.Add(1)
	return conn.Send(msg)
}

// HandleAlert implements session.AlertSink by pushing the alert back to the
// camera that raised it. Streams without a live connection are ignored.
func (m *Monitor) HandleAlert(_ context.Context, a session.Alert) error {
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
	if err := m.Send(a.Stream, msg); err != nil && !errors.Is(err, ErrNotConnected) {
		return err
	}
	return nil
}

// GetConnection returns a live connection by stream ID
func (m *Monitor) GetConnection(streamID string) *StreamConnection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.conns[streamID]
}

// ConnectionCount returns the number of live connections
func (m *Monitor) ConnectionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conns)
}

// Stats contains monitor statistics
type Stats struct {
	Connections      int    `json:"connections"`
	MessagesReceived uint64 `json:"messages_received"`
	MessagesSent     uint64 `json:"messages_sent"`
	FramesReceived   uint64 `json:"frames_received"`
	BadMessages      uint64 `json:"bad_messages"`
}

// GetStats returns monitor statistics
func (m *Monitor) GetStats() Stats {
	return Stats{
		Connections:      m.ConnectionCount(),
		MessagesReceived: m.messagesReceived.Load(),
		MessagesSent:     m.messagesSent.Load(),
		FramesReceived:   m.framesReceived.Load(),
		BadMessages:      m.badMessages.Load(),
	}
}

// ConnectionInfo describes a live connection
type ConnectionInfo struct {
	ID        string    `json:"id"`
	Connected time.Time `json:"connected"`
	LastSeen  time.Time `json:"last_seen"`
}

// GetConnectionInfos returns info about all live connections
func (m *Monitor) GetConnectionInfos() []ConnectionInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	infos := make([]ConnectionInfo, 0, len(m.conns))
	for _, c := range m.conns {
		c.mu.Lock()
		infos = append(infos, ConnectionInfo{
			ID:        c.ID,
			Connected: c.Connected,
			LastSeen:  c.LastSeen,
		})
		c.mu.Unlock()
	}
	return infos
}
