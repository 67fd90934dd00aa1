package hub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-dms/pkg/driverstate"
	"github.com/teslashibe/go-dms/pkg/protocol"
	"github.com/teslashibe/go-dms/pkg/session"
)

func startHub(t *testing.T, addr string) *Hub {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	h := New("test", nil)
	go h.Run(ctx)

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get("/ws/reports", h.Handler())
	go app.Listen(addr)
	time.Sleep(100 * time.Millisecond)

	t.Cleanup(func() {
		app.Shutdown()
		cancel()
	})
	return h
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("WebSocket dial error: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	time.Sleep(50 * time.Millisecond)
	return ws
}

func readMessage(t *testing.T, ws *websocket.Conn) *protocol.Message {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(time.Second))
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("Read error: %v", err)
	}
	var msg protocol.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	return &msg
}

func TestNew(t *testing.T) {
	h := New("reports", nil)
	if h.ClientCount() != 0 {
		t.Error("ClientCount should be 0 initially")
	}
	if h.IsRunning() {
		t.Error("Hub should not run before Run")
	}
}

func TestBroadcastWithoutObservers(t *testing.T) {
	h := New("reports", nil)

	// No observers: nothing is encoded or queued
	h.BroadcastReport("cab-1", driverstate.Report{})
	if len(h.broadcast) != 0 {
		t.Error("Report should not be queued without observers")
	}
}

func TestBroadcastDropsWhenFull(t *testing.T) {
	h := New("reports", nil)
	for i := 0; i < cap(h.broadcast)+5; i++ {
		h.Broadcast(NewMessage("cab-1", []byte("{}")))
	}
	if h.Dropped() != 5 {
		t.Errorf("Dropped = %d, want 5", h.Dropped())
	}
}

func TestObserverReceivesReports(t *testing.T) {
	h := startHub(t, ":18090")
	ws := dial(t, "ws://localhost:18090/ws/reports")

	if h.ClientCount() != 1 {
		t.Fatalf("ClientCount = %d, want 1", h.ClientCount())
	}

	h.BroadcastReport("cab-1", driverstate.Report{Drowsy: true, Frame: 9})

	msg := readMessage(t, ws)
	if msg.Type != protocol.TypeReport {
		t.Fatalf("Type = %s, want report", msg.Type)
	}
	data, _ := msg.GetReportData()
	if data.Stream != "cab-1" || !data.Report.Drowsy || data.Report.Frame != 9 {
		t.Errorf("Report = %+v", data)
	}

	ws.Close()
	time.Sleep(100 * time.Millisecond)
	if h.ClientCount() != 0 {
		t.Errorf("ClientCount = %d, want 0 after disconnect", h.ClientCount())
	}
}

func TestObserverStreamFilter(t *testing.T) {
	h := startHub(t, ":18091")
	ws := dial(t, "ws://localhost:18091/ws/reports?stream=cab-2")

	h.BroadcastReport("cab-1", driverstate.Report{Frame: 1})
	h.BroadcastReport("cab-2", driverstate.Report{Frame: 2})

	msg := readMessage(t, ws)
	data, _ := msg.GetReportData()
	if data.Stream != "cab-2" {
		t.Errorf("Filtered observer got stream %q", data.Stream)
	}
}

func TestHandleAlert(t *testing.T) {
	h := startHub(t, ":18092")
	ws := dial(t, "ws://localhost:18092/ws/reports")

	var sink session.AlertSink = h
	err := sink.HandleAlert(context.Background(), session.Alert{
		Stream: "cab-1",
		Kind:   session.AlertDistracted,
		Active: true,
		Frame:  3,
	})
	if err != nil {
		t.Fatalf("HandleAlert: %v", err)
	}

	msg := readMessage(t, ws)
	if msg.Type != protocol.TypeAlert {
		t.Fatalf("Type = %s, want alert", msg.Type)
	}
	alert, _ := msg.GetAlertData()
	if alert.Kind != "distracted" || !alert.Active || alert.Frame != 3 {
		t.Errorf("Alert = %+v", alert)
	}
}

func TestRunStops(t *testing.T) {
	h := New("reports", nil)
	ctx, cancel := context.WithCancel(context.Background())

	stopped := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(stopped)
	}()
	time.Sleep(20 * time.Millisecond)
	if !h.IsRunning() {
		t.Error("Hub should be running")
	}

	cancel()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if h.IsRunning() {
		t.Error("Hub should not be running after cancel")
	}
}
