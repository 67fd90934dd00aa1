package main

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-dms/internal/log"
	"github.com/teslashibe/go-dms/pkg/driverstate"
	"github.com/teslashibe/go-dms/pkg/protocol"
)

const uplinkWriteWait = 2 * time.Second

// uplink mirrors frames to a dms-server stream socket. Writes come from
// a single goroutine.
type uplink struct {
	conn   *websocket.Conn
	broken atomic.Bool
}

func dialUplink(ctx context.Context, url string) (*uplink, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, url, nil)
	if err != nil {
		return nil, err
	}
	u := &uplink{conn: conn}
	go u.readReplies()
	log.Info("uplink connected", "url", url)
	return u, nil
}

// readReplies drains server replies, logging errors and alerts
func (u *uplink) readReplies() {
	for {
		_, data, err := u.conn.ReadMessage()
		if err != nil {
			if !u.broken.Swap(true) {
				log.Warn("uplink closed", "error", err)
			}
			return
		}
		msg, err := protocol.ParseMessage(data)
		if err != nil {
			continue
		}
		switch msg.Type {
		case protocol.TypeAlert:
			if a, err := msg.GetAlertData(); err == nil {
				log.Info("server alert", "kind", a.Kind, "active", a.Active)
			}
		case protocol.TypeError:
			if e, err := msg.GetErrorData(); err == nil && e.Code != protocol.CodeSkipped {
				log.Warn("server rejected frame", "code", e.Code, "message", e.Message)
			}
		}
	}
}

func (u *uplink) send(msg *protocol.Message, err error) {
	if err != nil || u.broken.Load() {
		return
	}
	data, err := msg.Bytes()
	if err != nil {
		return
	}
	u.conn.SetWriteDeadline(time.Now().Add(uplinkWriteWait))
	if err := u.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		if !u.broken.Swap(true) {
			log.Warn("uplink write failed, mirroring stopped", "error", err)
		}
	}
}

func (u *uplink) SendFeatures(f driverstate.FrameFeatures) {
	u.send(protocol.NewFeaturesMessage(f))
}

func (u *uplink) SendNoFace(frameDuration float64) {
	u.send(protocol.NewNoFaceMessage(frameDuration))
}

func (u *uplink) SendReset() {
	u.send(protocol.NewResetMessage("operator"))
}

// Close sends a close frame and closes the connection
func (u *uplink) Close() error {
	u.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(uplinkWriteWait))
	return u.conn.Close()
}
