// internal/handlers/game_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/jason-s-yu/bingo/internal/game"
	"github.com/jason-s-yu/bingo/internal/middleware"
	"github.com/sirupsen/logrus"
)

const (
	outletBuffer   = 64
	writeTimeout   = 5 * time.Second
	readLimitBytes = 4096

	slowConsumerReason = "too slow"
)

// Engine is the part of the round engine a connection talks to.
type Engine interface {
	Connect(out game.Outlet) uuid.UUID
	Disconnect(id uuid.UUID)
	Dispatch(id uuid.UUID, msg game.ClientMessage)
}

// wsOutlet queues frames for one connection. Send never blocks the engine; a full queue drops
// the frame. Close lets queued frames drain before the socket is closed.
type wsOutlet struct {
	send   chan []byte
	closed chan struct{}
	once   sync.Once
	reason string
}

func newWSOutlet(size int) *wsOutlet {
	return &wsOutlet{
		send:   make(chan []byte, size),
		closed: make(chan struct{}),
	}
}

func (o *wsOutlet) Send(data []byte) bool {
	select {
	case <-o.closed:
		return false
	default:
	}
	select {
	case o.send <- data:
		return true
	default:
		return false
	}
}

func (o *wsOutlet) Close(reason string) {
	o.once.Do(func() {
		o.reason = reason
		close(o.closed)
	})
}

// writePump owns all writes to c. It returns when the outlet is closed or ctx ends.
func (o *wsOutlet) writePump(ctx context.Context, c *websocket.Conn, logger *logrus.Entry) {
	for {
		select {
		case data := <-o.send:
			if err := writeFrame(ctx, c, data); err != nil {
				logger.WithError(err).Debug("websocket write failed")
				o.Close("")
				return
			}
		case <-o.closed:
			for {
				select {
				case data := <-o.send:
					if err := writeFrame(ctx, c, data); err != nil {
						return
					}
				default:
					if o.reason != "" {
						c.Close(closeCode(o.reason), o.reason)
					}
					return
				}
			}
		case <-ctx.Done():
			return
		}
	}
}

func writeFrame(ctx context.Context, c *websocket.Conn, data []byte) error {
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return c.Write(writeCtx, websocket.MessageText, data)
}

// GameWSHandler upgrades the request and attaches the connection to the round engine. Every
// inbound frame is decoded and dispatched; the engine decides what, if anything, is sent back.
func GameWSHandler(logger *logrus.Logger, engine Engine, originPatterns []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: originPatterns,
		})
		if err != nil {
			logger.Warnf("WebSocket accept error from %s: %v", r.RemoteAddr, err)
			return
		}
		defer c.CloseNow()
		c.SetReadLimit(readLimitBytes)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		out := newWSOutlet(outletBuffer)
		id := engine.Connect(out)
		entry := logger.WithField("session", id)
		middleware.LogWebSocketConnect(logger, r.RemoteAddr, id.String())

		pumpDone := make(chan struct{})
		go func() {
			defer close(pumpDone)
			out.writePump(ctx, c, entry)
			// unblocks the read loop once the engine or a failed write closed the outlet
			cancel()
		}()

		readErr := readClientMessages(ctx, c, engine, id, out, entry)

		engine.Disconnect(id)
		out.Close("")
		<-pumpDone
		middleware.LogWebSocketDisconnect(logger, r.RemoteAddr, id.String(), readErr)
	}
}

// readClientMessages reads frames until the connection ends. A normal close returns nil.
func readClientMessages(ctx context.Context, c *websocket.Conn, engine Engine, id uuid.UUID, out *wsOutlet, logger *logrus.Entry) error {
	for {
		msgType, data, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		if msgType != websocket.MessageText {
			logger.Debugf("ignoring non-text frame of type %d", msgType)
			continue
		}

		var msg game.ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil || msg.Type == "" {
			logger.Debugf("invalid message: %s", string(data))
			sendWsError(out, "Invalid JSON format.")
			continue
		}
		engine.Dispatch(id, msg)
	}
}

// sendWsError queues an error event on out.
func sendWsError(out game.Outlet, message string) {
	data, err := json.Marshal(game.GameEvent{
		Type:    game.EventError,
		Payload: map[string]interface{}{"message": message},
	})
	if err != nil {
		return
	}
	if !out.Send(data) {
		out.Close(slowConsumerReason)
	}
}
