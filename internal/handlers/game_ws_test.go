package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/jason-s-yu/bingo/internal/game"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoEngine answers ping with pong and closes the session on "leave".
type echoEngine struct {
	mu           sync.Mutex
	outlets      map[uuid.UUID]game.Outlet
	disconnected chan uuid.UUID
	rejectAll    bool
}

func newEchoEngine() *echoEngine {
	return &echoEngine{outlets: map[uuid.UUID]game.Outlet{}, disconnected: make(chan uuid.UUID, 4)}
}

func (e *echoEngine) send(out game.Outlet, ev game.GameEvent) {
	data, _ := json.Marshal(ev)
	out.Send(data)
}

func (e *echoEngine) Connect(out game.Outlet) uuid.UUID {
	id := uuid.New()
	e.mu.Lock()
	e.outlets[id] = out
	e.mu.Unlock()
	if e.rejectAll {
		e.send(out, game.GameEvent{Type: game.EventError, Payload: map[string]interface{}{"message": game.RoundInProgressMessage}})
		out.Close(game.RoundInProgressMessage)
		return id
	}
	e.send(out, game.GameEvent{Type: game.EventInit, Payload: map[string]interface{}{"sessionId": id.String()}})
	return id
}

func (e *echoEngine) Disconnect(id uuid.UUID) {
	e.mu.Lock()
	delete(e.outlets, id)
	e.mu.Unlock()
	e.disconnected <- id
}

func (e *echoEngine) Dispatch(id uuid.UUID, msg game.ClientMessage) {
	e.mu.Lock()
	out := e.outlets[id]
	e.mu.Unlock()
	switch msg.Type {
	case game.MsgPing:
		e.send(out, game.GameEvent{Type: game.EventPong})
	case "leave":
		out.Close("bye")
	}
}

func startWSServer(t *testing.T, engine Engine) string {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	srv := httptest.NewServer(GameWSHandler(logger, engine, []string{"*"}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func readEvent(t *testing.T, ctx context.Context, c *websocket.Conn) game.GameEvent {
	t.Helper()
	_, data, err := c.Read(ctx)
	require.NoError(t, err)
	var ev game.GameEvent
	require.NoError(t, json.Unmarshal(data, &ev))
	return ev
}

func TestGameWSHandlerRoundTrip(t *testing.T) {
	engine := newEchoEngine()
	url := startWSServer(t, engine)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer c.CloseNow()

	welcome := readEvent(t, ctx, c)
	assert.Equal(t, game.EventInit, welcome.Type)
	assert.NotEmpty(t, welcome.Payload["sessionId"])

	require.NoError(t, c.Write(ctx, websocket.MessageText, []byte(`{"type":"ping"}`)))
	assert.Equal(t, game.EventPong, readEvent(t, ctx, c).Type)

	require.NoError(t, c.Write(ctx, websocket.MessageText, []byte(`not json`)))
	bad := readEvent(t, ctx, c)
	assert.Equal(t, game.EventError, bad.Type)
	assert.Equal(t, "Invalid JSON format.", bad.Payload["message"])

	c.Close(websocket.StatusNormalClosure, "")
	select {
	case id := <-engine.disconnected:
		assert.Equal(t, welcome.Payload["sessionId"], id.String())
	case <-time.After(3 * time.Second):
		t.Fatal("engine never saw the disconnect")
	}
}

func TestGameWSHandlerRejectsDuringPlay(t *testing.T) {
	engine := newEchoEngine()
	engine.rejectAll = true
	url := startWSServer(t, engine)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer c.CloseNow()

	ev := readEvent(t, ctx, c)
	assert.Equal(t, game.EventError, ev.Type)
	assert.Equal(t, game.RoundInProgressMessage, ev.Payload["message"])

	_, _, err = c.Read(ctx)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusCode(RoundInProgressError), websocket.CloseStatus(err))
}

func TestWSOutletDropsWhenFull(t *testing.T) {
	out := newWSOutlet(1)
	assert.True(t, out.Send([]byte("a")))
	assert.False(t, out.Send([]byte("b")))

	out.Close("x")
	out.Close("y")
	assert.Equal(t, "x", out.reason)
	assert.False(t, out.Send([]byte("c")))
}

func TestCloseCode(t *testing.T) {
	assert.Equal(t, websocket.StatusCode(RoundInProgressError), closeCode(game.RoundInProgressMessage))
	assert.Equal(t, websocket.StatusCode(SlowConsumerError), closeCode(slowConsumerReason))
	assert.Equal(t, websocket.StatusGoingAway, closeCode("server shutting down"))
}
