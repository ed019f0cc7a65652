package session

import (
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"coderoom/internal/config"
	"coderoom/internal/models"
)

type frameCapture struct {
	mu     sync.Mutex
	frames []models.WSFrame
}

func (c *frameCapture) hook(frame models.WSFrame) {
	c.mu.Lock()
	c.frames = append(c.frames, frame)
	c.mu.Unlock()
}

func (c *frameCapture) list() []models.WSFrame {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.WSFrame, len(c.frames))
	copy(out, c.frames)
	return out
}

func (c *frameCapture) types() []string {
	frames := c.list()
	out := make([]string, len(frames))
	for i, f := range frames {
		out[i] = f.Type
	}
	return out
}

func (c *frameCapture) count(event string) int {
	n := 0
	for _, f := range c.list() {
		if f.Type == event {
			n++
		}
	}
	return n
}

func (c *frameCapture) reset() {
	c.mu.Lock()
	c.frames = nil
	c.mu.Unlock()
}

func newTestHub(t *testing.T) (*Hub, clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	hub := NewHub(Options{
		TypingTimeout: 3 * time.Second,
		Clock:         clock,
		Logger:        zap.NewNop(),
	})
	t.Cleanup(hub.Close)
	return hub, clock
}

func newTestClient(t *testing.T, hub *Hub, id string) (*Client, *frameCapture) {
	t.Helper()
	client := NewClient(id, nil, config.WebSocketConfig{})
	capture := &frameCapture{}
	client.SetSendHook(capture.hook)
	require.NoError(t, hub.Register(client))
	return client, capture
}

func newTestClientUnregistered(t *testing.T) (*Client, *frameCapture) {
	t.Helper()
	client := NewClient("late", nil, config.WebSocketConfig{})
	capture := &frameCapture{}
	client.SetSendHook(capture.hook)
	return client, capture
}

func join(t *testing.T, hub *Hub, c *Client, roomID, username string) {
	t.Helper()
	require.NoError(t, hub.Join(c, models.JoinRoom{RoomID: roomID, Username: username, Time: "10:00"}))
}
