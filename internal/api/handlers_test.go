package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"coderoom/internal/config"
	"coderoom/internal/llm"
	"coderoom/internal/models"
	"coderoom/internal/prompts"
	"coderoom/internal/session"
)

type stubProvider struct {
	text string
	err  error
}

func (s stubProvider) GenerateCode(context.Context, *llm.Request) (*llm.Response, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &llm.Response{Text: s.text}, nil
}

func (stubProvider) GetProviderName() string { return "stub" }

type rawFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type testEnv struct {
	server *httptest.Server
	hub    *session.Hub
	co     *session.Coordinator
}

func testConfig() *config.Config {
	return &config.Config{
		ClientURL: []string{"http://localhost:5173"},
		WebSocket: config.WebSocketConfig{
			PingInterval:   time.Second,
			PongWait:       5 * time.Second,
			WriteWait:      time.Second,
			MaxMessageSize: 1 << 16,
			SendBuffer:     64,
		},
	}
}

func newTestEnv(t *testing.T, provider llm.Provider) *testEnv {
	t.Helper()
	hub := session.NewHub(session.Options{TypingTimeout: 3 * time.Second, Logger: zap.NewNop()})
	pm, err := prompts.NewPromptManager()
	require.NoError(t, err)
	co := session.NewCoordinator(hub, session.CoordinatorOptions{
		Provider: provider,
		Prompts:  pm,
		Timeout:  time.Second,
		Prefix:   "@ai ",
		Logger:   zap.NewNop(),
	})
	h := NewHandlers(hub, co, testConfig(), zap.NewNop())

	server := httptest.NewServer(http.HandlerFunc(h.ServeWS))
	t.Cleanup(func() {
		server.Close()
		hub.Close()
		co.Wait()
	})
	return &testEnv{server: server, hub: hub, co: co}
}

func (e *testEnv) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(e.server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(map[string]any{"type": event, "data": data}))
}

func read(t *testing.T, conn *websocket.Conn) rawFrame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame rawFrame
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func readData[T any](t *testing.T, conn *websocket.Conn, event string) T {
	t.Helper()
	frame := read(t, conn)
	require.Equal(t, event, frame.Type, "data: %s", string(frame.Data))
	var out T
	require.NoError(t, json.Unmarshal(frame.Data, &out))
	return out
}

func expectSilence(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	var frame rawFrame
	err := conn.ReadJSON(&frame)
	require.Error(t, err, "unexpected frame %s %s", frame.Type, string(frame.Data))
}

// waitMembers blocks until the hub has processed the joins.
func waitMembers(t *testing.T, hub *session.Hub, roomID string, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return len(hub.Members(roomID)) == n }, 2*time.Second, 5*time.Millisecond)
}

func TestJoinAndChatRoundTrip(t *testing.T) {
	env := newTestEnv(t, stubProvider{text: "x"})
	bob := env.dial(t)
	alice := env.dial(t)

	send(t, bob, models.EventJoinRoom, models.JoinRoom{RoomID: "r1", Username: "bob", Time: "09:00"})
	waitMembers(t, env.hub, "r1", 1)
	send(t, alice, models.EventJoinRoom, models.JoinRoom{RoomID: "r1", Username: "alice", Time: "09:01"})

	joined := readData[models.UserRef](t, bob, models.EventNewUserJoined)
	assert.Equal(t, "alice", joined.Username)
	notice := readData[models.ReceiveMessage](t, bob, models.EventReceiveMessage)
	assert.Equal(t, models.SystemNotice("alice joined the room", "09:01"), notice)

	send(t, bob, models.EventOpMessage, models.ChatLine{RoomID: "r1", Username: "bob", Message: "hi", Time: "09:02"})
	want := models.ReceiveMessage{Username: "bob", Message: "hi", Time: "09:02"}
	assert.Equal(t, want, readData[models.ReceiveMessage](t, bob, models.EventReceiveMessage))
	assert.Equal(t, want, readData[models.ReceiveMessage](t, alice, models.EventReceiveMessage))
	expectSilence(t, alice)
}

func TestChangingCodeRoundTrip(t *testing.T) {
	env := newTestEnv(t, stubProvider{text: "x"})
	bob := env.dial(t)
	alice := env.dial(t)
	send(t, bob, models.EventJoinRoom, models.JoinRoom{RoomID: "r1", Username: "bob"})
	waitMembers(t, env.hub, "r1", 1)
	send(t, alice, models.EventJoinRoom, models.JoinRoom{RoomID: "r1", Username: "alice"})
	read(t, bob)
	read(t, bob)

	send(t, alice, models.EventChangingCode, models.ChangingCode{RoomID: "r1", Username: "alice", Code: "fmt.Println(1)", Time: "09:03"})

	change := readData[models.CodeChange](t, bob, models.EventCodeChange)
	assert.Equal(t, models.CodeChange{Code: "fmt.Println(1)", Message: "Code Changed by alice"}, change)
	assert.Equal(t, "Code Changed by alice", readData[models.ReceiveMessage](t, bob, models.EventReceiveMessage).Message)
	assert.Equal(t, "Code Changed by alice", readData[models.ReceiveMessage](t, alice, models.EventReceiveMessage).Message)
}

func TestAskAIRoundTripOverWebsocket(t *testing.T) {
	env := newTestEnv(t, stubProvider{text: "print('hello')"})
	sam := env.dial(t)
	eve := env.dial(t)
	send(t, sam, models.EventJoinRoom, models.JoinRoom{RoomID: "r1", Username: "sam"})
	waitMembers(t, env.hub, "r1", 1)
	send(t, eve, models.EventJoinRoom, models.JoinRoom{RoomID: "r1", Username: "eve"})
	read(t, sam)
	read(t, sam)

	send(t, sam, models.EventAskAI, models.ChatLine{RoomID: "r1", Username: "sam", Message: "@ai print hello", Time: "09:04"})

	for _, conn := range []*websocket.Conn{sam, eve} {
		echo := readData[models.ReceiveMessage](t, conn, models.EventReceiveMessage)
		assert.Equal(t, "@ai print hello", echo.Message)
		placeholder := readData[models.CodeChange](t, conn, models.EventCodeChange)
		assert.Equal(t, models.CodeChange{Code: "...", Message: "AI Generating Code.."}, placeholder)
		result := readData[models.CodeChange](t, conn, models.EventCodeChange)
		assert.Equal(t, models.CodeChange{Code: "print('hello')", Message: "Code Changed by AI"}, result)
		done := readData[models.ReceiveMessage](t, conn, models.EventReceiveMessage)
		assert.Equal(t, models.SystemNotice("Code Changed by AI", "09:04"), done)
	}
}

func TestOpMessageWithPrefixRoutesToAI(t *testing.T) {
	env := newTestEnv(t, stubProvider{err: &llm.ProviderError{Provider: "stub", Code: llm.ErrCodeServiceDown, Message: "Failed to generate code"}})
	sam := env.dial(t)
	send(t, sam, models.EventJoinRoom, models.JoinRoom{RoomID: "r1", Username: "sam"})
	waitMembers(t, env.hub, "r1", 1)

	send(t, sam, models.EventOpMessage, models.ChatLine{RoomID: "r1", Username: "sam", Message: "@ai do it", Time: "09:05"})

	readData[models.ReceiveMessage](t, sam, models.EventReceiveMessage)
	readData[models.CodeChange](t, sam, models.EventCodeChange)
	failure := readData[models.ReceiveMessage](t, sam, models.EventReceiveMessage)
	assert.Equal(t, models.SystemNotice("AI failed to generate code: Failed to generate code", "09:05"), failure)
	expectSilence(t, sam)
}

func TestLeaveStopsDelivery(t *testing.T) {
	env := newTestEnv(t, stubProvider{text: "x"})
	dave := env.dial(t)
	erin := env.dial(t)
	send(t, dave, models.EventJoinRoom, models.JoinRoom{RoomID: "r1", Username: "dave"})
	waitMembers(t, env.hub, "r1", 1)
	send(t, erin, models.EventJoinRoom, models.JoinRoom{RoomID: "r1", Username: "erin"})
	read(t, dave)
	read(t, dave)

	send(t, dave, models.EventLeaveRoom, models.LeaveRoom{RoomID: "r1", Username: "dave", Time: "09:06"})
	assert.Equal(t, "dave", readData[models.UserRef](t, erin, models.EventUserLeft).Username)
	readData[models.ReceiveMessage](t, erin, models.EventReceiveMessage)

	send(t, erin, models.EventOpMessage, models.ChatLine{RoomID: "r1", Username: "erin", Message: "bye"})
	readData[models.ReceiveMessage](t, erin, models.EventReceiveMessage)
	expectSilence(t, dave)
}

func TestTransportCloseIsImplicitLeave(t *testing.T) {
	env := newTestEnv(t, stubProvider{text: "x"})
	dave := env.dial(t)
	erin := env.dial(t)
	send(t, dave, models.EventJoinRoom, models.JoinRoom{RoomID: "r1", Username: "dave"})
	waitMembers(t, env.hub, "r1", 1)
	send(t, erin, models.EventJoinRoom, models.JoinRoom{RoomID: "r1", Username: "erin"})
	waitMembers(t, env.hub, "r1", 2)

	dave.Close()

	assert.Equal(t, "dave", readData[models.UserRef](t, erin, models.EventUserLeft).Username)
	assert.Equal(t, "dave left the room", readData[models.ReceiveMessage](t, erin, models.EventReceiveMessage).Message)
	waitMembers(t, env.hub, "r1", 1)
	require.Eventually(t, func() bool { return env.hub.Stats().Connections == 1 }, time.Second, 5*time.Millisecond)
}

func TestGatewayErrors(t *testing.T) {
	env := newTestEnv(t, stubProvider{text: "x"})
	conn := env.dial(t)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	assert.Equal(t, models.ErrCodeInvalidFrame, readData[models.ErrorResponse](t, conn, models.EventError).Code)

	send(t, conn, "dance", map[string]string{})
	assert.Equal(t, models.ErrCodeUnknownType, readData[models.ErrorResponse](t, conn, models.EventError).Code)

	send(t, conn, models.EventJoinRoom, models.JoinRoom{Username: "x"})
	assert.Equal(t, models.ErrCodeMissingRoom, readData[models.ErrorResponse](t, conn, models.EventError).Code)

	send(t, conn, models.EventJoinRoom, "wrong shape")
	assert.Equal(t, models.ErrCodeInvalidPayload, readData[models.ErrorResponse](t, conn, models.EventError).Code)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": models.EventJoinRoom}))
	assert.Equal(t, models.ErrCodeInvalidPayload, readData[models.ErrorResponse](t, conn, models.EventError).Code)

	send(t, conn, models.EventOpMessage, models.ChatLine{RoomID: "r1", Username: "x", Message: "hi"})
	assert.Equal(t, models.ErrCodeNotInRoom, readData[models.ErrorResponse](t, conn, models.EventError).Code)

	send(t, conn, models.EventAskAI, models.ChatLine{RoomID: "r1", Username: "x", Message: "@ai hi"})
	assert.Equal(t, models.ErrCodeNotInRoom, readData[models.ErrorResponse](t, conn, models.EventError).Code)

	send(t, conn, models.EventTyping, models.Typing{RoomID: "r1", Username: "x"})
	send(t, conn, models.EventLeaveRoom, models.LeaveRoom{RoomID: "r1", Username: "x"})
	expectSilence(t, conn)

	// the connection survives all of the above
	send(t, conn, models.EventJoinRoom, models.JoinRoom{RoomID: "r1", Username: "x"})
	waitMembers(t, env.hub, "r1", 1)
}

func TestCheckOrigin(t *testing.T) {
	h := NewHandlers(nil, nil, testConfig(), zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "http://api.example.com/ws", nil)
	assert.True(t, h.checkOrigin(req), "no origin header")

	req.Header.Set("Origin", "http://localhost:5173")
	assert.True(t, h.checkOrigin(req))

	req.Header.Set("Origin", "http://api.example.com")
	assert.True(t, h.checkOrigin(req), "same host")

	req.Header.Set("Origin", "http://evil.example.com")
	assert.False(t, h.checkOrigin(req))

	h.origins = []string{"*"}
	assert.True(t, h.checkOrigin(req))
}

func TestServeWSRejectsAfterHubClose(t *testing.T) {
	env := newTestEnv(t, stubProvider{text: "x"})
	env.hub.Close()

	conn := env.dial(t)
	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}

func TestJoinAfterHubCloseSendsErrorFrame(t *testing.T) {
	env := newTestEnv(t, stubProvider{text: "x"})
	h := NewHandlers(env.hub, env.co, testConfig(), zap.NewNop())

	client := session.NewClient("late", nil, testConfig().WebSocket)
	var got []models.WSFrame
	client.SetSendHook(func(frame models.WSFrame) { got = append(got, frame) })
	env.hub.Close()

	h.dispatch(client, []byte(`{"type":"join_room","data":{"roomId":"r1","username":"amy","time":"10:00"}}`))

	require.Len(t, got, 1)
	assert.Equal(t, models.EventError, got[0].Type)
	assert.Equal(t, models.ErrorResponse{Code: models.ErrCodeShuttingDown, Message: "server is shutting down"}, got[0].Data)
	assert.Empty(t, client.Room())
}
