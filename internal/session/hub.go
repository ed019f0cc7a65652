package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"coderoom/internal/activity"
	"coderoom/internal/metrics"
	"coderoom/internal/models"
)

const defaultTypingTimeout = 3 * time.Second

type Options struct {
	TypingTimeout time.Duration
	Clock         clockwork.Clock
	Logger        *zap.Logger
	Activity      activity.Publisher
}

// Stats is a point-in-time view of the hub.
type Stats struct {
	Rooms       int `json:"rooms"`
	Connections int `json:"connections"`
	Members     int `json:"members"`
	Generating  int `json:"generating"`
}

// Hub owns the room registry and the set of live connections. Lock order is
// Hub.mu before Room.mu before Client.mu.
type Hub struct {
	mu      sync.RWMutex
	rooms   map[string]*Room
	clients map[string]*Client
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc

	generating atomic.Int64

	clock         clockwork.Clock
	typingTimeout time.Duration
	logger        *zap.Logger
	activity      activity.Publisher
}

func NewHub(opts Options) *Hub {
	if opts.TypingTimeout <= 0 {
		opts.TypingTimeout = defaultTypingTimeout
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Activity == nil {
		opts.Activity = activity.NopPublisher{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		rooms:         make(map[string]*Room),
		clients:       make(map[string]*Client),
		ctx:           ctx,
		cancel:        cancel,
		clock:         opts.Clock,
		typingTimeout: opts.TypingTimeout,
		logger:        opts.Logger,
		activity:      opts.Activity,
	}
}

// Register tracks a new connection so that Close can reach it.
func (h *Hub) Register(c *Client) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHubClosed
	}
	h.clients[c.ID] = c
	metrics.ConnectionsActive.Set(float64(len(h.clients)))
	return nil
}

func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.ID]; !ok {
		return
	}
	delete(h.clients, c.ID)
	metrics.ConnectionsActive.Set(float64(len(h.clients)))
}

// Join adds c to the room, creating it if needed, and announces the joiner
// to everyone else. Rejoining is a no-op on membership but announces again.
// A client in a different room leaves it first.
func (h *Hub) Join(c *Client, msg models.JoinRoom) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHubClosed
	}

	if current := c.Room(); current != "" && current != msg.RoomID {
		h.leaveLocked(c, current, c.Username(), "")
	}

	r, ok := h.rooms[msg.RoomID]
	if !ok {
		r = newRoom(h.ctx, msg.RoomID, h.clock, h.typingTimeout, h.logger)
		h.rooms[msg.RoomID] = r
		metrics.RoomsActive.Set(float64(len(h.rooms)))
		h.publish(activity.KindRoomOpened, msg.RoomID, msg.Username, "")
		h.logger.Debug("room created", zap.String("room_id", msg.RoomID))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.clients[c.ID] = c
	c.setMembership(msg.RoomID, msg.Username)

	at := msg.Time
	if at == "" {
		at = r.timeLabel()
	}
	r.broadcastLocked(c.ID, models.WSFrame{
		Type: models.EventNewUserJoined,
		Data: models.UserRef{Username: msg.Username},
	})
	r.broadcastLocked(c.ID, models.WSFrame{
		Type: models.EventReceiveMessage,
		Data: models.SystemNotice(fmt.Sprintf("%s joined the room", msg.Username), at),
	})

	h.publish(activity.KindMemberJoined, msg.RoomID, msg.Username, "")
	return nil
}

// Leave removes c from its room. A roomId naming a room c is not in is a
// no-op, as is leaving when c is in no room.
func (h *Hub) Leave(c *Client, msg models.LeaveRoom) {
	h.mu.Lock()
	defer h.mu.Unlock()

	current := c.Room()
	if current == "" || (msg.RoomID != "" && msg.RoomID != current) {
		return
	}
	username := msg.Username
	if username == "" {
		username = c.Username()
	}
	h.leaveLocked(c, current, username, msg.Time)
}

// Disconnect is the implicit leave performed when the transport closes.
func (h *Hub) Disconnect(c *Client) {
	h.mu.Lock()
	if current := c.Room(); current != "" {
		h.leaveLocked(c, current, c.Username(), "")
	}
	h.mu.Unlock()

	h.Unregister(c)
	c.Close()
}

func (h *Hub) leaveLocked(c *Client, roomID, username, at string) {
	c.setMembership("", "")

	r, ok := h.rooms[roomID]
	if !ok {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.has(c.ID) {
		return
	}
	delete(r.clients, c.ID)
	r.clearTypingLocked(c.ID)
	h.publish(activity.KindMemberLeft, roomID, username, "")

	if len(r.clients) == 0 {
		r.evictLocked()
		delete(h.rooms, roomID)
		metrics.RoomsActive.Set(float64(len(h.rooms)))
		h.publish(activity.KindRoomClosed, roomID, "", "")
		h.logger.Debug("room evicted", zap.String("room_id", roomID))
		return
	}

	if at == "" {
		at = r.timeLabel()
	}
	r.broadcastLocked("", models.WSFrame{
		Type: models.EventUserLeft,
		Data: models.UserRef{Username: username},
	})
	r.broadcastLocked("", models.WSFrame{
		Type: models.EventReceiveMessage,
		Data: models.SystemNotice(fmt.Sprintf("%s left the room", username), at),
	})
}

// Get returns the room with the given id if it has members.
func (h *Hub) Get(roomID string) (*Room, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	r, ok := h.rooms[roomID]
	return r, ok
}

// Members lists the connection ids in a room; unknown rooms are empty.
func (h *Hub) Members(roomID string) []string {
	r, ok := h.Get(roomID)
	if !ok {
		return []string{}
	}
	return r.Members()
}

func (h *Hub) MembersExcept(roomID, connID string) []string {
	r, ok := h.Get(roomID)
	if !ok {
		return []string{}
	}
	return r.MembersExcept(connID)
}

func (h *Hub) Rooms() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	stats := Stats{
		Rooms:       len(h.rooms),
		Connections: len(h.clients),
		Generating:  int(h.generating.Load()),
	}
	for _, r := range h.rooms {
		stats.Members += r.Len()
	}
	return stats
}

// roomOf resolves the room c currently belongs to and locks it. The caller
// must unlock the returned room.
func (h *Hub) roomOf(c *Client) (*Room, error) {
	roomID := c.Room()
	if roomID == "" {
		return nil, ErrNotInRoom
	}
	r, ok := h.Get(roomID)
	if !ok {
		return nil, ErrNotInRoom
	}
	r.mu.Lock()
	if r.evicted || !r.has(c.ID) {
		r.mu.Unlock()
		return nil, ErrNotInRoom
	}
	return r, nil
}

// SendMessage echoes a chat line to every member, sender included.
func (h *Hub) SendMessage(c *Client, msg models.ChatLine) error {
	r, err := h.roomOf(c)
	if err != nil {
		return err
	}
	defer r.mu.Unlock()

	r.broadcastLocked("", models.WSFrame{
		Type: models.EventReceiveMessage,
		Data: models.ReceiveMessage{Username: msg.Username, Message: msg.Message, Time: msg.Time},
	})
	return nil
}

// ChangeCode relays a full code snapshot to the other members and posts a
// system notice to everyone. Last write wins.
func (h *Hub) ChangeCode(c *Client, msg models.ChangingCode) error {
	r, err := h.roomOf(c)
	if err != nil {
		return err
	}
	defer r.mu.Unlock()

	text := fmt.Sprintf("Code Changed by %s", msg.Username)
	at := msg.Time
	if at == "" {
		at = r.timeLabel()
	}
	r.broadcastLocked(c.ID, models.WSFrame{
		Type: models.EventCodeChange,
		Data: models.CodeChange{Code: msg.Code, Message: text},
	})
	r.broadcastLocked("", models.WSFrame{
		Type: models.EventReceiveMessage,
		Data: models.SystemNotice(text, at),
	})
	return nil
}

// Typing announces that username is typing and re-arms its expiry. A client
// outside any room is ignored.
func (h *Hub) Typing(c *Client, msg models.Typing) {
	r, err := h.roomOf(c)
	if err != nil {
		return
	}
	defer r.mu.Unlock()

	username := msg.Username
	if username == "" {
		username = c.Username()
	}
	r.typingLocked(c.ID, username)
}

// Close evicts every room, which cancels in-flight generations and typing
// timers, and closes every connection. Later joins fail with ErrHubClosed.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	h.cancel()

	rooms := h.rooms
	clients := h.clients
	h.rooms = make(map[string]*Room)
	h.clients = make(map[string]*Client)
	metrics.RoomsActive.Set(0)
	metrics.ConnectionsActive.Set(0)
	h.mu.Unlock()

	for _, r := range rooms {
		r.mu.Lock()
		r.evictLocked()
		r.mu.Unlock()
	}
	for _, c := range clients {
		c.Close()
	}
	h.logger.Info("hub closed", zap.Int("rooms", len(rooms)), zap.Int("connections", len(clients)))
}

func (h *Hub) Closed() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.closed
}

func (h *Hub) publish(kind activity.Kind, roomID, username, detail string) {
	h.activity.Publish(activity.Event{
		Kind:     kind,
		RoomID:   roomID,
		Username: username,
		Detail:   detail,
		At:       h.clock.Now().UTC(),
	})
}
