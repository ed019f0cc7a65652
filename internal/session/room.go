package session

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"coderoom/internal/metrics"
	"coderoom/internal/models"
)

// Room is a broadcast domain. Membership, typing state and every fan-out
// happen under mu, which gives a single order of frames per room.
// Delivery is best-effort and at-most-once.
type Room struct {
	ID string

	mu      sync.Mutex
	clients map[string]*Client
	typing  map[string]*typingState
	evicted bool

	ctx    context.Context
	cancel context.CancelFunc
	// generation admits one ask_ai at a time
	generation *semaphore.Weighted

	clock         clockwork.Clock
	typingTimeout time.Duration
	logger        *zap.Logger
}

func newRoom(parent context.Context, id string, clock clockwork.Clock, typingTimeout time.Duration, logger *zap.Logger) *Room {
	ctx, cancel := context.WithCancel(parent)
	return &Room{
		ID:            id,
		clients:       make(map[string]*Client),
		typing:        make(map[string]*typingState),
		ctx:           ctx,
		cancel:        cancel,
		generation:    semaphore.NewWeighted(1),
		clock:         clock,
		typingTimeout: typingTimeout,
		logger:        logger.With(zap.String("room_id", id)),
	}
}

// Context is cancelled when the room is evicted or the hub shuts down.
func (r *Room) Context() context.Context { return r.ctx }

func (r *Room) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

func (r *Room) Members() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.membersExceptLocked("")
}

func (r *Room) MembersExcept(connID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.membersExceptLocked(connID)
}

func (r *Room) membersExceptLocked(connID string) []string {
	ids := make([]string, 0, len(r.clients))
	for id := range r.clients {
		if id != connID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func (r *Room) has(connID string) bool {
	_, ok := r.clients[connID]
	return ok
}

// Broadcast delivers frames, in order, to every member. No other fan-out in
// the room interleaves with them.
func (r *Room) Broadcast(frames ...models.WSFrame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, frame := range frames {
		r.broadcastLocked("", frame)
	}
}

// BroadcastExcept delivers frame to every member but connID.
func (r *Room) BroadcastExcept(connID string, frame models.WSFrame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.broadcastLocked(connID, frame)
}

// SendTo delivers frame to a single member.
func (r *Room) SendTo(connID string, frame models.WSFrame) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[connID]
	if r.evicted || !ok {
		return ErrNotInRoom
	}
	return r.deliverLocked([]*Client{c}, frame)
}

func (r *Room) broadcastLocked(exceptID string, frame models.WSFrame) {
	if r.evicted {
		return
	}
	targets := make([]*Client, 0, len(r.clients))
	for id, c := range r.clients {
		if id != exceptID {
			targets = append(targets, c)
		}
	}
	r.deliverLocked(targets, frame)
}

// deliverLocked hands frame to each target once. Closed and slow targets are
// skipped; the first such error is returned for callers that care.
func (r *Room) deliverLocked(targets []*Client, frame models.WSFrame) error {
	var firstErr error
	for _, c := range targets {
		err := c.Send(frame)
		switch {
		case err == nil:
			metrics.FramesSent.WithLabelValues(frame.Type).Inc()
			continue
		case errors.Is(err, ErrNotConnected):
			metrics.FramesDropped.WithLabelValues("not_connected").Inc()
		case errors.Is(err, ErrSlowConsumer):
			metrics.FramesDropped.WithLabelValues("slow_consumer").Inc()
			r.logger.Warn("dropping slow connection",
				zap.String("conn_id", c.ID),
				zap.String("event", frame.Type))
		default:
			metrics.FramesDropped.WithLabelValues("encode").Inc()
			r.logger.Error("failed to encode frame", zap.String("event", frame.Type), zap.Error(err))
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// evictLocked cancels the room context and discards typing state.
func (r *Room) evictLocked() {
	if r.evicted {
		return
	}
	r.evicted = true
	r.cancel()
	r.stopAllTypingLocked()
}

func (r *Room) timeLabel() string {
	return r.clock.Now().Format("15:04")
}
