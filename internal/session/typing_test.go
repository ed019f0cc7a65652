package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coderoom/internal/models"
)

const (
	settle = 50 * time.Millisecond
	tick   = 5 * time.Millisecond
)

func TestTypingDebounce(t *testing.T) {
	hub, clock := newTestHub(t)
	carol, capCarol := newTestClient(t, hub, "carol")
	dan, capDan := newTestClient(t, hub, "dan")
	join(t, hub, carol, "r1", "carol")
	join(t, hub, dan, "r1", "dan")
	capCarol.reset()
	capDan.reset()

	for i := 0; i < 5; i++ {
		hub.Typing(carol, models.Typing{RoomID: "r1", Username: "carol"})
		if i < 4 {
			clock.Advance(500 * time.Millisecond)
		}
	}
	assert.Equal(t, 5, capDan.count(models.EventSomeoneTyping))

	// stale windows armed by the first four events must not fire
	clock.Advance(2999 * time.Millisecond)
	assert.Never(t, func() bool { return capDan.count(models.EventStopTyping) > 0 }, settle, tick)

	clock.Advance(time.Millisecond)
	assert.Eventually(t, func() bool { return capDan.count(models.EventStopTyping) == 1 }, time.Second, tick)

	clock.Advance(10 * time.Second)
	assert.Never(t, func() bool { return capDan.count(models.EventStopTyping) > 1 }, settle, tick)

	assert.Empty(t, capCarol.list(), "the typist sees neither someone_typing nor stop_typing")

	r, _ := hub.Get("r1")
	assert.False(t, r.Typing("carol"))
}

func TestTypingRestartsAfterQuiescence(t *testing.T) {
	hub, clock := newTestHub(t)
	carol, _ := newTestClient(t, hub, "carol")
	dan, capDan := newTestClient(t, hub, "dan")
	join(t, hub, carol, "r1", "carol")
	join(t, hub, dan, "r1", "dan")

	hub.Typing(carol, models.Typing{RoomID: "r1", Username: "carol"})
	clock.Advance(3 * time.Second)
	require.Eventually(t, func() bool { return capDan.count(models.EventStopTyping) == 1 }, time.Second, tick)

	hub.Typing(carol, models.Typing{RoomID: "r1", Username: "carol"})
	clock.Advance(3 * time.Second)
	assert.Eventually(t, func() bool { return capDan.count(models.EventStopTyping) == 2 }, time.Second, tick)
}

func TestTypingStopFramePayload(t *testing.T) {
	hub, clock := newTestHub(t)
	carol, _ := newTestClient(t, hub, "carol")
	dan, capDan := newTestClient(t, hub, "dan")
	join(t, hub, carol, "r1", "carol")
	join(t, hub, dan, "r1", "dan")
	capDan.reset()

	hub.Typing(carol, models.Typing{RoomID: "r1", Username: "carol"})
	clock.Advance(3 * time.Second)

	require.Eventually(t, func() bool { return len(capDan.list()) == 2 }, time.Second, tick)
	assert.Equal(t, []models.WSFrame{
		{Type: models.EventSomeoneTyping, Data: models.UserRef{Username: "carol"}},
		{Type: models.EventStopTyping, Data: models.StopTyping{}},
	}, capDan.list())
}

func TestTypingClearedOnLeave(t *testing.T) {
	hub, clock := newTestHub(t)
	carol, _ := newTestClient(t, hub, "carol")
	dan, capDan := newTestClient(t, hub, "dan")
	join(t, hub, carol, "r1", "carol")
	join(t, hub, dan, "r1", "dan")

	hub.Typing(carol, models.Typing{RoomID: "r1", Username: "carol"})
	hub.Leave(carol, models.LeaveRoom{RoomID: "r1", Username: "carol"})
	assert.Equal(t, 1, capDan.count(models.EventStopTyping))

	r, _ := hub.Get("r1")
	assert.False(t, r.Typing("carol"))

	clock.Advance(5 * time.Second)
	assert.Never(t, func() bool { return capDan.count(models.EventStopTyping) > 1 }, settle, tick)
}

func TestTypingDiscardedOnEviction(t *testing.T) {
	hub, clock := newTestHub(t)
	carol, capCarol := newTestClient(t, hub, "carol")
	join(t, hub, carol, "r1", "carol")

	hub.Typing(carol, models.Typing{RoomID: "r1", Username: "carol"})
	hub.Disconnect(carol)

	clock.Advance(5 * time.Second)
	assert.Never(t, func() bool { return capCarol.count(models.EventStopTyping) > 0 }, settle, tick)
	assert.Equal(t, 0, hub.Rooms())
}
