package session

import (
	"github.com/jonboulle/clockwork"

	"coderoom/internal/models"
)

// typingState is the Typing state of one (room, username). Absence from
// Room.typing is Idle.
type typingState struct {
	timer      clockwork.Timer
	generation uint64
	// connection that typed last; it is not sent the stop_typing
	connID string
}

// typingLocked announces someone_typing and replaces any pending expiry with
// a fresh window.
func (r *Room) typingLocked(connID, username string) {
	r.broadcastLocked(connID, models.WSFrame{
		Type: models.EventSomeoneTyping,
		Data: models.UserRef{Username: username},
	})

	st, ok := r.typing[username]
	if !ok {
		st = &typingState{}
		r.typing[username] = st
	} else if st.timer != nil {
		st.timer.Stop()
	}
	st.generation++
	st.connID = connID

	generation := st.generation
	st.timer = r.clock.AfterFunc(r.typingTimeout, func() {
		r.expireTyping(username, generation)
	})
}

func (r *Room) expireTyping(username string, generation uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.typing[username]
	// a newer keystroke re-armed the window, or the state was cleared
	if !ok || st.generation != generation || r.evicted {
		return
	}
	delete(r.typing, username)
	r.broadcastLocked(st.connID, models.WSFrame{Type: models.EventStopTyping, Data: models.StopTyping{}})
}

// clearTypingLocked ends every typing episode owned by connID and tells the
// others it stopped.
func (r *Room) clearTypingLocked(connID string) {
	for username, st := range r.typing {
		if st.connID != connID {
			continue
		}
		st.timer.Stop()
		delete(r.typing, username)
		r.broadcastLocked(connID, models.WSFrame{Type: models.EventStopTyping, Data: models.StopTyping{}})
	}
}

func (r *Room) stopAllTypingLocked() {
	for username, st := range r.typing {
		st.timer.Stop()
		delete(r.typing, username)
	}
}

// Typing reports whether username has an active typing window.
func (r *Room) Typing(username string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.typing[username]
	return ok
}
