package activity

import "time"

type Kind string

const (
	KindRoomOpened         Kind = "room_opened"
	KindRoomClosed         Kind = "room_closed"
	KindMemberJoined       Kind = "member_joined"
	KindMemberLeft         Kind = "member_left"
	KindGenerationFinished Kind = "generation_finished"
)

// Event is one entry of the room activity feed.
type Event struct {
	Kind     Kind      `json:"kind"`
	RoomID   string    `json:"room_id"`
	Username string    `json:"username,omitempty"`
	Detail   string    `json:"detail,omitempty"`
	At       time.Time `json:"at"`
}

// Publisher accepts activity events. Publish must not block the caller.
type Publisher interface {
	Publish(Event)
	Close() error
}

// NopPublisher discards every event.
type NopPublisher struct{}

func (NopPublisher) Publish(Event) {}

func (NopPublisher) Close() error { return nil }
