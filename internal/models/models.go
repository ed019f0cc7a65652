package models

// Inbound event names.
const (
	EventJoinRoom     = "join_room"
	EventLeaveRoom    = "leave_room"
	EventTyping       = "typing"
	EventOpMessage    = "op_message"
	EventChangingCode = "changing_code"
	EventAskAI        = "ask_ai"
)

// Outbound event names.
const (
	EventNewUserJoined  = "new_user_joined"
	EventUserLeft       = "user_left"
	EventReceiveMessage = "receive_message"
	EventCodeChange     = "code_change"
	EventSomeoneTyping  = "someone_typing"
	EventStopTyping     = "stop_typing"
	EventError          = "error"
)

// SystemUsername is the author of hub-generated chat notices.
const SystemUsername = "System"

const (
	PlaceholderCode      = "..."
	MessageAIGenerating  = "AI Generating Code.."
	MessageCodeChangedAI = "Code Changed by AI"
)

// WSFrame is the envelope of every outbound websocket message.
type WSFrame struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

/*** Inbound payloads ***/

type JoinRoom struct {
	RoomID   string `json:"roomId"`
	Username string `json:"username"`
	Time     string `json:"time"`
}

type LeaveRoom struct {
	RoomID   string `json:"roomId"`
	Username string `json:"username"`
	Time     string `json:"time"`
}

type Typing struct {
	RoomID   string `json:"roomId"`
	Username string `json:"username"`
}

// ChatLine carries both op_message and ask_ai.
type ChatLine struct {
	RoomID   string `json:"roomId"`
	Username string `json:"username"`
	Message  string `json:"message"`
	Time     string `json:"time"`
}

type ChangingCode struct {
	RoomID   string `json:"roomId"`
	Username string `json:"username"`
	Code     string `json:"code"`
	Time     string `json:"time"`
}

/*** Outbound payloads ***/

// UserRef is the payload of new_user_joined, user_left and someone_typing.
type UserRef struct {
	Username string `json:"username"`
}

type ReceiveMessage struct {
	Username string `json:"username"`
	Message  string `json:"message"`
	Time     string `json:"time"`
}

type CodeChange struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// StopTyping has no fields; it marshals to {}.
type StopTyping struct{}

// SystemNotice builds a chat line authored by the hub itself.
func SystemNotice(message, at string) ReceiveMessage {
	return ReceiveMessage{Username: SystemUsername, Message: message, Time: at}
}
