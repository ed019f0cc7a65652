package models

import "strings"

// Validator is implemented by inbound payloads that have required fields.
type Validator interface {
	Validate() error
}

func requireRoomAndUser(roomID, username string) error {
	if strings.TrimSpace(roomID) == "" {
		return &ErrorResponse{Code: ErrCodeMissingRoom, Message: "roomId is required"}
	}
	if strings.TrimSpace(username) == "" {
		return &ErrorResponse{Code: ErrCodeMissingUser, Message: "username is required"}
	}
	return nil
}

func (r *JoinRoom) Validate() error { return requireRoomAndUser(r.RoomID, r.Username) }

// Relay events resolve the room from the connection, so only the author is
// required. Leave and typing payloads are never rejected.

func (r *ChatLine) Validate() error {
	if strings.TrimSpace(r.Username) == "" {
		return &ErrorResponse{Code: ErrCodeMissingUser, Message: "username is required"}
	}
	return nil
}

func (r *ChangingCode) Validate() error {
	if strings.TrimSpace(r.Username) == "" {
		return &ErrorResponse{Code: ErrCodeMissingUser, Message: "username is required"}
	}
	return nil
}
