package generationlog

import (
	"time"

	"gorm.io/gorm"
)

type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusTimedOut  Status = "timed_out"
	StatusCancelled Status = "cancelled"
)

// Record is one generation request made on behalf of a room.
// Prompt and generated code are never stored, only their sizes.
type Record struct {
	gorm.Model
	RequestID   string    `gorm:"uniqueIndex;not null" json:"request_id"`
	RoomID      string    `gorm:"index;not null" json:"room_id"`
	Username    string    `gorm:"not null" json:"username"`
	PromptChars int       `gorm:"not null" json:"prompt_chars"`
	OutputChars int       `gorm:"not null;default:0" json:"output_chars"`
	Provider    string    `json:"provider"`
	LLMModel    string    `gorm:"column:model" json:"model"`
	DurationMS  int64     `gorm:"column:duration_ms" json:"duration_ms"`
	Status      Status    `gorm:"index;not null" json:"status"`
	Error       string    `gorm:"type:text" json:"error,omitempty"`
	RequestedAt time.Time `gorm:"index;not null" json:"requested_at"`
}

func (Record) TableName() string {
	return "generation_records"
}
