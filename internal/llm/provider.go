package llm

import (
	"context"
	"time"
)

// Request is a single code generation call.
type Request struct {
	RequestID         string
	Prompt            string
	SystemInstruction string
	Temperature       *float32
}

// Response is the generated text and call metadata.
type Response struct {
	Text           string
	RequestID      string
	Provider       string
	Model          string
	ProcessingTime time.Duration
}

// defines the interface for LLM providers
type Provider interface {
	GenerateCode(ctx context.Context, req *Request) (*Response, error)
	GetProviderName() string
}

// represents an error from an LLM provider
type ProviderError struct {
	Provider string
	Code     string
	Message  string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return e.Provider + " error: " + e.Message + " (" + e.Err.Error() + ")"
	}
	return e.Provider + " error: " + e.Message
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Common error codes
// For current and future use across different providers
const (
	ErrCodeAPIKey       = "invalid_api_key"
	ErrCodeRateLimit    = "rate_limit_exceeded"
	ErrCodeServiceDown  = "service_unavailable"
	ErrCodeInvalidInput = "invalid_input"
	ErrCodeTimeout      = "timeout"
	ErrCodeCancelled    = "cancelled"
)
