package api

import (
	"net/http"

	"coderoom/internal/llm"
	"coderoom/internal/session"
	"coderoom/internal/utils"
)

const serviceName = "coderoom"

type ReadinessCheck struct {
	Status  string `json:"status"` // "ok" | "failed"
	Message string `json:"message,omitempty"`
}

type ReadinessResponse struct {
	Status  string                    `json:"status"` // "ready" | "not_ready"
	Service string                    `json:"service"`
	Checks  map[string]ReadinessCheck `json:"checks"`
	Hub     *session.Stats            `json:"hub,omitempty"`
}

// PromptSource reports which prompt templates are loaded.
type PromptSource interface {
	Modes() []string
}

type HealthHandler struct {
	provider llm.Provider
	prompts  PromptSource
	hub      *session.Hub
}

func NewHealthHandler(provider llm.Provider, prompts PromptSource, hub *session.Hub) *HealthHandler {
	return &HealthHandler{
		provider: provider,
		prompts:  prompts,
		hub:      hub,
	}
}

func (handler *HealthHandler) HealthzHandler(writer http.ResponseWriter, request *http.Request) {
	utils.JSON(writer, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": serviceName,
	})
}

func (handler *HealthHandler) ReadyzHandler(writer http.ResponseWriter, request *http.Request) {
	checks := make(map[string]ReadinessCheck)
	allChecksPass := true

	fail := func(name, message string) {
		checks[name] = ReadinessCheck{Status: "failed", Message: message}
		allChecksPass = false
	}

	if handler.provider == nil {
		fail("provider", "AI provider not initialized")
	} else {
		checks["provider"] = ReadinessCheck{Status: "ok", Message: handler.provider.GetProviderName()}
	}

	if handler.prompts == nil {
		fail("prompt_manager", "Prompt manager not initialized")
	} else if len(handler.prompts.Modes()) == 0 {
		fail("prompt_manager", "No prompt templates loaded")
	} else {
		checks["prompt_manager"] = ReadinessCheck{Status: "ok"}
	}

	response := ReadinessResponse{Service: serviceName, Checks: checks}

	switch {
	case handler.hub == nil:
		fail("hub", "Hub not initialized")
	case handler.hub.Closed():
		fail("hub", "Hub is shutting down")
	default:
		checks["hub"] = ReadinessCheck{Status: "ok"}
		stats := handler.hub.Stats()
		response.Hub = &stats
	}

	if allChecksPass {
		response.Status = "ready"
		utils.JSON(writer, http.StatusOK, response)
	} else {
		response.Status = "not_ready"
		utils.JSON(writer, http.StatusServiceUnavailable, response)
	}
}
