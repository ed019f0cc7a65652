package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"coderoom/internal/generationlog"
	"coderoom/internal/utils"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// RoomHistory lists recorded generations for a room, newest first.
type RoomHistory interface {
	ListByRoom(ctx context.Context, roomID string, limit int) ([]generationlog.Record, error)
}

type GenerationsResponse struct {
	RoomID      string                 `json:"room_id"`
	Generations []generationlog.Record `json:"generations"`
}

type GenerationsHandler struct {
	history RoomHistory
	logger  *zap.Logger
}

func NewGenerationsHandler(history RoomHistory, logger *zap.Logger) *GenerationsHandler {
	return &GenerationsHandler{history: history, logger: logger}
}

// ListHandler handles GET /api/v1/rooms/{roomID}/generations?limit=N
func (gh *GenerationsHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			utils.JSON(w, http.StatusBadRequest, map[string]string{
				"code":    "invalid_limit",
				"message": "limit must be a positive integer",
			})
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	records, err := gh.history.ListByRoom(r.Context(), roomID, limit)
	if err != nil {
		gh.logger.Error("failed to list generations", zap.String("room_id", roomID), zap.Error(err))
		utils.JSON(w, http.StatusInternalServerError, map[string]string{
			"code":    "internal_error",
			"message": "failed to list generations",
		})
		return
	}
	if records == nil {
		records = []generationlog.Record{}
	}

	utils.JSON(w, http.StatusOK, GenerationsResponse{RoomID: roomID, Generations: records})
}
