package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"coderoom/internal/config"
	"coderoom/internal/metrics"
	"coderoom/internal/models"
	"coderoom/internal/session"
)

// inboundFrame keeps data raw until the event type is known.
type inboundFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Handlers is the websocket gateway between connections and the hub.
type Handlers struct {
	hub         *session.Hub
	coordinator *session.Coordinator
	wsConfig    config.WebSocketConfig
	origins     []string
	upgrader    websocket.Upgrader
	logger      *zap.Logger
}

func NewHandlers(hub *session.Hub, coordinator *session.Coordinator, cfg *config.Config, logger *zap.Logger) *Handlers {
	h := &Handlers{
		hub:         hub,
		coordinator: coordinator,
		wsConfig:    cfg.WebSocket,
		origins:     cfg.ClientURL,
		logger:      logger,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// checkOrigin admits non-browser clients and the configured frontends.
func (h *Handlers) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if strings.EqualFold(u.Host, r.Host) {
		return true
	}
	for _, allowed := range h.origins {
		if allowed == "*" || strings.EqualFold(strings.TrimRight(allowed, "/"), origin) {
			return true
		}
	}
	return false
}

// ServeWS upgrades the request and runs the connection until it closes.
// Closing is an implicit leave.
func (h *Handlers) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := session.NewClient(uuid.NewString(), conn, h.wsConfig)
	logger := h.logger.With(zap.String("conn_id", client.ID))
	if err := h.hub.Register(client); err != nil {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
		conn.Close()
		return
	}
	logger.Debug("connection opened", zap.String("remote_addr", r.RemoteAddr))

	go client.WritePump()

	err = client.ReadPump(func(message []byte) {
		h.dispatch(client, message)
	})
	if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
		logger.Info("connection closed unexpectedly", zap.Error(err))
	}

	h.hub.Disconnect(client)
	logger.Debug("connection closed")
}

func (h *Handlers) dispatch(c *session.Client, raw []byte) {
	var frame inboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil || frame.Type == "" {
		metrics.EventsReceived.WithLabelValues("invalid").Inc()
		h.reject(c, models.ErrCodeInvalidFrame, "frames must be JSON objects with a type")
		return
	}

	switch frame.Type {
	case models.EventJoinRoom:
		var msg models.JoinRoom
		if !h.decode(c, frame, &msg) {
			return
		}
		if err := h.hub.Join(c, msg); err != nil {
			h.logger.Warn("join failed", zap.String("conn_id", c.ID), zap.Error(err))
			h.reject(c, models.ErrCodeShuttingDown, "server is shutting down")
		}

	case models.EventLeaveRoom:
		var msg models.LeaveRoom
		if !h.decode(c, frame, &msg) {
			return
		}
		h.hub.Leave(c, msg)

	case models.EventTyping:
		var msg models.Typing
		if !h.decode(c, frame, &msg) {
			return
		}
		h.hub.Typing(c, msg)

	case models.EventOpMessage:
		var msg models.ChatLine
		if !h.decode(c, frame, &msg) {
			return
		}
		if h.coordinator.Matches(msg.Message) {
			h.relayResult(c, h.coordinator.AskAI(c, msg))
			return
		}
		h.relayResult(c, h.hub.SendMessage(c, msg))

	case models.EventChangingCode:
		var msg models.ChangingCode
		if !h.decode(c, frame, &msg) {
			return
		}
		h.relayResult(c, h.hub.ChangeCode(c, msg))

	case models.EventAskAI:
		var msg models.ChatLine
		if !h.decode(c, frame, &msg) {
			return
		}
		h.relayResult(c, h.coordinator.AskAI(c, msg))

	default:
		metrics.EventsReceived.WithLabelValues("unknown").Inc()
		h.reject(c, models.ErrCodeUnknownType, "unknown event type: "+frame.Type)
	}
}

// decode unmarshals and validates the payload, replying with an error frame
// when either fails. The event is counted once it has a known type.
func (h *Handlers) decode(c *session.Client, frame inboundFrame, out any) bool {
	metrics.EventsReceived.WithLabelValues(frame.Type).Inc()

	if len(frame.Data) == 0 || string(frame.Data) == "null" {
		h.reject(c, models.ErrCodeInvalidPayload, frame.Type+" requires a data object")
		return false
	}
	if err := json.Unmarshal(frame.Data, out); err != nil {
		h.reject(c, models.ErrCodeInvalidPayload, "malformed "+frame.Type+" payload")
		return false
	}

	if v, ok := out.(models.Validator); ok {
		if err := v.Validate(); err != nil {
			var errResp *models.ErrorResponse
			if errors.As(err, &errResp) {
				h.reject(c, errResp.Code, errResp.Message)
			} else {
				h.reject(c, models.ErrCodeInvalidPayload, err.Error())
			}
			return false
		}
	}
	return true
}

func (h *Handlers) relayResult(c *session.Client, err error) {
	switch {
	case err == nil:
	case errors.Is(err, session.ErrNotInRoom):
		h.reject(c, models.ErrCodeNotInRoom, "join a room first")
	default:
		h.logger.Warn("relay failed", zap.String("conn_id", c.ID), zap.Error(err))
	}
}

func (h *Handlers) reject(c *session.Client, code, message string) {
	_ = c.Send(errFrame(code, message))
}

func errFrame(code, message string) models.WSFrame {
	return models.WSFrame{
		Type: models.EventError,
		Data: models.ErrorResponse{Code: code, Message: message},
	}
}
