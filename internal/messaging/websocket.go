// internal/messaging/websocket.go

package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/rolandconsultnig/ewers-w2-sub002/internal/auth"
	"github.com/rolandconsultnig/ewers-w2-sub002/internal/common/errs"
	"github.com/rolandconsultnig/ewers-w2-sub002/internal/common/utils"
	"github.com/rolandconsultnig/ewers-w2-sub002/internal/logging"
	"github.com/rolandconsultnig/ewers-w2-sub002/internal/realtime"
)

var (
	ErrNotJoined      = errs.New(errs.ErrForbidden, "join the conversation first")
	ErrUnknownFrame   = errs.New(errs.ErrInvalid, "unknown message type")
	ErrMalformedFrame = errs.New(errs.ErrInvalid, "malformed frame")
	ErrMissingConvID  = errs.New(errs.ErrInvalid, "conversation_id is required")
)

// WSError represents a WebSocket error message
type WSError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WSResponse acknowledges a client frame
type WSResponse struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     *WSError        `json:"error,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// WSHandler upgrades connections and dispatches their frames
type WSHandler struct {
	service  *Service
	hub      *realtime.Hub
	presence *realtime.Presence
	typing   *realtime.Typing
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

func NewWSHandler(service *Service, hub *realtime.Hub, presence *realtime.Presence, typing *realtime.Typing, allowedOrigins []string, logger *zap.Logger) *WSHandler {
	logger = logging.OrNop(logger)
	return &WSHandler{
		service:  service,
		hub:      hub,
		presence: presence,
		typing:   typing,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		logger: logger.Named("ws"),
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(a, origin) {
				return true
			}
		}
		return false
	}
}

// HandleWebSocket handles WebSocket connections
func (h *WSHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Int64("user_id", userID), zap.Error(err))
		return
	}

	client := realtime.NewClient(conn, userID, h.logger)
	h.hub.Register(client)
	h.presence.Connect(userID)
	defer func() {
		h.hub.Unregister(client)
		h.presence.Disconnect(userID)
	}()

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()
	client.Serve(ctx, h)
}

// Dispatch handles one client frame and acknowledges it
func (h *WSHandler) Dispatch(ctx context.Context, c *realtime.Client, frame []byte) {
	var msg WSMessage
	if err := json.Unmarshal(frame, &msg); err != nil {
		h.reply(c, WSMessage{Type: "error"}, nil, ErrMalformedFrame)
		return
	}

	data, err := h.handle(ctx, c, msg)
	if err != nil && errs.StatusCode(err) >= http.StatusInternalServerError {
		h.logger.Error("websocket command failed",
			zap.String("type", msg.Type),
			zap.Int64("user_id", c.UserID()),
			zap.Error(err))
	}
	h.reply(c, msg, data, err)
}

func (h *WSHandler) handle(ctx context.Context, c *realtime.Client, msg WSMessage) (interface{}, error) {
	switch WSMessageType(msg.Type) {
	case WSTypeJoin:
		ref, err := decodeRef(msg.Data)
		if err != nil {
			return nil, err
		}
		if err := h.hub.Join(ctx, c, ref.ConversationID); err != nil {
			if errors.Is(err, realtime.ErrNotMember) {
				return nil, ErrNotParticipant
			}
			return nil, err
		}
		return ref, nil

	case WSTypeLeave:
		ref, err := decodeRef(msg.Data)
		if err != nil {
			return nil, err
		}
		h.hub.Leave(c, ref.ConversationID)
		return ref, nil

	case WSTypeTyping, WSTypeStopTyping:
		ref, err := decodeRef(msg.Data)
		if err != nil {
			return nil, err
		}
		if !h.hub.IsJoined(c, ref.ConversationID) {
			return nil, ErrNotJoined
		}
		if WSMessageType(msg.Type) == WSTypeTyping {
			h.typing.Start(ref.ConversationID, c.UserID())
		} else {
			h.typing.Stop(ref.ConversationID, c.UserID())
		}
		return ref, nil

	case WSTypeMessage:
		var req WSSendMessage
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			return nil, ErrMalformedFrame
		}
		if req.ConversationID <= 0 {
			return nil, ErrMissingConvID
		}
		message, err := h.service.SendMessage(ctx, c.UserID(), req.ConversationID, req.Body)
		if err != nil {
			return nil, err
		}
		h.typing.Stop(req.ConversationID, c.UserID())
		return message, nil

	case WSTypeRead:
		ref, err := decodeRef(msg.Data)
		if err != nil {
			return nil, err
		}
		return h.service.MarkRead(ctx, c.UserID(), ref.ConversationID)

	default:
		return nil, ErrUnknownFrame
	}
}

func (h *WSHandler) reply(c *realtime.Client, msg WSMessage, data interface{}, err error) {
	resp := WSResponse{
		Type:      msg.Type,
		RequestID: msg.RequestID,
		Success:   err == nil,
		Timestamp: h.service.now(),
	}
	if err != nil {
		resp.Error = &WSError{Code: errs.Code(err), Message: errs.PublicMessage(err)}
	} else if data != nil {
		payload, mErr := json.Marshal(data)
		if mErr == nil {
			resp.Data = payload
		}
	}

	payload, mErr := json.Marshal(resp)
	if mErr != nil {
		h.logger.Error("marshal websocket response", zap.Error(mErr))
		return
	}
	_ = c.Send(payload)
}

func decodeRef(data json.RawMessage) (WSConversationRef, error) {
	var ref WSConversationRef
	if err := json.Unmarshal(data, &ref); err != nil {
		return ref, ErrMalformedFrame
	}
	if ref.ConversationID <= 0 {
		return ref, ErrMissingConvID
	}
	return ref, nil
}
