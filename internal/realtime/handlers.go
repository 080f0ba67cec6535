// internal/realtime/handlers.go

package realtime

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/rolandconsultnig/ewers-w2-sub002/internal/common/utils"
)

// UserPresence is the REST view of one user's status
type UserPresence struct {
	UserID int64  `json:"user_id"`
	Status string `json:"status"`
}

// OnlineUsers lists everyone currently online
type OnlineUsers struct {
	UserIDs []int64 `json:"user_ids"`
	Count   int     `json:"count"`
}

type PresenceHandler struct {
	presence *Presence
}

func NewPresenceHandler(presence *Presence) *PresenceHandler {
	return &PresenceHandler{presence: presence}
}

// ListOnline returns the ids of online users
func (h *PresenceHandler) ListOnline(w http.ResponseWriter, r *http.Request) {
	ids := h.presence.ListOnline()
	utils.SuccessResponse(w, OnlineUsers{UserIDs: ids, Count: len(ids)}, http.StatusOK)
}

// GetUserPresence returns one user's status
func (h *PresenceHandler) GetUserPresence(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(mux.Vars(r)["userId"], 10, 64)
	if err != nil {
		utils.ErrorResponse(w, "Invalid user ID", http.StatusBadRequest)
		return
	}

	status := StatusOffline
	if h.presence.IsOnline(userID) {
		status = StatusOnline
	}
	utils.SuccessResponse(w, UserPresence{UserID: userID, Status: status}, http.StatusOK)
}

// RegisterPresenceRoutes registers the presence query routes behind authMiddleware
func RegisterPresenceRoutes(router *mux.Router, handler *PresenceHandler, authMiddleware mux.MiddlewareFunc) {
	api := router.PathPrefix("/api/v1/presence").Subrouter()
	api.Use(authMiddleware)

	api.HandleFunc("", handler.ListOnline).Methods("GET")
	api.HandleFunc("/{userId:[0-9]+}", handler.GetUserPresence).Methods("GET")
}
