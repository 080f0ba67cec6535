// internal/calls/handlers.go

package calls

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/rolandconsultnig/ewers-w2-sub002/internal/auth"
	"github.com/rolandconsultnig/ewers-w2-sub002/internal/common/utils"
)

type Handler struct {
	service      *Service
	guestLimiter *utils.RateLimiter
}

// NewHandler creates the call handlers. guestLimiter throttles the public
// guest endpoints per client IP and may be nil.
func NewHandler(service *Service, guestLimiter *utils.RateLimiter) *Handler {
	return &Handler{
		service:      service,
		guestLimiter: guestLimiter,
	}
}

// CreateCall starts a new call
func (h *Handler) CreateCall(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req CreateCallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.ErrorResponse(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	call, err := h.service.Create(r.Context(), caller, &req)
	if err != nil {
		utils.DomainErrorResponse(w, err)
		return
	}

	utils.SuccessResponse(w, call, http.StatusCreated)
}

// GetCall returns a call with its participants
func (h *Handler) GetCall(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	callID, err := parseCallID(r)
	if err != nil {
		utils.ErrorResponse(w, "Invalid call ID", http.StatusBadRequest)
		return
	}

	call, err := h.service.Get(r.Context(), caller, callID)
	if err != nil {
		utils.DomainErrorResponse(w, err)
		return
	}

	utils.SuccessResponse(w, call, http.StatusOK)
}

// JoinCall adds the caller to an active call
func (h *Handler) JoinCall(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	callID, err := parseCallID(r)
	if err != nil {
		utils.ErrorResponse(w, "Invalid call ID", http.StatusBadRequest)
		return
	}

	participant, err := h.service.JoinAuthenticated(r.Context(), callID, userID)
	if err != nil {
		utils.DomainErrorResponse(w, err)
		return
	}

	utils.SuccessResponse(w, participant, http.StatusOK)
}

// LeaveCall marks the caller as left
func (h *Handler) LeaveCall(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	callID, err := parseCallID(r)
	if err != nil {
		utils.ErrorResponse(w, "Invalid call ID", http.StatusBadRequest)
		return
	}

	participant, err := h.service.LeaveAuthenticated(r.Context(), callID, userID)
	if err != nil {
		utils.DomainErrorResponse(w, err)
		return
	}

	utils.SuccessResponse(w, participant, http.StatusOK)
}

// EndCall ends a call for everyone
func (h *Handler) EndCall(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	callID, err := parseCallID(r)
	if err != nil {
		utils.ErrorResponse(w, "Invalid call ID", http.StatusBadRequest)
		return
	}

	call, err := h.service.End(r.Context(), caller, callID)
	if err != nil {
		utils.DomainErrorResponse(w, err)
		return
	}

	utils.SuccessResponse(w, call, http.StatusOK)
}

// RequestGuestAccess admits an unauthenticated guest (public)
func (h *Handler) RequestGuestAccess(w http.ResponseWriter, r *http.Request) {
	if !h.allowGuest(r) {
		guestRejections.WithLabelValues("rate_limited").Inc()
		utils.ErrorResponse(w, "Too many requests", http.StatusTooManyRequests)
		return
	}

	callID, err := parseCallID(r)
	if err != nil {
		utils.ErrorResponse(w, "Invalid call ID", http.StatusBadRequest)
		return
	}

	var req GuestAccessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.ErrorResponse(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	access, err := h.service.RequestGuestAccess(r.Context(), callID, req.DisplayName)
	if err != nil {
		utils.DomainErrorResponse(w, err)
		return
	}

	utils.SuccessResponse(w, access, http.StatusCreated)
}

// LeaveGuest marks a guest as left (public, authorized by the guest token).
// The token is read from the body or an "Authorization: Bearer" header.
func (h *Handler) LeaveGuest(w http.ResponseWriter, r *http.Request) {
	if !h.allowGuest(r) {
		guestRejections.WithLabelValues("rate_limited").Inc()
		utils.ErrorResponse(w, "Too many requests", http.StatusTooManyRequests)
		return
	}

	callID, err := parseCallID(r)
	if err != nil {
		utils.ErrorResponse(w, "Invalid call ID", http.StatusBadRequest)
		return
	}

	var req GuestLeaveRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			utils.ErrorResponse(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}
	if req.Token == "" {
		req.Token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}
	if req.Token == "" {
		utils.ErrorResponse(w, "Missing guest token", http.StatusUnauthorized)
		return
	}

	participant, err := h.service.LeaveGuest(r.Context(), callID, req.Token)
	if err != nil {
		utils.DomainErrorResponse(w, err)
		return
	}

	utils.SuccessResponse(w, participant, http.StatusOK)
}

func (h *Handler) allowGuest(r *http.Request) bool {
	if h.guestLimiter == nil {
		return true
	}
	return h.guestLimiter.Allow(clientIP(r))
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func parseCallID(r *http.Request) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
}
