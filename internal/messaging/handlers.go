// internal/messaging/handlers.go

package messaging

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/rolandconsultnig/ewers-w2-sub002/internal/auth"
	"github.com/rolandconsultnig/ewers-w2-sub002/internal/common/utils"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// CreateConversation creates a new conversation
func (h *Handler) CreateConversation(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req CreateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.ErrorResponse(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	conversation, err := h.service.CreateConversation(r.Context(), userID, &req)
	if err != nil {
		utils.DomainErrorResponse(w, err)
		return
	}

	utils.SuccessResponse(w, conversation, http.StatusCreated)
}

// GetConversations gets the caller's conversations
func (h *Handler) GetConversations(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conversations, err := h.service.ListConversations(r.Context(), userID)
	if err != nil {
		utils.DomainErrorResponse(w, err)
		return
	}

	utils.SuccessResponse(w, conversations, http.StatusOK)
}

// GetConversation gets a single conversation with its participants
func (h *Handler) GetConversation(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conversationID, err := parseID(r, "id")
	if err != nil {
		utils.ErrorResponse(w, "Invalid conversation ID", http.StatusBadRequest)
		return
	}

	conversation, err := h.service.GetConversation(r.Context(), userID, conversationID)
	if err != nil {
		utils.DomainErrorResponse(w, err)
		return
	}

	utils.SuccessResponse(w, conversation, http.StatusOK)
}

// AddParticipant adds a member to a conversation
func (h *Handler) AddParticipant(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conversationID, err := parseID(r, "id")
	if err != nil {
		utils.ErrorResponse(w, "Invalid conversation ID", http.StatusBadRequest)
		return
	}

	var req AddParticipantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.ErrorResponse(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		utils.DomainErrorResponse(w, err)
		return
	}

	participant, err := h.service.AddParticipant(r.Context(), userID, conversationID, req.UserID)
	if err != nil {
		utils.DomainErrorResponse(w, err)
		return
	}

	utils.SuccessResponse(w, participant, http.StatusOK)
}

// MarkRead marks the conversation read up to now
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conversationID, err := parseID(r, "id")
	if err != nil {
		utils.ErrorResponse(w, "Invalid conversation ID", http.StatusBadRequest)
		return
	}

	participant, err := h.service.MarkRead(r.Context(), userID, conversationID)
	if err != nil {
		utils.DomainErrorResponse(w, err)
		return
	}

	utils.SuccessResponse(w, participant, http.StatusOK)
}

// GetUnreadCount returns the caller's unread count
func (h *Handler) GetUnreadCount(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conversationID, err := parseID(r, "id")
	if err != nil {
		utils.ErrorResponse(w, "Invalid conversation ID", http.StatusBadRequest)
		return
	}

	unread, err := h.service.UnreadCount(r.Context(), userID, conversationID)
	if err != nil {
		utils.DomainErrorResponse(w, err)
		return
	}

	utils.SuccessResponse(w, unread, http.StatusOK)
}

// GetMessages gets a page of conversation messages
func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conversationID, err := parseID(r, "id")
	if err != nil {
		utils.ErrorResponse(w, "Invalid conversation ID", http.StatusBadRequest)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	var beforeID int64
	if before := r.URL.Query().Get("before"); before != "" {
		beforeID, err = strconv.ParseInt(before, 10, 64)
		if err != nil || beforeID <= 0 {
			utils.ErrorResponse(w, "Invalid before cursor", http.StatusBadRequest)
			return
		}
	}

	messages, err := h.service.ListMessages(r.Context(), userID, conversationID, limit, beforeID)
	if err != nil {
		utils.DomainErrorResponse(w, err)
		return
	}

	utils.SuccessResponse(w, messages, http.StatusOK)
}

// SendMessage posts a message to a conversation
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conversationID, err := parseID(r, "id")
	if err != nil {
		utils.ErrorResponse(w, "Invalid conversation ID", http.StatusBadRequest)
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.ErrorResponse(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	message, err := h.service.SendMessage(r.Context(), userID, conversationID, req.Body)
	if err != nil {
		utils.DomainErrorResponse(w, err)
		return
	}

	utils.SuccessResponse(w, message, http.StatusCreated)
}

// EditMessage edits the caller's own message
func (h *Handler) EditMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	messageID, err := parseID(r, "id")
	if err != nil {
		utils.ErrorResponse(w, "Invalid message ID", http.StatusBadRequest)
		return
	}

	var req EditMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.ErrorResponse(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	message, err := h.service.EditMessage(r.Context(), userID, messageID, req.Body)
	if err != nil {
		utils.DomainErrorResponse(w, err)
		return
	}

	utils.SuccessResponse(w, message, http.StatusOK)
}

// DeleteMessage soft-deletes the caller's own message
func (h *Handler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	messageID, err := parseID(r, "id")
	if err != nil {
		utils.ErrorResponse(w, "Invalid message ID", http.StatusBadRequest)
		return
	}

	message, err := h.service.DeleteMessage(r.Context(), userID, messageID)
	if err != nil {
		utils.DomainErrorResponse(w, err)
		return
	}

	utils.SuccessResponse(w, message, http.StatusOK)
}

func parseID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)[name], 10, 64)
}
