// internal/messaging/routes.go

package messaging

import (
	"net/http"

	"github.com/gorilla/mux"
)

// RegisterRoutes registers all messaging routes behind authMiddleware
func RegisterRoutes(router *mux.Router, handler *Handler, ws *WSHandler, authMiddleware mux.MiddlewareFunc) {
	// WebSocket endpoint - requires authentication
	router.Handle("/ws", authMiddleware(http.HandlerFunc(ws.HandleWebSocket))).Methods("GET")

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(authMiddleware)

	// Conversation endpoints
	api.HandleFunc("/conversations", handler.GetConversations).Methods("GET")
	api.HandleFunc("/conversations", handler.CreateConversation).Methods("POST")
	api.HandleFunc("/conversations/{id:[0-9]+}", handler.GetConversation).Methods("GET")
	api.HandleFunc("/conversations/{id:[0-9]+}/participants", handler.AddParticipant).Methods("POST")
	api.HandleFunc("/conversations/{id:[0-9]+}/read", handler.MarkRead).Methods("POST")
	api.HandleFunc("/conversations/{id:[0-9]+}/unread", handler.GetUnreadCount).Methods("GET")

	// Message endpoints
	api.HandleFunc("/conversations/{id:[0-9]+}/messages", handler.GetMessages).Methods("GET")
	api.HandleFunc("/conversations/{id:[0-9]+}/messages", handler.SendMessage).Methods("POST")
	api.HandleFunc("/messages/{id:[0-9]+}", handler.EditMessage).Methods("PUT", "PATCH")
	api.HandleFunc("/messages/{id:[0-9]+}", handler.DeleteMessage).Methods("DELETE")
}
