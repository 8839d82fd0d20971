// internal/messaging/routes.go

package messaging

import (
	"net/http"

	"github.com/gorilla/mux"
)

// RegisterRoutes registers the chat REST API behind authMiddleware. The
// websocket endpoint authenticates on its own since browsers cannot set
// headers on an upgrade request.
func RegisterRoutes(router *mux.Router, handler *Handler, ws http.Handler, authMiddleware mux.MiddlewareFunc) {
	router.Handle("/ws", ws).Methods("GET")

	api := router.PathPrefix("/api/v1/chat").Subrouter()
	api.Use(authMiddleware)

	// Conversations
	api.HandleFunc("/conversations", handler.GetConversations).Methods("GET")
	api.HandleFunc("/conversations", handler.CreateConversation).Methods("POST")
	api.HandleFunc("/conversations/{id}/messages", handler.GetMessages).Methods("GET")
	api.HandleFunc("/conversations/{id}/messages", handler.SendMessage).Methods("POST")
	api.HandleFunc("/conversations/{id}/messages", handler.ClearMessages).Methods("DELETE")
	api.HandleFunc("/conversations/{id}/unread-count", handler.GetUnreadCount).Methods("GET")
	api.HandleFunc("/conversations/{id}/archive", handler.ArchiveConversation).Methods("POST")
	api.HandleFunc("/conversations/{id}/unarchive", handler.UnarchiveConversation).Methods("POST")

	// Messages
	api.HandleFunc("/messages/{id}/read", handler.MarkRead).Methods("PUT")
	api.HandleFunc("/messages/{id}", handler.EditMessage).Methods("PUT")
	api.HandleFunc("/messages/{id}", handler.DeleteMessage).Methods("DELETE")

	// Presence
	api.HandleFunc("/users/online", handler.GetOnlineUsers).Methods("GET")
	api.HandleFunc("/users/{id}/presence", handler.GetPresence).Methods("GET")

	// Push tokens
	api.HandleFunc("/push-tokens", handler.RegisterPushToken).Methods("POST")
	api.HandleFunc("/push-tokens/{token}", handler.UnregisterPushToken).Methods("DELETE")
}
