// internal/friends/routes.go

package friends

import "github.com/gorilla/mux"

// RegisterRoutes registers all friend routes behind authMiddleware
func RegisterRoutes(router *mux.Router, handler *Handler, authMiddleware mux.MiddlewareFunc) {
	api := router.PathPrefix("/api/v1/friends").Subrouter()
	api.Use(authMiddleware)

	api.HandleFunc("", handler.ListFriends).Methods("GET")
	api.HandleFunc("/requests", handler.SendRequest).Methods("POST")
	api.HandleFunc("/requests", handler.ListRequests).Methods("GET")
	api.HandleFunc("/requests/{id}/accept", handler.AcceptRequest).Methods("POST")
	api.HandleFunc("/requests/{id}/reject", handler.RejectRequest).Methods("POST")
	api.HandleFunc("/block/{userId}", handler.BlockUser).Methods("POST")
	api.HandleFunc("/status/{userId}", handler.GetStatus).Methods("GET")
	api.HandleFunc("/suggestions", handler.GetSuggestions).Methods("GET")
	api.HandleFunc("/{friendId}", handler.RemoveFriend).Methods("DELETE")
}
