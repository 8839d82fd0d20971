// internal/auth/handlers.go

package auth

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/imadgeboyega/kiekky-chat/internal/common/utils"
)

// Handler holds dependencies for auth endpoints
type Handler struct {
	service    Service
	middleware *Middleware
}

// NewHandler creates a new auth handler
func NewHandler(service Service, middleware *Middleware) *Handler {
	return &Handler{
		service:    service,
		middleware: middleware,
	}
}

// RegisterRoutes registers all auth routes with the router
func (h *Handler) RegisterRoutes(router *mux.Router) {
	auth := router.PathPrefix("/api/v1/auth").Subrouter()

	auth.HandleFunc("/register", h.Register).Methods("POST")
	auth.HandleFunc("/login", h.Login).Methods("POST")

	auth.Handle("/me", h.middleware.Authenticate(http.HandlerFunc(h.Me))).Methods("GET")
}

// Register handles account creation
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.ErrorResponse(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	resp, err := h.service.Register(r.Context(), &req)
	if err != nil {
		utils.AppErrorResponse(w, err)
		return
	}

	utils.SuccessResponse(w, resp, http.StatusCreated)
}

// Login exchanges credentials for an access token
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.ErrorResponse(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	resp, err := h.service.Login(r.Context(), &req)
	if err != nil {
		utils.AppErrorResponse(w, err)
		return
	}

	utils.SuccessResponse(w, resp, http.StatusOK)
}

// Me returns the caller's profile
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	user, err := h.service.GetUserByID(r.Context(), userID)
	if err != nil {
		utils.AppErrorResponse(w, err)
		return
	}

	utils.SuccessResponse(w, map[string]interface{}{"user": user}, http.StatusOK)
}
