// internal/friends/handlers.go

package friends

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/imadgeboyega/kiekky-chat/internal/auth"
	"github.com/imadgeboyega/kiekky-chat/internal/common/apperror"
	"github.com/imadgeboyega/kiekky-chat/internal/common/utils"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// SendRequest handles POST /friends/requests
func (h *Handler) SendRequest(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req SendRequestBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.ErrorResponse(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		utils.ErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	friendship, err := h.service.SendRequest(r.Context(), userID, req.ReceiverID)
	if err != nil {
		utils.AppErrorResponse(w, err)
		return
	}

	utils.SuccessResponse(w, map[string]interface{}{"friendship": friendship}, http.StatusCreated)
}

// AcceptRequest handles POST /friends/requests/{id}/accept
func (h *Handler) AcceptRequest(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.service.Accept)
}

// RejectRequest handles POST /friends/requests/{id}/reject
func (h *Handler) RejectRequest(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.service.Reject)
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, answer func(ctx context.Context, userID, requestID int64) (*Friendship, error)) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	requestID, err := utils.ParseID(mux.Vars(r)["id"], "requestId")
	if err != nil {
		utils.AppErrorResponse(w, err)
		return
	}

	friendship, err := answer(r.Context(), userID, requestID)
	if err != nil {
		utils.AppErrorResponse(w, err)
		return
	}

	utils.SuccessResponse(w, map[string]interface{}{"friendship": friendship}, http.StatusOK)
}

// BlockUser handles POST /friends/block/{userId}
func (h *Handler) BlockUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	targetID, err := utils.ParseID(mux.Vars(r)["userId"], "userId")
	if err != nil {
		utils.AppErrorResponse(w, err)
		return
	}

	friendship, err := h.service.Block(r.Context(), userID, targetID)
	if err != nil {
		utils.AppErrorResponse(w, err)
		return
	}

	utils.SuccessResponse(w, map[string]interface{}{"friendship": friendship}, http.StatusOK)
}

// RemoveFriend handles DELETE /friends/{friendId}
func (h *Handler) RemoveFriend(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	friendID, err := utils.ParseID(mux.Vars(r)["friendId"], "friendId")
	if err != nil {
		utils.AppErrorResponse(w, err)
		return
	}

	if err := h.service.Remove(r.Context(), userID, friendID); err != nil {
		utils.AppErrorResponse(w, err)
		return
	}

	utils.MessageResponse(w, "Friend removed", http.StatusOK)
}

// ListFriends handles GET /friends
func (h *Handler) ListFriends(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	page, limit, err := utils.ParsePagination(r)
	if err != nil {
		utils.AppErrorResponse(w, err)
		return
	}

	list, err := h.service.ListFriends(r.Context(), userID, page, limit)
	if err != nil {
		utils.AppErrorResponse(w, err)
		return
	}

	utils.SuccessResponse(w, list, http.StatusOK)
}

// ListRequests handles GET /friends/requests?type=received|sent|both
func (h *Handler) ListRequests(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	requests, err := h.service.ListRequests(r.Context(), userID, RequestFilter(r.URL.Query().Get("type")))
	if err != nil {
		utils.AppErrorResponse(w, err)
		return
	}

	utils.SuccessResponse(w, map[string]interface{}{"requests": requests}, http.StatusOK)
}

// GetStatus handles GET /friends/status/{userId}
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	otherID, err := utils.ParseID(mux.Vars(r)["userId"], "userId")
	if err != nil {
		utils.AppErrorResponse(w, err)
		return
	}

	status, err := h.service.FriendshipStatus(r.Context(), userID, otherID)
	if err != nil {
		utils.AppErrorResponse(w, err)
		return
	}

	utils.SuccessResponse(w, map[string]interface{}{"userId": otherID, "status": status}, http.StatusOK)
}

// GetSuggestions handles GET /friends/suggestions?limit=n
func (h *Handler) GetSuggestions(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	limit := DefaultSuggestionLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			utils.AppErrorResponse(w, apperror.Validation("INVALID_LIMIT", "limit must be a positive integer"))
			return
		}
		limit = n
	}

	suggestions, err := h.service.Suggestions(r.Context(), userID, limit)
	if err != nil {
		utils.AppErrorResponse(w, err)
		return
	}

	utils.SuccessResponse(w, map[string]interface{}{
		"suggestions": suggestions,
		"count":       len(suggestions),
	}, http.StatusOK)
}
