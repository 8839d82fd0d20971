// internal/messaging/handlers.go

package messaging

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/imadgeboyega/kiekky-chat/internal/auth"
	"github.com/imadgeboyega/kiekky-chat/internal/common/utils"
)

type Handler struct {
	service  Service
	sessions *SessionManager
	users    UserDirectory
}

func NewHandler(service Service, sessions *SessionManager, users UserDirectory) *Handler {
	return &Handler{
		service:  service,
		sessions: sessions,
		users:    users,
	}
}

// GetConversations handles GET /chat/conversations
func (h *Handler) GetConversations(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conversations, err := h.service.ListConversations(r.Context(), userID)
	if err != nil {
		utils.AppErrorResponse(w, err)
		return
	}

	utils.SuccessResponse(w, map[string]interface{}{"conversations": conversations}, http.StatusOK)
}

// CreateConversation handles POST /chat/conversations. An existing
// conversation is returned with 200, a new one with 201.
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
	recipientID, err := utils.ParseID(req.RecipientID.String(), "recipientId")
	if err != nil {
		utils.AppErrorResponse(w, err)
		return
	}

	conversation, isNew, err := h.service.CreateOrGetConversation(r.Context(), userID, recipientID)
	if err != nil {
		utils.AppErrorResponse(w, err)
		return
	}

	status := http.StatusOK
	if isNew {
		status = http.StatusCreated
	}
	utils.SuccessResponse(w, map[string]interface{}{
		"conversation": conversation,
		"isNew":        isNew,
	}, status)
}

// GetMessages handles GET /chat/conversations/{id}/messages?page&limit
func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conversationID, err := utils.ParseID(mux.Vars(r)["id"], "conversationId")
	if err != nil {
		utils.AppErrorResponse(w, err)
		return
	}
	page, limit, err := utils.ParsePagination(r)
	if err != nil {
		utils.AppErrorResponse(w, err)
		return
	}

	result, err := h.service.GetMessages(r.Context(), userID, conversationID, page, limit)
	if err != nil {
		utils.AppErrorResponse(w, err)
		return
	}

	utils.SuccessResponse(w, result, http.StatusOK)
}

// SendMessage handles POST /chat/conversations/{id}/messages and fans the
// message out to everyone in the room
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conversationID, err := utils.ParseID(mux.Vars(r)["id"], "conversationId")
	if err != nil {
		utils.AppErrorResponse(w, err)
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.ErrorResponse(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	message, conversation, err := h.service.SendMessage(r.Context(), userID, conversationID, &req)
	if err != nil {
		utils.AppErrorResponse(w, err)
		return
	}
	h.sessions.DeliverMessage(message, conversation)

	utils.SuccessResponse(w, map[string]interface{}{"message": message}, http.StatusCreated)
}

// MarkRead handles PUT /chat/messages/{id}/read
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	messageID, err := utils.ParseID(mux.Vars(r)["id"], "messageId")
	if err != nil {
		utils.AppErrorResponse(w, err)
		return
	}

	result, err := h.service.MarkRead(r.Context(), userID, messageID)
	if err != nil {
		utils.AppErrorResponse(w, err)
		return
	}

	if reader, err := h.users.GetProfile(r.Context(), userID); err == nil {
		h.sessions.DeliverRead(result, reader, "")
	}

	utils.SuccessResponse(w, map[string]interface{}{"message": result.Message}, http.StatusOK)
}

// GetUnreadCount handles GET /chat/conversations/{id}/unread-count
func (h *Handler) GetUnreadCount(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conversationID, err := utils.ParseID(mux.Vars(r)["id"], "conversationId")
	if err != nil {
		utils.AppErrorResponse(w, err)
		return
	}

	count, err := h.service.UnreadCount(r.Context(), userID, conversationID)
	if err != nil {
		utils.AppErrorResponse(w, err)
		return
	}

	utils.SuccessResponse(w, map[string]interface{}{"unreadCount": count}, http.StatusOK)
}

// ClearMessages handles DELETE /chat/conversations/{id}/messages
func (h *Handler) ClearMessages(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conversationID, err := utils.ParseID(mux.Vars(r)["id"], "conversationId")
	if err != nil {
		utils.AppErrorResponse(w, err)
		return
	}

	deleted, err := h.service.ClearMessages(r.Context(), userID, conversationID)
	if err != nil {
		utils.AppErrorResponse(w, err)
		return
	}

	utils.SuccessResponse(w, map[string]interface{}{
		"conversationId": conversationID,
		"deletedCount":   deleted,
	}, http.StatusOK)
}

// EditMessage handles PUT /chat/messages/{id}
func (h *Handler) EditMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	messageID, err := utils.ParseID(mux.Vars(r)["id"], "messageId")
	if err != nil {
		utils.AppErrorResponse(w, err)
		return
	}

	var req EditMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.ErrorResponse(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	message, err := h.service.EditMessage(r.Context(), userID, messageID, req.Content)
	if err != nil {
		utils.AppErrorResponse(w, err)
		return
	}
	h.sessions.DeliverEdit(message)

	utils.SuccessResponse(w, map[string]interface{}{"message": message}, http.StatusOK)
}

// DeleteMessage handles DELETE /chat/messages/{id}
func (h *Handler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	messageID, err := utils.ParseID(mux.Vars(r)["id"], "messageId")
	if err != nil {
		utils.AppErrorResponse(w, err)
		return
	}

	message, err := h.service.DeleteMessage(r.Context(), userID, messageID)
	if err != nil {
		utils.AppErrorResponse(w, err)
		return
	}
	h.sessions.DeliverDelete(message)

	utils.MessageResponse(w, "Message deleted", http.StatusOK)
}

func (h *Handler) ArchiveConversation(w http.ResponseWriter, r *http.Request) {
	h.setArchived(w, r, true)
}

func (h *Handler) UnarchiveConversation(w http.ResponseWriter, r *http.Request) {
	h.setArchived(w, r, false)
}

func (h *Handler) setArchived(w http.ResponseWriter, r *http.Request, archived bool) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conversationID, err := utils.ParseID(mux.Vars(r)["id"], "conversationId")
	if err != nil {
		utils.AppErrorResponse(w, err)
		return
	}

	if err := h.service.SetArchived(r.Context(), userID, conversationID, archived); err != nil {
		utils.AppErrorResponse(w, err)
		return
	}

	utils.SuccessResponse(w, map[string]interface{}{
		"conversationId": conversationID,
		"isArchived":     archived,
	}, http.StatusOK)
}

// GetOnlineUsers handles GET /chat/users/online
func (h *Handler) GetOnlineUsers(w http.ResponseWriter, r *http.Request) {
	entries := h.sessions.Presence().OnlineUsers()
	users := make([]*OnlineUser, 0, len(entries))
	for _, e := range entries {
		users = append(users, &OnlineUser{
			UserID:   e.UserID,
			User:     e.Profile,
			LastSeen: utils.FormatTime(e.LastSeen),
		})
	}

	utils.SuccessResponse(w, map[string]interface{}{"onlineUsers": users}, http.StatusOK)
}

// GetPresence handles GET /chat/users/{id}/presence
func (h *Handler) GetPresence(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.ParseID(mux.Vars(r)["id"], "userId")
	if err != nil {
		utils.AppErrorResponse(w, err)
		return
	}

	presence := h.sessions.Presence()
	data := map[string]interface{}{
		"userId":   userID,
		"isOnline": presence.IsOnline(userID),
	}

	lastSeen, found, err := presence.LastSeen(r.Context(), userID)
	if err != nil {
		utils.AppErrorResponse(w, err)
		return
	}
	if found {
		data["lastSeen"] = utils.FormatTime(lastSeen)
	}

	utils.SuccessResponse(w, data, http.StatusOK)
}

// RegisterPushToken handles POST /chat/push-tokens
func (h *Handler) RegisterPushToken(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req PushTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.ErrorResponse(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.service.RegisterPushToken(r.Context(), userID, &req); err != nil {
		utils.AppErrorResponse(w, err)
		return
	}

	utils.MessageResponse(w, "Push token registered", http.StatusCreated)
}

// UnregisterPushToken handles DELETE /chat/push-tokens/{token}
func (h *Handler) UnregisterPushToken(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if err := h.service.UnregisterPushToken(r.Context(), userID, mux.Vars(r)["token"]); err != nil {
		utils.AppErrorResponse(w, err)
		return
	}

	utils.MessageResponse(w, "Push token removed", http.StatusOK)
}
