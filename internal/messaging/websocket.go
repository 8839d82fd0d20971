// internal/messaging/websocket.go

package messaging

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/imadgeboyega/kiekky-chat/internal/common/utils"
)

// WebSocketHandler upgrades authenticated requests into realtime sessions
type WebSocketHandler struct {
	manager    *SessionManager
	upgrader   websocket.Upgrader
	sendBuffer int
	logger     *zap.Logger
}

// NewWebSocketHandler accepts any origin when allowedOrigins is empty
func NewWebSocketHandler(manager *SessionManager, allowedOrigins []string, sendBuffer int, logger *zap.Logger) *WebSocketHandler {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[strings.TrimRight(strings.ToLower(origin), "/")] = struct{}{}
	}

	return &WebSocketHandler{
		manager:    manager,
		sendBuffer: sendBuffer,
		logger:     logger.Named("websocket"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if len(allowed) == 0 {
					return true
				}
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				_, ok := allowed[strings.TrimRight(strings.ToLower(origin), "/")]
				return ok
			},
		},
	}
}

// ServeHTTP authenticates before upgrading; a bad credential gets a plain
// 401 and no session is created
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	profile, err := h.manager.Authenticate(r)
	if err != nil {
		utils.AppErrorResponse(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader has already written the error response
		h.logger.Warn("websocket upgrade failed", zap.Int64("user_id", profile.ID), zap.Error(err))
		return
	}

	client := NewClient(conn, profile.ID, h.sendBuffer, h.logger)
	session := h.manager.Connect(client, profile)

	go client.writePump()
	client.readPump(context.Background(), func(ctx context.Context, raw []byte) {
		h.manager.HandleEvent(ctx, session, raw)
	})

	h.manager.Disconnect(session)
}
