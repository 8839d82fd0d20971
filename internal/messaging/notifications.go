// internal/messaging/notifications.go

package messaging

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

const pushPreviewLength = 100

// PushService notifies users who have no live connection
type PushService interface {
	SendNotification(ctx context.Context, userID int64, notification *PushNotification) error
}

type PushNotification struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
	Badge int               `json:"badge,omitempty"`
	Sound string            `json:"sound,omitempty"`
}

type fcmPushService struct {
	client *messaging.Client
	tokens PushTokenRepository
	logger *zap.Logger
}

// NewPushService creates an FCM backed push service
func NewPushService(ctx context.Context, credentialsPath string, tokens PushTokenRepository, logger *zap.Logger) (PushService, error) {
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsPath))
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting messaging client: %w", err)
	}

	return &fcmPushService{
		client: client,
		tokens: tokens,
		logger: logger.Named("push"),
	}, nil
}

// SendNotification sends to every device the user registered. Tokens FCM
// reports as unregistered are purged.
func (s *fcmPushService) SendNotification(ctx context.Context, userID int64, notification *PushNotification) error {
	tokens, err := s.tokens.GetUserPushTokens(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to get user tokens: %w", err)
	}
	if len(tokens) == 0 {
		recordPush("no_tokens")
		return nil
	}

	for _, token := range tokens {
		_, err := s.client.Send(ctx, buildFCMMessage(token, notification))
		if err == nil {
			recordPush("sent")
			continue
		}

		recordPush("failed")
		s.logger.Warn("push send failed",
			zap.Int64("user_id", userID),
			zap.String("platform", token.Platform),
			zap.Error(err))

		if messaging.IsRegistrationTokenNotRegistered(err) {
			if err := s.tokens.PurgePushToken(ctx, token.Token); err != nil {
				s.logger.Error("failed to purge push token", zap.Int64("user_id", userID), zap.Error(err))
			}
		}
	}
	return nil
}

func buildFCMMessage(token *PushToken, n *PushNotification) *messaging.Message {
	msg := &messaging.Message{
		Token: token.Token,
		Notification: &messaging.Notification{
			Title: n.Title,
			Body:  n.Body,
		},
		Data: n.Data,
	}

	switch token.Platform {
	case "ios":
		badge := n.Badge
		msg.APNS = &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					Badge: &badge,
					Sound: n.Sound,
				},
			},
		}
	case "android":
		msg.Android = &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				Sound:    n.Sound,
				Priority: messaging.PriorityHigh,
			},
		}
	}
	return msg
}

// logPushService only logs. Used when push is disabled.
type logPushService struct {
	logger *zap.Logger
}

func NewLogPushService(logger *zap.Logger) PushService {
	return &logPushService{logger: logger.Named("push")}
}

func (s *logPushService) SendNotification(_ context.Context, userID int64, n *PushNotification) error {
	recordPush("skipped")
	s.logger.Debug("push notification skipped",
		zap.Int64("user_id", userID),
		zap.String("title", n.Title))
	return nil
}

// newMessageNotification builds the push shown for an unseen message
func newMessageNotification(msg *Message) *PushNotification {
	title := "New message"
	if msg.Sender != nil && msg.Sender.Name != "" {
		title = msg.Sender.Name
	}

	body := msg.Content
	if msg.Type != MessageText {
		body = fmt.Sprintf("Sent a%s %s", article(string(msg.Type)), msg.Type)
	} else if r := []rune(body); len(r) > pushPreviewLength {
		body = string(r[:pushPreviewLength]) + "..."
	}

	return &PushNotification{
		Title: title,
		Body:  body,
		Data: map[string]string{
			"type":           EventMessageNew,
			"conversationId": fmt.Sprint(msg.ConversationID),
			"messageId":      fmt.Sprint(msg.ID),
		},
		Badge: 1,
		Sound: "default",
	}
}

func article(word string) string {
	if word != "" && (word[0] == 'i' || word[0] == 'a') {
		return "n"
	}
	return ""
}
