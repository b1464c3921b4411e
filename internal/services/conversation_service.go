package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/charlesng35/campuslink/internal/models"
	"github.com/charlesng35/campuslink/internal/realtime"
	apperrors "github.com/charlesng35/campuslink/pkg/errors"
)

// EventMessageReceived is emitted to a conversation room for each new message.
const EventMessageReceived = "message-received"

const previewLength = 120

// SendMessageInput describes one chat message.
type SendMessageInput struct {
	ConversationID string
	SenderID       string
	SenderName     string
	RecipientID    string
	Text           string
}

// MessageDTO is the realtime payload of a chat message.
type MessageDTO struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	SenderName     string    `json:"sender_name,omitempty"`
	RecipientID    string    `json:"recipient_id,omitempty"`
	Text           string    `json:"text"`
	SentAt         time.Time `json:"sent_at"`
}

// ConversationService relays chat messages to conversation rooms and leaves an inbox entry
// for the addressed recipient.
type ConversationService struct {
	notifications *NotificationService
	emitter       Emitter
	now           func() time.Time
}

// NewConversationService constructs a ConversationService.
func NewConversationService(notifications *NotificationService, emitter Emitter) (*ConversationService, error) {
	if notifications == nil {
		return nil, errors.New("conversation service: notification service is required")
	}
	return &ConversationService{
		notifications: notifications,
		emitter:       emitter,
		now:           func() time.Time { return time.Now().UTC() },
	}, nil
}

// Send records the recipient's notification first, then relays the message to the room.
func (s *ConversationService) Send(ctx context.Context, input SendMessageInput) (*MessageDTO, error) {
	conversationID := strings.TrimSpace(input.ConversationID)
	text := strings.TrimSpace(input.Text)
	if conversationID == "" {
		return nil, apperrors.NewBadRequest("conversation id is required")
	}
	if text == "" {
		return nil, apperrors.NewBadRequest("message text is required")
	}

	msg := &MessageDTO{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       strings.TrimSpace(input.SenderID),
		SenderName:     strings.TrimSpace(input.SenderName),
		RecipientID:    strings.TrimSpace(input.RecipientID),
		Text:           text,
		SentAt:         s.now(),
	}

	if msg.RecipientID != "" && msg.RecipientID != msg.SenderID {
		sender := msg.SenderName
		if sender == "" {
			sender = "a user"
		}
		if _, err := s.notifications.Notify(ctx, NotifyInput{
			RecipientID: msg.RecipientID,
			Category:    models.CategoryMessage,
			Title:       fmt.Sprintf("New message from %s", sender),
			Body:        preview(text),
			Link:        "/messages/" + conversationID,
			Metadata: map[string]any{
				"conversation_id": conversationID,
				"message_id":      msg.ID,
				"sender_id":       msg.SenderID,
			},
		}); err != nil {
			return nil, err
		}
	}

	if s.emitter != nil {
		s.emitter.EmitTo(realtime.ConversationRoom(conversationID), EventMessageReceived, msg)
	}
	return msg, nil
}

func preview(text string) string {
	if utf8.RuneCountInString(text) <= previewLength {
		return text
	}
	runes := []rune(text)
	return string(runes[:previewLength]) + "…"
}
