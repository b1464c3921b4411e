package services

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/campuslink/internal/models"
	"github.com/charlesng35/campuslink/internal/realtime"
	apperrors "github.com/charlesng35/campuslink/pkg/errors"
)

func TestSendMessageNotifiesRecipientThenRelays(t *testing.T) {
	notifications, db, emitter := newNotificationFixture(t)
	svc, err := NewConversationService(notifications, emitter)
	require.NoError(t, err)

	msg, err := svc.Send(context.Background(), SendMessageInput{
		ConversationID: "c-1",
		SenderID:       "teacher-1",
		SenderName:     "Ms Rivera",
		RecipientID:    "student-1",
		Text:           "Please resubmit the lab report.",
	})
	require.NoError(t, err)
	require.NotEmpty(t, msg.ID)

	require.EqualValues(t, 1, countNotifications(t, db, "recipient_id = ? AND category = ?", "student-1", models.CategoryMessage))

	events := emitter.Emitted()
	require.Len(t, events, 2)
	require.Equal(t, realtime.UserRoom("student-1"), events[0].Room)
	require.Equal(t, EventNotificationReceived, events[0].Event)
	require.Equal(t, "New message from Ms Rivera", events[0].Payload.(NotificationDTO).Title)
	require.Equal(t, realtime.ConversationRoom("c-1"), events[1].Room)
	require.Equal(t, EventMessageReceived, events[1].Event)
	require.Equal(t, msg, events[1].Payload)
}

func TestSendMessageWithoutRecipientOnlyRelays(t *testing.T) {
	notifications, db, emitter := newNotificationFixture(t)
	svc, err := NewConversationService(notifications, emitter)
	require.NoError(t, err)

	_, err = svc.Send(context.Background(), SendMessageInput{ConversationID: "c-2", SenderID: "u1", RecipientID: "u1", Text: "note to self"})
	require.NoError(t, err)

	require.Zero(t, countNotifications(t, db))
	require.Len(t, emitter.Emitted(), 1)
}

func TestSendMessageValidation(t *testing.T) {
	notifications, _, emitter := newNotificationFixture(t)
	svc, err := NewConversationService(notifications, emitter)
	require.NoError(t, err)

	_, err = svc.Send(context.Background(), SendMessageInput{Text: "hi"})
	require.ErrorIs(t, err, apperrors.ErrBadRequest)
	_, err = svc.Send(context.Background(), SendMessageInput{ConversationID: "c", Text: "   "})
	require.ErrorIs(t, err, apperrors.ErrBadRequest)
	require.Empty(t, emitter.Emitted())
}

func TestPreviewTruncatesLongMessages(t *testing.T) {
	long := strings.Repeat("é", previewLength+10)
	got := preview(long)
	require.Equal(t, previewLength+1, utf8.RuneCountInString(got))
	require.Equal(t, "short", preview("short"))
}
