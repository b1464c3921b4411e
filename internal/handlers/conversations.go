package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/campuslink/internal/middleware"
	"github.com/charlesng35/campuslink/internal/services"
	"github.com/charlesng35/campuslink/pkg/response"
)

// ConversationHandler relays chat messages between participants.
type ConversationHandler struct {
	service *services.ConversationService
}

// NewConversationHandler constructs a conversation handler.
func NewConversationHandler(service *services.ConversationService) *ConversationHandler {
	return &ConversationHandler{service: service}
}

type sendMessageRequest struct {
	Text        string `json:"text" validate:"required,notblank,max=4000"`
	RecipientID string `json:"recipient_id"`
}

// POST /api/conversations/:id/messages
func (h *ConversationHandler) Send(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req sendMessageRequest
	if !bindAndValidate(c, &req) {
		return
	}

	msg, err := h.service.Send(requestContext(c), services.SendMessageInput{
		ConversationID: strings.TrimSpace(c.Param("id")),
		SenderID:       userID,
		SenderName:     c.GetString(middleware.CtxUsernameKey),
		RecipientID:    strings.TrimSpace(req.RecipientID),
		Text:           req.Text,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, msg)
}
