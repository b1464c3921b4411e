package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/campuslink/internal/services"
	"github.com/charlesng35/campuslink/pkg/response"
)

const defaultNotificationPage = 25

// NotificationHandler exposes the caller's inbox plus operator-issued notifications.
type NotificationHandler struct {
	service *services.NotificationService
}

// NewNotificationHandler constructs a notification handler.
func NewNotificationHandler(service *services.NotificationService) *NotificationHandler {
	return &NotificationHandler{service: service}
}

// GET /api/notifications?limit=&offset=&unread=
func (h *NotificationHandler) List(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	limit := parseIntQuery(c, "limit", defaultNotificationPage)
	offset := parseIntQuery(c, "offset", 0)

	items, err := h.service.List(requestContext(c), services.ListNotificationsInput{
		RecipientID: userID,
		UnreadOnly:  parseBoolQuery(c, "unread"),
		Limit:       limit,
		Offset:      offset,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	unread, err := h.service.CountUnread(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, items, &response.Meta{
		Limit:  limit,
		Offset: offset,
		Unread: unread,
	})
}

// POST /api/notifications/:id/read
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	dto, err := h.service.MarkRead(requestContext(c), userID, strings.TrimSpace(c.Param("id")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, dto)
}

// POST /api/notifications/read-all
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	changed, err := h.service.MarkAllRead(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"updated": changed})
}

// DELETE /api/notifications/:id
func (h *NotificationHandler) Delete(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	if err := h.service.Delete(requestContext(c), userID, strings.TrimSpace(c.Param("id"))); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

type createNotificationRequest struct {
	RecipientIDs []string       `json:"recipient_ids" validate:"required,min=1,dive,notblank"`
	Category     string         `json:"category" validate:"omitempty,max=32"`
	Title        string         `json:"title" validate:"required,notblank,max=200"`
	Body         string         `json:"body" validate:"max=4000"`
	Link         string         `json:"link" validate:"max=512"`
	Metadata     map[string]any `json:"metadata"`
}

// POST /api/notifications
//
// Operators address one or more users directly. Each recipient gets an independent record;
// a failure for one recipient does not undo the others.
func (h *NotificationHandler) Create(c *gin.Context) {
	var req createNotificationRequest
	if !bindAndValidate(c, &req) {
		return
	}

	created, err := h.service.NotifyMany(requestContext(c), req.RecipientIDs, services.NotifyInput{
		Category: req.Category,
		Title:    req.Title,
		Body:     req.Body,
		Link:     req.Link,
		Metadata: req.Metadata,
	})
	if err != nil && len(created) == 0 {
		response.Error(c, err)
		return
	}

	status := http.StatusCreated
	if err != nil {
		status = http.StatusMultiStatus
	}
	response.SuccessWithMeta(c, status, created, &response.Meta{Total: int64(len(created))})
}
