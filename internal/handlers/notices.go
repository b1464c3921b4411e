package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/campuslink/internal/services"
	"github.com/charlesng35/campuslink/pkg/response"
)

// NoticeHandler publishes campus-wide notices.
type NoticeHandler struct {
	service *services.NoticeService
}

// NewNoticeHandler constructs a notice handler.
func NewNoticeHandler(service *services.NoticeService) *NoticeHandler {
	return &NoticeHandler{service: service}
}

type publishNoticeRequest struct {
	Title        string   `json:"title" validate:"required,notblank,max=200"`
	Body         string   `json:"body" validate:"max=4000"`
	Link         string   `json:"link" validate:"max=512"`
	RecipientIDs []string `json:"recipient_ids" validate:"omitempty,dive,notblank"`
	Roles        []string `json:"roles" validate:"omitempty,dive,notblank"`
}

// POST /api/notices
func (h *NoticeHandler) Publish(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req publishNoticeRequest
	if !bindAndValidate(c, &req) {
		return
	}

	result, err := h.service.Publish(requestContext(c), services.PublishNoticeInput{
		Title:        req.Title,
		Body:         req.Body,
		Link:         req.Link,
		RecipientIDs: req.RecipientIDs,
		Roles:        req.Roles,
		PublishedBy:  userID,
	})
	if err != nil && (result == nil || result.Persisted == 0) {
		response.Error(c, err)
		return
	}

	status := http.StatusCreated
	if err != nil {
		status = http.StatusMultiStatus
	}
	response.Success(c, status, result)
}
