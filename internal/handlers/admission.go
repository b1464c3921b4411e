package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/campuslink/internal/admission"
	"github.com/charlesng35/campuslink/pkg/errors"
	"github.com/charlesng35/campuslink/pkg/response"
)

// AdmissionHandler lets operators review and decide pending logins over HTTP.
type AdmissionHandler struct {
	coordinator *admission.Coordinator
}

// NewAdmissionHandler constructs an admission handler.
func NewAdmissionHandler(coordinator *admission.Coordinator) *AdmissionHandler {
	return &AdmissionHandler{coordinator: coordinator}
}

// GET /api/admission/requests
func (h *AdmissionHandler) List(c *gin.Context) {
	if h.coordinator == nil {
		response.Error(c, errors.ErrAdmissionDisabled)
		return
	}
	pending := h.coordinator.Pending()
	response.SuccessWithMeta(c, http.StatusOK, pending, &response.Meta{Total: int64(len(pending))})
}

type decisionRequest struct {
	Approved *bool `json:"approved" validate:"required"`
}

// POST /api/admission/requests/:id/decision
func (h *AdmissionHandler) Decide(c *gin.Context) {
	if h.coordinator == nil {
		response.Error(c, errors.ErrAdmissionDisabled)
		return
	}
	operatorID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req decisionRequest
	if !bindAndValidate(c, &req) {
		return
	}

	resolution, found := h.coordinator.Decide(strings.TrimSpace(c.Param("id")), *req.Approved, operatorID)
	if !found {
		response.Error(c, errors.ErrNotFound)
		return
	}
	response.Success(c, http.StatusOK, resolution)
}
