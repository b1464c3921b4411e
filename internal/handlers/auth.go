package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/campuslink/internal/services"
	"github.com/charlesng35/campuslink/pkg/errors"
	"github.com/charlesng35/campuslink/pkg/response"
)

// AuthHandler manages the login flow and the caller's own account.
type AuthHandler struct {
	auth *services.AuthService
}

// NewAuthHandler constructs an auth handler.
func NewAuthHandler(auth *services.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

type loginRequest struct {
	Identifier string `json:"identifier" validate:"required,notblank"`
	Password   string `json:"password" validate:"required"`
}

// POST /api/auth/login
//
// Responds 200 with a token, or 202 with a request id when the login must wait for an operator.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindAndValidate(c, &req) {
		return
	}

	result, err := h.auth.Login(requestContext(c), services.LoginInput{
		Identifier: strings.TrimSpace(req.Identifier),
		Password:   req.Password,
		IPAddress:  c.ClientIP(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	status := http.StatusOK
	if result.ApprovalRequired {
		status = http.StatusAccepted
	}
	response.Success(c, status, result)
}

// GET /api/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	user, err := h.auth.Me(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, user)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8,max=128"`
}

// POST /api/auth/password
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req changePasswordRequest
	if !bindAndValidate(c, &req) {
		return
	}
	if req.CurrentPassword == req.NewPassword {
		response.Error(c, errors.NewBadRequest("new password must differ from the current password"))
		return
	}

	if err := h.auth.ChangePassword(requestContext(c), userID, req.CurrentPassword, req.NewPassword); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"changed": true})
}
