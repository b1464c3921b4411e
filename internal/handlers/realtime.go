package handlers

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/campuslink/internal/admission"
	iauth "github.com/charlesng35/campuslink/internal/auth"
	"github.com/charlesng35/campuslink/internal/middleware"
	"github.com/charlesng35/campuslink/internal/realtime"
	apperrors "github.com/charlesng35/campuslink/pkg/errors"
	"github.com/charlesng35/campuslink/pkg/response"
)

// Inbound websocket events.
const (
	EventJoinBroadcast     = "join-broadcast"
	EventLinkWait          = "link-wait"
	EventSubmitDecision    = "submit-decision"
	EventJoinConversation  = "join-conversation"
	EventLeaveConversation = "leave-conversation"
)

// EventAdmissionPending carries the pending snapshot to an operator that just joined.
const EventAdmissionPending = "admission-pending"

var (
	errOperatorRequired = errors.New("operator role required")
	errNotOperatorRoom  = errors.New("join-broadcast required before submitting decisions")
	errAuthRequired     = errors.New("authentication required")
	errInvalidPayload   = errors.New("invalid payload")
)

// RealtimeHandler upgrades HTTP connections into websocket streams and owns the inbound
// event handlers registered on the hub.
type RealtimeHandler struct {
	hub         *realtime.Hub
	jwt         *iauth.JWTService
	coordinator *admission.Coordinator
	policy      admission.Policy
}

// NewRealtimeHandler constructs a realtime handler and registers its events on the hub.
func NewRealtimeHandler(hub *realtime.Hub, jwt *iauth.JWTService, coordinator *admission.Coordinator, policy admission.Policy) *RealtimeHandler {
	h := &RealtimeHandler{
		hub:         hub,
		jwt:         jwt,
		coordinator: coordinator,
		policy:      policy,
	}
	if hub != nil {
		hub.Handle(EventJoinBroadcast, h.joinBroadcast)
		hub.Handle(EventLinkWait, h.linkWait)
		hub.Handle(EventSubmitDecision, h.submitDecision)
		hub.Handle(EventJoinConversation, h.joinConversation)
		hub.Handle(EventLeaveConversation, h.leaveConversation)
	}
	return h
}

// GET /ws
//
// A token is optional: anonymous connections may only wait on a login request. A token that
// is present but invalid is rejected.
func (h *RealtimeHandler) Stream(c *gin.Context) {
	if h.hub == nil {
		response.Error(c, apperrors.ErrNotFound)
		return
	}

	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		token = strings.TrimSpace(c.Query("access_token"))
	}
	if token == "" {
		token, _ = middleware.BearerToken(c.GetHeader("Authorization"))
	}

	var identity realtime.Identity
	if token != "" {
		if h.jwt == nil {
			response.Error(c, apperrors.ErrUnauthorized)
			return
		}
		claims, err := h.jwt.ValidateAccessToken(token)
		if err != nil {
			response.Error(c, apperrors.ErrUnauthorized)
			return
		}
		identity = realtime.Identity{
			UserID:   claims.UserID,
			Username: claims.Username,
			Role:     claims.Role,
		}
	}

	h.hub.Serve(identity, c.Writer, c.Request)
}

func (h *RealtimeHandler) joinBroadcast(client *realtime.Client, _ json.RawMessage) error {
	identity := client.Identity()
	if !identity.Authenticated() || !h.policy.IsOperator(identity.Role) {
		return errOperatorRequired
	}
	h.hub.Join(client, realtime.BroadcastRoom)
	if h.coordinator != nil {
		client.Send(EventAdmissionPending, h.coordinator.Pending())
	}
	return nil
}

type linkWaitPayload struct {
	RequestID string `json:"request_id"`
}

func (h *RealtimeHandler) linkWait(client *realtime.Client, data json.RawMessage) error {
	var payload linkWaitPayload
	if err := decodePayload(data, &payload); err != nil {
		return err
	}
	if h.coordinator != nil {
		h.coordinator.Link(strings.TrimSpace(payload.RequestID), client)
	}
	return nil
}

type decisionPayload struct {
	RequestID string `json:"request_id"`
	Approved  *bool  `json:"approved"`
}

func (h *RealtimeHandler) submitDecision(client *realtime.Client, data json.RawMessage) error {
	if !h.hub.InRoom(client, realtime.BroadcastRoom) {
		return errNotOperatorRoom
	}
	var payload decisionPayload
	if err := decodePayload(data, &payload); err != nil {
		return err
	}
	if payload.Approved == nil {
		return errors.New("approved is required")
	}
	if h.coordinator != nil {
		h.coordinator.Decide(strings.TrimSpace(payload.RequestID), *payload.Approved, client.Identity().UserID)
	}
	return nil
}

type conversationPayload struct {
	ConversationID string `json:"conversation_id"`
}

func (h *RealtimeHandler) joinConversation(client *realtime.Client, data json.RawMessage) error {
	room, err := conversationRoom(client, data)
	if err != nil {
		return err
	}
	h.hub.Join(client, room)
	return nil
}

func (h *RealtimeHandler) leaveConversation(client *realtime.Client, data json.RawMessage) error {
	room, err := conversationRoom(client, data)
	if err != nil {
		return err
	}
	h.hub.Leave(client, room)
	return nil
}

func conversationRoom(client *realtime.Client, data json.RawMessage) (string, error) {
	if !client.Identity().Authenticated() {
		return "", errAuthRequired
	}
	var payload conversationPayload
	if err := decodePayload(data, &payload); err != nil {
		return "", err
	}
	room := realtime.ConversationRoom(payload.ConversationID)
	if room == "" {
		return "", errors.New("conversation_id is required")
	}
	return room, nil
}

func decodePayload(data json.RawMessage, dest any) error {
	if len(data) == 0 {
		return errInvalidPayload
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return errInvalidPayload
	}
	return nil
}
