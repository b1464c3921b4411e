package api

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/charlesng35/campuslink/internal/admission"
	"github.com/charlesng35/campuslink/internal/app"
	iauth "github.com/charlesng35/campuslink/internal/auth"
	"github.com/charlesng35/campuslink/internal/auth/providers"
	"github.com/charlesng35/campuslink/internal/inbox"
	"github.com/charlesng35/campuslink/internal/realtime"
	"github.com/charlesng35/campuslink/internal/services"
)

// Services bundles the application services shared by the router and background jobs.
type Services struct {
	Auth          *services.AuthService
	Users         *services.UserService
	Notifications *services.NotificationService
	Notices       *services.NoticeService
	Conversations *services.ConversationService
}

// NewServices wires the service layer on top of the stores and the realtime hub.
func NewServices(cfg *app.Config, db *gorm.DB, jwt *iauth.JWTService, store inbox.Store, hub *realtime.Hub, coordinator *admission.Coordinator) (*Services, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must be provided")
	}

	local, err := providers.NewLocalProvider(db, cfg.Auth.LocalProviderConfig())
	if err != nil {
		return nil, err
	}

	users, err := services.NewUserService(db)
	if err != nil {
		return nil, err
	}

	var starter services.AdmissionStarter
	if coordinator != nil {
		starter = coordinator
	}
	authSvc, err := services.NewAuthService(local, jwt, users, cfg.Admission.Policy(), starter)
	if err != nil {
		return nil, err
	}
	if coordinator != nil {
		coordinator.OnApproved(authSvc.RecordApproval)
	}

	var (
		emitter     services.Emitter
		broadcaster services.Broadcaster
	)
	if hub != nil {
		emitter = hub
		broadcaster = hub
	}

	notifications, err := services.NewNotificationService(store, emitter)
	if err != nil {
		return nil, err
	}

	notices, err := services.NewNoticeService(notifications, users, broadcaster)
	if err != nil {
		return nil, err
	}

	conversations, err := services.NewConversationService(notifications, emitter)
	if err != nil {
		return nil, err
	}

	return &Services{
		Auth:          authSvc,
		Users:         users,
		Notifications: notifications,
		Notices:       notices,
		Conversations: conversations,
	}, nil
}
