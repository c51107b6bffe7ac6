// Package notifications provides the in-app notification inbox. Users
// only ever see their own notifications; viewing the inbox is part of
// the baseline permission set.
package notifications

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tempora-app/tempora/internal/auth"
	"github.com/tempora-app/tempora/internal/config"
	"github.com/tempora-app/tempora/internal/db/models"
	"github.com/tempora-app/tempora/internal/rbac"
	"github.com/tempora-app/tempora/internal/web/handler"
	"github.com/tempora-app/tempora/internal/web/handler/dashboard"
	"github.com/tempora-app/tempora/internal/web/navigation"
	"github.com/tempora-app/tempora/internal/web/session"
)

const (
	// Path is the path to the notification inbox.
	Path = handler.RootPath + "notifications"

	// TemplateName is the inbox template.
	TemplateName = "notifications/list"
)

// Service provides the notification inbox handlers.
type Service struct {
	handler.Service
	cfg *config.Config
	db  *gorm.DB
}

// Handler is the exported instance.
var Handler = Service{}

// Init registers routes.
func (s *Service) Init(app *fiber.App, cfg *config.Config, db *gorm.DB, authService *auth.Service) {
	if app == nil || cfg == nil || db == nil {
		log.Fatal().Msg(handler.ErrNilACDFatalLogMsg)
		return
	}

	s.cfg = cfg
	s.db = db

	view := auth.RequirePermission(authService, rbac.Build(rbac.ResourceNotifications, rbac.ActionView))

	app.Get(Path, view, s.List)
	app.Post(Path+"/:id/read", view, s.MarkRead)
	app.Post(Path+"/read-all", view, s.MarkAllRead)
}

func currentUserID(c *fiber.Ctx) uint64 {
	sessionID := c.Cookies("session")
	if sessionID == "" {
		return 0
	}

	sessData := new(session.Data)
	if err := sessData.Read(sessionID); err != nil {
		return 0
	}

	return sessData.User.ID
}

// List shows the caller's notifications, newest first.
func (s *Service) List(c *fiber.Ctx) error {
	userID := currentUserID(c)

	nav := navigation.NewContext("Notifications", "account", "notifications").
		AddBreadcrumb("Home", dashboard.Path, false).
		AddBreadcrumb("Notifications", Path, true)

	var items []models.Notification

	err := s.db.
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(100).
		Find(&items).Error
	if err != nil {
		log.Error().Err(err).Uint64("user_id", userID).Msg("failed to list notifications")

		return c.Status(fiber.StatusInternalServerError).Render(TemplateName, fiber.Map{
			"Navigation": nav,
			"Error":      "Failed to load notifications",
		}, handler.BaseLayout)
	}

	unread := 0

	for _, n := range items {
		if n.ReadAt == nil {
			unread++
		}
	}

	return c.Render(TemplateName, fiber.Map{
		"Navigation":    nav,
		"Notifications": items,
		"Unread":        unread,
	}, handler.BaseLayout)
}

// MarkRead marks one of the caller's notifications as read. Foreign ids
// are a silent no-op; the ownership filter is part of the update.
func (s *Service) MarkRead(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil || id == 0 {
		return c.Redirect(Path)
	}

	userID := currentUserID(c)
	now := time.Now()

	err = s.db.Model(&models.Notification{}).
		Where("id = ? AND user_id = ? AND read_at IS NULL", id, userID).
		Update("read_at", &now).Error
	if err != nil {
		log.Error().Err(err).Uint64("notification_id", id).Msg("failed to mark notification read")

		return c.Status(fiber.StatusInternalServerError).SendString("Internal Server Error")
	}

	return c.Redirect(Path)
}

// MarkAllRead marks every unread notification of the caller as read.
func (s *Service) MarkAllRead(c *fiber.Ctx) error {
	userID := currentUserID(c)
	now := time.Now()

	err := s.db.Model(&models.Notification{}).
		Where("user_id = ? AND read_at IS NULL", userID).
		Update("read_at", &now).Error
	if err != nil {
		log.Error().Err(err).Uint64("user_id", userID).Msg("failed to mark notifications read")

		return c.Status(fiber.StatusInternalServerError).SendString("Internal Server Error")
	}

	return c.Redirect(Path)
}
