// Package settings provides the personal settings page: profile
// details and password changes for the logged-in user. Its view and
// update permissions are part of the baseline every role carries, so
// the page is reachable for everyone.
package settings

import (
	"errors"

	"github.com/go-playground/validator/v10"
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
	// Path is the path to the personal settings page.
	Path = handler.RootPath + "settings"

	// TemplateName is the settings page template.
	TemplateName = "settings/settings"
)

// Service provides the personal settings handlers.
type Service struct {
	handler.Service
	cfg       *config.Config
	db        *gorm.DB
	localAuth *auth.LocalProvider
	validator *validator.Validate
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
	s.localAuth = auth.NewLocalProvider(db)
	s.validator = validator.New()

	app.Get(Path,
		auth.RequirePermission(authService, rbac.Build(rbac.ResourceSettings, rbac.ActionView)),
		s.Get,
	)
	app.Post(Path+"/profile",
		auth.RequirePermission(authService, rbac.Build(rbac.ResourceSettings, rbac.ActionUpdate)),
		s.UpdateProfile,
	)
	app.Post(Path+"/password",
		auth.RequirePermission(authService, rbac.Build(rbac.ResourceSettings, rbac.ActionUpdate)),
		s.ChangePassword,
	)
}

func (s *Service) nav() *navigation.Context {
	return navigation.NewContext("Settings", "account", "settings").
		AddBreadcrumb("Home", dashboard.Path, false).
		AddBreadcrumb("Settings", Path, true)
}

// currentUser loads the fresh user record behind the session, not the
// possibly stale copy stored in the session itself.
func (s *Service) currentUser(c *fiber.Ctx) (*models.User, error) {
	sessionID := c.Cookies("session")
	if sessionID == "" {
		return nil, auth.ErrUserNotFound
	}

	sessData := new(session.Data)
	if err := sessData.Read(sessionID); err != nil {
		return nil, err
	}

	return s.localAuth.GetUserByID(sessData.User.ID)
}

// render draws the settings page for the given user.
func (s *Service) render(c *fiber.Ctx, status int, user *models.User, errMsg, okMsg string) error {
	data := fiber.Map{
		"Navigation": s.nav(),
		"User":       user,
		"IsLocal":    user.AuthSource == models.AuthSourceLocal,
	}
	if errMsg != "" {
		data["Error"] = errMsg
	}

	if okMsg != "" {
		data["Success"] = okMsg
	}

	return c.Status(status).Render(TemplateName, data, handler.BaseLayout)
}

// Get shows the settings page.
func (s *Service) Get(c *fiber.Ctx) error {
	user, err := s.currentUser(c)
	if err != nil {
		log.Error().Err(err).Msg("failed to load current user")

		return c.Status(fiber.StatusInternalServerError).SendString("Internal Server Error")
	}

	return s.render(c, fiber.StatusOK, user, "", "")
}

// profileForm is the submitted profile section.
type profileForm struct {
	Email     string `form:"email"      validate:"required,email"`
	FirstName string `form:"first_name" validate:"max=100"`
	LastName  string `form:"last_name"  validate:"max=100"`
}

// UpdateProfile stores the user's profile fields. Directory-managed
// accounts are read-only here; their attributes come from the
// directory at every login.
func (s *Service) UpdateProfile(c *fiber.Ctx) error {
	user, err := s.currentUser(c)
	if err != nil {
		log.Error().Err(err).Msg("failed to load current user")

		return c.Status(fiber.StatusInternalServerError).SendString("Internal Server Error")
	}

	if user.AuthSource != models.AuthSourceLocal {
		return s.render(c, fiber.StatusForbidden, user,
			"This account is managed by an external directory", "")
	}

	var in profileForm
	if err := c.BodyParser(&in); err != nil {
		return s.render(c, fiber.StatusBadRequest, user, "Invalid form data", "")
	}

	if err := s.validator.Struct(in); err != nil {
		return s.render(c, fiber.StatusBadRequest, user, "Please correct the highlighted errors", "")
	}

	if err := s.localAuth.UpdateUser(user.ID, in.Email, in.FirstName, in.LastName, user.RoleID); err != nil {
		if errors.Is(err, auth.ErrUserNameOrEmailExists) {
			return s.render(c, fiber.StatusBadRequest, user, "This email address is already in use", "")
		}

		log.Error().Err(err).Uint64("user_id", user.ID).Msg("failed to update profile")

		return s.render(c, fiber.StatusInternalServerError, user, "Failed to update profile", "")
	}

	updated, err := s.localAuth.GetUserByID(user.ID)
	if err != nil {
		log.Error().Err(err).Uint64("user_id", user.ID).Msg("failed to reload user")

		return c.Status(fiber.StatusInternalServerError).SendString("Internal Server Error")
	}

	return s.render(c, fiber.StatusOK, updated, "", "Profile updated")
}

// passwordForm is the submitted password change.
type passwordForm struct {
	OldPassword string `form:"old_password" validate:"required"`
	NewPassword string `form:"new_password" validate:"required,min=8"`
}

// ChangePassword changes the user's password after verifying the old
// one. Only local accounts carry a password.
func (s *Service) ChangePassword(c *fiber.Ctx) error {
	user, err := s.currentUser(c)
	if err != nil {
		log.Error().Err(err).Msg("failed to load current user")

		return c.Status(fiber.StatusInternalServerError).SendString("Internal Server Error")
	}

	if user.AuthSource != models.AuthSourceLocal {
		return s.render(c, fiber.StatusForbidden, user,
			"This account is managed by an external directory", "")
	}

	var in passwordForm
	if err := c.BodyParser(&in); err != nil {
		return s.render(c, fiber.StatusBadRequest, user, "Invalid form data", "")
	}

	if err := s.validator.Struct(in); err != nil {
		return s.render(c, fiber.StatusBadRequest, user,
			"The new password needs at least 8 characters", "")
	}

	if err := s.localAuth.ChangePassword(user.ID, in.OldPassword, in.NewPassword); err != nil {
		if errors.Is(err, auth.ErrInvalidOldPassword) {
			return s.render(c, fiber.StatusBadRequest, user, "The current password is wrong", "")
		}

		log.Error().Err(err).Uint64("user_id", user.ID).Msg("failed to change password")

		return s.render(c, fiber.StatusInternalServerError, user, "Failed to change password", "")
	}

	return s.render(c, fiber.StatusOK, user, "", "Password changed")
}
