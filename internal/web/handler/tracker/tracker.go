// Package tracker provides the time tracking handlers: a running
// start/stop timer plus manual timesheet entries. Users always operate
// on their own entries; the all-users scope permission widens the list
// and edit reach to everyone's entries.
package tracker

import (
	"errors"
	"strconv"
	"time"

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
	// Path is the base path for the time tracker.
	Path = handler.RootPath + "tracker"

	// TemplateList is the template for the timesheet list.
	TemplateList = "tracker/list"
	// TemplateForm is the template for editing an entry.
	TemplateForm = "tracker/form"

	// timeLayout is the format of the datetime-local form inputs.
	timeLayout = "2006-01-02T15:04"
)

// ErrNotOwner is returned when a user touches an entry they do not own
// without holding the all-users scope.
var ErrNotOwner = errors.New("entry belongs to another user")

// Service provides the time tracking handlers.
type Service struct {
	handler.Service
	cfg         *config.Config
	db          *gorm.DB
	authService *auth.Service
	validator   *validator.Validate
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
	s.authService = authService
	s.validator = validator.New()

	view := rbac.Build(rbac.ResourceTracker, rbac.ActionView)
	create := rbac.Build(rbac.ResourceTracker, rbac.ActionCreate)
	update := rbac.Build(rbac.ResourceTracker, rbac.ActionUpdate)
	remove := rbac.Build(rbac.ResourceTracker, rbac.ActionDelete)

	app.Get(Path,
		auth.RequirePermission(authService, view),
		auth.AddPermissionsToLocals(authService),
		s.List,
	)
	app.Post(Path+"/start",
		auth.RequirePermission(authService, create),
		s.Start,
	)
	app.Post(Path+"/stop",
		auth.RequirePermission(authService, update),
		s.Stop,
	)
	app.Post(Path,
		auth.RequirePermission(authService, create),
		s.Create,
	)
	app.Get(Path+"/:id/edit",
		auth.RequirePermission(authService, view),
		auth.AddPermissionsToLocals(authService),
		s.Edit,
	)
	app.Post(Path+"/:id",
		auth.RequirePermission(authService, update),
		auth.AddPermissionsToLocals(authService),
		s.Update,
	)
	app.Post(Path+"/:id/delete",
		auth.RequirePermission(authService, remove),
		auth.AddPermissionsToLocals(authService),
		s.Delete,
	)
}

func (s *Service) nav() *navigation.Context {
	return navigation.NewContext("Time Tracker", "timesheets", "tracker").
		AddBreadcrumb("Home", dashboard.Path, false).
		AddBreadcrumb("Time Tracker", Path, true)
}

// currentUserID reads the authenticated user id from the session.
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

// canSeeAll reports whether the current request holds the all-users
// tracker scope.
func canSeeAll(c *fiber.Ctx) bool {
	return auth.GrantedSet(c).Has(rbac.Build(rbac.ResourceTrackerAll, rbac.ActionView))
}

// List shows time entries, newest first. Without the all-users scope
// only the caller's own entries are queried; the scope never changes
// what a user may do, only how far they can see.
func (s *Service) List(c *fiber.Ctx) error {
	userID := currentUserID(c)
	all := canSeeAll(c)

	query := s.db.Order("started_at DESC").Limit(200)
	if all {
		query = query.Preload("User")
	} else {
		query = query.Where("user_id = ?", userID)
	}

	var entries []models.TimeEntry
	if err := query.Find(&entries).Error; err != nil {
		log.Error().Err(err).Uint64("user_id", userID).Msg("failed to list time entries")

		return c.Status(fiber.StatusInternalServerError).Render(TemplateList, fiber.Map{
			"Navigation": s.nav(),
			"Error":      "Failed to load time entries",
		}, handler.BaseLayout)
	}

	var running *models.TimeEntry

	for i := range entries {
		if entries[i].UserID == userID && entries[i].EndedAt.IsZero() {
			running = &entries[i]
			break
		}
	}

	return c.Render(TemplateList, fiber.Map{
		"Navigation": s.nav(),
		"Entries":    entries,
		"Running":    running,
		"ShowsAll":   all,
	}, handler.BaseLayout)
}

// startForm is the submitted timer start.
type startForm struct {
	Project     string `form:"project"     validate:"max=150"`
	Description string `form:"description" validate:"max=255"`
}

// Start begins a running entry. A user has at most one running entry;
// starting a second one stops the first.
func (s *Service) Start(c *fiber.Ctx) error {
	userID := currentUserID(c)

	var in startForm
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).SendString("Invalid form data")
	}

	if err := s.validator.Struct(in); err != nil {
		return c.Status(fiber.StatusBadRequest).SendString("Invalid form data")
	}

	now := time.Now()

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := closeRunning(tx, userID, now); err != nil {
			return err
		}

		entry := models.TimeEntry{
			UserID:      userID,
			Project:     in.Project,
			Description: in.Description,
			StartedAt:   now,
		}

		return tx.Create(&entry).Error
	})
	if err != nil {
		log.Error().Err(err).Uint64("user_id", userID).Msg("failed to start time entry")

		return c.Status(fiber.StatusInternalServerError).SendString("Internal Server Error")
	}

	return c.Redirect(Path)
}

// Stop ends the caller's running entry. Stopping with nothing running
// is a no-op redirect.
func (s *Service) Stop(c *fiber.Ctx) error {
	userID := currentUserID(c)

	if err := closeRunning(s.db, userID, time.Now()); err != nil {
		log.Error().Err(err).Uint64("user_id", userID).Msg("failed to stop time entry")

		return c.Status(fiber.StatusInternalServerError).SendString("Internal Server Error")
	}

	return c.Redirect(Path)
}

// closeRunning sets an end time on the user's running entries.
func closeRunning(db *gorm.DB, userID uint64, endedAt time.Time) error {
	return db.Model(&models.TimeEntry{}).
		Where("user_id = ? AND ended_at = ?", userID, time.Time{}).
		Update("ended_at", endedAt).Error
}

// entryForm is a manually submitted timesheet entry.
type entryForm struct {
	Project     string `form:"project"     validate:"max=150"`
	Description string `form:"description" validate:"max=255"`
	StartedAt   string `form:"started_at"  validate:"required"`
	EndedAt     string `form:"ended_at"    validate:"required"`
}

// parseTimes converts the form timestamps. The end must lie after the
// start.
func (in *entryForm) parseTimes() (start, end time.Time, err error) {
	start, err = time.ParseInLocation(timeLayout, in.StartedAt, time.Local)
	if err != nil {
		return start, end, err
	}

	end, err = time.ParseInLocation(timeLayout, in.EndedAt, time.Local)
	if err != nil {
		return start, end, err
	}

	if !end.After(start) {
		return start, end, errors.New("end time must be after start time")
	}

	return start, end, nil
}

// Create stores a manual entry for the caller.
func (s *Service) Create(c *fiber.Ctx) error {
	userID := currentUserID(c)

	var in entryForm
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).SendString("Invalid form data")
	}

	if err := s.validator.Struct(in); err != nil {
		return c.Status(fiber.StatusBadRequest).SendString("Invalid form data")
	}

	start, end, err := in.parseTimes()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).SendString("Invalid time range")
	}

	entry := models.TimeEntry{
		UserID:      userID,
		Project:     in.Project,
		Description: in.Description,
		StartedAt:   start,
		EndedAt:     end,
	}

	if err := s.db.Create(&entry).Error; err != nil {
		log.Error().Err(err).Uint64("user_id", userID).Msg("failed to create time entry")

		return c.Status(fiber.StatusInternalServerError).SendString("Internal Server Error")
	}

	return c.Redirect(Path)
}

// loadOwned fetches an entry and enforces ownership. Holders of the
// all-users scope may load anyone's entry.
func (s *Service) loadOwned(c *fiber.Ctx, id uint64) (*models.TimeEntry, error) {
	var entry models.TimeEntry

	if err := s.db.First(&entry, id).Error; err != nil {
		return nil, err
	}

	if entry.UserID != currentUserID(c) && !canSeeAll(c) {
		return nil, ErrNotOwner
	}

	return &entry, nil
}

// Edit shows the edit form for an entry.
func (s *Service) Edit(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil || id == 0 {
		return c.Redirect(Path)
	}

	entry, err := s.loadOwned(c, id)
	if err != nil {
		return s.entryError(c, id, err)
	}

	nav := navigation.NewContext("Edit Entry", "timesheets", "tracker").
		AddBreadcrumb("Home", dashboard.Path, false).
		AddBreadcrumb("Time Tracker", Path, false).
		AddBreadcrumb("Edit", Path+"/"+strconv.FormatUint(id, 10)+"/edit", true)

	return c.Render(TemplateForm, fiber.Map{
		"Navigation": nav,
		"Entry":      entry,
	}, handler.BaseLayout)
}

// Update replaces an entry's fields.
func (s *Service) Update(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil || id == 0 {
		return c.Redirect(Path)
	}

	entry, err := s.loadOwned(c, id)
	if err != nil {
		return s.entryError(c, id, err)
	}

	var in entryForm
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).SendString("Invalid form data")
	}

	if err := s.validator.Struct(in); err != nil {
		return c.Status(fiber.StatusBadRequest).SendString("Invalid form data")
	}

	start, end, err := in.parseTimes()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).SendString("Invalid time range")
	}

	entry.Project = in.Project
	entry.Description = in.Description
	entry.StartedAt = start
	entry.EndedAt = end

	if err := s.db.Save(entry).Error; err != nil {
		log.Error().Err(err).Uint64("entry_id", id).Msg("failed to update time entry")

		return c.Status(fiber.StatusInternalServerError).SendString("Internal Server Error")
	}

	return c.Redirect(Path)
}

// Delete removes an entry.
func (s *Service) Delete(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil || id == 0 {
		return c.Redirect(Path)
	}

	entry, err := s.loadOwned(c, id)
	if err != nil {
		return s.entryError(c, id, err)
	}

	if err := s.db.Delete(entry).Error; err != nil {
		log.Error().Err(err).Uint64("entry_id", id).Msg("failed to delete time entry")

		return c.Status(fiber.StatusInternalServerError).SendString("Internal Server Error")
	}

	return c.Redirect(Path)
}

// entryError maps loadOwned failures onto responses.
func (s *Service) entryError(c *fiber.Ctx, id uint64, err error) error {
	switch {
	case errors.Is(err, ErrNotOwner):
		log.Warn().Uint64("entry_id", id).Msg("denied access to foreign time entry")

		return c.Status(fiber.StatusForbidden).SendString("Forbidden: You don't have permission to access this resource")
	case errors.Is(err, gorm.ErrRecordNotFound):
		return c.Redirect(Path)
	default:
		log.Error().Err(err).Uint64("entry_id", id).Msg("failed to load time entry")

		return c.Status(fiber.StatusInternalServerError).SendString("Internal Server Error")
	}
}
