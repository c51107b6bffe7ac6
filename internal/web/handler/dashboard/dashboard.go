// Package dashboard provides the landing page shown after login. It
// renders the navigation menu filtered down to the views the current
// user's permissions unlock, plus a small summary of the running week.
package dashboard

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tempora-app/tempora/internal/auth"
	"github.com/tempora-app/tempora/internal/config"
	"github.com/tempora-app/tempora/internal/db/models"
	"github.com/tempora-app/tempora/internal/rbac"
	"github.com/tempora-app/tempora/internal/web/handler"
	"github.com/tempora-app/tempora/internal/web/navigation"
	"github.com/tempora-app/tempora/internal/web/session"
	"github.com/tempora-app/tempora/internal/web/views"
)

const (
	// Path is the path to the dashboard page.
	Path = handler.RootPath + "dashboard"

	// TemplateName is the name of the dashboard template.
	TemplateName = "dashboard/dashboard"
)

// SectionMenu groups the visible views of one navigation section.
type SectionMenu struct {
	Section string
	Views   []views.View
}

// WeekSummary is the tracked-time summary box on the dashboard.
type WeekSummary struct {
	// Hours is the total completed tracked time of the current user
	// since the start of the week.
	Hours float64
	// Entries is the number of completed entries behind Hours.
	Entries int
	// Running reports whether the user has an entry without an end time.
	Running bool
	// TeamHours is the completed tracked time of all users since the
	// start of the week. Only populated when the user holds the
	// all-users tracker scope.
	TeamHours float64
	// HasTeamHours reports whether TeamHours was computed.
	HasTeamHours bool
}

// Service is the dashboard handler service.
type Service struct {
	handler.Service
	cfg *config.Config
	db  *gorm.DB
}

// Handler is the dashboard handler.
var Handler = Service{}

// Init initializes the dashboard handler.
func (s *Service) Init(app *fiber.App, cfg *config.Config, db *gorm.DB, authService *auth.Service) {
	if app == nil || cfg == nil || db == nil {
		log.Fatal().Msg(handler.ErrNilACDFatalLogMsg)
		return
	}

	s.db = db
	s.cfg = cfg

	// the dashboard is open to every authenticated user; the menu it
	// renders is what the permissions narrow down
	app.Get(Path,
		auth.RequireAuthenticated(),
		auth.AddPermissionsToLocals(authService),
		s.Get,
	)
}

// Get handles the dashboard page rendering.
func (s *Service) Get(c *fiber.Ctx) error {
	nav := navigation.NewContext("Dashboard", "dashboard", "dashboard").
		AddBreadcrumb("Home", Path, false).
		AddBreadcrumb("Dashboard", Path, true)

	user, ok := currentUser(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).SendString("Unauthorized")
	}

	granted := auth.GrantedSet(c)
	menu := buildMenu(views.Visible(granted, views.Table()))

	week, err := s.weekSummary(user.ID, granted, time.Now())
	if err != nil {
		log.Error().Err(err).Uint64("user_id", user.ID).Msg("failed to build week summary")

		return c.Status(fiber.StatusInternalServerError).Render(TemplateName, fiber.Map{
			"Navigation": nav,
			"Error":      "Failed to load dashboard",
		}, handler.BaseLayout)
	}

	return c.Render(TemplateName, fiber.Map{
		"Navigation": nav,
		"User":       user,
		"Menu":       menu,
		"Week":       week,
	}, handler.BaseLayout)
}

// currentUser reads the authenticated user, preferring the local set by
// the global auth middleware and falling back to the session cookie.
func currentUser(c *fiber.Ctx) (models.User, bool) {
	if user, ok := c.Locals("CurrentUser").(models.User); ok && user.ID > 0 {
		return user, true
	}

	sessionID := c.Cookies("session")
	if sessionID == "" {
		return models.User{}, false
	}

	sessData := new(session.Data)
	if err := sessData.Read(sessionID); err != nil || sessData.User.ID == 0 {
		return models.User{}, false
	}

	return sessData.User, true
}

// buildMenu groups visible views by section, preserving their table
// order within each section.
func buildMenu(visible []views.View) []SectionMenu {
	var (
		menu  []SectionMenu
		index = make(map[string]int)
	)

	for _, v := range visible {
		i, ok := index[v.Section]
		if !ok {
			i = len(menu)
			index[v.Section] = i

			menu = append(menu, SectionMenu{Section: v.Section})
		}

		menu[i].Views = append(menu[i].Views, v)
	}

	return menu
}

// weekSummary sums the user's completed time entries since the start of
// the current week (Monday, local time). The team total is only
// computed for holders of the all-users tracker scope.
func (s *Service) weekSummary(userID uint64, granted rbac.PermissionSet, now time.Time) (*WeekSummary, error) {
	weekStart := startOfWeek(now)
	summary := new(WeekSummary)

	var entries []models.TimeEntry

	err := s.db.
		Where("user_id = ? AND started_at >= ?", userID, weekStart).
		Find(&entries).Error
	if err != nil {
		return nil, err
	}

	for _, e := range entries {
		if e.EndedAt.IsZero() {
			summary.Running = true
			continue
		}

		summary.Hours += e.EndedAt.Sub(e.StartedAt).Hours()
		summary.Entries++
	}

	if !granted.Has(rbac.Build(rbac.ResourceTrackerAll, rbac.ActionView)) {
		return summary, nil
	}

	var all []models.TimeEntry

	err = s.db.
		Where("started_at >= ?", weekStart).
		Find(&all).Error
	if err != nil {
		return nil, err
	}

	for _, e := range all {
		if e.EndedAt.IsZero() {
			continue
		}

		summary.TeamHours += e.EndedAt.Sub(e.StartedAt).Hours()
	}

	summary.HasTeamHours = true

	return summary, nil
}

// startOfWeek returns midnight of the Monday of now's week.
func startOfWeek(now time.Time) time.Time {
	day := now.Truncate(0)

	weekday := int(day.Weekday())
	if weekday == 0 {
		weekday = 7
	}

	monday := day.AddDate(0, 0, -(weekday - 1))

	return time.Date(monday.Year(), monday.Month(), monday.Day(), 0, 0, 0, 0, monday.Location())
}
