// Package docs serves the built-in documentation pages. Viewing them is
// part of the baseline permission set, so every role can open them.
package docs

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tempora-app/tempora/internal/auth"
	"github.com/tempora-app/tempora/internal/config"
	"github.com/tempora-app/tempora/internal/rbac"
	"github.com/tempora-app/tempora/internal/web/handler"
	"github.com/tempora-app/tempora/internal/web/handler/dashboard"
	"github.com/tempora-app/tempora/internal/web/navigation"
)

const (
	// Path is the path to the documentation pages.
	Path = handler.RootPath + "docs"

	// TemplateName is the documentation page template.
	TemplateName = "docs/docs"
)

// topics are the documentation pages, keyed by their URL slug.
var topics = map[string]string{
	"":             "Getting Started",
	"tracker":      "Tracking Time",
	"provisioning": "Directory Group Mappings",
	"roles":        "Roles and Permissions",
	"finances":     "Invoices, Quotes and Payments",
}

// Service provides the documentation handlers.
type Service struct {
	handler.Service
	cfg *config.Config
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

	view := auth.RequirePermission(authService, rbac.Build(rbac.ResourceDocs, rbac.ActionView))

	app.Get(Path, view, s.Get)
	app.Get(Path+"/:topic", view, s.Get)
}

// Get renders a documentation topic; unknown slugs fall back to the
// index.
func (s *Service) Get(c *fiber.Ctx) error {
	topic := c.Params("topic")

	title, ok := topics[topic]
	if !ok {
		return c.Redirect(Path)
	}

	nav := navigation.NewContext(title, "docs", "docs").
		AddBreadcrumb("Home", dashboard.Path, false).
		AddBreadcrumb("Documentation", Path, topic == "")

	if topic != "" {
		nav.AddBreadcrumb(title, Path+"/"+topic, true)
	}

	return c.Render(TemplateName, fiber.Map{
		"Navigation": nav,
		"Topic":      topic,
		"Title":      title,
	}, handler.BaseLayout)
}
