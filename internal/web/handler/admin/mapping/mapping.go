// Package mapping provides handlers for the directory group mapping
// configuration in the admin area. Administrators maintain an ordered
// list of external group to role mappings plus a default role; logins
// through LDAP or OIDC resolve their role against this list.
package mapping

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tempora-app/tempora/internal/auth"
	"github.com/tempora-app/tempora/internal/config"
	"github.com/tempora-app/tempora/internal/db/controller/provision"
	rolectl "github.com/tempora-app/tempora/internal/db/controller/role"
	"github.com/tempora-app/tempora/internal/rbac"
	"github.com/tempora-app/tempora/internal/web/handler"
	"github.com/tempora-app/tempora/internal/web/handler/dashboard"
	"github.com/tempora-app/tempora/internal/web/navigation"
)

const (
	// Path is the base path for group mapping management.
	Path = handler.RootPath + "admin/mapping"

	// TemplateName is the template for the mapping configuration page.
	TemplateName = "admin/mapping/form"
)

// Service provides the group mapping configuration page.
type Service struct {
	handler.Service
	cfg   *config.Config
	db    *gorm.DB
	store *rbac.Store
}

// Handler is the exported instance.
var Handler = Service{}

// Init registers routes.
func (s *Service) Init(app *fiber.App, cfg *config.Config, db *gorm.DB, authService *auth.Service, catalog *rbac.Catalog) {
	if app == nil || cfg == nil || db == nil {
		log.Fatal().Msg(handler.ErrNilACDFatalLogMsg)
		return
	}

	repo, err := rolectl.New(db)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create role controller")
		return
	}

	s.cfg = cfg
	s.db = db
	s.store = rbac.NewStore(repo, catalog)

	app.Get(Path,
		auth.RequirePermission(authService, rbac.Build(rbac.ResourceGroupMappings, rbac.ActionView)),
		s.Show,
	)
	app.Post(Path,
		auth.RequirePermission(authService, rbac.Build(rbac.ResourceGroupMappings, rbac.ActionUpdate)),
		s.Save,
	)
}

func (s *Service) nav() *navigation.Context {
	return navigation.NewContext("Group Mappings", "admin", "mapping").
		AddBreadcrumb("Home", dashboard.Path, false).
		AddBreadcrumb("Admin", "#", false).
		AddBreadcrumb("Group Mappings", Path, true)
}

// render draws the configuration page with the given mapping list and
// default role. Roles are loaded fresh for the dropdowns.
func (s *Service) render(c *fiber.Ctx, status int, cfg *provision.Config, errMsg string) error {
	roles, err := s.store.List()
	if err != nil {
		log.Error().Err(err).Msg("failed to list roles")

		return c.Status(fiber.StatusInternalServerError).Render(TemplateName, fiber.Map{
			"Navigation": s.nav(),
			"Error":      "Failed to load roles",
		}, handler.BaseLayout)
	}

	data := fiber.Map{
		"Navigation":  s.nav(),
		"Roles":       roles,
		"Mappings":    cfg.Mappings,
		"DefaultRole": cfg.DefaultRole,
	}
	if errMsg != "" {
		data["Error"] = errMsg
	}

	return c.Status(status).Render(TemplateName, data, handler.BaseLayout)
}

// Show displays the current mapping configuration in its resolution
// order.
func (s *Service) Show(c *fiber.Ctx) error {
	cfg, err := provision.Load(s.db)
	if err != nil {
		log.Error().Err(err).Msg("failed to load provisioning configuration")

		return c.Status(fiber.StatusInternalServerError).Render(TemplateName, fiber.Map{
			"Navigation": s.nav(),
			"Error":      "Failed to load group mappings",
		}, handler.BaseLayout)
	}

	return s.render(c, fiber.StatusOK, cfg, "")
}

// mappingForm is the submitted configuration. The row arrays are
// parallel and ordered; their order is the resolution order.
type mappingForm struct {
	ExternalGroups []string `form:"external_group"`
	RoleIDs        []string `form:"role_id"`
	DefaultRole    uint     `form:"default_role"`
}

// toConfig zips the parallel form arrays into a provisioning
// configuration. Rows left fully empty are dropped; everything else is
// passed through untouched so validation can reject it with a precise
// error.
func (in *mappingForm) toConfig() (*provision.Config, error) {
	if len(in.ExternalGroups) != len(in.RoleIDs) {
		return nil, errors.New("mismatched mapping rows")
	}

	cfg := &provision.Config{DefaultRole: in.DefaultRole}

	for i := range in.ExternalGroups {
		group := strings.TrimSpace(in.ExternalGroups[i])
		roleRaw := strings.TrimSpace(in.RoleIDs[i])

		if group == "" && (roleRaw == "" || roleRaw == "0") {
			continue
		}

		roleID, err := strconv.ParseUint(roleRaw, 10, 32)
		if err != nil {
			roleID = 0
		}

		cfg.Mappings = append(cfg.Mappings, rbac.GroupMapping{
			ExternalGroup: group,
			RoleID:        uint(roleID),
		})
	}

	return cfg, nil
}

// Save replaces the whole mapping configuration. Validation failures
// come back as a 400 with the submitted rows preserved; nothing is
// stored unless the entire configuration is valid.
func (s *Service) Save(c *fiber.Ctx) error {
	var in mappingForm

	if err := c.BodyParser(&in); err != nil {
		empty := &provision.Config{}
		return s.render(c, fiber.StatusBadRequest, empty, "Invalid form data")
	}

	cfg, err := in.toConfig()
	if err != nil {
		empty := &provision.Config{}
		return s.render(c, fiber.StatusBadRequest, empty, "Invalid form data")
	}

	if err := provision.Save(s.db, cfg); err != nil {
		status, msg := statusForSaveError(err)
		return s.render(c, status, cfg, msg)
	}

	return c.Redirect(Path)
}

// statusForSaveError maps provisioning validation errors onto HTTP
// statuses and user-facing messages.
func statusForSaveError(err error) (int, string) {
	switch {
	case errors.Is(err, rbac.ErrDefaultRoleMissing):
		return fiber.StatusBadRequest, "The default role does not exist"
	case errors.Is(err, rbac.ErrMappedRoleMissing):
		return fiber.StatusBadRequest, "A mapping points at a role that does not exist"
	case errors.Is(err, rbac.ErrMappingGroupEmpty):
		return fiber.StatusBadRequest, "Every mapping needs an external group name"
	default:
		return fiber.StatusInternalServerError, "Failed to store group mappings"
	}
}
