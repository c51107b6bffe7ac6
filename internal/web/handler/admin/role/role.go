// Package role provides handlers for managing roles and their
// permissions in the admin area.
package role

import (
	"errors"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tempora-app/tempora/internal/auth"
	"github.com/tempora-app/tempora/internal/config"
	rolectl "github.com/tempora-app/tempora/internal/db/controller/role"
	"github.com/tempora-app/tempora/internal/rbac"
	"github.com/tempora-app/tempora/internal/web/handler"
	"github.com/tempora-app/tempora/internal/web/handler/dashboard"
	"github.com/tempora-app/tempora/internal/web/navigation"
)

const (
	// Path is the base path for role management.
	Path = handler.RootPath + "admin/role"

	// TemplateList is the template for listing roles.
	TemplateList = "admin/role/list"
	// TemplateForm is the template for creating/updating a role.
	TemplateForm = "admin/role/form"
)

// Service provides CRUD operations for roles.
type Service struct {
	handler.Service
	cfg       *config.Config
	store     *rbac.Store
	catalog   *rbac.Catalog
	validator *validator.Validate
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
	s.store = rbac.NewStore(repo, catalog)
	s.catalog = catalog
	s.validator = validator.New()

	app.Get(Path,
		auth.RequirePermission(authService, rbac.Build(rbac.ResourceRoles, rbac.ActionView)),
		s.List,
	)
	app.Get(Path+"/new",
		auth.RequirePermission(authService, rbac.Build(rbac.ResourceRoles, rbac.ActionCreate)),
		s.New,
	)
	app.Post(Path,
		auth.RequirePermission(authService, rbac.Build(rbac.ResourceRoles, rbac.ActionCreate)),
		s.Create,
	)
	app.Get(Path+"/:id/edit",
		auth.RequirePermission(authService, rbac.Build(rbac.ResourceRoles, rbac.ActionView)),
		s.Edit,
	)
	app.Post(Path+"/:id",
		auth.RequirePermission(authService, rbac.Build(rbac.ResourceRoles, rbac.ActionUpdate)),
		s.Update,
	)
	app.Post(Path+"/:id/delete",
		auth.RequirePermission(authService, rbac.Build(rbac.ResourceRoles, rbac.ActionDelete)),
		s.Delete,
	)
}

// moduleMatrix is one module block of the permission matrix shown on
// the role form.
type moduleMatrix struct {
	Module    string
	Resources []resourceMatrix
}

// resourceMatrix is one row of the permission matrix.
type resourceMatrix struct {
	Resource    string
	Label       string
	IsScope     bool
	Permissions []permissionCell
}

// permissionCell is one checkbox of the permission matrix.
type permissionCell struct {
	Permission string
	Action     rbac.Action
	Checked    bool
	Baseline   bool
}

// matrix builds the permission matrix for the form templates. Baseline
// permissions render checked and disabled: they are granted to every
// role whether the form ticks them or not.
func (s *Service) matrix(granted rbac.PermissionSet) []moduleMatrix {
	baseline := rbac.NewPermissionSet(s.catalog.BaselinePermissions()...)
	byModule := s.catalog.ByModule()

	out := make([]moduleMatrix, 0, len(byModule))

	for _, module := range s.catalog.Modules() {
		mm := moduleMatrix{Module: module}

		for _, def := range byModule[module] {
			rm := resourceMatrix{
				Resource: def.Resource,
				Label:    rbac.Label(def.Resource),
				IsScope:  def.IsScope,
			}

			for _, action := range def.Actions {
				permission := rbac.Build(def.Resource, action)
				rm.Permissions = append(rm.Permissions, permissionCell{
					Permission: permission,
					Action:     action,
					Checked:    granted.Has(permission) || baseline.Has(permission),
					Baseline:   baseline.Has(permission),
				})
			}

			mm.Resources = append(mm.Resources, rm)
		}

		out = append(out, mm)
	}

	return out
}

func (s *Service) listNav() *navigation.Context {
	return navigation.NewContext("Roles", "admin", "role").
		AddBreadcrumb("Home", dashboard.Path, false).
		AddBreadcrumb("Admin", "#", false).
		AddBreadcrumb("Roles", Path, true)
}

// List shows all roles ordered by display name.
func (s *Service) List(c *fiber.Ctx) error {
	nav := s.listNav()

	roles, err := s.store.List()
	if err != nil {
		log.Error().Err(err).Msg("failed to list roles")

		return c.Status(fiber.StatusInternalServerError).Render(TemplateList, fiber.Map{
			"Navigation": nav,
			"Error":      "Failed to load roles",
		}, handler.BaseLayout)
	}

	return c.Render(TemplateList, fiber.Map{
		"Navigation": nav,
		"Roles":      roles,
	}, handler.BaseLayout)
}

// New shows the creation form with an empty permission matrix.
func (s *Service) New(c *fiber.Ctx) error {
	nav := navigation.NewContext("New Role", "admin", "role").
		AddBreadcrumb("Home", dashboard.Path, false).
		AddBreadcrumb("Admin", "#", false).
		AddBreadcrumb("Roles", Path, false).
		AddBreadcrumb("New", Path+"/new", true)

	return c.Render(TemplateForm, fiber.Map{
		"Navigation": nav,
		"IsCreate":   true,
		"Matrix":     s.matrix(rbac.NewPermissionSet()),
	}, handler.BaseLayout)
}

// roleForm is the submitted role form. The permissions field carries
// the checked matrix checkboxes.
type roleForm struct {
	Name        string   `form:"name"        validate:"required,max=100"`
	Permissions []string `form:"permissions"`
}

// Create creates a new role with the submitted permissions.
func (s *Service) Create(c *fiber.Ctx) error {
	var in roleForm

	if err := c.BodyParser(&in); err != nil {
		return s.renderFormError(c, fiber.StatusBadRequest, true, 0, &in, "Invalid form data")
	}

	if err := s.validator.Struct(in); err != nil {
		return s.renderFormError(c, fiber.StatusBadRequest, true, 0, &in, "Please correct the highlighted errors")
	}

	if _, err := s.store.Create(in.Name, in.Permissions); err != nil {
		status, msg := statusForStoreError(err)
		return s.renderFormError(c, status, true, 0, &in, msg)
	}

	return c.Redirect(Path)
}

// Edit shows the edit form for a role.
func (s *Service) Edit(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil || id <= 0 {
		return c.Redirect(Path)
	}

	role, err := s.store.Get(uint(id))
	if err != nil {
		if errors.Is(err, rbac.ErrRoleNotFound) {
			return c.Redirect(Path)
		}

		log.Error().Err(err).Int("role_id", id).Msg("failed to load role")

		return c.Status(fiber.StatusInternalServerError).Render(TemplateForm, fiber.Map{
			"Error": "Failed to load role",
		}, handler.BaseLayout)
	}

	nav := navigation.NewContext("Edit Role", "admin", "role").
		AddBreadcrumb("Home", dashboard.Path, false).
		AddBreadcrumb("Admin", "#", false).
		AddBreadcrumb("Roles", Path, false).
		AddBreadcrumb("Edit", Path+"/"+strconv.Itoa(id)+"/edit", true)

	return c.Render(TemplateForm, fiber.Map{
		"Navigation": nav,
		"IsCreate":   false,
		"Role":       role,
		"Matrix":     s.matrix(role.Permissions),
	}, handler.BaseLayout)
}

// Update renames a role and replaces its permissions. The rename is
// skipped when the submitted name matches the stored one, so a
// protected role's permissions stay editable.
func (s *Service) Update(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil || id <= 0 {
		return c.Redirect(Path)
	}

	var in roleForm

	if err := c.BodyParser(&in); err != nil {
		return s.renderFormError(c, fiber.StatusBadRequest, false, uint(id), &in, "Invalid form data")
	}

	if err := s.validator.Struct(in); err != nil {
		return s.renderFormError(c, fiber.StatusBadRequest, false, uint(id), &in, "Please correct the highlighted errors")
	}

	role, err := s.store.Get(uint(id))
	if err != nil {
		if errors.Is(err, rbac.ErrRoleNotFound) {
			return c.Redirect(Path)
		}

		return s.renderFormError(c, fiber.StatusInternalServerError, false, uint(id), &in, "Failed to load role")
	}

	if in.Name != role.Name {
		if _, err := s.store.Rename(uint(id), in.Name); err != nil {
			status, msg := statusForStoreError(err)
			return s.renderFormError(c, status, false, uint(id), &in, msg)
		}
	}

	if _, err := s.store.SetPermissions(uint(id), in.Permissions); err != nil {
		status, msg := statusForStoreError(err)
		return s.renderFormError(c, status, false, uint(id), &in, msg)
	}

	return c.Redirect(Path)
}

// Delete removes a role.
func (s *Service) Delete(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil || id <= 0 {
		return c.Redirect(Path)
	}

	if err := s.store.Delete(uint(id)); err != nil {
		if errors.Is(err, rbac.ErrRoleNotFound) {
			return c.Redirect(Path)
		}

		status, msg := statusForStoreError(err)
		nav := s.listNav()

		roles, listErr := s.store.List()
		if listErr != nil {
			log.Error().Err(listErr).Msg("failed to list roles")
		}

		return c.Status(status).Render(TemplateList, fiber.Map{
			"Navigation": nav,
			"Roles":      roles,
			"Error":      msg,
		}, handler.BaseLayout)
	}

	return c.Redirect(Path)
}

// renderFormError re-renders the role form with an error banner and
// the submitted values preserved.
func (s *Service) renderFormError(c *fiber.Ctx, status int, isCreate bool, id uint, in *roleForm, msg string) error {
	nav := navigation.NewContext("Roles", "admin", "role").
		AddBreadcrumb("Home", dashboard.Path, false).
		AddBreadcrumb("Admin", "#", false).
		AddBreadcrumb("Roles", Path, true)

	return c.Status(status).Render(TemplateForm, fiber.Map{
		"Navigation": nav,
		"IsCreate":   isCreate,
		"Role":       rbac.Role{ID: id, Name: in.Name},
		"Matrix":     s.matrix(rbac.NewPermissionSet(in.Permissions...)),
		"Error":      msg,
	}, handler.BaseLayout)
}

// statusForStoreError maps role store errors onto HTTP statuses and
// user-facing messages.
func statusForStoreError(err error) (int, string) {
	switch {
	case errors.Is(err, rbac.ErrRoleNameEmpty):
		return fiber.StatusBadRequest, "Role name must not be empty"
	case errors.Is(err, rbac.ErrRoleNameTaken):
		return fiber.StatusBadRequest, "A role with this name already exists"
	case errors.Is(err, rbac.ErrRoleProtected):
		return fiber.StatusForbidden, "This role is protected and can not be renamed or deleted"
	case errors.Is(err, rbac.ErrRoleInUse):
		return fiber.StatusConflict, "This role is still assigned to users or referenced by the provisioning configuration"
	default:
		return fiber.StatusInternalServerError, "Internal server error"
	}
}
