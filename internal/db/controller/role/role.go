// Package role provides the gorm-backed persistence collaborator for
// the rbac role store.
package role

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/tempora-app/tempora/internal/db/controller/provision"
	"github.com/tempora-app/tempora/internal/db/models"
	"github.com/tempora-app/tempora/internal/rbac"
)

// ErrDBNil is returned when the database connection is nil.
var ErrDBNil = errors.New("database connection is nil")

// Controller implements rbac.Repository on top of gorm. Every mutation
// runs in a single transaction so the name-uniqueness constraint of
// the backing store stays the source of truth under concurrency.
type Controller struct {
	db *gorm.DB
}

// New creates a role controller for the given database.
func New(db *gorm.DB) (*Controller, error) {
	if db == nil {
		return nil, ErrDBNil
	}

	return &Controller{db: db}, nil
}

// List returns all roles with their permission sets.
func (c *Controller) List() ([]rbac.Role, error) {
	var rows []models.Role

	if err := c.db.Preload("Permissions").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}

	out := make([]rbac.Role, len(rows))
	for i, row := range rows {
		out[i] = toDomain(row)
	}

	return out, nil
}

// FindByID returns the role with the given id.
func (c *Controller) FindByID(id uint) (*rbac.Role, error) {
	var row models.Role

	err := c.db.Preload("Permissions").First(&row, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, rbac.ErrRoleNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to query role: %w", err)
	}

	role := toDomain(row)

	return &role, nil
}

// FindByName returns the role with the exact given name. The lookup is
// case-sensitive regardless of the database collation.
func (c *Controller) FindByName(name string) (*rbac.Role, error) {
	var rows []models.Role

	if err := c.db.Preload("Permissions").Where("name = ?", name).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query role by name: %w", err)
	}

	for _, row := range rows {
		if row.Name == name {
			role := toDomain(row)
			return &role, nil
		}
	}

	return nil, rbac.ErrRoleNotFound
}

// Create persists a new role and its permission rows, assigning the id.
func (c *Controller) Create(role *rbac.Role) error {
	row := models.Role{
		Name:     role.Name,
		IsSystem: role.IsSystem,
		IsAdmin:  role.IsAdmin,
	}

	err := c.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			return err
		}

		return replacePermissions(tx, row.ID, role.Permissions)
	})
	if err != nil {
		return translateConflict(err)
	}

	role.ID = row.ID

	return nil
}

// Save persists name and permission changes of an existing role as one
// atomic unit.
func (c *Controller) Save(role *rbac.Role) error {
	err := c.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Role{}).
			Where("id = ?", role.ID).
			Update("name", role.Name)
		if result.Error != nil {
			return result.Error
		}

		if result.RowsAffected == 0 {
			return rbac.ErrRoleNotFound
		}

		return replacePermissions(tx, role.ID, role.Permissions)
	})

	return translateConflict(err)
}

// Delete removes a role and its permission rows. A role still assigned
// to users, referenced by a group mapping, or saved as the provisioning
// default is a conflict: deleting it would leave the provisioning
// configuration pointing at a role id that no longer exists.
func (c *Controller) Delete(id uint) error {
	return c.db.Transaction(func(tx *gorm.DB) error {
		referenced, err := roleReferenced(tx, id)
		if err != nil {
			return err
		}

		if referenced {
			return rbac.ErrRoleInUse
		}

		if err := tx.Where("role_id = ?", id).Delete(&models.RolePermission{}).Error; err != nil {
			return fmt.Errorf("failed to delete role permissions: %w", err)
		}

		if err := tx.Delete(&models.Role{}, id).Error; err != nil {
			return fmt.Errorf("failed to delete role: %w", err)
		}

		return nil
	})
}

// InUse reports whether any user holds the role or the provisioning
// configuration references it.
func (c *Controller) InUse(id uint) (bool, error) {
	return roleReferenced(c.db, id)
}

// roleReferenced checks every place a role id may be pointed at: user
// assignments, group mappings and the saved provisioning default.
func roleReferenced(tx *gorm.DB, id uint) (bool, error) {
	var users int64
	if err := tx.Model(&models.User{}).Where("role_id = ?", id).Count(&users).Error; err != nil {
		return false, fmt.Errorf("failed to count role assignments: %w", err)
	}

	if users > 0 {
		return true, nil
	}

	var mappings int64
	if err := tx.Model(&models.GroupMapping{}).Where("role_id = ?", id).Count(&mappings).Error; err != nil {
		return false, fmt.Errorf("failed to count group mappings: %w", err)
	}

	if mappings > 0 {
		return true, nil
	}

	defaultRole, err := provision.DefaultRoleID(tx)
	if err != nil {
		return false, err
	}

	return defaultRole == id, nil
}

// replacePermissions swaps a role's permission rows for the given set.
func replacePermissions(tx *gorm.DB, roleID uint, permissions rbac.PermissionSet) error {
	if err := tx.Where("role_id = ?", roleID).Delete(&models.RolePermission{}).Error; err != nil {
		return fmt.Errorf("failed to clear role permissions: %w", err)
	}

	for _, p := range permissions.Strings() {
		row := models.RolePermission{RoleID: roleID, Permission: p}
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("failed to store role permission: %w", err)
		}
	}

	return nil
}

// translateConflict maps the storage layer's uniqueness violation onto
// the store's duplicate-name error so concurrent creates or renames
// surface the same way a pre-checked duplicate does.
func translateConflict(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return rbac.ErrRoleNameTaken
	}

	return err
}

// toDomain converts a database row into the store's role entity.
func toDomain(row models.Role) rbac.Role {
	perms := make([]string, len(row.Permissions))
	for i, p := range row.Permissions {
		perms[i] = p.Permission
	}

	return rbac.Role{
		ID:          row.ID,
		Name:        row.Name,
		Permissions: rbac.NewPermissionSet(perms...),
		IsSystem:    row.IsSystem,
		IsAdmin:     row.IsAdmin,
	}
}
