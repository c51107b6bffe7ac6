package auth

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/tempora-app/tempora/internal/db/controller/provision"
	"github.com/tempora-app/tempora/internal/db/models"
	"github.com/tempora-app/tempora/internal/rbac"
)

// Service answers authorization questions for authenticated users.
// Decisions are pure membership checks against the permission strings
// of the user's role; the service itself holds no policy.
type Service struct {
	db *gorm.DB
}

// NewService creates a new auth service.
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// PermissionsForUser returns the granted permission set of the user's
// role. A user without a role gets an empty set, which denies
// everything (fail-closed).
func (s *Service) PermissionsForUser(userID uint64) (rbac.PermissionSet, error) {
	var permissions []string

	err := s.db.Table("role_permissions").
		Select("role_permissions.permission").
		Joins("JOIN users ON users.role_id = role_permissions.role_id").
		Where("users.id = ?", userID).
		Pluck("role_permissions.permission", &permissions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load user permissions: %w", err)
	}

	return rbac.NewPermissionSet(permissions...), nil
}

// HasPermission checks if a user's role holds a specific permission.
func (s *Service) HasPermission(userID uint64, permission string) (bool, error) {
	granted, err := s.PermissionsForUser(userID)
	if err != nil {
		return false, err
	}

	return granted.Has(permission), nil
}

// HasAnyPermission checks if a user's role holds at least one of the
// given permissions.
func (s *Service) HasAnyPermission(userID uint64, permissions []string) (bool, error) {
	if len(permissions) == 0 {
		return false, nil
	}

	granted, err := s.PermissionsForUser(userID)
	if err != nil {
		return false, err
	}

	return granted.HasAny(permissions...), nil
}

// AssignRoleToUser assigns a role to a user (for local users).
func (s *Service) AssignRoleToUser(userID uint64, roleID uint) error {
	return s.db.Model(&models.User{}).
		Where("id = ?", userID).
		Update("role_id", roleID).Error
}

// ResolveProvisionedRole resolves the role of an external-directory
// user from their group memberships. Providers call this on every LDAP
// and OIDC login after authentication succeeds, so directory changes
// take effect at the next login. The stored mapping configuration was
// validated at save time; resolution itself cannot fail.
func (s *Service) ResolveProvisionedRole(groups []string) (uint, error) {
	cfg, err := provision.Load(s.db)
	if err != nil {
		return 0, fmt.Errorf("failed to load provisioning configuration: %w", err)
	}

	return rbac.ResolveRole(groups, cfg.Mappings, cfg.DefaultRole), nil
}
