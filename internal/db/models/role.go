package models

import "time"

// Role represents a role in the role-based access control (RBAC) system.
// Roles are named collections of permission strings assignable to users,
// either directly or through directory group mappings at login.
type Role struct {
	// ID is the unique identifier for the role.
	ID uint `gorm:"primaryKey"`
	// Name is the unique name of the role (e.g., "Admin", "Billing").
	// Uniqueness is enforced at the storage layer; concurrent creates
	// with the same name cannot both succeed.
	Name string `gorm:"unique;size:100;not null"`
	// Description provides a human-readable description of the role's purpose.
	Description string `gorm:"size:255"`
	// IsSystem indicates a role that ships with the product. Set at
	// creation and never mutated; system roles cannot be renamed or deleted.
	IsSystem bool `gorm:"default:false"`
	// IsAdmin marks the super-role. Like IsSystem it protects the role
	// record from rename and delete. It grants nothing by itself: the
	// decision engine checks permission strings only, so an admin role
	// must actually hold every permission it is supposed to have.
	IsAdmin bool `gorm:"default:false"`
	// Permissions are the permission string rows granted to this role.
	Permissions []RolePermission `gorm:"foreignKey:RoleID"`
	// CreatedAt is the timestamp when the role was created (managed by GORM).
	CreatedAt time.Time
	// UpdatedAt is the timestamp when the role was last updated (managed by GORM).
	UpdatedAt time.Time
}

// TableName specifies the database table name for the Role model.
// This overrides GORM's default pluralized table naming.
func (Role) TableName() string {
	return "roles"
}
