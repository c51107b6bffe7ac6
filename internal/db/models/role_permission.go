package models

// RolePermission stores one granted permission string of a role.
// Permissions are flat "resource.action" strings produced by the rbac
// codec; they are stored verbatim and matched by exact string equality
// only. A row holding an unknown string grants nothing.
// When a role is deleted, its permission rows are removed (CASCADE).
type RolePermission struct {
	// RoleID is the ID of the role this grant belongs to.
	RoleID uint `gorm:"primaryKey;column:role_id"`
	// Permission is the granted permission string (e.g. "finances.invoices.view").
	Permission string `gorm:"primaryKey;size:150;column:permission"`
	// Role is the associated role (loaded via foreign key).
	Role Role `gorm:"foreignKey:RoleID;constraint:OnDelete:CASCADE"`
}

// TableName specifies the database table name for the RolePermission model.
// This overrides GORM's default pluralized table naming.
func (RolePermission) TableName() string {
	return "role_permissions"
}
