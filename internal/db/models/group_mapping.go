package models

import "time"

// GroupMapping maps an external directory group to an internal role.
// When a user logs in via LDAP or OIDC, the group identifiers supplied
// by the directory are matched against these mappings by exact string
// equality, in Position order: the first matching mapping decides the
// user's role. External groups are deliberately not required to be
// unique across mappings; the configured order is the tie-break.
type GroupMapping struct {
	// ID is the unique identifier for the group mapping.
	ID uint `gorm:"primaryKey"`
	// Position is the administrator-configured order of this mapping.
	// Lower positions are matched first.
	Position int `gorm:"not null;index"`
	// ExternalGroup is the directory group identifier (an LDAP group DN
	// or CN, or an OIDC groups-claim value), stored exactly as the
	// directory reports it.
	ExternalGroup string `gorm:"size:255;not null"`
	// RoleID is the ID of the role that members of the group receive.
	RoleID uint `gorm:"not null"`
	// Role is the associated role (loaded via foreign key). A role
	// referenced by a mapping cannot be deleted (RESTRICT); the
	// mapping must be removed or repointed first.
	Role Role `gorm:"foreignKey:RoleID;constraint:OnDelete:RESTRICT"`
	// CreatedAt is the timestamp when the mapping was created (managed by GORM).
	CreatedAt time.Time
	// UpdatedAt is the timestamp when the mapping was last updated (managed by GORM).
	UpdatedAt time.Time
}

// TableName specifies the database table name for the GroupMapping model.
// This overrides GORM's default pluralized table naming.
func (GroupMapping) TableName() string {
	return "group_mappings"
}
