// Package provision persists the directory provisioning configuration:
// the ordered group-to-role mapping list and the default role applied
// when no mapping matches.
package provision

import (
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/tempora-app/tempora/internal/db/controller/setting"
	"github.com/tempora-app/tempora/internal/db/models"
	"github.com/tempora-app/tempora/internal/rbac"
)

const (
	// SettingKeyDefaultRole is the key used to store the provisioning
	// default role in the settings table.
	SettingKeyDefaultRole = "provision.default_role"
)

// ErrDBNil is returned when the database connection is nil.
var ErrDBNil = errors.New("database connection is nil")

// defaultRoleSetting is the JSON blob stored under SettingKeyDefaultRole.
type defaultRoleSetting struct {
	RoleID uint `json:"roleId"`
}

// Config is the resolved provisioning configuration as the login flow
// consumes it: mappings in administrator order plus the default role.
type Config struct {
	Mappings    []rbac.GroupMapping
	DefaultRole uint
}

// Load reads the current provisioning configuration. Mappings come
// back in their configured order, ready for first-match-wins
// resolution.
func Load(db *gorm.DB) (*Config, error) {
	if db == nil {
		return nil, ErrDBNil
	}

	var rows []models.GroupMapping

	if err := db.Order("position ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load group mappings: %w", err)
	}

	cfg := &Config{
		Mappings: make([]rbac.GroupMapping, len(rows)),
	}

	for i, row := range rows {
		cfg.Mappings[i] = rbac.GroupMapping{
			ExternalGroup: row.ExternalGroup,
			RoleID:        row.RoleID,
		}
	}

	defaultRole, err := DefaultRoleID(db)
	if err != nil {
		return nil, err
	}

	cfg.DefaultRole = defaultRole

	return cfg, nil
}

// DefaultRoleID returns the configured provisioning default role id, or
// zero when none has been saved yet.
func DefaultRoleID(db *gorm.DB) (uint, error) {
	if db == nil {
		return 0, ErrDBNil
	}

	s, err := setting.Get(db, SettingKeyDefaultRole)
	if errors.Is(err, setting.ErrSettingNotFound) {
		return 0, nil
	}

	if err != nil {
		return 0, err
	}

	var def defaultRoleSetting
	if err := json.Unmarshal(s.Value, &def); err != nil {
		return 0, fmt.Errorf("failed to decode default role setting: %w", err)
	}

	return def.RoleID, nil
}

// Save replaces the provisioning configuration. The whole configuration
// is validated first: a dangling default role or mapped role is a
// configuration error surfaced to the administrator here, never at
// login-time resolution.
func Save(db *gorm.DB, cfg *Config) error {
	if db == nil {
		return ErrDBNil
	}

	exists := func(id uint) (bool, error) {
		var count int64
		if err := db.Model(&models.Role{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return false, fmt.Errorf("failed to check role existence: %w", err)
		}

		return count > 0, nil
	}

	if err := rbac.ValidateMappings(cfg.Mappings, cfg.DefaultRole, exists); err != nil {
		return err
	}

	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&models.GroupMapping{}).Error; err != nil {
			return fmt.Errorf("failed to clear group mappings: %w", err)
		}

		for i, m := range cfg.Mappings {
			row := models.GroupMapping{
				Position:      i,
				ExternalGroup: m.ExternalGroup,
				RoleID:        m.RoleID,
			}

			if err := tx.Create(&row).Error; err != nil {
				return fmt.Errorf("failed to store group mapping: %w", err)
			}
		}

		value, err := json.Marshal(defaultRoleSetting{RoleID: cfg.DefaultRole})
		if err != nil {
			return fmt.Errorf("failed to encode default role setting: %w", err)
		}

		if _, err := setting.Set(tx, SettingKeyDefaultRole, value); err != nil {
			return err
		}

		return nil
	})
}
