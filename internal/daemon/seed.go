package daemon

import (
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tempora-app/tempora/internal/config"
	"github.com/tempora-app/tempora/internal/db/controller/provision"
	rolectl "github.com/tempora-app/tempora/internal/db/controller/role"
	"github.com/tempora-app/tempora/internal/db/models"
	"github.com/tempora-app/tempora/internal/rbac"
)

// seed creates the system roles, the provisioning default and the
// initial admin account on a fresh database. It is a no-op once roles
// and users exist.
func seed(cfg *config.Config, db *gorm.DB, catalog *rbac.Catalog) {
	adminRole, userRole := seedRoles(db, catalog)

	if userRole != nil {
		seedProvisioning(db, userRole.ID)
	}

	if adminRole != nil {
		seedAdminUser(cfg, db, adminRole.ID)
	}
}

func seedRoles(db *gorm.DB, catalog *rbac.Catalog) (admin, user *rbac.Role) {
	var count int64
	if err := db.Model(&models.Role{}).Count(&count).Error; err != nil {
		log.Fatal().Err(err).Msg("failed to count roles")
		return nil, nil
	}

	roles, err := rolectl.New(db)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create role controller")
		return nil, nil
	}

	if count > 0 {
		admin, _ = roles.FindByName("Admin")
		user, _ = roles.FindByName("User")

		return admin, user
	}

	admin = &rbac.Role{
		Name:        "Admin",
		Permissions: rbac.NewPermissionSet(catalog.Permissions()...),
		IsSystem:    true,
		IsAdmin:     true,
	}
	if err := roles.Create(admin); err != nil {
		log.Fatal().Err(err).Msg("failed to seed admin role")
		return nil, nil
	}

	user = &rbac.Role{
		Name:        "User",
		Permissions: rbac.NewPermissionSet(catalog.BaselinePermissions()...),
		IsSystem:    true,
	}
	if err := roles.Create(user); err != nil {
		log.Fatal().Err(err).Msg("failed to seed user role")
		return admin, nil
	}

	log.Info().Msg("seeded system roles")

	return admin, user
}

func seedProvisioning(db *gorm.DB, defaultRoleID uint) {
	current, err := provision.Load(db)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load provisioning configuration")
		return
	}

	if current.DefaultRole != 0 {
		return
	}

	err = provision.Save(db, &provision.Config{DefaultRole: defaultRoleID})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to seed provisioning default role")
	}
}

func seedAdminUser(cfg *config.Config, db *gorm.DB, adminRoleID uint) {
	if !cfg.Auth.Local.Enabled {
		return
	}

	var count int64
	if err := db.Model(&models.User{}).Count(&count).Error; err != nil {
		log.Fatal().Err(err).Msg("failed to count users")
		return
	}

	if count > 0 {
		return
	}

	err := db.Create(&models.User{
		Username:   "admin",
		Email:      "admin@localhost",
		Password:   models.HashPassword("changeme"),
		Active:     true,
		AuthSource: models.AuthSourceLocal,
		RoleID:     adminRoleID,
	}).Error
	if err != nil {
		log.Fatal().Err(err).Msg("failed to seed admin user")
		return
	}

	log.Warn().Msg("created initial admin user with default password, change it immediately")
}
