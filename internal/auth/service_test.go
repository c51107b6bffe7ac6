package auth

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tempora-app/tempora/internal/db/controller/provision"
	"github.com/tempora-app/tempora/internal/db/models"
	"github.com/tempora-app/tempora/internal/rbac"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.Role{},
		&models.RolePermission{},
		&models.GroupMapping{},
		&models.Setting{},
		&models.User{},
	))

	return db
}

func createRole(t *testing.T, db *gorm.DB, name string, permissions ...string) *models.Role {
	t.Helper()

	role := &models.Role{Name: name}
	for _, p := range permissions {
		role.Permissions = append(role.Permissions, models.RolePermission{Permission: p})
	}

	require.NoError(t, db.Create(role).Error)

	return role
}

func createUser(t *testing.T, db *gorm.DB, username string, roleID uint) *models.User {
	t.Helper()

	user := &models.User{
		Active:     true,
		Username:   username,
		Email:      username + "@example.com",
		RoleID:     roleID,
		AuthSource: models.AuthSourceLocal,
	}
	require.NoError(t, db.Create(user).Error)

	return user
}

func TestService_PermissionsForUser(t *testing.T) {
	db := setupTestDB(t)
	service := NewService(db)

	role := createRole(t, db, "Accounting", "invoices.read", "invoices.create", "settings.view")
	user := createUser(t, db, "alice", role.ID)

	granted, err := service.PermissionsForUser(user.ID)
	require.NoError(t, err)

	assert.True(t, granted.Has("invoices.read"))
	assert.True(t, granted.Has("settings.view"))
	assert.False(t, granted.Has("invoices.delete"))
}

func TestService_PermissionsForUser_UnknownUser(t *testing.T) {
	db := setupTestDB(t)
	service := NewService(db)

	granted, err := service.PermissionsForUser(9999)
	require.NoError(t, err)
	assert.Empty(t, granted)
}

func TestService_HasPermission(t *testing.T) {
	db := setupTestDB(t)
	service := NewService(db)

	role := createRole(t, db, "Viewer", "reports.view")
	user := createUser(t, db, "bob", role.ID)

	tests := []struct {
		name       string
		permission string
		want       bool
	}{
		{name: "granted permission", permission: "reports.view", want: true},
		{name: "missing permission", permission: "reports.create", want: false},
		{name: "unknown permission string never matches", permission: "no.such.permission", want: false},
		{name: "empty string never matches", permission: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := service.HasPermission(user.ID, tt.permission)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestService_HasAnyPermission(t *testing.T) {
	db := setupTestDB(t)
	service := NewService(db)

	role := createRole(t, db, "Tracker", "tracker.view")
	user := createUser(t, db, "carol", role.ID)

	got, err := service.HasAnyPermission(user.ID, []string{"tracker_all.view", "tracker.view"})
	require.NoError(t, err)
	assert.True(t, got)

	got, err = service.HasAnyPermission(user.ID, []string{"reports.view", "reports_all.view"})
	require.NoError(t, err)
	assert.False(t, got)

	got, err = service.HasAnyPermission(user.ID, nil)
	require.NoError(t, err)
	assert.False(t, got)
}

// A role flagged as admin protects the role record itself from rename
// and delete. It grants nothing: authorization checks only ever consult
// the stored permission strings.
func TestService_NoAdminBypass(t *testing.T) {
	db := setupTestDB(t)
	service := NewService(db)

	admin := &models.Role{Name: "Admin", IsAdmin: true, Permissions: []models.RolePermission{
		{Permission: "administration.roles.read"},
	}}
	require.NoError(t, db.Create(admin).Error)

	user := createUser(t, db, "root", admin.ID)

	got, err := service.HasPermission(user.ID, "invoices.delete")
	require.NoError(t, err)
	assert.False(t, got)

	got, err = service.HasPermission(user.ID, "administration.roles.read")
	require.NoError(t, err)
	assert.True(t, got)
}

func TestService_AssignRoleToUser(t *testing.T) {
	db := setupTestDB(t)
	service := NewService(db)

	viewer := createRole(t, db, "Viewer", "reports.view")
	editor := createRole(t, db, "Editor", "reports.view", "reports.create")
	user := createUser(t, db, "dave", viewer.ID)

	require.NoError(t, service.AssignRoleToUser(user.ID, editor.ID))

	granted, err := service.PermissionsForUser(user.ID)
	require.NoError(t, err)
	assert.True(t, granted.Has("reports.create"))
}

func TestService_ResolveProvisionedRole(t *testing.T) {
	db := setupTestDB(t)
	service := NewService(db)

	member := createRole(t, db, "Member")
	admins := createRole(t, db, "Admins")
	devs := createRole(t, db, "Developers")

	cfg := &provision.Config{
		Mappings: []rbac.GroupMapping{
			{ExternalGroup: "cn=admins,ou=groups,dc=example,dc=org", RoleID: admins.ID},
			{ExternalGroup: "cn=devs,ou=groups,dc=example,dc=org", RoleID: devs.ID},
		},
		DefaultRole: member.ID,
	}
	require.NoError(t, provision.Save(db, cfg))

	tests := []struct {
		name   string
		groups []string
		want   uint
	}{
		{
			name:   "first configured mapping wins over later ones",
			groups: []string{"cn=devs,ou=groups,dc=example,dc=org", "cn=admins,ou=groups,dc=example,dc=org"},
			want:   admins.ID,
		},
		{
			name:   "single match",
			groups: []string{"cn=devs,ou=groups,dc=example,dc=org"},
			want:   devs.ID,
		},
		{
			name:   "no match falls back to default role",
			groups: []string{"cn=staff,ou=groups,dc=example,dc=org"},
			want:   member.ID,
		},
		{
			name:   "no groups at all falls back to default role",
			groups: nil,
			want:   member.ID,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := service.ResolveProvisionedRole(tt.groups)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
