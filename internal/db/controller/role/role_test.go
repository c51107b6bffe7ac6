package role

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/tempora-app/tempora/internal/db/controller/provision"
	"github.com/tempora-app/tempora/internal/db/models"
	"github.com/tempora-app/tempora/internal/rbac"
)

// setupTestDB creates an in-memory SQLite database for testing.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err, "failed to create test database")

	err = db.AutoMigrate(
		&models.Role{},
		&models.RolePermission{},
		&models.User{},
		&models.GroupMapping{},
		&models.Setting{},
	)
	require.NoError(t, err, "failed to migrate test database")

	return db
}

func setupController(t *testing.T) (*Controller, *gorm.DB) {
	t.Helper()

	db := setupTestDB(t)

	c, err := New(db)
	require.NoError(t, err)

	return c, db
}

func TestNew_NilDB(t *testing.T) {
	c, err := New(nil)
	require.ErrorIs(t, err, ErrDBNil)
	assert.Nil(t, c)
}

func TestController_CreateAndFind(t *testing.T) {
	c, _ := setupController(t)

	role := &rbac.Role{
		Name:        "Billing",
		Permissions: rbac.NewPermissionSet("finances.invoices.view", "finances.payments.view"),
	}

	require.NoError(t, c.Create(role))
	assert.NotZero(t, role.ID)

	byID, err := c.FindByID(role.ID)
	require.NoError(t, err)
	assert.Equal(t, "Billing", byID.Name)
	assert.True(t, byID.Permissions.Has("finances.invoices.view"))
	assert.True(t, byID.Permissions.Has("finances.payments.view"))
	assert.False(t, byID.Permissions.Has("finances.payments.create"))

	byName, err := c.FindByName("Billing")
	require.NoError(t, err)
	assert.Equal(t, role.ID, byName.ID)
}

func TestController_FindNotFound(t *testing.T) {
	c, _ := setupController(t)

	_, err := c.FindByID(42)
	assert.ErrorIs(t, err, rbac.ErrRoleNotFound)

	_, err = c.FindByName("missing")
	assert.ErrorIs(t, err, rbac.ErrRoleNotFound)
}

func TestController_FindByName_CaseSensitive(t *testing.T) {
	c, _ := setupController(t)

	require.NoError(t, c.Create(&rbac.Role{Name: "Billing", Permissions: rbac.NewPermissionSet()}))

	_, err := c.FindByName("billing")
	assert.ErrorIs(t, err, rbac.ErrRoleNotFound)
}

func TestController_Create_DuplicateName(t *testing.T) {
	c, _ := setupController(t)

	require.NoError(t, c.Create(&rbac.Role{Name: "Billing", Permissions: rbac.NewPermissionSet()}))

	err := c.Create(&rbac.Role{Name: "Billing", Permissions: rbac.NewPermissionSet()})
	assert.ErrorIs(t, err, rbac.ErrRoleNameTaken)
}

func TestController_Save_ReplacesPermissions(t *testing.T) {
	c, _ := setupController(t)

	role := &rbac.Role{
		Name:        "Tracker",
		Permissions: rbac.NewPermissionSet("timesheets.tracker.view"),
	}
	require.NoError(t, c.Create(role))

	role.Name = "Time Tracking"
	role.Permissions = rbac.NewPermissionSet("timesheets.tracker_all.view")
	require.NoError(t, c.Save(role))

	stored, err := c.FindByID(role.ID)
	require.NoError(t, err)
	assert.Equal(t, "Time Tracking", stored.Name)
	assert.True(t, stored.Permissions.Has("timesheets.tracker_all.view"))
	assert.False(t, stored.Permissions.Has("timesheets.tracker.view"))
}

func TestController_Save_NotFound(t *testing.T) {
	c, _ := setupController(t)

	err := c.Save(&rbac.Role{ID: 42, Name: "Ghost", Permissions: rbac.NewPermissionSet()})
	assert.ErrorIs(t, err, rbac.ErrRoleNotFound)
}

// Unknown permission strings are stored verbatim; the decision engine
// simply never matches them.
func TestController_StoresUnknownPermissionStrings(t *testing.T) {
	c, _ := setupController(t)

	role := &rbac.Role{
		Name:        "Odd",
		Permissions: rbac.NewPermissionSet("no.such.resource.view"),
	}
	require.NoError(t, c.Create(role))

	stored, err := c.FindByID(role.ID)
	require.NoError(t, err)
	assert.True(t, stored.Permissions.Has("no.such.resource.view"))
}

func TestController_DeleteAndInUse(t *testing.T) {
	c, db := setupController(t)

	role := &rbac.Role{Name: "Temp", Permissions: rbac.NewPermissionSet("docs.docs.view")}
	require.NoError(t, c.Create(role))

	// assign a user to the role
	user := models.User{Username: "jo", RoleID: role.ID, Active: true}
	require.NoError(t, db.Create(&user).Error)

	inUse, err := c.InUse(role.ID)
	require.NoError(t, err)
	assert.True(t, inUse)

	err = c.Delete(role.ID)
	assert.ErrorIs(t, err, rbac.ErrRoleInUse)

	// reassigning the user frees the role
	other := &rbac.Role{Name: "Other", Permissions: rbac.NewPermissionSet()}
	require.NoError(t, c.Create(other))
	require.NoError(t, db.Model(&models.User{}).Where("id = ?", user.ID).Update("role_id", other.ID).Error)

	require.NoError(t, c.Delete(role.ID))

	_, err = c.FindByID(role.ID)
	assert.ErrorIs(t, err, rbac.ErrRoleNotFound)

	// permission rows are gone too
	var count int64
	require.NoError(t, db.Model(&models.RolePermission{}).Where("role_id = ?", role.ID).Count(&count).Error)
	assert.Zero(t, count)
}

// A role saved as the provisioning default stays deletable only after
// the default is repointed; otherwise the stored configuration would
// resolve logins to a role id that no longer exists.
func TestController_Delete_ProvisioningDefaultConflict(t *testing.T) {
	c, db := setupController(t)

	contractors := &rbac.Role{Name: "Contractors", Permissions: rbac.NewPermissionSet("docs.docs.view")}
	require.NoError(t, c.Create(contractors))

	fallback := &rbac.Role{Name: "Fallback", Permissions: rbac.NewPermissionSet()}
	require.NoError(t, c.Create(fallback))

	require.NoError(t, provision.Save(db, &provision.Config{DefaultRole: contractors.ID}))

	inUse, err := c.InUse(contractors.ID)
	require.NoError(t, err)
	assert.True(t, inUse)

	err = c.Delete(contractors.ID)
	assert.ErrorIs(t, err, rbac.ErrRoleInUse)

	// the configured default still resolves to an existing role
	cfg, err := provision.Load(db)
	require.NoError(t, err)
	assert.Equal(t, contractors.ID, cfg.DefaultRole)

	_, err = c.FindByID(contractors.ID)
	require.NoError(t, err)

	// repointing the default frees the role
	require.NoError(t, provision.Save(db, &provision.Config{DefaultRole: fallback.ID}))
	require.NoError(t, c.Delete(contractors.ID))
}

// A role targeted by a group mapping cannot be deleted either; the
// mapping has to be removed or repointed first.
func TestController_Delete_MappedRoleConflict(t *testing.T) {
	c, db := setupController(t)

	staff := &rbac.Role{Name: "Staff", Permissions: rbac.NewPermissionSet()}
	require.NoError(t, c.Create(staff))

	def := &rbac.Role{Name: "Default", Permissions: rbac.NewPermissionSet()}
	require.NoError(t, c.Create(def))

	require.NoError(t, provision.Save(db, &provision.Config{
		Mappings:    []rbac.GroupMapping{{ExternalGroup: "cn=staff", RoleID: staff.ID}},
		DefaultRole: def.ID,
	}))

	err := c.Delete(staff.ID)
	assert.ErrorIs(t, err, rbac.ErrRoleInUse)

	// dropping the mapping frees the role
	require.NoError(t, provision.Save(db, &provision.Config{DefaultRole: def.ID}))
	require.NoError(t, c.Delete(staff.ID))
}

// The controller plugged into the store satisfies the full contract:
// baseline union, invariant protection and collated listing.
func TestController_WithStore(t *testing.T) {
	c, _ := setupController(t)

	catalog := rbac.NewCatalog([]rbac.Definition{
		{Resource: "finances.payments", Actions: rbac.CRUDActions},
		{Resource: "settings.settings", Actions: []rbac.Action{rbac.ActionView, rbac.ActionUpdate}},
		{Resource: "docs.docs", Actions: rbac.ViewOnly},
		{Resource: "notifications.inbox", Actions: rbac.ViewOnly},
	})

	store := rbac.NewStore(c, catalog)

	admin := &rbac.Role{Name: "Admin", IsAdmin: true, Permissions: rbac.NewPermissionSet(catalog.Permissions()...)}
	require.NoError(t, c.Create(admin))

	billing, err := store.Create("Billing", []string{"finances.payments.view"})
	require.NoError(t, err)
	assert.True(t, billing.Permissions.Has("settings.settings.update"))

	_, err = store.Rename(admin.ID, "Root")
	assert.ErrorIs(t, err, rbac.ErrRoleProtected)

	err = store.Delete(admin.ID)
	assert.ErrorIs(t, err, rbac.ErrRoleProtected)

	kept, err := c.FindByID(admin.ID)
	require.NoError(t, err)
	assert.Equal(t, "Admin", kept.Name)

	roles, err := store.List()
	require.NoError(t, err)
	require.Len(t, roles, 2)
	assert.Equal(t, "Admin", roles[0].Name)
	assert.Equal(t, "Billing", roles[1].Name)
}
