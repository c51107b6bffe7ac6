package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPermissionSet_Has(t *testing.T) {
	granted := NewPermissionSet("timesheets.tracker.view", "timesheets.tracker.create")

	assert.True(t, granted.Has("timesheets.tracker.view"))
	assert.False(t, granted.Has("timesheets.tracker.delete"))

	// fail-closed: a well-formed string absent from any catalog still
	// never matches
	assert.False(t, granted.Has("nonexistent.resource.view"))
	assert.False(t, granted.Has(""))
	assert.False(t, NewPermissionSet().Has("timesheets.tracker.view"))
}

func TestPermissionSet_HasAny(t *testing.T) {
	granted := NewPermissionSet("timesheets.tracker_all.view")

	// scope OR base permission reaches the tracker
	assert.True(t, granted.HasAny("timesheets.tracker.view", "timesheets.tracker_all.view"))
	assert.False(t, granted.HasAny("timesheets.tracker.view", "timesheets.reports.view"))
	assert.False(t, granted.HasAny())
}

// The decision engine has no special case for admin roles: a role
// flagged admin but missing a permission string is denied like any
// other. Do not "fix" this into a bypass; it is a security-relevant
// behavior.
func TestNoAdminBypass(t *testing.T) {
	admin := Role{
		Name:        "Admin",
		IsAdmin:     true,
		Permissions: NewPermissionSet("administration.roles.view"),
	}

	assert.True(t, admin.Permissions.Has("administration.roles.view"))
	assert.False(t, admin.Permissions.Has("administration.roles.delete"))
}

func TestVisibleViews(t *testing.T) {
	table := []ViewPermission{
		{ViewID: "dashboard", Permission: "docs.docs.view"},
		{ViewID: "tracker", Permission: "timesheets.tracker.view"},
		{ViewID: "invoices", Permission: "finances.invoices.view"},
		{ViewID: "roles", Permission: "administration.roles.view"},
	}

	granted := NewPermissionSet("docs.docs.view", "finances.invoices.view")

	// table order is preserved, non-matching views are dropped
	assert.Equal(t, []string{"dashboard", "invoices"}, VisibleViews(granted, table))
	assert.Empty(t, VisibleViews(NewPermissionSet(), table))
}
