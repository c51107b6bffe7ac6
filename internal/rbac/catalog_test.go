package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCatalog_Order(t *testing.T) {
	c := NewCatalog([]Definition{
		{Resource: "finances.invoices", Actions: CRUDActions},
		{Resource: "timesheets.tracker", Actions: CRUDActions},
		{Resource: "finances.payments", Actions: CRUDActions},
	})

	defs := c.Definitions()
	require.Len(t, defs, 3)
	assert.Equal(t, "finances.invoices", defs[0].Resource)
	assert.Equal(t, "timesheets.tracker", defs[1].Resource)
	assert.Equal(t, "finances.payments", defs[2].Resource)

	// module order is first-seen
	assert.Equal(t, []string{"finances", "timesheets"}, c.Modules())

	byMod := c.ByModule()
	require.Len(t, byMod["finances"], 2)
	assert.Equal(t, "finances.invoices", byMod["finances"][0].Resource)
	assert.Equal(t, "finances.payments", byMod["finances"][1].Resource)
}

func TestNewCatalog_CanonicalActionOrder(t *testing.T) {
	c := NewCatalog([]Definition{
		// declared out of order on purpose
		{Resource: "projects.tasks", Actions: []Action{ActionDelete, ActionView, ActionCreate, ActionUpdate}},
	})

	defs := c.Definitions()
	require.Len(t, defs, 1)
	assert.Equal(t, []Action{ActionView, ActionCreate, ActionUpdate, ActionDelete}, defs[0].Actions)
}

func TestNewCatalog_Panics(t *testing.T) {
	testCases := []struct {
		name string
		defs []Definition
	}{
		{
			name: "duplicate resource",
			defs: []Definition{
				{Resource: "projects.tasks", Actions: CRUDActions},
				{Resource: "projects.tasks", Actions: ViewOnly},
			},
		},
		{
			name: "empty action set",
			defs: []Definition{
				{Resource: "projects.tasks"},
			},
		},
		{
			name: "unknown action",
			defs: []Definition{
				{Resource: "projects.tasks", Actions: []Action{"approve"}},
			},
		},
		{
			name: "scope with non-view actions",
			defs: []Definition{
				{Resource: "timesheets.tracker_all", Actions: CRUDActions, IsScope: true},
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Panics(t, func() { NewCatalog(tc.defs) })
		})
	}
}

func TestCatalog_ModulePermissions(t *testing.T) {
	c := NewCatalog([]Definition{
		{Resource: "settings.settings", Actions: []Action{ActionView, ActionUpdate}},
		{Resource: "docs.docs", Actions: ViewOnly},
		{Resource: "timesheets.tracker", Actions: CRUDActions},
	})

	assert.Equal(t,
		[]string{"settings.settings.view", "settings.settings.update", "docs.docs.view"},
		c.ModulePermissions("settings", "docs"),
	)

	// unknown module is skipped, not an error
	assert.Empty(t, c.ModulePermissions("nope"))
}

func TestDefaultCatalog(t *testing.T) {
	c := DefaultCatalog()

	require.NotEmpty(t, c.Definitions())

	// a scope definition exposes exactly the view action
	for _, def := range c.Definitions() {
		if def.IsScope {
			assert.Equal(t, ViewOnly, def.Actions, def.Resource)
		}
	}

	// the baseline covers the full expansion of the always-visible modules
	baseline := NewPermissionSet(c.BaselinePermissions()...)
	assert.True(t, baseline.Has("settings.settings.view"))
	assert.True(t, baseline.Has("settings.settings.update"))
	assert.True(t, baseline.Has("docs.docs.view"))
	assert.True(t, baseline.Has("notifications.inbox.view"))
	assert.False(t, baseline.Has("timesheets.tracker.view"))
}
