// Package views defines the navigable views of the application and the
// permission each one requires. The navigation menu and the route
// registrations both consume this table, so a view a user cannot open
// is also a view they never see linked.
package views

import (
	"github.com/tempora-app/tempora/internal/rbac"
)

// View describes one navigable page.
type View struct {
	// ID is the stable view identifier used in navigation state.
	ID string
	// Title is the menu label.
	Title string
	// Path is the route path of the view.
	Path string
	// Section is the navigation section the view belongs to.
	Section string
	// Permission is the permission required to open the view. Scope
	// permissions never appear here; they widen the data shown inside
	// a view, not access to the view itself.
	Permission string
}

// Table returns the view table in menu order. Only pages with a
// registered handler are listed; catalog modules without a routed page
// yet (projects, finances, clients, suppliers, hr) gain their entry
// together with their handler so the menu never links a dead path.
func Table() []View {
	return []View{
		{
			ID:         "tracker",
			Title:      "Tracker",
			Path:       "/tracker",
			Section:    "timesheets",
			Permission: rbac.Build(rbac.ResourceTracker, rbac.ActionView),
		},
		{
			ID:         "users",
			Title:      "Users",
			Path:       "/admin/user",
			Section:    "admin",
			Permission: rbac.Build(rbac.ResourceUsers, rbac.ActionView),
		},
		{
			ID:         "roles",
			Title:      "Roles",
			Path:       "/admin/role",
			Section:    "admin",
			Permission: rbac.Build(rbac.ResourceRoles, rbac.ActionView),
		},
		{
			ID:         "mappings",
			Title:      "Group Mappings",
			Path:       "/admin/mapping",
			Section:    "admin",
			Permission: rbac.Build(rbac.ResourceGroupMappings, rbac.ActionView),
		},
		{
			ID:         "settings",
			Title:      "Settings",
			Path:       "/settings",
			Section:    "account",
			Permission: rbac.Build(rbac.ResourceSettings, rbac.ActionView),
		},
		{
			ID:         "docs",
			Title:      "Documentation",
			Path:       "/docs",
			Section:    "account",
			Permission: rbac.Build(rbac.ResourceDocs, rbac.ActionView),
		},
		{
			ID:         "notifications",
			Title:      "Notifications",
			Path:       "/notifications",
			Section:    "account",
			Permission: rbac.Build(rbac.ResourceNotifications, rbac.ActionView),
		},
	}
}

// PermissionTable converts the view table into the view-to-permission
// pairs the decision engine consumes.
func PermissionTable(table []View) []rbac.ViewPermission {
	out := make([]rbac.ViewPermission, len(table))

	for i, v := range table {
		out[i] = rbac.ViewPermission{ViewID: v.ID, Permission: v.Permission}
	}

	return out
}

// Visible returns the views of the table the granted set may see, in
// table order.
func Visible(granted rbac.PermissionSet, table []View) []View {
	visibleIDs := rbac.VisibleViews(granted, PermissionTable(table))

	idSet := make(map[string]struct{}, len(visibleIDs))
	for _, id := range visibleIDs {
		idSet[id] = struct{}{}
	}

	out := make([]View, 0, len(visibleIDs))

	for _, v := range table {
		if _, ok := idSet[v.ID]; ok {
			out = append(out, v)
		}
	}

	return out
}
