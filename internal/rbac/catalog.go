// Package rbac implements role-based access control: the permission
// catalog, the permission string codec, the authorization decision
// functions, the role store and the directory provisioning resolver.
package rbac

import "fmt"

// Action is one of the four canonical actions a permission can grant
// on a resource.
type Action string

const (
	// ActionView allows viewing a resource.
	ActionView Action = "view"
	// ActionCreate allows creating records of a resource.
	ActionCreate Action = "create"
	// ActionUpdate allows updating records of a resource.
	ActionUpdate Action = "update"
	// ActionDelete allows deleting records of a resource.
	ActionDelete Action = "delete"
)

// CanonicalActions lists the four actions in their canonical order.
// Every definition's action set is canonicalized to this order.
var CanonicalActions = []Action{ActionView, ActionCreate, ActionUpdate, ActionDelete}

// CRUDActions is the full action set used by most resources.
var CRUDActions = []Action{ActionView, ActionCreate, ActionUpdate, ActionDelete}

// ViewOnly is the action set used by scope and read-only resources.
var ViewOnly = []Action{ActionView}

// Definition describes one entry of the permission catalog: a dotted
// resource path, the subset of canonical actions it supports, and
// whether it is a scope permission (a view-only permission that widens
// visibility across records instead of granting a CRUD action).
type Definition struct {
	// Resource is the dotted resource path (e.g. "administration.roles").
	// Unique within the catalog.
	Resource string
	// Actions is the subset of canonical actions meaningful for this
	// resource, in canonical order.
	Actions []Action
	// IsScope marks view-only permissions that widen record visibility
	// (e.g. "timesheets.tracker_all").
	IsScope bool
}

// Module returns the leading dotted segment of the resource. Modules
// group definitions for presentation and carry no security meaning.
func (d Definition) Module() string {
	for i := 0; i < len(d.Resource); i++ {
		if d.Resource[i] == '.' {
			return d.Resource[:i]
		}
	}

	return d.Resource
}

// Catalog is the immutable, process-wide table of permission
// definitions. It is built once at startup with NewCatalog and passed
// by reference into the role store and the web layer; it is safe for
// unrestricted concurrent reads.
type Catalog struct {
	defs    []Definition
	modules []string
	byMod   map[string][]Definition
}

// NewCatalog builds a catalog from the given definitions, preserving
// declaration order. A duplicate resource, an empty or non-canonical
// action set, or a scope definition with actions other than {view} is
// a programming error and panics at startup.
func NewCatalog(defs []Definition) *Catalog {
	c := &Catalog{
		defs:  make([]Definition, 0, len(defs)),
		byMod: make(map[string][]Definition),
	}

	seen := make(map[string]bool, len(defs))

	for _, def := range defs {
		if seen[def.Resource] {
			panic(fmt.Sprintf("rbac: duplicate catalog resource %q", def.Resource))
		}

		seen[def.Resource] = true

		def.Actions = canonicalize(def)
		c.defs = append(c.defs, def)

		mod := def.Module()
		if _, ok := c.byMod[mod]; !ok {
			c.modules = append(c.modules, mod)
		}

		c.byMod[mod] = append(c.byMod[mod], def)
	}

	return c
}

// canonicalize validates a definition's action set and returns it in
// canonical order.
func canonicalize(def Definition) []Action {
	if len(def.Actions) == 0 {
		panic(fmt.Sprintf("rbac: catalog resource %q has no actions", def.Resource))
	}

	requested := make(map[Action]bool, len(def.Actions))

	for _, a := range def.Actions {
		valid := false

		for _, ca := range CanonicalActions {
			if a == ca {
				valid = true
				break
			}
		}

		if !valid {
			panic(fmt.Sprintf("rbac: catalog resource %q has unknown action %q", def.Resource, a))
		}

		requested[a] = true
	}

	if def.IsScope && (len(requested) != 1 || !requested[ActionView]) {
		panic(fmt.Sprintf("rbac: scope resource %q must expose only the view action", def.Resource))
	}

	ordered := make([]Action, 0, len(requested))

	for _, a := range CanonicalActions {
		if requested[a] {
			ordered = append(ordered, a)
		}
	}

	return ordered
}

// Definitions returns all definitions in catalog declaration order.
// The returned slice is a copy and may be modified by the caller.
func (c *Catalog) Definitions() []Definition {
	out := make([]Definition, len(c.defs))
	copy(out, c.defs)

	return out
}

// Modules returns module names in first-seen declaration order.
func (c *Catalog) Modules() []string {
	out := make([]string, len(c.modules))
	copy(out, c.modules)

	return out
}

// ByModule returns definitions grouped by module, preserving catalog
// declaration order within each module. Iterate Modules() for a stable
// module order.
func (c *Catalog) ByModule() map[string][]Definition {
	out := make(map[string][]Definition, len(c.byMod))

	for mod, defs := range c.byMod {
		cp := make([]Definition, len(defs))
		copy(cp, defs)
		out[mod] = cp
	}

	return out
}

// Permissions returns every permission string the catalog defines, in
// catalog declaration order with actions in canonical order.
func (c *Catalog) Permissions() []string {
	var out []string

	for _, def := range c.defs {
		out = append(out, BuildAll(def.Resource, def.Actions)...)
	}

	return out
}

// ModulePermissions returns every permission string of the named
// modules, in catalog order. Unknown module names are skipped.
func (c *Catalog) ModulePermissions(modules ...string) []string {
	var out []string

	for _, mod := range modules {
		for _, def := range c.byMod[mod] {
			out = append(out, BuildAll(def.Resource, def.Actions)...)
		}
	}

	return out
}

// BaselineModules are the modules whose functionality every
// authenticated user must reach regardless of role: personal settings,
// the documentation pages and the notification inbox.
var BaselineModules = []string{"settings", "docs", "notifications"}

// BaselinePermissions returns the always-granted permission set: the
// full expansion of the baseline modules. Every role receives these on
// create and set-permissions, unconditionally.
func (c *Catalog) BaselinePermissions() []string {
	return c.ModulePermissions(BaselineModules...)
}
