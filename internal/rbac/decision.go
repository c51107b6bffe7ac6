package rbac

// PermissionSet is an unordered set of granted permission strings.
// Membership is exact-string: no wildcard, prefix or hierarchy
// matching. A malformed or unknown string simply never matches, which
// keeps the security posture fail-closed.
type PermissionSet map[string]struct{}

// NewPermissionSet builds a set from the given permission strings,
// dropping duplicates.
func NewPermissionSet(permissions ...string) PermissionSet {
	set := make(PermissionSet, len(permissions))

	for _, p := range permissions {
		set[p] = struct{}{}
	}

	return set
}

// Has reports whether the required permission is a member of the set.
func (s PermissionSet) Has(required string) bool {
	_, ok := s[required]
	return ok
}

// HasAny reports whether at least one of the alternatives is a member
// of the set. Used where an action is reachable via more than one
// permission, e.g. a scope permission or the base permission.
func (s PermissionSet) HasAny(alternatives ...string) bool {
	for _, p := range alternatives {
		if s.Has(p) {
			return true
		}
	}

	return false
}

// Strings returns the members of the set in unspecified order.
func (s PermissionSet) Strings() []string {
	out := make([]string, 0, len(s))

	for p := range s {
		out = append(out, p)
	}

	return out
}

// ViewPermission maps a navigable view identifier to the single
// permission required to reach it. The application's route table is a
// fixed slice of these, built with the codec at startup.
type ViewPermission struct {
	ViewID     string
	Permission string
}

// VisibleViews resolves which views of the route table the granted set
// may see. Navigation-menu rendering and route-access enforcement must
// both go through this one function so the two can never diverge.
func VisibleViews(granted PermissionSet, table []ViewPermission) []string {
	var out []string

	for _, vp := range table {
		if granted.Has(vp.Permission) {
			out = append(out, vp.ViewID)
		}
	}

	return out
}
