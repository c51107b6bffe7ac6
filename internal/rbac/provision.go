package rbac

import (
	"fmt"
	"strings"
)

// GroupMapping maps one external directory group identifier (an LDAP
// group DN or CN, or an OIDC groups-claim value) to a role. Mappings
// are kept in the order administrators configure them; that order is
// the tie-break when a user belongs to more than one mapped group.
type GroupMapping struct {
	ExternalGroup string
	RoleID        uint
}

// ResolveRole translates a newly authenticated external-directory
// user's group memberships into a single role assignment. Mappings are
// scanned in their configured order and the first whose external group
// the user belongs to wins; membership is exact string equality. With
// no match the default role applies. The mapping list is never
// re-sorted or deduplicated by role, so a user in multiple mapped
// groups consistently lands on the earliest-configured mapping.
//
// There is no failure path: the caller validated defaultRole when the
// configuration was saved.
func ResolveRole(userGroups []string, mappings []GroupMapping, defaultRole uint) uint {
	member := make(map[string]struct{}, len(userGroups))

	for _, g := range userGroups {
		member[g] = struct{}{}
	}

	for _, m := range mappings {
		if _, ok := member[m.ExternalGroup]; ok {
			return m.RoleID
		}
	}

	return defaultRole
}

// RoleExistsFunc reports whether a role id exists in the role store.
type RoleExistsFunc func(id uint) (bool, error)

// ValidateMappings checks a mapping configuration at the point an
// administrator saves it: every mapping needs a non-blank external
// group and an existing role, and the default role must exist. A
// dangling reference here is a configuration error surfaced to the
// administrator now, so resolution at login time never has to fail.
func ValidateMappings(mappings []GroupMapping, defaultRole uint, exists RoleExistsFunc) error {
	ok, err := exists(defaultRole)
	if err != nil {
		return err
	}

	if !ok {
		return fmt.Errorf("%w: id %d", ErrDefaultRoleMissing, defaultRole)
	}

	for _, m := range mappings {
		if strings.TrimSpace(m.ExternalGroup) == "" {
			return ErrMappingGroupEmpty
		}

		ok, err = exists(m.RoleID)
		if err != nil {
			return err
		}

		if !ok {
			return fmt.Errorf("%w: group %q, role id %d", ErrMappedRoleMissing, m.ExternalGroup, m.RoleID)
		}
	}

	return nil
}
