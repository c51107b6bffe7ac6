package rbac

import "errors"

var (
	// ErrRoleNameEmpty is returned when a role name is empty or
	// whitespace-only. Validation error: the caller corrects the input
	// and retries.
	ErrRoleNameEmpty = errors.New("role name cannot be empty")

	// ErrRoleNameTaken is returned when a role name is already used by
	// a different role (case-sensitive match). Also surfaced when the
	// backing store's uniqueness constraint rejects a concurrent
	// create or rename. Validation error.
	ErrRoleNameTaken = errors.New("role name is already taken")

	// ErrRoleNotFound is returned when no role exists for the given id.
	ErrRoleNotFound = errors.New("role not found")

	// ErrRoleProtected is returned when rename or delete is attempted
	// on a system or admin role. Permanent rejection, never retried.
	ErrRoleProtected = errors.New("system and admin roles cannot be renamed or deleted")

	// ErrRoleInUse is returned when delete is attempted on a role still
	// assigned to users. The remediation is to reassign those users
	// first; this core never auto-resolves the conflict.
	ErrRoleInUse = errors.New("role is still assigned to users")

	// ErrDefaultRoleMissing is returned at mapping-configuration save
	// time when the configured default role does not exist.
	ErrDefaultRoleMissing = errors.New("default role does not exist")

	// ErrMappedRoleMissing is returned at mapping-configuration save
	// time when a mapping references a role that does not exist.
	ErrMappedRoleMissing = errors.New("mapped role does not exist")

	// ErrMappingGroupEmpty is returned at mapping-configuration save
	// time when a mapping has an empty external group identifier.
	ErrMappingGroupEmpty = errors.New("mapping external group cannot be empty")
)
