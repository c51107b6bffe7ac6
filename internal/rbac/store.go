package rbac

import (
	"errors"
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Role is a named, persisted set of granted permission strings
// assignable to users.
type Role struct {
	// ID is assigned by the backing store at creation and immutable.
	ID uint
	// Name is unique among roles (case-sensitive) and mutable via
	// Rename only.
	Name string
	// Permissions is the granted permission string set. An unknown
	// string may be stored here; it grants nothing since decisions only
	// ever match catalog-derived strings.
	Permissions PermissionSet
	// IsSystem marks roles that ship with the product. Set at creation,
	// never mutated.
	IsSystem bool
	// IsAdmin marks the super-role. It only protects the role record
	// from rename and delete; authorization decisions treat an admin
	// role exactly like any other and admin roles may still be
	// re-scoped via SetPermissions.
	IsAdmin bool
}

// Repository is the persistence collaborator owned by the Store. The
// backing store must guarantee name uniqueness; a violated constraint
// is reported as ErrRoleNameTaken so concurrent creates or renames to
// the same name cannot both succeed. Delete of a role still referenced
// by users is reported as ErrRoleInUse.
type Repository interface {
	// List returns all roles in unspecified order.
	List() ([]Role, error)
	// FindByID returns the role with the given id or ErrRoleNotFound.
	FindByID(id uint) (*Role, error)
	// FindByName returns the role with the exact given name or
	// ErrRoleNotFound.
	FindByName(name string) (*Role, error)
	// Create persists a new role and assigns its ID.
	Create(role *Role) error
	// Save persists changes to an existing role as a single atomic
	// unit (name and permission set).
	Save(role *Role) error
	// Delete removes the role. Reference integrity is the store's
	// concern: a delete of a role that is still assigned or still
	// referenced by the provisioning configuration returns
	// ErrRoleInUse.
	Delete(id uint) error
	// InUse reports whether the role is still referenced: assigned to a
	// user or named by the provisioning configuration (a mapping or the
	// default role).
	InUse(id uint) (bool, error)
}

// Store owns role entities and enforces their invariants; persistence
// is delegated to the Repository collaborator.
type Store struct {
	repo    Repository
	catalog *Catalog
}

// NewStore creates a role store backed by the given repository,
// granting baselines from the given catalog.
func NewStore(repo Repository, catalog *Catalog) *Store {
	return &Store{repo: repo, catalog: catalog}
}

// Create creates a role with the requested permissions plus the silent
// baseline union. The new role is neither system nor admin.
func (s *Store) Create(name string, requested []string) (*Role, error) {
	if err := s.checkName(name, 0); err != nil {
		return nil, err
	}

	role := &Role{
		Name:        name,
		Permissions: s.withBaseline(requested),
	}

	if err := s.repo.Create(role); err != nil {
		return nil, err
	}

	return role, nil
}

// Rename changes a role's name. System and admin roles are protected.
func (s *Store) Rename(id uint, newName string) (*Role, error) {
	role, err := s.repo.FindByID(id)
	if err != nil {
		return nil, err
	}

	if role.IsSystem || role.IsAdmin {
		return nil, ErrRoleProtected
	}

	if err := s.checkName(newName, role.ID); err != nil {
		return nil, err
	}

	role.Name = newName

	if err := s.repo.Save(role); err != nil {
		return nil, err
	}

	return role, nil
}

// SetPermissions replaces a role's permission set entirely with the
// requested set plus the silent baseline union. Allowed regardless of
// the system/admin flags: admin roles may still be re-scoped, and no
// caller can ever remove the baseline grants through this path.
func (s *Store) SetPermissions(id uint, requested []string) (*Role, error) {
	role, err := s.repo.FindByID(id)
	if err != nil {
		return nil, err
	}

	role.Permissions = s.withBaseline(requested)

	if err := s.repo.Save(role); err != nil {
		return nil, err
	}

	return role, nil
}

// Delete removes a role. System and admin roles are protected; a role
// still assigned to users or referenced by the provisioning
// configuration is a conflict (ErrRoleInUse).
func (s *Store) Delete(id uint) error {
	role, err := s.repo.FindByID(id)
	if err != nil {
		return err
	}

	if role.IsSystem || role.IsAdmin {
		return ErrRoleProtected
	}

	inUse, err := s.repo.InUse(id)
	if err != nil {
		return err
	}

	if inUse {
		return ErrRoleInUse
	}

	return s.repo.Delete(id)
}

// Get returns the role with the given id.
func (s *Store) Get(id uint) (*Role, error) {
	return s.repo.FindByID(id)
}

// List returns all roles ordered by name ascending under locale-aware
// collation.
func (s *Store) List() ([]Role, error) {
	roles, err := s.repo.List()
	if err != nil {
		return nil, err
	}

	col := collate.New(language.English)

	sort.SliceStable(roles, func(i, j int) bool {
		return col.CompareString(roles[i].Name, roles[j].Name) < 0
	})

	return roles, nil
}

// checkName validates a role name for create and rename: it must be
// non-blank and not used by a different role. selfID exempts the role
// being renamed from the collision check.
func (s *Store) checkName(name string, selfID uint) error {
	if strings.TrimSpace(name) == "" {
		return ErrRoleNameEmpty
	}

	existing, err := s.repo.FindByName(name)
	if err != nil {
		if errors.Is(err, ErrRoleNotFound) {
			return nil
		}

		return err
	}

	if existing.ID != selfID {
		return ErrRoleNameTaken
	}

	return nil
}

// withBaseline unions the requested permissions with the catalog's
// always-granted baseline.
func (s *Store) withBaseline(requested []string) PermissionSet {
	set := NewPermissionSet(requested...)

	for _, p := range s.catalog.BaselinePermissions() {
		set[p] = struct{}{}
	}

	return set
}
