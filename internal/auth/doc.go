// Package auth provides authentication and authorization functionality
// for the application.
//
// Three authentication providers are supported:
//   - LocalProvider: username/password against the local database with
//     Argon2id password hashing.
//   - LDAPProvider: LDAP/Active Directory bind authentication; the
//     directory also supplies the user's group identifiers.
//   - OIDCProvider: OAuth2/OpenID Connect with external identity
//     providers; groups come from a configurable ID token claim.
//
// # Authorization
//
// Every user carries exactly one role. Local users are assigned their
// role by an administrator; LDAP and OIDC users have it re-resolved on
// every login from the configured group-to-role mappings
// (first-match-wins, see the rbac package). A role is a flat set of
// permission strings; checks are exact string membership with no
// wildcarding and no admin bypass.
//
// The Service type answers permission questions for a user:
//   - PermissionsForUser: the user's granted permission set
//   - HasPermission: membership of a single permission
//   - HasAnyPermission: membership of at least one alternative
//
// # Middleware
//
// Fiber middleware protects routes:
//   - RequirePermission: one specific permission
//   - RequireAnyPermission: any of several alternatives
//   - AddPermissionsToLocals: expose the granted set to templates
//
// Example:
//
//	authService := auth.NewService(db)
//
//	app.Get("/admin/roles",
//	    auth.RequirePermission(authService, rbac.Build(rbac.ResourceRoles, rbac.ActionView)),
//	    handler,
//	)
package auth
