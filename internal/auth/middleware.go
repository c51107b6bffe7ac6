package auth

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/tempora-app/tempora/internal/rbac"
	"github.com/tempora-app/tempora/internal/web/session"
)

// currentUserID reads the authenticated user id from the session
// cookie. Returns 0 when there is no valid session.
func currentUserID(c *fiber.Ctx) uint64 {
	sessionID := c.Cookies("session")
	if sessionID == "" {
		return 0
	}

	sessionData := new(session.Data)
	if err := sessionData.Read(sessionID); err != nil {
		return 0
	}

	return sessionData.User.ID
}

// RequirePermission creates Fiber middleware that requires a specific
// permission. Route enforcement and menu visibility both derive from
// the same permission strings, so a view a user cannot open is also a
// view they never see linked.
func RequirePermission(authService *Service, permission string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := currentUserID(c)
		if userID == 0 {
			return c.Status(fiber.StatusUnauthorized).SendString("Unauthorized")
		}

		hasPermission, err := authService.HasPermission(userID, permission)
		if err != nil {
			log.Error().Err(err).Uint64("user_id", userID).Str("permission", permission).
				Msg("Failed to check permission")

			return c.Status(fiber.StatusInternalServerError).SendString("Internal Server Error")
		}

		if !hasPermission {
			log.Warn().Uint64("user_id", userID).Str("permission", permission).
				Msg("User lacks required permission")

			return c.Status(fiber.StatusForbidden).SendString("Forbidden: You don't have permission to access this resource")
		}

		return c.Next()
	}
}

// RequireAuthenticated creates Fiber middleware that only requires a
// valid session. Used for pages every logged-in user may open, like
// the dashboard; everything else gates on a permission.
func RequireAuthenticated() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if currentUserID(c) == 0 {
			return c.Status(fiber.StatusUnauthorized).SendString("Unauthorized")
		}

		return c.Next()
	}
}

// RequireAnyPermission creates Fiber middleware that requires at least
// one of the given permissions. Used where an action is reachable via
// alternatives, e.g. a scope permission or the base permission.
func RequireAnyPermission(authService *Service, permissions ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := currentUserID(c)
		if userID == 0 {
			return c.Status(fiber.StatusUnauthorized).SendString("Unauthorized")
		}

		hasPermission, err := authService.HasAnyPermission(userID, permissions)
		if err != nil {
			log.Error().Err(err).Uint64("user_id", userID).Strs("permissions", permissions).
				Msg("Failed to check permissions")

			return c.Status(fiber.StatusInternalServerError).SendString("Internal Server Error")
		}

		if !hasPermission {
			log.Warn().Uint64("user_id", userID).Strs("permissions", permissions).
				Msg("User lacks required permissions")

			return c.Status(fiber.StatusForbidden).SendString("Forbidden: You don't have permission to access this resource")
		}

		return c.Next()
	}
}

// HasPermissionInContext checks if the current user in the Fiber
// context has a permission. Useful for conditional rendering in
// handlers; any error reads as denied.
func HasPermissionInContext(c *fiber.Ctx, authService *Service, permission string) bool {
	userID := currentUserID(c)
	if userID == 0 {
		return false
	}

	hasPermission, err := authService.HasPermission(userID, permission)
	if err != nil {
		return false
	}

	return hasPermission
}

// AddPermissionsToLocals is a Fiber middleware that exposes the current
// user's granted permission set to templates via fiber.Locals, for
// conditional rendering of create/update/delete affordances.
func AddPermissionsToLocals(authService *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := currentUserID(c)
		if userID == 0 {
			// not authenticated, continue without permissions
			return c.Next()
		}

		granted, err := authService.PermissionsForUser(userID)
		if err != nil {
			log.Error().Err(err).Uint64("user_id", userID).
				Msg("Failed to get user permissions")

			return c.Next()
		}

		c.Locals("permissions", granted)
		c.Locals("hasPermission", func(perm string) bool {
			return granted.Has(perm)
		})

		return c.Next()
	}
}

// GrantedSet returns the permission set stored in fiber.Locals by
// AddPermissionsToLocals, or an empty set when absent.
func GrantedSet(c *fiber.Ctx) rbac.PermissionSet {
	if set, ok := c.Locals("permissions").(rbac.PermissionSet); ok {
		return set
	}

	return rbac.NewPermissionSet()
}
