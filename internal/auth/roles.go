package auth

import (
	"github.com/gofiber/fiber/v2"

	apperrors "github.com/helpdesk-labs/ticket-tracker/pkg/util/errorutil"
)

// RequireAnyRole ensures the caller is authenticated with a known role.
func RequireAnyRole() fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if !principal.Role.Valid() {
			return apperrors.NewForbidden("unknown role")
		}
		return c.Next()
	}
}
