package auth

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/watchworthy-auth/internal/domain"
	apperrors "github.com/spec-kit/watchworthy-auth/pkg/util"
)

// RequireRoles ensures the principal's role is one of allowed.
func RequireRoles(allowed ...domain.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return fiber.NewError(http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		}
		if err := CheckRoles(principal.Claims, allowed...); err != nil {
			return apperrors.MapError(err)
		}
		return c.Next()
	}
}

// RequireAtLeast ensures the principal holds min or a higher role.
func RequireAtLeast(min domain.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return fiber.NewError(http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		}
		if err := CheckAtLeast(principal.Claims, min); err != nil {
			return apperrors.MapError(err)
		}
		return c.Next()
	}
}

// RequireNoRestriction blocks principals with an active penalty of any of the given types.
func RequireNoRestriction(gate *AccessGate, blocked ...domain.PenaltyType) fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return fiber.NewError(http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		}
		if err := gate.Restrict(c.UserContext(), principal.Claims.SubjectID, blocked...); err != nil {
			return apperrors.MapError(err)
		}
		return c.Next()
	}
}
