package middleware

import (
	"context"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/codemeet-api/internal/utils"
)

// RequireRole ensures that the authenticated user possesses one of the allowed roles.
func RequireRole(roles ...string) fiber.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		normalized := strings.ToLower(strings.TrimSpace(role))
		if normalized != "" {
			allowed[normalized] = struct{}{}
		}
	}

	return func(c *fiber.Ctx) error {
		role := normalizeRoleValue(c.Locals("user_role"))
		if _, ok := allowed[role]; !ok {
			return utils.Fail(c, fiber.StatusForbidden, "insufficient permissions", nil)
		}
		return c.Next()
	}
}

// RoleResolver looks up the stored role for an identity subject.
type RoleResolver func(ctx context.Context, subject string) (string, error)

// ResolveRole fills user_role from the account store when the token carried
// no role claim. Unknown accounts are left without a role.
func ResolveRole(resolve RoleResolver) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if normalizeRoleValue(c.Locals("user_role")) != "" {
			return c.Next()
		}
		subject, _ := c.Locals("user_id").(string)
		if subject == "" {
			return c.Next()
		}
		if role, err := resolve(c.UserContext(), subject); err == nil && role != "" {
			c.Locals("user_role", strings.ToLower(role))
		}
		return c.Next()
	}
}

func normalizeRoleValue(value interface{}) string {
	switch v := value.(type) {
	case string:
		return strings.ToLower(strings.TrimSpace(v))
	case fmt.Stringer:
		return strings.ToLower(strings.TrimSpace(v.String()))
	default:
		if value == nil {
			return ""
		}
		return strings.ToLower(strings.TrimSpace(fmt.Sprintf("%v", value)))
	}
}
