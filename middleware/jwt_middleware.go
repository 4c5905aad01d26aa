package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"leadsync/utils"
)

const LocalTenantID = "tenantID"

// Protected admits tenant-admin bearer tokens and stores the tenant id in Locals
func Protected(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Authorization required",
			})
		}

		tokenParts := strings.Split(authHeader, " ")
		if len(tokenParts) != 2 || tokenParts[0] != "Bearer" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid authorization format",
			})
		}

		claims, err := utils.ParseJWTToken(secret, tokenParts[1])
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired token",
			})
		}

		if claims.TenantID == 0 || claims.Role != utils.RoleTenantAdmin {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Tenant admin access required",
			})
		}

		c.Locals(LocalTenantID, claims.TenantID)
		return c.Next()
	}
}

// TenantID reads the tenant id set by Protected
func TenantID(c *fiber.Ctx) uint {
	id, _ := c.Locals(LocalTenantID).(uint)
	return id
}
