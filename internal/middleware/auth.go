package middleware

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/HimanshuNaik19/feedback-flash-qr/internal/auth"
	"github.com/HimanshuNaik19/feedback-flash-qr/internal/dto"
)

type AuthMiddleware struct {
	jwtService *auth.JWTService
}

func NewAuthMiddleware(jwtService *auth.JWTService) *AuthMiddleware {
	return &AuthMiddleware{jwtService: jwtService}
}

// Required authentication
func (m *AuthMiddleware) Required() fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse(
				"UNAUTHORIZED",
				"Missing token",
			))
		}

		if !strings.HasPrefix(authHeader, "Bearer ") {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse(
				"UNAUTHORIZED",
				"Malformed token",
			))
		}

		claims, err := m.jwtService.ValidateAccessToken(strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse(
					"TOKEN_EXPIRED",
					"Token has expired",
				))
			}
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse(
				"INVALID_TOKEN",
				"Invalid token",
			))
		}

		c.Locals("username", claims.Sub)
		c.Locals("userRole", claims.Role)
		c.Locals("jti", claims.JTI)

		return c.Next()
	}
}

// Admin only
func (m *AuthMiddleware) AdminOnly() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if GetUserRole(c) != auth.RoleAdmin {
			return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse(
				"FORBIDDEN",
				"Admin access required",
			))
		}
		return c.Next()
	}
}

// Get current user role from context
func GetUserRole(c *fiber.Ctx) string {
	role, _ := c.Locals("userRole").(string)
	return role
}

// GetJWTService returns the JWT service for token validation
func (m *AuthMiddleware) GetJWTService() *auth.JWTService {
	return m.jwtService
}
