package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/HimanshuNaik19/feedback-flash-qr/internal/auth"
	"github.com/HimanshuNaik19/feedback-flash-qr/internal/dto"
	"github.com/HimanshuNaik19/feedback-flash-qr/internal/logger"
)

type AuthHandler struct {
	admin *auth.Admin
	jwt   *auth.JWTService
}

func NewAuthHandler(admin *auth.Admin, jwt *auth.JWTService) *AuthHandler {
	return &AuthHandler{admin: admin, jwt: jwt}
}

// Login - POST /auth/login
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse(
			"VALIDATION_ERROR", "Invalid request body",
		))
	}

	if err := h.admin.Verify(req.Username, req.Password); err != nil {
		logger.WithFields(logger.Fields{"username": req.Username, "ip": c.IP()}).Warnf("admin login rejected")
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse(
			"INVALID_CREDENTIALS", "Wrong username or password",
		))
	}

	token, err := h.jwt.GenerateAccessToken(req.Username, auth.RoleAdmin)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse(
			"INTERNAL_ERROR", "Failed to issue token",
		))
	}

	return c.JSON(dto.SuccessResponse(dto.LoginResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(h.jwt.GetAccessExpiry().Seconds()),
		Username:    req.Username,
	}, ""))
}
