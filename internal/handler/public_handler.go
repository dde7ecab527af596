package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/HimanshuNaik19/feedback-flash-qr/internal/service"
)

type PublicHandler struct {
	sync *service.SyncService
}

func NewPublicHandler(sync *service.SyncService) *PublicHandler {
	return &PublicHandler{sync: sync}
}

// Health - GET /health
func (h *PublicHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "ok",
		"sync":   h.sync.Status(),
	})
}
