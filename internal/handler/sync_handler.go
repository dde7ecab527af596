package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/HimanshuNaik19/feedback-flash-qr/internal/dto"
	"github.com/HimanshuNaik19/feedback-flash-qr/internal/service"
)

type SyncHandler struct {
	sync *service.SyncService
}

func NewSyncHandler(sync *service.SyncService) *SyncHandler {
	return &SyncHandler{sync: sync}
}

func syncStatus(s *service.SyncService) dto.SyncStatusResponse {
	return dto.SyncStatusResponse{
		Status:  string(s.Status()),
		Online:  s.Online(),
		Pending: s.Pending(),
	}
}

// Status - GET /admin/sync/status
func (h *SyncHandler) Status(c *fiber.Ctx) error {
	return c.JSON(dto.SuccessResponse(syncStatus(h.sync), ""))
}

// Force - POST /admin/sync, clears the cache and pushes every pending record
func (h *SyncHandler) Force(c *fiber.Ctx) error {
	n, err := h.sync.ForceSynchronization(c.UserContext())
	if err != nil {
		return serviceError(c, err, "Synchronization failed")
	}
	return c.JSON(dto.SuccessResponse(dto.SyncResultResponse{
		Synced:  n,
		Pending: h.sync.Pending(),
	}, ""))
}
