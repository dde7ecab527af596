package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/HimanshuNaik19/feedback-flash-qr/internal/domain"
	"github.com/HimanshuNaik19/feedback-flash-qr/internal/dto"
	"github.com/HimanshuNaik19/feedback-flash-qr/internal/service"
)

type QRCodeHandler struct {
	qrcodes *service.QRCodeService
}

func NewQRCodeHandler(qrcodes *service.QRCodeService) *QRCodeHandler {
	return &QRCodeHandler{qrcodes: qrcodes}
}

func (h *QRCodeHandler) toResponse(q domain.QRCode) dto.QRCodeResponse {
	return dto.QRCodeResponse{
		QRCode: q,
		URL:    h.qrcodes.URL(q.ID),
		Status: q.Status(h.qrcodes.Now()),
	}
}

// List - GET /admin/qrcodes
func (h *QRCodeHandler) List(c *fiber.Ctx) error {
	qrs, err := h.qrcodes.GetAll(c.UserContext())
	if err != nil {
		return serviceError(c, err, "Failed to load QR codes")
	}

	responses := make([]dto.QRCodeResponse, 0, len(qrs))
	for _, q := range qrs {
		responses = append(responses, h.toResponse(q))
	}
	return c.JSON(dto.SuccessWithMeta(responses, &dto.Meta{TotalCount: len(responses)}))
}

// Create - POST /admin/qrcodes
func (h *QRCodeHandler) Create(c *fiber.Ctx) error {
	var req dto.CreateQRCodeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse(
			"INVALID_REQUEST", "Invalid request body",
		))
	}

	qr, err := h.qrcodes.Generate(req.Context, req.ExpiryHours, req.MaxScans)
	if err != nil {
		return serviceError(c, err, "Failed to create QR code")
	}
	qr.CustomQuestions = req.CustomQuestions

	if err := h.qrcodes.Store(c.UserContext(), qr); err != nil {
		return serviceError(c, err, "Failed to save QR code")
	}

	message := "QR code created"
	if h.qrcodes.IsPending(qr.ID) {
		message = "QR code saved locally, it will sync when storage is reachable"
	}
	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse(h.toResponse(qr), message))
}

// Get - GET /admin/qrcodes/:id
func (h *QRCodeHandler) Get(c *fiber.Ctx) error {
	qr, err := h.qrcodes.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return serviceError(c, err, "Failed to load QR code")
	}
	if qr == nil {
		return statusError(c, domain.StatusNotFound)
	}
	return c.JSON(dto.SuccessResponse(h.toResponse(*qr), ""))
}

// Update - PATCH /admin/qrcodes/:id
func (h *QRCodeHandler) Update(c *fiber.Ctx) error {
	var req dto.UpdateQRCodeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse(
			"INVALID_REQUEST", "Invalid request body",
		))
	}

	qr, err := h.qrcodes.Update(c.UserContext(), c.Params("id"), req.Patch())
	if err != nil {
		return serviceError(c, err, "Failed to update QR code")
	}
	if qr == nil {
		return statusError(c, domain.StatusNotFound)
	}
	return c.JSON(dto.SuccessResponse(h.toResponse(*qr), "QR code updated"))
}

// Delete - DELETE /admin/qrcodes/:id, also removes the code's feedback
func (h *QRCodeHandler) Delete(c *fiber.Ctx) error {
	deleted, err := h.qrcodes.Delete(c.UserContext(), c.Params("id"))
	if err != nil {
		return serviceError(c, err, "Failed to delete QR code")
	}
	if !deleted {
		return statusError(c, domain.StatusNotFound)
	}
	return c.JSON(dto.SuccessResponse(nil, "QR code deleted"))
}

// Check - GET /qrcodes/:id/check (public)
func (h *QRCodeHandler) Check(c *fiber.Ctx) error {
	status, qr, err := h.qrcodes.Check(c.UserContext(), c.Params("id"))
	if err != nil {
		return serviceError(c, err, "Failed to check QR code")
	}

	resp := dto.CheckResponse{Status: status}
	if qr != nil {
		r := h.toResponse(*qr)
		resp.QRCode = &r
	}
	return c.JSON(dto.SuccessResponse(resp, ""))
}
