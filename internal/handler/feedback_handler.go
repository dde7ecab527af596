package handler

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/HimanshuNaik19/feedback-flash-qr/internal/domain"
	"github.com/HimanshuNaik19/feedback-flash-qr/internal/dto"
	"github.com/HimanshuNaik19/feedback-flash-qr/internal/service"
)

type FeedbackHandler struct {
	feedback *service.FeedbackService
}

func NewFeedbackHandler(feedback *service.FeedbackService) *FeedbackHandler {
	return &FeedbackHandler{feedback: feedback}
}

// Submit - POST /qrcodes/:id/feedback (public)
func (h *FeedbackHandler) Submit(c *fiber.Ctx) error {
	var req dto.SubmitFeedbackRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse(
			"INVALID_REQUEST", "Invalid request body",
		))
	}

	fb, err := h.feedback.Submit(c.UserContext(), c.Params("id"), service.SubmitInput{
		Name:          req.Name,
		PhoneNumber:   req.PhoneNumber,
		Email:         req.Email,
		Rating:        req.Rating,
		Comment:       req.Comment,
		CustomAnswers: req.CustomAnswers,
	})
	if err != nil {
		return serviceError(c, err, "Failed to submit feedback")
	}
	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse(fb, "Thank you for your feedback"))
}

func feedbackFilter(c *fiber.Ctx) service.FeedbackFilter {
	return service.FeedbackFilter{
		QRCodeID:  c.Query("qr_code_id"),
		Sentiment: domain.Sentiment(c.Query("sentiment")),
	}
}

// AdminList - GET /admin/feedback?qr_code_id=&sentiment=
func (h *FeedbackHandler) AdminList(c *fiber.Ctx) error {
	items, err := h.feedback.List(c.UserContext(), feedbackFilter(c))
	if err != nil {
		return serviceError(c, err, "Failed to load feedback")
	}
	return c.JSON(dto.SuccessWithMeta(items, &dto.Meta{TotalCount: len(items)}))
}

// Stats - GET /admin/feedback/stats
func (h *FeedbackHandler) Stats(c *fiber.Ctx) error {
	stats, err := h.feedback.Stats(c.UserContext())
	if err != nil {
		return serviceError(c, err, "Failed to load feedback statistics")
	}
	return c.JSON(dto.SuccessResponse(stats, ""))
}

// Export - GET /admin/feedback/export?qr_code_id=&sentiment=
func (h *FeedbackHandler) Export(c *fiber.Ctx) error {
	filename := fmt.Sprintf("feedback_%s.xlsx", time.Now().UTC().Format("20060102_150405"))
	c.Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Set("Content-Disposition", "attachment; filename="+filename)

	if err := h.feedback.ExportXLSX(c.UserContext(), feedbackFilter(c), c); err != nil {
		c.Set("Content-Disposition", "")
		return serviceError(c, err, "Failed to export feedback")
	}
	return nil
}

// Delete - DELETE /admin/feedback/:id
func (h *FeedbackHandler) Delete(c *fiber.Ctx) error {
	deleted, err := h.feedback.Delete(c.UserContext(), c.Params("id"))
	if err != nil {
		return serviceError(c, err, "Failed to delete feedback")
	}
	if !deleted {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse("NOT_FOUND", "Feedback not found"))
	}
	return c.JSON(dto.SuccessResponse(nil, "Feedback deleted"))
}

// DeleteBulk - DELETE /admin/feedback?qr_code_id=, everything when the id is absent
func (h *FeedbackHandler) DeleteBulk(c *fiber.Ctx) error {
	var (
		n   int64
		err error
	)
	if id := c.Query("qr_code_id"); id != "" {
		n, err = h.feedback.DeleteByQRCode(c.UserContext(), id)
	} else {
		n, err = h.feedback.DeleteAll(c.UserContext())
	}
	if err != nil {
		return serviceError(c, err, "Failed to delete feedback")
	}
	return c.JSON(dto.SuccessResponse(dto.DeletedResponse{Deleted: n}, fmt.Sprintf("%d feedback deleted", n)))
}
