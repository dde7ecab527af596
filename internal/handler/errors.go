package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/HimanshuNaik19/feedback-flash-qr/internal/domain"
	"github.com/HimanshuNaik19/feedback-flash-qr/internal/dto"
	"github.com/HimanshuNaik19/feedback-flash-qr/internal/logger"
	"github.com/HimanshuNaik19/feedback-flash-qr/internal/repository"
	"github.com/HimanshuNaik19/feedback-flash-qr/internal/service"
	"github.com/HimanshuNaik19/feedback-flash-qr/internal/storage"
)

// statusError maps a QR code status to the code and message the scan page shows.
func statusError(c *fiber.Ctx, status domain.QRCodeStatus) error {
	switch status {
	case domain.StatusNotFound:
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse("QR_NOT_FOUND", "QR code not found"))
	case domain.StatusExpired:
		return c.Status(fiber.StatusGone).JSON(dto.ErrorResponse("QR_EXPIRED", "This QR code has expired"))
	case domain.StatusExhausted:
		return c.Status(fiber.StatusGone).JSON(dto.ErrorResponse("SCAN_LIMIT_REACHED", "This QR code has reached its scan limit"))
	case domain.StatusDeactivated:
		return c.Status(fiber.StatusGone).JSON(dto.ErrorResponse("QR_DEACTIVATED", "This QR code has been deactivated"))
	}
	return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse("QR_UNAVAILABLE", "This QR code does not accept feedback"))
}

// serviceError translates service and storage errors into the API envelope.
func serviceError(c *fiber.Ctx, err error, fallback string) error {
	var (
		rejected *service.ScanRejectedError
		invalid  *domain.ValidationError
	)
	switch {
	case errors.As(err, &rejected):
		return statusError(c, rejected.Status)
	case errors.As(err, &invalid):
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse(
			"VALIDATION_ERROR", invalid.Error(),
			dto.ErrorDetail{Field: invalid.Field, Message: invalid.Message},
		))
	case errors.Is(err, storage.ErrQuotaExceeded):
		return c.Status(fiber.StatusInsufficientStorage).JSON(dto.ErrorResponse(
			"STORAGE_QUOTA_EXCEEDED", "Local storage is full",
		))
	case errors.Is(err, repository.ErrUnavailable):
		return c.Status(fiber.StatusServiceUnavailable).JSON(dto.RetryableErrorResponse(
			"NETWORK_ERROR", "Storage is temporarily unreachable, please try again",
		))
	}

	logger.Errorf("%s: %v", fallback, err)
	return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse("INTERNAL_ERROR", fallback))
}
