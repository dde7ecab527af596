package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/HimanshuNaik19/feedback-flash-qr/internal/logger"
	"github.com/HimanshuNaik19/feedback-flash-qr/internal/repository"
)

// StoreHandler serves the database façade that HTTPStore talks to. Its
// responses are bare JSON with an {error} body on failure, not the API
// envelope, so any façade client can use it.
type StoreHandler struct {
	collections map[string]repository.FacadeCollection
	pinger      repository.Pinger
}

func NewStoreHandler(pinger repository.Pinger, collections map[string]repository.FacadeCollection) *StoreHandler {
	return &StoreHandler{collections: collections, pinger: pinger}
}

// Ping - GET /store/ping
func (h *StoreHandler) Ping(c *fiber.Ctx) error {
	if h.pinger != nil {
		if err := h.pinger.Ping(c.UserContext()); err != nil {
			logger.Warnf("store facade ping failed: %v", err)
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "database unreachable"})
		}
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

// Execute - POST /store/:collection/:operation
func (h *StoreHandler) Execute(c *fiber.Ctx) error {
	name := c.Params("collection")
	coll, ok := h.collections[name]
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unknown collection " + name})
	}

	var req repository.FacadeRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
		}
	}

	op := c.Params("operation")
	res, err := coll.Execute(c.UserContext(), op, req)
	if err != nil {
		if errors.Is(err, repository.ErrBadRequest) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		logger.WithFields(logger.Fields{"collection": name, "op": op}).Errorf("store facade failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(res)
}
