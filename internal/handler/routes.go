package handler

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/HimanshuNaik19/feedback-flash-qr/internal/middleware"
)

// Routes holds every handler mounted by the API server. Store may be nil
// when the database façade is disabled.
type Routes struct {
	Auth      *AuthHandler
	QRCode    *QRCodeHandler
	Feedback  *FeedbackHandler
	Sync      *SyncHandler
	WebSocket *WebSocketHandler
	Public    *PublicHandler
	Store     *StoreHandler

	AuthMiddleware *middleware.AuthMiddleware
	StoreAPIKey    string
}

func (r *Routes) Mount(app *fiber.App) {
	if r.Store != nil {
		store := app.Group("/api/store", middleware.APIKey(r.StoreAPIKey))
		store.Get("/ping", r.Store.Ping)
		store.Post("/:collection/:operation", r.Store.Execute)
	}

	api := app.Group("/api/v1")

	// Health check
	api.Get("/health", r.Public.Health)

	// Auth routes
	api.Post("/auth/login", r.Auth.Login)

	// Public scan routes
	api.Get("/qrcodes/:id/check", r.QRCode.Check)
	api.Post("/qrcodes/:id/feedback", r.Feedback.Submit)

	// Sync status stream, authenticated through the token query parameter
	if r.WebSocket != nil {
		api.Get("/admin/sync/ws", r.WebSocket.WebSocketUpgrade(r.AuthMiddleware), websocket.New(r.WebSocket.HandleWebSocket))
	}

	// Admin routes
	admin := api.Group("/admin", r.AuthMiddleware.Required(), r.AuthMiddleware.AdminOnly())

	// Admin - QR codes
	admin.Get("/qrcodes", r.QRCode.List)
	admin.Post("/qrcodes", r.QRCode.Create)
	admin.Get("/qrcodes/:id", r.QRCode.Get)
	admin.Patch("/qrcodes/:id", r.QRCode.Update)
	admin.Delete("/qrcodes/:id", r.QRCode.Delete)

	// Admin - Feedback
	admin.Get("/feedback", r.Feedback.AdminList)
	admin.Get("/feedback/stats", r.Feedback.Stats)
	admin.Get("/feedback/export", r.Feedback.Export)
	admin.Delete("/feedback/:id", r.Feedback.Delete)
	admin.Delete("/feedback", r.Feedback.DeleteBulk)

	// Admin - Sync
	admin.Get("/sync/status", r.Sync.Status)
	admin.Post("/sync", r.Sync.Force)
}
