package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/HimanshuNaik19/feedback-flash-qr/internal/auth"
	"github.com/HimanshuNaik19/feedback-flash-qr/internal/cache"
	"github.com/HimanshuNaik19/feedback-flash-qr/internal/config"
	"github.com/HimanshuNaik19/feedback-flash-qr/internal/domain"
	"github.com/HimanshuNaik19/feedback-flash-qr/internal/middleware"
	"github.com/HimanshuNaik19/feedback-flash-qr/internal/repository"
	"github.com/HimanshuNaik19/feedback-flash-qr/internal/service"
	"github.com/HimanshuNaik19/feedback-flash-qr/internal/storage"
)

const (
	adminUser     = "admin"
	adminPassword = "s3cret-pass"
)

var errDown = errors.New("connection refused")

// downStore fails every call.
type downStore[T repository.Record] struct{}

func (downStore[T]) Put(context.Context, T) error { return errDown }

func (downStore[T]) Get(context.Context, string) (*T, error) { return nil, errDown }

func (downStore[T]) Delete(context.Context, string) (bool, error) { return false, errDown }

func (downStore[T]) GetAll(context.Context, repository.Filter, repository.FindOptions) ([]T, error) {
	return nil, errDown
}

func (downStore[T]) Update(context.Context, string, repository.Fields) (*T, error) {
	return nil, errDown
}

func (downStore[T]) DeleteMany(context.Context, repository.Filter) (int64, error) {
	return 0, errDown
}

type testApp struct {
	app     *fiber.App
	qrcodes *service.QRCodeService
	sync    *service.SyncService
	token   string
}

func fastPolicy() repository.RetryPolicy {
	return repository.RetryPolicy{Attempts: 2, BaseDelay: time.Millisecond, Factor: 2, Timeout: time.Second}
}

func setupApp(t *testing.T, feedbackStore repository.Store[domain.Feedback]) *testApp {
	t.Helper()
	ctx := context.Background()

	hash, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.MinCost)
	require.NoError(t, err)
	cfg := &config.Config{
		JWT:   config.JWTConfig{AccessSecret: "test-secret", AccessExpiry: time.Hour},
		Admin: config.AdminConfig{Username: adminUser, PasswordHash: string(hash)},
	}

	blobs := storage.NewMemoryBlobs(0)
	local := repository.NewLocalStore[domain.QRCode](blobs, repository.QRCodesKey, repository.LayoutMap)
	remote := repository.NewResilient[domain.QRCode]("qrCodes", repository.NewMemoryStore[domain.QRCode](), fastPolicy())
	feedback := repository.NewResilient[domain.Feedback]("feedback", feedbackStore, fastPolicy())
	qrCache := cache.New[domain.QRCode](cache.DefaultTTL)

	monitor := service.NewConnectivityMonitor(remote, time.Hour)
	syncSvc, err := service.NewSyncService(ctx, local, remote, blobs, qrCache, monitor, service.SyncConfig{})
	require.NoError(t, err)
	qrcodes := service.NewQRCodeService(remote, local, feedback, syncSvc, qrCache, "https://feedback.example.com")
	feedbackSvc := service.NewFeedbackService(feedback, qrcodes, nil)

	jwtService := auth.NewJWTService(cfg)
	routes := &Routes{
		Auth:           NewAuthHandler(auth.NewAdmin(cfg.Admin), jwtService),
		QRCode:         NewQRCodeHandler(qrcodes),
		Feedback:       NewFeedbackHandler(feedbackSvc),
		Sync:           NewSyncHandler(syncSvc),
		Public:         NewPublicHandler(syncSvc),
		AuthMiddleware: middleware.NewAuthMiddleware(jwtService),
	}
	app := fiber.New()
	routes.Mount(app)

	token, err := jwtService.GenerateAccessToken(adminUser, auth.RoleAdmin)
	require.NoError(t, err)
	return &testApp{app: app, qrcodes: qrcodes, sync: syncSvc, token: token}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   *struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		Retryable bool   `json:"retryable"`
	} `json:"error"`
}

func (a *testApp) do(t *testing.T, method, path string, body any, authed bool) (*http.Response, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if authed {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}

	resp, err := a.app.Test(req, -1)
	require.NoError(t, err)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var env envelope
	if len(data) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), fiber.MIMEApplicationJSON) {
		require.NoError(t, json.Unmarshal(data, &env), string(data))
	}
	return resp, env
}

func (a *testApp) createQR(t *testing.T, label string, maxScans int) qrResponse {
	t.Helper()
	resp, env := a.do(t, http.MethodPost, "/api/v1/admin/qrcodes", map[string]any{
		"context":      label,
		"expiry_hours": 24,
		"max_scans":    maxScans,
	}, true)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var qr qrResponse
	require.NoError(t, json.Unmarshal(env.Data, &qr))
	return qr
}

type qrResponse struct {
	ID           string `json:"id"`
	Context      string `json:"context"`
	MaxScans     int    `json:"maxScans"`
	CurrentScans int    `json:"currentScans"`
	IsActive     bool   `json:"isActive"`
	URL          string `json:"url"`
	Status       string `json:"status"`
}

func feedbackBody(rating int) map[string]any {
	return map[string]any{
		"name":         "Asha",
		"phone_number": "+91 98765 43210",
		"rating":       rating,
		"comment":      "Great service",
	}
}

func TestLogin(t *testing.T) {
	a := setupApp(t, repository.NewMemoryStore[domain.Feedback]())

	resp, env := a.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"username": adminUser, "password": adminPassword,
	}, false)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var login struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &login))
	assert.NotEmpty(t, login.AccessToken)
	assert.Equal(t, "Bearer", login.TokenType)

	resp, env = a.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"username": adminUser, "password": "wrong",
	}, false)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "INVALID_CREDENTIALS", env.Error.Code)
}

func TestAdminRoutesRequireToken(t *testing.T) {
	a := setupApp(t, repository.NewMemoryStore[domain.Feedback]())

	resp, env := a.do(t, http.MethodGet, "/api/v1/admin/qrcodes", nil, false)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "UNAUTHORIZED", env.Error.Code)

	a.token = "not-a-jwt"
	resp, env = a.do(t, http.MethodGet, "/api/v1/admin/qrcodes", nil, true)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "INVALID_TOKEN", env.Error.Code)
}

func TestQRCodeCRUD(t *testing.T) {
	a := setupApp(t, repository.NewMemoryStore[domain.Feedback]())

	qr := a.createQR(t, "Table 5", 50)
	assert.Equal(t, "Table 5", qr.Context)
	assert.Equal(t, "https://feedback.example.com/feedback/"+qr.ID, qr.URL)
	assert.Equal(t, "active", qr.Status)

	resp, env := a.do(t, http.MethodGet, "/api/v1/admin/qrcodes", nil, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []qrResponse
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list, 1)
	assert.Equal(t, qr.ID, list[0].ID)

	resp, env = a.do(t, http.MethodPatch, "/api/v1/admin/qrcodes/"+qr.ID, map[string]any{"is_active": false}, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var updated qrResponse
	require.NoError(t, json.Unmarshal(env.Data, &updated))
	assert.False(t, updated.IsActive)
	assert.Equal(t, "deactivated", updated.Status)

	resp, env = a.do(t, http.MethodPatch, "/api/v1/admin/qrcodes/"+qr.ID, map[string]any{"max_scans": -1}, true)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)

	resp, _ = a.do(t, http.MethodDelete, "/api/v1/admin/qrcodes/"+qr.ID, nil, true)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, env = a.do(t, http.MethodDelete, "/api/v1/admin/qrcodes/"+qr.ID, nil, true)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "QR_NOT_FOUND", env.Error.Code)

	resp, _ = a.do(t, http.MethodGet, "/api/v1/admin/qrcodes/"+qr.ID, nil, true)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateQRCode_Validation(t *testing.T) {
	a := setupApp(t, repository.NewMemoryStore[domain.Feedback]())

	resp, env := a.do(t, http.MethodPost, "/api/v1/admin/qrcodes", map[string]any{
		"context": "  ", "expiry_hours": 24, "max_scans": 10,
	}, true)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
}

func TestCheckAndSubmit(t *testing.T) {
	a := setupApp(t, repository.NewMemoryStore[domain.Feedback]())
	qr := a.createQR(t, "Table 7", 1)

	resp, env := a.do(t, http.MethodGet, "/api/v1/qrcodes/"+qr.ID+"/check", nil, false)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var check struct {
		Status string      `json:"status"`
		QRCode *qrResponse `json:"qr_code"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &check))
	assert.Equal(t, "active", check.Status)
	require.NotNil(t, check.QRCode)

	resp, env = a.do(t, http.MethodPost, "/api/v1/qrcodes/"+qr.ID+"/feedback", feedbackBody(9), false)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)

	resp, env = a.do(t, http.MethodPost, "/api/v1/qrcodes/"+qr.ID+"/feedback", feedbackBody(5), false)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var fb struct {
		ID        string `json:"id"`
		Sentiment string `json:"sentiment"`
		Context   string `json:"context"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &fb))
	assert.Equal(t, "positive", fb.Sentiment)
	assert.Equal(t, "Table 7", fb.Context)

	resp, env = a.do(t, http.MethodPost, "/api/v1/qrcodes/"+qr.ID+"/feedback", feedbackBody(4), false)
	assert.Equal(t, http.StatusGone, resp.StatusCode)
	assert.Equal(t, "SCAN_LIMIT_REACHED", env.Error.Code)

	_, env = a.do(t, http.MethodGet, "/api/v1/qrcodes/"+qr.ID+"/check", nil, false)
	require.NoError(t, json.Unmarshal(env.Data, &check))
	assert.Equal(t, "exhausted", check.Status)

	resp, env = a.do(t, http.MethodPost, "/api/v1/qrcodes/unknown-id/feedback", feedbackBody(4), false)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "QR_NOT_FOUND", env.Error.Code)

	_, env = a.do(t, http.MethodGet, "/api/v1/qrcodes/unknown-id/check", nil, false)
	require.NoError(t, json.Unmarshal(env.Data, &check))
	assert.Equal(t, "not_found", check.Status)
	assert.Nil(t, check.QRCode)
}

func TestSubmit_DeactivatedCode(t *testing.T) {
	a := setupApp(t, repository.NewMemoryStore[domain.Feedback]())
	qr := a.createQR(t, "Closed", 10)
	a.do(t, http.MethodPatch, "/api/v1/admin/qrcodes/"+qr.ID, map[string]any{"is_active": false}, true)

	resp, env := a.do(t, http.MethodPost, "/api/v1/qrcodes/"+qr.ID+"/feedback", feedbackBody(4), false)
	assert.Equal(t, http.StatusGone, resp.StatusCode)
	assert.Equal(t, "QR_DEACTIVATED", env.Error.Code)
}

func TestSubmit_StorageDownIsRetryable(t *testing.T) {
	a := setupApp(t, downStore[domain.Feedback]{})
	qr := a.createQR(t, "Table 9", 10)

	resp, env := a.do(t, http.MethodPost, "/api/v1/qrcodes/"+qr.ID+"/feedback", feedbackBody(4), false)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	require.NotNil(t, env.Error)
	assert.Equal(t, "NETWORK_ERROR", env.Error.Code)
	assert.True(t, env.Error.Retryable)
}

func TestFeedbackAdmin(t *testing.T) {
	a := setupApp(t, repository.NewMemoryStore[domain.Feedback]())
	first := a.createQR(t, "Table 1", 10)
	second := a.createQR(t, "Table 2", 10)

	for _, rating := range []int{5, 2} {
		resp, _ := a.do(t, http.MethodPost, "/api/v1/qrcodes/"+first.ID+"/feedback", feedbackBody(rating), false)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}
	resp, env := a.do(t, http.MethodPost, "/api/v1/qrcodes/"+second.ID+"/feedback", feedbackBody(3), false)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var lone struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &lone))

	_, env = a.do(t, http.MethodGet, "/api/v1/admin/feedback?qr_code_id="+first.ID, nil, true)
	var items []map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &items))
	assert.Len(t, items, 2)

	_, env = a.do(t, http.MethodGet, "/api/v1/admin/feedback?sentiment=negative", nil, true)
	items = nil
	require.NoError(t, json.Unmarshal(env.Data, &items))
	require.Len(t, items, 1)
	assert.Equal(t, float64(2), items[0]["rating"])

	resp, env = a.do(t, http.MethodGet, "/api/v1/admin/feedback?sentiment=angry", nil, true)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)

	_, env = a.do(t, http.MethodGet, "/api/v1/admin/feedback/stats", nil, true)
	var stats service.FeedbackStats
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 1, stats.Positive)
	assert.Equal(t, 2, stats.ActiveQRCodes)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/feedback/export", nil)
	req.Header.Set("Authorization", "Bearer "+a.token)
	export, err := a.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, export.StatusCode)
	assert.Contains(t, export.Header.Get("Content-Type"), "spreadsheetml")
	assert.Contains(t, export.Header.Get("Content-Disposition"), ".xlsx")

	resp, _ = a.do(t, http.MethodDelete, "/api/v1/admin/feedback/"+lone.ID, nil, true)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, env = a.do(t, http.MethodDelete, "/api/v1/admin/feedback/"+lone.ID, nil, true)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)

	_, env = a.do(t, http.MethodDelete, "/api/v1/admin/feedback?qr_code_id="+first.ID, nil, true)
	var deleted struct {
		Deleted int64 `json:"deleted"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &deleted))
	assert.Equal(t, int64(2), deleted.Deleted)
}

func TestDeleteQRCode_CascadesFeedback(t *testing.T) {
	a := setupApp(t, repository.NewMemoryStore[domain.Feedback]())
	qr := a.createQR(t, "Table 3", 10)
	resp, _ := a.do(t, http.MethodPost, "/api/v1/qrcodes/"+qr.ID+"/feedback", feedbackBody(4), false)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, _ = a.do(t, http.MethodDelete, "/api/v1/admin/qrcodes/"+qr.ID, nil, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	_, env := a.do(t, http.MethodGet, "/api/v1/admin/feedback?qr_code_id="+qr.ID, nil, true)
	var items []map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &items))
	assert.Empty(t, items)
}

func TestSyncRoutes(t *testing.T) {
	a := setupApp(t, repository.NewMemoryStore[domain.Feedback]())

	resp, env := a.do(t, http.MethodGet, "/api/v1/admin/sync/status", nil, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var status struct {
		Status  string   `json:"status"`
		Online  bool     `json:"online"`
		Pending []string `json:"pending"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &status))
	assert.Equal(t, "online", status.Status)
	assert.True(t, status.Online)
	assert.Empty(t, status.Pending)

	a.sync.Monitor().Set(false)
	qr := a.createQR(t, "Offline", 10)
	_, env = a.do(t, http.MethodGet, "/api/v1/admin/sync/status", nil, true)
	require.NoError(t, json.Unmarshal(env.Data, &status))
	assert.Equal(t, "offline", status.Status)
	assert.Equal(t, []string{qr.ID}, status.Pending)

	a.sync.Monitor().Set(true)
	resp, env = a.do(t, http.MethodPost, "/api/v1/admin/sync", nil, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var result struct {
		Synced  int      `json:"synced"`
		Pending []string `json:"pending"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, 1, result.Synced)
	assert.Empty(t, result.Pending)
}

func TestHealth(t *testing.T) {
	a := setupApp(t, repository.NewMemoryStore[domain.Feedback]())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	resp, err := a.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "online", body["sync"])
}
