package dto

import (
	"time"

	"github.com/HimanshuNaik19/feedback-flash-qr/internal/domain"
)

type CreateQRCodeRequest struct {
	Context         string                  `json:"context"`
	ExpiryHours     int                     `json:"expiry_hours"`
	MaxScans        int                     `json:"max_scans"`
	CustomQuestions []domain.CustomQuestion `json:"custom_questions,omitempty"`
}

// UpdateQRCodeRequest - every field is optional; absent fields keep their value
type UpdateQRCodeRequest struct {
	Context         *string                  `json:"context,omitempty"`
	ExpiresAt       *time.Time               `json:"expires_at,omitempty"`
	MaxScans        *int                     `json:"max_scans,omitempty"`
	IsActive        *bool                    `json:"is_active,omitempty"`
	CustomQuestions *[]domain.CustomQuestion `json:"custom_questions,omitempty"`
}

type QRCodeResponse struct {
	domain.QRCode
	URL    string              `json:"url"`
	Status domain.QRCodeStatus `json:"status"`
}

// CheckResponse - what the scan page needs to decide whether to show the form
type CheckResponse struct {
	Status domain.QRCodeStatus `json:"status"`
	QRCode *QRCodeResponse     `json:"qr_code,omitempty"`
}

func (r UpdateQRCodeRequest) Patch() domain.QRCodePatch {
	return domain.QRCodePatch{
		Context:         r.Context,
		ExpiresAt:       r.ExpiresAt,
		MaxScans:        r.MaxScans,
		IsActive:        r.IsActive,
		CustomQuestions: r.CustomQuestions,
	}
}
