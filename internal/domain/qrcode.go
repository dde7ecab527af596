package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// QRCodeStatus classifies whether a QR code accepts new submissions and why not.
type QRCodeStatus string

const (
	StatusActive      QRCodeStatus = "active"
	StatusNotFound    QRCodeStatus = "not_found"
	StatusExpired     QRCodeStatus = "expired"
	StatusExhausted   QRCodeStatus = "exhausted"
	StatusDeactivated QRCodeStatus = "deactivated"
)

// Status evaluates the record against now. Deactivation takes precedence over
// expiry, expiry over the scan limit. An expiry equal to now is still valid.
func (q QRCode) Status(now time.Time) QRCodeStatus {
	if !q.IsActive {
		return StatusDeactivated
	}
	if now.After(q.ExpiresAt) {
		return StatusExpired
	}
	if q.CurrentScans >= q.MaxScans {
		return StatusExhausted
	}
	return StatusActive
}

// IsValid reports whether the record permits a new submission at now.
func (q QRCode) IsValid(now time.Time) bool {
	return q.Status(now) == StatusActive
}

var ErrValidation = errors.New("validation failed")

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Validate checks a record before it is persisted.
func (q QRCode) Validate() error {
	if strings.TrimSpace(q.ID) == "" {
		return invalid("id", "must not be empty")
	}
	if strings.TrimSpace(q.Context) == "" {
		return invalid("context", "must not be empty")
	}
	if q.CreatedAt.IsZero() {
		return invalid("createdAt", "must be set")
	}
	if q.ExpiresAt.IsZero() {
		return invalid("expiresAt", "must be set")
	}
	if q.MaxScans < 0 {
		return invalid("maxScans", "must not be negative")
	}
	if q.CurrentScans < 0 {
		return invalid("currentScans", "must not be negative")
	}
	return ValidateQuestions(q.CustomQuestions)
}

func ValidateQuestions(questions []CustomQuestion) error {
	seen := make(map[string]struct{}, len(questions))
	for i, cq := range questions {
		field := fmt.Sprintf("customQuestions[%d]", i)
		if strings.TrimSpace(cq.ID) == "" {
			return invalid(field+".id", "must not be empty")
		}
		if _, dup := seen[cq.ID]; dup {
			return invalid(field+".id", "duplicate question id %q", cq.ID)
		}
		seen[cq.ID] = struct{}{}
		if strings.TrimSpace(cq.QuestionText) == "" {
			return invalid(field+".questionText", "must not be empty")
		}
		if !cq.Type.Valid() {
			return invalid(field+".type", "unknown question type %q", cq.Type)
		}
		if cq.Type == QuestionMultipleChoice && len(cq.Options) < 2 {
			return invalid(field+".options", "multiple choice needs at least two options")
		}
	}
	return nil
}

// QRCodePatch carries a partial update. Nil fields are left untouched.
type QRCodePatch struct {
	Context         *string           `json:"context,omitempty"`
	ExpiresAt       *time.Time        `json:"expiresAt,omitempty"`
	MaxScans        *int              `json:"maxScans,omitempty"`
	CurrentScans    *int              `json:"currentScans,omitempty"`
	IsActive        *bool             `json:"isActive,omitempty"`
	CustomQuestions *[]CustomQuestion `json:"customQuestions,omitempty"`
}

func (p QRCodePatch) Validate() error {
	if p.Context != nil && strings.TrimSpace(*p.Context) == "" {
		return invalid("context", "must not be empty")
	}
	if p.ExpiresAt != nil && p.ExpiresAt.IsZero() {
		return invalid("expiresAt", "must be set")
	}
	if p.MaxScans != nil && *p.MaxScans < 0 {
		return invalid("maxScans", "must not be negative")
	}
	if p.CurrentScans != nil && *p.CurrentScans < 0 {
		return invalid("currentScans", "must not be negative")
	}
	if p.CustomQuestions != nil {
		return ValidateQuestions(*p.CustomQuestions)
	}
	return nil
}

// Apply returns a copy of q with the patch merged in.
func (p QRCodePatch) Apply(q QRCode) QRCode {
	if p.Context != nil {
		q.Context = *p.Context
	}
	if p.ExpiresAt != nil {
		q.ExpiresAt = p.ExpiresAt.UTC()
	}
	if p.MaxScans != nil {
		q.MaxScans = *p.MaxScans
	}
	if p.CurrentScans != nil {
		q.CurrentScans = *p.CurrentScans
	}
	if p.IsActive != nil {
		q.IsActive = *p.IsActive
	}
	if p.CustomQuestions != nil {
		q.CustomQuestions = append(CustomQuestions(nil), (*p.CustomQuestions)...)
	}
	return q
}

// Fields renders the patch as a field map keyed by JSON field names.
func (p QRCodePatch) Fields() map[string]any {
	fields := make(map[string]any)
	if p.Context != nil {
		fields["context"] = *p.Context
	}
	if p.ExpiresAt != nil {
		fields["expiresAt"] = p.ExpiresAt.UTC()
	}
	if p.MaxScans != nil {
		fields["maxScans"] = *p.MaxScans
	}
	if p.CurrentScans != nil {
		fields["currentScans"] = *p.CurrentScans
	}
	if p.IsActive != nil {
		fields["isActive"] = *p.IsActive
	}
	if p.CustomQuestions != nil {
		fields["customQuestions"] = *p.CustomQuestions
	}
	return fields
}

func (p QRCodePatch) Empty() bool {
	return len(p.Fields()) == 0
}
