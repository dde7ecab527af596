package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// CustomQuestionType enumerates the input kinds a QR code can ask for.
type CustomQuestionType string

const (
	QuestionText           CustomQuestionType = "text"
	QuestionMultipleChoice CustomQuestionType = "multiple_choice"
	QuestionYesNo          CustomQuestionType = "yes_no"
	QuestionRating         CustomQuestionType = "rating"
)

func (t CustomQuestionType) Valid() bool {
	switch t {
	case QuestionText, QuestionMultipleChoice, QuestionYesNo, QuestionRating:
		return true
	}
	return false
}

type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

func (s Sentiment) Valid() bool {
	switch s {
	case SentimentPositive, SentimentNeutral, SentimentNegative:
		return true
	}
	return false
}

type CustomQuestion struct {
	ID           string             `json:"id" bson:"id"`
	QuestionText string             `json:"questionText" bson:"questionText"`
	Required     bool               `json:"required" bson:"required"`
	Type         CustomQuestionType `json:"type" bson:"type"`
	Options      []string           `json:"options,omitempty" bson:"options,omitempty"`
}

type CustomAnswer struct {
	QuestionID string `json:"questionId" bson:"questionId"`
	Answer     string `json:"answer" bson:"answer"`
}

// CustomQuestions is stored as a JSON text column.
type CustomQuestions []CustomQuestion

func (q CustomQuestions) Value() (driver.Value, error) {
	if q == nil {
		return nil, nil
	}
	b, err := json.Marshal(q)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (q *CustomQuestions) Scan(value interface{}) error {
	return scanJSON(value, q)
}

// CustomAnswers is stored as a JSON text column.
type CustomAnswers []CustomAnswer

func (a CustomAnswers) Value() (driver.Value, error) {
	if a == nil {
		return nil, nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (a *CustomAnswers) Scan(value interface{}) error {
	return scanJSON(value, a)
}

func scanJSON(value interface{}, dst interface{}) error {
	switch v := value.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		return fmt.Errorf("unsupported json column type %T", value)
	}
}

// QRCode is one physical or contextual feedback collection point.
type QRCode struct {
	ID              string          `gorm:"type:varchar(36);primaryKey" json:"id" bson:"_id"`
	Context         string          `gorm:"type:text;not null" json:"context" bson:"context"`
	CreatedAt       time.Time       `gorm:"not null;index" json:"createdAt" bson:"createdAt"`
	ExpiresAt       time.Time       `gorm:"not null" json:"expiresAt" bson:"expiresAt"`
	MaxScans        int             `gorm:"not null" json:"maxScans" bson:"maxScans"`
	CurrentScans    int             `gorm:"not null" json:"currentScans" bson:"currentScans"`
	IsActive        bool            `gorm:"not null" json:"isActive" bson:"isActive"`
	CustomQuestions CustomQuestions `gorm:"type:text" json:"customQuestions,omitempty" bson:"customQuestions,omitempty"`
}

func (QRCode) TableName() string { return "qr_codes" }

func (q QRCode) RecordID() string { return q.ID }

func (q QRCode) CreatedTime() time.Time { return q.CreatedAt }

// Question returns the custom question with the given id.
func (q QRCode) Question(id string) (CustomQuestion, bool) {
	for _, cq := range q.CustomQuestions {
		if cq.ID == id {
			return cq, true
		}
	}
	return CustomQuestion{}, false
}

// Feedback is one submitted response. Immutable once created.
type Feedback struct {
	ID            string        `gorm:"type:varchar(36);primaryKey" json:"id" bson:"_id"`
	QRCodeID      string        `gorm:"type:varchar(36);not null;index" json:"qrCodeId" bson:"qrCodeId"`
	Name          string        `gorm:"type:varchar(255)" json:"name" bson:"name"`
	PhoneNumber   string        `gorm:"type:varchar(20)" json:"phoneNumber" bson:"phoneNumber"`
	Email         string        `gorm:"type:varchar(255)" json:"email,omitempty" bson:"email,omitempty"`
	Rating        int           `gorm:"not null" json:"rating" bson:"rating"`
	Comment       string        `gorm:"type:text" json:"comment" bson:"comment"`
	Context       string        `gorm:"type:text" json:"context" bson:"context"`
	Sentiment     Sentiment     `gorm:"type:varchar(20);not null" json:"sentiment" bson:"sentiment"`
	CreatedAt     time.Time     `gorm:"not null;index" json:"createdAt" bson:"createdAt"`
	CustomAnswers CustomAnswers `gorm:"type:text" json:"customAnswers,omitempty" bson:"customAnswers,omitempty"`
}

func (Feedback) TableName() string { return "feedback" }

func (f Feedback) RecordID() string { return f.ID }

func (f Feedback) CreatedTime() time.Time { return f.CreatedAt }
