package dto

import "github.com/HimanshuNaik19/feedback-flash-qr/internal/domain"

// SubmitFeedbackRequest - public submission from the feedback page
type SubmitFeedbackRequest struct {
	Name          string                `json:"name"`
	PhoneNumber   string                `json:"phone_number"`
	Email         string                `json:"email,omitempty"`
	Rating        int                   `json:"rating"`
	Comment       string                `json:"comment,omitempty"`
	CustomAnswers []domain.CustomAnswer `json:"custom_answers,omitempty"`
}

type DeletedResponse struct {
	Deleted int64 `json:"deleted"`
}
