package domain

import (
	"net/mail"
	"regexp"
	"strconv"
	"strings"
)

const (
	MinRating = 1
	MaxRating = 5
)

var phonePattern = regexp.MustCompile(`^\+?[0-9 ()-]{6,20}$`)

// Validate checks a feedback record before it is persisted.
func (f Feedback) Validate() error {
	if strings.TrimSpace(f.ID) == "" {
		return invalid("id", "must not be empty")
	}
	if strings.TrimSpace(f.QRCodeID) == "" {
		return invalid("qrCodeId", "must not be empty")
	}
	if f.Rating < MinRating || f.Rating > MaxRating {
		return invalid("rating", "must be between %d and %d", MinRating, MaxRating)
	}
	if strings.TrimSpace(f.Name) == "" {
		return invalid("name", "must not be empty")
	}
	if !phonePattern.MatchString(f.PhoneNumber) {
		return invalid("phoneNumber", "is not a valid phone number")
	}
	if f.Email != "" {
		if _, err := mail.ParseAddress(f.Email); err != nil {
			return invalid("email", "is not a valid address")
		}
	}
	if len(f.Comment) > 2000 {
		return invalid("comment", "must be at most 2000 characters")
	}
	if !f.Sentiment.Valid() {
		return invalid("sentiment", "unknown sentiment %q", f.Sentiment)
	}
	if f.CreatedAt.IsZero() {
		return invalid("createdAt", "must be set")
	}
	return nil
}

// ValidateAnswers checks answers against the questions configured on q.
func ValidateAnswers(q QRCode, answers []CustomAnswer) error {
	given := make(map[string]string, len(answers))
	for _, a := range answers {
		cq, ok := q.Question(a.QuestionID)
		if !ok {
			return invalid("customAnswers", "unknown question %q", a.QuestionID)
		}
		if _, dup := given[a.QuestionID]; dup {
			return invalid("customAnswers", "question %q answered twice", a.QuestionID)
		}
		answer := strings.TrimSpace(a.Answer)
		given[a.QuestionID] = answer
		if answer == "" {
			continue
		}
		switch cq.Type {
		case QuestionMultipleChoice:
			if !contains(cq.Options, answer) {
				return invalid("customAnswers", "%q is not an option of question %q", answer, cq.ID)
			}
		case QuestionYesNo:
			if answer != "yes" && answer != "no" {
				return invalid("customAnswers", "question %q expects yes or no", cq.ID)
			}
		case QuestionRating:
			n, err := strconv.Atoi(answer)
			if err != nil || n < MinRating || n > MaxRating {
				return invalid("customAnswers", "question %q expects a rating between %d and %d", cq.ID, MinRating, MaxRating)
			}
		}
	}
	for _, cq := range q.CustomQuestions {
		if cq.Required && given[cq.ID] == "" {
			return invalid("customAnswers", "question %q is required", cq.ID)
		}
	}
	return nil
}

func contains(options []string, v string) bool {
	for _, o := range options {
		if o == v {
			return true
		}
	}
	return false
}
