package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/HimanshuNaik19/feedback-flash-qr/internal/domain"
	"github.com/HimanshuNaik19/feedback-flash-qr/internal/logger"
	"github.com/HimanshuNaik19/feedback-flash-qr/internal/repository"
)

// SentimentClassifier derives the sentiment stored with a submission.
type SentimentClassifier interface {
	Classify(rating int, comment string) domain.Sentiment
}

// RatingClassifier ignores the text: 4 and 5 are positive, 3 neutral.
type RatingClassifier struct{}

func (RatingClassifier) Classify(rating int, _ string) domain.Sentiment {
	switch {
	case rating >= 4:
		return domain.SentimentPositive
	case rating == 3:
		return domain.SentimentNeutral
	default:
		return domain.SentimentNegative
	}
}

// ScanRejectedError reports why a QR code refused a submission.
type ScanRejectedError struct {
	QRCodeID string
	Status   domain.QRCodeStatus
}

func (e *ScanRejectedError) Error() string {
	return fmt.Sprintf("qr code %s does not accept feedback: %s", e.QRCodeID, e.Status)
}

type SubmitInput struct {
	Name          string
	PhoneNumber   string
	Email         string
	Rating        int
	Comment       string
	CustomAnswers []domain.CustomAnswer
}

type FeedbackStats struct {
	Total         int     `json:"total"`
	Positive      int     `json:"positive"`
	Neutral       int     `json:"neutral"`
	Negative      int     `json:"negative"`
	PositiveRatio float64 `json:"positiveRatio"`
	AverageRating float64 `json:"averageRating"`
	ActiveQRCodes int     `json:"activeQRCodes"`

	// ExpiredQRCodes counts codes past their expiry only. InactiveQRCodes
	// counts every code that no longer accepts feedback, whatever the reason.
	ExpiredQRCodes  int `json:"expiredQRCodes"`
	InactiveQRCodes int `json:"inactiveQRCodes"`
}

type FeedbackService struct {
	store      repository.Store[domain.Feedback]
	qrcodes    *QRCodeService
	classifier SentimentClassifier
	newID      func() string
}

func NewFeedbackService(store repository.Store[domain.Feedback], qrcodes *QRCodeService, classifier SentimentClassifier) *FeedbackService {
	if classifier == nil {
		classifier = RatingClassifier{}
	}
	return &FeedbackService{
		store:      store,
		qrcodes:    qrcodes,
		classifier: classifier,
		newID:      uuid.NewString,
	}
}

// Submit validates a response against its QR code, counts the scan and
// stores the feedback. Storage failures are returned, never deferred.
func (s *FeedbackService) Submit(ctx context.Context, qrCodeID string, in SubmitInput) (*domain.Feedback, error) {
	qr, err := s.qrcodes.Get(ctx, qrCodeID)
	if err != nil {
		return nil, err
	}
	if qr == nil {
		return nil, &ScanRejectedError{QRCodeID: qrCodeID, Status: domain.StatusNotFound}
	}
	if status := qr.Status(s.qrcodes.Now()); status != domain.StatusActive {
		return nil, &ScanRejectedError{QRCodeID: qrCodeID, Status: status}
	}

	fb := domain.Feedback{
		ID:            s.newID(),
		QRCodeID:      qrCodeID,
		Name:          strings.TrimSpace(in.Name),
		PhoneNumber:   strings.TrimSpace(in.PhoneNumber),
		Email:         strings.TrimSpace(in.Email),
		Rating:        in.Rating,
		Comment:       strings.TrimSpace(in.Comment),
		Context:       qr.Context,
		CustomAnswers: in.CustomAnswers,
	}
	fb.Sentiment = s.classifier.Classify(fb.Rating, fb.Comment)
	fb.CreatedAt = s.qrcodes.Now().Truncate(time.Millisecond)
	if err := fb.Validate(); err != nil {
		return nil, err
	}
	if err := domain.ValidateAnswers(*qr, fb.CustomAnswers); err != nil {
		return nil, err
	}

	counted, status, err := s.qrcodes.AcceptScan(ctx, qrCodeID)
	if err != nil {
		return nil, err
	}
	if status != domain.StatusActive {
		return nil, &ScanRejectedError{QRCodeID: qrCodeID, Status: status}
	}
	fb.Context = counted.Context

	if err := s.store.Put(ctx, fb); err != nil {
		log := logger.WithFields(logger.Fields{"qr_code_id": qrCodeID})
		log.Errorf("storing feedback failed: %v", err)
		if _, relErr := s.qrcodes.ReleaseScan(context.WithoutCancel(ctx), qrCodeID); relErr != nil {
			log.Errorf("releasing scan after failed submission: %v", relErr)
		}
		return nil, err
	}
	return &fb, nil
}

// FeedbackFilter narrows List and ExportXLSX. Empty fields match everything.
type FeedbackFilter struct {
	QRCodeID  string
	Sentiment domain.Sentiment
}

func (f FeedbackFilter) storeFilter() (repository.Filter, error) {
	filter := repository.Filter{}
	if f.QRCodeID != "" {
		filter["qrCodeId"] = f.QRCodeID
	}
	if f.Sentiment != "" {
		if !f.Sentiment.Valid() {
			return nil, &domain.ValidationError{Field: "sentiment", Message: fmt.Sprintf("unknown sentiment %q", f.Sentiment)}
		}
		filter["sentiment"] = string(f.Sentiment)
	}
	if len(filter) == 0 {
		return nil, nil
	}
	return filter, nil
}

// List returns matching feedback newest first.
func (s *FeedbackService) List(ctx context.Context, f FeedbackFilter) ([]domain.Feedback, error) {
	filter, err := f.storeFilter()
	if err != nil {
		return nil, err
	}
	return s.store.GetAll(ctx, filter, repository.FindOptions{SortByCreatedDesc: true})
}

func (s *FeedbackService) Get(ctx context.Context, id string) (*domain.Feedback, error) {
	return s.store.Get(ctx, id)
}

func (s *FeedbackService) Delete(ctx context.Context, id string) (bool, error) {
	return s.store.Delete(ctx, id)
}

func (s *FeedbackService) DeleteByQRCode(ctx context.Context, qrCodeID string) (int64, error) {
	return s.store.DeleteMany(ctx, repository.Filter{"qrCodeId": qrCodeID})
}

func (s *FeedbackService) DeleteAll(ctx context.Context) (int64, error) {
	return s.store.DeleteMany(ctx, nil)
}

// Stats summarises all feedback and the QR codes that collect it.
func (s *FeedbackService) Stats(ctx context.Context) (*FeedbackStats, error) {
	items, err := s.store.GetAll(ctx, nil, repository.FindOptions{})
	if err != nil {
		return nil, err
	}
	qrs, err := s.qrcodes.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	stats := &FeedbackStats{Total: len(items)}
	ratingSum := 0
	for _, fb := range items {
		ratingSum += fb.Rating
		switch fb.Sentiment {
		case domain.SentimentPositive:
			stats.Positive++
		case domain.SentimentNeutral:
			stats.Neutral++
		case domain.SentimentNegative:
			stats.Negative++
		}
	}
	if stats.Total > 0 {
		stats.PositiveRatio = float64(stats.Positive) / float64(stats.Total)
		stats.AverageRating = float64(ratingSum) / float64(stats.Total)
	}

	now := s.qrcodes.Now()
	for _, qr := range qrs {
		switch qr.Status(now) {
		case domain.StatusActive:
			stats.ActiveQRCodes++
		case domain.StatusExpired:
			stats.ExpiredQRCodes++
			stats.InactiveQRCodes++
		default:
			stats.InactiveQRCodes++
		}
	}
	return stats, nil
}

var exportHeader = []interface{}{
	"ID", "QR Code ID", "Context", "Name", "Phone Number", "Email",
	"Rating", "Sentiment", "Comment", "Custom Answers", "Created At",
}

// ExportXLSX writes feedback, newest first, as a single-sheet workbook.
func (s *FeedbackService) ExportXLSX(ctx context.Context, f FeedbackFilter, w io.Writer) error {
	items, err := s.List(ctx, f)
	if err != nil {
		return err
	}

	xlsx := excelize.NewFile()
	defer xlsx.Close()

	sheet := "Feedback"
	if err := xlsx.SetSheetName("Sheet1", sheet); err != nil {
		return err
	}
	if err := xlsx.SetSheetRow(sheet, "A1", &exportHeader); err != nil {
		return err
	}

	for i, fb := range items {
		answers := make([]string, 0, len(fb.CustomAnswers))
		for _, a := range fb.CustomAnswers {
			answers = append(answers, a.QuestionID+": "+a.Answer)
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []interface{}{
			fb.ID, fb.QRCodeID, fb.Context, fb.Name, fb.PhoneNumber, fb.Email,
			fb.Rating, string(fb.Sentiment), fb.Comment, strings.Join(answers, "; "),
			fb.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := xlsx.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}

	_, err = xlsx.WriteTo(w)
	return err
}
