package service

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/HimanshuNaik19/feedback-flash-qr/internal/domain"
	"github.com/HimanshuNaik19/feedback-flash-qr/internal/repository"
)

func TestRatingClassifier(t *testing.T) {
	c := RatingClassifier{}
	assert.Equal(t, domain.SentimentPositive, c.Classify(5, ""))
	assert.Equal(t, domain.SentimentPositive, c.Classify(4, "meh"))
	assert.Equal(t, domain.SentimentNeutral, c.Classify(3, "great!"))
	assert.Equal(t, domain.SentimentNegative, c.Classify(2, ""))
	assert.Equal(t, domain.SentimentNegative, c.Classify(1, ""))
}

func TestSubmit_StoresFeedbackAndCountsScan(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	qr := h.generate(t, "Table 5", 24, 100)

	fb, err := h.feedbacks.Submit(ctx, qr.ID, validInput(5))
	require.NoError(t, err)
	assert.Equal(t, qr.ID, fb.QRCodeID)
	assert.Equal(t, "Table 5", fb.Context)
	assert.Equal(t, domain.SentimentPositive, fb.Sentiment)
	assert.False(t, fb.CreatedAt.IsZero())

	stored, err := h.feedbacks.Get(ctx, fb.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, fb.ID, stored.ID)

	got, err := h.qrcodes.Get(ctx, qr.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.CurrentScans)
}

func TestSubmit_RejectsUnusableCodes(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	_, err := h.feedbacks.Submit(ctx, uuid.NewString(), validInput(4))
	var rejected *ScanRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, domain.StatusNotFound, rejected.Status)

	off := h.generate(t, "Closed", 24, 100)
	inactive := false
	_, err = h.qrcodes.Update(ctx, off.ID, domain.QRCodePatch{IsActive: &inactive})
	require.NoError(t, err)
	_, err = h.feedbacks.Submit(ctx, off.ID, validInput(4))
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, domain.StatusDeactivated, rejected.Status)

	once := h.generate(t, "Single use", 24, 1)
	_, err = h.feedbacks.Submit(ctx, once.ID, validInput(4))
	require.NoError(t, err)
	_, err = h.feedbacks.Submit(ctx, once.ID, validInput(4))
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, domain.StatusExhausted, rejected.Status)
}

func TestSubmit_InvalidInputDoesNotConsumeScan(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	qr := h.generate(t, "Table 6", 24, 100)

	bad := []SubmitInput{
		validInput(0),
		validInput(6),
		{Name: "", PhoneNumber: "+91 98765 43210", Rating: 4},
		{Name: "Asha", PhoneNumber: "call me", Rating: 4},
		{Name: "Asha", PhoneNumber: "+91 98765 43210", Email: "not-an-email", Rating: 4},
	}
	for _, in := range bad {
		_, err := h.feedbacks.Submit(ctx, qr.ID, in)
		assert.ErrorIs(t, err, domain.ErrValidation, "%+v", in)
	}

	got, err := h.qrcodes.Get(ctx, qr.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.CurrentScans)
}

func TestSubmit_CustomAnswers(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	qr := h.generate(t, "Table 11", 24, 100)
	questions := []domain.CustomQuestion{
		{ID: "warm", QuestionText: "Was the food warm?", Required: true, Type: domain.QuestionYesNo},
		{ID: "dish", QuestionText: "Favourite dish", Type: domain.QuestionMultipleChoice, Options: []string{"dal", "paneer"}},
	}
	_, err := h.qrcodes.Update(ctx, qr.ID, domain.QRCodePatch{CustomQuestions: &questions})
	require.NoError(t, err)

	in := validInput(4)
	_, err = h.feedbacks.Submit(ctx, qr.ID, in)
	assert.ErrorIs(t, err, domain.ErrValidation, "required question unanswered")

	in.CustomAnswers = []domain.CustomAnswer{{QuestionID: "warm", Answer: "yes"}, {QuestionID: "dish", Answer: "pizza"}}
	_, err = h.feedbacks.Submit(ctx, qr.ID, in)
	assert.ErrorIs(t, err, domain.ErrValidation, "answer outside the options")

	in.CustomAnswers = []domain.CustomAnswer{{QuestionID: "warm", Answer: "yes"}, {QuestionID: "dish", Answer: "dal"}}
	fb, err := h.feedbacks.Submit(ctx, qr.ID, in)
	require.NoError(t, err)
	assert.Len(t, fb.CustomAnswers, 2)
}

func TestSubmit_StorageFailureIsReturned(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	qr := h.generate(t, "Table 12", 24, 100)

	h.feedback.down.Store(true)
	_, err := h.feedbacks.Submit(ctx, qr.ID, validInput(3))
	assert.ErrorIs(t, err, repository.ErrUnavailable)
	assert.True(t, errors.Is(err, errNetwork))

	got, err := h.qrcodes.Get(ctx, qr.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 0, got.CurrentScans, "a lost submission does not use up a scan")
}

func TestSubmit_RetryAfterStorageFailureOnLastSlot(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	qr := h.generate(t, "Table 13", 24, 1)

	h.feedback.down.Store(true)
	_, err := h.feedbacks.Submit(ctx, qr.ID, validInput(5))
	require.ErrorIs(t, err, repository.ErrUnavailable)

	h.feedback.down.Store(false)
	fb, err := h.feedbacks.Submit(ctx, qr.ID, validInput(5))
	require.NoError(t, err)
	require.NotNil(t, fb)

	got, err := h.qrcodes.Get(ctx, qr.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.CurrentScans)
	assert.False(t, got.IsValid(time.Now()))
}

func TestSubmit_ConcurrentScansRespectLimit(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	qr := h.generate(t, "Popular", 24, 5)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
		rejected int
	)
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.feedbacks.Submit(ctx, qr.ID, validInput(4))
			mu.Lock()
			defer mu.Unlock()
			var re *ScanRejectedError
			switch {
			case err == nil:
				accepted++
			case errors.As(err, &re) && re.Status == domain.StatusExhausted:
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, accepted)
	assert.Equal(t, 7, rejected)

	items, err := h.feedbacks.List(ctx, FeedbackFilter{QRCodeID: qr.ID})
	require.NoError(t, err)
	assert.Len(t, items, 5)
}

func TestFeedbackDeletes(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	a := h.generate(t, "A", 24, 100)
	b := h.generate(t, "B", 24, 100)

	first, err := h.feedbacks.Submit(ctx, a.ID, validInput(5))
	require.NoError(t, err)
	_, err = h.feedbacks.Submit(ctx, a.ID, validInput(4))
	require.NoError(t, err)
	_, err = h.feedbacks.Submit(ctx, b.ID, validInput(1))
	require.NoError(t, err)

	ok, err := h.feedbacks.Delete(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = h.feedbacks.Delete(ctx, first.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := h.feedbacks.DeleteByQRCode(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = h.feedbacks.DeleteAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	all, err := h.feedbacks.List(ctx, FeedbackFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	open := h.generate(t, "Open", 24, 100)
	closed := h.generate(t, "Closed", 24, 100)
	stale := h.generate(t, "Stale", 24, 100)

	for _, rating := range []int{5, 3, 1} {
		_, err := h.feedbacks.Submit(ctx, open.ID, validInput(rating))
		require.NoError(t, err)
	}
	inactive := false
	_, err := h.qrcodes.Update(ctx, closed.ID, domain.QRCodePatch{IsActive: &inactive})
	require.NoError(t, err)
	past := time.Now().UTC().Add(-time.Hour)
	_, err = h.qrcodes.Update(ctx, stale.ID, domain.QRCodePatch{ExpiresAt: &past})
	require.NoError(t, err)

	stats, err := h.feedbacks.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 1, stats.Positive)
	assert.Equal(t, 1, stats.Neutral)
	assert.Equal(t, 1, stats.Negative)
	assert.InDelta(t, 1.0/3.0, stats.PositiveRatio, 1e-9)
	assert.InDelta(t, 3.0, stats.AverageRating, 1e-9)
	assert.Equal(t, 1, stats.ActiveQRCodes)
	assert.Equal(t, 1, stats.ExpiredQRCodes, "a deactivated code is not counted as expired")
	assert.Equal(t, 2, stats.InactiveQRCodes)
}

func TestList_FiltersBySentiment(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	first := h.generate(t, "Table 1", 24, 100)
	second := h.generate(t, "Table 2", 24, 100)

	for _, rating := range []int{5, 4, 1} {
		_, err := h.feedbacks.Submit(ctx, first.ID, validInput(rating))
		require.NoError(t, err)
	}
	_, err := h.feedbacks.Submit(ctx, second.ID, validInput(5))
	require.NoError(t, err)

	positive, err := h.feedbacks.List(ctx, FeedbackFilter{Sentiment: domain.SentimentPositive})
	require.NoError(t, err)
	assert.Len(t, positive, 3)

	both, err := h.feedbacks.List(ctx, FeedbackFilter{QRCodeID: first.ID, Sentiment: domain.SentimentPositive})
	require.NoError(t, err)
	assert.Len(t, both, 2)

	negative, err := h.feedbacks.List(ctx, FeedbackFilter{Sentiment: domain.SentimentNegative})
	require.NoError(t, err)
	require.Len(t, negative, 1)
	assert.Equal(t, 1, negative[0].Rating)

	_, err = h.feedbacks.List(ctx, FeedbackFilter{Sentiment: "angry"})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestExportXLSX(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	qr := h.generate(t, "Table 5", 24, 100)
	other := h.generate(t, "Table 6", 24, 100)

	for i := 0; i < 2; i++ {
		_, err := h.feedbacks.Submit(ctx, qr.ID, validInput(4))
		require.NoError(t, err)
	}
	_, err := h.feedbacks.Submit(ctx, other.ID, validInput(2))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, h.feedbacks.ExportXLSX(ctx, FeedbackFilter{QRCodeID: qr.ID}, &buf))

	xlsx, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer xlsx.Close()

	rows, err := xlsx.GetRows("Feedback")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "ID", rows[0][0])
	for _, row := range rows[1:] {
		assert.Equal(t, qr.ID, row[1])
		assert.Equal(t, "Table 5", row[2])
		assert.Equal(t, "positive", row[7])
	}

	buf.Reset()
	require.NoError(t, h.feedbacks.ExportXLSX(ctx, FeedbackFilter{}, &buf))
	all, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer all.Close()
	rows, err = all.GetRows("Feedback")
	require.NoError(t, err)
	assert.Len(t, rows, 4)
}
