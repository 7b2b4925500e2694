package feedback

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/sepsiswatch/platform/pkg/common/logger"
	"github.com/sepsiswatch/platform/pkg/common/models"
	"github.com/sepsiswatch/platform/pkg/prediction"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func TestMain(m *testing.M) {
	logger.Init("test")
	os.Exit(m.Run())
}

func newTestService(t *testing.T) (*Service, *prediction.Repository) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrapping test database: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	predRepo := prediction.NewRepository(db)
	repo := NewRepository(db)
	if err := predRepo.AutoMigrate(); err != nil {
		t.Fatalf("migrating predictions: %v", err)
	}
	if err := repo.AutoMigrate(); err != nil {
		t.Fatalf("migrating feedback: %v", err)
	}
	return NewService(repo, predRepo), predRepo
}

func storePrediction(t *testing.T, repo *prediction.Repository, id string) {
	t.Helper()
	m := &prediction.PredictionModel{
		ID:           id,
		PatientID:    "p1",
		Probability:  0.82,
		IsSepsisRisk: true,
		ModelVersion: "v1",
		Timestamp:    time.Now().UTC(),
	}
	if err := repo.Create(context.Background(), nil, m); err != nil {
		t.Fatalf("inserting prediction: %v", err)
	}
}

func TestSubmitFeedback(t *testing.T) {
	svc, predRepo := newTestService(t)
	ctx := context.Background()
	storePrediction(t, predRepo, "pred-1")

	entry, err := svc.Submit(ctx, "pred-1", "dr-chen", models.FeedbackCorrect, "matched the culture results")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry.ID == "" || entry.CreatedAt.IsZero() {
		t.Fatalf("expected assigned ID and timestamp: %+v", entry)
	}
	if entry.FeedbackType != models.FeedbackCorrect {
		t.Fatalf("unexpected type %s", entry.FeedbackType)
	}
}

func TestSubmitNormalizesType(t *testing.T) {
	svc, predRepo := newTestService(t)
	storePrediction(t, predRepo, "pred-1")

	entry, err := svc.Submit(context.Background(), "pred-1", "dr-chen", "  FALSE_POSITIVE ", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry.FeedbackType != models.FeedbackFalsePositive {
		t.Fatalf("expected normalized type, got %q", entry.FeedbackType)
	}
}

func TestSubmitValidation(t *testing.T) {
	svc, predRepo := newTestService(t)
	ctx := context.Background()
	storePrediction(t, predRepo, "pred-1")

	if _, err := svc.Submit(ctx, "pred-1", "dr-chen", "mostly_right", ""); !IsValidationError(err) {
		t.Fatalf("unknown type must be a validation error, got %v", err)
	}
	if _, err := svc.Submit(ctx, "pred-1", "", models.FeedbackCorrect, ""); !IsValidationError(err) {
		t.Fatalf("missing user must be a validation error, got %v", err)
	}
	if _, err := svc.Submit(ctx, "no-such-pred", "dr-chen", models.FeedbackCorrect, ""); !errors.Is(err, ErrPredictionNotFound) {
		t.Fatalf("unknown prediction must yield ErrPredictionNotFound, got %v", err)
	}
}

func TestLedgerKeepsEveryEntry(t *testing.T) {
	svc, predRepo := newTestService(t)
	ctx := context.Background()
	storePrediction(t, predRepo, "pred-1")

	// The same clinician reconsidering and a colleague disagreeing both
	// append; nothing is overwritten.
	submissions := []struct {
		user, ftype string
	}{
		{"dr-chen", models.FeedbackFalsePositive},
		{"dr-okafor", models.FeedbackCorrect},
		{"dr-chen", models.FeedbackCorrect},
	}
	for _, s := range submissions {
		if _, err := svc.Submit(ctx, "pred-1", s.user, s.ftype, ""); err != nil {
			t.Fatalf("submitting as %s: %v", s.user, err)
		}
	}

	entries, err := svc.ListForPrediction(ctx, "pred-1")
	if err != nil {
		t.Fatalf("listing feedback: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 ledger entries, got %d", len(entries))
	}
	for i, want := range submissions {
		if entries[i].UserID != want.user || entries[i].FeedbackType != want.ftype {
			t.Fatalf("entry %d out of order: %+v", i, entries[i])
		}
	}
}

func TestListForPredictionUnknown(t *testing.T) {
	svc, _ := newTestService(t)
	if _, err := svc.ListForPrediction(context.Background(), "ghost"); !errors.Is(err, ErrPredictionNotFound) {
		t.Fatalf("expected ErrPredictionNotFound, got %v", err)
	}
}

func TestListForUser(t *testing.T) {
	svc, predRepo := newTestService(t)
	ctx := context.Background()
	storePrediction(t, predRepo, "pred-1")
	storePrediction(t, predRepo, "pred-2")

	if _, err := svc.Submit(ctx, "pred-1", "dr-chen", models.FeedbackUnsure, ""); err != nil {
		t.Fatalf("submitting: %v", err)
	}
	if _, err := svc.Submit(ctx, "pred-2", "dr-chen", models.FeedbackCorrect, ""); err != nil {
		t.Fatalf("submitting: %v", err)
	}
	if _, err := svc.Submit(ctx, "pred-2", "dr-okafor", models.FeedbackCorrect, ""); err != nil {
		t.Fatalf("submitting: %v", err)
	}

	mine, err := svc.ListForUser(ctx, "dr-chen", 0, 10)
	if err != nil {
		t.Fatalf("listing by user: %v", err)
	}
	if len(mine) != 2 {
		t.Fatalf("expected 2 entries for dr-chen, got %d", len(mine))
	}
}
