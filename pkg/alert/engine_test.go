package alert

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/sepsiswatch/platform/pkg/common/logger"
	"github.com/sepsiswatch/platform/pkg/common/models"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func TestMain(m *testing.M) {
	logger.Init("test")
	os.Exit(m.Run())
}

func openTestDB(t *testing.T) *gorm.DB {
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
	return db
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	repo := NewRepository(openTestDB(t))
	if err := repo.AutoMigrate(); err != nil {
		t.Fatalf("migrating alerts: %v", err)
	}
	return NewEngine(repo, DefaultSeverityPolicy())
}

func riskPrediction(patientID string, probability float64) models.Prediction {
	return models.Prediction{
		ID:           "pred-" + patientID,
		PatientID:    patientID,
		Probability:  probability,
		IsSepsisRisk: probability >= 0.7,
		ModelVersion: "baseline-0.1",
		Timestamp:    time.Now().UTC(),
	}
}

func TestEvaluateIgnoresNonRiskPredictions(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	a, created, err := engine.Evaluate(ctx, nil, riskPrediction("p1", 0.3))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a != nil || created {
		t.Fatalf("expected no alert for non-risk prediction, got %+v created=%v", a, created)
	}

	pending, err := engine.ListPending(ctx, 0, 10)
	if err != nil {
		t.Fatalf("listing pending: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected empty pending queue, got %d alerts", len(pending))
	}
}

func TestEvaluateOpensPendingAlert(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	a, created, err := engine.Evaluate(ctx, nil, riskPrediction("p1", 0.85))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !created || a == nil {
		t.Fatal("expected a new alert")
	}
	if a.Status != models.AlertPending {
		t.Fatalf("expected status pending, got %s", a.Status)
	}
	if a.Severity != 5 {
		t.Fatalf("expected severity 5 for probability 0.85, got %d", a.Severity)
	}
	if a.EvidenceCount != 1 {
		t.Fatalf("expected evidence count 1, got %d", a.EvidenceCount)
	}
	if a.PatientID != "p1" || a.PredictionID != "pred-p1" {
		t.Fatalf("alert references wrong prediction: %+v", a)
	}
	if a.AlertType != models.AlertTypeSepsisRisk {
		t.Fatalf("unexpected alert type %s", a.AlertType)
	}
}

func TestEvaluateMergesIntoOpenAlert(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	first, created, err := engine.Evaluate(ctx, nil, riskPrediction("p1", 0.85))
	if err != nil || !created {
		t.Fatalf("expected first alert created, err=%v", err)
	}

	second, created, err := engine.Evaluate(ctx, nil, riskPrediction("p1", 0.9))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created {
		t.Fatal("second high-risk prediction must merge, not open a duplicate")
	}
	if second.ID != first.ID {
		t.Fatalf("merge returned a different alert: %s vs %s", second.ID, first.ID)
	}
	if second.EvidenceCount != 2 {
		t.Fatalf("expected evidence count 2 after merge, got %d", second.EvidenceCount)
	}
	if second.LastEvidenceAt == nil {
		t.Fatal("expected last_evidence_at to be stamped on merge")
	}

	all, err := engine.ListForPatient(ctx, "p1", 0, 10)
	if err != nil {
		t.Fatalf("listing alerts: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected exactly one alert for the patient, got %d", len(all))
	}
}

func TestMergeRaisesSeverityButNeverLowersIt(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	a, _, err := engine.Evaluate(ctx, nil, riskPrediction("p1", 0.72))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Severity != 4 {
		t.Fatalf("expected severity 4 for probability 0.72, got %d", a.Severity)
	}

	merged, _, err := engine.Evaluate(ctx, nil, riskPrediction("p1", 0.95))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if merged.Severity != 5 {
		t.Fatalf("expected severity raised to 5, got %d", merged.Severity)
	}

	merged, _, err = engine.Evaluate(ctx, nil, riskPrediction("p1", 0.71))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if merged.Severity != 5 {
		t.Fatalf("severity must not drop on weaker evidence, got %d", merged.Severity)
	}
}

func TestConcurrentEvaluateOpensExactlyOneAlert(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	const attempts = 10
	var wg sync.WaitGroup
	var createdCount sync.Map
	var creations int64
	var mu sync.Mutex

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a, created, err := engine.Evaluate(ctx, nil, riskPrediction("p1", 0.9))
			if err != nil {
				t.Errorf("evaluate failed: %v", err)
				return
			}
			createdCount.Store(a.ID, struct{}{})
			if created {
				mu.Lock()
				creations++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if creations != 1 {
		t.Fatalf("expected exactly one creation, got %d", creations)
	}
	ids := 0
	createdCount.Range(func(_, _ interface{}) bool { ids++; return true })
	if ids != 1 {
		t.Fatalf("expected all evaluations to land on one alert, saw %d distinct IDs", ids)
	}

	open, err := engine.ListOpenForPatient(ctx, "p1")
	if err != nil {
		t.Fatalf("listing open alerts: %v", err)
	}
	if len(open) != 1 {
		t.Fatalf("expected one open alert, got %d", len(open))
	}
	if open[0].EvidenceCount != attempts {
		t.Fatalf("expected evidence count %d, got %d", attempts, open[0].EvidenceCount)
	}
}

func TestUpdateStatusFollowsTransitionTable(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	a, _, err := engine.Evaluate(ctx, nil, riskPrediction("p1", 0.9))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	acked, err := engine.UpdateStatus(ctx, a.ID, models.AlertAcknowledged, "dr-chen")
	if err != nil {
		t.Fatalf("pending -> acknowledged should succeed: %v", err)
	}
	if acked.Status != models.AlertAcknowledged {
		t.Fatalf("expected acknowledged, got %s", acked.Status)
	}
	if acked.AcknowledgedBy != "dr-chen" {
		t.Fatalf("expected acting user recorded, got %q", acked.AcknowledgedBy)
	}
	if acked.AcknowledgedAt == nil {
		t.Fatal("expected acknowledged_at to be stamped")
	}

	if _, err := engine.UpdateStatus(ctx, a.ID, models.AlertDismissed, "dr-chen"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("acknowledged -> dismissed must be rejected, got %v", err)
	}

	done, err := engine.UpdateStatus(ctx, a.ID, models.AlertActionTaken, "dr-chen")
	if err != nil {
		t.Fatalf("acknowledged -> action_taken should succeed: %v", err)
	}
	if done.Status != models.AlertActionTaken {
		t.Fatalf("expected action_taken, got %s", done.Status)
	}

	for _, target := range []string{models.AlertPending, models.AlertAcknowledged, models.AlertDismissed} {
		if _, err := engine.UpdateStatus(ctx, a.ID, target, "dr-chen"); !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("action_taken is terminal, transition to %s got %v", target, err)
		}
	}
}

func TestDismissedAlertIsTerminal(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	a, _, err := engine.Evaluate(ctx, nil, riskPrediction("p1", 0.9))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := engine.UpdateStatus(ctx, a.ID, models.AlertDismissed, "dr-chen"); err != nil {
		t.Fatalf("pending -> dismissed should succeed: %v", err)
	}
	for _, target := range []string{models.AlertPending, models.AlertAcknowledged, models.AlertActionTaken} {
		if _, err := engine.UpdateStatus(ctx, a.ID, target, "dr-chen"); !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("dismissed is terminal, transition to %s got %v", target, err)
		}
	}
}

func TestUpdateStatusValidation(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	a, _, err := engine.Evaluate(ctx, nil, riskPrediction("p1", 0.9))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := engine.UpdateStatus(ctx, a.ID, "escalated", "dr-chen"); !IsValidationError(err) {
		t.Fatalf("unknown status must be a validation error, got %v", err)
	}
	if _, err := engine.UpdateStatus(ctx, a.ID, models.AlertAcknowledged, ""); !IsValidationError(err) {
		t.Fatalf("missing actor must be a validation error, got %v", err)
	}
	if _, err := engine.UpdateStatus(ctx, "no-such-alert", models.AlertAcknowledged, "dr-chen"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown alert must yield ErrNotFound, got %v", err)
	}
}

func TestConcurrentTransitionHasOneWinner(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	a, _, err := engine.Evaluate(ctx, nil, riskPrediction("p1", 0.9))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	const attempts = 5
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.UpdateStatus(ctx, a.ID, models.AlertAcknowledged, "dr-chen")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	wins, conflicts := 0, 0
	for err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrConflict) || errors.Is(err, ErrInvalidTransition):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one winning transition, got %d", wins)
	}
	if conflicts != attempts-1 {
		t.Fatalf("expected %d losers, got %d", attempts-1, conflicts)
	}
}

func TestNewEpisodeAfterResolution(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	first, _, err := engine.Evaluate(ctx, nil, riskPrediction("p1", 0.9))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := engine.UpdateStatus(ctx, first.ID, models.AlertDismissed, "dr-chen"); err != nil {
		t.Fatalf("dismissing alert: %v", err)
	}

	second, created, err := engine.Evaluate(ctx, nil, riskPrediction("p1", 0.9))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !created {
		t.Fatal("a resolved episode must not absorb new evidence; expected a fresh alert")
	}
	if second.ID == first.ID {
		t.Fatal("expected a new alert ID for the new episode")
	}

	all, err := engine.ListForPatient(ctx, "p1", 0, 10)
	if err != nil {
		t.Fatalf("listing alerts: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected two alerts across episodes, got %d", len(all))
	}
}
