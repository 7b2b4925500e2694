package alert

import (
	"context"
	"errors"
	"time"

	"github.com/sepsiswatch/platform/pkg/common/models"
	"gorm.io/gorm"
)

var (
	ErrNotFound          = errors.New("alert not found")
	ErrInvalidTransition = errors.New("invalid alert status transition")
	ErrConflict          = errors.New("alert modified concurrently")
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	if err := r.db.AutoMigrate(&AlertModel{}); err != nil {
		return err
	}
	// Storage-level backstop for the one-open-alert-per-patient invariant.
	// Partial index syntax is shared by postgres and sqlite.
	return r.db.Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_alerts_one_open_per_patient
		 ON alerts (patient_id) WHERE status IN ('pending','acknowledged')`,
	).Error
}

// conn lets repository calls participate in a caller-owned transaction.
func (r *Repository) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *Repository) Create(ctx context.Context, tx *gorm.DB, m *AlertModel) error {
	m.CreatedAt = time.Now().UTC()
	err := r.conn(tx).WithContext(ctx).Create(m).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrConflict
	}
	return err
}

func (r *Repository) Get(ctx context.Context, id string) (models.Alert, error) {
	var m AlertModel
	result := r.db.WithContext(ctx).First(&m, "id = ?", id)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return models.Alert{}, ErrNotFound
	}
	if result.Error != nil {
		return models.Alert{}, result.Error
	}
	return m.toDomain(), nil
}

// FindOpenByPatient returns the patient's open alert, or ErrNotFound when no
// episode is active.
func (r *Repository) FindOpenByPatient(ctx context.Context, tx *gorm.DB, patientID string) (models.Alert, error) {
	var m AlertModel
	result := r.conn(tx).WithContext(ctx).
		Where("patient_id = ? AND status IN ?", patientID, []string{models.AlertPending, models.AlertAcknowledged}).
		First(&m)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return models.Alert{}, ErrNotFound
	}
	if result.Error != nil {
		return models.Alert{}, result.Error
	}
	return m.toDomain(), nil
}

// MergeEvidence folds a further high-risk prediction into an existing open
// alert: bumps the evidence counter, stamps the observation time, and raises
// the severity when the new prediction bands higher.
func (r *Repository) MergeEvidence(ctx context.Context, tx *gorm.DB, id string, severity int, at time.Time) error {
	return r.conn(tx).WithContext(ctx).Model(&AlertModel{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"evidence_count":   gorm.Expr("evidence_count + 1"),
			"last_evidence_at": at,
			"severity":         gorm.Expr("CASE WHEN severity < ? THEN ? ELSE severity END", severity, severity),
		}).Error
}

// Transition moves an alert from one status to another. The guard on the
// current status makes concurrent transitions race-safe: exactly one caller
// sees rows == 1, every loser sees rows == 0.
func (r *Repository) Transition(ctx context.Context, id, fromStatus, toStatus, actor string, at time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&AlertModel{}).
		Where("id = ? AND status = ?", id, fromStatus).
		Updates(map[string]interface{}{
			"status":          toStatus,
			"acknowledged_at": at,
			"acknowledged_by": actor,
		})
	return result.RowsAffected, result.Error
}

func (r *Repository) ListPending(ctx context.Context, skip, limit int) ([]models.Alert, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []AlertModel
	err := r.db.WithContext(ctx).
		Where("status = ?", models.AlertPending).
		Order("created_at DESC").
		Offset(skip).
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toDomainSlice(rows), nil
}

func (r *Repository) ListForPatient(ctx context.Context, patientID string, skip, limit int) ([]models.Alert, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []AlertModel
	err := r.db.WithContext(ctx).
		Where("patient_id = ?", patientID).
		Order("created_at DESC").
		Offset(skip).
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toDomainSlice(rows), nil
}

// ListOpenForPatient feeds the summary view: open alerts only, newest first.
func (r *Repository) ListOpenForPatient(ctx context.Context, patientID string) ([]models.Alert, error) {
	var rows []AlertModel
	err := r.db.WithContext(ctx).
		Where("patient_id = ? AND status IN ?", patientID, []string{models.AlertPending, models.AlertAcknowledged}).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toDomainSlice(rows), nil
}
