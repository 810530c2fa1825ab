package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/school-ops-api/internal/models"
)

// ScheduleRepository manages the weekly period grid.
type ScheduleRepository struct {
	db *sqlx.DB
}

// NewScheduleRepository constructs a ScheduleRepository.
func NewScheduleRepository(db *sqlx.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

const scheduleColumns = "id, tenant_id, teacher_id, day_code, period, period_raw, details, grade_detected, subject, created_at"

// ListAll returns every schedule row for a tenant.
func (r *ScheduleRepository) ListAll(ctx context.Context, tenantID string) ([]models.ScheduleEntry, error) {
	query := fmt.Sprintf("SELECT %s FROM schedule_entries WHERE tenant_id = $1 ORDER BY teacher_id, day_code, period", scheduleColumns)
	var entries []models.ScheduleEntry
	if err := r.db.SelectContext(ctx, &entries, query, tenantID); err != nil {
		return nil, fmt.Errorf("list schedule entries: %w", err)
	}
	return entries, nil
}

// ListByTeacherDay returns one teacher's rows for a day code.
func (r *ScheduleRepository) ListByTeacherDay(ctx context.Context, tenantID, teacherID, dayCode string) ([]models.ScheduleEntry, error) {
	query := fmt.Sprintf("SELECT %s FROM schedule_entries WHERE tenant_id = $1 AND teacher_id = $2 AND day_code = $3 ORDER BY period", scheduleColumns)
	var entries []models.ScheduleEntry
	if err := r.db.SelectContext(ctx, &entries, query, tenantID, teacherID, dayCode); err != nil {
		return nil, fmt.Errorf("list teacher day schedule: %w", err)
	}
	return entries, nil
}

// ReplaceForTeacher swaps a teacher's entire grid inside one transaction.
func (r *ScheduleRepository) ReplaceForTeacher(ctx context.Context, tenantID, teacherID string, entries []models.ScheduleEntry) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schedule replace: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM schedule_entries WHERE tenant_id = $1 AND teacher_id = $2", tenantID, teacherID); err != nil {
		return fmt.Errorf("clear teacher schedule: %w", err)
	}

	const insert = `INSERT INTO schedule_entries (id, tenant_id, teacher_id, day_code, period, period_raw, details, grade_detected, subject, created_at)
		VALUES (:id, :tenant_id, :teacher_id, :day_code, :period, :period_raw, :details, :grade_detected, :subject, :created_at)`
	now := time.Now().UTC()
	for i := range entries {
		entries[i].TenantID = tenantID
		entries[i].TeacherID = teacherID
		if entries[i].ID == "" {
			entries[i].ID = uuid.NewString()
		}
		if entries[i].CreatedAt.IsZero() {
			entries[i].CreatedAt = now
		}
		if _, err := tx.NamedExecContext(ctx, insert, entries[i]); err != nil {
			return fmt.Errorf("insert schedule entry: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schedule replace: %w", err)
	}
	return nil
}
