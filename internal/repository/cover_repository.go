package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/school-ops-api/internal/models"
)

// CoverRepository manages persisted cover assignments.
type CoverRepository struct {
	db *sqlx.DB
}

// NewCoverRepository constructs a CoverRepository.
func NewCoverRepository(db *sqlx.DB) *CoverRepository {
	return &CoverRepository{db: db}
}

const coverColumns = `id, tenant_id, date, slot_key, request_id,
	absent_teacher, absent_teacher_email, cover_teacher, cover_email, cover_slug, cover_subject,
	class_subject, class_grade, class_details, period_label, period_raw, class_time,
	cover_free_periods, cover_scheduled, cover_max_periods, day_label, status, cover_assigned_at`

// Insert persists one assignment. A duplicate (date, request_id, slot_key)
// is a no-op so re-running the engine never double-assigns; inserted
// reports whether a new row was written.
func (r *CoverRepository) Insert(ctx context.Context, a *models.CoverAssignment) (bool, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CoverAssignedAt.IsZero() {
		a.CoverAssignedAt = time.Now().UTC()
	}

	const query = `INSERT INTO cover_assignments (id, tenant_id, date, slot_key, request_id,
			absent_teacher, absent_teacher_email, cover_teacher, cover_email, cover_slug, cover_subject,
			class_subject, class_grade, class_details, period_label, period_raw, class_time,
			cover_free_periods, cover_scheduled, cover_max_periods, day_label, status, cover_assigned_at)
		VALUES (:id, :tenant_id, :date, :slot_key, :request_id,
			:absent_teacher, :absent_teacher_email, :cover_teacher, :cover_email, :cover_slug, :cover_subject,
			:class_subject, :class_grade, :class_details, :period_label, :period_raw, :class_time,
			:cover_free_periods, :cover_scheduled, :cover_max_periods, :day_label, :status, :cover_assigned_at)
		ON CONFLICT (tenant_id, date, request_id, slot_key) DO NOTHING`
	res, err := r.db.NamedExecContext(ctx, query, a)
	if err != nil {
		return false, fmt.Errorf("insert cover assignment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return true, nil
	}
	return n > 0, nil
}

// FindByID fetches one assignment.
func (r *CoverRepository) FindByID(ctx context.Context, tenantID, id string) (*models.CoverAssignment, error) {
	query := fmt.Sprintf("SELECT %s FROM cover_assignments WHERE tenant_id = $1 AND id = $2", coverColumns)
	var a models.CoverAssignment
	if err := r.db.GetContext(ctx, &a, query, tenantID, id); err != nil {
		return nil, err
	}
	return &a, nil
}

// ListByDate returns a day's assignments ordered for the cover sheet.
func (r *CoverRepository) ListByDate(ctx context.Context, tenantID string, date time.Time) ([]models.CoverAssignment, error) {
	query := fmt.Sprintf("SELECT %s FROM cover_assignments WHERE tenant_id = $1 AND date = $2 ORDER BY absent_teacher, period_label", coverColumns)
	var list []models.CoverAssignment
	if err := r.db.SelectContext(ctx, &list, query, tenantID, date); err != nil {
		return nil, fmt.Errorf("list covers by date: %w", err)
	}
	return list, nil
}

// ListByRequest returns every assignment created for one leave record.
func (r *CoverRepository) ListByRequest(ctx context.Context, tenantID, requestID string) ([]models.CoverAssignment, error) {
	query := fmt.Sprintf("SELECT %s FROM cover_assignments WHERE tenant_id = $1 AND request_id = $2 ORDER BY date, period_label", coverColumns)
	var list []models.CoverAssignment
	if err := r.db.SelectContext(ctx, &list, query, tenantID, requestID); err != nil {
		return nil, fmt.Errorf("list covers by request: %w", err)
	}
	return list, nil
}

// CountForCoverOn returns how many persisted covers a teacher already
// holds on a date, identified by slug.
func (r *CoverRepository) CountForCoverOn(ctx context.Context, tenantID, coverSlug string, date time.Time) (int, error) {
	const query = `SELECT COUNT(*) FROM cover_assignments WHERE tenant_id = $1 AND cover_slug = $2 AND date = $3`
	var count int
	if err := r.db.GetContext(ctx, &count, query, tenantID, coverSlug, date); err != nil {
		return 0, fmt.Errorf("count covers for teacher: %w", err)
	}
	return count, nil
}

// RequestIDsWithAssignments returns the request ids that already have at
// least one assignment; backfill skips those.
func (r *CoverRepository) RequestIDsWithAssignments(ctx context.Context, tenantID string) (map[string]bool, error) {
	const query = `SELECT DISTINCT request_id FROM cover_assignments WHERE tenant_id = $1`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, tenantID); err != nil {
		return nil, fmt.Errorf("list covered request ids: %w", err)
	}
	covered := make(map[string]bool, len(ids))
	for _, id := range ids {
		covered[id] = true
	}
	return covered, nil
}

// OrphanRequestIDs returns request ids of assignments whose leave record
// no longer exists, so the admin view can surface them.
func (r *CoverRepository) OrphanRequestIDs(ctx context.Context, tenantID string) ([]string, error) {
	const query = `SELECT DISTINCT ca.request_id FROM cover_assignments ca
		LEFT JOIN leave_records lr ON lr.tenant_id = ca.tenant_id AND lr.request_id = ca.request_id
		WHERE ca.tenant_id = $1 AND lr.id IS NULL`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, tenantID); err != nil {
		return nil, fmt.Errorf("list orphan covers: %w", err)
	}
	return ids, nil
}

// Update persists an edited assignment.
func (r *CoverRepository) Update(ctx context.Context, a *models.CoverAssignment) error {
	const query = `UPDATE cover_assignments SET
			cover_teacher = :cover_teacher, cover_email = :cover_email, cover_slug = :cover_slug, cover_subject = :cover_subject,
			class_subject = :class_subject, class_grade = :class_grade, class_details = :class_details,
			period_label = :period_label, period_raw = :period_raw, class_time = :class_time,
			slot_key = :slot_key, status = :status,
			cover_free_periods = :cover_free_periods, cover_scheduled = :cover_scheduled, cover_max_periods = :cover_max_periods
		WHERE tenant_id = :tenant_id AND id = :id`
	res, err := r.db.NamedExecContext(ctx, query, a)
	if err != nil {
		return fmt.Errorf("update cover assignment: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes one assignment.
func (r *CoverRepository) Delete(ctx context.Context, tenantID, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM cover_assignments WHERE tenant_id = $1 AND id = $2", tenantID, id); err != nil {
		return fmt.Errorf("delete cover assignment: %w", err)
	}
	return nil
}
