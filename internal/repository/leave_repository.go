package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/school-ops-api/internal/models"
	appErrors "github.com/noah-isme/school-ops-api/pkg/errors"
)

// LeaveRepository manages persistence for leave requests and their
// conversation threads.
type LeaveRepository struct {
	db *sqlx.DB
}

// NewLeaveRepository constructs a LeaveRepository.
func NewLeaveRepository(db *sqlx.DB) *LeaveRepository {
	return &LeaveRepository{db: db}
}

const leaveColumns = `id, tenant_id, teacher_id, leave_type, reason, leave_date, end_date, start_time, end_time,
	status, admin_comment, reviewed_by, reviewed_at,
	attachment_required, attachment_status, attachment_path, attachment_original_name,
	attachment_uploaded_at, attachment_due_at, attachment_reminder_count, attachment_last_reminder_at,
	attachment_export_path, attachment_exported_at, created_at, updated_at`

// Create inserts a new leave request.
func (r *LeaveRepository) Create(ctx context.Context, leave *models.LeaveRequest) error {
	if leave.ID == "" {
		leave.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if leave.CreatedAt.IsZero() {
		leave.CreatedAt = now
	}
	leave.UpdatedAt = now

	const query = `INSERT INTO leave_requests (id, tenant_id, teacher_id, leave_type, reason, leave_date, end_date, start_time, end_time,
			status, admin_comment, reviewed_by, reviewed_at,
			attachment_required, attachment_status, attachment_path, attachment_original_name,
			attachment_uploaded_at, attachment_due_at, attachment_reminder_count, attachment_last_reminder_at,
			attachment_export_path, attachment_exported_at, created_at, updated_at)
		VALUES (:id, :tenant_id, :teacher_id, :leave_type, :reason, :leave_date, :end_date, :start_time, :end_time,
			:status, :admin_comment, :reviewed_by, :reviewed_at,
			:attachment_required, :attachment_status, :attachment_path, :attachment_original_name,
			:attachment_uploaded_at, :attachment_due_at, :attachment_reminder_count, :attachment_last_reminder_at,
			:attachment_export_path, :attachment_exported_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, leave); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("create leave request: %w", appErrors.ErrUniqueViolation)
		}
		return fmt.Errorf("create leave request: %w", err)
	}
	return nil
}

// Update persists every mutable field of an existing leave request.
func (r *LeaveRepository) Update(ctx context.Context, leave *models.LeaveRequest) error {
	leave.UpdatedAt = time.Now().UTC()
	const query = `UPDATE leave_requests SET
			leave_type = :leave_type, reason = :reason, leave_date = :leave_date, end_date = :end_date,
			start_time = :start_time, end_time = :end_time,
			status = :status, admin_comment = :admin_comment, reviewed_by = :reviewed_by, reviewed_at = :reviewed_at,
			attachment_required = :attachment_required, attachment_status = :attachment_status,
			attachment_path = :attachment_path, attachment_original_name = :attachment_original_name,
			attachment_uploaded_at = :attachment_uploaded_at, attachment_due_at = :attachment_due_at,
			attachment_reminder_count = :attachment_reminder_count, attachment_last_reminder_at = :attachment_last_reminder_at,
			attachment_export_path = :attachment_export_path, attachment_exported_at = :attachment_exported_at,
			updated_at = :updated_at
		WHERE tenant_id = :tenant_id AND id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, leave); err != nil {
		return fmt.Errorf("update leave request: %w", err)
	}
	return nil
}

// FindByID fetches a leave request by ID within a tenant.
func (r *LeaveRepository) FindByID(ctx context.Context, tenantID, id string) (*models.LeaveRequest, error) {
	query := fmt.Sprintf("SELECT %s FROM leave_requests WHERE tenant_id = $1 AND id = $2", leaveColumns)
	var leave models.LeaveRequest
	if err := r.db.GetContext(ctx, &leave, query, tenantID, id); err != nil {
		return nil, err
	}
	return &leave, nil
}

// HasPendingOnDate reports whether the teacher already has a pending
// request for the given leave date. Duplicate pending submissions are
// refused on this check.
func (r *LeaveRepository) HasPendingOnDate(ctx context.Context, tenantID, teacherID string, leaveDate time.Time) (bool, error) {
	const query = `SELECT 1 FROM leave_requests WHERE tenant_id = $1 AND teacher_id = $2 AND leave_date = $3 AND status = 'pending' LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, tenantID, teacherID, leaveDate); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check pending leave: %w", err)
	}
	return true, nil
}

// List returns leave requests matching filters along with total count.
func (r *LeaveRepository) List(ctx context.Context, tenantID string, filter models.LeaveFilter) ([]models.LeaveRequest, int, error) {
	base := "FROM leave_requests WHERE tenant_id = $1"
	args := []interface{}{tenantID}
	var conditions []string

	if filter.TeacherID != "" {
		conditions = append(conditions, fmt.Sprintf("teacher_id = $%d", len(args)+1))
		args = append(args, filter.TeacherID)
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.LeaveType != nil {
		conditions = append(conditions, fmt.Sprintf("leave_type = $%d", len(args)+1))
		args = append(args, *filter.LeaveType)
	}
	if filter.DateFrom != nil {
		conditions = append(conditions, fmt.Sprintf("leave_date >= $%d", len(args)+1))
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		conditions = append(conditions, fmt.Sprintf("leave_date <= $%d", len(args)+1))
		args = append(args, *filter.DateTo)
	}
	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY created_at DESC LIMIT %d OFFSET %d", leaveColumns, base, size, offset)
	var leaves []models.LeaveRequest
	if err := r.db.SelectContext(ctx, &leaves, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list leave requests: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count leave requests: %w", err)
	}
	return leaves, total, nil
}

// ListPendingSickMissing returns the rows the reminder worker sweeps:
// pending sick leaves whose medical document is still missing.
func (r *LeaveRepository) ListPendingSickMissing(ctx context.Context) ([]models.LeaveRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM leave_requests
		WHERE leave_type = 'sickleave' AND attachment_required = TRUE AND status = 'pending' AND attachment_status = 'missing'
		ORDER BY created_at ASC`, leaveColumns)
	var leaves []models.LeaveRequest
	if err := r.db.SelectContext(ctx, &leaves, query); err != nil {
		return nil, fmt.Errorf("list reminder candidates: %w", err)
	}
	return leaves, nil
}

// Delete removes a leave request; messages cascade at the database level.
func (r *LeaveRepository) Delete(ctx context.Context, tenantID, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM leave_requests WHERE tenant_id = $1 AND id = $2", tenantID, id); err != nil {
		return fmt.Errorf("delete leave request: %w", err)
	}
	return nil
}

// AppendMessage stores one conversation entry for a leave request.
func (r *LeaveRepository) AppendMessage(ctx context.Context, msg *models.LeaveMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO leave_messages (id, tenant_id, excuse_id, sender, body, created_at)
		VALUES (:id, :tenant_id, :excuse_id, :sender, :body, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, msg); err != nil {
		return fmt.Errorf("append leave message: %w", err)
	}
	return nil
}

// ListMessages returns a leave request's thread oldest first.
func (r *LeaveRepository) ListMessages(ctx context.Context, tenantID, excuseID string) ([]models.LeaveMessage, error) {
	const query = `SELECT id, tenant_id, excuse_id, sender, body, created_at FROM leave_messages
		WHERE tenant_id = $1 AND excuse_id = $2 ORDER BY created_at ASC`
	var messages []models.LeaveMessage
	if err := r.db.SelectContext(ctx, &messages, query, tenantID, excuseID); err != nil {
		return nil, fmt.Errorf("list leave messages: %w", err)
	}
	return messages, nil
}

// RecordThresholdAttempt writes the audit row for a refused blackout
// submission.
func (r *LeaveRepository) RecordThresholdAttempt(ctx context.Context, attempt *models.AbsenceThresholdAttempt) error {
	if attempt.ID == "" {
		attempt.ID = uuid.NewString()
	}
	if attempt.AttemptedAt.IsZero() {
		attempt.AttemptedAt = time.Now().UTC()
	}
	const query = `INSERT INTO absence_threshold_attempts (id, tenant_id, teacher_id, leave_date, attempted_at)
		VALUES (:id, :tenant_id, :teacher_id, :leave_date, :attempted_at)`
	if _, err := r.db.NamedExecContext(ctx, query, attempt); err != nil {
		return fmt.Errorf("record threshold attempt: %w", err)
	}
	return nil
}
