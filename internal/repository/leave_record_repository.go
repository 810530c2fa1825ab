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

// LeaveRecordRepository manages the schedule service's local copies of
// leaves received over the webhook.
type LeaveRecordRepository struct {
	db *sqlx.DB
}

// NewLeaveRecordRepository constructs a LeaveRecordRepository.
func NewLeaveRecordRepository(db *sqlx.DB) *LeaveRecordRepository {
	return &LeaveRecordRepository{db: db}
}

const leaveRecordColumns = `id, tenant_id, request_id, teacher_name, teacher_email, leave_type, reason, status,
	leave_start, leave_end, forward_status, forward_detail, forwarded_at, received_at, updated_at`

// Upsert inserts or refreshes a record keyed by request_id. The forward
// status of an existing row survives the refresh so a leave is not
// re-forwarded downstream on repeated webhook deliveries.
func (r *LeaveRecordRepository) Upsert(ctx context.Context, rec *models.LeaveRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if rec.ReceivedAt.IsZero() {
		rec.ReceivedAt = now
	}
	rec.UpdatedAt = now
	if rec.ForwardStatus == "" {
		rec.ForwardStatus = models.ForwardPending
	}

	const query = `INSERT INTO leave_records (id, tenant_id, request_id, teacher_name, teacher_email, leave_type, reason, status,
			leave_start, leave_end, forward_status, forward_detail, forwarded_at, received_at, updated_at)
		VALUES (:id, :tenant_id, :request_id, :teacher_name, :teacher_email, :leave_type, :reason, :status,
			:leave_start, :leave_end, :forward_status, :forward_detail, :forwarded_at, :received_at, :updated_at)
		ON CONFLICT (tenant_id, request_id) DO UPDATE SET
			teacher_name = EXCLUDED.teacher_name, teacher_email = EXCLUDED.teacher_email,
			leave_type = EXCLUDED.leave_type, reason = EXCLUDED.reason, status = EXCLUDED.status,
			leave_start = EXCLUDED.leave_start, leave_end = EXCLUDED.leave_end,
			updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, rec); err != nil {
		return fmt.Errorf("upsert leave record: %w", err)
	}
	return nil
}

// FindByRequestID fetches a record by its originating request id.
func (r *LeaveRecordRepository) FindByRequestID(ctx context.Context, tenantID, requestID string) (*models.LeaveRecord, error) {
	query := fmt.Sprintf("SELECT %s FROM leave_records WHERE tenant_id = $1 AND request_id = $2", leaveRecordColumns)
	var rec models.LeaveRecord
	if err := r.db.GetContext(ctx, &rec, query, tenantID, requestID); err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListApproved returns approved records, newest first.
func (r *LeaveRecordRepository) ListApproved(ctx context.Context, tenantID string) ([]models.LeaveRecord, error) {
	query := fmt.Sprintf("SELECT %s FROM leave_records WHERE tenant_id = $1 AND status = 'approved' ORDER BY leave_start DESC", leaveRecordColumns)
	var recs []models.LeaveRecord
	if err := r.db.SelectContext(ctx, &recs, query, tenantID); err != nil {
		return nil, fmt.Errorf("list approved leave records: %w", err)
	}
	return recs, nil
}

// AbsentEmailsOn returns the emails of teachers with an approved leave
// spanning the given date.
func (r *LeaveRecordRepository) AbsentEmailsOn(ctx context.Context, tenantID string, date time.Time) ([]string, error) {
	const query = `SELECT teacher_email FROM leave_records
		WHERE tenant_id = $1 AND status = 'approved' AND leave_start <= $2 AND leave_end >= $2 AND teacher_email <> ''`
	var emails []string
	if err := r.db.SelectContext(ctx, &emails, query, tenantID, date); err != nil {
		return nil, fmt.Errorf("list absent emails: %w", err)
	}
	return emails, nil
}

// SetForwardResult records the outcome of one downstream POST attempt.
func (r *LeaveRecordRepository) SetForwardResult(ctx context.Context, tenantID, requestID string, status models.ForwardStatus, detail string) error {
	const query = `UPDATE leave_records SET forward_status = $3, forward_detail = $4, forwarded_at = $5, updated_at = $5
		WHERE tenant_id = $1 AND request_id = $2`
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, query, tenantID, requestID, status, detail, now)
	if err != nil {
		return fmt.Errorf("set forward result: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
