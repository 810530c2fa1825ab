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

// DutyRepository manages morning and dismissal duty rosters.
type DutyRepository struct {
	db *sqlx.DB
}

// NewDutyRepository constructs a DutyRepository.
func NewDutyRepository(db *sqlx.DB) *DutyRepository {
	return &DutyRepository{db: db}
}

const dutyColumns = `d.id, d.tenant_id, d.assignment_date, d.duty_type, d.location, d.teacher_id,
	COALESCE(t.full_name, '') AS teacher_name,
	d.ack_status, d.ack_note, d.ack_updated_at, d.created_at`

// Create inserts one roster row with a pending acknowledgement.
func (r *DutyRepository) Create(ctx context.Context, a *models.DutyAssignment) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.AckStatus == "" {
		a.AckStatus = models.AckPending
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO duty_assignments (id, tenant_id, assignment_date, duty_type, location, teacher_id, ack_status, ack_note, ack_updated_at, created_at)
		VALUES (:id, :tenant_id, :assignment_date, :duty_type, :location, :teacher_id, :ack_status, :ack_note, :ack_updated_at, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, a); err != nil {
		return fmt.Errorf("create duty assignment: %w", err)
	}
	return nil
}

// Exists reports whether the teacher already holds this duty slot.
func (r *DutyRepository) Exists(ctx context.Context, tenantID string, date time.Time, dutyType models.DutyType, teacherID string) (bool, error) {
	const query = `SELECT 1 FROM duty_assignments WHERE tenant_id = $1 AND assignment_date = $2 AND duty_type = $3 AND teacher_id = $4 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, tenantID, date, dutyType, teacherID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check duty assignment: %w", err)
	}
	return true, nil
}

// ListByDate returns a day's daily-duty roster joined with teacher names.
func (r *DutyRepository) ListByDate(ctx context.Context, tenantID string, date time.Time) ([]models.DutyAssignment, error) {
	query := fmt.Sprintf(`SELECT %s FROM duty_assignments d
		LEFT JOIN teachers t ON t.id = d.teacher_id
		WHERE d.tenant_id = $1 AND d.assignment_date = $2
		ORDER BY d.duty_type, d.location`, dutyColumns)
	var list []models.DutyAssignment
	if err := r.db.SelectContext(ctx, &list, query, tenantID, date); err != nil {
		return nil, fmt.Errorf("list duty assignments: %w", err)
	}
	return list, nil
}

// FindByID fetches one roster row.
func (r *DutyRepository) FindByID(ctx context.Context, tenantID, id string) (*models.DutyAssignment, error) {
	query := fmt.Sprintf(`SELECT %s FROM duty_assignments d
		LEFT JOIN teachers t ON t.id = d.teacher_id
		WHERE d.tenant_id = $1 AND d.id = $2`, dutyColumns)
	var a models.DutyAssignment
	if err := r.db.GetContext(ctx, &a, query, tenantID, id); err != nil {
		return nil, err
	}
	return &a, nil
}

// SetAck updates the acknowledgement on one roster row.
func (r *DutyRepository) SetAck(ctx context.Context, tenantID, id string, status models.AckStatus, note string) error {
	const query = `UPDATE duty_assignments SET ack_status = $3, ack_note = $4, ack_updated_at = $5 WHERE tenant_id = $1 AND id = $2`
	res, err := r.db.ExecContext(ctx, query, tenantID, id, status, note, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set duty acknowledgement: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes one roster row.
func (r *DutyRepository) Delete(ctx context.Context, tenantID, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM duty_assignments WHERE tenant_id = $1 AND id = $2", tenantID, id); err != nil {
		return fmt.Errorf("delete duty assignment: %w", err)
	}
	return nil
}
