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

// PodDutyRepository manages grade-pod duty rosters.
type PodDutyRepository struct {
	db *sqlx.DB
}

// NewPodDutyRepository constructs a PodDutyRepository.
func NewPodDutyRepository(db *sqlx.DB) *PodDutyRepository {
	return &PodDutyRepository{db: db}
}

const podDutyColumns = `p.id, p.tenant_id, p.assignment_date, p.grade, p.pod, p.slot_type, p.period, p.teacher_id,
	COALESCE(t.full_name, '') AS teacher_name,
	p.break_location, p.ack_status, p.ack_note, p.ack_updated_at, p.created_at`

// ListByDateGrade returns one grade's roster for a date.
func (r *PodDutyRepository) ListByDateGrade(ctx context.Context, tenantID string, date time.Time, grade int) ([]models.PodDutyAssignment, error) {
	query := fmt.Sprintf(`SELECT %s FROM pod_duty_assignments p
		LEFT JOIN teachers t ON t.id = p.teacher_id
		WHERE p.tenant_id = $1 AND p.assignment_date = $2 AND p.grade = $3
		ORDER BY p.slot_type, p.period, p.pod`, podDutyColumns)
	var list []models.PodDutyAssignment
	if err := r.db.SelectContext(ctx, &list, query, tenantID, date, grade); err != nil {
		return nil, fmt.Errorf("list pod duty assignments: %w", err)
	}
	return list, nil
}

// ListByDate returns every grade's roster for a date.
func (r *PodDutyRepository) ListByDate(ctx context.Context, tenantID string, date time.Time) ([]models.PodDutyAssignment, error) {
	query := fmt.Sprintf(`SELECT %s FROM pod_duty_assignments p
		LEFT JOIN teachers t ON t.id = p.teacher_id
		WHERE p.tenant_id = $1 AND p.assignment_date = $2
		ORDER BY p.grade, p.slot_type, p.period, p.pod`, podDutyColumns)
	var list []models.PodDutyAssignment
	if err := r.db.SelectContext(ctx, &list, query, tenantID, date); err != nil {
		return nil, fmt.Errorf("list pod duty by date: %w", err)
	}
	return list, nil
}

// FindByID fetches one roster row.
func (r *PodDutyRepository) FindByID(ctx context.Context, tenantID, id string) (*models.PodDutyAssignment, error) {
	query := fmt.Sprintf(`SELECT %s FROM pod_duty_assignments p
		LEFT JOIN teachers t ON t.id = p.teacher_id
		WHERE p.tenant_id = $1 AND p.id = $2`, podDutyColumns)
	var a models.PodDutyAssignment
	if err := r.db.GetContext(ctx, &a, query, tenantID, id); err != nil {
		return nil, err
	}
	return &a, nil
}

// SlotTaken reports whether the teacher already holds a (date, slot_type,
// period) slot across any grade.
func (r *PodDutyRepository) SlotTaken(ctx context.Context, tenantID string, date time.Time, teacherID string, slotType models.SlotType, period *int) (bool, error) {
	query := `SELECT 1 FROM pod_duty_assignments WHERE tenant_id = $1 AND assignment_date = $2 AND teacher_id = $3 AND slot_type = $4`
	args := []interface{}{tenantID, date, teacherID, slotType}
	if period != nil {
		query += " AND period = $5"
		args = append(args, *period)
	} else {
		query += " AND period IS NULL"
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check pod duty slot: %w", err)
	}
	return true, nil
}

// Create inserts one roster row with a pending acknowledgement.
func (r *PodDutyRepository) Create(ctx context.Context, a *models.PodDutyAssignment) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.AckStatus == "" {
		a.AckStatus = models.AckPending
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO pod_duty_assignments (id, tenant_id, assignment_date, grade, pod, slot_type, period, teacher_id, break_location, ack_status, ack_note, ack_updated_at, created_at)
		VALUES (:id, :tenant_id, :assignment_date, :grade, :pod, :slot_type, :period, :teacher_id, :break_location, :ack_status, :ack_note, :ack_updated_at, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, a); err != nil {
		return fmt.Errorf("create pod duty assignment: %w", err)
	}
	return nil
}

// ReplaceForDateGrade applies a bulk save as a diff inside one
// transaction: rows absent from keep are deleted, rows in add inserted.
func (r *PodDutyRepository) ReplaceForDateGrade(ctx context.Context, tenantID string, date time.Time, grade int, deleteIDs []string, add []models.PodDutyAssignment) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin pod roster save: %w", err)
	}
	defer tx.Rollback()

	for _, id := range deleteIDs {
		if _, err := tx.ExecContext(ctx, "DELETE FROM pod_duty_assignments WHERE tenant_id = $1 AND id = $2", tenantID, id); err != nil {
			return fmt.Errorf("delete pod duty row: %w", err)
		}
	}

	const insert = `INSERT INTO pod_duty_assignments (id, tenant_id, assignment_date, grade, pod, slot_type, period, teacher_id, break_location, ack_status, ack_note, ack_updated_at, created_at)
		VALUES (:id, :tenant_id, :assignment_date, :grade, :pod, :slot_type, :period, :teacher_id, :break_location, :ack_status, :ack_note, :ack_updated_at, :created_at)`
	now := time.Now().UTC()
	for i := range add {
		add[i].TenantID = tenantID
		add[i].AssignmentDate = date
		add[i].Grade = grade
		if add[i].ID == "" {
			add[i].ID = uuid.NewString()
		}
		if add[i].AckStatus == "" {
			add[i].AckStatus = models.AckPending
		}
		if add[i].CreatedAt.IsZero() {
			add[i].CreatedAt = now
		}
		if _, err := tx.NamedExecContext(ctx, insert, add[i]); err != nil {
			return fmt.Errorf("insert pod duty row: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit pod roster save: %w", err)
	}
	return nil
}

// SetAck updates the acknowledgement on one roster row.
func (r *PodDutyRepository) SetAck(ctx context.Context, tenantID, id string, status models.AckStatus, note string) error {
	const query = `UPDATE pod_duty_assignments SET ack_status = $3, ack_note = $4, ack_updated_at = $5 WHERE tenant_id = $1 AND id = $2`
	res, err := r.db.ExecContext(ctx, query, tenantID, id, status, note, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set pod duty acknowledgement: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes one roster row.
func (r *PodDutyRepository) Delete(ctx context.Context, tenantID, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM pod_duty_assignments WHERE tenant_id = $1 AND id = $2", tenantID, id); err != nil {
		return fmt.Errorf("delete pod duty assignment: %w", err)
	}
	return nil
}
