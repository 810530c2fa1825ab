package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/school-ops-api/internal/models"
)

// StudentRepository manages persistence for students.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

const studentColumns = "id, tenant_id, esis_code, full_name, homeroom, created_at, updated_at"

// ListByHomeroomPrefix returns students whose homeroom starts with prefix,
// e.g. "G10" for every section of grade 10.
func (r *StudentRepository) ListByHomeroomPrefix(ctx context.Context, tenantID, prefix string) ([]models.Student, error) {
	query := fmt.Sprintf("SELECT %s FROM students WHERE tenant_id = $1 AND homeroom LIKE $2 ORDER BY homeroom, full_name", studentColumns)
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, tenantID, prefix+"%"); err != nil {
		return nil, fmt.Errorf("list students by homeroom: %w", err)
	}
	return students, nil
}

// FindByESIS fetches a student by ESIS code within a tenant.
func (r *StudentRepository) FindByESIS(ctx context.Context, tenantID, esis string) (*models.Student, error) {
	query := fmt.Sprintf("SELECT %s FROM students WHERE tenant_id = $1 AND esis_code = $2", studentColumns)
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, tenantID, esis); err != nil {
		return nil, err
	}
	return &student, nil
}

// Upsert inserts a student or refreshes name and homeroom keyed by ESIS code.
func (r *StudentRepository) Upsert(ctx context.Context, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if student.CreatedAt.IsZero() {
		student.CreatedAt = now
	}
	student.UpdatedAt = now

	const query = `INSERT INTO students (id, tenant_id, esis_code, full_name, homeroom, created_at, updated_at)
		VALUES (:id, :tenant_id, :esis_code, :full_name, :homeroom, :created_at, :updated_at)
		ON CONFLICT (tenant_id, esis_code) DO UPDATE SET full_name = EXCLUDED.full_name, homeroom = EXCLUDED.homeroom, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("upsert student: %w", err)
	}
	return nil
}
