package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/school-ops-api/internal/models"
	appErrors "github.com/noah-isme/school-ops-api/pkg/errors"
)

type studentRepository interface {
	ListByHomeroomPrefix(ctx context.Context, tenantID, prefix string) ([]models.Student, error)
	FindByESIS(ctx context.Context, tenantID, esis string) (*models.Student, error)
	Upsert(ctx context.Context, student *models.Student) error
}

// UpsertStudentRequest creates or refreshes one pupil record, keyed by
// ESIS code.
type UpsertStudentRequest struct {
	ESISCode string `json:"esis_code" validate:"required,max=32"`
	FullName string `json:"full_name" validate:"required,max=200"`
	Homeroom string `json:"homeroom" validate:"required,max=16"`
}

// StudentService maintains the pupil roster behind pod-duty grade views.
type StudentService struct {
	students  studentRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewStudentService constructs a StudentService.
func NewStudentService(students studentRepository, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{students: students, validator: validate, logger: logger}
}

// ListByGrade returns every student whose homeroom belongs to a grade.
func (s *StudentService) ListByGrade(ctx context.Context, tenantID string, grade int) ([]models.Student, error) {
	students, err := s.students.ListByHomeroomPrefix(ctx, tenantID, fmt.Sprintf("G%d", grade))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	// Prefix matching alone lets "G1" swallow "G10"; re-check the parsed
	// grade.
	filtered := students[:0]
	for _, st := range students {
		if g, ok := models.HomeroomGrade(st.Homeroom); ok && g == grade {
			filtered = append(filtered, st)
		}
	}
	return filtered, nil
}

// GetByESIS looks a student up by ESIS code.
func (s *StudentService) GetByESIS(ctx context.Context, tenantID, esis string) (*models.Student, error) {
	student, err := s.students.FindByESIS(ctx, tenantID, strings.TrimSpace(esis))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

// Upsert creates or refreshes a student record keyed by ESIS code.
func (s *StudentService) Upsert(ctx context.Context, tenantID string, req UpsertStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	homeroom := strings.ToUpper(strings.TrimSpace(req.Homeroom))
	if _, ok := models.HomeroomGrade(homeroom); !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "homeroom must carry a grade, e.g. G10-B")
	}

	student := &models.Student{
		ID:       uuid.NewString(),
		TenantID: tenantID,
		ESISCode: strings.TrimSpace(req.ESISCode),
		FullName: strings.TrimSpace(req.FullName),
		Homeroom: homeroom,
	}
	if err := s.students.Upsert(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save student")
	}
	return student, nil
}
