package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/school-ops-api/internal/models"
	appErrors "github.com/noah-isme/school-ops-api/pkg/errors"
)

type teacherRepository interface {
	List(ctx context.Context, tenantID string, filter models.TeacherFilter) ([]models.Teacher, int, error)
	FindByID(ctx context.Context, tenantID, id string) (*models.Teacher, error)
	ExistsByEmail(ctx context.Context, tenantID, email, excludeID string) (bool, error)
	Create(ctx context.Context, teacher *models.Teacher) error
	Update(ctx context.Context, teacher *models.Teacher) error
	Deactivate(ctx context.Context, tenantID, id string) error
}

// CreateTeacherRequest is the directory creation payload.
type CreateTeacherRequest struct {
	FullName   string `json:"full_name" validate:"required,max=200"`
	Email      string `json:"email" validate:"required,email"`
	Subject    string `json:"subject" validate:"omitempty,max=100"`
	GradeLevel string `json:"grade_level" validate:"omitempty,max=50"`
	Role       string `json:"role" validate:"required"`
}

// UpdateTeacherRequest carries partial directory updates.
type UpdateTeacherRequest struct {
	FullName   *string `json:"full_name" validate:"omitempty,max=200"`
	Email      *string `json:"email" validate:"omitempty,email"`
	Subject    *string `json:"subject" validate:"omitempty,max=100"`
	GradeLevel *string `json:"grade_level" validate:"omitempty,max=50"`
	Role       *string `json:"role" validate:"omitempty"`
	Active     *bool   `json:"active"`
}

// TeacherService manages the tenant staff directory.
type TeacherService struct {
	teachers  teacherRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewTeacherService constructs a TeacherService.
func NewTeacherService(teachers teacherRepository, validate *validator.Validate, logger *zap.Logger) *TeacherService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TeacherService{teachers: teachers, validator: validate, logger: logger}
}

// List returns directory rows with pagination.
func (s *TeacherService) List(ctx context.Context, tenantID string, filter models.TeacherFilter) ([]models.Teacher, *models.Pagination, error) {
	teachers, total, err := s.teachers.List(ctx, tenantID, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list teachers")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return teachers, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get loads one directory record.
func (s *TeacherService) Get(ctx context.Context, tenantID, id string) (*models.Teacher, error) {
	teacher, err := s.teachers.FindByID(ctx, tenantID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}
	return teacher, nil
}

// Create registers a new staff member.
func (s *TeacherService) Create(ctx context.Context, tenantID string, req CreateTeacherRequest) (*models.Teacher, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid teacher payload")
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	exists, err := s.teachers.ExistsByEmail(ctx, tenantID, email, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email already registered")
	}

	teacher := &models.Teacher{
		TenantID:   tenantID,
		FullName:   strings.TrimSpace(req.FullName),
		Email:      email,
		Subject:    strings.TrimSpace(req.Subject),
		GradeLevel: strings.TrimSpace(req.GradeLevel),
		Role:       models.Role(req.Role),
		Active:     true,
	}
	if err := s.teachers.Create(ctx, teacher); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create teacher")
	}
	return teacher, nil
}

// Update applies partial changes to a directory record.
func (s *TeacherService) Update(ctx context.Context, tenantID, id string, req UpdateTeacherRequest) (*models.Teacher, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid teacher payload")
	}

	teacher, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	if req.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*req.Email))
		exists, err := s.teachers.ExistsByEmail(ctx, tenantID, email, id)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email")
		}
		if exists {
			return nil, appErrors.Clone(appErrors.ErrConflict, "email already registered")
		}
		teacher.Email = email
	}
	if req.FullName != nil {
		teacher.FullName = strings.TrimSpace(*req.FullName)
		teacher.Slug = models.Slugify(teacher.FullName)
	}
	if req.Subject != nil {
		teacher.Subject = strings.TrimSpace(*req.Subject)
	}
	if req.GradeLevel != nil {
		teacher.GradeLevel = strings.TrimSpace(*req.GradeLevel)
	}
	if req.Role != nil {
		teacher.Role = models.Role(*req.Role)
	}
	if req.Active != nil {
		teacher.Active = *req.Active
	}

	if err := s.teachers.Update(ctx, teacher); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update teacher")
	}
	return teacher, nil
}

// Deactivate soft-deletes a directory record.
func (s *TeacherService) Deactivate(ctx context.Context, tenantID, id string) error {
	if err := s.teachers.Deactivate(ctx, tenantID, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate teacher")
	}
	return nil
}
