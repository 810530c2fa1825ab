package service

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/school-ops-api/internal/models"
	appErrors "github.com/noah-isme/school-ops-api/pkg/errors"
)

type scheduleStore interface {
	ListByTeacherDay(ctx context.Context, tenantID, teacherID, dayCode string) ([]models.ScheduleEntry, error)
	ReplaceForTeacher(ctx context.Context, tenantID, teacherID string, entries []models.ScheduleEntry) error
}

type catalogRefresher interface {
	Refresh(ctx context.Context, tenantID string) error
}

// ImportScheduleEntry is one grid cell in a schedule import.
type ImportScheduleEntry struct {
	DayCode string `json:"day_code" validate:"required,oneof=Mo Tu We Th Fr"`
	Period  string `json:"period" validate:"required"`
	Details string `json:"details"`
	Subject string `json:"subject"`
}

// ImportScheduleRequest replaces one teacher's weekly grid.
type ImportScheduleRequest struct {
	Entries []ImportScheduleEntry `json:"entries" validate:"required,dive"`
}

// ScheduleService maintains the stored schedule grid feeding the catalog.
type ScheduleService struct {
	schedules scheduleStore
	teachers  leaveTeacherReader
	catalog   catalogRefresher
	validator *validator.Validate
	logger    *zap.Logger
}

// NewScheduleService constructs a ScheduleService.
func NewScheduleService(schedules scheduleStore, teachers leaveTeacherReader, catalog catalogRefresher, validate *validator.Validate, logger *zap.Logger) *ScheduleService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScheduleService{schedules: schedules, teachers: teachers, catalog: catalog, validator: validate, logger: logger}
}

// detectGrade pulls the first homeroom token such as "G10-B" out of a
// details cell.
func detectGrade(details string) string {
	for _, field := range strings.Fields(details) {
		if _, ok := models.HomeroomGrade(field); ok {
			return field
		}
	}
	return ""
}

// Import replaces a teacher's weekly grid and rebuilds the catalog.
func (s *ScheduleService) Import(ctx context.Context, tenantID, teacherID string, req ImportScheduleRequest) (int, error) {
	if err := s.validator.Struct(req); err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid schedule payload")
	}
	if _, err := s.teachers.FindByID(ctx, tenantID, teacherID); err != nil {
		return 0, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
	}

	entries := make([]models.ScheduleEntry, 0, len(req.Entries))
	for _, in := range req.Entries {
		entries = append(entries, models.ScheduleEntry{
			TenantID:      tenantID,
			TeacherID:     teacherID,
			DayCode:       in.DayCode,
			Period:        CanonicalPeriod(in.Period),
			PeriodRaw:     in.Period,
			Details:       strings.TrimSpace(in.Details),
			GradeDetected: detectGrade(in.Details),
			Subject:       strings.TrimSpace(in.Subject),
		})
	}

	if err := s.schedules.ReplaceForTeacher(ctx, tenantID, teacherID, entries); err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save schedule")
	}
	if err := s.catalog.Refresh(ctx, tenantID); err != nil {
		s.logger.Warn("catalog refresh after import failed", zap.String("teacher_id", teacherID), zap.Error(err))
	}
	return len(entries), nil
}
