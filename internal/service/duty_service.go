package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/school-ops-api/internal/models"
	appErrors "github.com/noah-isme/school-ops-api/pkg/errors"
)

type dutyRepository interface {
	Create(ctx context.Context, a *models.DutyAssignment) error
	Exists(ctx context.Context, tenantID string, date time.Time, dutyType models.DutyType, teacherID string) (bool, error)
	ListByDate(ctx context.Context, tenantID string, date time.Time) ([]models.DutyAssignment, error)
	FindByID(ctx context.Context, tenantID, id string) (*models.DutyAssignment, error)
	SetAck(ctx context.Context, tenantID, id string, status models.AckStatus, note string) error
	Delete(ctx context.Context, tenantID, id string) error
}

// AssignDutyRequest is the daily-duty assignment payload.
type AssignDutyRequest struct {
	Date      string `json:"date" validate:"required"`
	DutyType  string `json:"duty_type" validate:"required"`
	Location  string `json:"location" validate:"required"`
	TeacherID string `json:"teacher_id" validate:"required"`
}

// AckRequest transitions an acknowledgement.
type AckRequest struct {
	Status string `json:"status" validate:"required"`
	Note   string `json:"note" validate:"omitempty,max=500"`
}

// DutyService manages morning and dismissal rosters.
type DutyService struct {
	duties    dutyRepository
	teachers  leaveTeacherReader
	validator *validator.Validate
	logger    *zap.Logger
}

// NewDutyService constructs a DutyService.
func NewDutyService(duties dutyRepository, teachers leaveTeacherReader, validate *validator.Validate, logger *zap.Logger) *DutyService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DutyService{duties: duties, teachers: teachers, validator: validate, logger: logger}
}

func validLocation(location string, allowed []string) bool {
	for _, l := range allowed {
		if l == location {
			return true
		}
	}
	return false
}

// Assign creates one roster row after role and duplicate checks.
func (s *DutyService) Assign(ctx context.Context, tenantID string, req AssignDutyRequest) (*models.DutyAssignment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid duty payload")
	}
	dutyType := models.DutyType(req.DutyType)
	if !dutyType.Valid() {
		return nil, validationErr("unknown duty type")
	}
	if !validLocation(req.Location, models.DailyDutyLocations) {
		return nil, validationErr("unknown duty location")
	}
	date, err := parseCivilDate(req.Date)
	if err != nil {
		return nil, validationErr("date must be YYYY-MM-DD")
	}

	teacher, err := s.teachers.FindByID(ctx, tenantID, req.TeacherID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}
	if teacher.Role == models.RoleAdministrator {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "administrators are excluded from duty rosters")
	}

	exists, err := s.duties.Exists(ctx, tenantID, date, dutyType, teacher.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check duty roster")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "teacher already holds this duty")
	}

	assignment := &models.DutyAssignment{
		TenantID:       tenantID,
		AssignmentDate: date,
		DutyType:       dutyType,
		Location:       req.Location,
		TeacherID:      teacher.ID,
		TeacherName:    teacher.FullName,
		AckStatus:      models.AckPending,
	}
	if err := s.duties.Create(ctx, assignment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save duty assignment")
	}
	return assignment, nil
}

// Roster returns a day's daily-duty roster.
func (s *DutyService) Roster(ctx context.Context, tenantID string, date time.Time) ([]models.DutyAssignment, error) {
	list, err := s.duties.ListByDate(ctx, tenantID, date)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list duty roster")
	}
	return list, nil
}

// Acknowledge transitions an assignment's acknowledgement. Only admins or
// the assigned teacher may acknowledge; unavailable requires a note.
func (s *DutyService) Acknowledge(ctx context.Context, claims *models.JWTClaims, id string, req AckRequest) (*models.DutyAssignment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid acknowledgement payload")
	}
	status := models.AckStatus(req.Status)
	if !status.Valid() || status == models.AckPending {
		return nil, validationErr("status must be present or unavailable")
	}
	if status == models.AckUnavailable && req.Note == "" {
		return nil, validationErr("a note is required when unavailable")
	}

	assignment, err := s.duties.FindByID(ctx, claims.TenantID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "duty assignment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load duty assignment")
	}
	if !claims.IsSuperAdmin() && assignment.TeacherID != claims.TeacherID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not your duty assignment")
	}

	if err := s.duties.SetAck(ctx, claims.TenantID, id, status, req.Note); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save acknowledgement")
	}
	now := time.Now().UTC()
	assignment.AckStatus = status
	assignment.AckNote = req.Note
	assignment.AckUpdatedAt = &now
	return assignment, nil
}

// Remove deletes one roster row.
func (s *DutyService) Remove(ctx context.Context, tenantID, id string) error {
	if err := s.duties.Delete(ctx, tenantID, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete duty assignment")
	}
	return nil
}
