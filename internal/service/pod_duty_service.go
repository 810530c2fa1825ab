package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/school-ops-api/internal/models"
	appErrors "github.com/noah-isme/school-ops-api/pkg/errors"
)

type podDutyRepository interface {
	ListByDateGrade(ctx context.Context, tenantID string, date time.Time, grade int) ([]models.PodDutyAssignment, error)
	ListByDate(ctx context.Context, tenantID string, date time.Time) ([]models.PodDutyAssignment, error)
	FindByID(ctx context.Context, tenantID, id string) (*models.PodDutyAssignment, error)
	SlotTaken(ctx context.Context, tenantID string, date time.Time, teacherID string, slotType models.SlotType, period *int) (bool, error)
	Create(ctx context.Context, a *models.PodDutyAssignment) error
	ReplaceForDateGrade(ctx context.Context, tenantID string, date time.Time, grade int, deleteIDs []string, add []models.PodDutyAssignment) error
	SetAck(ctx context.Context, tenantID, id string, status models.AckStatus, note string) error
	Delete(ctx context.Context, tenantID, id string) error
}

type availabilityFetcher interface {
	Enabled() bool
	Fetch(ctx context.Context, dayCode, period string) ([]models.AvailabilityEntry, error)
}

type podCatalog interface {
	Teachers(tenantID string) []models.Teacher
	TeacherByEmail(tenantID, email string) (models.Teacher, bool)
}

// PodSlotRequest is one desired roster slot in a bulk save.
type PodSlotRequest struct {
	SlotType      string `json:"slot_type" validate:"required"`
	Pod           string `json:"pod" validate:"required"`
	Period        *int   `json:"period"`
	TeacherID     string `json:"teacher_id" validate:"required"`
	BreakLocation string `json:"break_location"`
}

// SavePodRosterRequest replaces a grade's roster for a day.
type SavePodRosterRequest struct {
	Date  string           `json:"date" validate:"required"`
	Grade int              `json:"grade" validate:"required"`
	Slots []PodSlotRequest `json:"slots" validate:"dive"`
}

// PodDutyService manages grade-pod rosters.
type PodDutyService struct {
	pods         podDutyRepository
	teachers     leaveTeacherReader
	catalog      podCatalog
	availability availabilityFetcher
	excluded     []string
	validator    *validator.Validate
	logger       *zap.Logger
}

// NewPodDutyService constructs a PodDutyService.
func NewPodDutyService(pods podDutyRepository, teachers leaveTeacherReader, catalog podCatalog, availability availabilityFetcher, excludedSlugs []string, validate *validator.Validate, logger *zap.Logger) *PodDutyService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PodDutyService{
		pods:         pods,
		teachers:     teachers,
		catalog:      catalog,
		availability: availability,
		excluded:     excludedSlugs,
		validator:    validate,
		logger:       logger,
	}
}

// canEditGrade enforces the roster edit gate: super admins and the
// grade's lead only.
func canEditGrade(claims *models.JWTClaims, grade int) bool {
	if claims.IsSuperAdmin() {
		return true
	}
	if g, ok := claims.Role.IsGradeLead(); ok {
		return g == grade
	}
	return false
}

// teacherSlotKey identifies a teacher's occupancy at a time, mirroring
// the uq_pod_duty_slot index. Pod is deliberately absent.
func teacherSlotKey(teacherID string, slotType models.SlotType, period *int) string {
	p := -1
	if period != nil {
		p = *period
	}
	return fmt.Sprintf("%s|%s|%d", teacherID, slotType, p)
}

func (s *PodDutyService) slugExcluded(slug string) bool {
	for _, excl := range s.excluded {
		if strings.EqualFold(excl, slug) {
			return true
		}
	}
	return false
}

// validateSlot normalizes and checks a single slot request.
func (s *PodDutyService) validateSlot(grade int, slot PodSlotRequest) (models.PodDutyAssignment, error) {
	slotType := models.SlotType(slot.SlotType)
	out := models.PodDutyAssignment{
		Grade:         grade,
		Pod:           slot.Pod,
		SlotType:      slotType,
		TeacherID:     slot.TeacherID,
		BreakLocation: slot.BreakLocation,
	}
	switch slotType {
	case models.SlotPeriod:
		if slot.Period == nil {
			return out, validationErr("period slots require a period number")
		}
		if *slot.Period < 1 || *slot.Period > models.PodPeriodCount(grade) {
			return out, validationErr("period out of range for grade")
		}
		period := *slot.Period
		out.Period = &period
		if slot.Pod != models.PodName(grade, 1) && slot.Pod != models.PodName(grade, 2) {
			return out, validationErr("unknown pod for grade")
		}
	case models.SlotBreak:
		if slot.Pod != models.GradeBreakPod {
			return out, validationErr("break slots belong to the grade break pod")
		}
		if models.BreakLocationRequired(grade) && slot.BreakLocation == "" {
			return out, validationErr("break slots for this grade require a location")
		}
		if slot.BreakLocation != "" && !validLocation(slot.BreakLocation, models.BreakLocations) {
			return out, validationErr("unknown break location")
		}
	default:
		return out, validationErr("unknown slot type")
	}
	return out, nil
}

func (s *PodDutyService) checkRoles(ctx context.Context, tenantID string, slotType models.SlotType, teacherID string) (*models.Teacher, error) {
	teacher, err := s.teachers.FindByID(ctx, tenantID, teacherID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}
	if teacher.Role == models.RoleAdministrator {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "administrators are excluded from duty rosters")
	}
	if slotType == models.SlotBreak && teacher.Role == models.RoleSLT {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "SLT members are excluded from break duty")
	}
	return teacher, nil
}

// SaveRoster applies a bulk replace as a diff against persisted rows.
// Acknowledgements on surviving rows are untouched.
func (s *PodDutyService) SaveRoster(ctx context.Context, claims *models.JWTClaims, req SavePodRosterRequest) ([]models.PodDutyAssignment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid roster payload")
	}
	if !models.PodGradeValid(req.Grade) {
		return nil, validationErr("grade has no pod roster")
	}
	if !canEditGrade(claims, req.Grade) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the grade lead or an admin may edit this roster")
	}
	date, err := parseCivilDate(req.Date)
	if err != nil {
		return nil, validationErr("date must be YYYY-MM-DD")
	}

	desired := make([]models.PodDutyAssignment, 0, len(req.Slots))
	for _, slot := range req.Slots {
		normalized, err := s.validateSlot(req.Grade, slot)
		if err != nil {
			return nil, err
		}
		desired = append(desired, normalized)
	}

	existing, err := s.pods.ListByDateGrade(ctx, claims.TenantID, date, req.Grade)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load roster")
	}

	existingByIdent := make(map[string]models.PodDutyAssignment, len(existing))
	for _, row := range existing {
		existingByIdent[row.SlotIdent()] = row
	}
	desiredIdents := make(map[string]bool, len(desired))
	for i := range desired {
		desiredIdents[desired[i].SlotIdent()] = true
	}

	var deleteIDs []string
	deleted := make(map[string]bool)
	for ident, row := range existingByIdent {
		if !desiredIdents[ident] {
			deleteIDs = append(deleteIDs, row.ID)
			deleted[row.ID] = true
		}
	}

	// Conflicts are judged against the roster as it will look after this
	// save, so moving a teacher between pods in one submission is fine.
	dayRows, err := s.pods.ListByDate(ctx, claims.TenantID, date)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load roster")
	}
	occupied := make(map[string]bool, len(dayRows))
	for _, row := range dayRows {
		if deleted[row.ID] {
			continue
		}
		occupied[teacherSlotKey(row.TeacherID, row.SlotType, row.Period)] = true
	}

	var additions []models.PodDutyAssignment
	for i := range desired {
		if _, kept := existingByIdent[desired[i].SlotIdent()]; kept {
			continue
		}

		teacher, err := s.checkRoles(ctx, claims.TenantID, desired[i].SlotType, desired[i].TeacherID)
		if err != nil {
			return nil, err
		}
		if s.slugExcluded(teacher.Slug) {
			return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "teacher is excluded from duty rosters")
		}
		key := teacherSlotKey(desired[i].TeacherID, desired[i].SlotType, desired[i].Period)
		if occupied[key] {
			return nil, appErrors.Clone(appErrors.ErrConflict, "teacher already holds a slot at this time")
		}
		occupied[key] = true
		desired[i].TeacherName = teacher.FullName
		additions = append(additions, desired[i])
	}

	if err := s.pods.ReplaceForDateGrade(ctx, claims.TenantID, date, req.Grade, deleteIDs, additions); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save roster")
	}

	saved, err := s.pods.ListByDateGrade(ctx, claims.TenantID, date, req.Grade)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload roster")
	}
	return saved, nil
}

// AssignSlot mirrors the bulk diff for a single slot with explicit
// conflict reporting.
func (s *PodDutyService) AssignSlot(ctx context.Context, claims *models.JWTClaims, dateRaw string, grade int, slot PodSlotRequest) (*models.PodDutyAssignment, error) {
	if !models.PodGradeValid(grade) {
		return nil, validationErr("grade has no pod roster")
	}
	if !canEditGrade(claims, grade) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the grade lead or an admin may edit this roster")
	}
	date, err := parseCivilDate(dateRaw)
	if err != nil {
		return nil, validationErr("date must be YYYY-MM-DD")
	}
	normalized, err := s.validateSlot(grade, slot)
	if err != nil {
		return nil, err
	}
	teacher, err := s.checkRoles(ctx, claims.TenantID, normalized.SlotType, normalized.TeacherID)
	if err != nil {
		return nil, err
	}
	if s.slugExcluded(teacher.Slug) {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "teacher is excluded from duty rosters")
	}
	taken, err := s.pods.SlotTaken(ctx, claims.TenantID, date, normalized.TeacherID, normalized.SlotType, normalized.Period)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check roster slot")
	}
	if taken {
		return nil, appErrors.Clone(appErrors.ErrConflict, "teacher already holds a slot at this time")
	}

	normalized.TenantID = claims.TenantID
	normalized.AssignmentDate = date
	normalized.TeacherName = teacher.FullName
	if err := s.pods.Create(ctx, &normalized); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save roster slot")
	}
	return &normalized, nil
}

// Roster returns a grade's roster for a day, or every grade with grade 0.
func (s *PodDutyService) Roster(ctx context.Context, tenantID string, date time.Time, grade int) ([]models.PodDutyAssignment, error) {
	var list []models.PodDutyAssignment
	var err error
	if grade > 0 {
		list, err = s.pods.ListByDateGrade(ctx, tenantID, date, grade)
	} else {
		list, err = s.pods.ListByDate(ctx, tenantID, date)
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list roster")
	}
	return list, nil
}

// Candidates returns ordered assignment candidates for (date, day, period):
// external availability when reachable, the local directory otherwise,
// always minus role exclusions, ordered unassigned-first then by name.
func (s *PodDutyService) Candidates(ctx context.Context, tenantID string, date time.Time, dayCode, period string, forBreak bool) ([]models.Teacher, error) {
	var pool []models.Teacher
	if s.availability != nil && s.availability.Enabled() {
		entries, err := s.availability.Fetch(ctx, dayCode, period)
		if err != nil {
			s.logger.Warn("availability API unreachable, using local directory", zap.Error(err))
		} else {
			for _, entry := range entries {
				if t, ok := s.catalog.TeacherByEmail(tenantID, entry.Email); ok {
					pool = append(pool, t)
				}
			}
		}
	}
	if pool == nil {
		pool = s.catalog.Teachers(tenantID)
	}

	assigned, err := s.pods.ListByDate(ctx, tenantID, date)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list roster")
	}
	assignedToday := make(map[string]bool, len(assigned))
	for _, row := range assigned {
		assignedToday[row.TeacherID] = true
	}

	var candidates []models.Teacher
	for _, t := range pool {
		if t.Role == models.RoleAdministrator {
			continue
		}
		if forBreak && t.Role == models.RoleSLT {
			continue
		}
		if s.slugExcluded(t.Slug) {
			continue
		}
		candidates = append(candidates, t)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		ai, aj := assignedToday[candidates[i].ID], assignedToday[candidates[j].ID]
		if ai != aj {
			return !ai
		}
		return candidates[i].FullName < candidates[j].FullName
	})
	return candidates, nil
}

// Acknowledge transitions a pod slot's acknowledgement.
func (s *PodDutyService) Acknowledge(ctx context.Context, claims *models.JWTClaims, id string, req AckRequest) (*models.PodDutyAssignment, error) {
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

	assignment, err := s.pods.FindByID(ctx, claims.TenantID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "roster slot not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load roster slot")
	}
	if !claims.IsSuperAdmin() && assignment.TeacherID != claims.TeacherID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not your roster slot")
	}

	if err := s.pods.SetAck(ctx, claims.TenantID, id, status, req.Note); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save acknowledgement")
	}
	now := time.Now().UTC()
	assignment.AckStatus = status
	assignment.AckNote = req.Note
	assignment.AckUpdatedAt = &now
	return assignment, nil
}

// Remove deletes one roster slot.
func (s *PodDutyService) Remove(ctx context.Context, claims *models.JWTClaims, id string) error {
	assignment, err := s.pods.FindByID(ctx, claims.TenantID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "roster slot not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load roster slot")
	}
	if !canEditGrade(claims, assignment.Grade) {
		return appErrors.Clone(appErrors.ErrForbidden, "only the grade lead or an admin may edit this roster")
	}
	if err := s.pods.Delete(ctx, claims.TenantID, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete roster slot")
	}
	return nil
}
