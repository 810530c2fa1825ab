package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/school-ops-api/internal/models"
	"github.com/noah-isme/school-ops-api/pkg/civiltime"
	"github.com/noah-isme/school-ops-api/pkg/config"
	appErrors "github.com/noah-isme/school-ops-api/pkg/errors"
)

type coverRepository interface {
	Insert(ctx context.Context, a *models.CoverAssignment) (bool, error)
	FindByID(ctx context.Context, tenantID, id string) (*models.CoverAssignment, error)
	ListByDate(ctx context.Context, tenantID string, date time.Time) ([]models.CoverAssignment, error)
	ListByRequest(ctx context.Context, tenantID, requestID string) ([]models.CoverAssignment, error)
	CountForCoverOn(ctx context.Context, tenantID, coverSlug string, date time.Time) (int, error)
	RequestIDsWithAssignments(ctx context.Context, tenantID string) (map[string]bool, error)
	OrphanRequestIDs(ctx context.Context, tenantID string) ([]string, error)
	Update(ctx context.Context, a *models.CoverAssignment) error
	Delete(ctx context.Context, tenantID, id string) error
}

type coverLeaveRecords interface {
	ListApproved(ctx context.Context, tenantID string) ([]models.LeaveRecord, error)
	AbsentEmailsOn(ctx context.Context, tenantID string, date time.Time) ([]string, error)
}

type coverCatalog interface {
	Schedule(tenantID, teacherID, dayCode string) []models.ScheduleEntry
	TeachersAvailable(tenantID, dayCode, period string) []models.Teacher
	DaySummary(tenantID, teacherID, dayCode string) models.DaySummary
	WeeklyLoad(tenantID, teacherID string) int
	Cycle(tenantID, teacherID string) models.Cycle
	Teachers(tenantID string) []models.Teacher
	TeacherByEmail(tenantID, email string) (models.Teacher, bool)
}

// CoverService computes substitute assignments for approved leaves.
type CoverService struct {
	covers  coverRepository
	records coverLeaveRecords
	catalog coverCatalog
	cfg     config.CoversConfig
	metrics *MetricsService
	logger  *zap.Logger
}

// NewCoverService constructs a CoverService.
func NewCoverService(covers coverRepository, records coverLeaveRecords, catalog coverCatalog, cfg config.CoversConfig, metrics *MetricsService, logger *zap.Logger) *CoverService {
	if cfg.MaxPerDay <= 0 {
		cfg.MaxPerDay = 2
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CoverService{covers: covers, records: records, catalog: catalog, cfg: cfg, metrics: metrics, logger: logger}
}

func (s *CoverService) excluded(slug string) bool {
	for _, excl := range s.cfg.ExcludedSlugs {
		if strings.EqualFold(excl, slug) {
			return true
		}
	}
	return false
}

func subjectsMatch(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// candidate pairs a teacher with its tie-break tuple. courseTotal is the
// teacher's weekly course count from the catalog, not the day's covers.
type candidate struct {
	teacher     models.Teacher
	tier        int
	courseTotal int
}

// AssignForRecord runs the engine over every weekday of the leave span.
// Re-runs are no-ops for slots already covered.
func (s *CoverService) AssignForRecord(ctx context.Context, tenantID string, rec *models.LeaveRecord) ([]models.CoverAssignment, error) {
	absent, absentKnown := s.catalog.TeacherByEmail(tenantID, rec.TeacherEmail)
	absentCycle := models.CycleGeneral
	absentSubject := ""
	if absentKnown {
		absentCycle = s.catalog.Cycle(tenantID, absent.ID)
		absentSubject = absent.Subject
	}

	var created []models.CoverAssignment
	// session counters: covers granted during this run, keyed by slug
	session := make(map[string]int)

	for d := rec.LeaveStart; !d.After(rec.LeaveEnd); d = d.AddDate(0, 0, 1) {
		dayCode, ok := civiltime.DayCode(d)
		if !ok {
			continue
		}

		var slots []models.ScheduleEntry
		if absentKnown {
			slots = s.catalog.Schedule(tenantID, absent.ID, dayCode)
		}
		if len(slots) == 0 {
			// Represent the absence even without a grid row.
			slots = []models.ScheduleEntry{{
				Period:    "General",
				PeriodRaw: "General",
				Details:   "General cover",
				Subject:   absentSubject,
			}}
		}

		absentEmails, err := s.records.AbsentEmailsOn(ctx, tenantID, d)
		if err != nil {
			return created, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list absent teachers")
		}
		absentSet := make(map[string]bool, len(absentEmails))
		for _, email := range absentEmails {
			absentSet[strings.ToLower(email)] = true
		}

		for _, slot := range slots {
			slotSubject := slot.Subject
			if slotSubject == "" {
				slotSubject = absentSubject
			}

			pick, ok := s.pickCandidate(ctx, tenantID, d, dayCode, slot, rec, absentSet, absentCycle, slotSubject, session)
			if !ok {
				s.metrics.RecordCoverGap()
				s.logger.Warn("cover gap",
					zap.String("request_id", rec.RequestID),
					zap.String("date", d.Format("2006-01-02")),
					zap.String("period", slot.Period))
				continue
			}

			summary := s.catalog.DaySummary(tenantID, pick.ID, dayCode)
			assignment := models.CoverAssignment{
				TenantID:           tenantID,
				Date:               d,
				SlotKey:            models.SlotKey(slot.Period, slot.PeriodRaw, slot.Details),
				RequestID:          rec.RequestID,
				AbsentTeacher:      rec.TeacherName,
				AbsentTeacherEmail: rec.TeacherEmail,
				CoverTeacher:       pick.FullName,
				CoverEmail:         pick.Email,
				CoverSlug:          pick.Slug,
				CoverSubject:       pick.Subject,
				ClassSubject:       slotSubject,
				ClassGrade:         slot.GradeDetected,
				ClassDetails:       slot.Details,
				PeriodLabel:        slot.Period,
				PeriodRaw:          slot.PeriodRaw,
				ClassTime:          slot.Details,
				CoverFreePeriods:   summary.FreePeriods,
				CoverScheduled:     summary.ScheduledCount,
				CoverMaxPeriods:    summary.MaxPeriods,
				DayLabel:           civiltime.DayLabel(dayCode),
				Status:             "assigned",
			}
			inserted, err := s.covers.Insert(ctx, &assignment)
			if err != nil {
				return created, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save cover assignment")
			}
			if !inserted {
				continue
			}
			session[pick.Slug+"|"+d.Format("2006-01-02")]++
			created = append(created, assignment)
		}
	}

	s.metrics.RecordCoverAssigned(len(created))
	s.logger.Info("cover assignment run finished",
		zap.String("request_id", rec.RequestID),
		zap.Int("created", len(created)))
	return created, nil
}

func (s *CoverService) pickCandidate(ctx context.Context, tenantID string, d time.Time, dayCode string, slot models.ScheduleEntry, rec *models.LeaveRecord, absentSet map[string]bool, absentCycle models.Cycle, slotSubject string, session map[string]int) (models.Teacher, bool) {
	var pool []models.Teacher
	canonical := CanonicalPeriod(slot.Period)
	if _, known := periodRank[canonical]; known {
		pool = s.catalog.TeachersAvailable(tenantID, dayCode, canonical)
	} else {
		// Slots without a canonical period skip the availability filter.
		pool = s.catalog.Teachers(tenantID)
	}

	dayKey := d.Format("2006-01-02")
	friday := dayCode == "Fr"

	var candidates []candidate
	for _, t := range pool {
		if strings.EqualFold(t.Email, rec.TeacherEmail) {
			continue
		}
		if absentSet[strings.ToLower(t.Email)] {
			continue
		}
		if s.excluded(t.Slug) {
			continue
		}

		summary := s.catalog.DaySummary(tenantID, t.ID, dayCode)
		if summary.FreePeriods <= 0 {
			continue
		}

		persisted, err := s.covers.CountForCoverOn(ctx, tenantID, t.Slug, d)
		if err != nil {
			s.logger.Warn("cover count lookup failed", zap.String("slug", t.Slug), zap.Error(err))
			continue
		}
		total := persisted + session[t.Slug+"|"+dayKey]
		if total >= s.cfg.MaxPerDay {
			continue
		}

		cycle := s.catalog.Cycle(tenantID, t.ID)
		if cycle == models.CycleHigh || cycle == models.CycleMixed {
			bound := 7
			if friday {
				bound = 5
			}
			if summary.ScheduledCount+total+1 >= bound {
				continue
			}
		}

		subjectMatch := subjectsMatch(t.Subject, slotSubject)
		cycleOverlap := cycle.Overlaps(absentCycle)
		tier := 4
		switch {
		case subjectMatch && cycleOverlap:
			tier = 1
		case subjectMatch:
			tier = 2
		case cycleOverlap:
			tier = 3
		}

		candidates = append(candidates, candidate{
			teacher:     t,
			tier:        tier,
			courseTotal: s.catalog.WeeklyLoad(tenantID, t.ID),
		})
	}

	if len(candidates) == 0 {
		return models.Teacher{}, false
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].tier != candidates[j].tier {
			return candidates[i].tier < candidates[j].tier
		}
		if candidates[i].courseTotal != candidates[j].courseTotal {
			return candidates[i].courseTotal < candidates[j].courseTotal
		}
		return candidates[i].teacher.FullName < candidates[j].teacher.FullName
	})
	return candidates[0].teacher, true
}

// Backfill runs the engine over every approved record without assignments.
func (s *CoverService) Backfill(ctx context.Context, tenantID string) (int, error) {
	records, err := s.records.ListApproved(ctx, tenantID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list approved leaves")
	}
	covered, err := s.covers.RequestIDsWithAssignments(ctx, tenantID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list covered requests")
	}

	created := 0
	for i := range records {
		if covered[records[i].RequestID] {
			continue
		}
		assignments, err := s.AssignForRecord(ctx, tenantID, &records[i])
		if err != nil {
			s.logger.Error("backfill run failed",
				zap.String("request_id", records[i].RequestID), zap.Error(err))
			continue
		}
		created += len(assignments)
	}
	return created, nil
}

// ListByDate returns a day's assignments.
func (s *CoverService) ListByDate(ctx context.Context, tenantID string, date time.Time) ([]models.CoverAssignment, error) {
	list, err := s.covers.ListByDate(ctx, tenantID, date)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list cover assignments")
	}
	return list, nil
}

// Orphans returns request ids whose leave record has been deleted.
func (s *CoverService) Orphans(ctx context.Context, tenantID string) ([]string, error) {
	ids, err := s.covers.OrphanRequestIDs(ctx, tenantID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list orphan assignments")
	}
	return ids, nil
}

// Edit patches an assignment. A cover change recomputes the load columns
// from the catalog for the assignment's day.
func (s *CoverService) Edit(ctx context.Context, tenantID, id string, patch models.CoverPatch) (*models.CoverAssignment, error) {
	a, err := s.covers.FindByID(ctx, tenantID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "cover assignment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load cover assignment")
	}

	coverChanged := false
	if patch.CoverTeacher != nil && *patch.CoverTeacher != a.CoverTeacher {
		a.CoverTeacher = *patch.CoverTeacher
		a.CoverSlug = models.Slugify(*patch.CoverTeacher)
		coverChanged = true
	}
	if patch.CoverEmail != nil {
		a.CoverEmail = *patch.CoverEmail
	}
	if patch.CoverSubject != nil {
		a.CoverSubject = *patch.CoverSubject
	}
	if patch.Status != nil {
		a.Status = *patch.Status
	}
	if patch.ClassSubject != nil {
		a.ClassSubject = *patch.ClassSubject
	}
	if patch.ClassGrade != nil {
		a.ClassGrade = *patch.ClassGrade
	}
	if patch.ClassDetails != nil {
		a.ClassDetails = *patch.ClassDetails
	}
	if patch.PeriodLabel != nil {
		a.PeriodLabel = *patch.PeriodLabel
	}
	if patch.PeriodRaw != nil {
		a.PeriodRaw = *patch.PeriodRaw
	}
	if patch.ClassTime != nil {
		a.ClassTime = *patch.ClassTime
	}
	a.SlotKey = models.SlotKey(a.PeriodLabel, a.PeriodRaw, a.ClassTime)

	if coverChanged {
		if t, ok := s.catalog.TeacherByEmail(tenantID, a.CoverEmail); ok {
			a.CoverSlug = t.Slug
			a.CoverSubject = t.Subject
			if dayCode, ok := civiltime.DayCode(a.Date); ok {
				summary := s.catalog.DaySummary(tenantID, t.ID, dayCode)
				a.CoverFreePeriods = summary.FreePeriods
				a.CoverScheduled = summary.ScheduledCount
				a.CoverMaxPeriods = summary.MaxPeriods
			}
		}
	}

	if err := s.covers.Update(ctx, a); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "cover assignment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save cover assignment")
	}
	return a, nil
}

// Delete removes one assignment.
func (s *CoverService) Delete(ctx context.Context, tenantID, id string) error {
	if err := s.covers.Delete(ctx, tenantID, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete cover assignment")
	}
	return nil
}
