package service

import (
	"context"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/noah-isme/school-ops-api/internal/models"
)

type scheduleReader interface {
	ListAll(ctx context.Context, tenantID string) ([]models.ScheduleEntry, error)
}

type teacherDirectory interface {
	ListActive(ctx context.Context, tenantID string) ([]models.Teacher, error)
}

// periodRank orders canonical periods; unknown labels rank last.
var periodRank = map[string]int{
	"Homeroom": 0,
	"P1":       1,
	"P2":       2,
	"P3":       3,
	"P4":       4,
	"P5":       5,
	"P6":       6,
	"P7":       7,
}

// CanonicalPeriod collapses raw grid labels such as "P1 7:30 - 8:20" or
// "Period 1 7:50 - 8:45" to their canonical form. Unknown labels are
// returned verbatim.
func CanonicalPeriod(raw string) string {
	trimmed := strings.TrimSpace(raw)
	lower := strings.ToLower(trimmed)
	if strings.HasPrefix(lower, "homeroom") || strings.HasPrefix(lower, "hr") {
		return "Homeroom"
	}
	rest := ""
	switch {
	case strings.HasPrefix(lower, "period"):
		rest = strings.TrimSpace(lower[len("period"):])
	case strings.HasPrefix(lower, "p"):
		rest = strings.TrimSpace(lower[1:])
	default:
		return trimmed
	}
	if rest == "" {
		return trimmed
	}
	digit := rest[0]
	if digit < '1' || digit > '7' {
		return trimmed
	}
	if len(rest) > 1 {
		next := rest[1]
		if next >= '0' && next <= '9' {
			return trimmed
		}
	}
	return "P" + string(digit)
}

// PeriodRank returns the sort rank of a canonical period label; unknown
// labels sort after every known rank.
func PeriodRank(label string) int {
	if rank, ok := periodRank[label]; ok {
		return rank
	}
	return len(periodRank)
}

type catalogState struct {
	// (teacherID|dayCode|period) occupancy
	occupied map[string]models.ScheduleEntry
	// teacherID|dayCode -> entries
	byTeacherDay map[string][]models.ScheduleEntry
	// teacherID -> scheduled entries across the whole week
	weekly      map[string]int
	teachers    []models.Teacher
	byTeacherID map[string]models.Teacher
	grades      map[string][]int
	cycles      map[string]models.Cycle
}

// CatalogService holds the in-memory schedule catalog for one tenant,
// rebuilt from the store at boot and on explicit refresh.
type CatalogService struct {
	schedules scheduleReader
	teachers  teacherDirectory
	logger    *zap.Logger

	mu    sync.RWMutex
	state map[string]*catalogState
}

// NewCatalogService constructs a CatalogService.
func NewCatalogService(schedules scheduleReader, teachers teacherDirectory, logger *zap.Logger) *CatalogService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogService{
		schedules: schedules,
		teachers:  teachers,
		logger:    logger,
		state:     make(map[string]*catalogState),
	}
}

// Refresh rebuilds the catalog for a tenant from the store.
func (s *CatalogService) Refresh(ctx context.Context, tenantID string) error {
	entries, err := s.schedules.ListAll(ctx, tenantID)
	if err != nil {
		return err
	}
	teachers, err := s.teachers.ListActive(ctx, tenantID)
	if err != nil {
		return err
	}

	st := &catalogState{
		occupied:     make(map[string]models.ScheduleEntry),
		byTeacherDay: make(map[string][]models.ScheduleEntry),
		weekly:       make(map[string]int),
		teachers:     teachers,
		byTeacherID:  make(map[string]models.Teacher, len(teachers)),
		grades:       make(map[string][]int),
		cycles:       make(map[string]models.Cycle),
	}
	for _, t := range teachers {
		st.byTeacherID[t.ID] = t
	}

	gradeSets := make(map[string]map[int]bool)
	for _, e := range entries {
		e.Period = CanonicalPeriod(e.Period)
		st.occupied[slotIdent(e.TeacherID, e.DayCode, e.Period)] = e
		dayKey := e.TeacherID + "|" + e.DayCode
		st.byTeacherDay[dayKey] = append(st.byTeacherDay[dayKey], e)
		st.weekly[e.TeacherID]++
		if grade, ok := models.HomeroomGrade(e.GradeDetected); ok {
			if gradeSets[e.TeacherID] == nil {
				gradeSets[e.TeacherID] = make(map[int]bool)
			}
			gradeSets[e.TeacherID][grade] = true
		}
	}
	for key := range st.byTeacherDay {
		rows := st.byTeacherDay[key]
		sort.Slice(rows, func(i, j int) bool {
			ri, rj := PeriodRank(rows[i].Period), PeriodRank(rows[j].Period)
			if ri != rj {
				return ri < rj
			}
			return rows[i].Period < rows[j].Period
		})
	}
	for teacherID, set := range gradeSets {
		grades := make([]int, 0, len(set))
		for g := range set {
			grades = append(grades, g)
		}
		sort.Ints(grades)
		st.grades[teacherID] = grades
		st.cycles[teacherID] = cycleFromGrades(grades)
	}

	s.mu.Lock()
	s.state[tenantID] = st
	s.mu.Unlock()

	s.logger.Info("schedule catalog refreshed",
		zap.String("tenant_id", tenantID),
		zap.Int("entries", len(entries)),
		zap.Int("teachers", len(teachers)))
	return nil
}

func slotIdent(teacherID, dayCode, period string) string {
	return teacherID + "|" + dayCode + "|" + period
}

// cycleFromGrades classifies a teacher by the grades they teach. Grades
// 10 and up are the high phase, 6 and 7 middle; both means mixed, neither
// means general duties only.
func cycleFromGrades(grades []int) models.Cycle {
	var high, middle bool
	for _, g := range grades {
		if g >= 10 {
			high = true
		} else {
			middle = true
		}
	}
	switch {
	case high && middle:
		return models.CycleMixed
	case high:
		return models.CycleHigh
	case middle:
		return models.CycleMiddle
	default:
		return models.CycleGeneral
	}
}

func (s *CatalogService) tenant(tenantID string) *catalogState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state[tenantID]
}

// TeachersAvailable returns teachers with no schedule row at (day, period).
func (s *CatalogService) TeachersAvailable(tenantID, dayCode, period string) []models.Teacher {
	st := s.tenant(tenantID)
	if st == nil {
		return nil
	}
	canonical := CanonicalPeriod(period)
	var free []models.Teacher
	for _, t := range st.teachers {
		if _, busy := st.occupied[slotIdent(t.ID, dayCode, canonical)]; !busy {
			free = append(free, t)
		}
	}
	return free
}

// AvailabilityEntries projects the free teachers at (day, period) into
// the documented availability payload shape.
func (s *CatalogService) AvailabilityEntries(tenantID, dayCode, period string) []models.AvailabilityEntry {
	st := s.tenant(tenantID)
	if st == nil {
		return nil
	}
	canonical := CanonicalPeriod(period)
	var out []models.AvailabilityEntry
	for _, t := range st.teachers {
		if _, busy := st.occupied[slotIdent(t.ID, dayCode, canonical)]; busy {
			continue
		}
		out = append(out, models.AvailabilityEntry{
			Email:        t.Email,
			LevelLabel:   st.cycles[t.ID].Label(),
			Subject:      t.Subject,
			PrimaryClass: t.GradeLevel,
		})
	}
	return out
}

// TeachersOccupied returns teachers busy at (day, period) and what
// occupies them.
func (s *CatalogService) TeachersOccupied(tenantID, dayCode, period string) []models.OccupiedTeacher {
	st := s.tenant(tenantID)
	if st == nil {
		return nil
	}
	canonical := CanonicalPeriod(period)
	var busy []models.OccupiedTeacher
	for _, t := range st.teachers {
		if e, ok := st.occupied[slotIdent(t.ID, dayCode, canonical)]; ok {
			busy = append(busy, models.OccupiedTeacher{TeacherID: t.ID, Email: t.Email, Detail: e.Details})
		}
	}
	return busy
}

// Schedule returns a teacher's rows for a day code, period-ordered.
func (s *CatalogService) Schedule(tenantID, teacherID, dayCode string) []models.ScheduleEntry {
	st := s.tenant(tenantID)
	if st == nil {
		return nil
	}
	return st.byTeacherDay[teacherID+"|"+dayCode]
}

// DaySummary condenses one teacher's load for a day code. The period cap
// depends on cycle and weekday: high and mixed teachers carry 5 on Friday
// and 7 otherwise; middle and general carry 3 on Friday and 6 otherwise.
func (s *CatalogService) DaySummary(tenantID, teacherID, dayCode string) models.DaySummary {
	st := s.tenant(tenantID)
	cycle := models.CycleGeneral
	scheduled := 0
	if st != nil {
		if c, ok := st.cycles[teacherID]; ok {
			cycle = c
		}
		scheduled = len(st.byTeacherDay[teacherID+"|"+dayCode])
	}

	friday := dayCode == "Fr"
	var max int
	switch cycle {
	case models.CycleHigh, models.CycleMixed:
		if friday {
			max = 5
		} else {
			max = 7
		}
	default:
		if friday {
			max = 3
		} else {
			max = 6
		}
	}

	free := max - scheduled
	if free < 0 {
		free = 0
	}
	return models.DaySummary{ScheduledCount: scheduled, MaxPeriods: max, FreePeriods: free}
}

// WeeklyLoad returns how many schedule rows a teacher carries across the
// whole week. The cover engine breaks ties inside a tier with it.
func (s *CatalogService) WeeklyLoad(tenantID, teacherID string) int {
	st := s.tenant(tenantID)
	if st == nil {
		return 0
	}
	return st.weekly[teacherID]
}

// GradeLevels returns the grades detected in a teacher's schedule.
func (s *CatalogService) GradeLevels(tenantID, teacherID string) []int {
	st := s.tenant(tenantID)
	if st == nil {
		return nil
	}
	return st.grades[teacherID]
}

// Cycle classifies a teacher's phase from their detected grades.
func (s *CatalogService) Cycle(tenantID, teacherID string) models.Cycle {
	st := s.tenant(tenantID)
	if st == nil {
		return models.CycleGeneral
	}
	if c, ok := st.cycles[teacherID]; ok {
		return c
	}
	return models.CycleGeneral
}

// Teachers returns the active directory snapshot held by the catalog.
func (s *CatalogService) Teachers(tenantID string) []models.Teacher {
	st := s.tenant(tenantID)
	if st == nil {
		return nil
	}
	return st.teachers
}

// TeacherByEmail looks a teacher up in the catalog snapshot.
func (s *CatalogService) TeacherByEmail(tenantID, email string) (models.Teacher, bool) {
	st := s.tenant(tenantID)
	if st == nil {
		return models.Teacher{}, false
	}
	for _, t := range st.teachers {
		if strings.EqualFold(t.Email, email) {
			return t, true
		}
	}
	return models.Teacher{}, false
}
