package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/school-ops-api/internal/models"
	"github.com/noah-isme/school-ops-api/pkg/config"
)

type mockCoverRepo struct {
	rows map[string]models.CoverAssignment
}

func (m *mockCoverRepo) key(a *models.CoverAssignment) string {
	return a.Date.Format("2006-01-02") + "|" + a.RequestID + "|" + a.SlotKey
}

func (m *mockCoverRepo) Insert(ctx context.Context, a *models.CoverAssignment) (bool, error) {
	if m.rows == nil {
		m.rows = make(map[string]models.CoverAssignment)
	}
	k := m.key(a)
	if _, exists := m.rows[k]; exists {
		return false, nil
	}
	m.rows[k] = *a
	return true, nil
}

func (m *mockCoverRepo) FindByID(ctx context.Context, tenantID, id string) (*models.CoverAssignment, error) {
	for _, a := range m.rows {
		if a.ID == id {
			cp := a
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockCoverRepo) ListByDate(ctx context.Context, tenantID string, date time.Time) ([]models.CoverAssignment, error) {
	var out []models.CoverAssignment
	for _, a := range m.rows {
		if a.Date.Equal(date) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *mockCoverRepo) ListByRequest(ctx context.Context, tenantID, requestID string) ([]models.CoverAssignment, error) {
	var out []models.CoverAssignment
	for _, a := range m.rows {
		if a.RequestID == requestID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *mockCoverRepo) CountForCoverOn(ctx context.Context, tenantID, coverSlug string, date time.Time) (int, error) {
	count := 0
	for _, a := range m.rows {
		if a.CoverSlug == coverSlug && a.Date.Equal(date) {
			count++
		}
	}
	return count, nil
}

func (m *mockCoverRepo) RequestIDsWithAssignments(ctx context.Context, tenantID string) (map[string]bool, error) {
	out := make(map[string]bool)
	for _, a := range m.rows {
		out[a.RequestID] = true
	}
	return out, nil
}

func (m *mockCoverRepo) OrphanRequestIDs(ctx context.Context, tenantID string) ([]string, error) {
	return nil, nil
}

func (m *mockCoverRepo) Update(ctx context.Context, a *models.CoverAssignment) error {
	m.rows[m.key(a)] = *a
	return nil
}

func (m *mockCoverRepo) Delete(ctx context.Context, tenantID, id string) error {
	for k, a := range m.rows {
		if a.ID == id {
			delete(m.rows, k)
		}
	}
	return nil
}

type mockRecordStore struct {
	approved []models.LeaveRecord
	absent   map[string][]string
}

func (m *mockRecordStore) ListApproved(ctx context.Context, tenantID string) ([]models.LeaveRecord, error) {
	return m.approved, nil
}

func (m *mockRecordStore) AbsentEmailsOn(ctx context.Context, tenantID string, date time.Time) ([]string, error) {
	return m.absent[date.Format("2006-01-02")], nil
}

// mockCatalog is a fixed grid: the absent teacher has the listed slots and
// every candidate teacher is free unless named in busy.
type mockCatalog struct {
	teachers  []models.Teacher
	schedules map[string][]models.ScheduleEntry
	summaries map[string]models.DaySummary
	cycles    map[string]models.Cycle
	weekly    map[string]int
	busy      map[string]bool
}

func (m *mockCatalog) Schedule(tenantID, teacherID, dayCode string) []models.ScheduleEntry {
	return m.schedules[teacherID+"|"+dayCode]
}

func (m *mockCatalog) TeachersAvailable(tenantID, dayCode, period string) []models.Teacher {
	var out []models.Teacher
	for _, t := range m.teachers {
		if !m.busy[t.ID+"|"+dayCode+"|"+period] {
			out = append(out, t)
		}
	}
	return out
}

func (m *mockCatalog) DaySummary(tenantID, teacherID, dayCode string) models.DaySummary {
	if s, ok := m.summaries[teacherID]; ok {
		return s
	}
	return models.DaySummary{ScheduledCount: 2, MaxPeriods: 7, FreePeriods: 5}
}

func (m *mockCatalog) Cycle(tenantID, teacherID string) models.Cycle {
	if c, ok := m.cycles[teacherID]; ok {
		return c
	}
	return models.CycleGeneral
}

func (m *mockCatalog) WeeklyLoad(tenantID, teacherID string) int {
	return m.weekly[teacherID]
}

func (m *mockCatalog) Teachers(tenantID string) []models.Teacher {
	return m.teachers
}

func (m *mockCatalog) TeacherByEmail(tenantID, email string) (models.Teacher, bool) {
	for _, t := range m.teachers {
		if t.Email == email {
			return t, true
		}
	}
	return models.Teacher{}, false
}

func coverFixtureTeachers() []models.Teacher {
	return []models.Teacher{
		{ID: "absent", FullName: "Absent One", Email: "absent@school.ae", Subject: "Math", Slug: "absent_one"},
		{ID: "c1", FullName: "Zara Math", Email: "zara@school.ae", Subject: "Math", Slug: "zara_math"},
		{ID: "c2", FullName: "Bob English", Email: "bob@school.ae", Subject: "English", Slug: "bob_english"},
		{ID: "c3", FullName: "Cara Math", Email: "cara@school.ae", Subject: "Math", Slug: "cara_math"},
	}
}

func newCoverFixture(catalog *mockCatalog) (*CoverService, *mockCoverRepo, *mockRecordStore) {
	covers := &mockCoverRepo{}
	records := &mockRecordStore{absent: map[string][]string{}}
	svc := NewCoverService(covers, records, catalog, config.CoversConfig{MaxPerDay: 2}, nil, nil)
	return svc, covers, records
}

// Monday 2025-03-10.
var coverDay = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

func coverRecord() *models.LeaveRecord {
	return &models.LeaveRecord{
		RequestID:    "req-1",
		TeacherName:  "Absent One",
		TeacherEmail: "absent@school.ae",
		Status:       "approved",
		LeaveStart:   coverDay,
		LeaveEnd:     coverDay,
	}
}

func TestAssignForRecordPrefersSubjectAndCycle(t *testing.T) {
	catalog := &mockCatalog{
		teachers: coverFixtureTeachers(),
		schedules: map[string][]models.ScheduleEntry{
			"absent|Mo": {{Period: "P1", PeriodRaw: "Period 1", Details: "08:00 G10-A", Subject: "Math", GradeDetected: "G10"}},
		},
		cycles: map[string]models.Cycle{
			"absent": models.CycleHigh,
			"c1":     models.CycleHigh,    // subject + cycle: tier 1
			"c2":     models.CycleHigh,    // cycle only: tier 3
			"c3":     models.CycleMiddle,  // subject only: tier 2
		},
	}
	svc, _, _ := newCoverFixture(catalog)

	created, err := svc.AssignForRecord(context.Background(), "tn1", coverRecord())
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, "Zara Math", created[0].CoverTeacher)
	assert.Equal(t, "P1|Period 1|08:00 G10-A", created[0].SlotKey)
	assert.Equal(t, "Monday", created[0].DayLabel)
}

func TestAssignForRecordAlphabeticalTieBreak(t *testing.T) {
	catalog := &mockCatalog{
		teachers: coverFixtureTeachers(),
		schedules: map[string][]models.ScheduleEntry{
			"absent|Mo": {{Period: "P1", PeriodRaw: "Period 1", Details: "08:00", Subject: "Math"}},
		},
		cycles: map[string]models.Cycle{
			"absent": models.CycleHigh,
			"c1":     models.CycleHigh,
			"c3":     models.CycleHigh,
		},
	}
	svc, _, _ := newCoverFixture(catalog)

	created, err := svc.AssignForRecord(context.Background(), "tn1", coverRecord())
	require.NoError(t, err)
	require.Len(t, created, 1)
	// c1 and c3 are both tier 1 with equal load; Cara sorts before Zara.
	assert.Equal(t, "Cara Math", created[0].CoverTeacher)
}

func TestAssignForRecordLighterWeeklyLoadWinsTie(t *testing.T) {
	catalog := &mockCatalog{
		teachers: coverFixtureTeachers(),
		schedules: map[string][]models.ScheduleEntry{
			"absent|Mo": {{Period: "P1", PeriodRaw: "Period 1", Details: "08:00", Subject: "Math"}},
		},
		cycles: map[string]models.Cycle{
			"absent": models.CycleHigh,
			"c1":     models.CycleHigh,
			"c3":     models.CycleHigh,
		},
		// Cara would win alphabetically but carries the heavier week.
		weekly: map[string]int{"c1": 12, "c3": 20},
	}
	svc, _, _ := newCoverFixture(catalog)

	created, err := svc.AssignForRecord(context.Background(), "tn1", coverRecord())
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, "Zara Math", created[0].CoverTeacher)
}

func TestAssignForRecordTwoCoverCap(t *testing.T) {
	slots := []models.ScheduleEntry{
		{Period: "P1", PeriodRaw: "Period 1", Details: "a", Subject: "Math"},
		{Period: "P2", PeriodRaw: "Period 2", Details: "b", Subject: "Math"},
		{Period: "P3", PeriodRaw: "Period 3", Details: "c", Subject: "Math"},
	}
	catalog := &mockCatalog{
		teachers: []models.Teacher{
			{ID: "absent", FullName: "Absent One", Email: "absent@school.ae", Subject: "Math", Slug: "absent_one"},
			{ID: "c1", FullName: "Zara Math", Email: "zara@school.ae", Subject: "Math", Slug: "zara_math"},
			{ID: "c2", FullName: "Bob English", Email: "bob@school.ae", Subject: "English", Slug: "bob_english"},
		},
		schedules: map[string][]models.ScheduleEntry{"absent|Mo": slots},
		cycles: map[string]models.Cycle{
			"absent": models.CycleMiddle,
			"c1":     models.CycleMiddle,
			"c2":     models.CycleMiddle,
		},
	}
	svc, covers, _ := newCoverFixture(catalog)

	created, err := svc.AssignForRecord(context.Background(), "tn1", coverRecord())
	require.NoError(t, err)
	require.Len(t, created, 3)

	perSlug := map[string]int{}
	for _, a := range covers.rows {
		perSlug[a.CoverSlug]++
	}
	// Zara carries the subject match but stops at two covers on the day.
	assert.Equal(t, 2, perSlug["zara_math"])
	assert.Equal(t, 1, perSlug["bob_english"])
}

func TestAssignForRecordIdempotent(t *testing.T) {
	catalog := &mockCatalog{
		teachers: coverFixtureTeachers(),
		schedules: map[string][]models.ScheduleEntry{
			"absent|Mo": {{Period: "P1", PeriodRaw: "Period 1", Details: "08:00", Subject: "Math"}},
		},
		cycles: map[string]models.Cycle{"absent": models.CycleHigh, "c1": models.CycleHigh},
	}
	svc, covers, _ := newCoverFixture(catalog)
	rec := coverRecord()

	first, err := svc.AssignForRecord(context.Background(), "tn1", rec)
	require.NoError(t, err)
	second, err := svc.AssignForRecord(context.Background(), "tn1", rec)
	require.NoError(t, err)

	assert.Len(t, first, 1)
	assert.Empty(t, second)
	assert.Len(t, covers.rows, 1)
}

func TestAssignForRecordSynthesizesGeneralSlot(t *testing.T) {
	catalog := &mockCatalog{
		teachers: coverFixtureTeachers(),
		cycles:   map[string]models.Cycle{"absent": models.CycleGeneral},
	}
	svc, _, _ := newCoverFixture(catalog)

	created, err := svc.AssignForRecord(context.Background(), "tn1", coverRecord())
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, "General", created[0].PeriodLabel)
}

func TestAssignForRecordSkipsWeekends(t *testing.T) {
	catalog := &mockCatalog{
		teachers: coverFixtureTeachers(),
		cycles:   map[string]models.Cycle{"absent": models.CycleGeneral},
	}
	svc, covers, _ := newCoverFixture(catalog)

	rec := coverRecord()
	// Saturday and Sunday before the Monday.
	rec.LeaveStart = time.Date(2025, 3, 8, 0, 0, 0, 0, time.UTC)
	rec.LeaveEnd = time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC)

	created, err := svc.AssignForRecord(context.Background(), "tn1", rec)
	require.NoError(t, err)
	assert.Empty(t, created)
	assert.Empty(t, covers.rows)
}

func TestAssignForRecordSkipsAbsentCandidates(t *testing.T) {
	catalog := &mockCatalog{
		teachers: coverFixtureTeachers(),
		schedules: map[string][]models.ScheduleEntry{
			"absent|Mo": {{Period: "P1", PeriodRaw: "Period 1", Details: "08:00", Subject: "Math"}},
		},
		cycles: map[string]models.Cycle{
			"absent": models.CycleHigh,
			"c1":     models.CycleHigh,
			"c3":     models.CycleHigh,
		},
	}
	svc, _, records := newCoverFixture(catalog)
	records.absent = map[string][]string{"2025-03-10": {"cara@school.ae"}}

	created, err := svc.AssignForRecord(context.Background(), "tn1", coverRecord())
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, "Zara Math", created[0].CoverTeacher)
}

func TestBackfillSkipsCoveredRequests(t *testing.T) {
	catalog := &mockCatalog{
		teachers: coverFixtureTeachers(),
		cycles:   map[string]models.Cycle{"absent": models.CycleGeneral},
	}
	svc, covers, records := newCoverFixture(catalog)
	records.approved = []models.LeaveRecord{*coverRecord()}

	created, err := svc.Backfill(context.Background(), "tn1")
	require.NoError(t, err)
	assert.Equal(t, 1, created)
	assert.Len(t, covers.rows, 1)

	created, err = svc.Backfill(context.Background(), "tn1")
	require.NoError(t, err)
	assert.Zero(t, created)
}
