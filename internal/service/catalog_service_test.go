package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/school-ops-api/internal/models"
)

type staticSchedules struct {
	entries []models.ScheduleEntry
}

func (s *staticSchedules) ListAll(ctx context.Context, tenantID string) ([]models.ScheduleEntry, error) {
	return s.entries, nil
}

type staticTeachers struct {
	teachers []models.Teacher
}

func (s *staticTeachers) ListActive(ctx context.Context, tenantID string) ([]models.Teacher, error) {
	return s.teachers, nil
}

func TestCanonicalPeriod(t *testing.T) {
	cases := map[string]string{
		"P1 7:30 - 8:20":       "P1",
		"Period 1 7:50 - 8:45": "P1",
		"p3":                   "P3",
		"Homeroom 7:15":        "Homeroom",
		"Assembly":             "Assembly",
		"P9 mystery":           "P9 mystery",
	}
	for raw, want := range cases {
		assert.Equal(t, want, CanonicalPeriod(raw), raw)
	}
	// Canonicalization is idempotent.
	for raw := range cases {
		once := CanonicalPeriod(raw)
		assert.Equal(t, once, CanonicalPeriod(once), raw)
	}
}

func TestPeriodRankUnknownLast(t *testing.T) {
	assert.Less(t, PeriodRank("Homeroom"), PeriodRank("P1"))
	assert.Less(t, PeriodRank("P7"), PeriodRank("Assembly"))
}

func newCatalogFixture(t *testing.T) *CatalogService {
	t.Helper()
	schedules := &staticSchedules{entries: []models.ScheduleEntry{
		{TeacherID: "t1", DayCode: "Mo", Period: "Period 1 7:50 - 8:45", PeriodRaw: "Period 1 7:50 - 8:45", Details: "G10-A Math", GradeDetected: "G10", Subject: "Math"},
		{TeacherID: "t1", DayCode: "Mo", Period: "P2", PeriodRaw: "P2", Details: "G11-B Math", GradeDetected: "G11", Subject: "Math"},
		{TeacherID: "t2", DayCode: "Mo", Period: "P1", PeriodRaw: "P1", Details: "G6-A English", GradeDetected: "G6", Subject: "English"},
	}}
	teachers := &staticTeachers{teachers: []models.Teacher{
		{ID: "t1", FullName: "Alice", Email: "alice@school.ae", Subject: "Math"},
		{ID: "t2", FullName: "Bob", Email: "bob@school.ae", Subject: "English"},
		{ID: "t3", FullName: "Cara", Email: "cara@school.ae", Subject: "Science", GradeLevel: "G7"},
	}}
	svc := NewCatalogService(schedules, teachers, nil)
	require.NoError(t, svc.Refresh(context.Background(), "tn1"))
	return svc
}

func TestCatalogAvailability(t *testing.T) {
	svc := newCatalogFixture(t)

	free := svc.TeachersAvailable("tn1", "Mo", "P1")
	require.Len(t, free, 1)
	assert.Equal(t, "t3", free[0].ID)

	busy := svc.TeachersOccupied("tn1", "Mo", "P1")
	require.Len(t, busy, 2)

	// Raw labels canonicalize before lookup.
	freeRaw := svc.TeachersAvailable("tn1", "Mo", "Period 1 7:50 - 8:45")
	require.Len(t, freeRaw, 1)
	assert.Equal(t, "t3", freeRaw[0].ID)
}

func TestCatalogAvailabilityEntriesShape(t *testing.T) {
	svc := newCatalogFixture(t)

	entries := svc.AvailabilityEntries("tn1", "Mo", "P1")
	require.Len(t, entries, 1)
	assert.Equal(t, models.AvailabilityEntry{
		Email:        "cara@school.ae",
		LevelLabel:   "General",
		Subject:      "Science",
		PrimaryClass: "G7",
	}, entries[0])

	// A scheduled teacher surfaces with their phase label once free.
	moP3 := svc.AvailabilityEntries("tn1", "Mo", "P3")
	labels := map[string]string{}
	for _, e := range moP3 {
		labels[e.Email] = e.LevelLabel
	}
	assert.Equal(t, "High School", labels["alice@school.ae"])
	assert.Equal(t, "Middle School", labels["bob@school.ae"])
}

func TestCatalogWeeklyLoad(t *testing.T) {
	svc := newCatalogFixture(t)

	assert.Equal(t, 2, svc.WeeklyLoad("tn1", "t1"))
	assert.Equal(t, 1, svc.WeeklyLoad("tn1", "t2"))
	assert.Zero(t, svc.WeeklyLoad("tn1", "t3"))
	assert.Zero(t, svc.WeeklyLoad("missing-tenant", "t1"))
}

func TestCatalogCyclesAndSummaries(t *testing.T) {
	svc := newCatalogFixture(t)

	assert.Equal(t, models.CycleHigh, svc.Cycle("tn1", "t1"))
	assert.Equal(t, models.CycleMiddle, svc.Cycle("tn1", "t2"))
	assert.Equal(t, models.CycleGeneral, svc.Cycle("tn1", "t3"))
	assert.Equal(t, []int{10, 11}, svc.GradeLevels("tn1", "t1"))

	// High cycle: 7 periods Monday, 5 Friday.
	mo := svc.DaySummary("tn1", "t1", "Mo")
	assert.Equal(t, models.DaySummary{ScheduledCount: 2, MaxPeriods: 7, FreePeriods: 5}, mo)
	fr := svc.DaySummary("tn1", "t1", "Fr")
	assert.Equal(t, models.DaySummary{ScheduledCount: 0, MaxPeriods: 5, FreePeriods: 5}, fr)

	// Middle cycle: 6 otherwise, 3 Friday.
	assert.Equal(t, 6, svc.DaySummary("tn1", "t2", "Tu").MaxPeriods)
	assert.Equal(t, 3, svc.DaySummary("tn1", "t2", "Fr").MaxPeriods)
}

func TestCatalogTeacherByEmail(t *testing.T) {
	svc := newCatalogFixture(t)
	teacher, ok := svc.TeacherByEmail("tn1", "ALICE@school.ae")
	require.True(t, ok)
	assert.Equal(t, "t1", teacher.ID)

	_, ok = svc.TeacherByEmail("tn1", "nobody@school.ae")
	assert.False(t, ok)
}
