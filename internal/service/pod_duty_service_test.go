package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/school-ops-api/internal/models"
	"github.com/noah-isme/school-ops-api/pkg/civiltime"
)

type mockPodRepo struct {
	rows map[string]*models.PodDutyAssignment
	seq  int
}

func (m *mockPodRepo) add(a models.PodDutyAssignment) *models.PodDutyAssignment {
	if m.rows == nil {
		m.rows = make(map[string]*models.PodDutyAssignment)
	}
	if a.ID == "" {
		m.seq++
		a.ID = fmt.Sprintf("pd-%d", m.seq)
	}
	if a.AckStatus == "" {
		a.AckStatus = models.AckPending
	}
	m.rows[a.ID] = &a
	return m.rows[a.ID]
}

func (m *mockPodRepo) ListByDateGrade(ctx context.Context, tenantID string, date time.Time, grade int) ([]models.PodDutyAssignment, error) {
	var out []models.PodDutyAssignment
	for _, a := range m.rows {
		if a.AssignmentDate.Equal(date) && a.Grade == grade {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *mockPodRepo) ListByDate(ctx context.Context, tenantID string, date time.Time) ([]models.PodDutyAssignment, error) {
	var out []models.PodDutyAssignment
	for _, a := range m.rows {
		if a.AssignmentDate.Equal(date) {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *mockPodRepo) FindByID(ctx context.Context, tenantID, id string) (*models.PodDutyAssignment, error) {
	if a, ok := m.rows[id]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockPodRepo) SlotTaken(ctx context.Context, tenantID string, date time.Time, teacherID string, slotType models.SlotType, period *int) (bool, error) {
	for _, a := range m.rows {
		if !a.AssignmentDate.Equal(date) || a.TeacherID != teacherID || a.SlotType != slotType {
			continue
		}
		if period == nil && a.Period == nil {
			return true, nil
		}
		if period != nil && a.Period != nil && *period == *a.Period {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockPodRepo) Create(ctx context.Context, a *models.PodDutyAssignment) error {
	stored := m.add(*a)
	a.ID = stored.ID
	return nil
}

func (m *mockPodRepo) ReplaceForDateGrade(ctx context.Context, tenantID string, date time.Time, grade int, deleteIDs []string, add []models.PodDutyAssignment) error {
	for _, id := range deleteIDs {
		delete(m.rows, id)
	}
	for i := range add {
		add[i].AssignmentDate = date
		add[i].Grade = grade
		m.add(add[i])
	}
	return nil
}

func (m *mockPodRepo) SetAck(ctx context.Context, tenantID, id string, status models.AckStatus, note string) error {
	if a, ok := m.rows[id]; ok {
		a.AckStatus = status
		a.AckNote = note
		return nil
	}
	return sql.ErrNoRows
}

func (m *mockPodRepo) Delete(ctx context.Context, tenantID, id string) error {
	delete(m.rows, id)
	return nil
}

type mockAvailability struct {
	enabled bool
	entries []models.AvailabilityEntry
	err     error
}

func (m *mockAvailability) Enabled() bool { return m.enabled }

func (m *mockAvailability) Fetch(ctx context.Context, dayCode, period string) ([]models.AvailabilityEntry, error) {
	return m.entries, m.err
}

func podFixtureTeachers() map[string]*models.Teacher {
	return map[string]*models.Teacher{
		"t1": {ID: "t1", FullName: "Alice", Email: "alice@school.ae", Role: models.RoleTeacher, Slug: "alice"},
		"t2": {ID: "t2", FullName: "Bob", Email: "bob@school.ae", Role: models.RoleSLT, Slug: "bob"},
		"t3": {ID: "t3", FullName: "Cara", Email: "cara@school.ae", Role: models.RoleAdministrator, Slug: "cara"},
	}
}

func newPodFixture(avail availabilityFetcher) (*PodDutyService, *mockPodRepo, *mockCatalog) {
	repo := &mockPodRepo{}
	teachers := &mockTeacherReader{items: podFixtureTeachers()}
	catalog := &mockCatalog{teachers: []models.Teacher{
		*podFixtureTeachers()["t1"],
		*podFixtureTeachers()["t2"],
		*podFixtureTeachers()["t3"],
	}}
	svc := NewPodDutyService(repo, teachers, catalog, avail, nil, nil, nil)
	return svc, repo, catalog
}

func gradeLead(grade int) *models.JWTClaims {
	return &models.JWTClaims{TenantID: "tn1", TeacherID: "lead", Role: models.GradeLeadRole(grade)}
}

func TestSaveRosterRoleGates(t *testing.T) {
	svc, _, _ := newPodFixture(nil)
	period := 1

	// Wrong grade lead refused.
	_, err := svc.SaveRoster(context.Background(), gradeLead(7), SavePodRosterRequest{
		Date: "2025-03-10", Grade: 6,
		Slots: []PodSlotRequest{{SlotType: "period", Pod: "G6 Pod 1", Period: &period, TeacherID: "t1"}},
	})
	require.Error(t, err)

	// Administrator cannot fill any slot.
	_, err = svc.SaveRoster(context.Background(), gradeLead(6), SavePodRosterRequest{
		Date: "2025-03-10", Grade: 6,
		Slots: []PodSlotRequest{{SlotType: "period", Pod: "G6 Pod 1", Period: &period, TeacherID: "t3"}},
	})
	require.Error(t, err)

	// SLT excluded from break duty only.
	_, err = svc.SaveRoster(context.Background(), gradeLead(6), SavePodRosterRequest{
		Date: "2025-03-10", Grade: 6,
		Slots: []PodSlotRequest{{SlotType: "break", Pod: "GRADE_BREAK", TeacherID: "t2", BreakLocation: "Canteen"}},
	})
	require.Error(t, err)

	saved, err := svc.SaveRoster(context.Background(), gradeLead(6), SavePodRosterRequest{
		Date: "2025-03-10", Grade: 6,
		Slots: []PodSlotRequest{{SlotType: "period", Pod: "G6 Pod 1", Period: &period, TeacherID: "t2"}},
	})
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, models.AckPending, saved[0].AckStatus)
}

func TestSaveRosterBreakLocationRequired(t *testing.T) {
	svc, _, _ := newPodFixture(nil)

	_, err := svc.SaveRoster(context.Background(), gradeLead(6), SavePodRosterRequest{
		Date: "2025-03-10", Grade: 6,
		Slots: []PodSlotRequest{{SlotType: "break", Pod: "GRADE_BREAK", TeacherID: "t1"}},
	})
	require.Error(t, err)

	// Grade 11 break slots take no mandatory location.
	saved, err := svc.SaveRoster(context.Background(), gradeLead(11), SavePodRosterRequest{
		Date: "2025-03-10", Grade: 11,
		Slots: []PodSlotRequest{{SlotType: "break", Pod: "GRADE_BREAK", TeacherID: "t1"}},
	})
	require.NoError(t, err)
	require.Len(t, saved, 1)
}

func TestSaveRosterDiffKeepsAcks(t *testing.T) {
	svc, repo, _ := newPodFixture(nil)
	period := 2

	saved, err := svc.SaveRoster(context.Background(), gradeLead(6), SavePodRosterRequest{
		Date: "2025-03-10", Grade: 6,
		Slots: []PodSlotRequest{{SlotType: "period", Pod: "G6 Pod 1", Period: &period, TeacherID: "t1"}},
	})
	require.NoError(t, err)
	require.Len(t, saved, 1)
	require.NoError(t, repo.SetAck(context.Background(), "tn1", saved[0].ID, models.AckPresent, ""))

	// Re-saving the same set leaves the acknowledged row in place.
	saved, err = svc.SaveRoster(context.Background(), gradeLead(6), SavePodRosterRequest{
		Date: "2025-03-10", Grade: 6,
		Slots: []PodSlotRequest{{SlotType: "period", Pod: "G6 Pod 1", Period: &period, TeacherID: "t1"}},
	})
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, models.AckPresent, saved[0].AckStatus)

	// An empty set deletes everything.
	saved, err = svc.SaveRoster(context.Background(), gradeLead(6), SavePodRosterRequest{
		Date: "2025-03-10", Grade: 6, Slots: nil,
	})
	require.NoError(t, err)
	assert.Empty(t, saved)
}

func TestSaveRosterMovesTeacherWithinPeriod(t *testing.T) {
	svc, _, _ := newPodFixture(nil)
	period := 1

	saved, err := svc.SaveRoster(context.Background(), gradeLead(6), SavePodRosterRequest{
		Date: "2025-03-10", Grade: 6,
		Slots: []PodSlotRequest{{SlotType: "period", Pod: "G6 Pod 1", Period: &period, TeacherID: "t1"}},
	})
	require.NoError(t, err)
	require.Len(t, saved, 1)

	// The same save may shift Alice to the other pod in the same period.
	saved, err = svc.SaveRoster(context.Background(), gradeLead(6), SavePodRosterRequest{
		Date: "2025-03-10", Grade: 6,
		Slots: []PodSlotRequest{{SlotType: "period", Pod: "G6 Pod 2", Period: &period, TeacherID: "t1"}},
	})
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, "G6 Pod 2", saved[0].Pod)
}

func TestSaveRosterRefusesDoubleBooking(t *testing.T) {
	svc, repo, _ := newPodFixture(nil)
	period := 1

	// Within one submission Alice cannot hold both pods at the same period.
	_, err := svc.SaveRoster(context.Background(), gradeLead(6), SavePodRosterRequest{
		Date: "2025-03-10", Grade: 6,
		Slots: []PodSlotRequest{
			{SlotType: "period", Pod: "G6 Pod 1", Period: &period, TeacherID: "t1"},
			{SlotType: "period", Pod: "G6 Pod 2", Period: &period, TeacherID: "t1"},
		},
	})
	require.Error(t, err)
	assert.Empty(t, repo.rows)

	// A surviving row in another grade at the same time still blocks.
	date := time.Date(2025, 3, 10, 0, 0, 0, 0, civiltime.Zone)
	repo.add(models.PodDutyAssignment{AssignmentDate: date, Grade: 7, Pod: "G7 Pod 1", SlotType: models.SlotPeriod, Period: &period, TeacherID: "t1"})
	_, err = svc.SaveRoster(context.Background(), gradeLead(6), SavePodRosterRequest{
		Date: "2025-03-10", Grade: 6,
		Slots: []PodSlotRequest{{SlotType: "period", Pod: "G6 Pod 1", Period: &period, TeacherID: "t1"}},
	})
	require.Error(t, err)
}

func TestCandidatesFallBackToDirectory(t *testing.T) {
	svc, _, _ := newPodFixture(&mockAvailability{enabled: true, err: fmt.Errorf("connection refused")})
	date := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	candidates, err := svc.Candidates(context.Background(), "tn1", date, "Mo", "P1", true)
	require.NoError(t, err)
	// Administrator and SLT filtered out for break duty.
	require.Len(t, candidates, 1)
	assert.Equal(t, "Alice", candidates[0].FullName)
}

func TestCandidatesUnassignedFirst(t *testing.T) {
	avail := &mockAvailability{enabled: true, entries: []models.AvailabilityEntry{
		{Email: "alice@school.ae"},
		{Email: "bob@school.ae"},
	}}
	svc, repo, _ := newPodFixture(avail)
	date := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	period := 1
	repo.add(models.PodDutyAssignment{AssignmentDate: date, Grade: 6, Pod: "G6 Pod 1", SlotType: models.SlotPeriod, Period: &period, TeacherID: "t1"})

	candidates, err := svc.Candidates(context.Background(), "tn1", date, "Mo", "P1", false)
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	// Bob has no slot today so he sorts ahead of the already-assigned Alice.
	assert.Equal(t, "Bob", candidates[0].FullName)
	assert.Equal(t, "Alice", candidates[1].FullName)
}

func TestAcknowledgeRequiresNoteWhenUnavailable(t *testing.T) {
	svc, repo, _ := newPodFixture(nil)
	date := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	period := 1
	row := repo.add(models.PodDutyAssignment{AssignmentDate: date, Grade: 6, Pod: "G6 Pod 1", SlotType: models.SlotPeriod, Period: &period, TeacherID: "t1"})

	owner := &models.JWTClaims{TenantID: "tn1", TeacherID: "t1", Role: models.RoleTeacher}
	_, err := svc.Acknowledge(context.Background(), owner, row.ID, AckRequest{Status: "unavailable"})
	require.Error(t, err)

	updated, err := svc.Acknowledge(context.Background(), owner, row.ID, AckRequest{Status: "unavailable", Note: "off campus"})
	require.NoError(t, err)
	assert.Equal(t, models.AckUnavailable, updated.AckStatus)

	// Another teacher cannot acknowledge someone else's slot.
	stranger := &models.JWTClaims{TenantID: "tn1", TeacherID: "t9", Role: models.RoleTeacher}
	_, err = svc.Acknowledge(context.Background(), stranger, row.ID, AckRequest{Status: "present"})
	require.Error(t, err)
}
