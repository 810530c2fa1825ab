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
	appErrors "github.com/noah-isme/school-ops-api/pkg/errors"
)

type mockDutyRepo struct {
	items map[string]*models.DutyAssignment
	seq   int
}

func (m *mockDutyRepo) add(a models.DutyAssignment) *models.DutyAssignment {
	if m.items == nil {
		m.items = make(map[string]*models.DutyAssignment)
	}
	m.seq++
	a.ID = fmt.Sprintf("d-%d", m.seq)
	m.items[a.ID] = &a
	return m.items[a.ID]
}

func (m *mockDutyRepo) Create(ctx context.Context, a *models.DutyAssignment) error {
	created := m.add(*a)
	a.ID = created.ID
	return nil
}

func (m *mockDutyRepo) Exists(ctx context.Context, tenantID string, date time.Time, dutyType models.DutyType, teacherID string) (bool, error) {
	for _, a := range m.items {
		if a.AssignmentDate.Equal(date) && a.DutyType == dutyType && a.TeacherID == teacherID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockDutyRepo) ListByDate(ctx context.Context, tenantID string, date time.Time) ([]models.DutyAssignment, error) {
	var out []models.DutyAssignment
	for _, a := range m.items {
		if a.AssignmentDate.Equal(date) {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *mockDutyRepo) FindByID(ctx context.Context, tenantID, id string) (*models.DutyAssignment, error) {
	if a, ok := m.items[id]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockDutyRepo) SetAck(ctx context.Context, tenantID, id string, status models.AckStatus, note string) error {
	if a, ok := m.items[id]; ok {
		a.AckStatus = status
		a.AckNote = note
		return nil
	}
	return sql.ErrNoRows
}

func (m *mockDutyRepo) Delete(ctx context.Context, tenantID, id string) error {
	delete(m.items, id)
	return nil
}

func newDutyFixture() (*DutyService, *mockDutyRepo) {
	repo := &mockDutyRepo{}
	teachers := &mockTeacherReader{items: map[string]*models.Teacher{
		"t1": {ID: "t1", TenantID: "tn1", FullName: "Alice Ahmed", Role: models.RoleTeacher, Active: true},
		"t3": {ID: "t3", TenantID: "tn1", FullName: "Cara Costa", Role: models.RoleAdministrator, Active: true},
	}}
	return NewDutyService(repo, teachers, nil, nil), repo
}

func TestAssignDutyExcludesAdministrators(t *testing.T) {
	svc, _ := newDutyFixture()

	_, err := svc.Assign(context.Background(), "tn1", AssignDutyRequest{
		Date:      "2025-03-10",
		DutyType:  string(models.DutyMorning),
		Location:  models.DailyDutyLocations[0],
		TeacherID: "t3",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestAssignDutyDuplicateConflicts(t *testing.T) {
	svc, _ := newDutyFixture()

	req := AssignDutyRequest{
		Date:      "2025-03-10",
		DutyType:  string(models.DutyMorning),
		Location:  models.DailyDutyLocations[0],
		TeacherID: "t1",
	}
	_, err := svc.Assign(context.Background(), "tn1", req)
	require.NoError(t, err)

	_, err = svc.Assign(context.Background(), "tn1", req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestAssignDutyRejectsUnknownLocation(t *testing.T) {
	svc, _ := newDutyFixture()

	_, err := svc.Assign(context.Background(), "tn1", AssignDutyRequest{
		Date:      "2025-03-10",
		DutyType:  string(models.DutyMorning),
		Location:  "Staff Lounge",
		TeacherID: "t1",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestAcknowledgeDutyOwnerAndNote(t *testing.T) {
	svc, repo := newDutyFixture()
	assignment := repo.add(models.DutyAssignment{
		TenantID:       "tn1",
		AssignmentDate: time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		DutyType:       models.DutyMorning,
		TeacherID:      "t1",
		AckStatus:      models.AckPending,
	})

	owner := &models.JWTClaims{TenantID: "tn1", TeacherID: "t1", Role: models.RoleTeacher}

	// unavailable without a note is refused
	_, err := svc.Acknowledge(context.Background(), owner, assignment.ID, AckRequest{Status: string(models.AckUnavailable)})
	require.Error(t, err)

	// a stranger may not acknowledge someone else's slot
	stranger := &models.JWTClaims{TenantID: "tn1", TeacherID: "t9", Role: models.RoleTeacher}
	_, err = svc.Acknowledge(context.Background(), stranger, assignment.ID, AckRequest{Status: string(models.AckPresent)})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	got, err := svc.Acknowledge(context.Background(), owner, assignment.ID, AckRequest{Status: string(models.AckUnavailable), Note: "medical appointment"})
	require.NoError(t, err)
	assert.Equal(t, models.AckUnavailable, got.AckStatus)
	assert.Equal(t, "medical appointment", repo.items[assignment.ID].AckNote)
}
