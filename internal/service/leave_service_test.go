package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/school-ops-api/internal/models"
	"github.com/noah-isme/school-ops-api/pkg/civiltime"
	appErrors "github.com/noah-isme/school-ops-api/pkg/errors"
	"github.com/noah-isme/school-ops-api/pkg/jobs"
)

type mockLeaveRepo struct {
	items     map[string]*models.LeaveRequest
	pending   map[string]bool
	messages  []models.LeaveMessage
	attempts  []models.AbsenceThresholdAttempt
	sweep     []models.LeaveRequest
	updates   int
	createErr error
}

func (m *mockLeaveRepo) key(teacherID string, date time.Time) string {
	return teacherID + "|" + date.Format("2006-01-02")
}

func (m *mockLeaveRepo) Create(ctx context.Context, leave *models.LeaveRequest) error {
	if m.createErr != nil {
		return m.createErr
	}
	if m.items == nil {
		m.items = make(map[string]*models.LeaveRequest)
	}
	leave.CreatedAt = time.Now().UTC()
	cp := *leave
	m.items[leave.ID] = &cp
	return nil
}

func (m *mockLeaveRepo) Update(ctx context.Context, leave *models.LeaveRequest) error {
	m.updates++
	cp := *leave
	if m.items == nil {
		m.items = make(map[string]*models.LeaveRequest)
	}
	m.items[leave.ID] = &cp
	return nil
}

func (m *mockLeaveRepo) FindByID(ctx context.Context, tenantID, id string) (*models.LeaveRequest, error) {
	if leave, ok := m.items[id]; ok {
		cp := *leave
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockLeaveRepo) HasPendingOnDate(ctx context.Context, tenantID, teacherID string, leaveDate time.Time) (bool, error) {
	return m.pending[m.key(teacherID, leaveDate)], nil
}

func (m *mockLeaveRepo) List(ctx context.Context, tenantID string, filter models.LeaveFilter) ([]models.LeaveRequest, int, error) {
	var out []models.LeaveRequest
	for _, leave := range m.items {
		if filter.TeacherID != "" && leave.TeacherID != filter.TeacherID {
			continue
		}
		out = append(out, *leave)
	}
	return out, len(out), nil
}

func (m *mockLeaveRepo) AppendMessage(ctx context.Context, msg *models.LeaveMessage) error {
	m.messages = append(m.messages, *msg)
	return nil
}

func (m *mockLeaveRepo) ListMessages(ctx context.Context, tenantID, excuseID string) ([]models.LeaveMessage, error) {
	var out []models.LeaveMessage
	for _, msg := range m.messages {
		if msg.ExcuseID == excuseID {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (m *mockLeaveRepo) RecordThresholdAttempt(ctx context.Context, attempt *models.AbsenceThresholdAttempt) error {
	m.attempts = append(m.attempts, *attempt)
	return nil
}

func (m *mockLeaveRepo) ListPendingSickMissing(ctx context.Context) ([]models.LeaveRequest, error) {
	return m.sweep, nil
}

type mockTeacherReader struct {
	items map[string]*models.Teacher
}

func (m *mockTeacherReader) FindByID(ctx context.Context, tenantID, id string) (*models.Teacher, error) {
	if t, ok := m.items[id]; ok {
		cp := *t
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

type mockNotifier struct {
	adminNew    int
	receipts    int
	reviews     int
	gradeTeam   []string
	threads     []models.LeaveMessage
	reminders   []string
	remindErr   error
	invalidated []string
}

func (m *mockNotifier) NotifyAdminsNewLeave(ctx context.Context, teacher *models.Teacher, leave *models.LeaveRequest) {
	m.adminNew++
}

func (m *mockNotifier) NotifyTeacherReceipt(ctx context.Context, teacher *models.Teacher, leave *models.LeaveRequest) {
	m.receipts++
}

func (m *mockNotifier) NotifyTeacherReview(ctx context.Context, teacher *models.Teacher, leave *models.LeaveRequest) {
	m.reviews++
}

func (m *mockNotifier) NotifyGradeTeamApproved(ctx context.Context, teacher *models.Teacher, leave *models.LeaveRequest) {
	m.gradeTeam = append(m.gradeTeam, leave.ID)
}

func (m *mockNotifier) NotifyThreadMessage(ctx context.Context, teacher *models.Teacher, leave *models.LeaveRequest, msg *models.LeaveMessage) {
	m.threads = append(m.threads, *msg)
}

func (m *mockNotifier) NotifyTeacherReminder(ctx context.Context, teacher *models.Teacher, leave *models.LeaveRequest, remaining int) error {
	if m.remindErr != nil {
		return m.remindErr
	}
	m.reminders = append(m.reminders, leave.ID)
	return nil
}

func (m *mockNotifier) NotifyTeacherInvalidated(ctx context.Context, teacher *models.Teacher, leave *models.LeaveRequest) {
	m.invalidated = append(m.invalidated, leave.ID)
}

type mockWebhook struct {
	emitted []models.LeaveStatus
}

func (m *mockWebhook) EmitAsync(teacher *models.Teacher, leave *models.LeaveRequest) {
	m.emitted = append(m.emitted, leave.Status)
}

type mockArchiveQueue struct {
	jobs []jobs.Job
}

func (m *mockArchiveQueue) Enqueue(job jobs.Job) error {
	m.jobs = append(m.jobs, job)
	return nil
}

func fixedCivilNow(t *testing.T, at time.Time) {
	t.Helper()
	prev := civiltime.Now
	civiltime.Now = func() time.Time { return at.In(civiltime.Zone) }
	t.Cleanup(func() { civiltime.Now = prev })
}

func newLeaveFixture() (*LeaveService, *mockLeaveRepo, *mockNotifier, *mockWebhook, *mockArchiveQueue) {
	repo := &mockLeaveRepo{}
	teachers := &mockTeacherReader{items: map[string]*models.Teacher{
		"t1": {ID: "t1", TenantID: "tn1", FullName: "Alice Ahmed", Email: "alice@school.ae", Subject: "Math", Role: models.RoleTeacher, Slug: "alice_ahmed", Active: true},
	}}
	mail := &mockNotifier{}
	webhook := &mockWebhook{}
	queue := &mockArchiveQueue{}
	svc := NewLeaveService(repo, teachers, nil, mail, webhook, queue, nil, nil)
	return svc, repo, mail, webhook, queue
}

func TestSubmitLeaveHappyPath(t *testing.T) {
	svc, _, mail, webhook, _ := newLeaveFixture()
	fixedCivilNow(t, time.Date(2025, 3, 10, 9, 0, 0, 0, civiltime.Zone))

	leave, err := svc.Submit(context.Background(), "tn1", "t1", SubmitLeaveRequest{
		LeaveType: "sickleave",
		Reason:    "flu",
		LeaveDate: "2025-03-11",
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, models.LeaveStatusPending, leave.Status)
	assert.Equal(t, models.AttachmentMissing, leave.AttachmentStatus)
	require.NotNil(t, leave.AttachmentDueAt)
	assert.WithinDuration(t, time.Now().UTC().Add(5*24*time.Hour), *leave.AttachmentDueAt, time.Minute)
	assert.Equal(t, 1, mail.adminNew)
	assert.Equal(t, 1, mail.receipts)
	require.Len(t, webhook.emitted, 1)
	assert.Equal(t, models.LeaveStatusPending, webhook.emitted[0])
}

func TestSubmitSickLeaveBlackoutWindow(t *testing.T) {
	svc, repo, _, _, _ := newLeaveFixture()
	fixedCivilNow(t, time.Date(2025, 3, 11, 6, 0, 0, 0, civiltime.Zone))

	_, err := svc.Submit(context.Background(), "tn1", "t1", SubmitLeaveRequest{
		LeaveType: "sickleave",
		Reason:    "flu",
		LeaveDate: "2025-03-11",
	}, nil)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrSubmissionWindow.Code, appErrors.FromError(err).Code)
	require.Len(t, repo.attempts, 1)
	assert.Equal(t, "t1", repo.attempts[0].TeacherID)
}

func TestSubmitSickLeaveBlackoutOnlySameDay(t *testing.T) {
	svc, repo, _, _, _ := newLeaveFixture()
	fixedCivilNow(t, time.Date(2025, 3, 11, 6, 0, 0, 0, civiltime.Zone))

	_, err := svc.Submit(context.Background(), "tn1", "t1", SubmitLeaveRequest{
		LeaveType: "sickleave",
		Reason:    "appointment",
		LeaveDate: "2025-03-12",
	}, nil)
	require.NoError(t, err)
	assert.Empty(t, repo.attempts)
}

func TestSubmitDuplicatePendingRejected(t *testing.T) {
	svc, repo, _, _, _ := newLeaveFixture()
	fixedCivilNow(t, time.Date(2025, 3, 10, 9, 0, 0, 0, civiltime.Zone))
	date := time.Date(2025, 3, 11, 0, 0, 0, 0, civiltime.Zone)
	repo.pending = map[string]bool{repo.key("t1", date): true}

	_, err := svc.Submit(context.Background(), "tn1", "t1", SubmitLeaveRequest{
		LeaveType: "sickleave",
		Reason:    "flu",
		LeaveDate: "2025-03-11",
	}, nil)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestSubmitValidationRules(t *testing.T) {
	svc, _, _, _, _ := newLeaveFixture()
	fixedCivilNow(t, time.Date(2025, 3, 10, 9, 0, 0, 0, civiltime.Zone))

	cases := []struct {
		name string
		req  SubmitLeaveRequest
	}{
		{"unknown type", SubmitLeaveRequest{LeaveType: "vacation", Reason: "x", LeaveDate: "2025-03-11"}},
		{"past date", SubmitLeaveRequest{LeaveType: "sickleave", Reason: "x", LeaveDate: "2025-03-01"}},
		{"end before start", SubmitLeaveRequest{LeaveType: "sickleave", Reason: "x", LeaveDate: "2025-03-12", EndDate: "2025-03-11"}},
		{"offsite missing times", SubmitLeaveRequest{LeaveType: "conference_offsite", Reason: "x", LeaveDate: "2025-03-12"}},
		{"offsite inverted times", SubmitLeaveRequest{LeaveType: "training_offsite", Reason: "x", LeaveDate: "2025-03-12", StartTime: "10:00", EndTime: "09:00"}},
		{"early missing start", SubmitLeaveRequest{LeaveType: "early_leave_request", Reason: "x", LeaveDate: "2025-03-12"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Submit(context.Background(), "tn1", "t1", tc.req, nil)
			require.Error(t, err)
			assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
		})
	}
}

func TestReviewApproveWithoutDocumentNeedsOverride(t *testing.T) {
	svc, repo, mail, webhook, _ := newLeaveFixture()
	repo.items = map[string]*models.LeaveRequest{
		"l1": {
			ID: "l1", TenantID: "tn1", TeacherID: "t1",
			LeaveType: models.LeaveTypeSick, Status: models.LeaveStatusPending,
			AttachmentRequired: true, AttachmentStatus: models.AttachmentMissing,
			LeaveDate: time.Date(2025, 3, 11, 0, 0, 0, 0, civiltime.Zone),
		},
	}
	admin := &models.JWTClaims{TenantID: "tn1", Role: models.RoleAdmin, Email: "admin@school.ae"}

	_, err := svc.Review(context.Background(), admin, "l1", ReviewLeaveRequest{Status: "approved"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)

	leave, err := svc.Review(context.Background(), admin, "l1", ReviewLeaveRequest{Status: "approved", OverrideAttachment: true})
	require.NoError(t, err)
	assert.Equal(t, models.LeaveStatusApproved, leave.Status)
	assert.Equal(t, models.AttachmentApproved, leave.AttachmentStatus)
	assert.Equal(t, "admin@school.ae", leave.ReviewedBy)
	assert.Equal(t, 1, mail.reviews)
	require.Len(t, webhook.emitted, 1)
	assert.Equal(t, models.LeaveStatusApproved, webhook.emitted[0])
}

func TestSubmitRacingDuplicateMapsToConflict(t *testing.T) {
	svc, repo, _, _, _ := newLeaveFixture()
	fixedCivilNow(t, time.Date(2025, 3, 10, 9, 0, 0, 0, civiltime.Zone))
	repo.createErr = fmt.Errorf("create leave request: %w", appErrors.ErrUniqueViolation)

	_, err := svc.Submit(context.Background(), "tn1", "t1", SubmitLeaveRequest{
		LeaveType: "sickleave",
		Reason:    "flu",
		LeaveDate: "2025-03-11",
	}, nil)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestReviewApprovedSickNotifiesGradeTeam(t *testing.T) {
	svc, repo, mail, _, _ := newLeaveFixture()
	repo.items = map[string]*models.LeaveRequest{
		"l1": {
			ID: "l1", TenantID: "tn1", TeacherID: "t1",
			LeaveType: models.LeaveTypeSick, Status: models.LeaveStatusPending,
			AttachmentRequired: true, AttachmentStatus: models.AttachmentSubmitted,
			AttachmentPath: "staged/doc.pdf",
			LeaveDate:      time.Date(2025, 3, 11, 0, 0, 0, 0, civiltime.Zone),
		},
		"l2": {
			ID: "l2", TenantID: "tn1", TeacherID: "t1",
			LeaveType: models.LeaveTypeSick, Status: models.LeaveStatusPending,
			AttachmentRequired: true, AttachmentStatus: models.AttachmentSubmitted,
			AttachmentPath: "staged/doc2.pdf",
			LeaveDate:      time.Date(2025, 3, 12, 0, 0, 0, 0, civiltime.Zone),
		},
	}
	admin := &models.JWTClaims{TenantID: "tn1", Role: models.RoleAdmin, Email: "admin@school.ae"}

	_, err := svc.Review(context.Background(), admin, "l1", ReviewLeaveRequest{Status: "approved"})
	require.NoError(t, err)
	assert.Equal(t, []string{"l1"}, mail.gradeTeam)

	// Rejections stay between the admin and the teacher.
	_, err = svc.Review(context.Background(), admin, "l2", ReviewLeaveRequest{Status: "rejected"})
	require.NoError(t, err)
	assert.Equal(t, []string{"l1"}, mail.gradeTeam)
}

func TestAddMessageNotifiesCounterparty(t *testing.T) {
	svc, repo, mail, _, _ := newLeaveFixture()
	repo.items = map[string]*models.LeaveRequest{
		"l1": {ID: "l1", TenantID: "tn1", TeacherID: "t1", Status: models.LeaveStatusPending},
	}
	teacher := &models.JWTClaims{TenantID: "tn1", TeacherID: "t1", Role: models.RoleTeacher}
	admin := &models.JWTClaims{TenantID: "tn1", Role: models.RoleAdmin, Email: "admin@school.ae"}

	_, err := svc.AddMessage(context.Background(), teacher, "l1", "doctor note coming tomorrow")
	require.NoError(t, err)
	_, err = svc.AddMessage(context.Background(), admin, "l1", "noted, thank you")
	require.NoError(t, err)

	require.Len(t, mail.threads, 2)
	assert.Equal(t, models.SenderTeacher, mail.threads[0].Sender)
	assert.Equal(t, models.SenderAdmin, mail.threads[1].Sender)
}

func TestReviewRequiresSuperAdmin(t *testing.T) {
	svc, _, _, _, _ := newLeaveFixture()
	teacher := &models.JWTClaims{TenantID: "tn1", TeacherID: "t1", Role: models.RoleTeacher}

	_, err := svc.Review(context.Background(), teacher, "l1", ReviewLeaveRequest{Status: "approved"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestMessagesClosedAfterReview(t *testing.T) {
	svc, repo, _, _, _ := newLeaveFixture()
	repo.items = map[string]*models.LeaveRequest{
		"l1": {ID: "l1", TenantID: "tn1", TeacherID: "t1", Status: models.LeaveStatusApproved},
	}
	claims := &models.JWTClaims{TenantID: "tn1", TeacherID: "t1", Role: models.RoleTeacher}

	_, err := svc.AddMessage(context.Background(), claims, "l1", "any news?")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestAcknowledgeNoDocument(t *testing.T) {
	svc, repo, _, webhook, _ := newLeaveFixture()
	repo.items = map[string]*models.LeaveRequest{
		"l1": {
			ID: "l1", TenantID: "tn1", TeacherID: "t1",
			LeaveType: models.LeaveTypeSick, Status: models.LeaveStatusPending,
			AttachmentRequired: true, AttachmentStatus: models.AttachmentMissing,
		},
	}
	claims := &models.JWTClaims{TenantID: "tn1", TeacherID: "t1", Role: models.RoleTeacher}

	leave, err := svc.AcknowledgeNoDocument(context.Background(), claims, "l1")
	require.NoError(t, err)
	assert.Equal(t, models.LeaveStatusInvalid, leave.Status)
	assert.Equal(t, models.AttachmentDeclined, leave.AttachmentStatus)
	assert.Equal(t, "Alice Ahmed", leave.ReviewedBy)
	require.Len(t, webhook.emitted, 1)
}

func TestReminderSweepStateMachine(t *testing.T) {
	repo := &mockLeaveRepo{}
	teachers := &mockTeacherReader{items: map[string]*models.Teacher{
		"t1": {ID: "t1", TenantID: "tn1", FullName: "Alice Ahmed", Email: "alice@school.ae"},
	}}
	mail := &mockNotifier{}
	webhook := &mockWebhook{}
	svc := NewReminderService(repo, teachers, mail, webhook, nil, time.Hour, nil)

	created := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	due := created.Add(5 * 24 * time.Hour)
	leave := models.LeaveRequest{
		ID: "l1", TenantID: "tn1", TeacherID: "t1",
		LeaveType: models.LeaveTypeSick, Status: models.LeaveStatusPending,
		AttachmentRequired: true, AttachmentStatus: models.AttachmentMissing,
		AttachmentDueAt: &due, CreatedAt: created,
	}

	// Five daily sweeps each send one reminder.
	for day := 1; day <= 5; day++ {
		repo.sweep = []models.LeaveRequest{leave}
		svc.now = func() time.Time { return created.Add(time.Duration(day) * 24 * time.Hour) }
		require.NoError(t, svc.Sweep(context.Background()))
		leave = *repo.items["l1"]
		assert.Equal(t, day, leave.AttachmentReminderCount)
	}
	assert.Len(t, mail.reminders, 5)

	// A sweep inside the 24h spacing does nothing.
	repo.sweep = []models.LeaveRequest{leave}
	svc.now = func() time.Time { return created.Add(5*24*time.Hour - time.Hour) }
	require.NoError(t, svc.Sweep(context.Background()))
	assert.Equal(t, 5, repo.items["l1"].AttachmentReminderCount)
	assert.Len(t, mail.reminders, 5)

	// Past the deadline the sixth event is the auto-invalidation.
	repo.sweep = []models.LeaveRequest{leave}
	svc.now = func() time.Time { return due.Add(time.Second) }
	require.NoError(t, svc.Sweep(context.Background()))
	final := repo.items["l1"]
	assert.Equal(t, models.LeaveStatusInvalid, final.Status)
	assert.Equal(t, models.AttachmentDeclined, final.AttachmentStatus)
	assert.Equal(t, "System", final.ReviewedBy)
	assert.True(t, strings.Contains(final.AdminComment, "Automatically marked invalid after 5 days without a sick leave document."))
	assert.Equal(t, 5, final.AttachmentReminderCount)
	assert.Len(t, mail.invalidated, 1)
}
