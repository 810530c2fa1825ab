package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/school-ops-api/internal/models"
	"github.com/noah-isme/school-ops-api/pkg/config"
)

type sentMail struct {
	to      []string
	subject string
	html    string
}

type mockSender struct {
	sent []sentMail
	err  error
}

func (m *mockSender) Send(ctx context.Context, to []string, subject, html string) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{to: to, subject: subject, html: html})
	return nil
}

func newMailFixture() (*MailService, *mockSender) {
	sender := &mockSender{}
	cfg := config.MailConfig{
		SenderProfile:   "noreply@school.ae",
		AdminRecipients: []string{"hr@school.ae", "principal@school.ae"},
		GradeRecipients: map[string][]string{
			"10":  {"grade10-lead@school.ae"},
			"ALL": {"all-leads@school.ae"},
		},
	}
	return NewMailService(sender, cfg, nil), sender
}

func mailTeacher(grade string) *models.Teacher {
	return &models.Teacher{
		ID: "t1", TenantID: "tn1", FullName: "Alice Ahmed",
		Email: "alice@school.ae", Subject: "Math",
		GradeLevel: grade, Role: models.RoleTeacher, Active: true,
	}
}

func approvedSickLeave() *models.LeaveRequest {
	return &models.LeaveRequest{
		ID: "l1", TenantID: "tn1", TeacherID: "t1",
		LeaveType: models.LeaveTypeSick, Status: models.LeaveStatusApproved,
		AttachmentRequired: true,
		LeaveDate:          time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC),
	}
}

func TestGradeRecipientsFallsBackToAll(t *testing.T) {
	svc, _ := newMailFixture()

	assert.Equal(t, []string{"grade10-lead@school.ae"}, svc.GradeRecipients(10))
	assert.Equal(t, []string{"all-leads@school.ae"}, svc.GradeRecipients(7))
}

func TestNotifyGradeTeamApprovedTargetsGradeList(t *testing.T) {
	svc, sender := newMailFixture()

	svc.NotifyGradeTeamApproved(context.Background(), mailTeacher("G10"), approvedSickLeave())
	require.Len(t, sender.sent, 1)
	assert.Equal(t, []string{"grade10-lead@school.ae"}, sender.sent[0].to)
	assert.Contains(t, sender.sent[0].subject, "Alice Ahmed")

	// Unparseable grades go to the catch-all list.
	svc.NotifyGradeTeamApproved(context.Background(), mailTeacher("KG"), approvedSickLeave())
	require.Len(t, sender.sent, 2)
	assert.Equal(t, []string{"all-leads@school.ae"}, sender.sent[1].to)
}

func TestNotifyThreadMessageRoutesToOtherSide(t *testing.T) {
	svc, sender := newMailFixture()
	teacher := mailTeacher("G10")
	leave := approvedSickLeave()

	svc.NotifyThreadMessage(context.Background(), teacher, leave, &models.LeaveMessage{Sender: models.SenderTeacher, Body: "note attached"})
	svc.NotifyThreadMessage(context.Background(), teacher, leave, &models.LeaveMessage{Sender: models.SenderAdmin, Body: "thanks"})

	require.Len(t, sender.sent, 2)
	assert.Equal(t, []string{"hr@school.ae", "principal@school.ae"}, sender.sent[0].to)
	assert.Equal(t, []string{"alice@school.ae"}, sender.sent[1].to)
}

func TestNotifyDriveChangeGoesToAdmins(t *testing.T) {
	svc, sender := newMailFixture()

	svc.NotifyDriveChange(context.Background(), mailTeacher("G10"), approvedSickLeave(), "Sick Leave Documents/2025-03-11/doc.pdf")
	require.Len(t, sender.sent, 1)
	assert.Equal(t, []string{"hr@school.ae", "principal@school.ae"}, sender.sent[0].to)
	assert.Contains(t, sender.sent[0].html, "Sick Leave Documents/2025-03-11/doc.pdf")
}

func TestNotifyTeacherReminderSurfacesDeliveryFailure(t *testing.T) {
	svc, sender := newMailFixture()
	sender.err = errors.New("graph throttled")

	err := svc.NotifyTeacherReminder(context.Background(), mailTeacher("G10"), approvedSickLeave(), 3)
	require.Error(t, err)

	// A disabled mailer counts as delivered.
	disabled := NewMailService(nil, config.MailConfig{}, nil)
	require.NoError(t, disabled.NotifyTeacherReminder(context.Background(), mailTeacher("G10"), approvedSickLeave(), 3))
}
