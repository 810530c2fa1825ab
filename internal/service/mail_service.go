package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/school-ops-api/internal/models"
	"github.com/noah-isme/school-ops-api/pkg/config"
)

type mailSender interface {
	Send(ctx context.Context, to []string, subject, html string) error
}

// MailService composes and delivers the suite's notification emails.
// Sends are best-effort and never roll back a committed state change;
// failures are logged, and surfaced only to callers that budget their
// sends, like the reminder worker.
type MailService struct {
	sender mailSender
	cfg    config.MailConfig
	logger *zap.Logger
}

// NewMailService constructs a MailService.
func NewMailService(sender mailSender, cfg config.MailConfig, logger *zap.Logger) *MailService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MailService{sender: sender, cfg: cfg, logger: logger}
}

// send reports delivery failure to callers that track it; a disabled
// mailer or an empty recipient list counts as delivered.
func (s *MailService) send(ctx context.Context, to []string, subject, html string) error {
	if s.sender == nil || len(to) == 0 {
		return nil
	}
	if err := s.sender.Send(ctx, to, subject, html); err != nil {
		s.logger.Warn("email delivery failed",
			zap.Strings("to", to),
			zap.String("subject", subject),
			zap.Error(err))
		return err
	}
	return nil
}

// NotifyAdminsNewLeave broadcasts a fresh submission to the admin list.
func (s *MailService) NotifyAdminsNewLeave(ctx context.Context, teacher *models.Teacher, leave *models.LeaveRequest) {
	subject := fmt.Sprintf("New %s request from %s", leave.LeaveType, teacher.FullName)
	html := fmt.Sprintf(
		"<p><strong>%s</strong> submitted a %s request for %s.</p><p>Reason: %s</p>",
		teacher.FullName, leave.LeaveType, leave.LeaveDate.Format("2006-01-02"), leave.Reason)
	s.send(ctx, s.cfg.AdminRecipients, subject, html)
}

// NotifyTeacherReceipt confirms the submission to the teacher.
func (s *MailService) NotifyTeacherReceipt(ctx context.Context, teacher *models.Teacher, leave *models.LeaveRequest) {
	subject := fmt.Sprintf("Your %s request was received", leave.LeaveType)
	html := fmt.Sprintf(
		"<p>Dear %s,</p><p>Your %s request for %s was received and is pending review.</p>",
		teacher.FullName, leave.LeaveType, leave.LeaveDate.Format("2006-01-02"))
	s.send(ctx, []string{teacher.Email}, subject, html)
}

// NotifyTeacherReview tells the teacher the outcome of an admin review.
func (s *MailService) NotifyTeacherReview(ctx context.Context, teacher *models.Teacher, leave *models.LeaveRequest) {
	subject := fmt.Sprintf("Your %s request was %s", leave.LeaveType, leave.Status)
	var b strings.Builder
	fmt.Fprintf(&b, "<p>Dear %s,</p><p>Your %s request for %s is now <strong>%s</strong>.</p>",
		teacher.FullName, leave.LeaveType, leave.LeaveDate.Format("2006-01-02"), leave.Status)
	if leave.AdminComment != "" {
		fmt.Fprintf(&b, "<p>Comment: %s</p>", leave.AdminComment)
	}
	s.send(ctx, []string{teacher.Email}, subject, b.String())
}

// NotifyTeacherReminder nags the teacher for a missing sick leave
// document. The error return lets the reminder worker withhold its
// budget when delivery fails.
func (s *MailService) NotifyTeacherReminder(ctx context.Context, teacher *models.Teacher, leave *models.LeaveRequest, remaining int) error {
	subject := "Reminder: sick leave document required"
	html := fmt.Sprintf(
		"<p>Dear %s,</p><p>Your sick leave for %s still has no medical document. Please upload one within %d day(s) or the request will be marked invalid.</p>",
		teacher.FullName, leave.LeaveDate.Format("2006-01-02"), remaining)
	return s.send(ctx, []string{teacher.Email}, subject, html)
}

// NotifyTeacherInvalidated tells the teacher their request expired.
func (s *MailService) NotifyTeacherInvalidated(ctx context.Context, teacher *models.Teacher, leave *models.LeaveRequest) {
	subject := "Sick leave request marked invalid"
	html := fmt.Sprintf(
		"<p>Dear %s,</p><p>Your sick leave for %s was marked invalid because no medical document was submitted within 5 days.</p>",
		teacher.FullName, leave.LeaveDate.Format("2006-01-02"))
	s.send(ctx, []string{teacher.Email}, subject, html)
}

// NotifyDriveChange broadcasts an archive event to the admin list.
func (s *MailService) NotifyDriveChange(ctx context.Context, teacher *models.Teacher, leave *models.LeaveRequest, remotePath string) {
	subject := fmt.Sprintf("Sick leave document archived for %s", teacher.FullName)
	html := fmt.Sprintf("<p>The document for %s's sick leave on %s was archived to <code>%s</code>.</p>",
		teacher.FullName, leave.LeaveDate.Format("2006-01-02"), remotePath)
	s.send(ctx, s.cfg.AdminRecipients, subject, html)
}

// NotifyGradeTeamApproved tells a grade's notification list that one of
// its teachers had an absence approved, so cover planning can start.
func (s *MailService) NotifyGradeTeamApproved(ctx context.Context, teacher *models.Teacher, leave *models.LeaveRequest) {
	to := s.cfg.GradeRecipients["ALL"]
	if grade, err := strconv.Atoi(strings.TrimPrefix(strings.TrimSpace(teacher.GradeLevel), "G")); err == nil {
		to = s.GradeRecipients(grade)
	}
	subject := fmt.Sprintf("Approved absence: %s on %s", teacher.FullName, leave.LeaveDate.Format("2006-01-02"))
	html := fmt.Sprintf(
		"<p><strong>%s</strong> (%s) has an approved %s on %s. Please arrange cover.</p>",
		teacher.FullName, teacher.Subject, leave.LeaveType, leave.LeaveDate.Format("2006-01-02"))
	s.send(ctx, to, subject, html)
}

// NotifyThreadMessage routes a conversation entry to the other side of
// the thread: teacher posts go to the admin list, admin posts to the
// teacher.
func (s *MailService) NotifyThreadMessage(ctx context.Context, teacher *models.Teacher, leave *models.LeaveRequest, msg *models.LeaveMessage) {
	to := []string{teacher.Email}
	if msg.Sender == models.SenderTeacher {
		to = s.cfg.AdminRecipients
	}
	subject := fmt.Sprintf("New message on %s's %s request", teacher.FullName, leave.LeaveType)
	html := fmt.Sprintf("<p>New message on the %s request for %s:</p><blockquote>%s</blockquote>",
		leave.LeaveType, leave.LeaveDate.Format("2006-01-02"), msg.Body)
	s.send(ctx, to, subject, html)
}

// GradeRecipients resolves the notification list for a grade, falling
// back to the "ALL" entry when the grade has no dedicated list.
func (s *MailService) GradeRecipients(grade int) []string {
	if s.cfg.GradeRecipients == nil {
		return nil
	}
	if list, ok := s.cfg.GradeRecipients[strconv.Itoa(grade)]; ok {
		return list
	}
	return s.cfg.GradeRecipients["ALL"]
}
