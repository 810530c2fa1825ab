package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/school-ops-api/internal/models"
)

// maxReminders caps how many nags a pending sick leave receives before
// the next sweep invalidates it.
const maxReminders = 5

// reminderSpacing is wall-clock time between consecutive reminders.
const reminderSpacing = 24 * time.Hour

type reminderLeaveStore interface {
	ListPendingSickMissing(ctx context.Context) ([]models.LeaveRequest, error)
	Update(ctx context.Context, leave *models.LeaveRequest) error
}

type reminderNotifier interface {
	NotifyTeacherReminder(ctx context.Context, teacher *models.Teacher, leave *models.LeaveRequest, remaining int) error
	NotifyTeacherInvalidated(ctx context.Context, teacher *models.Teacher, leave *models.LeaveRequest)
}

// ReminderService sweeps pending sick leaves with missing documents,
// sending at most five 24h-spaced reminders and invalidating the request
// once its due date passes.
type ReminderService struct {
	leaves   reminderLeaveStore
	teachers leaveTeacherReader
	mail     reminderNotifier
	webhook  leaveWebhook
	metrics  *MetricsService
	interval time.Duration
	logger   *zap.Logger

	// now is swappable in tests.
	now func() time.Time
}

// NewReminderService constructs a ReminderService.
func NewReminderService(leaves reminderLeaveStore, teachers leaveTeacherReader, mail reminderNotifier, webhook leaveWebhook, metrics *MetricsService, interval time.Duration, logger *zap.Logger) *ReminderService {
	if interval <= 0 {
		interval = time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReminderService{
		leaves:   leaves,
		teachers: teachers,
		mail:     mail,
		webhook:  webhook,
		metrics:  metrics,
		interval: interval,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run sweeps on the configured interval until ctx is cancelled.
func (s *ReminderService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.logger.Info("reminder worker started", zap.Duration("interval", s.interval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("reminder worker stopped")
			return
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				s.logger.Error("reminder sweep failed", zap.Error(err))
			}
		}
	}
}

// Sweep advances the reminder state machine for every candidate row. The
// shutdown signal is honoured between rows.
func (s *ReminderService) Sweep(ctx context.Context) error {
	leaves, err := s.leaves.ListPendingSickMissing(ctx)
	if err != nil {
		return err
	}
	for i := range leaves {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		s.advance(ctx, &leaves[i])
	}
	return nil
}

func (s *ReminderService) advance(ctx context.Context, leave *models.LeaveRequest) {
	now := s.now()

	// Rows predating the due-at column fall back to the submission clock.
	deadline := leave.CreatedAt.Add(attachmentDueDays * 24 * time.Hour)
	if leave.AttachmentDueAt != nil {
		deadline = *leave.AttachmentDueAt
	}
	if !now.Before(deadline) {
		s.invalidate(ctx, leave, now)
		return
	}

	if leave.AttachmentReminderCount >= maxReminders {
		return
	}
	last := leave.CreatedAt
	if leave.AttachmentLastReminderAt != nil && leave.AttachmentLastReminderAt.After(last) {
		last = *leave.AttachmentLastReminderAt
	}
	if now.Sub(last) < reminderSpacing {
		return
	}

	teacher, err := s.teachers.FindByID(ctx, leave.TenantID, leave.TeacherID)
	if err != nil {
		s.logger.Warn("reminder skipped, teacher lookup failed",
			zap.String("leave_id", leave.ID), zap.Error(err))
		return
	}

	remaining := int(deadline.Sub(now).Hours()/24) + 1
	if remaining < 1 {
		remaining = 1
	}
	// An undelivered reminder does not consume the budget.
	if err := s.mail.NotifyTeacherReminder(ctx, teacher, leave, remaining); err != nil {
		s.logger.Warn("reminder delivery failed",
			zap.String("leave_id", leave.ID), zap.Error(err))
		return
	}

	leave.AttachmentReminderCount++
	leave.AttachmentLastReminderAt = &now
	if err := s.leaves.Update(ctx, leave); err != nil {
		s.logger.Error("reminder state save failed",
			zap.String("leave_id", leave.ID), zap.Error(err))
		return
	}
	s.metrics.RecordReminderSent()
	s.logger.Info("reminder sent",
		zap.String("leave_id", leave.ID),
		zap.Int("count", leave.AttachmentReminderCount))
}

func (s *ReminderService) invalidate(ctx context.Context, leave *models.LeaveRequest, now time.Time) {
	leave.Status = models.LeaveStatusInvalid
	leave.AttachmentStatus = models.AttachmentDeclined
	leave.ReviewedBy = "System"
	leave.ReviewedAt = &now
	if leave.AdminComment != "" {
		leave.AdminComment += " "
	}
	leave.AdminComment += autoInvalidComment

	if err := s.leaves.Update(ctx, leave); err != nil {
		s.logger.Error("auto-invalidation save failed",
			zap.String("leave_id", leave.ID), zap.Error(err))
		return
	}

	teacher, err := s.teachers.FindByID(ctx, leave.TenantID, leave.TeacherID)
	if err != nil {
		s.logger.Warn("invalidation notice skipped, teacher lookup failed",
			zap.String("leave_id", leave.ID), zap.Error(err))
		return
	}
	s.mail.NotifyTeacherInvalidated(ctx, teacher, leave)
	if s.webhook != nil {
		s.webhook.EmitAsync(teacher, leave)
	}
	s.logger.Info("leave auto-invalidated", zap.String("leave_id", leave.ID))
}
