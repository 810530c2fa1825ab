package service

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/school-ops-api/internal/models"
	"github.com/noah-isme/school-ops-api/pkg/civiltime"
	appErrors "github.com/noah-isme/school-ops-api/pkg/errors"
	"github.com/noah-isme/school-ops-api/pkg/jobs"
)

// attachmentDueDays is how long a sick leave may stay pending without a
// medical document before auto-invalidation.
const attachmentDueDays = 5

// autoInvalidComment is appended verbatim when the reminder worker
// expires a request.
const autoInvalidComment = "Automatically marked invalid after 5 days without a sick leave document."

type leaveRepository interface {
	Create(ctx context.Context, leave *models.LeaveRequest) error
	Update(ctx context.Context, leave *models.LeaveRequest) error
	FindByID(ctx context.Context, tenantID, id string) (*models.LeaveRequest, error)
	HasPendingOnDate(ctx context.Context, tenantID, teacherID string, leaveDate time.Time) (bool, error)
	List(ctx context.Context, tenantID string, filter models.LeaveFilter) ([]models.LeaveRequest, int, error)
	AppendMessage(ctx context.Context, msg *models.LeaveMessage) error
	ListMessages(ctx context.Context, tenantID, excuseID string) ([]models.LeaveMessage, error)
	RecordThresholdAttempt(ctx context.Context, attempt *models.AbsenceThresholdAttempt) error
}

type leaveTeacherReader interface {
	FindByID(ctx context.Context, tenantID, id string) (*models.Teacher, error)
}

type attachmentStager interface {
	Save(originalName string, size int64, r io.Reader) (string, string, error)
	Delete(rel string) error
}

type leaveNotifier interface {
	NotifyAdminsNewLeave(ctx context.Context, teacher *models.Teacher, leave *models.LeaveRequest)
	NotifyTeacherReceipt(ctx context.Context, teacher *models.Teacher, leave *models.LeaveRequest)
	NotifyTeacherReview(ctx context.Context, teacher *models.Teacher, leave *models.LeaveRequest)
	NotifyGradeTeamApproved(ctx context.Context, teacher *models.Teacher, leave *models.LeaveRequest)
	NotifyThreadMessage(ctx context.Context, teacher *models.Teacher, leave *models.LeaveRequest, msg *models.LeaveMessage)
}

type leaveWebhook interface {
	EmitAsync(teacher *models.Teacher, leave *models.LeaveRequest)
}

type archiveQueue interface {
	Enqueue(job jobs.Job) error
}

// ArchiveJobType tags archive jobs on the background queue.
const ArchiveJobType = "archive_attachment"

// ArchiveJobPayload identifies the leave to archive.
type ArchiveJobPayload struct {
	TenantID string
	LeaveID  string
}

// SubmitLeaveRequest is the submission payload.
type SubmitLeaveRequest struct {
	LeaveType string `json:"leave_type" validate:"required"`
	Reason    string `json:"reason" validate:"required,max=2000"`
	LeaveDate string `json:"leave_date" validate:"required"`
	EndDate   string `json:"end_date" validate:"omitempty"`
	StartTime string `json:"start_time" validate:"omitempty"`
	EndTime   string `json:"end_time" validate:"omitempty"`
}

// AttachmentUpload carries a staged multipart file.
type AttachmentUpload struct {
	FileName string
	Size     int64
	Reader   io.Reader
}

// ReviewLeaveRequest is the admin review payload.
type ReviewLeaveRequest struct {
	Status            string `json:"status" validate:"required"`
	AdminComment      string `json:"admin_comment" validate:"omitempty,max=2000"`
	OverrideAttachment bool  `json:"override_attachment"`
}

// LeaveService orchestrates the absence lifecycle.
type LeaveService struct {
	leaves      leaveRepository
	teachers    leaveTeacherReader
	attachments attachmentStager
	mail        leaveNotifier
	webhook     leaveWebhook
	archive     archiveQueue
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewLeaveService constructs a LeaveService.
func NewLeaveService(leaves leaveRepository, teachers leaveTeacherReader, attachments attachmentStager, mail leaveNotifier, webhook leaveWebhook, archive archiveQueue, validate *validator.Validate, logger *zap.Logger) *LeaveService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LeaveService{
		leaves:      leaves,
		teachers:    teachers,
		attachments: attachments,
		mail:        mail,
		webhook:     webhook,
		archive:     archive,
		validator:   validate,
		logger:      logger,
	}
}

func parseCivilDate(raw string) (time.Time, error) {
	d, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(raw), civiltime.Zone)
	if err != nil {
		return time.Time{}, err
	}
	return d, nil
}

func validationErr(message string) error {
	return appErrors.Clone(appErrors.ErrValidation, message)
}

// Submit validates and persists a new leave request, then fires the
// best-effort side effects: notification mail, archive job, webhook.
func (s *LeaveService) Submit(ctx context.Context, tenantID, teacherID string, req SubmitLeaveRequest, upload *AttachmentUpload) (*models.LeaveRequest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid leave payload")
	}

	leaveType := models.LeaveType(strings.TrimSpace(req.LeaveType))
	if !leaveType.Valid() {
		return nil, validationErr("unknown leave type")
	}

	leaveDate, err := parseCivilDate(req.LeaveDate)
	if err != nil {
		return nil, validationErr("leave_date must be YYYY-MM-DD")
	}

	var endDate *time.Time
	if req.EndDate != "" {
		end, err := parseCivilDate(req.EndDate)
		if err != nil {
			return nil, validationErr("end_date must be YYYY-MM-DD")
		}
		if end.Before(leaveDate) {
			return nil, validationErr("end_date cannot be before leave_date")
		}
		endDate = &end
	}

	switch leaveType {
	case models.LeaveTypeConference, models.LeaveTypeTraining:
		if req.StartTime == "" || req.EndTime == "" {
			return nil, validationErr("start_time and end_time are required for offsite requests")
		}
		if req.EndTime <= req.StartTime {
			return nil, validationErr("end_time must be after start_time")
		}
	case models.LeaveTypeEarly:
		if req.StartTime == "" {
			return nil, validationErr("start_time is required for early leave")
		}
	}

	now := civiltime.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, civiltime.Zone)
	if leaveDate.Before(today) {
		return nil, validationErr("leave_date cannot be in the past")
	}

	if leaveType == models.LeaveTypeSick && leaveDate.Equal(today) && civiltime.InSickLeaveBlackout(now) {
		attempt := &models.AbsenceThresholdAttempt{
			TenantID:  tenantID,
			TeacherID: teacherID,
			LeaveDate: leaveDate,
		}
		if err := s.leaves.RecordThresholdAttempt(ctx, attempt); err != nil {
			s.logger.Warn("threshold attempt audit failed", zap.Error(err))
		}
		return nil, appErrors.ErrSubmissionWindow
	}

	pending, err := s.leaves.HasPendingOnDate(ctx, tenantID, teacherID, leaveDate)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check pending requests")
	}
	if pending {
		return nil, appErrors.Clone(appErrors.ErrConflict, "you already have a pending request for this date")
	}

	teacher, err := s.teachers.FindByID(ctx, tenantID, teacherID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}

	leave := &models.LeaveRequest{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		TeacherID: teacherID,
		LeaveType: leaveType,
		Reason:    strings.TrimSpace(req.Reason),
		LeaveDate: leaveDate,
		EndDate:   endDate,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		Status:    models.LeaveStatusPending,
	}

	if leaveType.RequiresAttachment() {
		leave.AttachmentRequired = true
		if upload != nil {
			rel, original, err := s.attachments.Save(upload.FileName, upload.Size, upload.Reader)
			if err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "attachment rejected")
			}
			uploadedAt := time.Now().UTC()
			leave.AttachmentStatus = models.AttachmentSubmitted
			leave.AttachmentPath = rel
			leave.AttachmentOriginalName = original
			leave.AttachmentUploadedAt = &uploadedAt
		} else {
			due := time.Now().UTC().Add(attachmentDueDays * 24 * time.Hour)
			leave.AttachmentStatus = models.AttachmentMissing
			leave.AttachmentDueAt = &due
		}
	} else {
		leave.AttachmentStatus = models.AttachmentNotRequired
	}

	if err := s.leaves.Create(ctx, leave); err != nil {
		// The partial unique index catches duplicates that race past the
		// pending check above.
		if errors.Is(err, appErrors.ErrUniqueViolation) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "you already have a pending request for this date")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save leave request")
	}

	s.mail.NotifyAdminsNewLeave(ctx, teacher, leave)
	s.mail.NotifyTeacherReceipt(ctx, teacher, leave)
	if leave.AttachmentPath != "" {
		s.enqueueArchive(leave)
	}
	s.webhook.EmitAsync(teacher, leave)

	s.logger.Info("leave submitted",
		zap.String("leave_id", leave.ID),
		zap.String("teacher_id", teacherID),
		zap.String("leave_type", string(leaveType)))
	return leave, nil
}

func (s *LeaveService) enqueueArchive(leave *models.LeaveRequest) {
	if s.archive == nil {
		return
	}
	job := jobs.Job{
		ID:      uuid.NewString(),
		Type:    ArchiveJobType,
		Payload: ArchiveJobPayload{TenantID: leave.TenantID, LeaveID: leave.ID},
	}
	if err := s.archive.Enqueue(job); err != nil {
		s.logger.Warn("archive enqueue failed", zap.String("leave_id", leave.ID), zap.Error(err))
	}
}

// Get loads one leave; teachers may only read their own.
func (s *LeaveService) Get(ctx context.Context, claims *models.JWTClaims, id string) (*models.LeaveRequest, error) {
	leave, err := s.leaves.FindByID(ctx, claims.TenantID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "leave request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load leave request")
	}
	if !claims.IsSuperAdmin() && leave.TeacherID != claims.TeacherID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not your leave request")
	}
	return leave, nil
}

// List returns leaves plus pagination. Teachers see their own rows only.
func (s *LeaveService) List(ctx context.Context, claims *models.JWTClaims, filter models.LeaveFilter) ([]models.LeaveRequest, *models.Pagination, error) {
	if !claims.IsSuperAdmin() {
		filter.TeacherID = claims.TeacherID
	}
	leaves, total, err := s.leaves.List(ctx, claims.TenantID, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list leave requests")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return leaves, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// UploadAttachment replaces or supplies the medical document on a pending
// sick leave owned by the caller.
func (s *LeaveService) UploadAttachment(ctx context.Context, claims *models.JWTClaims, id string, upload *AttachmentUpload) (*models.LeaveRequest, error) {
	leave, err := s.Get(ctx, claims, id)
	if err != nil {
		return nil, err
	}
	if !leave.AttachmentRequired {
		return nil, validationErr("this leave type takes no attachment")
	}
	if leave.Status != models.LeaveStatusPending {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "attachments can only change while the request is pending")
	}
	if upload == nil {
		return nil, validationErr("no file supplied")
	}

	previous := leave.AttachmentPath
	rel, original, err := s.attachments.Save(upload.FileName, upload.Size, upload.Reader)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "attachment rejected")
	}
	if previous != "" {
		if err := s.attachments.Delete(previous); err != nil {
			s.logger.Warn("stale attachment removal failed", zap.String("leave_id", leave.ID), zap.Error(err))
		}
	}

	now := time.Now().UTC()
	leave.AttachmentPath = rel
	leave.AttachmentOriginalName = original
	leave.AttachmentStatus = models.AttachmentSubmitted
	leave.AttachmentUploadedAt = &now
	if leave.AttachmentDueAt == nil {
		due := now.Add(attachmentDueDays * 24 * time.Hour)
		leave.AttachmentDueAt = &due
	}

	if err := s.leaves.Update(ctx, leave); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save attachment")
	}
	s.enqueueArchive(leave)
	return leave, nil
}

// AcknowledgeNoDocument lets the teacher concede they cannot supply a
// document; the request is immediately invalidated.
func (s *LeaveService) AcknowledgeNoDocument(ctx context.Context, claims *models.JWTClaims, id string) (*models.LeaveRequest, error) {
	leave, err := s.Get(ctx, claims, id)
	if err != nil {
		return nil, err
	}
	if !leave.AttachmentRequired || leave.Status != models.LeaveStatusPending {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "request cannot be acknowledged")
	}

	teacher, err := s.teachers.FindByID(ctx, claims.TenantID, leave.TeacherID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}

	now := time.Now().UTC()
	leave.Status = models.LeaveStatusInvalid
	leave.AttachmentStatus = models.AttachmentDeclined
	leave.ReviewedBy = teacher.FullName
	leave.ReviewedAt = &now
	if err := s.leaves.Update(ctx, leave); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save acknowledgement")
	}
	s.webhook.EmitAsync(teacher, leave)
	return leave, nil
}

// Review applies an admin decision. Approving a sick leave with no
// document requires the explicit override flag.
func (s *LeaveService) Review(ctx context.Context, claims *models.JWTClaims, id string, req ReviewLeaveRequest) (*models.LeaveRequest, error) {
	if !claims.IsSuperAdmin() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only admins may review requests")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid review payload")
	}
	status := models.LeaveStatus(req.Status)
	if !status.Valid() {
		return nil, validationErr("unknown status")
	}

	leave, err := s.leaves.FindByID(ctx, claims.TenantID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "leave request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load leave request")
	}

	if status == models.LeaveStatusApproved && leave.AttachmentRequired && leave.AttachmentPath == "" && !req.OverrideAttachment {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "cannot approve a sick leave without a document")
	}

	now := time.Now().UTC()
	leave.Status = status
	leave.AdminComment = req.AdminComment
	leave.ReviewedBy = claims.Email
	leave.ReviewedAt = &now

	if leave.AttachmentRequired {
		switch status {
		case models.LeaveStatusApproved:
			leave.AttachmentStatus = models.AttachmentApproved
		case models.LeaveStatusRejected, models.LeaveStatusInvalid:
			leave.AttachmentStatus = models.AttachmentDeclined
		case models.LeaveStatusPending:
			if leave.AttachmentPath != "" {
				leave.AttachmentStatus = models.AttachmentSubmitted
			} else {
				leave.AttachmentStatus = models.AttachmentMissing
			}
		}
	}

	if err := s.leaves.Update(ctx, leave); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save review")
	}

	teacher, err := s.teachers.FindByID(ctx, claims.TenantID, leave.TeacherID)
	if err != nil {
		s.logger.Warn("review notification skipped", zap.String("leave_id", leave.ID), zap.Error(err))
		return leave, nil
	}
	s.mail.NotifyTeacherReview(ctx, teacher, leave)
	if leave.Status == models.LeaveStatusApproved && leave.AttachmentRequired {
		s.mail.NotifyGradeTeamApproved(ctx, teacher, leave)
	}
	s.webhook.EmitAsync(teacher, leave)
	return leave, nil
}

// AddMessage appends to a pending request's conversation thread.
func (s *LeaveService) AddMessage(ctx context.Context, claims *models.JWTClaims, id, body string) (*models.LeaveMessage, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, validationErr("message body is required")
	}
	leave, err := s.Get(ctx, claims, id)
	if err != nil {
		return nil, err
	}
	if leave.Status.Terminal() {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "thread is closed")
	}

	sender := models.SenderTeacher
	if claims.IsSuperAdmin() {
		sender = models.SenderAdmin
	}
	msg := &models.LeaveMessage{
		TenantID: claims.TenantID,
		ExcuseID: leave.ID,
		Sender:   sender,
		Body:     body,
	}
	if err := s.leaves.AppendMessage(ctx, msg); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save message")
	}

	teacher, err := s.teachers.FindByID(ctx, claims.TenantID, leave.TeacherID)
	if err != nil {
		s.logger.Warn("thread notification skipped", zap.String("leave_id", leave.ID), zap.Error(err))
		return msg, nil
	}
	s.mail.NotifyThreadMessage(ctx, teacher, leave, msg)
	return msg, nil
}

// Messages returns a request's thread oldest first.
func (s *LeaveService) Messages(ctx context.Context, claims *models.JWTClaims, id string) ([]models.LeaveMessage, error) {
	leave, err := s.Get(ctx, claims, id)
	if err != nil {
		return nil, err
	}
	messages, err := s.leaves.ListMessages(ctx, claims.TenantID, leave.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list messages")
	}
	return messages, nil
}
