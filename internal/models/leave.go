package models

import "time"

// LeaveType enumerates the supported leave categories. Only sick leaves
// carry a medical-attachment lifecycle.
type LeaveType string

const (
	LeaveTypeSick       LeaveType = "sickleave"
	LeaveTypeConference LeaveType = "conference_offsite"
	LeaveTypeTraining   LeaveType = "training_offsite"
	LeaveTypeEarly      LeaveType = "early_leave_request"
)

// RequiresAttachment reports whether the leave type needs a medical document.
func (t LeaveType) RequiresAttachment() bool {
	return t == LeaveTypeSick
}

// Valid reports whether t is a known leave type.
func (t LeaveType) Valid() bool {
	switch t {
	case LeaveTypeSick, LeaveTypeConference, LeaveTypeTraining, LeaveTypeEarly:
		return true
	}
	return false
}

// LeaveStatus is the review state of a leave request.
type LeaveStatus string

const (
	LeaveStatusPending  LeaveStatus = "pending"
	LeaveStatusApproved LeaveStatus = "approved"
	LeaveStatusRejected LeaveStatus = "rejected"
	LeaveStatusInvalid  LeaveStatus = "invalid"
)

// Valid reports whether s is a known leave status.
func (s LeaveStatus) Valid() bool {
	switch s {
	case LeaveStatusPending, LeaveStatusApproved, LeaveStatusRejected, LeaveStatusInvalid:
		return true
	}
	return false
}

// Terminal reports whether the status closes the request for messaging.
func (s LeaveStatus) Terminal() bool {
	return s == LeaveStatusApproved || s == LeaveStatusRejected || s == LeaveStatusInvalid
}

// AttachmentStatus tracks the medical-document side of a sick leave.
type AttachmentStatus string

const (
	AttachmentNotRequired AttachmentStatus = "not_required"
	AttachmentMissing     AttachmentStatus = "missing"
	AttachmentSubmitted   AttachmentStatus = "submitted"
	AttachmentApproved    AttachmentStatus = "approved"
	AttachmentDeclined    AttachmentStatus = "declined"
)

// LeaveRequest is the core absence record.
type LeaveRequest struct {
	ID         string      `db:"id" json:"id"`
	TenantID   string      `db:"tenant_id" json:"-"`
	TeacherID  string      `db:"teacher_id" json:"teacher_id"`
	LeaveType  LeaveType   `db:"leave_type" json:"leave_type"`
	Reason     string      `db:"reason" json:"reason"`
	LeaveDate  time.Time   `db:"leave_date" json:"leave_date"`
	EndDate    *time.Time  `db:"end_date" json:"end_date,omitempty"`
	StartTime  string      `db:"start_time" json:"start_time,omitempty"`
	EndTime    string      `db:"end_time" json:"end_time,omitempty"`
	Status     LeaveStatus `db:"status" json:"status"`

	AdminComment string     `db:"admin_comment" json:"admin_comment,omitempty"`
	ReviewedBy   string     `db:"reviewed_by" json:"reviewed_by,omitempty"`
	ReviewedAt   *time.Time `db:"reviewed_at" json:"reviewed_at,omitempty"`

	AttachmentRequired       bool             `db:"attachment_required" json:"attachment_required"`
	AttachmentStatus         AttachmentStatus `db:"attachment_status" json:"attachment_status"`
	AttachmentPath           string           `db:"attachment_path" json:"-"`
	AttachmentOriginalName   string           `db:"attachment_original_name" json:"attachment_original_name,omitempty"`
	AttachmentUploadedAt     *time.Time       `db:"attachment_uploaded_at" json:"attachment_uploaded_at,omitempty"`
	AttachmentDueAt          *time.Time       `db:"attachment_due_at" json:"attachment_due_at,omitempty"`
	AttachmentReminderCount  int              `db:"attachment_reminder_count" json:"attachment_reminder_count"`
	AttachmentLastReminderAt *time.Time       `db:"attachment_last_reminder_at" json:"attachment_last_reminder_at,omitempty"`
	AttachmentExportPath     string           `db:"attachment_export_path" json:"attachment_export_path,omitempty"`
	AttachmentExportedAt     *time.Time       `db:"attachment_exported_at" json:"attachment_exported_at,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// End returns the effective last day of the leave.
func (l *LeaveRequest) End() time.Time {
	if l.EndDate != nil {
		return *l.EndDate
	}
	return l.LeaveDate
}

// MessageSender identifies which side of a leave conversation wrote a message.
type MessageSender string

const (
	SenderTeacher MessageSender = "teacher"
	SenderAdmin   MessageSender = "admin"
)

// LeaveMessage is one entry of a leave request's conversation thread.
// Threads are append-only and close once the request leaves pending.
type LeaveMessage struct {
	ID        string        `db:"id" json:"id"`
	TenantID  string        `db:"tenant_id" json:"-"`
	ExcuseID  string        `db:"excuse_id" json:"excuse_id"`
	Sender    MessageSender `db:"sender" json:"sender"`
	Body      string        `db:"body" json:"body"`
	CreatedAt time.Time     `db:"created_at" json:"created_at"`
}

// AbsenceThresholdAttempt is the audit row written when a sick leave
// submission is refused inside the morning blackout window.
type AbsenceThresholdAttempt struct {
	ID          string    `db:"id" json:"id"`
	TenantID    string    `db:"tenant_id" json:"-"`
	TeacherID   string    `db:"teacher_id" json:"teacher_id"`
	LeaveDate   time.Time `db:"leave_date" json:"leave_date"`
	AttemptedAt time.Time `db:"attempted_at" json:"attempted_at"`
}

// LeaveFilter captures list filters for admin and teacher leave views.
type LeaveFilter struct {
	TeacherID string
	Status    *LeaveStatus
	LeaveType *LeaveType
	DateFrom  *time.Time
	DateTo    *time.Time
	Page      int
	PageSize  int
}
