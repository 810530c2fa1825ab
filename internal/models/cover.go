package models

import "time"

// ForwardStatus tracks downstream delivery of an ingested leave record.
type ForwardStatus string

const (
	ForwardPending ForwardStatus = "pending"
	ForwardSent    ForwardStatus = "sent"
	ForwardFailed  ForwardStatus = "failed"
)

// LeaveRecord is the schedule service's local copy of a leave, ingested
// over the webhook. It is keyed by the originating request id.
type LeaveRecord struct {
	ID            string        `db:"id" json:"id"`
	TenantID      string        `db:"tenant_id" json:"-"`
	RequestID     string        `db:"request_id" json:"request_id"`
	TeacherName   string        `db:"teacher_name" json:"teacher_name"`
	TeacherEmail  string        `db:"teacher_email" json:"teacher_email"`
	LeaveType     string        `db:"leave_type" json:"leave_type"`
	Reason        string        `db:"reason" json:"reason"`
	Status        string        `db:"status" json:"status"`
	LeaveStart    time.Time     `db:"leave_start" json:"leave_start"`
	LeaveEnd      time.Time     `db:"leave_end" json:"leave_end"`
	ForwardStatus ForwardStatus `db:"forward_status" json:"forward_status"`
	ForwardDetail string        `db:"forward_detail" json:"forward_detail,omitempty"`
	ForwardedAt   *time.Time    `db:"forwarded_at" json:"forwarded_at,omitempty"`
	ReceivedAt    time.Time     `db:"received_at" json:"received_at"`
	UpdatedAt     time.Time     `db:"updated_at" json:"updated_at"`
}

// CoverAssignment is one computed substitute slot. Rows are unique per
// (date, request_id, slot_key); re-running the engine is a no-op for
// slots already covered.
type CoverAssignment struct {
	ID        string    `db:"id" json:"id"`
	TenantID  string    `db:"tenant_id" json:"-"`
	Date      time.Time `db:"date" json:"date"`
	SlotKey   string    `db:"slot_key" json:"slot_key"`
	RequestID string    `db:"request_id" json:"request_id"`

	AbsentTeacher      string `db:"absent_teacher" json:"absent_teacher"`
	AbsentTeacherEmail string `db:"absent_teacher_email" json:"absent_teacher_email"`
	CoverTeacher       string `db:"cover_teacher" json:"cover_teacher"`
	CoverEmail         string `db:"cover_email" json:"cover_email"`
	CoverSlug          string `db:"cover_slug" json:"cover_slug"`
	CoverSubject       string `db:"cover_subject" json:"cover_subject"`

	ClassSubject string `db:"class_subject" json:"class_subject"`
	ClassGrade   string `db:"class_grade" json:"class_grade"`
	ClassDetails string `db:"class_details" json:"class_details"`
	PeriodLabel  string `db:"period_label" json:"period_label"`
	PeriodRaw    string `db:"period_raw" json:"period_raw"`
	ClassTime    string `db:"class_time" json:"class_time"`

	CoverFreePeriods int    `db:"cover_free_periods" json:"cover_free_periods"`
	CoverScheduled   int    `db:"cover_scheduled" json:"cover_scheduled"`
	CoverMaxPeriods  int    `db:"cover_max_periods" json:"cover_max_periods"`
	DayLabel         string `db:"day_label" json:"day_label"`
	Status           string `db:"status" json:"status"`

	CoverAssignedAt time.Time `db:"cover_assigned_at" json:"cover_assigned_at"`
}

// SlotKey derives the uniqueness key for a cover slot.
func SlotKey(periodLabel, periodRaw, classTime string) string {
	return periodLabel + "|" + periodRaw + "|" + classTime
}

// CoverPatch carries the admin-editable fields of an assignment. Nil
// fields are untouched.
type CoverPatch struct {
	Status       *string `json:"status,omitempty"`
	CoverTeacher *string `json:"cover_teacher,omitempty"`
	CoverEmail   *string `json:"cover_email,omitempty"`
	CoverSubject *string `json:"cover_subject,omitempty"`
	ClassSubject *string `json:"class_subject,omitempty"`
	ClassGrade   *string `json:"class_grade,omitempty"`
	ClassDetails *string `json:"class_details,omitempty"`
	PeriodLabel  *string `json:"period_label,omitempty"`
	PeriodRaw    *string `json:"period_raw,omitempty"`
	ClassTime    *string `json:"class_time,omitempty"`
}
