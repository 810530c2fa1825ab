package models

import (
	"fmt"
	"time"
)

// DutyType is a daily duty slot category.
type DutyType string

const (
	DutyMorning   DutyType = "morning"
	DutyDismissal DutyType = "dismissal"
)

// Valid reports whether t is a known duty type.
func (t DutyType) Valid() bool {
	return t == DutyMorning || t == DutyDismissal
}

// DailyDutyLocations enumerates where morning and dismissal duty happens.
var DailyDutyLocations = []string{
	"Main Gate",
	"Side Gate",
	"Bus Area",
	"Front Courtyard",
	"Back Courtyard",
	"Ground Floor",
	"First Floor",
	"Second Floor",
	"Canteen",
}

// BreakLocations enumerates break-duty posts for pod rosters.
var BreakLocations = []string{
	"Canteen",
	"Playground",
	"Corridor",
	"Courtyard",
	"Library",
}

// SlotType splits pod duty into supervised periods and the break slot.
type SlotType string

const (
	SlotPeriod SlotType = "period"
	SlotBreak  SlotType = "break"
)

// AckStatus is the acknowledgement state attached to every duty slot.
type AckStatus string

const (
	AckPending     AckStatus = "pending"
	AckPresent     AckStatus = "present"
	AckUnavailable AckStatus = "unavailable"
)

// Valid reports whether s is a known acknowledgement status.
func (s AckStatus) Valid() bool {
	switch s {
	case AckPending, AckPresent, AckUnavailable:
		return true
	}
	return false
}

// DutyAssignment is one morning or dismissal roster row. The
// acknowledgement lives on the row itself; assignments are unique per
// (date, duty_type, teacher).
type DutyAssignment struct {
	ID             string    `db:"id" json:"id"`
	TenantID       string    `db:"tenant_id" json:"-"`
	AssignmentDate time.Time `db:"assignment_date" json:"assignment_date"`
	DutyType       DutyType  `db:"duty_type" json:"duty_type"`
	Location       string    `db:"location" json:"location"`
	TeacherID      string    `db:"teacher_id" json:"teacher_id"`
	TeacherName    string    `db:"teacher_name" json:"teacher_name"`

	AckStatus    AckStatus  `db:"ack_status" json:"ack_status"`
	AckNote      string     `db:"ack_note" json:"ack_note,omitempty"`
	AckUpdatedAt *time.Time `db:"ack_updated_at" json:"ack_updated_at,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// PodGrades lists the grades that run pod rosters.
var PodGrades = []int{6, 7, 10, 11, 12}

// PodGradeValid reports whether a grade runs pod rosters.
func PodGradeValid(grade int) bool {
	for _, g := range PodGrades {
		if g == grade {
			return true
		}
	}
	return false
}

// PodPeriodCount returns how many supervised periods grade's roster has.
func PodPeriodCount(grade int) int {
	if grade == 6 || grade == 7 {
		return 6
	}
	return 7
}

// BreakLocationRequired reports whether break slots for grade must name a
// post.
func BreakLocationRequired(grade int) bool {
	return grade == 6 || grade == 7 || grade == 10
}

// GradeBreakPod is the pod label for the shared break slot.
const GradeBreakPod = "GRADE_BREAK"

// PodName builds the label for a grade's numbered pod.
func PodName(grade, pod int) string {
	return fmt.Sprintf("G%d Pod %d", grade, pod)
}

// PodDutyAssignment is one grade-pod roster row; unique per
// (date, teacher, slot_type, period).
type PodDutyAssignment struct {
	ID             string    `db:"id" json:"id"`
	TenantID       string    `db:"tenant_id" json:"-"`
	AssignmentDate time.Time `db:"assignment_date" json:"assignment_date"`
	Grade          int       `db:"grade" json:"grade"`
	Pod            string    `db:"pod" json:"pod"`
	SlotType       SlotType  `db:"slot_type" json:"slot_type"`
	Period         *int      `db:"period" json:"period,omitempty"`
	TeacherID      string    `db:"teacher_id" json:"teacher_id"`
	TeacherName    string    `db:"teacher_name" json:"teacher_name"`
	BreakLocation  string    `db:"break_location" json:"break_location,omitempty"`

	AckStatus    AckStatus  `db:"ack_status" json:"ack_status"`
	AckNote      string     `db:"ack_note" json:"ack_note,omitempty"`
	AckUpdatedAt *time.Time `db:"ack_updated_at" json:"ack_updated_at,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// SlotIdent identifies a pod slot for diffing bulk saves.
func (p *PodDutyAssignment) SlotIdent() string {
	period := 0
	if p.Period != nil {
		period = *p.Period
	}
	return fmt.Sprintf("%s|%d|%s|%s", p.SlotType, period, p.Pod, p.TeacherID)
}
