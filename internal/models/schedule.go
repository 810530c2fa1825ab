package models

import "time"

// Cycle is the school phase a teacher serves, derived from the grades seen
// in their schedule rows.
type Cycle string

const (
	CycleHigh    Cycle = "High"
	CycleMiddle  Cycle = "Middle"
	CycleMixed   Cycle = "Mixed"
	CycleGeneral Cycle = "General"
)

// Overlaps reports whether two cycles share a phase. Mixed overlaps
// everything except General; General overlaps nothing.
func (c Cycle) Overlaps(other Cycle) bool {
	if c == CycleGeneral || other == CycleGeneral {
		return false
	}
	if c == CycleMixed || other == CycleMixed {
		return true
	}
	return c == other
}

// Label is the human phase name used by the availability payload.
func (c Cycle) Label() string {
	switch c {
	case CycleHigh:
		return "High School"
	case CycleMiddle:
		return "Middle School"
	case CycleMixed:
		return "Mixed"
	default:
		return "General"
	}
}

// ScheduleEntry is one cell of the weekly period grid.
type ScheduleEntry struct {
	ID            string    `db:"id" json:"id"`
	TenantID      string    `db:"tenant_id" json:"-"`
	TeacherID     string    `db:"teacher_id" json:"teacher_id"`
	DayCode       string    `db:"day_code" json:"day_code"`
	Period        string    `db:"period" json:"period"`
	PeriodRaw     string    `db:"period_raw" json:"period_raw"`
	Details       string    `db:"details" json:"details"`
	GradeDetected string    `db:"grade_detected" json:"grade_detected"`
	Subject       string    `db:"subject" json:"subject"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// DaySummary condenses one teacher's load for a single day.
type DaySummary struct {
	ScheduledCount int `json:"scheduled_count"`
	MaxPeriods     int `json:"max_periods"`
	FreePeriods    int `json:"free_periods"`
}

// OccupiedTeacher pairs a busy teacher with what occupies them.
type OccupiedTeacher struct {
	TeacherID string `json:"teacher_id"`
	Email     string `json:"email"`
	Detail    string `json:"detail"`
}

// AvailabilityEntry is one row of the check-availability payload.
type AvailabilityEntry struct {
	Email        string `json:"email"`
	LevelLabel   string `json:"level_label"`
	Subject      string `json:"subject"`
	PrimaryClass string `json:"primary_class"`
}
