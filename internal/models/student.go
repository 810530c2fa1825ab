package models

import (
	"strconv"
	"strings"
	"time"
)

// Student is a tenant-scoped pupil record. Homerooms follow the "G10-B"
// convention; the leading grade number is what pod rosters key on.
type Student struct {
	ID        string    `db:"id" json:"id"`
	TenantID  string    `db:"tenant_id" json:"-"`
	ESISCode  string    `db:"esis_code" json:"esis_code"`
	FullName  string    `db:"full_name" json:"full_name"`
	Homeroom  string    `db:"homeroom" json:"homeroom"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// HomeroomGrade extracts the grade number from a homeroom label such as
// "G10-B"; ok is false when the label does not carry one.
func HomeroomGrade(homeroom string) (int, bool) {
	trimmed := strings.TrimSpace(homeroom)
	if len(trimmed) < 2 || (trimmed[0] != 'G' && trimmed[0] != 'g') {
		return 0, false
	}
	digits := trimmed[1:]
	for i, r := range digits {
		if r < '0' || r > '9' {
			digits = digits[:i]
			break
		}
	}
	if digits == "" {
		return 0, false
	}
	grade, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return grade, true
}
