package models

import (
	"strconv"
	"strings"
	"time"
)

// Role enumerates staff roles. Roles gate which duty slots a teacher may
// fill and who may edit a grade's pod roster.
type Role string

const (
	RoleTeacher       Role = "teacher"
	RoleAdmin         Role = "admin"
	RolePA            Role = "pa"
	RoleSLT           Role = "slt"
	RoleAdministrator Role = "administrator"
)

// GradeLeadRole returns the grade-lead role for a grade number.
func GradeLeadRole(grade int) Role {
	return Role("grade_lead_" + strconv.Itoa(grade))
}

// IsGradeLead reports whether r is a grade-lead role and, if so, for which
// grade.
func (r Role) IsGradeLead() (int, bool) {
	const prefix = "grade_lead_"
	if !strings.HasPrefix(string(r), prefix) {
		return 0, false
	}
	grade, err := strconv.Atoi(strings.TrimPrefix(string(r), prefix))
	if err != nil {
		return 0, false
	}
	switch grade {
	case 6, 7, 10, 11, 12:
		return grade, true
	default:
		return 0, false
	}
}

// Teacher is a tenant-scoped directory record.
type Teacher struct {
	ID         string    `db:"id" json:"id"`
	TenantID   string    `db:"tenant_id" json:"-"`
	FullName   string    `db:"full_name" json:"full_name"`
	Email      string    `db:"email" json:"email"`
	Subject    string    `db:"subject" json:"subject"`
	GradeLevel string    `db:"grade_level" json:"grade_level"`
	Role       Role      `db:"role" json:"role"`
	Slug       string    `db:"slug" json:"slug"`
	Active     bool      `db:"active" json:"active"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// Slugify collapses a display name to the slug form used by exclusion sets
// and drive filenames: non-alphanumerics become underscores.
func Slugify(name string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + ('a' - 'A'))
		default:
			b.WriteRune('_')
		}
	}
	return strings.Trim(b.String(), "_")
}

// TeacherFilter captures filtering options for listing teachers.
type TeacherFilter struct {
	Search    string
	Active    *bool
	Role      *Role
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
