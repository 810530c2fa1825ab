package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/school-ops-api/internal/models"
	appErrors "github.com/noah-isme/school-ops-api/pkg/errors"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestLeaveRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewLeaveRepository(db)

	mock.ExpectExec("INSERT INTO leave_requests").
		WillReturnResult(sqlmock.NewResult(1, 1))

	leave := &models.LeaveRequest{
		TenantID:           "tn1",
		TeacherID:          "t1",
		LeaveType:          models.LeaveTypeSick,
		Reason:             "flu",
		LeaveDate:          time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC),
		Status:             models.LeaveStatusPending,
		AttachmentRequired: true,
		AttachmentStatus:   models.AttachmentMissing,
	}
	require.NoError(t, repo.Create(context.Background(), leave))
	assert.NotEmpty(t, leave.ID)
	assert.False(t, leave.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLeaveRepositoryCreateMapsUniqueViolation(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewLeaveRepository(db)

	mock.ExpectExec("INSERT INTO leave_requests").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "uq_leaves_pending_per_date"})

	leave := &models.LeaveRequest{
		TenantID:  "tn1",
		TeacherID: "t1",
		LeaveType: models.LeaveTypeSick,
		Reason:    "flu",
		LeaveDate: time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC),
		Status:    models.LeaveStatusPending,
	}
	err := repo.Create(context.Background(), leave)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrUniqueViolation))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLeaveRepositoryHasPendingOnDate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewLeaveRepository(db)

	date := time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM leave_requests WHERE tenant_id = $1 AND teacher_id = $2 AND leave_date = $3 AND status = 'pending' LIMIT 1")).
		WithArgs("tn1", "t1", date).
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

	exists, err := repo.HasPendingOnDate(context.Background(), "tn1", "t1", date)
	require.NoError(t, err)
	assert.True(t, exists)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM leave_requests")).
		WithArgs("tn1", "t2", date).
		WillReturnRows(sqlmock.NewRows([]string{"1"}))

	exists, err = repo.HasPendingOnDate(context.Background(), "tn1", "t2", date)
	require.NoError(t, err)
	assert.False(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLeaveRepositoryListPendingSickMissing(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewLeaveRepository(db)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "tenant_id", "teacher_id", "leave_type", "status", "attachment_status", "attachment_reminder_count", "created_at", "updated_at"}).
		AddRow("l1", "tn1", "t1", "sickleave", "pending", "missing", 2, now, now)
	mock.ExpectQuery("SELECT .+ FROM leave_requests\\s+WHERE leave_type = 'sickleave'").
		WillReturnRows(rows)

	leaves, err := repo.ListPendingSickMissing(context.Background())
	require.NoError(t, err)
	require.Len(t, leaves, 1)
	assert.Equal(t, 2, leaves[0].AttachmentReminderCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCoverRepositoryInsertDuplicateIsNoop(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCoverRepository(db)

	mock.ExpectExec("INSERT INTO cover_assignments").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO cover_assignments").
		WillReturnResult(sqlmock.NewResult(0, 0))

	a := &models.CoverAssignment{
		TenantID:  "tn1",
		Date:      time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC),
		SlotKey:   "P1|Period 1|08:00-08:45",
		RequestID: "req-1",
	}
	inserted, err := repo.Insert(context.Background(), a)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = repo.Insert(context.Background(), a)
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLeaveRecordRepositorySetForwardResult(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewLeaveRecordRepository(db)

	mock.ExpectExec("UPDATE leave_records SET forward_status").
		WithArgs("tn1", "req-1", models.ForwardSent, "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.SetForwardResult(context.Background(), "tn1", "req-1", models.ForwardSent, ""))
	assert.NoError(t, mock.ExpectationsWereMet())
}
