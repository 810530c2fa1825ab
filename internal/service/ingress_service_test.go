package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/school-ops-api/internal/models"
	"github.com/noah-isme/school-ops-api/pkg/civiltime"
	"github.com/noah-isme/school-ops-api/pkg/config"
	appErrors "github.com/noah-isme/school-ops-api/pkg/errors"
)

type mockIngressStore struct {
	rows     map[string]*models.LeaveRecord
	forwards []models.ForwardStatus
}

func (m *mockIngressStore) Upsert(ctx context.Context, rec *models.LeaveRecord) error {
	if m.rows == nil {
		m.rows = make(map[string]*models.LeaveRecord)
	}
	if existing, ok := m.rows[rec.RequestID]; ok {
		rec.ForwardStatus = existing.ForwardStatus
	} else if rec.ForwardStatus == "" {
		rec.ForwardStatus = models.ForwardPending
	}
	cp := *rec
	m.rows[rec.RequestID] = &cp
	return nil
}

func (m *mockIngressStore) FindByRequestID(ctx context.Context, tenantID, requestID string) (*models.LeaveRecord, error) {
	if rec, ok := m.rows[requestID]; ok {
		cp := *rec
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockIngressStore) SetForwardResult(ctx context.Context, tenantID, requestID string, status models.ForwardStatus, detail string) error {
	m.forwards = append(m.forwards, status)
	if rec, ok := m.rows[requestID]; ok {
		rec.ForwardStatus = status
		rec.ForwardDetail = detail
	}
	return nil
}

type mockAssigner struct {
	runs []string
}

func (m *mockAssigner) AssignForRecord(ctx context.Context, tenantID string, rec *models.LeaveRecord) ([]models.CoverAssignment, error) {
	m.runs = append(m.runs, rec.RequestID)
	return nil, nil
}

func TestIngressValidation(t *testing.T) {
	store := &mockIngressStore{}
	svc := NewIngressService(store, nil, config.CoversConfig{}, nil)

	_, err := svc.Receive(context.Background(), "tn1", IngressPayload{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.Receive(context.Background(), "tn1", IngressPayload{RequestID: "req-1", TeacherName: "Alice"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestIngressDateParsing(t *testing.T) {
	want := time.Date(2025, 3, 11, 0, 0, 0, 0, civiltime.Zone)
	assert.True(t, want.Equal(parseIngressDate("2025-03-11")))
	assert.True(t, want.Equal(parseIngressDate("11-03-2025")))
	assert.True(t, want.Equal(parseIngressDate("03/11/2025")))

	// Unparseable values fall back to today.
	today := civiltime.Now()
	fallback := parseIngressDate("not a date")
	assert.Equal(t, today.Year(), fallback.Year())
	assert.Equal(t, today.YearDay(), fallback.YearDay())
}

func TestIngressPayloadDecodesNumericIDs(t *testing.T) {
	// Senders emit excuse_id and teacher.id as either numbers or strings.
	var fromInts IngressPayload
	require.NoError(t, json.Unmarshal([]byte(`{
		"request_id": "req-1",
		"excuse_id": 4711,
		"teacher": {"id": 42, "name": "Alice", "email": "alice@school.ae"},
		"status": "approved",
		"leave_date": "2025-03-11"
	}`), &fromInts))
	assert.Equal(t, json.Number("4711"), fromInts.ExcuseID)
	assert.Equal(t, json.Number("42"), fromInts.Teacher.ID)

	var fromStrings IngressPayload
	require.NoError(t, json.Unmarshal([]byte(`{
		"request_id": "req-2",
		"excuse_id": "4711",
		"teacher": {"id": "42"}
	}`), &fromStrings))
	assert.Equal(t, json.Number("4711"), fromStrings.ExcuseID)

	store := &mockIngressStore{}
	svc := NewIngressService(store, nil, config.CoversConfig{}, nil)
	rec, err := svc.Receive(context.Background(), "tn1", fromInts)
	require.NoError(t, err)
	assert.Equal(t, "Alice", rec.TeacherName)
	assert.Equal(t, "alice@school.ae", rec.TeacherEmail)
}

func TestIngressUpsertTriggersCovers(t *testing.T) {
	store := &mockIngressStore{}
	assigner := &mockAssigner{}
	svc := NewIngressService(store, assigner, config.CoversConfig{}, nil)

	rec, err := svc.Receive(context.Background(), "tn1", IngressPayload{
		RequestID:   "req-1",
		TeacherName: "Alice",
		Email:       "alice@school.ae",
		Status:      "approved",
		LeaveStart:  "2025-03-11",
	})
	require.NoError(t, err)
	assert.Equal(t, "approved", rec.Status)
	assert.True(t, rec.LeaveEnd.Equal(rec.LeaveStart))
	assert.Equal(t, []string{"req-1"}, assigner.runs)
}

func TestIngressPendingDoesNotTriggerCovers(t *testing.T) {
	store := &mockIngressStore{}
	assigner := &mockAssigner{}
	svc := NewIngressService(store, assigner, config.CoversConfig{}, nil)

	_, err := svc.Receive(context.Background(), "tn1", IngressPayload{
		RequestID:   "req-1",
		TeacherName: "Alice",
		Status:      "pending",
		LeaveDate:   "2025-03-11",
	})
	require.NoError(t, err)
	assert.Empty(t, assigner.runs)
}

func TestIngressForwardOnceOnly(t *testing.T) {
	var hits int
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		assert.Equal(t, "s3cret", r.Header.Get("X-Leave-Webhook-Secret"))
		w.WriteHeader(http.StatusOK)
	}))
	defer downstream.Close()

	store := &mockIngressStore{}
	svc := NewIngressService(store, nil, config.CoversConfig{
		ForwardURL:    downstream.URL,
		ForwardSecret: "s3cret",
	}, nil)

	payload := IngressPayload{
		RequestID:   "req-1",
		TeacherName: "Alice",
		Email:       "alice@school.ae",
		Status:      "approved",
		LeaveStart:  "2025-03-11",
	}
	rec, err := svc.Receive(context.Background(), "tn1", payload)
	require.NoError(t, err)
	assert.Equal(t, models.ForwardSent, rec.ForwardStatus)
	assert.Equal(t, 1, hits)

	// A re-delivery preserves the sent state and does not re-forward.
	rec, err = svc.Receive(context.Background(), "tn1", payload)
	require.NoError(t, err)
	assert.Equal(t, models.ForwardSent, rec.ForwardStatus)
	assert.Equal(t, 1, hits)
}

func TestIngressForwardFailureRecorded(t *testing.T) {
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer downstream.Close()

	store := &mockIngressStore{}
	svc := NewIngressService(store, nil, config.CoversConfig{ForwardURL: downstream.URL}, nil)

	rec, err := svc.Receive(context.Background(), "tn1", IngressPayload{
		RequestID:   "req-1",
		TeacherName: "Alice",
		Status:      "approved",
		LeaveStart:  "2025-03-11",
	})
	require.NoError(t, err)
	assert.Equal(t, models.ForwardFailed, rec.ForwardStatus)
	assert.NotEmpty(t, rec.ForwardDetail)
}
