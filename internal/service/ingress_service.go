package service

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/school-ops-api/internal/models"
	"github.com/noah-isme/school-ops-api/pkg/civiltime"
	"github.com/noah-isme/school-ops-api/pkg/config"
	appErrors "github.com/noah-isme/school-ops-api/pkg/errors"
)

type ingressRecordStore interface {
	Upsert(ctx context.Context, rec *models.LeaveRecord) error
	FindByRequestID(ctx context.Context, tenantID, requestID string) (*models.LeaveRecord, error)
	SetForwardResult(ctx context.Context, tenantID, requestID string, status models.ForwardStatus, detail string) error
}

type coverAssigner interface {
	AssignForRecord(ctx context.Context, tenantID string, rec *models.LeaveRecord) ([]models.CoverAssignment, error)
}

// IngressPayload is the inbound leave-approval webhook body. Senders
// emit excuse_id and teacher.id as numbers or strings depending on
// their storage, so both decode through json.Number.
type IngressPayload struct {
	RequestID   string      `json:"request_id"`
	ExcuseID    json.Number `json:"excuse_id"`
	Email       string      `json:"email"`
	TeacherName string      `json:"teacher_name"`
	Teacher     *struct {
		ID    json.Number `json:"id"`
		Name  string      `json:"name"`
		Email string      `json:"email"`
	} `json:"teacher"`
	LeaveType    string  `json:"leave_type"`
	LeaveStart   string  `json:"leave_start"`
	LeaveDate    string  `json:"leave_date"`
	LeaveEnd     string  `json:"leave_end"`
	SubmittedAt  string  `json:"submitted_at"`
	Status       string  `json:"status"`
	Reason       string  `json:"reason"`
	AdminComment *string `json:"admin_comment"`
}

// IngressService receives leaves from the leave service, stores them
// locally, forwards approved ones downstream, and triggers the cover
// engine.
type IngressService struct {
	records ingressRecordStore
	covers  coverAssigner
	cfg     config.CoversConfig
	client  *http.Client
	logger  *zap.Logger
}

// NewIngressService constructs an IngressService.
func NewIngressService(records ingressRecordStore, covers coverAssigner, cfg config.CoversConfig, logger *zap.Logger) *IngressService {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.ForwardTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &IngressService{
		records: records,
		covers:  covers,
		cfg:     cfg,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// dateLayouts are tried in order when parsing inbound dates.
var dateLayouts = []string{"2006-01-02", "02-01-2006", "01/02/2006"}

// parseIngressDate parses ISO, dd-mm-YYYY, or mm/dd/YYYY; unparseable
// values fall back to today.
func parseIngressDate(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if d, err := time.ParseInLocation(layout, raw, civiltime.Zone); err == nil {
			return d
		}
	}
	now := civiltime.Now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, civiltime.Zone)
}

// Receive validates and upserts one webhook delivery, then runs the cover
// engine for it. The returned record reflects persisted state.
func (s *IngressService) Receive(ctx context.Context, tenantID string, payload IngressPayload) (*models.LeaveRecord, error) {
	if strings.TrimSpace(payload.RequestID) == "" {
		return nil, validationErr("request_id is required")
	}
	teacherName := payload.TeacherName
	teacherEmail := payload.Email
	if payload.Teacher != nil {
		if teacherName == "" {
			teacherName = payload.Teacher.Name
		}
		if teacherEmail == "" {
			teacherEmail = payload.Teacher.Email
		}
	}
	if teacherName == "" && teacherEmail == "" {
		return nil, validationErr("teacher identification is required")
	}
	startRaw := payload.LeaveStart
	if startRaw == "" {
		startRaw = payload.LeaveDate
	}
	if startRaw == "" {
		return nil, validationErr("leave_start or leave_date is required")
	}

	start := parseIngressDate(startRaw)
	end := start
	if payload.LeaveEnd != "" {
		end = parseIngressDate(payload.LeaveEnd)
		if end.Before(start) {
			end = start
		}
	}

	rec := &models.LeaveRecord{
		TenantID:     tenantID,
		RequestID:    payload.RequestID,
		TeacherName:  teacherName,
		TeacherEmail: teacherEmail,
		LeaveType:    payload.LeaveType,
		Reason:       payload.Reason,
		Status:       payload.Status,
		LeaveStart:   start,
		LeaveEnd:     end,
	}
	if err := s.records.Upsert(ctx, rec); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store leave record")
	}

	// Reload so a pre-existing forward status is visible.
	stored, err := s.records.FindByRequestID(ctx, tenantID, payload.RequestID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("leave record reload failed", zap.String("request_id", payload.RequestID), zap.Error(err))
		}
		stored = rec
	}

	if stored.Status == "approved" && stored.ForwardStatus != models.ForwardSent && s.cfg.ForwardURL != "" {
		s.forward(ctx, tenantID, stored)
	}

	if stored.Status == "approved" && s.covers != nil {
		if _, err := s.covers.AssignForRecord(ctx, tenantID, stored); err != nil {
			s.logger.Error("cover assignment failed",
				zap.String("request_id", stored.RequestID), zap.Error(err))
		}
	}

	return stored, nil
}

func (s *IngressService) forward(ctx context.Context, tenantID string, rec *models.LeaveRecord) {
	payload := map[string]interface{}{
		"request_id":    rec.RequestID,
		"teacher_name":  rec.TeacherName,
		"teacher_email": rec.TeacherEmail,
		"leave_type":    rec.LeaveType,
		"leave_start":   rec.LeaveStart.Format("2006-01-02"),
		"leave_end":     rec.LeaveEnd.Format("2006-01-02"),
		"status":        rec.Status,
		"reason":        rec.Reason,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		s.recordForward(ctx, tenantID, rec, models.ForwardFailed, fmt.Sprintf("marshal: %v", err))
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.ForwardURL, bytes.NewReader(body))
	if err != nil {
		s.recordForward(ctx, tenantID, rec, models.ForwardFailed, fmt.Sprintf("build request: %v", err))
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.ForwardSecret != "" {
		req.Header.Set("X-Leave-Webhook-Secret", s.cfg.ForwardSecret)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		s.recordForward(ctx, tenantID, rec, models.ForwardFailed, err.Error())
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		s.recordForward(ctx, tenantID, rec, models.ForwardFailed, fmt.Sprintf("downstream returned %d", resp.StatusCode))
		return
	}
	s.recordForward(ctx, tenantID, rec, models.ForwardSent, "")
}

func (s *IngressService) recordForward(ctx context.Context, tenantID string, rec *models.LeaveRecord, status models.ForwardStatus, detail string) {
	rec.ForwardStatus = status
	rec.ForwardDetail = detail
	if err := s.records.SetForwardResult(ctx, tenantID, rec.RequestID, status, detail); err != nil {
		s.logger.Error("forward result save failed",
			zap.String("request_id", rec.RequestID), zap.Error(err))
		return
	}
	if status == models.ForwardFailed {
		s.logger.Warn("leave record forward failed",
			zap.String("request_id", rec.RequestID), zap.String("detail", detail))
	} else {
		s.logger.Info("leave record forwarded", zap.String("request_id", rec.RequestID))
	}
}
