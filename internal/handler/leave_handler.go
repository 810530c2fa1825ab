package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/school-ops-api/internal/models"
	"github.com/noah-isme/school-ops-api/internal/service"
	"github.com/noah-isme/school-ops-api/pkg/civiltime"
	appErrors "github.com/noah-isme/school-ops-api/pkg/errors"
	"github.com/noah-isme/school-ops-api/pkg/response"
)

// LeaveHandler manages the absence lifecycle endpoints.
type LeaveHandler struct {
	service *service.LeaveService
	metrics *service.MetricsService
}

// NewLeaveHandler constructs handler.
func NewLeaveHandler(svc *service.LeaveService, metrics *service.MetricsService) *LeaveHandler {
	return &LeaveHandler{service: svc, metrics: metrics}
}

// attachmentFromForm pulls the optional multipart document.
func attachmentFromForm(c *gin.Context) (*service.AttachmentUpload, error) {
	file, err := c.FormFile("attachment")
	if err != nil {
		if err == http.ErrMissingFile {
			return nil, nil
		}
		return nil, err
	}
	reader, err := file.Open()
	if err != nil {
		return nil, err
	}
	return &service.AttachmentUpload{FileName: file.Filename, Size: file.Size, Reader: reader}, nil
}

// Submit godoc
// @Summary Submit a leave request
// @Tags Leaves
// @Accept mpfd
// @Produce json
// @Param leave_type formData string true "Leave type"
// @Param reason formData string true "Reason"
// @Param leave_date formData string true "Leave date (YYYY-MM-DD)"
// @Param end_date formData string false "End date (YYYY-MM-DD)"
// @Param start_time formData string false "Start time (HH:MM)"
// @Param end_time formData string false "End time (HH:MM)"
// @Param attachment formData file false "Sick leave document"
// @Success 201 {object} response.Envelope
// @Router /leaves [post]
func (h *LeaveHandler) Submit(c *gin.Context) {
	claims := claimsFromContext(c)
	req := service.SubmitLeaveRequest{
		LeaveType: c.PostForm("leave_type"),
		Reason:    c.PostForm("reason"),
		LeaveDate: c.PostForm("leave_date"),
		EndDate:   c.PostForm("end_date"),
		StartTime: c.PostForm("start_time"),
		EndTime:   c.PostForm("end_time"),
	}

	upload, err := attachmentFromForm(c)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid attachment"))
		return
	}
	if upload != nil {
		if closer, ok := upload.Reader.(interface{ Close() error }); ok {
			defer closer.Close()
		}
	}

	leave, err := h.service.Submit(c.Request.Context(), claims.TenantID, claims.TeacherID, req, upload)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.metrics.RecordLeaveSubmitted(string(leave.LeaveType))
	response.Created(c, leave)
}

// List godoc
// @Summary List leave requests
// @Tags Leaves
// @Produce json
// @Param status query string false "Filter by status"
// @Param leave_type query string false "Filter by leave type"
// @Param from query string false "Start of date range (YYYY-MM-DD)"
// @Param to query string false "End of date range (YYYY-MM-DD)"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /leaves [get]
func (h *LeaveHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)

	var filter models.LeaveFilter
	if raw := c.Query("status"); raw != "" {
		status := models.LeaveStatus(raw)
		filter.Status = &status
	}
	if raw := c.Query("leave_type"); raw != "" {
		leaveType := models.LeaveType(raw)
		filter.LeaveType = &leaveType
	}
	if raw := c.Query("from"); raw != "" {
		if from, err := civiltime.ParseDate(raw); err == nil {
			filter.DateFrom = &from
		}
	}
	if raw := c.Query("to"); raw != "" {
		if to, err := civiltime.ParseDate(raw); err == nil {
			filter.DateTo = &to
		}
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if limit, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = limit
	}

	leaves, pagination, err := h.service.List(c.Request.Context(), claims, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, leaves, pagination)
}

// Get godoc
// @Summary Get a leave request
// @Tags Leaves
// @Produce json
// @Param id path string true "Leave ID"
// @Success 200 {object} response.Envelope
// @Router /leaves/{id} [get]
func (h *LeaveHandler) Get(c *gin.Context) {
	leave, err := h.service.Get(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, leave, nil)
}

// UploadAttachment godoc
// @Summary Upload or replace the sick leave document
// @Tags Leaves
// @Accept mpfd
// @Produce json
// @Param id path string true "Leave ID"
// @Param attachment formData file true "Sick leave document"
// @Success 200 {object} response.Envelope
// @Router /leaves/{id}/attachment [post]
func (h *LeaveHandler) UploadAttachment(c *gin.Context) {
	upload, err := attachmentFromForm(c)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid attachment"))
		return
	}
	if upload != nil {
		if closer, ok := upload.Reader.(interface{ Close() error }); ok {
			defer closer.Close()
		}
	}

	leave, err := h.service.UploadAttachment(c.Request.Context(), claimsFromContext(c), c.Param("id"), upload)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, leave, nil)
}

// AcknowledgeNoDocument godoc
// @Summary Concede no sick leave document will be supplied
// @Tags Leaves
// @Produce json
// @Param id path string true "Leave ID"
// @Success 200 {object} response.Envelope
// @Router /leaves/{id}/no-document [post]
func (h *LeaveHandler) AcknowledgeNoDocument(c *gin.Context) {
	leave, err := h.service.AcknowledgeNoDocument(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, leave, nil)
}

// Review godoc
// @Summary Review a leave request
// @Tags Leaves
// @Accept json
// @Produce json
// @Param id path string true "Leave ID"
// @Param payload body service.ReviewLeaveRequest true "Review payload"
// @Success 200 {object} response.Envelope
// @Router /leaves/{id}/review [post]
func (h *LeaveHandler) Review(c *gin.Context) {
	var req service.ReviewLeaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	leave, err := h.service.Review(c.Request.Context(), claimsFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, leave, nil)
}

type addMessageRequest struct {
	Body string `json:"body"`
}

// AddMessage godoc
// @Summary Add a message to a leave thread
// @Tags Leaves
// @Accept json
// @Produce json
// @Param id path string true "Leave ID"
// @Param payload body addMessageRequest true "Message payload"
// @Success 201 {object} response.Envelope
// @Router /leaves/{id}/messages [post]
func (h *LeaveHandler) AddMessage(c *gin.Context) {
	var req addMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	msg, err := h.service.AddMessage(c.Request.Context(), claimsFromContext(c), c.Param("id"), req.Body)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, msg)
}

// Messages godoc
// @Summary List a leave thread
// @Tags Leaves
// @Produce json
// @Param id path string true "Leave ID"
// @Success 200 {object} response.Envelope
// @Router /leaves/{id}/messages [get]
func (h *LeaveHandler) Messages(c *gin.Context) {
	messages, err := h.service.Messages(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, messages, nil)
}
