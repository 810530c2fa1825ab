package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/school-ops-api/internal/service"
	"github.com/noah-isme/school-ops-api/pkg/civiltime"
	appErrors "github.com/noah-isme/school-ops-api/pkg/errors"
	"github.com/noah-isme/school-ops-api/pkg/response"
)

// DutyHandler manages the daily morning and dismissal rosters.
type DutyHandler struct {
	service *service.DutyService
}

// NewDutyHandler constructs handler.
func NewDutyHandler(svc *service.DutyService) *DutyHandler {
	return &DutyHandler{service: svc}
}

// dutyDate resolves the date query, defaulting to the roster focus date:
// today before 15:00 civil, tomorrow after.
func dutyDate(c *gin.Context) (time.Time, error) {
	raw := c.Query("date")
	if raw == "" {
		return civiltime.DutyFocusDate(civiltime.Now()), nil
	}
	return civiltime.ParseDate(raw)
}

// Assign godoc
// @Summary Assign a daily duty slot
// @Tags Duty
// @Accept json
// @Produce json
// @Param payload body service.AssignDutyRequest true "Assignment payload"
// @Success 201 {object} response.Envelope
// @Router /duty [post]
func (h *DutyHandler) Assign(c *gin.Context) {
	var req service.AssignDutyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	assignment, err := h.service.Assign(c.Request.Context(), claimsFromContext(c).TenantID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, assignment)
}

// Roster godoc
// @Summary Get the daily duty roster
// @Tags Duty
// @Produce json
// @Param date query string false "Date (YYYY-MM-DD, defaults to the focus date)"
// @Success 200 {object} response.Envelope
// @Router /duty [get]
func (h *DutyHandler) Roster(c *gin.Context) {
	date, err := dutyDate(c)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "date must be YYYY-MM-DD"))
		return
	}
	roster, err := h.service.Roster(c.Request.Context(), claimsFromContext(c).TenantID, date)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"date": date.Format("2006-01-02"), "assignments": roster}, nil)
}

// Acknowledge godoc
// @Summary Acknowledge a duty assignment
// @Tags Duty
// @Accept json
// @Produce json
// @Param id path string true "Assignment ID"
// @Param payload body service.AckRequest true "Acknowledgement payload"
// @Success 200 {object} response.Envelope
// @Router /duty/{id}/ack [post]
func (h *DutyHandler) Acknowledge(c *gin.Context) {
	var req service.AckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	assignment, err := h.service.Acknowledge(c.Request.Context(), claimsFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assignment, nil)
}

// Remove godoc
// @Summary Remove a duty assignment
// @Tags Duty
// @Produce json
// @Param id path string true "Assignment ID"
// @Success 204
// @Router /duty/{id} [delete]
func (h *DutyHandler) Remove(c *gin.Context) {
	if err := h.service.Remove(c.Request.Context(), claimsFromContext(c).TenantID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
