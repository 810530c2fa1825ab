package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/school-ops-api/internal/models"
	"github.com/noah-isme/school-ops-api/internal/service"
	"github.com/noah-isme/school-ops-api/pkg/civiltime"
	appErrors "github.com/noah-isme/school-ops-api/pkg/errors"
	"github.com/noah-isme/school-ops-api/pkg/response"
)

// PodDutyHandler manages grade-pod roster endpoints. Roster reads are
// cached; every write invalidates the tenant's roster keys.
type PodDutyHandler struct {
	service *service.PodDutyService
	cache   *service.CacheService
}

// NewPodDutyHandler constructs handler.
func NewPodDutyHandler(svc *service.PodDutyService, cache *service.CacheService) *PodDutyHandler {
	return &PodDutyHandler{service: svc, cache: cache}
}

func podRosterCacheKey(tenantID, date string, grade int) string {
	return fmt.Sprintf("podduty:%s:%s:%d", tenantID, date, grade)
}

func (h *PodDutyHandler) invalidateRosters(c *gin.Context, tenantID string) {
	_ = h.cache.Invalidate(c.Request.Context(), fmt.Sprintf("podduty:%s:*", tenantID))
}

// SaveRoster godoc
// @Summary Replace a grade's pod roster for a day
// @Tags PodDuty
// @Accept json
// @Produce json
// @Param payload body service.SavePodRosterRequest true "Roster payload"
// @Success 200 {object} response.Envelope
// @Router /pod-duty/roster [put]
func (h *PodDutyHandler) SaveRoster(c *gin.Context) {
	var req service.SavePodRosterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	claims := claimsFromContext(c)
	roster, err := h.service.SaveRoster(c.Request.Context(), claims, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.invalidateRosters(c, claims.TenantID)
	response.JSON(c, http.StatusOK, roster, nil)
}

type assignPodSlotRequest struct {
	Date  string                 `json:"date"`
	Grade int                    `json:"grade"`
	Slot  service.PodSlotRequest `json:"slot"`
}

// AssignSlot godoc
// @Summary Assign a single pod roster slot
// @Tags PodDuty
// @Accept json
// @Produce json
// @Param payload body assignPodSlotRequest true "Slot payload"
// @Success 201 {object} response.Envelope
// @Router /pod-duty/slots [post]
func (h *PodDutyHandler) AssignSlot(c *gin.Context) {
	var req assignPodSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	claims := claimsFromContext(c)
	assignment, err := h.service.AssignSlot(c.Request.Context(), claims, req.Date, req.Grade, req.Slot)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.invalidateRosters(c, claims.TenantID)
	response.Created(c, assignment)
}

// Roster godoc
// @Summary Get pod rosters for a day
// @Tags PodDuty
// @Produce json
// @Param date query string false "Date (YYYY-MM-DD, defaults to the focus date)"
// @Param grade query int false "Grade (omit for all grades)"
// @Success 200 {object} response.Envelope
// @Router /pod-duty [get]
func (h *PodDutyHandler) Roster(c *gin.Context) {
	date, err := dutyDate(c)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "date must be YYYY-MM-DD"))
		return
	}
	grade := 0
	if raw := c.Query("grade"); raw != "" {
		grade, err = strconv.Atoi(raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "grade must be a number"))
			return
		}
	}

	claims := claimsFromContext(c)
	key := podRosterCacheKey(claims.TenantID, date.Format("2006-01-02"), grade)
	var cached []models.PodDutyAssignment
	if hit, _ := h.cache.Get(c.Request.Context(), key, &cached); hit {
		response.JSON(c, http.StatusOK, cached, nil)
		return
	}

	roster, err := h.service.Roster(c.Request.Context(), claims.TenantID, date, grade)
	if err != nil {
		response.Error(c, err)
		return
	}
	_ = h.cache.Set(c.Request.Context(), key, roster, 0)
	response.JSON(c, http.StatusOK, roster, nil)
}

// Candidates godoc
// @Summary List assignment candidates for a slot
// @Tags PodDuty
// @Produce json
// @Param date query string false "Date (YYYY-MM-DD, defaults to the focus date)"
// @Param day query string true "Day code (Mo..Fr)"
// @Param period query string true "Period label"
// @Param break query bool false "Break slot (excludes SLT)"
// @Success 200 {object} response.Envelope
// @Router /pod-duty/candidates [get]
func (h *PodDutyHandler) Candidates(c *gin.Context) {
	date, err := dutyDate(c)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "date must be YYYY-MM-DD"))
		return
	}
	day := c.Query("day")
	if day == "" {
		if code, ok := civiltime.DayCode(date); ok {
			day = code
		}
	}
	forBreak := c.Query("break") == "true"

	candidates, err := h.service.Candidates(c.Request.Context(), claimsFromContext(c).TenantID, date, day, c.Query("period"), forBreak)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, candidates, nil)
}

// Acknowledge godoc
// @Summary Acknowledge a pod roster slot
// @Tags PodDuty
// @Accept json
// @Produce json
// @Param id path string true "Slot ID"
// @Param payload body service.AckRequest true "Acknowledgement payload"
// @Success 200 {object} response.Envelope
// @Router /pod-duty/{id}/ack [post]
func (h *PodDutyHandler) Acknowledge(c *gin.Context) {
	var req service.AckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	claims := claimsFromContext(c)
	assignment, err := h.service.Acknowledge(c.Request.Context(), claims, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.invalidateRosters(c, claims.TenantID)
	response.JSON(c, http.StatusOK, assignment, nil)
}

// Remove godoc
// @Summary Remove a pod roster slot
// @Tags PodDuty
// @Produce json
// @Param id path string true "Slot ID"
// @Success 204
// @Router /pod-duty/{id} [delete]
func (h *PodDutyHandler) Remove(c *gin.Context) {
	claims := claimsFromContext(c)
	if err := h.service.Remove(c.Request.Context(), claims, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	h.invalidateRosters(c, claims.TenantID)
	response.NoContent(c)
}
