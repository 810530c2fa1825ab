package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/school-ops-api/internal/models"
	"github.com/noah-isme/school-ops-api/internal/service"
	appErrors "github.com/noah-isme/school-ops-api/pkg/errors"
	"github.com/noah-isme/school-ops-api/pkg/response"
)

// CatalogHandler exposes the schedule catalog: availability lookups,
// per-teacher grids, and the import and refresh operations.
type CatalogHandler struct {
	catalog   *service.CatalogService
	schedules *service.ScheduleService
	cache     *service.CacheService
}

// NewCatalogHandler constructs handler.
func NewCatalogHandler(catalog *service.CatalogService, schedules *service.ScheduleService, cache *service.CacheService) *CatalogHandler {
	return &CatalogHandler{catalog: catalog, schedules: schedules, cache: cache}
}

type availabilityResponse struct {
	Day       string                     `json:"day"`
	Period    string                     `json:"period"`
	Available []models.AvailabilityEntry `json:"available"`
	Occupied  []models.OccupiedTeacher   `json:"occupied"`
}

// CheckAvailability godoc
// @Summary List free and occupied teachers for a slot
// @Tags Catalog
// @Produce json
// @Param day query string true "Day code (Mo..Fr)"
// @Param period query string true "Period label"
// @Success 200 {object} response.Envelope
// @Router /check-availability [get]
func (h *CatalogHandler) CheckAvailability(c *gin.Context) {
	day := c.Query("day")
	period := c.Query("period")
	if day == "" || period == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "day and period query parameters are required"))
		return
	}
	tenantID := claimsFromContext(c).TenantID

	key := fmt.Sprintf("availability:%s:%s:%s", tenantID, day, service.CanonicalPeriod(period))
	var cached availabilityResponse
	if hit, _ := h.cache.Get(c.Request.Context(), key, &cached); hit {
		response.JSON(c, http.StatusOK, cached, nil)
		return
	}

	result := availabilityResponse{
		Day:       day,
		Period:    service.CanonicalPeriod(period),
		Available: h.catalog.AvailabilityEntries(tenantID, day, period),
		Occupied:  h.catalog.TeachersOccupied(tenantID, day, period),
	}
	_ = h.cache.Set(c.Request.Context(), key, result, 0)
	response.JSON(c, http.StatusOK, result, nil)
}

// TeacherSchedule godoc
// @Summary Get one teacher's schedule for a day
// @Tags Catalog
// @Produce json
// @Param id path string true "Teacher ID"
// @Param day query string true "Day code (Mo..Fr)"
// @Success 200 {object} response.Envelope
// @Router /teachers/{id}/schedule [get]
func (h *CatalogHandler) TeacherSchedule(c *gin.Context) {
	day := c.Query("day")
	if day == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "day query parameter is required"))
		return
	}
	tenantID := claimsFromContext(c).TenantID
	teacherID := c.Param("id")
	response.JSON(c, http.StatusOK, gin.H{
		"schedule": h.catalog.Schedule(tenantID, teacherID, day),
		"summary":  h.catalog.DaySummary(tenantID, teacherID, day),
		"cycle":    h.catalog.Cycle(tenantID, teacherID),
		"grades":   h.catalog.GradeLevels(tenantID, teacherID),
	}, nil)
}

// ImportSchedule godoc
// @Summary Replace one teacher's weekly schedule grid
// @Tags Catalog
// @Accept json
// @Produce json
// @Param id path string true "Teacher ID"
// @Param payload body service.ImportScheduleRequest true "Schedule entries"
// @Success 200 {object} response.Envelope
// @Router /teachers/{id}/schedule [put]
func (h *CatalogHandler) ImportSchedule(c *gin.Context) {
	var req service.ImportScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	tenantID := claimsFromContext(c).TenantID
	imported, err := h.schedules.Import(c.Request.Context(), tenantID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	_ = h.cache.Invalidate(c.Request.Context(), fmt.Sprintf("availability:%s:*", tenantID))
	response.JSON(c, http.StatusOK, gin.H{"imported": imported}, nil)
}

// Refresh godoc
// @Summary Rebuild the catalog from the store
// @Tags Catalog
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /catalog/refresh [post]
func (h *CatalogHandler) Refresh(c *gin.Context) {
	tenantID := claimsFromContext(c).TenantID
	if err := h.catalog.Refresh(c.Request.Context(), tenantID); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to refresh catalog"))
		return
	}
	_ = h.cache.Invalidate(c.Request.Context(), fmt.Sprintf("availability:%s:*", tenantID))
	response.JSON(c, http.StatusOK, gin.H{"status": "refreshed"}, nil)
}
