package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/school-ops-api/internal/service"
	appErrors "github.com/noah-isme/school-ops-api/pkg/errors"
	"github.com/noah-isme/school-ops-api/pkg/response"
)

// StudentHandler manages the pupil roster endpoints.
type StudentHandler struct {
	service *service.StudentService
}

// NewStudentHandler constructs handler.
func NewStudentHandler(svc *service.StudentService) *StudentHandler {
	return &StudentHandler{service: svc}
}

// ListByGrade godoc
// @Summary List students in a grade
// @Tags Students
// @Produce json
// @Param grade query int true "Grade number"
// @Success 200 {object} response.Envelope
// @Router /students [get]
func (h *StudentHandler) ListByGrade(c *gin.Context) {
	grade, err := strconv.Atoi(c.Query("grade"))
	if err != nil || grade <= 0 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "grade query parameter is required"))
		return
	}
	students, err := h.service.ListByGrade(c.Request.Context(), claimsFromContext(c).TenantID, grade)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, students, nil)
}

// Get godoc
// @Summary Get a student by ESIS code
// @Tags Students
// @Produce json
// @Param esis path string true "ESIS code"
// @Success 200 {object} response.Envelope
// @Router /students/{esis} [get]
func (h *StudentHandler) Get(c *gin.Context) {
	student, err := h.service.GetByESIS(c.Request.Context(), claimsFromContext(c).TenantID, c.Param("esis"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student, nil)
}

// Upsert godoc
// @Summary Create or refresh a student record
// @Tags Students
// @Accept json
// @Produce json
// @Param payload body service.UpsertStudentRequest true "Student payload"
// @Success 200 {object} response.Envelope
// @Router /students [put]
func (h *StudentHandler) Upsert(c *gin.Context) {
	var req service.UpsertStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	student, err := h.service.Upsert(c.Request.Context(), claimsFromContext(c).TenantID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student, nil)
}
