package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/school-ops-api/internal/models"
	"github.com/noah-isme/school-ops-api/internal/service"
	"github.com/noah-isme/school-ops-api/pkg/civiltime"
	appErrors "github.com/noah-isme/school-ops-api/pkg/errors"
	"github.com/noah-isme/school-ops-api/pkg/export"
	"github.com/noah-isme/school-ops-api/pkg/response"
)

// CoverHandler manages cover assignment endpoints.
type CoverHandler struct {
	service *service.CoverService
	csv     *export.CSVExporter
	pdf     *export.PDFExporter
}

// NewCoverHandler constructs handler.
func NewCoverHandler(svc *service.CoverService) *CoverHandler {
	return &CoverHandler{
		service: svc,
		csv:     export.NewCSVExporter(),
		pdf:     export.NewPDFExporter(),
	}
}

func coverDateFromQuery(c *gin.Context) (string, bool) {
	raw := c.Query("date")
	if raw == "" {
		return "", false
	}
	return raw, true
}

// ListByDate godoc
// @Summary List cover assignments for a date
// @Tags Covers
// @Produce json
// @Param date query string true "Date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /covers [get]
func (h *CoverHandler) ListByDate(c *gin.Context) {
	raw, ok := coverDateFromQuery(c)
	if !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "date query parameter is required"))
		return
	}
	date, err := civiltime.ParseDate(raw)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "date must be YYYY-MM-DD"))
		return
	}
	covers, err := h.service.ListByDate(c.Request.Context(), claimsFromContext(c).TenantID, date)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, covers, nil)
}

// Edit godoc
// @Summary Edit a cover assignment
// @Tags Covers
// @Accept json
// @Produce json
// @Param id path string true "Assignment ID"
// @Param payload body models.CoverPatch true "Patch payload"
// @Success 200 {object} response.Envelope
// @Router /covers/{id} [patch]
func (h *CoverHandler) Edit(c *gin.Context) {
	var patch models.CoverPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	cover, err := h.service.Edit(c.Request.Context(), claimsFromContext(c).TenantID, c.Param("id"), patch)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cover, nil)
}

// Delete godoc
// @Summary Delete a cover assignment
// @Tags Covers
// @Produce json
// @Param id path string true "Assignment ID"
// @Success 204
// @Router /covers/{id} [delete]
func (h *CoverHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), claimsFromContext(c).TenantID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Backfill godoc
// @Summary Run the cover engine over approved leaves without assignments
// @Tags Covers
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /covers/backfill [post]
func (h *CoverHandler) Backfill(c *gin.Context) {
	created, err := h.service.Backfill(c.Request.Context(), claimsFromContext(c).TenantID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"created": created}, nil)
}

// Orphans godoc
// @Summary List cover request ids whose leave record has gone
// @Tags Covers
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /covers/orphans [get]
func (h *CoverHandler) Orphans(c *gin.Context) {
	orphans, err := h.service.Orphans(c.Request.Context(), claimsFromContext(c).TenantID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"request_ids": orphans}, nil)
}

var coverSheetHeaders = []string{
	"Period", "Time", "Absent Teacher", "Cover Teacher", "Subject", "Grade", "Class", "Status",
}

func coverSheetDataset(covers []models.CoverAssignment) export.Dataset {
	rows := make([]map[string]string, 0, len(covers))
	for _, a := range covers {
		rows = append(rows, map[string]string{
			"Period":         a.PeriodLabel,
			"Time":           a.ClassTime,
			"Absent Teacher": a.AbsentTeacher,
			"Cover Teacher":  a.CoverTeacher,
			"Subject":        a.ClassSubject,
			"Grade":          a.ClassGrade,
			"Class":          a.ClassDetails,
			"Status":         a.Status,
		})
	}
	return export.Dataset{Headers: coverSheetHeaders, Rows: rows}
}

// Export godoc
// @Summary Export the daily cover sheet
// @Tags Covers
// @Produce application/pdf
// @Param date query string true "Date (YYYY-MM-DD)"
// @Param format query string false "csv or pdf (default pdf)"
// @Success 200 {file} binary
// @Router /covers/export [get]
func (h *CoverHandler) Export(c *gin.Context) {
	raw, ok := coverDateFromQuery(c)
	if !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "date query parameter is required"))
		return
	}
	date, err := civiltime.ParseDate(raw)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "date must be YYYY-MM-DD"))
		return
	}
	covers, err := h.service.ListByDate(c.Request.Context(), claimsFromContext(c).TenantID, date)
	if err != nil {
		response.Error(c, err)
		return
	}

	dataset := coverSheetDataset(covers)
	filename := fmt.Sprintf("cover-sheet-%s", date.Format("2006-01-02"))

	if c.DefaultQuery("format", "pdf") == "csv" {
		payload, err := h.csv.Render(dataset)
		if err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export"))
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s.csv", filename))
		c.Data(http.StatusOK, "text/csv", payload)
		return
	}

	dataset.Title = fmt.Sprintf("Cover Sheet %s", date.Format("Monday 02 Jan 2006"))
	payload, err := h.pdf.Render(dataset)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export"))
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s.pdf", filename))
	c.Data(http.StatusOK, "application/pdf", payload)
}
