package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/school-ops-api/internal/service"
	appErrors "github.com/noah-isme/school-ops-api/pkg/errors"
	"github.com/noah-isme/school-ops-api/pkg/msgraph"
	"github.com/noah-isme/school-ops-api/pkg/response"
)

// AdminHandler exposes operational endpoints: Graph sign-in management
// and the metrics snapshot.
type AdminHandler struct {
	flows   *msgraph.DeviceFlowRegistry
	tokens  *msgraph.TokenCache
	metrics *service.MetricsService
}

// NewAdminHandler constructs handler.
func NewAdminHandler(flows *msgraph.DeviceFlowRegistry, tokens *msgraph.TokenCache, metrics *service.MetricsService) *AdminHandler {
	return &AdminHandler{flows: flows, tokens: tokens, metrics: metrics}
}

type startDeviceFlowRequest struct {
	Profile string `json:"profile"`
}

// StartDeviceFlow godoc
// @Summary Start a Graph device-code sign-in
// @Tags Admin
// @Accept json
// @Produce json
// @Param payload body startDeviceFlowRequest true "Profile"
// @Success 201 {object} response.Envelope
// @Router /admin/graph/device-flows [post]
func (h *AdminHandler) StartDeviceFlow(c *gin.Context) {
	if h.flows == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrPreconditionFailed, "graph integration is not configured"))
		return
	}
	var req startDeviceFlowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if req.Profile == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "profile is required"))
		return
	}
	flow, err := h.flows.Start(c.Request.Context(), req.Profile)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to start device flow"))
		return
	}
	response.Created(c, flow)
}

// ListDeviceFlows godoc
// @Summary List Graph device-code sign-ins
// @Tags Admin
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /admin/graph/device-flows [get]
func (h *AdminHandler) ListDeviceFlows(c *gin.Context) {
	if h.flows == nil {
		response.JSON(c, http.StatusOK, []msgraph.DeviceFlow{}, nil)
		return
	}
	response.JSON(c, http.StatusOK, h.flows.List(), nil)
}

// PurgeDeviceFlows godoc
// @Summary Remove finished Graph sign-ins
// @Tags Admin
// @Produce json
// @Success 204
// @Router /admin/graph/device-flows [delete]
func (h *AdminHandler) PurgeDeviceFlows(c *gin.Context) {
	if h.flows != nil {
		h.flows.Purge()
	}
	response.NoContent(c)
}

// TokenStatus godoc
// @Summary Check whether a Graph profile holds a valid token
// @Tags Admin
// @Produce json
// @Param profile query string true "Token profile"
// @Success 200 {object} response.Envelope
// @Router /admin/graph/token [get]
func (h *AdminHandler) TokenStatus(c *gin.Context) {
	profile := c.Query("profile")
	if profile == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "profile query parameter is required"))
		return
	}
	if h.tokens == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrPreconditionFailed, "graph integration is not configured"))
		return
	}
	token, err := h.tokens.GetTokenSilent(c.Request.Context(), profile)
	if err != nil {
		response.JSON(c, http.StatusOK, gin.H{"profile": profile, "signed_in": false, "detail": err.Error()}, nil)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{
		"profile":   profile,
		"signed_in": true,
		"expires":   token.Expiry,
	}, nil)
}

// Metrics godoc
// @Summary Get the operational metrics snapshot
// @Tags Admin
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /admin/metrics [get]
func (h *AdminHandler) Metrics(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.metrics.Snapshot(), nil)
}
