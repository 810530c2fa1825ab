package handler

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/school-ops-api/internal/service"
	"github.com/noah-isme/school-ops-api/pkg/config"
	appErrors "github.com/noah-isme/school-ops-api/pkg/errors"
	"github.com/noah-isme/school-ops-api/pkg/response"
)

// WebhookHandler receives leave approvals from the leave service. The
// endpoint is unauthenticated apart from the shared secret header; the
// tenant rides in the path.
type WebhookHandler struct {
	service *service.IngressService
	metrics *service.MetricsService
	cfg     config.IngressConfig
}

// NewWebhookHandler constructs handler.
func NewWebhookHandler(svc *service.IngressService, metrics *service.MetricsService, cfg config.IngressConfig) *WebhookHandler {
	return &WebhookHandler{service: svc, metrics: metrics, cfg: cfg}
}

// ReceiveLeaveApproval godoc
// @Summary Receive a leave approval webhook
// @Tags External
// @Accept json
// @Produce json
// @Param tenant path string true "Tenant ID"
// @Param X-Leave-Webhook-Secret header string true "Shared secret"
// @Param payload body service.IngressPayload true "Leave payload"
// @Success 200 {object} response.Envelope
// @Router /external/tenants/{tenant}/leave-approvals [post]
func (h *WebhookHandler) ReceiveLeaveApproval(c *gin.Context) {
	if h.cfg.Secret != "" {
		supplied := c.GetHeader("X-Leave-Webhook-Secret")
		if subtle.ConstantTimeCompare([]byte(supplied), []byte(h.cfg.Secret)) != 1 {
			response.Error(c, appErrors.ErrBadWebhookSecret)
			return
		}
	}

	var payload service.IngressPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	rec, err := h.service.Receive(c.Request.Context(), c.Param("tenant"), payload)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.metrics.RecordWebhookReceived(rec.Status)
	response.JSON(c, http.StatusOK, gin.H{
		"status":         "recorded",
		"request_id":     rec.RequestID,
		"forward_status": rec.ForwardStatus,
	}, nil)
}
