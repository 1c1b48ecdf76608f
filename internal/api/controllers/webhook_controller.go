package controllers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"giftvault/internal/services"
	"giftvault/pkg/utils"
)

const signatureHeader = "X-Gateway-Signature"

type WebhookController struct {
	webhookService services.IWebhookService
}

func NewWebhookController(webhookService services.IWebhookService) *WebhookController {
	return &WebhookController{
		webhookService: webhookService,
	}
}

// HandleGatewayEvent godoc
// @Summary Receive a payment gateway event
// @Description Verifies the signature, stores the event and applies it; always acks fast so the gateway never escalates retries
// @Tags Webhooks
// @Accept json
// @Produce json
// @Success 200 {object} utils.APIResponse
// @Failure 401 {object} utils.APIResponse
// @Router /webhooks/payment-gateway [post]
func (w *WebhookController) HandleGatewayEvent(c *gin.Context) {
	rawBody, err := io.ReadAll(c.Request.Body)
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, "Failed to read request body")
		return
	}

	err = w.webhookService.IngestEvent(c.Request.Context(), rawBody, c.GetHeader(signatureHeader))
	if err != nil {
		if errors.Is(err, utils.ErrSignatureInvalid) {
			utils.RespondError(c, http.StatusUnauthorized, "Invalid signature")
			return
		}
		if errors.Is(err, utils.ErrValidation) {
			utils.RespondError(c, http.StatusBadRequest, "Invalid event payload")
			return
		}
		utils.HandleServiceError(c, err)
		return
	}

	// Processing failures are recorded on the event row and retried via
	// replay; the gateway always gets a quick ack.
	utils.RespondSuccess(c, nil, "Event accepted")
}

// ReplayPending godoc
// @Summary Replay unprocessed gateway events
// @Description Re-runs events whose processing did not finish; safe because every step is idempotent
// @Tags Webhooks
// @Produce json
// @Success 200 {object} utils.APIResponse
// @Security BearerAuth
// @Router /admin/webhooks/replay [post]
func (w *WebhookController) ReplayPending(c *gin.Context) {
	attempted := w.webhookService.ReprocessPending(c.Request.Context())
	utils.RespondSuccess(c, gin.H{"attempted": attempted}, "Replay complete")
}
