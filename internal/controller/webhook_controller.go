package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"ledger-api/internal/service"
)

type WebhookController struct {
	webhooks service.WebhookService
}

func NewWebhookController(webhooks service.WebhookService) *WebhookController {
	return &WebhookController{webhooks: webhooks}
}

// @Summary Gateway payment webhook
// @Description Receives PIX charge and transfer status callbacks from the payment gateway
// @Tags webhooks
// @Accept json
// @Produce json
// @Success 200 {object} map[string]bool
// @Router /webhooks/gateway [post]
//
// The gateway retries on any non-200, so this endpoint acknowledges every
// delivery it could parse, including ones it cannot match. Settlement
// correctness is guaranteed by the conditional status transitions, not by
// the HTTP response.
func (c *WebhookController) HandleGatewayEvent(ctx *gin.Context) {
	var payload service.GatewayWebhookPayload
	if err := ctx.ShouldBindJSON(&payload); err != nil {
		logrus.WithError(err).Warn("Unparseable gateway webhook payload")
		ctx.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	if err := c.webhooks.ProcessGatewayEvent(ctx.Request.Context(), &payload); err != nil {
		logrus.WithError(err).WithField("external_reference", payload.ExternalReference()).
			Error("Gateway webhook processing failed")
	}

	ctx.JSON(http.StatusOK, gin.H{"received": true})
}
