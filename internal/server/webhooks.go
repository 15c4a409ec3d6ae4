package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	paymentdomain "github.com/smallbiznis/payflow/internal/payment/domain"
)

// HandlePaymentWebhook verifies and applies a provider webhook delivery.
// Events the system does not track are acknowledged so the provider stops
// retrying them; signature failures are rejected so it retries a delivery
// that may have been tampered with in transit.
func (s *Server) HandlePaymentWebhook(c *gin.Context) {
	provider := c.Param("provider")

	adapter, err := s.paymentGws.Get(provider)
	if err != nil {
		AbortWithError(c, ErrNotFound)
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, 1<<20))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	headers := make(map[string]string, len(c.Request.Header))
	for key := range c.Request.Header {
		headers[key] = c.GetHeader(key)
	}

	event, err := adapter.HandleWebhook(c.Request.Context(), payload, headers)
	if err != nil {
		if errors.Is(err, paymentdomain.ErrEventIgnored) {
			s.recordWebhook(c, adapter.Name(), "ignored")
			c.JSON(http.StatusOK, gin.H{"received": true})
			return
		}
		s.log.Warn("webhook rejected",
			zap.String("provider", adapter.Name()),
			zap.Error(err),
		)
		s.recordWebhook(c, adapter.Name(), "rejected")
		AbortWithError(c, err)
		return
	}

	if err := s.checkoutSvc.ReconcileWebhook(c.Request.Context(), event); err != nil && !errors.Is(err, paymentdomain.ErrEventIgnored) {
		s.log.Error("webhook reconciliation failed",
			zap.String("provider", adapter.Name()),
			zap.String("event_id", event.EventID),
			zap.String("order_no", event.OrderNo),
			zap.Error(err),
		)
		s.recordWebhook(c, adapter.Name(), "failed")
		AbortWithError(c, err)
		return
	}

	s.recordWebhook(c, adapter.Name(), "processed")
	c.JSON(http.StatusOK, gin.H{"received": true})
}

func (s *Server) recordWebhook(c *gin.Context, provider, outcome string) {
	if s.obsMetrics != nil {
		s.obsMetrics.RecordWebhookEvent(c.Request.Context(), provider, outcome)
	}
}
