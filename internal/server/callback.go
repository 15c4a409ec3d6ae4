package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/smallbiznis/payflow/internal/auth"
)

// CheckoutCallback is the browser return leg of a checkout. It reconciles
// the order against the provider and always answers with a redirect; the
// user never sees a raw error page here.
func (s *Server) CheckoutCallback(c *gin.Context) {
	orderNo := strings.TrimSpace(c.Query("order_no"))
	if orderNo == "" {
		c.Redirect(http.StatusFound, s.cfg.PricingURL())
		return
	}

	user, _ := auth.UserFromContext(c)

	redirect, err := s.checkoutSvc.Reconcile(c.Request.Context(), orderNo, c.Request.URL.Query(), user)
	if err != nil {
		s.log.Warn("checkout callback reconciliation failed",
			zap.String("order_no", orderNo),
			zap.Error(err),
		)
	}
	if redirect == "" {
		redirect = s.cfg.PricingURL()
	}

	c.Redirect(http.StatusFound, redirect)
}
