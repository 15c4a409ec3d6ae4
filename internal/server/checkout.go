package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/smallbiznis/payflow/internal/auth"
	checkoutdomain "github.com/smallbiznis/payflow/internal/checkout/domain"
)

type checkoutResponse struct {
	OrderNo     string `json:"order_no"`
	SessionID   string `json:"session_id"`
	CheckoutURL string `json:"checkout_url"`
	Provider    string `json:"provider"`
}

// CreateCheckout starts a payment for the selected product and returns the
// provider-hosted checkout URL the client should redirect to.
func (s *Server) CreateCheckout(c *gin.Context) {
	user, ok := auth.UserFromContext(c)
	if !ok {
		AbortWithError(c, checkoutdomain.ErrUnauthenticated)
		return
	}

	var req checkoutdomain.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	result, err := s.checkoutSvc.Checkout(c.Request.Context(), req, user)
	if err != nil {
		s.log.Warn("checkout rejected",
			zap.String("product_id", req.ProductID),
			zap.String("user_id", user.ID),
			zap.Error(err),
		)
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, checkoutResponse{
		OrderNo:     result.OrderNo,
		SessionID:   result.SessionID,
		CheckoutURL: result.CheckoutURL,
		Provider:    result.Provider,
	})
}
