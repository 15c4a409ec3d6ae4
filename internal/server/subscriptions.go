package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/smallbiznis/payflow/internal/auth"
	checkoutdomain "github.com/smallbiznis/payflow/internal/checkout/domain"
	subscriptiondomain "github.com/smallbiznis/payflow/internal/subscription/domain"
)

type listSubscriptionsResponse struct {
	Subscriptions []subscriptiondomain.Subscription `json:"subscriptions"`
}

// ListSubscriptions returns the caller's subscriptions, newest first.
func (s *Server) ListSubscriptions(c *gin.Context) {
	user, ok := auth.UserFromContext(c)
	if !ok {
		AbortWithError(c, checkoutdomain.ErrUnauthenticated)
		return
	}

	limit, offset := parsePagination(c)
	subscriptions, err := s.subscriptions.ListByUserID(c.Request.Context(), s.db, user.ID, limit, offset)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, listSubscriptionsResponse{Subscriptions: subscriptions})
}
