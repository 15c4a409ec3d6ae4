package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/smallbiznis/payflow/internal/auth"
	checkoutdomain "github.com/smallbiznis/payflow/internal/checkout/domain"
	orderdomain "github.com/smallbiznis/payflow/internal/order/domain"
)

type listOrdersResponse struct {
	Orders []orderdomain.Order `json:"orders"`
}

// ListOrders returns the caller's orders, newest first.
func (s *Server) ListOrders(c *gin.Context) {
	user, ok := auth.UserFromContext(c)
	if !ok {
		AbortWithError(c, checkoutdomain.ErrUnauthenticated)
		return
	}

	limit, offset := parsePagination(c)
	orders, err := s.orders.ListByUserID(c.Request.Context(), s.db, user.ID, limit, offset)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, listOrdersResponse{Orders: orders})
}

func parsePagination(c *gin.Context) (limit, offset int) {
	limit, _ = strconv.Atoi(c.Query("limit"))
	offset, _ = strconv.Atoi(c.Query("offset"))
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
