package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	orderdomain "github.com/voltra-energy/voltra/internal/order/domain"
	"github.com/voltra-energy/voltra/internal/party"
	protocoldomain "github.com/voltra-energy/voltra/internal/protocol/domain"
)

func (s *Server) GetOrder(c *gin.Context) {
	id, err := parseSnowflakeParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	order, err := s.orderSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

type transitionRequest struct {
	Status string `json:"status" binding:"required"`
}

// TransitionOrder applies one lifecycle step, typically driven by the
// delivery side (ACTIVE→DELIVERING→DELIVERED).
func (s *Server) TransitionOrder(c *gin.Context) {
	id, err := parseSnowflakeParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, protocoldomain.NewValidationError("status", "is required"))
		return
	}

	order, err := s.orderSvc.Transition(c.Request.Context(), id, orderdomain.OrderStatus(strings.ToUpper(req.Status)))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// IngestVerification accepts a delivered-vs-expected report from the
// metering side and closes the order with its trust consequences.
func (s *Server) IngestVerification(c *gin.Context) {
	var event party.VerificationEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		AbortWithError(c, protocoldomain.NewValidationError("body", "malformed verification event"))
		return
	}

	result, err := s.orderSvc.CompleteWithVerification(c.Request.Context(), event.OrderID, event.Delivered, event.Expected)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
