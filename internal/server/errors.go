package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	blockdomain "github.com/voltra-energy/voltra/internal/block/domain"
	catalogdomain "github.com/voltra-energy/voltra/internal/catalog/domain"
	"github.com/voltra-energy/voltra/internal/idempotency"
	orderdomain "github.com/voltra-energy/voltra/internal/order/domain"
	"github.com/voltra-energy/voltra/internal/party"
	protocoldomain "github.com/voltra-energy/voltra/internal/protocol/domain"
	"gorm.io/gorm"
)

type errorPayload struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	var ve *protocoldomain.ValidationError
	if errors.As(err, &ve) {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Code:    ve.Field,
			Message: ve.Error(),
		}
	}

	var ite *orderdomain.InvalidTransitionError
	if errors.As(err, &ite) {
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "invalid_transition",
			Message: ite.Error(),
		}
	}

	switch {
	case errors.Is(err, party.ErrUnknownPrincipal):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unknown principal",
		}

	case errors.Is(err, catalogdomain.ErrInvalidID),
		errors.Is(err, catalogdomain.ErrInvalidName),
		errors.Is(err, catalogdomain.ErrInvalidSourceType),
		errors.Is(err, catalogdomain.ErrInvalidPrice),
		errors.Is(err, catalogdomain.ErrInvalidQuantity),
		errors.Is(err, catalogdomain.ErrInvalidWindow),
		errors.Is(err, orderdomain.ErrInvalidQuantity),
		errors.Is(err, orderdomain.ErrInvalidParty),
		errors.Is(err, protocoldomain.ErrUnknownAction):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: err.Error(),
		}

	case errors.Is(err, catalogdomain.ErrProviderNotFound),
		errors.Is(err, catalogdomain.ErrItemNotFound),
		errors.Is(err, catalogdomain.ErrOfferNotFound),
		errors.Is(err, orderdomain.ErrNotFound),
		errors.Is(err, blockdomain.ErrNotFound),
		errors.Is(err, protocoldomain.ErrTransactionUnknown),
		errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: err.Error(),
		}

	case errors.Is(err, catalogdomain.ErrOfferHasCommitments),
		errors.Is(err, blockdomain.ErrClaimConflict),
		errors.Is(err, orderdomain.ErrVersionConflict),
		errors.Is(err, idempotency.ErrInFlight):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: err.Error(),
		}

	case errors.Is(err, blockdomain.ErrInsufficientBlocks),
		errors.Is(err, blockdomain.ErrInvalidBlockState),
		errors.Is(err, catalogdomain.ErrOfferInactive),
		errors.Is(err, protocoldomain.ErrCapacityExceeded),
		errors.Is(err, protocoldomain.ErrInsufficientFunds):
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "unprocessable",
			Message: err.Error(),
		}

	case errors.Is(err, protocoldomain.ErrQueueFull),
		errors.Is(err, party.ErrWalletUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: err.Error(),
		}
	}

	return http.StatusInternalServerError, errorPayload{
		Type:    "internal_error",
		Message: "internal server error",
	}
}
