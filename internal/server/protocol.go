package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/voltra-energy/voltra/internal/idempotency"
	protocoldomain "github.com/voltra-energy/voltra/internal/protocol/domain"
)

const idempotencyKeyHeader = "Idempotency-Key"

// HandleProtocol accepts one protocol message. The action in the URL wins
// over whatever the body claims. The response is the synchronous ACK; the
// real answer arrives later on the caller's callback URI.
func (s *Server) HandleProtocol(c *gin.Context) {
	var env protocoldomain.Envelope
	if err := c.ShouldBindJSON(&env); err != nil {
		AbortWithError(c, protocoldomain.NewValidationError("body", "malformed envelope"))
		return
	}
	env.Context.Action = protocoldomain.Action(strings.ToLower(c.Param("action")))

	idemKey := strings.TrimSpace(c.GetHeader(idempotencyKeyHeader))
	if idemKey != "" && s.idem != nil && env.Context.Action == protocoldomain.ActionConfirm {
		s.handleConfirmIdempotent(c, env, idemKey)
		return
	}

	ack, err := s.driver.Handle(c.Request.Context(), env, bearerToken(c))
	if err != nil {
		s.nack(c, env, err)
		return
	}
	c.JSON(http.StatusOK, ack)
}

// handleConfirmIdempotent wraps a confirm in a caller-supplied idempotency
// key: the first attempt's ACK is cached and replayed on retries, and a
// still-running attempt rejects concurrent duplicates.
func (s *Server) handleConfirmIdempotent(c *gin.Context, env protocoldomain.Envelope, key string) {
	ctx := c.Request.Context()

	cached, token, err := s.idem.Begin(ctx, key)
	if err != nil {
		if errors.Is(err, idempotency.ErrNotConfigured) {
			// Redis disabled; fall through to plain handling.
			s.handlePlain(c, env)
			return
		}
		AbortWithError(c, err)
		return
	}
	if cached != nil {
		c.Data(http.StatusOK, "application/json", cached)
		return
	}

	ack, err := s.driver.Handle(ctx, env, bearerToken(c))
	if err != nil {
		// Release the lock so the caller may retry with the same key.
		abortCtx := context.WithoutCancel(ctx)
		_ = s.idem.Abort(abortCtx, key, token)
		s.nack(c, env, err)
		return
	}

	body, err := json.Marshal(ack)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if err := s.idem.Complete(ctx, key, token, body); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", body)
}

func (s *Server) handlePlain(c *gin.Context, env protocoldomain.Envelope) {
	ack, err := s.driver.Handle(c.Request.Context(), env, bearerToken(c))
	if err != nil {
		s.nack(c, env, err)
		return
	}
	c.JSON(http.StatusOK, ack)
}

// nack turns a synchronous rejection into a NACK body with the transport
// status derived from the error.
func (s *Server) nack(c *gin.Context, env protocoldomain.Envelope, err error) {
	status, payload := mapError(err)
	c.JSON(status, protocoldomain.Ack{
		TransactionID: env.Context.TransactionID,
		MessageID:     env.Context.MessageID,
		Status:        protocoldomain.StatusNack,
		Error: &protocoldomain.AckError{
			Type:    payload.Type,
			Code:    payload.Code,
			Message: payload.Message,
		},
	})
}

func (s *Server) GetTransactionStatus(c *gin.Context) {
	status, err := s.driver.TransactionStatus(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}
