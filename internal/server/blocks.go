package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	blockdomain "github.com/voltra-energy/voltra/internal/block/domain"
	protocoldomain "github.com/voltra-energy/voltra/internal/protocol/domain"
)

type blockStatusEntry struct {
	BlockID string `json:"block_id" binding:"required"`
	Status  string `json:"status" binding:"required"`
}

type syncBlockStatusRequest struct {
	Updates []blockStatusEntry `json:"updates" binding:"required"`
}

// SyncBlockStatuses is the provider-side bulk status feed. Entries already
// in their target status are reported as unchanged, so providers can replay
// a batch after a failed delivery.
func (s *Server) SyncBlockStatuses(c *gin.Context) {
	var req syncBlockStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, protocoldomain.NewValidationError("updates", "malformed status batch"))
		return
	}

	updates := make([]blockdomain.StatusUpdate, 0, len(req.Updates))
	for _, entry := range req.Updates {
		id, err := snowflake.ParseString(strings.TrimSpace(entry.BlockID))
		if err != nil {
			AbortWithError(c, protocoldomain.NewValidationError("block_id", "is not a valid id"))
			return
		}
		status := blockdomain.BlockStatus(strings.ToUpper(strings.TrimSpace(entry.Status)))
		switch status {
		case blockdomain.BlockStatusAvailable, blockdomain.BlockStatusReserved, blockdomain.BlockStatusSold:
		default:
			AbortWithError(c, protocoldomain.NewValidationError("status", "unknown block status"))
			return
		}
		updates = append(updates, blockdomain.StatusUpdate{BlockID: id, Status: status})
	}

	outcome, err := s.ledger.SyncStatuses(c.Request.Context(), updates)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, outcome)
}
