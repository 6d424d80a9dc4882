package domain

import "errors"

var (
	// ErrClaimConflict signals an optimistic version mismatch during a
	// batched claim; callers retry with a fresh read.
	ErrClaimConflict = errors.New("block_claim_conflict")
	// ErrInsufficientBlocks signals there are not enough AVAILABLE blocks
	// to satisfy the requested quantity. Terminal.
	ErrInsufficientBlocks = errors.New("insufficient_available_blocks")
	// ErrInvalidBlockState signals a finalize/release against blocks that
	// are not in the expected state.
	ErrInvalidBlockState = errors.New("invalid_block_state")
	ErrInvalidQuantity   = errors.New("invalid_quantity")
	ErrNotFound          = errors.New("block_not_found")
)
