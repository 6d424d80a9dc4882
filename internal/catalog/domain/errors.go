package domain

import "errors"

var (
	ErrInvalidID           = errors.New("invalid_id")
	ErrInvalidName         = errors.New("invalid_name")
	ErrInvalidSourceType   = errors.New("invalid_source_type")
	ErrInvalidPrice        = errors.New("invalid_price")
	ErrInvalidQuantity     = errors.New("invalid_quantity")
	ErrInvalidWindow       = errors.New("invalid_window")
	ErrProviderNotFound    = errors.New("provider_not_found")
	ErrItemNotFound        = errors.New("catalog_item_not_found")
	ErrOfferNotFound       = errors.New("offer_not_found")
	ErrOfferInactive       = errors.New("offer_inactive")
	ErrOfferHasCommitments = errors.New("offer_has_committed_blocks")
)
