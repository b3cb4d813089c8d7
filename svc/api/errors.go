package api

import "errors"

var (
	ErrMissingContentType   = errors.New("missing content type")
	ErrUnsupportedMediaType = errors.New("unsupported media type")
	ErrInvalidJSON          = errors.New("invalid JSON body")
	ErrMissingProductID     = errors.New("product_id is required")
	ErrPayloadTooLarge      = errors.New("payload too large")
)
