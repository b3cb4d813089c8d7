package usage

import "errors"

var (
	ErrEmptyFeature = errors.New("empty feature key")
	ErrStorage      = errors.New("storage failure")
)
