package recovery

import "errors"

var (
	ErrCacheEncode  = errors.New("failed to encode cached status")
	ErrCachePersist = errors.New("failed to persist cached status")
)
