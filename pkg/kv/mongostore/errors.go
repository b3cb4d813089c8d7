package mongostore

import "errors"

var (
	ErrFailedToConnect   = errors.New("failed to connect to mongo")
	ErrEmptyConnection   = errors.New("empty connection url, use MONGODB_URL env var")
	ErrHealthcheckFailed = errors.New("mongo healthcheck failed")
)
