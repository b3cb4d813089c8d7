package subsync

import "errors"

var ErrSyncFailed = errors.New("subscription sync failed")
