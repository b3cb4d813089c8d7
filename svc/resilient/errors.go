package resilient

import (
	"fmt"

	"github.com/dmitrymomot/arcana/pkg/subscription"
)

// ErrOffline is wrapped by errors returned for operations attempted while
// the platform is unreachable. It matches subscription.ErrNoConnectivity.
var ErrOffline = fmt.Errorf("platform offline: %w", subscription.ErrNoConnectivity)
