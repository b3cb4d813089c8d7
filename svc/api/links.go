package api

import (
	"context"
	"sync"

	"github.com/dmitrymomot/arcana/pkg/subscription"
)

type linkKey struct{}

type linkSink struct {
	mu  sync.Mutex
	url string
}

// LinkCollector returns a LinkOpener that hands checkout and portal URLs
// back to the HTTP request that caused them. Outside a request it reports
// subscription.ErrUnsupported.
func LinkCollector() subscription.LinkOpener {
	return subscription.LinkOpenerFunc(func(ctx context.Context, url string) error {
		sink, ok := ctx.Value(linkKey{}).(*linkSink)
		if !ok {
			return subscription.ErrUnsupported
		}
		sink.mu.Lock()
		sink.url = url
		sink.mu.Unlock()
		return nil
	})
}

func withLinkSink(ctx context.Context) (context.Context, *linkSink) {
	sink := &linkSink{}
	return context.WithValue(ctx, linkKey{}, sink), sink
}

func (s *linkSink) get() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url
}
