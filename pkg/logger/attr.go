package logger

import (
	"fmt"
	"log/slog"
	"strconv"
	"time"
)

// Group creates a slog group attribute from the provided attributes.
func Group(name string, attrs ...slog.Attr) slog.Attr {
	return slog.Attr{Key: name, Value: slog.GroupValue(attrs...)}
}

// Error records err under "error". A nil error yields an empty Attr, which
// slog drops.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// Errors groups the non-nil errors under "errors".
func Errors(errs ...error) slog.Attr {
	as := make([]slog.Attr, 0, len(errs))
	for i, err := range errs {
		if err != nil {
			as = append(as, slog.Any(strconv.Itoa(i), err))
		}
	}
	if len(as) == 0 {
		return slog.Attr{}
	}
	return slog.Attr{Key: "errors", Value: slog.GroupValue(as...)}
}

// Component names the subsystem that emitted the record.
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// Operation names the subscription operation being executed.
func Operation(name string) slog.Attr {
	return slog.String("operation", name)
}

// Feature records a feature key, spread or guide id.
func Feature(key string) slog.Attr {
	return slog.String("feature", key)
}

// Tier records a subscription tier. Any fmt.Stringer works.
func Tier(t fmt.Stringer) slog.Attr {
	if t == nil {
		return slog.Attr{}
	}
	return slog.String("tier", t.String())
}

// ErrorKind records the classification of a subscription error.
func ErrorKind(k fmt.Stringer) slog.Attr {
	if k == nil {
		return slog.Attr{}
	}
	return slog.String("error_kind", k.String())
}

// SyncStatus records the state of the background synchronizer.
func SyncStatus(s string) slog.Attr {
	return slog.String("sync_status", s)
}

func ProductID(id string) slog.Attr {
	return slog.String("product_id", id)
}

func RetryCount(count int) slog.Attr {
	return slog.Int("retry_count", count)
}

func Attempt(n int) slog.Attr {
	return slog.Int("attempt", n)
}

// Usage groups a usage count with its limit.
func Usage(used, limit int) slog.Attr {
	return Group("usage", slog.Int("used", used), slog.Int("limit", limit))
}

func Duration(d time.Duration) slog.Attr {
	return slog.Duration("duration", d)
}

// RequestID records the request identifier. Empty ids yield an empty Attr.
func RequestID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("request_id", id)
}
