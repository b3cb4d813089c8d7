package subscription

import (
	"context"
	"errors"
	"strings"
)

var (
	ErrUnknownTier       = errors.New("unknown subscription tier")
	ErrUnsupported       = errors.New("operation not supported by this platform")
	ErrDisposed          = errors.New("subscription service disposed")
	ErrNoConnectivity    = errors.New("no network connectivity")
	ErrNoSubscription    = errors.New("no active subscription")
	ErrInjectedFault     = errors.New("injected fault")
	ErrMissingAPIKey     = errors.New("billing provider API key is required")
	ErrMissingSecret     = errors.New("billing provider webhook secret is required")
	ErrInvalidEnv        = errors.New("invalid billing provider environment")
	ErrWebhookSignature  = errors.New("webhook signature verification failed")
	ErrNoCheckoutURL     = errors.New("no checkout URL returned from provider")
	ErrNoPortalURL       = errors.New("no portal URL returned from provider")
	ErrMissingCustomerID = errors.New("provider customer ID not configured")
)

// ErrorKind classifies subscription failures for retry and messaging decisions.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindNetwork
	KindPlatform
	KindVerificationFailed
	KindPurchaseCancelled
	KindPaymentFailed
	KindSubscriptionExpired
	KindRestorationFailed
	KindServer
	KindAlreadySubscribed
	KindInvalidProduct
)

var kindNames = [...]string{
	KindUnknown:             "unknown",
	KindNetwork:             "network",
	KindPlatform:            "platform",
	KindVerificationFailed:  "verification_failed",
	KindPurchaseCancelled:   "purchase_cancelled",
	KindPaymentFailed:       "payment_failed",
	KindSubscriptionExpired: "subscription_expired",
	KindRestorationFailed:   "restoration_failed",
	KindServer:              "server",
	KindAlreadySubscribed:   "already_subscribed",
	KindInvalidProduct:      "invalid_product",
}

func (k ErrorKind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return kindNames[KindUnknown]
	}
	return kindNames[k]
}

// ShouldRetry reports whether failures of this kind are transient.
func (k ErrorKind) ShouldRetry() bool {
	switch k {
	case KindNetwork, KindPlatform, KindVerificationFailed, KindServer:
		return true
	default:
		return false
	}
}

// Error is the typed failure returned by subscription services.
type Error struct {
	Kind    ErrorKind
	Op      string
	Message string
	Err     error
}

// NewError builds an *Error. err may be nil.
func NewError(kind ErrorKind, op, message string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("subscription")
	if e.Op != "" {
		b.WriteString(" ")
		b.WriteString(e.Op)
	}
	b.WriteString(": ")
	b.WriteString(e.Kind.String())
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// ShouldRetry reports whether the operation may succeed if attempted again.
func (e *Error) ShouldRetry() bool { return e.Kind.ShouldRetry() }

// KindOf classifies any error. Untyped deadline and connectivity errors are
// treated as network failures. A nil error is KindUnknown.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrNoConnectivity) {
		return KindNetwork
	}
	return KindUnknown
}

// IsRetryable reports whether err is worth retrying.
func IsRetryable(err error) bool {
	return err != nil && KindOf(err).ShouldRetry()
}
