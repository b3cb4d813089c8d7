package recovery

import "github.com/dmitrymomot/arcana/pkg/subscription"

// ShouldContinueOperation reports whether the caller may carry on after err
// instead of blocking the user.
func (h *Handler) ShouldContinueOperation(err error) bool {
	switch subscription.KindOf(err) {
	case subscription.KindNetwork, subscription.KindPlatform,
		subscription.KindVerificationFailed, subscription.KindServer:
		if !h.cfg.GracefulDegradation {
			return false
		}
		_, ok := h.CachedStatus()
		return ok
	case subscription.KindSubscriptionExpired:
		return true
	case subscription.KindPurchaseCancelled, subscription.KindPaymentFailed,
		subscription.KindRestorationFailed:
		return true
	default:
		return false
	}
}

var userMessages = map[subscription.ErrorKind]string{
	subscription.KindNetwork:             "Unable to connect. Please check your internet connection and try again.",
	subscription.KindPlatform:            "The store is temporarily unavailable. Please try again later.",
	subscription.KindVerificationFailed:  "We couldn't verify your subscription right now.",
	subscription.KindPurchaseCancelled:   "Purchase was cancelled.",
	subscription.KindPaymentFailed:       "Payment could not be processed.",
	subscription.KindSubscriptionExpired: "Your subscription has expired.",
	subscription.KindRestorationFailed:   "We couldn't restore your purchases.",
	subscription.KindServer:              "Something went wrong on our side. Please try again later.",
	subscription.KindAlreadySubscribed:   "You're already subscribed to this plan.",
	subscription.KindInvalidProduct:      "This subscription option is no longer available.",
	subscription.KindUnknown:             "An unexpected error occurred. Please try again.",
}

var suggestions = map[subscription.ErrorKind][]string{
	subscription.KindNetwork: {
		"Check your internet connection",
		"Try switching between Wi-Fi and mobile data",
		"Try again in a few moments",
	},
	subscription.KindPlatform: {
		"Try again in a few minutes",
		"Make sure you are signed in to your store account",
	},
	subscription.KindVerificationFailed: {
		"Try restoring your purchases",
		"Check your internet connection",
	},
	subscription.KindPurchaseCancelled: {
		"You can subscribe at any time from the settings screen",
	},
	subscription.KindPaymentFailed: {
		"Check your payment method",
		"Make sure your card has not expired",
		"Contact your bank if the problem continues",
	},
	subscription.KindSubscriptionExpired: {
		"Renew your subscription to regain premium features",
		"Your usage history has been kept",
	},
	subscription.KindRestorationFailed: {
		"Make sure you are signed in with the account used for the purchase",
		"Try again later",
	},
	subscription.KindServer: {
		"Try again later",
		"Contact support if the problem continues",
	},
	subscription.KindAlreadySubscribed: {
		"Manage your subscription from the settings screen",
	},
	subscription.KindInvalidProduct: {
		"Update the app to see current plans",
	},
	subscription.KindUnknown: {
		"Try again",
		"Contact support if the problem continues",
	},
}

// UserMessage returns a friendly description of err.
func UserMessage(err error) string {
	return userMessages[subscription.KindOf(err)]
}

// RecoverySuggestions returns steps the user can take after err.
func RecoverySuggestions(err error) []string {
	return append([]string(nil), suggestions[subscription.KindOf(err)]...)
}
