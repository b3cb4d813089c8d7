package subscription

import (
	"time"

	"github.com/google/uuid"
)

// PeriodMonthly is the ISO 8601 billing period of every bundled product.
const PeriodMonthly = "P1M"

// Product is a purchasable subscription offering.
type Product struct {
	ID          string `json:"id"`
	Tier        Tier   `json:"tier"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Price       string `json:"price"` // display string, e.g. "$4.99"
	PriceMicros int64  `json:"price_micros"`
	Currency    string `json:"currency"`
	Period      string `json:"period"`
}

// Product identifiers of the default catalog.
const (
	ProductMysticMonthly = "arcana_mystic_monthly"
	ProductOracleMonthly = "arcana_oracle_monthly"
)

// DefaultProducts returns the monthly catalog: one product per paid tier.
func DefaultProducts() []Product {
	return []Product{
		{
			ID:          ProductMysticMonthly,
			Tier:        TierMystic,
			Title:       "Mystic",
			Description: "Unlimited readings, 30 manual interpretations, customization and no ads",
			Price:       "$4.99",
			PriceMicros: 4_990_000,
			Currency:    "USD",
			Period:      PeriodMonthly,
		},
		{
			ID:          ProductOracleMonthly,
			Tier:        TierOracle,
			Title:       "Oracle",
			Description: "Everything unlimited, audio readings and early access",
			Price:       "$9.99",
			PriceMicros: 9_990_000,
			Currency:    "USD",
			Period:      PeriodMonthly,
		},
	}
}

// FindProduct looks up a product by id.
func FindProduct(products []Product, id string) (Product, bool) {
	for _, p := range products {
		if p.ID == id {
			return p, true
		}
	}
	return Product{}, false
}

// HistoryEvent describes what happened to a subscription.
type HistoryEvent string

const (
	EventPurchased HistoryEvent = "purchased"
	EventRestored  HistoryEvent = "restored"
	EventCancelled HistoryEvent = "cancelled"
	EventExpired   HistoryEvent = "expired"
	EventRenewed   HistoryEvent = "renewed"
)

// HistoryEntry is one record in the subscription history.
type HistoryEntry struct {
	ID        uuid.UUID    `json:"id"`
	Tier      Tier         `json:"tier"`
	ProductID string       `json:"product_id,omitempty"`
	Event     HistoryEvent `json:"event"`
	At        time.Time    `json:"at"`
}

func newHistoryEntry(tier Tier, productID string, event HistoryEvent, at time.Time) HistoryEntry {
	return HistoryEntry{
		ID:        uuid.New(),
		Tier:      tier,
		ProductID: productID,
		Event:     event,
		At:        at,
	}
}
