package models

import (
	"time"
)

// Transaction kinds.
const (
	TxKindPurchase = "purchase"
	TxKindUsage    = "usage"
	TxKindRefund   = "refund"
	TxKindBonus    = "bonus"
)

// TokenTransaction is an append-only audit record. Amount is signed:
// negative for usage, positive for purchase/refund/bonus. ExternalEventID
// carries the payment provider's event id for purchases and is the
// idempotency key for webhook replays.
type TokenTransaction struct {
	ID              int       `json:"id" db:"id"`
	AccountEmail    string    `json:"accountEmail" db:"account_email"`
	Kind            string    `json:"kind" db:"kind"`
	Amount          int       `json:"amount" db:"amount"`
	Description     string    `json:"description" db:"description"`
	ExternalEventID string    `json:"externalEventId,omitempty" db:"external_event_id"`
	CreatedAt       time.Time `json:"createdAt" db:"created_at"`
}
