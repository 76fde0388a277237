package models

import (
	"time"
)

// StartingBalance is granted to every account on first touch.
const StartingBalance = 25

// Account holds the token balance for a single user, keyed by email.
// Balance is a cached value; it always equals StartingBalance plus the
// sum of the account's transaction amounts, maintained inside the same
// database transaction that appends the audit row.
type Account struct {
	ID        int       `json:"id" db:"id"`
	Email     string    `json:"email" db:"email"`
	Balance   int       `json:"balance" db:"balance"`
	TotalUsed int       `json:"totalUsed" db:"total_used"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}
