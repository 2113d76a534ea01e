package models

import "time"

// PointTransactionKind classifies balance movements.
type PointTransactionKind string

const (
	PointsWelcomeBonus     PointTransactionKind = "WELCOME_BONUS"
	PointsRedemptionDebit  PointTransactionKind = "REDEMPTION_DEBIT"
	PointsRedemptionCredit PointTransactionKind = "REDEMPTION_CREDIT"
)

// PointTransaction is one append-only entry in a user's points ledger.
// Amount is positive for credits and negative for debits.
type PointTransaction struct {
	ID            string               `db:"id" json:"id"`
	UserID        string               `db:"user_id" json:"user_id"`
	Amount        int                  `db:"amount" json:"amount"`
	Kind          PointTransactionKind `db:"kind" json:"kind"`
	SwapRequestID *string              `db:"swap_request_id" json:"swap_request_id,omitempty"`
	Description   string               `db:"description" json:"description"`
	CreatedAt     time.Time            `db:"created_at" json:"created_at"`
}
