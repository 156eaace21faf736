// Package ledger defines the append-only point ledger.
package ledger

import "time"

// Reason describes why a ledger entry was written.
type Reason string

const (
	ReasonPostAward    Reason = "post_award"
	ReasonCommentAward Reason = "comment_award"
	ReasonRedemption   Reason = "redemption"
	ReasonRefund       Reason = "refund"
	ReasonAdjustment   Reason = "adjustment"
)

// Entry is an immutable record of one balance change. Amount is signed:
// positive for awards, negative for redemptions. Entries are never updated
// or deleted by normal flow.
type Entry struct {
	ID        string    `json:"id"`
	ProfileID string    `json:"profile_id"`
	Amount    int       `json:"amount"`
	Reason    Reason    `json:"reason"`
	RefID     string    `json:"ref_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
