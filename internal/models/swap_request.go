package models

import "time"

// SwapStatus is the lifecycle state of a swap request.
type SwapStatus string

const (
	SwapStatusPending   SwapStatus = "pending"
	SwapStatusAccepted  SwapStatus = "accepted"
	SwapStatusRejected  SwapStatus = "rejected"
	SwapStatusCompleted SwapStatus = "completed"
)

// Valid reports whether s is a known status.
func (s SwapStatus) Valid() bool {
	switch s {
	case SwapStatusPending, SwapStatusAccepted, SwapStatusRejected, SwapStatusCompleted:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transitions are possible.
func (s SwapStatus) Terminal() bool {
	return s == SwapStatusRejected || s == SwapStatusCompleted
}

// SwapAction is a transition trigger.
type SwapAction string

const (
	SwapActionAccept   SwapAction = "accept"
	SwapActionReject   SwapAction = "reject"
	SwapActionComplete SwapAction = "complete"
)

// Apply returns the status reached by applying action, or false when the
// transition is not allowed from s.
func (s SwapStatus) Apply(action SwapAction) (SwapStatus, bool) {
	switch s {
	case SwapStatusPending:
		switch action {
		case SwapActionAccept:
			return SwapStatusAccepted, true
		case SwapActionReject:
			return SwapStatusRejected, true
		case SwapActionComplete:
			return s, false
		}
	case SwapStatusAccepted:
		switch action {
		case SwapActionComplete:
			return SwapStatusCompleted, true
		case SwapActionReject:
			return SwapStatusRejected, true
		case SwapActionAccept:
			return s, false
		}
	case SwapStatusRejected, SwapStatusCompleted:
		return s, false
	}
	return s, false
}

// SwapMode selects between a direct swap and a points redemption.
type SwapMode string

const (
	SwapModeDirect SwapMode = "direct"
	SwapModePoints SwapMode = "points"
)

// SwapRequest is a proposal to exchange or redeem an item.
type SwapRequest struct {
	ID                 string     `db:"id" json:"id"`
	RequesterID        string     `db:"requester_id" json:"requester_id"`
	RequesterName      string     `db:"requester_name" json:"requester_name"`
	OwnerID            string     `db:"owner_id" json:"owner_id"`
	ItemID             string     `db:"item_id" json:"item_id"`
	ItemTitle          string     `db:"item_title" json:"item_title"`
	OfferedItemID      *string    `db:"offered_item_id" json:"offered_item_id,omitempty"`
	OfferedItemTitle   *string    `db:"offered_item_title" json:"offered_item_title,omitempty"`
	IsPointsRedemption bool       `db:"is_points_redemption" json:"is_points_redemption"`
	PointsOffered      *int       `db:"points_offered" json:"points_offered,omitempty"`
	Message            string     `db:"message" json:"message"`
	Status             SwapStatus `db:"status" json:"status"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
}

// Involves reports whether userID is the requester or the item owner.
func (r *SwapRequest) Involves(userID string) bool {
	return r != nil && userID != "" && (r.RequesterID == userID || r.OwnerID == userID)
}

// SwapBox selects which side of the exchange a listing is for.
type SwapBox string

const (
	SwapBoxIncoming SwapBox = "incoming"
	SwapBoxOutgoing SwapBox = "outgoing"
)

// SwapRequestFilter constrains listing queries.
type SwapRequestFilter struct {
	RequesterID string
	OwnerID     string
	ItemID      string
	Status      []SwapStatus
	Limit       int
	Offset      int
}
