package models

import "time"

// EventType names a notification pushed to connected users.
type EventType string

const (
	EventSwapRequested EventType = "swap.requested"
	EventSwapAccepted  EventType = "swap.accepted"
	EventSwapRejected  EventType = "swap.rejected"
	EventSwapCompleted EventType = "swap.completed"
	EventItemApproved  EventType = "item.approved"
	EventItemRejected  EventType = "item.rejected"
)

// Event is a domain notification addressed to one or more users.
type Event struct {
	Type       EventType   `json:"type"`
	Recipients []string    `json:"-"`
	Data       interface{} `json:"data"`
	OccurredAt time.Time   `json:"occurred_at"`
}

// SwapEventFor maps a reached status to the event announcing it.
func SwapEventFor(status SwapStatus) EventType {
	switch status {
	case SwapStatusAccepted:
		return EventSwapAccepted
	case SwapStatusRejected:
		return EventSwapRejected
	case SwapStatusCompleted:
		return EventSwapCompleted
	default:
		return EventSwapRequested
	}
}
