package domain

import "time"

type EventKind string

const (
	EventStarted EventKind = "started"
	EventStopped EventKind = "stopped"
	EventFault   EventKind = "fault"
)

// Event is a one-shot notification about a session's lifecycle. Exactly one
// EventStopped or EventFault is emitted per session end.
type Event struct {
	Kind      EventKind `json:"kind"`
	SessionID string    `json:"session_id"`
	Reason    string    `json:"reason,omitempty"`
	At        time.Time `json:"at"`
}
