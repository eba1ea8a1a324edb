// Package audit fans out per-request audit events to asynchronous sinks.
package audit

import (
	"time"

	"github.com/google/uuid"
)

// Outcome classifies how a request ended
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeFault    Outcome = "fault"
	OutcomeRejected Outcome = "rejected"
)

// Event describes one handled SOAP request
type Event struct {
	ID       string    `json:"id"`
	Time     time.Time `json:"time"`
	Service  string    `json:"service"`
	Action   string    `json:"action,omitempty"`
	Username string    `json:"username,omitempty"`
	Remote   string    `json:"remote,omitempty"`
	Outcome  Outcome   `json:"outcome"`
	// Reason is the server-side rejection reason or fault text. It is never
	// sent to the SOAP client.
	Reason string `json:"reason,omitempty"`
}

// NewEvent starts an event with a fresh ID and the current time.
func NewEvent(service, action string) Event {
	return Event{
		ID:      uuid.NewString(),
		Time:    time.Now().UTC(),
		Service: service,
		Action:  action,
	}
}
