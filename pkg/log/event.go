package log

import (
	"time"
)

// Event represents a discovery log event captured at any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// SessionID uniquely identifies the scan session (UUID).
	SessionID string `cbor:"2,keyasint"`

	// Direction indicates packet flow relative to this host.
	Direction Direction `cbor:"3,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"4,keyasint"`

	// ServiceType is the DNS-SD type involved, if any.
	ServiceType string `cbor:"5,keyasint,omitempty"`

	// Instance is the service instance name involved, if any.
	Instance string `cbor:"6,keyasint,omitempty"`

	// RemoteAddr is the responder address (IP:port) for received packets.
	RemoteAddr string `cbor:"7,keyasint,omitempty"`

	// Interface is the network interface name, when scoped.
	Interface string `cbor:"8,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Query       *QueryEvent       `cbor:"10,keyasint,omitempty"` // Outgoing query
	Answer      *AnswerEvent      `cbor:"11,keyasint,omitempty"` // Received answer set
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"` // Session/cache state
	Error       *ErrorEventData   `cbor:"13,keyasint,omitempty"` // Errors at any layer
}

// Direction indicates the direction of packet flow.
type Direction uint8

const (
	// DirectionIn indicates a received packet.
	DirectionIn Direction = 0
	// DirectionOut indicates a sent packet.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryQuery indicates an outgoing multicast query.
	CategoryQuery Category = 0
	// CategoryAnswer indicates a received answer or announcement.
	CategoryAnswer Category = 1
	// CategoryState indicates a session or cache state change.
	CategoryState Category = 2
	// CategoryError indicates an error event.
	CategoryError Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryQuery:
		return "QUERY"
	case CategoryAnswer:
		return "ANSWER"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// QueryEvent captures an outgoing multicast query.
type QueryEvent struct {
	// Name is the queried DNS name.
	Name string `cbor:"1,keyasint"`

	// RecordType is the queried DNS record type (e.g. 12 for PTR).
	RecordType uint16 `cbor:"2,keyasint"`

	// Attempt is the 1-based resolution attempt (0 for browse queries).
	Attempt int `cbor:"3,keyasint,omitempty"`
}

// AnswerEvent captures a received answer set.
type AnswerEvent struct {
	// Answers is the number of answer records in the packet.
	Answers int `cbor:"1,keyasint"`

	// Goodbye indicates the packet carried TTL=0 removals.
	Goodbye bool `cbor:"2,keyasint,omitempty"`
}

// StateChangeEvent captures session and cache lifecycle events.
type StateChangeEvent struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	// StateEntitySession indicates a scan session state change.
	StateEntitySession StateEntity = 0
	// StateEntityType indicates a service type appeared or vanished.
	StateEntityType StateEntity = 1
	// StateEntityInstance indicates a service instance lifecycle change.
	StateEntityInstance StateEntity = 2
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntitySession:
		return "SESSION"
	case StateEntityType:
		return "TYPE"
	case StateEntityInstance:
		return "INSTANCE"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Code classifies the error ("bind", "send", "resolve", "teardown").
	Code string `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Context describes what operation was being performed.
	Context string `cbor:"3,keyasint,omitempty"`
}
