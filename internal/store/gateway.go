// Package store persists call and order records for the voice gateway. It is
// a thin, typed wrapper over four tables — calls, customers, orders and
// order_items — exposed through the [Gateway] interface so that the tool
// layer can be tested against an in-memory fake.
//
// Every method returns a typed [*Error]; the completeOrder retry loop treats
// any failure as retryable, while call-lifecycle callers log and swallow
// failures because the telephony call must outlive a database hiccup.
package store

import (
	"context"
	"time"
)

// CallStatus is the closed set of call record states. A record transitions
// monotonically from in_progress to exactly one terminal value.
type CallStatus string

const (
	CallInProgress CallStatus = "in_progress"
	CallCompleted  CallStatus = "completed"
	CallEscalated  CallStatus = "escalated"
	CallFailed     CallStatus = "failed"
)

// CallRecord is the persisted row for one phone call.
type CallRecord struct {
	ID              string
	CallID          string
	StreamID        string
	CallerPhone     string
	RestaurantPhone string
	Status          CallStatus
	StartedAt       time.Time
}

// Order is the persisted order header. Immutable once inserted.
type Order struct {
	RestaurantID string
	CustomerID   string
	CallID       string
	Status       string
	TotalAmount  float64
}

// OrderItem is one persisted order line. Customizations is a free-form notes
// bag serialized as JSON; empty when the cart line carried no notes.
type OrderItem struct {
	ItemName       string
	Quantity       int
	UnitPrice      float64
	Customizations map[string]any
}

// Gateway is the persistence contract for call and order records.
type Gateway interface {
	// CreateCall inserts an in_progress call record and returns the
	// server-assigned id and start time. Missing identifiers are rejected
	// with a KindInvalidArgument error.
	CreateCall(ctx context.Context, callID, streamID, callerPhone, restaurantPhone string) (CallRecord, error)

	// CompleteCall moves the record to completed with the elapsed whole
	// seconds since startedAt. Each call record reaches a terminal status
	// at most once; a repeat transition reports KindNotFound.
	CompleteCall(ctx context.Context, callID string, startedAt time.Time) error

	// EscalateCall moves the record to escalated.
	EscalateCall(ctx context.Context, callID string) error

	// FailCall moves the record to failed, recording reason when non-empty.
	FailCall(ctx context.Context, callID, reason string) error

	// UpsertCustomer inserts or updates the customer keyed by phone number
	// and returns the customer id.
	UpsertCustomer(ctx context.Context, phoneNumber, name string) (string, error)

	// InsertOrder inserts the order header and returns the server-assigned
	// order id.
	InsertOrder(ctx context.Context, o Order) (string, error)

	// InsertOrderItems inserts the order lines as a batch.
	InsertOrderItems(ctx context.Context, orderID string, items []OrderItem) error
}
