package htlc

import (
	"encoding/hex"
	"strconv"

	"swaplock/core/types"
)

const (
	EventTypeCreated   = "htlc.created"
	EventTypeCompleted = "htlc.completed"
	EventTypeCancelled = "htlc.cancelled"
)

type escrowEvent struct {
	evt *types.Event
}

func (e escrowEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e escrowEvent) Event() *types.Event { return e.evt }

// NewCreatedEvent returns the canonical payload emitted when an escrow is
// created and funded.
func NewCreatedEvent(e *Escrow) *types.Event {
	evt := newEscrowEvent(EventTypeCreated, e)
	if e != nil {
		evt.Attributes["taker"] = "0x" + hex.EncodeToString(e.Taker[:])
		evt.Attributes["secretHash"] = "0x" + hex.EncodeToString(e.SecretHash[:])
		evt.Attributes["timelock"] = strconv.FormatInt(e.Timelock, 10)
	}
	return evt
}

// NewCompletedEvent returns the canonical payload emitted when the secret is
// revealed and the deposit released to the taker. The revealed secret is part
// of the payload so the counterparty leg can observe it.
func NewCompletedEvent(e *Escrow, secret []byte) *types.Event {
	evt := newEscrowEvent(EventTypeCompleted, e)
	if e != nil {
		evt.Attributes["taker"] = "0x" + hex.EncodeToString(e.Taker[:])
	}
	evt.Attributes["secret"] = "0x" + hex.EncodeToString(secret)
	return evt
}

// NewCancelledEvent returns the canonical payload emitted when an expired
// escrow is refunded to its owner.
func NewCancelledEvent(e *Escrow) *types.Event {
	return newEscrowEvent(EventTypeCancelled, e)
}

func newEscrowEvent(eventType string, e *Escrow) *types.Event {
	attrs := make(map[string]string)
	evt := &types.Event{Type: eventType, Attributes: attrs}
	if e == nil {
		return evt
	}
	attrs["orderId"] = e.OrderID
	attrs["owner"] = "0x" + hex.EncodeToString(e.Owner[:])
	attrs["asset"] = e.Asset
	if e.Amount != nil {
		attrs["amount"] = e.Amount.String()
	} else {
		attrs["amount"] = "0"
	}
	attrs["createdAt"] = strconv.FormatInt(e.CreatedAt, 10)
	return evt
}
