package htlc

import (
	"math/big"
	"testing"
)

func testEventEscrow() *Escrow {
	_, hash := testSecret()
	return &Escrow{
		OrderID:    "order-1",
		SecretHash: hash,
		Owner:      newTestAddress(0x01),
		Taker:      newTestAddress(0x02),
		Asset:      "SPN",
		Amount:     big.NewInt(100),
		Timelock:   4_600,
		CreatedAt:  1_000,
		Status:     StatusActive,
	}
}

func TestCreatedEventAttributes(t *testing.T) {
	evt := NewCreatedEvent(testEventEscrow())
	if evt.Type != EventTypeCreated {
		t.Fatalf("unexpected type: %s", evt.Type)
	}
	for _, key := range []string{"orderId", "owner", "taker", "asset", "amount", "timelock", "secretHash", "createdAt"} {
		if _, ok := evt.Attributes[key]; !ok {
			t.Fatalf("missing attribute %q: %+v", key, evt.Attributes)
		}
	}
	if evt.Attributes["amount"] != "100" {
		t.Fatalf("unexpected amount: %q", evt.Attributes["amount"])
	}
	if evt.Attributes["timelock"] != "4600" {
		t.Fatalf("unexpected timelock: %q", evt.Attributes["timelock"])
	}
}

func TestCompletedEventCarriesSecret(t *testing.T) {
	secret, _ := testSecret()
	evt := NewCompletedEvent(testEventEscrow(), secret)
	if evt.Type != EventTypeCompleted {
		t.Fatalf("unexpected type: %s", evt.Type)
	}
	if evt.Attributes["secret"] == "" || evt.Attributes["secret"] == "0x" {
		t.Fatalf("secret missing from completion event: %+v", evt.Attributes)
	}
	if _, ok := evt.Attributes["taker"]; !ok {
		t.Fatalf("taker missing from completion event: %+v", evt.Attributes)
	}
}

func TestCancelledEventAttributes(t *testing.T) {
	evt := NewCancelledEvent(testEventEscrow())
	if evt.Type != EventTypeCancelled {
		t.Fatalf("unexpected type: %s", evt.Type)
	}
	if evt.Attributes["orderId"] != "order-1" {
		t.Fatalf("unexpected order id: %+v", evt.Attributes)
	}
	if evt.Attributes["amount"] != "100" {
		t.Fatalf("unexpected amount: %+v", evt.Attributes)
	}
}

func TestNilEscrowEvents(t *testing.T) {
	if evt := NewCreatedEvent(nil); evt == nil || evt.Type != EventTypeCreated {
		t.Fatal("nil escrow should still produce a typed event")
	}
	if evt := NewCancelledEvent(nil); len(evt.Attributes) != 0 {
		t.Fatalf("nil escrow should carry no attributes: %+v", evt.Attributes)
	}
}
