package cdb

import "testing"

func TestNewRejectsZeroLanes(t *testing.T) {
	if _, err := New(0); err == nil {
		t.Fatal("expected error for zero lanes")
	}
}

func TestArbitratePublishesWithinLaneCount(t *testing.T) {
	c, _ := New(2)
	producers := []Producer{
		{Qr: 1, Result: 10, FromEXU: true, EXUIndex: 0},
		{Qr: 2, Result: 20, FromEXU: true, EXUIndex: 1},
		{Qr: 3, Result: 30, FromEXU: true, EXUIndex: 2},
	}
	published, deferred := c.Arbitrate(producers)
	if len(published) != 2 || len(deferred) != 1 {
		t.Fatalf("expected 2 published, 1 deferred, got %d/%d", len(published), len(deferred))
	}
	if published[0].Qr != 1 || published[1].Qr != 2 {
		t.Fatalf("expected lowest EXU index first, got %+v", published)
	}
	if deferred[0].Qr != 3 {
		t.Fatalf("expected highest-index producer deferred, got %+v", deferred)
	}
	lanes := c.Lanes()
	if !lanes[0].Valid || lanes[0].Qr != 1 || lanes[0].Result != 10 {
		t.Fatalf("lane 0 mismatch: %+v", lanes[0])
	}
	if !lanes[1].Valid || lanes[1].Qr != 2 {
		t.Fatalf("lane 1 mismatch: %+v", lanes[1])
	}
}

func TestArbitrateEXUBeforeLSU(t *testing.T) {
	c, _ := New(1)
	producers := []Producer{
		{Qr: 5, Result: 50, FromEXU: false},
		{Qr: 9, Result: 90, FromEXU: true, EXUIndex: 3},
	}
	published, deferred := c.Arbitrate(producers)
	if len(published) != 1 || published[0].Qr != 9 {
		t.Fatalf("expected EXU producer to win the single lane, got %+v", published)
	}
	if len(deferred) != 1 || deferred[0].Qr != 5 {
		t.Fatalf("expected LSU producer deferred, got %+v", deferred)
	}
}

func TestArbitrateClearsStaleLanesEachCall(t *testing.T) {
	c, _ := New(1)
	c.Arbitrate([]Producer{{Qr: 1, Result: 1, FromEXU: true}})
	published, _ := c.Arbitrate(nil)
	if len(published) != 0 {
		t.Fatal("expected no producers published with empty input")
	}
	lanes := c.Lanes()
	if lanes[0].Valid {
		t.Fatal("expected lane cleared when no producers are offered")
	}
}

func TestArbitrateFewerProducersThanLanes(t *testing.T) {
	c, _ := New(4)
	published, deferred := c.Arbitrate([]Producer{{Qr: 1, Result: 7, FromEXU: true}})
	if len(published) != 1 || len(deferred) != 0 {
		t.Fatalf("expected 1 published, 0 deferred, got %d/%d", len(published), len(deferred))
	}
	lanes := c.Lanes()
	for i := 1; i < len(lanes); i++ {
		if lanes[i].Valid {
			t.Fatalf("lane %d should be unused, got %+v", i, lanes[i])
		}
	}
}
