package rob

import "testing"

func TestIssueNeverReturnsZeroTag(t *testing.T) {
	r, _ := New(4)
	for i := 0; i < 4; i++ {
		q, ok := r.Issue(uint32(i + 1))
		if !ok || q == 0 {
			t.Fatalf("issue %d: got tag %d ok %v", i, q, ok)
		}
	}
}

func TestFullStallsIssue(t *testing.T) {
	r, _ := New(2)
	r.Issue(1)
	r.Issue(2)
	if !r.Full() {
		t.Fatal("expected ROB full")
	}
	if _, ok := r.Issue(3); ok {
		t.Fatal("expected issue to fail when full")
	}
}

func TestCommitRequiresDone(t *testing.T) {
	r, _ := New(4)
	q, _ := r.Issue(1)
	if _, ok := r.Commit(); ok {
		t.Fatal("commit should fail before write")
	}
	r.Write(q, 42)
	res, ok := r.Commit()
	if !ok || res.Data != 42 || res.Rd != 1 {
		t.Fatalf("unexpected commit result: %+v ok=%v", res, ok)
	}
}

func TestCommitOrderIsProgramOrder(t *testing.T) {
	r, _ := New(4)
	q1, _ := r.Issue(1)
	q2, _ := r.Issue(2)
	// write q2 first (out of order completion)
	r.Write(q2, 200)
	if _, ok := r.Commit(); ok {
		t.Fatal("head (q1) not done; commit must not succeed")
	}
	r.Write(q1, 100)
	res1, ok := r.Commit()
	if !ok || res1.Tag != q1 {
		t.Fatalf("expected q1 to commit first, got %+v", res1)
	}
	res2, ok := r.Commit()
	if !ok || res2.Tag != q2 {
		t.Fatalf("expected q2 to commit second, got %+v", res2)
	}
}

func TestCountInvariant(t *testing.T) {
	r, _ := New(4)
	for i := 0; i < 3; i++ {
		r.Issue(uint32(i))
	}
	if r.Count() != 3 {
		t.Fatalf("count=%d want 3", r.Count())
	}
	q, ok := r.HeadTag()
	if !ok {
		t.Fatal("expected a head tag")
	}
	r.Write(q, 1)
	r.Commit()
	if r.Count() != 2 {
		t.Fatalf("count=%d want 2 after commit", r.Count())
	}
}

func TestFlushResetsToEmpty(t *testing.T) {
	r, _ := New(4)
	r.Issue(1)
	r.Issue(2)
	r.Flush()
	if r.Count() != 0 {
		t.Fatal("expected count 0 after flush")
	}
	if !r.Full() == false && r.Count() != 0 {
		t.Fatal("expected empty ROB after flush")
	}
	q, ok := r.Issue(3)
	if !ok || q == 0 {
		t.Fatal("expected ROB to be usable again after flush")
	}
}

func TestWraparoundKeepsOrder(t *testing.T) {
	r, _ := New(2)
	q1, _ := r.Issue(1)
	r.Write(q1, 10)
	r.Commit()
	q2, _ := r.Issue(2) // slot 1
	q3, _ := r.Issue(3) // tail wraps back to slot 0
	if q2 == q3 {
		t.Fatal("wrapped tag collided")
	}
	r.Write(q3, 30)
	r.Write(q2, 20)
	res, _ := r.Commit()
	if res.Tag != q2 || res.Data != 20 {
		t.Fatalf("expected q2 to commit first after wraparound, got %+v", res)
	}
}

func TestInFlight(t *testing.T) {
	r, _ := New(4)
	q1, _ := r.Issue(1)
	q2, _ := r.Issue(2)
	if !r.InFlight(q1) || !r.InFlight(q2) {
		t.Fatal("both tags should be in flight")
	}
	r.Write(q1, 1)
	r.Commit()
	if r.InFlight(q1) {
		t.Fatal("q1 should no longer be in flight after commit")
	}
	if !r.InFlight(q2) {
		t.Fatal("q2 should still be in flight")
	}
}
