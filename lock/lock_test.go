package lock

import (
	"testing"

	"github.com/kestreldb/kestrel/kschema"
)

// fakeTxn is a minimal lock.Txn for exercising the manager without
// depending on package txn (which would create an import cycle anyway).
type fakeTxn struct {
	id        uint64
	shrinking bool
	held      map[DataID]struct{}
}

func newFakeTxn(id uint64) *fakeTxn {
	return &fakeTxn{id: id, held: map[DataID]struct{}{}}
}

func (t *fakeTxn) ID() uint64         { return t.id }
func (t *fakeTxn) IsShrinking() bool  { return t.shrinking }
func (t *fakeTxn) AddLock(id DataID)  { t.held[id] = struct{}{} }
func (t *fakeTxn) RemoveLock(id DataID) { delete(t.held, id) }

func isAbort(err error, reason AbortReason) bool {
	ae, ok := err.(*AbortError)
	return ok && ae.Reason == reason
}

func TestCompatibilityMatrix(t *testing.T) {
	cases := []struct {
		a, b Mode
		want bool
	}{
		{IS, IS, true}, {IS, IX, true}, {IS, S, true}, {IS, SIX, true}, {IS, X, false},
		{IX, IX, true}, {IX, S, false}, {IX, SIX, false}, {IX, X, false},
		{S, S, true}, {S, SIX, false}, {S, X, false},
		{SIX, SIX, false}, {SIX, X, false},
		{X, X, false},
	}
	for _, c := range cases {
		if got := compatible(c.a, c.b); got != c.want {
			t.Errorf("compatible(%s, %s) = %v, want %v", c.a, c.b, got, c.want)
		}
		if got := compatible(c.b, c.a); got != c.want {
			t.Errorf("compatible(%s, %s) = %v, want %v", c.b, c.a, got, c.want)
		}
	}
}

func TestUpgradeLattice(t *testing.T) {
	cases := []struct {
		cur, req, want Mode
		ok             bool
	}{
		{IS, S, S, true},
		{IS, X, X, true},
		{S, IX, SIX, true},
		{IX, S, SIX, true},
		{S, IS, S, true},
		{SIX, X, X, true},
		{X, S, X, true},
		{S, X, X, true},
		{SIX, S, SIX, true},
	}
	for _, c := range cases {
		got, ok := upgrade(c.cur, c.req)
		if ok != c.ok || got != c.want {
			t.Errorf("upgrade(%s, %s) = (%s, %v), want (%s, %v)", c.cur, c.req, got, ok, c.want, c.ok)
		}
	}
}

func TestAcquireGrantsCompatibleLocks(t *testing.T) {
	m := NewManager(nil)
	t1, t2 := newFakeTxn(1), newFakeTxn(2)
	id := TableID(1)

	if err := m.Acquire(t1, id, IS); err != nil {
		t.Fatalf("t1 IS: %s", err)
	}
	if err := m.Acquire(t2, id, IS); err != nil {
		t.Fatalf("t2 IS: %s", err)
	}
	if _, ok := t1.held[id]; !ok {
		t.Error("t1 should hold id after Acquire")
	}
}

func TestAcquireAbortsOnConflict(t *testing.T) {
	m := NewManager(nil)
	t1, t2 := newFakeTxn(1), newFakeTxn(2)
	id := TableID(1)

	if err := m.Acquire(t1, id, X); err != nil {
		t.Fatalf("t1 X: %s", err)
	}
	err := m.Acquire(t2, id, S)
	if !isAbort(err, DeadlockPrevention) {
		t.Errorf("t2 S while t1 holds X: err = %v, want DeadlockPrevention AbortError", err)
	}
}

func TestAcquireOnShrinkingAborts(t *testing.T) {
	m := NewManager(nil)
	t1 := newFakeTxn(1)
	t1.shrinking = true

	err := m.Acquire(t1, TableID(1), S)
	if !isAbort(err, LockOnShrinking) {
		t.Errorf("Acquire while shrinking: err = %v, want LockOnShrinking AbortError", err)
	}
}

func TestAcquireReentrantSameModeIsNoop(t *testing.T) {
	m := NewManager(nil)
	t1 := newFakeTxn(1)
	id := TableID(1)

	if err := m.Acquire(t1, id, S); err != nil {
		t.Fatalf("first S: %s", err)
	}
	if err := m.Acquire(t1, id, S); err != nil {
		t.Fatalf("second S (reentrant): %s", err)
	}
}

func TestAcquireUpgradeConflictsWithOthersAborts(t *testing.T) {
	m := NewManager(nil)
	t1, t2 := newFakeTxn(1), newFakeTxn(2)
	id := TableID(1)

	if err := m.Acquire(t1, id, S); err != nil {
		t.Fatalf("t1 S: %s", err)
	}
	if err := m.Acquire(t2, id, S); err != nil {
		t.Fatalf("t2 S: %s", err)
	}
	// t1 tries to upgrade S -> X, which conflicts with t2's granted S.
	err := m.Acquire(t1, id, X)
	if !isAbort(err, UpgradeConflict) {
		t.Errorf("t1 upgrade S->X with t2 holding S: err = %v, want UpgradeConflict AbortError", err)
	}
}

func TestReleaseAllowsSubsequentConflictingLock(t *testing.T) {
	m := NewManager(nil)
	t1, t2 := newFakeTxn(1), newFakeTxn(2)
	id := TableID(1)

	if err := m.Acquire(t1, id, X); err != nil {
		t.Fatalf("t1 X: %s", err)
	}
	m.Release(t1, id)
	if err := m.Acquire(t2, id, X); err != nil {
		t.Errorf("t2 X after t1 released: %s", err)
	}
}

func TestReleaseAllReleasesEveryLock(t *testing.T) {
	m := NewManager(nil)
	t1 := newFakeTxn(1)
	tableID := TableID(1)
	recID := RecordID(1, kschema.Rid{PageNo: 1, SlotNo: 0})

	if err := m.Acquire(t1, tableID, IX); err != nil {
		t.Fatal(err)
	}
	if err := m.Acquire(t1, recID, X); err != nil {
		t.Fatal(err)
	}

	m.ReleaseAll(t1, []DataID{tableID, recID})
	if len(t1.held) != 0 {
		t.Errorf("held locks after ReleaseAll = %v, want none", t1.held)
	}

	t2 := newFakeTxn(2)
	if err := m.Acquire(t2, recID, X); err != nil {
		t.Errorf("t2 X on released record: %s", err)
	}
}

func TestNilTxnAlwaysSucceedsWithoutLocking(t *testing.T) {
	m := NewManager(nil)
	t1 := newFakeTxn(1)
	id := TableID(1)

	if err := m.Acquire(t1, id, X); err != nil {
		t.Fatal(err)
	}
	// The undo path passes a nil Txn and must never be blocked by any
	// other transaction's held locks.
	if err := m.Acquire(nil, id, X); err != nil {
		t.Errorf("Acquire(nil, ...) = %v, want nil", err)
	}
}
