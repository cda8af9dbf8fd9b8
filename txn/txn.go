// Package txn implements the transaction manager: monotonic transaction
// ids, the GROWING/SHRINKING/COMMITTED/ABORTED state machine, per-
// transaction lock-set and write-set, and commit/abort orchestration
// (abort replays the write-set as logical undo, in reverse order, under an
// execution context with no transaction so the record manager neither
// locks nor re-captures undo entries while undoing).
//
// Grounded on a transaction object owning state that is released back to a
// shared manager on completion, with a process-wide txn-registry keyed by
// transaction id.
package txn

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/kestreldb/kestrel/kschema"
	"github.com/kestreldb/kestrel/lock"
	"github.com/kestreldb/kestrel/walog"
)

// State is a transaction's position in the strict two-phase-locking
// lifecycle. Terminal states (Committed, Aborted) are absorbing.
type State int

const (
	Growing State = iota
	Shrinking
	Committed
	Aborted
)

func (s State) String() string {
	switch s {
	case Growing:
		return "GROWING"
	case Shrinking:
		return "SHRINKING"
	case Committed:
		return "COMMITTED"
	case Aborted:
		return "ABORTED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// WriteKind tags a WriteRecord's operation.
type WriteKind int

const (
	InsertTuple WriteKind = iota
	DeleteTuple
	UpdateTuple
)

// Heap is the subset of a heap file handle (heap.HeapFile) the transaction
// manager needs to replay logical undo. Defined here, rather than imported
// from package heap, so that heap (which needs *ExecContext) does not
// create an import cycle with txn.
type Heap interface {
	DeleteRecord(ctx *ExecContext, rid kschema.Rid) error
	InsertRecordAt(rid kschema.Rid, buf []byte) error
	UpdateRecord(ctx *ExecContext, rid kschema.Rid, buf []byte) error
}

// WriteRecord is one entry of a transaction's write-set: a tagged variant
// recording enough information to logically undo one heap mutation.
// Before-images are fixed-length byte buffers captured at the time of the
// original mutation.
type WriteRecord struct {
	Kind        WriteKind
	Heap        Heap
	Table       string
	Rid         kschema.Rid
	BeforeImage []byte // unused for InsertTuple
}

func (wr WriteRecord) undo(ctx *ExecContext) error {
	switch wr.Kind {
	case InsertTuple:
		return wr.Heap.DeleteRecord(ctx, wr.Rid)
	case DeleteTuple:
		return wr.Heap.InsertRecordAt(wr.Rid, wr.BeforeImage)
	case UpdateTuple:
		return wr.Heap.UpdateRecord(ctx, wr.Rid, wr.BeforeImage)
	default:
		return fmt.Errorf("txn: internal error: unknown write record kind %d", wr.Kind)
	}
}

// Transaction is the GROWING/SHRINKING/COMMITTED/ABORTED state, lock-set,
// and write-set owned by the transaction manager while the transaction is
// live.
type Transaction struct {
	id      uint64
	startTS uint64

	mu       sync.Mutex
	state    State
	lockSet  map[lock.DataID]struct{}
	writeSet []WriteRecord
}

func (t *Transaction) ID() uint64 { return t.id }
func (t *Transaction) StartTS() uint64 { return t.startTS }

func (t *Transaction) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// IsShrinking satisfies lock.Txn: the lock manager's only state question.
func (t *Transaction) IsShrinking() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state == Shrinking
}

func (t *Transaction) setState(s State) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
}

// AddLock/RemoveLock satisfy lock.Txn; called by the lock manager as it
// grants/releases requests.
func (t *Transaction) AddLock(id lock.DataID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.lockSet == nil {
		t.lockSet = map[lock.DataID]struct{}{}
	}
	t.lockSet[id] = struct{}{}
}

func (t *Transaction) RemoveLock(id lock.DataID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.lockSet, id)
}

// LockSetCopy returns a snapshot of the lock-set, used so release-all
// iteration is not invalidated by releases mutating the set underneath it:
// the set is copied first to avoid iterator invalidation.
func (t *Transaction) LockSetCopy() []lock.DataID {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make([]lock.DataID, 0, len(t.lockSet))
	for id := range t.lockSet {
		ids = append(ids, id)
	}
	return ids
}

// AppendWrite appends a WriteRecord to the write-set if and only if the
// transaction is in GROWING state. This predicate — and not any reasoning
// about "is this call part of undo" — is the single gate that prevents
// undo-of-undo recursion: callers always invoke AppendWrite
// unconditionally, and this method itself does the gating, mirroring how
// package heap guards capture with the same check.
func (t *Transaction) AppendWrite(wr WriteRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Growing {
		return
	}
	t.writeSet = append(t.writeSet, wr)
}

// ExecContext is the undo context passed to every heap and lock call
// site. A nil Txn means no transaction is involved — used both by
// non-transactional callers and, critically, by undo itself, so that
// mutations performed while undoing do not attempt to lock or re-capture a
// write-set entry.
type ExecContext struct {
	Txn  *Transaction
	Lock *lock.Manager
}

// Manager assigns transaction ids, tracks live transactions in a mutex-
// guarded process-wide registry, and commits/aborts them.
type Manager struct {
	mu     sync.Mutex
	nextID uint64
	nextTS uint64
	txns   map[uint64]*Transaction
	log    logrus.FieldLogger
}

func NewManager(log logrus.FieldLogger) *Manager {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Manager{txns: map[uint64]*Transaction{}, log: log}
}

// Begin starts a new transaction, or, if existing is non-nil, resets it to
// GROWING and returns it: statement-boundary reuse of a session's
// transaction object.
func (m *Manager) Begin(existing *Transaction) *Transaction {
	if existing != nil {
		existing.setState(Growing)
		return existing
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.nextTS++
	t := &Transaction{id: m.nextID, startTS: m.nextTS, state: Growing}
	m.txns[t.id] = t
	return t
}

// Lookup finds a live transaction by id, or returns ok=false.
func (m *Manager) Lookup(id uint64) (*Transaction, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.txns[id]
	return t, ok
}

func (m *Manager) forget(t *Transaction) {
	m.mu.Lock()
	delete(m.txns, t.id)
	m.mu.Unlock()
}

// Commit releases every lock in the lock-set, flushes the log, and
// discards the write-set.
func (m *Manager) Commit(t *Transaction, lockMgr *lock.Manager, wal *walog.LogManager) error {
	t.setState(Shrinking)
	lockMgr.ReleaseAll(t, t.LockSetCopy())

	if wal != nil {
		if _, err := wal.Append([]byte{byte(Committed), byte(t.id)}); err != nil {
			return fmt.Errorf("txn: commit %d: %w", t.id, err)
		}
		if err := wal.FlushToDisk(); err != nil {
			return fmt.Errorf("txn: commit %d: %w", t.id, err)
		}
	}

	t.mu.Lock()
	t.writeSet = nil
	t.state = Committed
	t.mu.Unlock()

	m.log.WithField("txn", t.id).Debug("txn: committed")
	m.forget(t)
	return nil
}

// Abort sets state to SHRINKING before undo (so the gate in AppendWrite and
// in package heap suppresses further capture), then replays the write-set
// in reverse order under a transaction-less ExecContext, then releases
// locks, flushes the log, and discards the write-set.
//
// Any error raised while undoing is fatal and is not itself turned into a
// second abort: it is wrapped and returned, leaving the
// transaction's remaining locks held — a caller encountering this has a
// corrupted invariant to investigate, not a retry to attempt.
func (m *Manager) Abort(t *Transaction, lockMgr *lock.Manager, wal *walog.LogManager) error {
	t.setState(Shrinking)

	undoCtx := &ExecContext{Txn: nil, Lock: lockMgr}
	t.mu.Lock()
	writeSet := t.writeSet
	t.mu.Unlock()

	for i := len(writeSet) - 1; i >= 0; i-- {
		wr := writeSet[i]
		if err := wr.undo(undoCtx); err != nil {
			m.log.WithFields(logrus.Fields{"txn": t.id, "table": wr.Table, "rid": wr.Rid}).
				WithError(err).Error("txn: fatal error during undo")
			return fmt.Errorf("txn: internal error: undo failed for txn %d: %w", t.id, err)
		}
	}

	lockMgr.ReleaseAll(t, t.LockSetCopy())

	if wal != nil {
		if _, err := wal.Append([]byte{byte(Aborted), byte(t.id)}); err != nil {
			return fmt.Errorf("txn: abort %d: %w", t.id, err)
		}
		if err := wal.FlushToDisk(); err != nil {
			return fmt.Errorf("txn: abort %d: %w", t.id, err)
		}
	}

	t.mu.Lock()
	t.writeSet = nil
	t.state = Aborted
	t.mu.Unlock()

	m.log.WithField("txn", t.id).Debug("txn: aborted")
	m.forget(t)
	return nil
}
