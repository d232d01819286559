package store

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/blockvault/blockvault/internal/testutil"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(testutil.DBPath(t, "test.db"), false)
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func h(b byte) []byte { return []byte{b} }

// TestLinearChain covers scenario 1: put(A,[B]), put(B,[C]), put(C,[]),
// alias("root", A).
func TestLinearChain(t *testing.T) {
	s := newTestStore(t)
	A, B, C := h('A'), h('B'), h('C')

	if _, err := s.PutBlock(A, []byte("a"), [][]byte{B}, nil); err != nil {
		t.Fatalf("put A: %v", err)
	}
	if _, err := s.PutBlock(B, []byte("b"), [][]byte{C}, nil); err != nil {
		t.Fatalf("put B: %v", err)
	}
	if _, err := s.PutBlock(C, []byte("c"), nil, nil); err != nil {
		t.Fatalf("put C: %v", err)
	}
	if err := s.Alias([]byte("root"), A); err != nil {
		t.Fatalf("alias: %v", err)
	}

	desc, err := s.GetDescendants(A)
	if err != nil {
		t.Fatalf("get descendants: %v", err)
	}
	assertHashSet(t, desc, A, B, C)

	missing, err := s.GetMissingBlocks(A)
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	if len(missing) != 0 {
		t.Errorf("expected no missing blocks, got %v", missing)
	}

	entries, err := s.ReverseAlias(C)
	if err != nil {
		t.Fatalf("reverse alias: %v", err)
	}
	if !hasAliasName(entries, "root") {
		t.Errorf("expected reverse-alias(C) to include root, got %+v", entries)
	}

	st, err := s.StoreStats()
	if err != nil {
		t.Fatalf("store stats: %v", err)
	}
	if st.Count != 3 || st.Size != 3 {
		t.Errorf("expected stats (3, 3), got (%d, %d)", st.Count, st.Size)
	}
}

// TestIncompleteDAG covers scenario 2: put(A,[B]) only.
func TestIncompleteDAG(t *testing.T) {
	s := newTestStore(t)
	A, B := h('A'), h('B')

	if _, err := s.PutBlock(A, []byte("a"), [][]byte{B}, nil); err != nil {
		t.Fatalf("put A: %v", err)
	}

	desc, err := s.GetDescendants(A)
	if err != nil {
		t.Fatalf("get descendants: %v", err)
	}
	assertHashSet(t, desc, A, B)

	missing, err := s.GetMissingBlocks(A)
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	assertHashSet(t, missing, B)

	hasB, err := s.HasBlock(B)
	if err != nil || hasB {
		t.Errorf("expected has-block(B) = false, got %v (err %v)", hasB, err)
	}
	hasCidB, err := s.HasCid(B)
	if err != nil || !hasCidB {
		t.Errorf("expected has-cid(B) = true, got %v (err %v)", hasCidB, err)
	}

	st, err := s.StoreStats()
	if err != nil {
		t.Fatalf("store stats: %v", err)
	}
	if st.Count != 1 || st.Size != 1 {
		t.Errorf("expected stats (1, 1), got (%d, %d)", st.Count, st.Size)
	}
}

// TestGCRemovesUnpinned covers scenario 3.
func TestGCRemovesUnpinned(t *testing.T) {
	s := newTestStore(t)
	A, B, C := h('A'), h('B'), h('C')

	mustPut(t, s, A, "a", B)
	mustPut(t, s, B, "b", C)
	mustPut(t, s, C, "c")
	if err := s.Alias([]byte("root"), A); err != nil {
		t.Fatalf("alias: %v", err)
	}
	if err := s.Unalias([]byte("root")); err != nil {
		t.Fatalf("unalias: %v", err)
	}

	done, err := s.IncrementalGC(10, time.Second, GCTargets{0, 0}, nil)
	if err != nil {
		t.Fatalf("gc: %v", err)
	}
	if !done {
		t.Errorf("expected gc to be done")
	}

	for _, hash := range [][]byte{A, B, C} {
		if ok, _ := s.HasCid(hash); ok {
			t.Errorf("expected %s to be gone", hash)
		}
	}

	st, err := s.StoreStats()
	if err != nil {
		t.Fatalf("store stats: %v", err)
	}
	if st.Count != 0 || st.Size != 0 {
		t.Errorf("expected stats (0, 0), got (%d, %d)", st.Count, st.Size)
	}
}

// TestGCPreservesPinned covers scenario 4.
func TestGCPreservesPinned(t *testing.T) {
	s := newTestStore(t)
	A, B, C := h('A'), h('B'), h('C')

	mustPut(t, s, A, "a", B)
	mustPut(t, s, B, "b", C)
	mustPut(t, s, C, "c")
	if err := s.Alias([]byte("root"), A); err != nil {
		t.Fatalf("alias: %v", err)
	}

	done, err := s.IncrementalGC(10, time.Second, GCTargets{0, 0}, nil)
	if err != nil {
		t.Fatalf("gc: %v", err)
	}
	if !done {
		t.Errorf("expected gc to be done")
	}

	for _, hash := range [][]byte{A, B, C} {
		if ok, _ := s.HasCid(hash); !ok {
			t.Errorf("expected %s to survive gc", hash)
		}
	}
}

// TestTransientPinSurvivesUntilRelease covers scenario 5.
func TestTransientPinSurvivesUntilRelease(t *testing.T) {
	s := newTestStore(t)
	X := h('X')

	pin := NewPinHandle()
	if _, err := s.PutBlock(X, []byte("x"), nil, pin); err != nil {
		t.Fatalf("put X: %v", err)
	}
	if pin.ID() == 0 {
		t.Fatalf("expected pin handle to be assigned")
	}

	done, err := s.IncrementalGC(10, time.Second, GCTargets{0, 0}, nil)
	if err != nil || !done {
		t.Fatalf("gc: done=%v err=%v", done, err)
	}
	if ok, _ := s.HasCid(X); !ok {
		t.Errorf("expected X to survive while pinned")
	}

	if err := s.DeleteTempPin(pin.ID()); err != nil {
		t.Fatalf("delete temp pin: %v", err)
	}

	done, err = s.IncrementalGC(10, time.Second, GCTargets{0, 0}, nil)
	if err != nil || !done {
		t.Fatalf("gc: done=%v err=%v", done, err)
	}
	if ok, _ := s.HasCid(X); ok {
		t.Errorf("expected X to be removed after releasing pin")
	}
}

// TestCrashRecoveryPurgesTempPins covers scenario 6.
func TestCrashRecoveryPurgesTempPins(t *testing.T) {
	dbPath := testutil.DBPath(t, "test.db")
	s, err := Open(dbPath, false)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	X := h('X')
	pin := NewPinHandle()
	if _, err := s.PutBlock(X, []byte("x"), nil, pin); err != nil {
		t.Fatalf("put X: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s2, err := Open(dbPath, false)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	done, err := s2.IncrementalGC(10, time.Second, GCTargets{0, 0}, nil)
	if err != nil || !done {
		t.Fatalf("gc: done=%v err=%v", done, err)
	}
	if ok, _ := s2.HasCid(X); ok {
		t.Errorf("expected X's transient pin to have been purged on reopen")
	}
}

// TestOrphanSweep covers scenario 7: a block row with no owning
// identifier (simulating a legacy-path inconsistency) is removed by
// IncrementalDeleteOrphaned.
func TestOrphanSweep(t *testing.T) {
	s := newTestStore(t)
	A := h('A')
	mustPut(t, s, A, "a")

	id, _, found, err := s.GetBlock(A)
	if err != nil || !found {
		t.Fatalf("get block: %v found=%v", err, found)
	}

	// Deleting the cids row with foreign keys off skips the cascade that
	// would normally take the block row with it, leaving an orphan. The
	// store holds a single pooled connection, so the pragma flip applies
	// to the same connection the delete runs on.
	if _, err := s.db.Exec("PRAGMA foreign_keys = off"); err != nil {
		t.Fatalf("disable foreign keys: %v", err)
	}
	if _, err := s.db.Exec("DELETE FROM cids WHERE id = ?", int64(id)); err != nil {
		t.Fatalf("test setup: %v", err)
	}
	if _, err := s.db.Exec("PRAGMA foreign_keys = on"); err != nil {
		t.Fatalf("re-enable foreign keys: %v", err)
	}

	done, err := s.IncrementalDeleteOrphaned(10, time.Second)
	if err != nil || !done {
		t.Fatalf("orphan sweep: done=%v err=%v", done, err)
	}

	if n := testutil.CountRows(t, s.db, "blocks"); n != 0 {
		t.Errorf("expected orphan block to be removed, %d block rows remain", n)
	}
}

func TestIntegrityCheckHealthy(t *testing.T) {
	s := newTestStore(t)
	mustPut(t, s, h('A'), "a")

	diags, err := s.IntegrityCheck()
	if err != nil {
		t.Fatalf("integrity check: %v", err)
	}
	if len(diags) != 1 || diags[0] != "ok" {
		t.Errorf("expected [\"ok\"], got %v", diags)
	}
}

func TestPutIdempotent(t *testing.T) {
	s := newTestStore(t)
	A, B := h('A'), h('B')

	if _, err := s.PutBlock(A, []byte("a"), [][]byte{B}, nil); err != nil {
		t.Fatalf("put 1: %v", err)
	}
	st1, _ := s.StoreStats()

	if _, err := s.PutBlock(A, []byte("a"), nil, nil); err != nil {
		t.Fatalf("put 2: %v", err)
	}
	st2, _ := s.StoreStats()

	if st1 != st2 {
		t.Errorf("expected second put to be a no-op on stats: %+v vs %+v", st1, st2)
	}

	desc, err := s.GetDescendants(A)
	if err != nil {
		t.Fatalf("get descendants: %v", err)
	}
	assertHashSet(t, desc, A, B)
}

func TestListHashes(t *testing.T) {
	s := newTestStore(t)
	A, B := h('A'), h('B')

	mustPut(t, s, A, "a", B)

	hashes, err := s.ListHashes()
	if err != nil {
		t.Fatalf("list hashes: %v", err)
	}
	assertHashSet(t, hashes, A, B)
}

// TestGCBudgetBoundsPass pins nothing and gives GC a budget of one block
// per pass: each pass must evict at least one candidate (progress), stop
// once the budget is spent, and only report done once the candidate list
// is drained.
func TestGCBudgetBoundsPass(t *testing.T) {
	s := newTestStore(t)
	A, B, C := h('A'), h('B'), h('C')

	mustPut(t, s, A, "a")
	mustPut(t, s, B, "b")
	mustPut(t, s, C, "c")

	passes := 0
	for {
		done, err := s.IncrementalGC(1, 0, GCTargets{0, 0}, nil)
		if err != nil {
			t.Fatalf("gc pass %d: %v", passes, err)
		}
		passes++
		if done {
			break
		}
		if passes > 3 {
			t.Fatalf("gc made no progress: still not done after %d passes", passes)
		}
	}

	st, err := s.StoreStats()
	if err != nil {
		t.Fatalf("store stats: %v", err)
	}
	if st.Count != 0 || st.Size != 0 {
		t.Errorf("expected empty store after repeated gc, got (%d, %d)", st.Count, st.Size)
	}
}

// TestStatsCoherence checks store-stats equals recompute-stats after a
// mixed sequence of puts, aliases, and a gc pass.
func TestStatsCoherence(t *testing.T) {
	s := newTestStore(t)
	A, B, C := h('A'), h('B'), h('C')

	mustPut(t, s, A, "aaaa", B)
	mustPut(t, s, B, "bb", C)
	if err := s.Alias([]byte("root"), A); err != nil {
		t.Fatalf("alias: %v", err)
	}
	assertStatsCoherent(t, s)

	mustPut(t, s, C, "c")
	if err := s.Unalias([]byte("root")); err != nil {
		t.Fatalf("unalias: %v", err)
	}
	if _, err := s.IncrementalGC(10, time.Second, GCTargets{0, 0}, nil); err != nil {
		t.Fatalf("gc: %v", err)
	}
	assertStatsCoherent(t, s)
}

func assertStatsCoherent(t *testing.T, s *Store) {
	t.Helper()
	mirrored, err := s.StoreStats()
	if err != nil {
		t.Fatalf("store stats: %v", err)
	}
	truth, err := s.RecomputeStats()
	if err != nil {
		t.Fatalf("recompute stats: %v", err)
	}
	if mirrored != truth {
		t.Errorf("stats mirror %+v diverged from ground truth %+v", mirrored, truth)
	}
}

// TestGetMissingBlocksInternsHash confirms the documented side effect:
// asking for the missing blocks of an unknown hash interns it.
func TestGetMissingBlocksInternsHash(t *testing.T) {
	s := newTestStore(t)
	Z := h('Z')

	if ok, _ := s.HasCid(Z); ok {
		t.Fatalf("expected Z to be unknown before the query")
	}

	missing, err := s.GetMissingBlocks(Z)
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	assertHashSet(t, missing, Z)

	if ok, _ := s.HasCid(Z); !ok {
		t.Errorf("expected get-missing-blocks to intern Z")
	}
	if ok, _ := s.HasBlock(Z); ok {
		t.Errorf("interning must not create a block for Z")
	}
}

// TestNestedWriteTxnRejected checks the harness surfaces a
// PreconditionError instead of deadlocking when a write-txn is opened
// inside another.
func TestNestedWriteTxnRejected(t *testing.T) {
	s := newTestStore(t)

	err := s.writeTxn("outer", func(*Txn) error {
		return s.writeTxn("inner", func(*Txn) error { return nil })
	})
	var pe *PreconditionError
	if !errors.As(err, &pe) {
		t.Fatalf("expected PreconditionError, got %v", err)
	}
}

// TestRepinExistingBlock confirms a pinning put on an already-stored
// block still attaches the transient pin, keeping it alive through a gc
// pass that would otherwise collect it.
func TestRepinExistingBlock(t *testing.T) {
	s := newTestStore(t)
	X := h('X')

	mustPut(t, s, X, "x")

	pin := NewPinHandle()
	if _, err := s.PutBlock(X, []byte("x"), nil, pin); err != nil {
		t.Fatalf("re-put with pin: %v", err)
	}
	if pin.ID() == 0 {
		t.Fatalf("expected re-pinning put to assign the handle a pin id")
	}

	done, err := s.IncrementalGC(10, time.Second, GCTargets{0, 0}, nil)
	if err != nil || !done {
		t.Fatalf("gc: done=%v err=%v", done, err)
	}
	if ok, _ := s.HasCid(X); !ok {
		t.Errorf("expected re-pinned block to survive gc")
	}
}

func mustPut(t *testing.T, s *Store, hash []byte, payload string, links ...[]byte) {
	t.Helper()
	if _, err := s.PutBlock(hash, []byte(payload), links, nil); err != nil {
		t.Fatalf("put %x: %v", hash, err)
	}
}

func assertHashSet(t *testing.T, got [][]byte, want ...[]byte) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %d hashes, got %d (%v)", len(want), len(got), got)
	}
	for _, w := range want {
		found := false
		for _, g := range got {
			if bytes.Equal(g, w) {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("expected %x to be present in %v", w, got)
		}
	}
}

func hasAliasName(entries []AliasEntry, name string) bool {
	for _, e := range entries {
		if e.HasName && string(e.Name) == name {
			return true
		}
	}
	return false
}
