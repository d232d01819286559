package store

import "sort"

// CacheTracker is the pluggable eviction policy incremental GC cooperates
// with. SortIDs orders a candidate slice in place, front = evict first;
// DeleteIDs notifies the tracker of exactly the prefix GC actually
// removed, so an LRU/LFU/size-biased implementation can drop its own
// bookkeeping for those identifiers.
type CacheTracker interface {
	SortIDs(ids []ID)
	DeleteIDs(ids []ID)
}

// NullTracker performs no reordering and ignores deletion notifications.
// A valid, minimal CacheTracker for callers with no eviction preference:
// candidates are evicted in whatever order the candidate query returned
// them.
type NullTracker struct{}

func (NullTracker) SortIDs([]ID)    {}
func (NullTracker) DeleteIDs([]ID) {}

// FIFOTracker sorts candidates by identifier ascending. Since identifiers
// are assigned monotonically on first sight of a hash and never reused
// while a process is alive, this approximates oldest-created-first
// eviction without needing any extra bookkeeping table.
type FIFOTracker struct{}

func (FIFOTracker) SortIDs(ids []ID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
func (FIFOTracker) DeleteIDs([]ID) {}

// SizeTracker sorts candidates by stored Block payload size descending,
// evicting the largest blocks first to free space as quickly as
// possible. Identifiers with no Block (size 0) sort last.
type SizeTracker struct {
	store *Store
}

// NewSizeTracker returns a SizeTracker that looks up block sizes from s.
func NewSizeTracker(s *Store) *SizeTracker {
	return &SizeTracker{store: s}
}

func (t *SizeTracker) SortIDs(ids []ID) {
	sizes := make(map[ID]int64, len(ids))
	_ = t.store.readTxn("size_tracker_sort", func(txn *Txn) error {
		for _, id := range ids {
			var n int64
			if err := txn.QueryRow("SELECT LENGTH(payload) FROM blocks WHERE block_id = ?", int64(id)).Scan(&n); err == nil {
				sizes[id] = n
			}
		}
		return nil
	})
	sort.Slice(ids, func(i, j int) bool { return sizes[ids[i]] > sizes[ids[j]] })
}

func (t *SizeTracker) DeleteIDs([]ID) {}
