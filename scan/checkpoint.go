package scan

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/btree"
)

// checkpointFormat is checked on restore; payloads from other formats are
// rejected rather than guessed at.
const checkpointFormat = 1

// checkpointDocument is the opaque payload handed to the external checkpoint
// system: every incomplete split with its resume offset, the monitor's
// last-delivered snapshot id, and the per-key merge state for keyed tables.
type checkpointDocument struct {
	Format                  int               `json:"format"`
	LastDeliveredSnapshotID uint64            `json:"lastDeliveredSnapshotId"`
	Splits                  []*Split          `json:"splits"`
	Merge                   map[string]uint64 `json:"merge,omitempty"`
}

func splitLess(a, b *Split) bool {
	if a.SnapshotID != b.SnapshotID {
		return a.SnapshotID < b.SnapshotID
	}
	return a.ID < b.ID
}

// splitTracker owns the scan's durable progress: the set of assigned but
// incomplete splits and the monitor's last-delivered snapshot id. A
// snapshot's splits and the watermark move in one critical section, so a
// checkpoint can never capture the watermark without the splits it implies.
type splitTracker struct {
	mu            sync.Mutex
	splits        *btree.BTreeG[*Split]
	lastDelivered uint64
}

func newSplitTracker(lastDelivered uint64) *splitTracker {
	return &splitTracker{
		splits:        btree.NewG(8, splitLess),
		lastDelivered: lastDelivered,
	}
}

// register records a snapshot's splits and advances the watermark together.
// Overwrite snapshots register with no splits to advance past them.
func (t *splitTracker) register(snapshotID uint64, splits []*Split) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, split := range splits {
		t.splits.ReplaceOrInsert(split)
	}
	if snapshotID > t.lastDelivered {
		t.lastDelivered = snapshotID
	}
}

// restore seeds the tracker from a checkpoint payload and returns the splits
// in (snapshot id, split id) order for re-assignment.
func (t *splitTracker) restore(lastDelivered uint64, splits []*Split) []*Split {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastDelivered = lastDelivered
	for _, split := range splits {
		t.splits.ReplaceOrInsert(split)
	}
	ordered := make([]*Split, 0, len(splits))
	t.splits.Ascend(func(split *Split) bool {
		ordered = append(ordered, split)
		return true
	})
	return ordered
}

// advance moves a split's resume offset after its rows were returned to the
// caller, dropping the split once fully consumed.
func (t *splitTracker) advance(id string, snapshotID uint64, consumed int64, final bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	split, ok := t.splits.Get(&Split{ID: id, SnapshotID: snapshotID})
	if !ok {
		return
	}
	split.RowsDelivered += consumed
	if final {
		t.splits.Delete(split)
	}
}

func (t *splitTracker) watermark() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastDelivered
}

// snapshot copies the tracker's state for a checkpoint payload.
func (t *splitTracker) snapshot() (uint64, []*Split) {
	t.mu.Lock()
	defer t.mu.Unlock()
	splits := make([]*Split, 0, t.splits.Len())
	t.splits.Ascend(func(split *Split) bool {
		copied := *split
		splits = append(splits, &copied)
		return true
	})
	return t.lastDelivered, splits
}

// parseCheckpoint validates a payload before any scan state is built from
// it. Anything malformed or internally inconsistent fails restore; resuming
// from a payload we cannot fully trust risks skipping or repeating rows.
func parseCheckpoint(payload []byte) (*checkpointDocument, error) {
	var doc checkpointDocument
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCheckpointRestore, err)
	}
	if doc.Format != checkpointFormat {
		return nil, fmt.Errorf("%w: payload format %d, want %d", ErrCheckpointRestore, doc.Format, checkpointFormat)
	}
	for _, split := range doc.Splits {
		if split.ID == "" || split.SnapshotID == 0 || len(split.Files) == 0 {
			return nil, fmt.Errorf("%w: incomplete split document %q", ErrCheckpointRestore, split.ID)
		}
		if split.SnapshotID > doc.LastDeliveredSnapshotID {
			return nil, fmt.Errorf("%w: split %q is ahead of the delivered snapshot watermark %d",
				ErrCheckpointRestore, split.ID, doc.LastDeliveredSnapshotID)
		}
		if split.RowsDelivered < 0 || split.RowsDelivered >= split.rowCount() {
			return nil, fmt.Errorf("%w: split %q resume offset %d out of range",
				ErrCheckpointRestore, split.ID, split.RowsDelivered)
		}
	}
	return &doc, nil
}
