package scan

import (
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/happut/incubator-paimon/table"
)

// mergeKeySeparator joins primary key column values into one map key. Unit
// separator, so composite keys cannot collide on value boundaries.
const mergeKeySeparator = "\x1f"

func mergeKey(row table.Row, keyIndexes []int) string {
	if len(keyIndexes) == 1 {
		return row[keyIndexes[0]]
	}
	parts := make([]string, len(keyIndexes))
	for i, idx := range keyIndexes {
		parts[i] = row[idx]
	}
	return strings.Join(parts, mergeKeySeparator)
}

// mergeState tracks the last snapshot id emitted per primary key for the
// lifetime of a scan. It is shared by all readers, so the keyspace is split
// into independently locked shards by key hash; updates for one key always
// serialize on its shard.
type mergeState struct {
	shards []mergeShard
}

type mergeShard struct {
	mu   sync.Mutex
	last map[string]uint64
}

func newMergeState(shardCount int) *mergeState {
	m := &mergeState{shards: make([]mergeShard, shardCount)}
	for i := range m.shards {
		m.shards[i].last = make(map[string]uint64)
	}
	return m
}

func (m *mergeState) shard(key string) *mergeShard {
	return &m.shards[xxhash.Sum64String(key)%uint64(len(m.shards))]
}

// viable reports whether a row for key at snapshotID would still win the
// merge. Readers use it to drop superseded rows early; only emit records.
func (m *mergeState) viable(key string, snapshotID uint64) bool {
	shard := m.shard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	return snapshotID > shard.last[key]
}

// emit records key at snapshotID if it is strictly newer than the last
// emitted version and reports whether the row should be delivered. The check
// and the update share one critical section so concurrent readers can never
// apply an older version after a newer one.
func (m *mergeState) emit(key string, snapshotID uint64) bool {
	shard := m.shard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	if snapshotID <= shard.last[key] {
		return false
	}
	shard.last[key] = snapshotID
	return true
}

// entries copies the state shard by shard for a checkpoint payload.
func (m *mergeState) entries() map[string]uint64 {
	out := make(map[string]uint64)
	for i := range m.shards {
		shard := &m.shards[i]
		shard.mu.Lock()
		for k, v := range shard.last {
			out[k] = v
		}
		shard.mu.Unlock()
	}
	return out
}

func (m *mergeState) restore(entries map[string]uint64) {
	for k, v := range entries {
		shard := m.shard(k)
		shard.mu.Lock()
		shard.last[k] = v
		shard.mu.Unlock()
	}
}
