package scan

import (
	"github.com/happut/incubator-paimon/filestore"
	"github.com/happut/incubator-paimon/util/ds"
)

// enumerateSplits partitions manifest entries into splits. Entries are
// grouped by the snapshot that committed them and groups are emitted in
// increasing id order, so a split never spans snapshots and bootstrap
// enumeration walks the table's history oldest first. Within a group, small
// files coalesce into one split until the next file would push it past
// targetBytes; a file at or above the target gets a split of its own.
func enumerateSplits(entries []filestore.FileEntry, targetBytes int64) []*Split {
	groups := ds.NewSortedMap[uint64, []filestore.FileEntry]()
	for _, entry := range entries {
		group, _ := groups.Get(entry.SnapshotID)
		groups.Set(entry.SnapshotID, append(group, entry))
	}

	var splits []*Split
	for snapshotID, group := range groups.All() {
		index := 0
		var files []filestore.FileEntry
		var bytes int64

		flush := func() {
			if len(files) == 0 {
				return
			}
			splits = append(splits, &Split{
				ID:         splitID(snapshotID, index),
				SnapshotID: snapshotID,
				Files:      files,
			})
			index++
			files = nil
			bytes = 0
		}

		for _, entry := range group {
			if len(files) > 0 && bytes+entry.SizeBytes > targetBytes {
				flush()
			}
			files = append(files, entry)
			bytes += entry.SizeBytes
		}
		flush()
	}
	return splits
}
