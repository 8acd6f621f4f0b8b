package scan

import (
	"fmt"

	"github.com/happut/incubator-paimon/filestore"
)

// Split is a bounded group of data files from exactly one snapshot, read by
// exactly one reader. RowsDelivered counts the rows, in the split's storage
// order, whose outcome has already been returned to the caller; a split
// restored from a checkpoint resumes there instead of rereading from zero.
type Split struct {
	ID            string                `json:"id"`
	SnapshotID    uint64                `json:"snapshotId"`
	Files         []filestore.FileEntry `json:"files"`
	RowsDelivered int64                 `json:"rowsDelivered"`
}

func splitID(snapshotID uint64, index int) string {
	return fmt.Sprintf("%d-%d", snapshotID, index)
}

func (s *Split) rowCount() int64 {
	var n int64
	for _, f := range s.Files {
		n += f.RowCount
	}
	return n
}
