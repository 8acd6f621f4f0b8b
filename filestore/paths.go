package filestore

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/oklog/ulid/v2"
)

// Table directory layout:
//
//	schema/schema.json
//	snapshot/LATEST
//	snapshot/snapshot-<id>.json
//	manifest/manifest-<ulid>.json
//	data/data-<ulid>.parquet
const (
	schemaPath        = "schema/schema.json"
	snapshotDir       = "snapshot/"
	latestPointerPath = "snapshot/LATEST"
	manifestDir       = "manifest/"
	dataDir           = "data/"
)

func snapshotPath(id uint64) string {
	return fmt.Sprintf("%ssnapshot-%d.json", snapshotDir, id)
}

// snapshotIDFromPath parses a snapshot id from a path like
// snapshot/snapshot-12.json, returning false for other files such as the
// LATEST pointer.
func snapshotIDFromPath(path string) (uint64, bool) {
	name := strings.TrimPrefix(path, snapshotDir)
	name, ok := strings.CutPrefix(name, "snapshot-")
	if !ok {
		return 0, false
	}
	name, ok = strings.CutSuffix(name, ".json")
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseUint(name, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

func newManifestPath() string {
	return manifestDir + "manifest-" + ulid.Make().String() + ".json"
}

func newDataFilePath() string {
	return dataDir + "data-" + ulid.Make().String() + ".parquet"
}
