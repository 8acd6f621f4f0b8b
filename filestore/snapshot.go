package filestore

import (
	"encoding/json"
	"fmt"
)

// SnapshotKind says how a snapshot changed the table's visible file set.
type SnapshotKind string

const (
	// KindAppend adds files on top of the previous snapshot.
	KindAppend SnapshotKind = "APPEND"
	// KindOverwrite replaces the previous snapshot's files entirely.
	KindOverwrite SnapshotKind = "OVERWRITE"
)

func ParseSnapshotKind(s string) (SnapshotKind, error) {
	switch SnapshotKind(s) {
	case KindAppend, KindOverwrite:
		return SnapshotKind(s), nil
	default:
		return "", fmt.Errorf("unknown snapshot kind %q", s)
	}
}

// Snapshot is one committed version of the table, immutable once written.
// BaseManifest holds the visible file set before this commit ("" for the
// first snapshot and for overwrites, which reset the base). DeltaManifest
// holds the files this snapshot committed.
type Snapshot struct {
	ID            uint64       `json:"id"`
	Kind          SnapshotKind `json:"kind"`
	BaseManifest  string       `json:"baseManifest,omitempty"`
	DeltaManifest string       `json:"deltaManifest"`
	CommitTimeMs  int64        `json:"commitTimeMs"`
	DeltaRowCount int64        `json:"deltaRowCount"`
	TotalRowCount int64        `json:"totalRowCount"`
}

func (s *Snapshot) marshal() ([]byte, error) {
	return json.Marshal(s)
}

func unmarshalSnapshot(data []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshaling snapshot: %w", err)
	}
	if _, err := ParseSnapshotKind(string(snap.Kind)); err != nil {
		return nil, fmt.Errorf("snapshot %d: %w", snap.ID, err)
	}
	if snap.ID == 0 {
		return nil, fmt.Errorf("snapshot document has no id")
	}
	return &snap, nil
}
