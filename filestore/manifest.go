package filestore

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/happut/incubator-paimon/storage"
)

// FileEntry describes one data file referenced by a manifest. SnapshotID is
// the snapshot that committed the file, which stays with the entry when it
// is carried forward into later base manifests.
type FileEntry struct {
	Path       string `json:"path"`
	RowCount   int64  `json:"rowCount"`
	SizeBytes  int64  `json:"sizeBytes"`
	SnapshotID uint64 `json:"snapshotId"`
}

type manifestDocument struct {
	Entries []FileEntry `json:"entries"`
}

func writeManifest(fs storage.FileSystem, path string, entries []FileEntry) error {
	data, err := json.Marshal(manifestDocument{Entries: entries})
	if err != nil {
		return err
	}

	file := fs.New(path)
	if _, err := file.Write(data); err != nil {
		return err
	}
	return file.Save()
}

func readManifest(fs storage.FileSystem, path string) ([]FileEntry, error) {
	data, err := readFileAll(fs.Open(path))
	if err != nil {
		return nil, fmt.Errorf("reading manifest %s: %w", path, err)
	}

	var doc manifestDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unmarshaling manifest %s: %w", path, err)
	}
	return doc.Entries, nil
}

// readFileAll reads a whole storage file through its ReaderAt. A zero size
// is probed with a read so missing files still surface storage.ErrNotFound.
func readFileAll(file storage.File) ([]byte, error) {
	size := file.Size()
	if size == 0 {
		_, err := file.ReadAt(make([]byte, 1), 0)
		if err == io.EOF {
			return nil, nil
		}
		return nil, err
	}

	data := make([]byte, size)
	if _, err := file.ReadAt(data, 0); err != nil && err != io.EOF {
		return nil, err
	}
	return data, nil
}
