package filestore

import (
	"fmt"
	"log/slog"

	"github.com/VictoriaMetrics/metrics"

	"github.com/happut/incubator-paimon/clocks"
	"github.com/happut/incubator-paimon/table"
)

var (
	snapshotCommits = metrics.NewCounter("filestore_snapshot_commit")
	dataFileWrites  = metrics.NewCounter("filestore_data_file_write")
)

// Writer stages data files and commits them as one snapshot. One writer
// commits at a time; concurrent committers are not coordinated.
type Writer struct {
	store          *Store
	clock          clocks.Clock
	log            *slog.Logger
	maxRowsPerFile int
	buffer         []table.Row
	staged         []FileEntry
}

type NewWriterParams struct {
	Store *Store
	// Clock stamps commit times. Defaults to the system clock.
	Clock clocks.Clock
	// MaxRowsPerFile cuts a new data file once the buffer reaches this many
	// rows. Defaults to 1 << 20.
	MaxRowsPerFile int
}

func NewWriter(params *NewWriterParams) *Writer {
	clock := params.Clock
	if clock == nil {
		clock = clocks.NewSystemClock()
	}
	maxRows := params.MaxRowsPerFile
	if maxRows == 0 {
		maxRows = 1 << 20
	}
	return &Writer{
		store:          params.Store,
		clock:          clock,
		log:            slog.With("instanceID", "writer"),
		maxRowsPerFile: maxRows,
	}
}

// Write buffers rows for the next commit, cutting data files as the buffer
// fills.
func (w *Writer) Write(rows ...table.Row) error {
	columns := len(w.store.schema.Columns)
	for _, row := range rows {
		if len(row) != columns {
			return fmt.Errorf("row has %d values for %d columns", len(row), columns)
		}
	}

	w.buffer = append(w.buffer, rows...)
	for len(w.buffer) >= w.maxRowsPerFile {
		if err := w.cut(w.buffer[:w.maxRowsPerFile]); err != nil {
			return err
		}
		w.buffer = w.buffer[w.maxRowsPerFile:]
	}
	return nil
}

// Cut forces the buffered rows into their own data file so one commit can
// carry several files.
func (w *Writer) Cut() error {
	if len(w.buffer) == 0 {
		return nil
	}
	err := w.cut(w.buffer)
	w.buffer = nil
	return err
}

func (w *Writer) cut(rows []table.Row) error {
	path := newDataFilePath()
	file := w.store.fs.New(path)
	if err := writeDataFile(file, w.store.schema, rows); err != nil {
		return fmt.Errorf("writing data file %s: %w", path, err)
	}
	dataFileWrites.Inc()

	// SnapshotID is filled in at commit time once the id is known.
	w.staged = append(w.staged, FileEntry{
		Path:      path,
		RowCount:  int64(len(rows)),
		SizeBytes: file.Size(),
	})
	return nil
}

// Commit writes the staged files as the table's next snapshot: delta
// manifest, base manifest carried forward from the previous snapshot for
// appends, snapshot document, then the LATEST pointer. The pointer moves
// last so a crash mid-commit never exposes a half-written snapshot.
func (w *Writer) Commit(kind SnapshotKind) (*Snapshot, error) {
	if err := w.Cut(); err != nil {
		return nil, err
	}
	if len(w.staged) == 0 {
		return nil, fmt.Errorf("nothing to commit")
	}

	latestID, hasLatest, err := w.store.Latest()
	if err != nil {
		return nil, err
	}
	id := latestID + 1

	var baseEntries []FileEntry
	var prevTotal int64
	if kind == KindAppend && hasLatest {
		prev, err := w.store.Snapshot(latestID)
		if err != nil {
			return nil, fmt.Errorf("reading previous snapshot: %w", err)
		}
		prevTotal = prev.TotalRowCount
		baseEntries, err = w.store.VisibleEntries(latestID)
		if err != nil {
			return nil, fmt.Errorf("reading previous file set: %w", err)
		}
	}

	var baseManifest string
	if len(baseEntries) > 0 {
		baseManifest = newManifestPath()
		if err := writeManifest(w.store.fs, baseManifest, baseEntries); err != nil {
			return nil, fmt.Errorf("writing base manifest: %w", err)
		}
	}

	var deltaRows int64
	deltaEntries := make([]FileEntry, len(w.staged))
	for i, entry := range w.staged {
		entry.SnapshotID = id
		deltaEntries[i] = entry
		deltaRows += entry.RowCount
	}
	deltaManifest := newManifestPath()
	if err := writeManifest(w.store.fs, deltaManifest, deltaEntries); err != nil {
		return nil, fmt.Errorf("writing delta manifest: %w", err)
	}

	snap := &Snapshot{
		ID:            id,
		Kind:          kind,
		BaseManifest:  baseManifest,
		DeltaManifest: deltaManifest,
		CommitTimeMs:  w.clock.Now().UnixMilli(),
		DeltaRowCount: deltaRows,
		TotalRowCount: prevTotal + deltaRows,
	}
	data, err := snap.marshal()
	if err != nil {
		return nil, err
	}
	snapFile := w.store.fs.New(snapshotPath(id))
	if _, err := snapFile.Write(data); err != nil {
		return nil, err
	}
	if err := snapFile.Save(); err != nil {
		return nil, fmt.Errorf("writing snapshot %d: %w", id, err)
	}

	pointer := w.store.fs.New(latestPointerPath)
	if _, err := fmt.Fprintf(pointer, "%d", id); err != nil {
		return nil, err
	}
	if err := pointer.Save(); err != nil {
		return nil, fmt.Errorf("advancing latest pointer: %w", err)
	}

	snapshotCommits.Inc()
	w.log.Info("committed snapshot", "id", id, "kind", kind,
		"files", len(deltaEntries), "rows", deltaRows)

	w.staged = nil
	return snap, nil
}
