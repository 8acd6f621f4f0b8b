package filestore

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/VictoriaMetrics/metrics"
	"github.com/dgraph-io/ristretto"

	"github.com/happut/incubator-paimon/storage"
	"github.com/happut/incubator-paimon/table"
)

var (
	manifestCacheHit  = metrics.NewCounter("filestore_manifest_cache_hit")
	manifestCacheMiss = metrics.NewCounter("filestore_manifest_cache_miss")
	snapshotReads     = metrics.NewCounter("filestore_snapshot_read")
)

// ErrNoTable means the location has no schema document, so no table was ever
// created there.
var ErrNoTable = errors.New("no table at location")

// Store is the read side of one table: snapshot documents, manifests and
// data files. Snapshots and manifests are immutable once committed, which is
// what makes caching them safe.
type Store struct {
	fs            storage.FileSystem
	schema        table.Schema
	manifestCache *ristretto.Cache
	log           *slog.Logger
}

type NewStoreParams struct {
	FileSystem storage.FileSystem
	// ManifestCacheBytes bounds the decoded manifest cache. Defaults to 32 MiB.
	ManifestCacheBytes int64
}

func NewStore(params *NewStoreParams) (*Store, error) {
	data, err := readFileAll(params.FileSystem.Open(schemaPath))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNoTable
		}
		return nil, fmt.Errorf("reading schema: %w", err)
	}
	schema, err := table.UnmarshalSchema(data)
	if err != nil {
		return nil, err
	}

	cacheBytes := params.ManifestCacheBytes
	if cacheBytes == 0 {
		cacheBytes = 32 << 20
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10_000,
		MaxCost:     cacheBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("creating manifest cache: %w", err)
	}

	return &Store{
		fs:            params.FileSystem,
		schema:        schema,
		manifestCache: cache,
		log:           slog.With("instanceID", "filestore"),
	}, nil
}

// CreateTable writes the schema document for a new table. Fails if the
// location already has one.
func CreateTable(fs storage.FileSystem, schema table.Schema) error {
	if err := schema.Validate(); err != nil {
		return err
	}

	if _, err := readFileAll(fs.Open(schemaPath)); err == nil {
		return fmt.Errorf("table already exists")
	} else if !errors.Is(err, storage.ErrNotFound) {
		return err
	}

	data, err := schema.Marshal()
	if err != nil {
		return err
	}
	file := fs.New(schemaPath)
	if _, err := file.Write(data); err != nil {
		return err
	}
	return file.Save()
}

func (s *Store) Schema() table.Schema {
	return s.schema
}

// Latest returns the newest committed snapshot id. ok is false when the
// table has no snapshot yet. A missing LATEST pointer falls back to listing
// the snapshot directory.
func (s *Store) Latest() (id uint64, ok bool, err error) {
	data, err := readFileAll(s.fs.Open(latestPointerPath))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return s.latestFromListing()
		}
		return 0, false, fmt.Errorf("reading latest pointer: %w", err)
	}

	id, err = strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("malformed latest pointer %q: %w", string(data), err)
	}
	return id, true, nil
}

func (s *Store) latestFromListing() (uint64, bool, error) {
	paths, err := s.fs.List(snapshotDir)
	if err != nil {
		return 0, false, fmt.Errorf("listing snapshots: %w", err)
	}

	var max uint64
	for _, path := range paths {
		if id, ok := snapshotIDFromPath(path); ok && id > max {
			max = id
		}
	}
	return max, max > 0, nil
}

// Snapshot reads the snapshot document for id.
func (s *Store) Snapshot(id uint64) (*Snapshot, error) {
	snapshotReads.Inc()
	data, err := readFileAll(s.fs.Open(snapshotPath(id)))
	if err != nil {
		return nil, fmt.Errorf("reading snapshot %d: %w", id, err)
	}
	return unmarshalSnapshot(data)
}

// Manifest reads a manifest's file entries, consulting the cache first.
// Manifests are immutable so a cached value never goes stale.
func (s *Store) Manifest(path string) ([]FileEntry, error) {
	if cached, ok := s.manifestCache.Get(path); ok {
		manifestCacheHit.Inc()
		return cached.([]FileEntry), nil
	}
	manifestCacheMiss.Inc()

	entries, err := readManifest(s.fs, path)
	if err != nil {
		return nil, err
	}

	cost := int64(len(entries)) * 64
	s.manifestCache.Set(path, entries, cost)
	return entries, nil
}

// VisibleEntries returns the table's full visible file set as of snapshot
// id: the snapshot's base manifest followed by its delta.
func (s *Store) VisibleEntries(id uint64) ([]FileEntry, error) {
	snap, err := s.Snapshot(id)
	if err != nil {
		return nil, err
	}

	var entries []FileEntry
	if snap.BaseManifest != "" {
		base, err := s.Manifest(snap.BaseManifest)
		if err != nil {
			return nil, err
		}
		entries = append(entries, base...)
	}

	delta, err := s.Manifest(snap.DeltaManifest)
	if err != nil {
		return nil, err
	}
	return append(entries, delta...), nil
}

// DeltaEntries returns only the files snapshot id committed.
func (s *Store) DeltaEntries(id uint64) ([]FileEntry, error) {
	snap, err := s.Snapshot(id)
	if err != nil {
		return nil, err
	}
	return s.Manifest(snap.DeltaManifest)
}

// ReadDataFile returns entry's rows from startRow onward with only the
// requested columns materialized.
func (s *Store) ReadDataFile(entry FileEntry, columns []string, startRow int64) ([]table.Row, error) {
	file := s.fs.Open(entry.Path)
	size := entry.SizeBytes
	if size == 0 {
		size = file.Size()
	}
	return readDataFile(file, size, columns, startRow)
}
