package scan

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/segmentio/ksuid"
	"golang.org/x/sync/errgroup"

	"github.com/happut/incubator-paimon/clocks"
	"github.com/happut/incubator-paimon/filestore"
	"github.com/happut/incubator-paimon/table"
	"github.com/happut/incubator-paimon/telemetry"
)

var (
	recordsEmitted    = metrics.NewCounter("scan_record_emitted")
	recordsSuperseded = metrics.NewCounter("scan_record_superseded")
	splitsCompleted   = metrics.NewCounter("scan_split_completed")
)

const (
	assignmentBuffer = 16
	deliveryBuffer   = 16
)

// Store is the snapshot store a scan reads. filestore.Store satisfies it.
type Store interface {
	// Latest returns the id of the newest committed snapshot, if any.
	Latest() (uint64, bool, error)
	Snapshot(id uint64) (*filestore.Snapshot, error)
	// DeltaEntries lists the files one snapshot committed.
	DeltaEntries(id uint64) ([]filestore.FileEntry, error)
	// VisibleEntries lists the table's full visible file set as of a
	// snapshot.
	VisibleEntries(id uint64) ([]filestore.FileEntry, error)
	ReadDataFile(entry filestore.FileEntry, columns []string, startRow int64) ([]table.Row, error)
}

var _ Store = (*filestore.Store)(nil)

// Change is one record of the scan's output stream. Every change is an
// insert; for keyed tables it carries the merged latest value of its key as
// of SnapshotID.
type Change struct {
	Row        table.Row
	SnapshotID uint64
}

type NewScanParams struct {
	Store  Store
	Schema table.Schema
	// ScanMode picks the start position. Defaults to table.ScanModeDefault.
	ScanMode table.ScanMode
	// Projection lists the output columns in order. Nil means every schema
	// column.
	Projection []string
	// PollInterval is the cadence of snapshot discovery, aligned with the
	// caller's checkpoint interval. Defaults to 10s.
	PollInterval time.Duration
	// SplitTargetBytes coalesces small files into splits up to this size.
	// Defaults to 128 MiB.
	SplitTargetBytes int64
	// ReadParallelism is the reader pool size. Defaults to 4.
	ReadParallelism int
	// MergeShards sizes the sharded per-key merge map. Defaults to 64.
	MergeShards int
	// RetryAttempts bounds retries of a failing store read before the scan
	// dies. Defaults to 3.
	RetryAttempts int
	// Clock drives polling. Defaults to the system clock.
	Clock clocks.Clock
}

// Scan is one continuous read of a table. ReadChanges and Checkpoint are
// meant for a single consumer loop and are not safe for concurrent use with
// each other.
type Scan struct {
	id           string
	store        Store
	clock        clocks.Clock
	pollInterval time.Duration
	log          *slog.Logger

	tracker *splitTracker
	merge   *mergeState // nil without a primary key
	mon     *monitor
	pool    *readerPool
	batches chan *readerBatch

	ticker *clocks.Ticker
	ctx    context.Context
	cancel context.CancelFunc
	group  errgroup.Group

	failOnce sync.Once
	fatalErr error
	fatalCh  chan struct{}
}

// NewScan validates the configuration, resolves the start position and
// starts the scan. Setup failures surface here synchronously; no record is
// ever produced for a rejected configuration.
func NewScan(params *NewScanParams) (*Scan, error) {
	p, err := validated(params)
	if err != nil {
		return nil, err
	}

	latest, ok, err := p.Store.Latest()
	if err != nil {
		return nil, fmt.Errorf("%w: reading latest snapshot id: %v", ErrSnapshotRead, err)
	}
	pos, err := resolveStartPosition(p.ScanMode, latest, ok)
	if err != nil {
		return nil, err
	}

	s := newScan(p, pos.lastDelivered, pos.bootstrapID, nil, nil)
	s.start(p.ReadParallelism)
	return s, nil
}

// NewScanFromCheckpoint resumes from a checkpoint payload: restored splits
// are assigned before any new enumeration, the merge state is seeded, and
// monitoring resumes after the payload's watermark.
func NewScanFromCheckpoint(params *NewScanParams, payload []byte) (*Scan, error) {
	p, err := validated(params)
	if err != nil {
		return nil, err
	}

	doc, err := parseCheckpoint(payload)
	if err != nil {
		return nil, err
	}
	if len(doc.Merge) > 0 && !p.Schema.HasPrimaryKey() {
		return nil, fmt.Errorf("%w: payload carries merge state but the table has no primary key", ErrCheckpointRestore)
	}

	s := newScan(p, doc.LastDeliveredSnapshotID, 0, doc.Splits, doc.Merge)
	s.start(p.ReadParallelism)
	return s, nil
}

// validated fills defaults and runs every setup-time rejection.
func validated(params *NewScanParams) (NewScanParams, error) {
	p := *params
	if p.Store == nil {
		return p, fmt.Errorf("scan needs a store")
	}
	if p.ScanMode == "" {
		p.ScanMode = table.ScanModeDefault
	}
	if p.PollInterval == 0 {
		p.PollInterval = 10 * time.Second
	}
	if p.SplitTargetBytes == 0 {
		p.SplitTargetBytes = 128 << 20
	}
	if p.ReadParallelism == 0 {
		p.ReadParallelism = 4
	}
	if p.MergeShards == 0 {
		p.MergeShards = 64
	}
	if p.RetryAttempts == 0 {
		p.RetryAttempts = 3
	}
	if p.Clock == nil {
		p.Clock = clocks.NewSystemClock()
	}

	if err := p.Schema.Validate(); err != nil {
		return p, err
	}
	if err := validateTableOptions(p.Schema.Options); err != nil {
		return p, err
	}
	if err := validateProjection(p.Schema, p.Projection); err != nil {
		return p, err
	}
	if p.Projection == nil {
		p.Projection = p.Schema.Columns
	}
	return p, nil
}

func newScan(p NewScanParams, watermark, bootstrapID uint64, restored []*Split, mergeSeed map[string]uint64) *Scan {
	id := ksuid.New().String()
	log := slog.With("scanID", id)

	tracker := newSplitTracker(watermark)
	var restoredOrdered []*Split
	if len(restored) > 0 {
		restoredOrdered = tracker.restore(watermark, restored)
	}

	var merge *mergeState
	if p.Schema.HasPrimaryKey() {
		merge = newMergeState(p.MergeShards)
		if len(mergeSeed) > 0 {
			merge.restore(mergeSeed)
		}
	}

	// Readers fetch the projected columns plus whatever key columns the
	// projection leaves out; those extras never reach the output.
	readColumns := slices.Clone(p.Projection)
	var keyIndexes []int
	for _, key := range p.Schema.PrimaryKey {
		idx := slices.Index(readColumns, key)
		if idx == -1 {
			idx = len(readColumns)
			readColumns = append(readColumns, key)
		}
		keyIndexes = append(keyIndexes, idx)
	}

	assign := make(chan *Split, assignmentBuffer)
	batches := make(chan *readerBatch, deliveryBuffer)

	s := &Scan{
		id:           id,
		store:        p.Store,
		clock:        p.Clock,
		pollInterval: p.PollInterval,
		log:          log,
		tracker:      tracker,
		merge:        merge,
		batches:      batches,
		fatalCh:      make(chan struct{}),
	}
	s.mon = &monitor{
		store:       p.Store,
		tracker:     tracker,
		assign:      assign,
		targetBytes: p.SplitTargetBytes,
		maxFailures: p.RetryAttempts,
		fatal:       s.fail,
		log:         log.With("instanceID", "monitor"),
		bootstrapID: bootstrapID,
		restored:    restoredOrdered,
		ready:       make(chan struct{}),
	}
	s.pool = &readerPool{
		store:         p.Store,
		merge:         merge,
		assign:        assign,
		out:           batches,
		readColumns:   readColumns,
		outWidth:      len(p.Projection),
		keyIndexes:    keyIndexes,
		retryAttempts: p.RetryAttempts,
		log:           log.With("instanceID", "reader"),
	}
	return s
}

func (s *Scan) start(parallelism int) {
	ctx, cancel := context.WithCancel(context.Background())
	s.ctx = ctx
	s.cancel = cancel

	for range parallelism {
		s.group.Go(func() error {
			if err := s.pool.run(ctx); err != nil {
				s.fail(err)
			}
			return nil
		})
	}
	s.group.Go(func() error {
		if err := s.mon.run(ctx); err != nil {
			s.fail(err)
		}
		return nil
	})
	s.ticker = s.clock.Every(s.pollInterval, func() { s.mon.poll(ctx) }, pollTickerLabel)

	s.log.Info("scan started",
		"watermark", s.tracker.watermark(),
		"restoredSplits", len(s.mon.restored),
		"bootstrapSnapshotID", s.mon.bootstrapID,
		"pollInterval", s.pollInterval)
}

func (s *Scan) ID() string {
	return s.id
}

// ReadChanges blocks for the next batch of change records. A returned batch
// may be empty when every row in it was superseded by a newer snapshot
// before delivery.
func (s *Scan) ReadChanges(ctx context.Context) ([]Change, error) {
	select {
	case <-s.fatalCh:
		return nil, s.fatalErr
	default:
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case batch := <-s.batches:
		return s.deliver(batch), nil
	case <-s.ctx.Done():
		select {
		case <-s.fatalCh:
			return nil, s.fatalErr
		default:
			return nil, s.ctx.Err()
		}
	}
}

// deliver applies the authoritative merge filter and advances durable
// progress, so a checkpoint taken afterwards reflects exactly what the
// caller received.
func (s *Scan) deliver(batch *readerBatch) []Change {
	changes := make([]Change, 0, len(batch.rows))
	for _, row := range batch.rows {
		if s.merge != nil && !s.merge.emit(row.key, batch.split.SnapshotID) {
			recordsSuperseded.Inc()
			continue
		}
		changes = append(changes, Change{Row: row.row, SnapshotID: batch.split.SnapshotID})
	}

	s.tracker.advance(batch.split.ID, batch.split.SnapshotID, batch.consumed, batch.final)
	if batch.final {
		splitsCompleted.Inc()
	}
	recordsEmitted.Add(len(changes))
	telemetry.ObserveDeliveryBatch(len(changes))
	return changes
}

// Checkpoint captures durable progress as an opaque payload: incomplete
// splits with their resume offsets, the delivered-snapshot watermark, and
// the merge state. Rows still buffered in channels are deliberately absent;
// a restore rereads them. Call from the same loop as ReadChanges.
func (s *Scan) Checkpoint() ([]byte, error) {
	select {
	case <-s.fatalCh:
		return nil, s.fatalErr
	default:
	}

	watermark, splits := s.tracker.snapshot()
	doc := checkpointDocument{
		Format:                  checkpointFormat,
		LastDeliveredSnapshotID: watermark,
		Splits:                  splits,
	}
	if s.merge != nil {
		doc.Merge = s.merge.entries()
	}
	return json.Marshal(doc)
}

// Close stops the monitor and readers and waits for them. Undelivered
// progress is discarded; the caller's last checkpoint is the resume point.
func (s *Scan) Close() error {
	s.cancel()
	s.ticker.Stop()
	_ = s.group.Wait()

	select {
	case <-s.fatalCh:
		return s.fatalErr
	default:
		s.log.Info("scan closed")
		return nil
	}
}

func (s *Scan) fail(err error) {
	s.failOnce.Do(func() {
		s.fatalErr = err
		close(s.fatalCh)
		s.cancel()
		s.log.Error("scan failed", "err", err)
	})
}
