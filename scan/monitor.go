package scan

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/cenkalti/backoff/v4"

	"github.com/happut/incubator-paimon/filestore"
	"github.com/happut/incubator-paimon/telemetry"
)

var (
	snapshotsDiscovered = metrics.NewCounter("scan_snapshot_discovered")
	overwritesSkipped   = metrics.NewCounter("scan_snapshot_overwrite_skip")
	splitsEnumerated    = metrics.NewCounter("scan_split_enumerated")
	pollFailures        = metrics.NewCounter("scan_poll_failure")
)

const pollTickerLabel = "scan_poll"

// monitor discovers newly committed snapshots in id order and turns each
// qualifying one into assigned splits. It owns the scan's control loop: one
// goroutine runs the start phase, then ticks arrive on the clock's ticker.
// Assignment backpressure blocks only this loop, never delivery of splits
// already assigned.
type monitor struct {
	store       Store
	tracker     *splitTracker
	assign      chan<- *Split
	targetBytes int64
	maxFailures int
	fatal       func(error)
	log         *slog.Logger

	// bootstrapID is the snapshot whose full visible file set seeds a
	// default-mode scan; zero when starting empty, latest-only, or from a
	// checkpoint.
	bootstrapID uint64
	// restored splits from a checkpoint are assigned before anything else.
	restored []*Split

	// ready is closed once the start phase is done; ticks wait on it so no
	// later snapshot is enumerated before the bootstrap is fully assigned.
	ready    chan struct{}
	failures int
}

// run assigns restored splits, bootstraps a fresh default-mode scan, then
// parks until cancelled. Discovery of new snapshots happens on poll ticks.
func (m *monitor) run(ctx context.Context) error {
	for _, split := range m.restored {
		if err := m.send(ctx, split); err != nil {
			return nil
		}
	}

	if m.bootstrapID != 0 {
		if err := m.bootstrap(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}

	close(m.ready)
	<-ctx.Done()
	return nil
}

// bootstrap enumerates the table's current visible file set, grouped by the
// snapshots that committed it, and assigns every split before monitoring
// begins. The manifest reads retry with backoff like any other poll read.
func (m *monitor) bootstrap(ctx context.Context) error {
	var entries []filestore.FileEntry
	op := func() error {
		var err error
		entries, err = m.store.VisibleEntries(m.bootstrapID)
		if err != nil {
			pollFailures.Inc()
			m.log.Warn("bootstrap read failed", "snapshotID", m.bootstrapID, "err", err)
		}
		return err
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(newBackOff(), uint64(m.maxFailures)), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return fmt.Errorf("%w: bootstrapping from snapshot %d: %v", ErrSnapshotRead, m.bootstrapID, err)
	}

	splits := enumerateSplits(entries, m.targetBytes)
	m.tracker.register(m.bootstrapID, splits)
	splitsEnumerated.Add(len(splits))
	m.log.Info("bootstrapped table history", "snapshotID", m.bootstrapID,
		"files", len(entries), "splits", len(splits))

	for _, split := range splits {
		if err := m.send(ctx, split); err != nil {
			return err
		}
	}
	return nil
}

// poll runs on every ticker fire. A failed poll leaves the watermark where
// the failure happened and the next tick retries from there; consecutive
// failures beyond the bound kill the scan.
func (m *monitor) poll(ctx context.Context) {
	select {
	case <-m.ready:
	case <-ctx.Done():
		return
	}

	start := time.Now()
	err := m.pollOnce(ctx)
	telemetry.ObservePollDuration(time.Since(start))
	if ctx.Err() != nil {
		return
	}
	if err == nil {
		m.failures = 0
		return
	}

	m.failures++
	pollFailures.Inc()
	m.log.Warn("poll failed", "consecutiveFailures", m.failures, "err", err)
	if m.failures >= m.maxFailures {
		m.fatal(fmt.Errorf("after %d consecutive poll failures: %w", m.failures, err))
	}
}

func (m *monitor) pollOnce(ctx context.Context) error {
	latest, ok, err := m.store.Latest()
	if err != nil {
		return fmt.Errorf("%w: reading latest snapshot id: %v", ErrSnapshotRead, err)
	}
	if !ok {
		return nil
	}

	for id := m.tracker.watermark() + 1; id <= latest; id++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		snap, err := m.store.Snapshot(id)
		if err != nil {
			return fmt.Errorf("%w: reading snapshot %d: %v", ErrSnapshotRead, id, err)
		}

		if snap.Kind == filestore.KindOverwrite {
			// A full replacement cannot be represented as inserts, so the
			// snapshot never surfaces; the watermark still advances past it.
			overwritesSkipped.Inc()
			m.log.Info("skipping overwrite snapshot", "snapshotID", id)
			m.tracker.register(id, nil)
			continue
		}

		entries, err := m.store.DeltaEntries(id)
		if err != nil {
			return fmt.Errorf("%w: reading manifest of snapshot %d: %v", ErrSnapshotRead, id, err)
		}

		splits := enumerateSplits(entries, m.targetBytes)
		m.tracker.register(id, splits)
		snapshotsDiscovered.Inc()
		splitsEnumerated.Add(len(splits))
		m.log.Info("enumerated snapshot", "snapshotID", id, "splits", len(splits), "rows", snap.DeltaRowCount)

		for _, split := range splits {
			if err := m.send(ctx, split); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *monitor) send(ctx context.Context, split *Split) error {
	select {
	case m.assign <- split:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
