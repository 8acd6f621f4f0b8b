package scan

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/cenkalti/backoff/v4"

	"github.com/happut/incubator-paimon/filestore"
	"github.com/happut/incubator-paimon/table"
	"github.com/happut/incubator-paimon/telemetry"
)

var readRetries = metrics.NewCounter("scan_read_retry")

const readBatchSize = 1024

// readerBatch is one unit of delivery: projected rows from one split plus
// the count of stored rows consumed to produce them. final marks the split
// fully consumed.
type readerBatch struct {
	split    *Split
	rows     []batchRow
	consumed int64
	final    bool
}

type batchRow struct {
	key string
	row table.Row
}

// readerPool reads assigned splits concurrently. Each split is owned by one
// pool goroutine for its lifetime; batches stream to the delivery channel in
// split order per reader, interleaved across readers.
type readerPool struct {
	store         Store
	merge         *mergeState // nil for tables without a primary key
	assign        <-chan *Split
	out           chan<- *readerBatch
	readColumns   []string
	outWidth      int   // leading readColumns that form the projected output
	keyIndexes    []int // positions of primary key columns in readColumns
	retryAttempts int
	log           *slog.Logger
}

func (p *readerPool) run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case split, ok := <-p.assign:
			if !ok {
				return nil
			}
			start := time.Now()
			err := p.readSplit(ctx, split)
			telemetry.ObserveSplitRead(time.Since(start))
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
		}
	}
}

func (p *readerPool) readSplit(ctx context.Context, split *Split) error {
	if p.merge != nil {
		return p.readKeyedSplit(ctx, split)
	}
	return p.readAppendSplit(ctx, split)
}

// readAppendSplit streams a split's rows in storage order, skipping whole
// files and then rows that a checkpoint already delivered.
func (p *readerPool) readAppendSplit(ctx context.Context, split *Split) error {
	skip := split.RowsDelivered
	for i, entry := range split.Files {
		if skip >= entry.RowCount {
			skip -= entry.RowCount
			continue
		}

		rows, err := p.readFile(ctx, entry, skip)
		if err != nil {
			return err
		}
		skip = 0

		lastFile := i == len(split.Files)-1
		for start := 0; start < len(rows); start += readBatchSize {
			end := min(start+readBatchSize, len(rows))
			batch := make([]batchRow, end-start)
			for j, row := range rows[start:end] {
				batch[j] = batchRow{row: p.project(row)}
			}
			if err := p.send(ctx, &readerBatch{
				split:    split,
				rows:     batch,
				consumed: int64(end - start),
				final:    lastFile && end == len(rows),
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

// readKeyedSplit materializes the split so a later version of a key replaces
// an earlier one before anything is forwarded. Every file of a split belongs
// to one snapshot, so within-split conflicts are same-snapshot and the last
// stored version wins. The split delivers as one batch: offsets into a
// half-merged split are meaningless, so recovery rereads it instead.
func (p *readerPool) readKeyedSplit(ctx context.Context, split *Split) error {
	resume := split.RowsDelivered
	skip := resume

	index := make(map[string]int)
	var merged []batchRow
	for _, entry := range split.Files {
		if skip >= entry.RowCount {
			skip -= entry.RowCount
			continue
		}

		rows, err := p.readFile(ctx, entry, skip)
		if err != nil {
			return err
		}
		skip = 0

		for _, row := range rows {
			key := mergeKey(row, p.keyIndexes)
			if at, ok := index[key]; ok {
				merged[at] = batchRow{key: key, row: p.project(row)}
			} else {
				index[key] = len(merged)
				merged = append(merged, batchRow{key: key, row: p.project(row)})
			}
		}
	}

	// Drop rows a newer snapshot already delivered. Delivery re-checks and
	// records authoritatively; this pass keeps superseded rows out of the
	// channel.
	viable := merged[:0]
	for _, row := range merged {
		if p.merge.viable(row.key, split.SnapshotID) {
			viable = append(viable, row)
		} else {
			recordsSuperseded.Inc()
		}
	}

	return p.send(ctx, &readerBatch{
		split:    split,
		rows:     viable,
		consumed: split.rowCount() - resume,
		final:    true,
	})
}

// readFile fetches the requested column chunks of one data file, retrying
// transient failures with bounded backoff.
func (p *readerPool) readFile(ctx context.Context, entry filestore.FileEntry, startRow int64) ([]table.Row, error) {
	var rows []table.Row
	op := func() error {
		var err error
		rows, err = p.store.ReadDataFile(entry, p.readColumns, startRow)
		if err != nil && !IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, _ time.Duration) {
		readRetries.Inc()
		p.log.Warn("retrying data file read", "path", entry.Path, "err", err)
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(newBackOff(), uint64(p.retryAttempts)), ctx)
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return nil, fmt.Errorf("%w: reading data file %s: %v", ErrSnapshotRead, entry.Path, err)
	}
	return rows, nil
}

// project keeps the leading output columns of a fetched row. Key columns
// fetched only for merging sit past outWidth and are never delivered.
func (p *readerPool) project(row table.Row) table.Row {
	if len(row) == p.outWidth {
		return row
	}
	return row[:p.outWidth:p.outWidth]
}

func (p *readerPool) send(ctx context.Context, batch *readerBatch) error {
	select {
	case p.out <- batch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	return b
}
