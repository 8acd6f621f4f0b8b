package scan

import (
	"fmt"

	"github.com/happut/incubator-paimon/table"
)

// startPosition is the resolved starting point of a scan. bootstrapID is the
// snapshot whose full visible file set is read before incremental monitoring
// begins; zero means no bootstrap. lastDelivered seeds the monitor, which
// polls for snapshot lastDelivered+1 onward.
type startPosition struct {
	bootstrapID   uint64
	lastDelivered uint64
}

// resolveStartPosition turns the requested scan mode and the table's latest
// snapshot id at setup time into a start position. Pure function, evaluated
// once per scan.
func resolveStartPosition(mode table.ScanMode, latest uint64, haveSnapshot bool) (startPosition, error) {
	switch mode {
	case table.ScanModeDefault:
		if !haveSnapshot {
			return startPosition{}, nil
		}
		return startPosition{bootstrapID: latest, lastDelivered: latest}, nil

	case table.ScanModeLatest:
		// The latest id at setup is an exclusive cutoff: its rows are never
		// emitted, a commit racing setup lands after it and is delivered.
		return startPosition{lastDelivered: latest}, nil

	case table.ScanModeFromTimestamp:
		return startPosition{}, fmt.Errorf(
			"%w: from-timestamp: snapshots are ordered by id, not commit time; filter on an event-time column downstream instead",
			ErrUnsupportedScanMode)

	default:
		return startPosition{}, fmt.Errorf("%w: %q", ErrUnsupportedScanMode, mode)
	}
}
