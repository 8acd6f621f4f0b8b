package scan

import (
	"fmt"

	"github.com/happut/incubator-paimon/table"
)

// validateTableOptions rejects table configurations a continuous scan cannot
// serve. Runs once at setup, before any goroutine starts or split is
// enumerated.
func validateTableOptions(opts table.Options) error {
	switch opts.ChangelogMode {
	case table.ChangelogModeAppend:
	case table.ChangelogModeUpsert:
		return fmt.Errorf("%w: upsert: a continuous scan only emits inserts and cannot represent updates or deletes",
			ErrUnsupportedChangelogMode)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedChangelogMode, opts.ChangelogMode)
	}

	switch opts.ConsistencyMode {
	case table.ConsistencyStrict:
	case table.ConsistencyEventual:
		return fmt.Errorf("%w: eventual: exactly-once visibility of committed snapshots cannot be guaranteed",
			ErrUnsupportedConsistencyMode)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedConsistencyMode, opts.ConsistencyMode)
	}

	return nil
}

// validateProjection checks the requested output columns against the schema.
func validateProjection(schema table.Schema, projection []string) error {
	for _, name := range projection {
		if _, ok := schema.ColumnIndex(name); !ok {
			return fmt.Errorf("projected column %q is not a schema column", name)
		}
	}
	return nil
}
