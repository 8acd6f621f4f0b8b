package table

import (
	"encoding/json"
	"fmt"

	"github.com/happut/incubator-paimon/util/ds"
)

// Row is one record's column values aligned with the schema's column order.
// All column values are UTF-8 strings.
type Row []string

// Schema describes a table's columns, optional primary key and the write
// options fixed at table creation. Stored as schema/schema.json in the
// table's directory and immutable afterwards.
type Schema struct {
	Columns    []string `json:"columns"`
	PrimaryKey []string `json:"primaryKey,omitempty"`
	Options    Options  `json:"options"`
}

func (s Schema) Validate() error {
	if len(s.Columns) == 0 {
		return fmt.Errorf("schema needs at least one column")
	}

	seen := ds.NewSet[string](len(s.Columns))
	for _, col := range s.Columns {
		if col == "" {
			return fmt.Errorf("schema has an empty column name")
		}
		if seen.Has(col) {
			return fmt.Errorf("duplicate column %q", col)
		}
		seen.Add(col)
	}

	for _, key := range s.PrimaryKey {
		if !seen.Has(key) {
			return fmt.Errorf("primary key column %q is not a schema column", key)
		}
	}

	return s.Options.Validate()
}

func (s Schema) HasPrimaryKey() bool {
	return len(s.PrimaryKey) > 0
}

// ColumnIndex returns the position of the named column.
func (s Schema) ColumnIndex(name string) (int, bool) {
	for i, col := range s.Columns {
		if col == name {
			return i, true
		}
	}
	return 0, false
}

// ColumnIndexes resolves names to column positions, failing on the first
// unknown name.
func (s Schema) ColumnIndexes(names []string) ([]int, error) {
	indexes := make([]int, len(names))
	for i, name := range names {
		idx, ok := s.ColumnIndex(name)
		if !ok {
			return nil, fmt.Errorf("unknown column %q", name)
		}
		indexes[i] = idx
	}
	return indexes, nil
}

func (s Schema) Marshal() ([]byte, error) {
	return json.Marshal(s)
}

func UnmarshalSchema(data []byte) (Schema, error) {
	var s Schema
	if err := json.Unmarshal(data, &s); err != nil {
		return Schema{}, fmt.Errorf("unmarshaling schema: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Schema{}, err
	}
	return s, nil
}
