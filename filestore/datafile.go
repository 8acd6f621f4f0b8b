package filestore

import (
	"fmt"
	"io"

	"github.com/parquet-go/parquet-go"

	"github.com/happut/incubator-paimon/storage"
	"github.com/happut/incubator-paimon/table"
)

// parquetSchemaFor maps every table column to a required STRING leaf.
// Parquet groups order fields alphabetically, so columns are addressed
// through Lookup rather than schema position.
func parquetSchemaFor(schema table.Schema) *parquet.Schema {
	group := parquet.Group{}
	for _, col := range schema.Columns {
		group[col] = parquet.String()
	}
	return parquet.NewSchema("table", group)
}

// leafIndexes resolves column names to parquet leaf column indexes.
func leafIndexes(pqSchema *parquet.Schema, names []string) ([]int, error) {
	indexes := make([]int, len(names))
	for i, name := range names {
		leaf, ok := pqSchema.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("data file has no column %q", name)
		}
		indexes[i] = leaf.ColumnIndex
	}
	return indexes, nil
}

// writeDataFile writes rows as one parquet file and saves it.
func writeDataFile(file storage.File, schema table.Schema, rows []table.Row) error {
	pqSchema := parquetSchemaFor(schema)
	colIndexes, err := leafIndexes(pqSchema, schema.Columns)
	if err != nil {
		return err
	}

	w := parquet.NewGenericWriter[any](file, pqSchema, parquet.Compression(&parquet.Snappy))

	pqRows := make([]parquet.Row, len(rows))
	for i, row := range rows {
		if len(row) != len(schema.Columns) {
			return fmt.Errorf("row has %d values for %d columns", len(row), len(schema.Columns))
		}
		pqRow := make(parquet.Row, len(row))
		for col, value := range row {
			leaf := colIndexes[col]
			pqRow[leaf] = parquet.ValueOf(value).Level(0, 0, leaf)
		}
		pqRows[i] = pqRow
	}

	if _, err := w.WriteRows(pqRows); err != nil {
		return fmt.Errorf("writing parquet rows: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("closing parquet writer: %w", err)
	}
	return file.Save()
}

// readDataFile returns rows startRow onward with only the requested columns
// materialized. Page data is fetched per column chunk, so unrequested
// columns never leave storage.
func readDataFile(readerAt io.ReaderAt, size int64, columns []string, startRow int64) ([]table.Row, error) {
	f, err := parquet.OpenFile(readerAt, size, parquet.SkipPageIndex(true), parquet.SkipBloomFilters(true))
	if err != nil {
		return nil, fmt.Errorf("opening parquet file: %w", err)
	}

	indexes, err := leafIndexes(f.Schema(), columns)
	if err != nil {
		return nil, err
	}

	columnValues := make([][]string, len(columns))
	for i, leaf := range indexes {
		values, err := readColumn(f, leaf)
		if err != nil {
			return nil, err
		}
		columnValues[i] = values
	}

	rowCount := int64(0)
	if len(columnValues) > 0 {
		rowCount = int64(len(columnValues[0]))
	}
	if startRow > rowCount {
		return nil, fmt.Errorf("resume row %d beyond file row count %d", startRow, rowCount)
	}

	rows := make([]table.Row, 0, rowCount-startRow)
	for r := startRow; r < rowCount; r++ {
		row := make(table.Row, len(columns))
		for c := range columns {
			row[c] = columnValues[c][r]
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func readColumn(f *parquet.File, leaf int) ([]string, error) {
	var out []string
	for _, rowGroup := range f.RowGroups() {
		pages := rowGroup.ColumnChunks()[leaf].Pages()
		for {
			page, err := pages.ReadPage()
			if err == io.EOF {
				break
			}
			if err != nil {
				pages.Close()
				return nil, err
			}

			values := make([]parquet.Value, page.NumValues())
			if _, err := page.Values().ReadValues(values); err != nil && err != io.EOF {
				pages.Close()
				return nil, err
			}
			for _, v := range values {
				out = append(out, v.String())
			}
		}
		if err := pages.Close(); err != nil {
			return nil, err
		}
	}
	return out, nil
}
