// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package capture

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

// Row is one tick of the dense export table
type Row struct {
	Level Level
}

// EncodeRows expands timestamps into one row per tick, from tick 0 to
// max(samples)+1.
//
// The first two rows are seeded from the edge mode. Each later tick gets
// the running level; when the tick equals the next pending timestamp the
// level toggles (EdgeBoth) or the previous row is overwritten with the
// opposite level (single-edge pulse). A single cursor walks the samples,
// so a timestamp that is never hit by the tick loop (below 2, or repeated)
// blocks every later one. An empty capture yields no rows.
func EncodeRows(samples []uint16, initial Level, edge TriggerEdge) []Row {
	if len(samples) == 0 {
		return nil
	}
	max := MaxSample(samples)
	rows := make([]Row, 0, max+2)

	var current Level
	switch edge {
	case EdgeFalling:
		current = Low
		rows = append(rows, Row{High}, Row{Low})
	case EdgeRising:
		current = High
		rows = append(rows, Row{Low}, Row{High})
	default:
		rows = append(rows, Row{initial}, Row{initial.Flip()})
		current = initial.Flip()
	}

	ind := 0
	for x := 2; x < max+2; x++ {
		rows = append(rows, Row{current})
		if ind < len(samples) && x == int(samples[ind]) {
			if edge == EdgeBoth {
				current = current.Flip()
			} else if x > 0 {
				rows[x-1] = Row{current.Flip()}
			}
			ind++
		}
	}
	return rows
}

// WriteCSV writes rows as a single-column CSV table with a header
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{ExportColumn}); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for i, r := range rows {
		if err := cw.Write([]string{strconv.Itoa(int(r.Level))}); err != nil {
			return fmt.Errorf("failed to write CSV row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV parses a table written by WriteCSV
func ReadCSV(r io.Reader) ([]Row, error) {
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	if len(records) == 0 || len(records[0]) != 1 || records[0][0] != ExportColumn {
		return nil, fmt.Errorf("missing %q header", ExportColumn)
	}
	rows := make([]Row, 0, len(records)-1)
	for i, rec := range records[1:] {
		v, err := strconv.Atoi(rec[0])
		if err != nil || v < 0 || v > 255 {
			return nil, fmt.Errorf("invalid level %q in row %d", rec[0], i)
		}
		rows = append(rows, Row{Level(v)})
	}
	return rows, nil
}
