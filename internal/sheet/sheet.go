// Package sheet reads the first worksheet of an uploaded datasheet.
//
// Spreadsheets (.xlsx, .xlsm, .xltx) are read with excelize; delimited text
// files (.csv, .txt) with encoding/csv. Either way the caller sees a
// rectangular grid of cell text: row 0 is the header row, and rows shorter
// than the used width are padded with empty cells.
package sheet

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrUnsupportedFormat is returned when a file extension has no reader.
var ErrUnsupportedFormat = errors.New("unsupported datasheet format")

// Worksheet is a read-only view of one sheet.
type Worksheet interface {
	// Dimensions returns the first used column and one past the last used column.
	Dimensions() (first, end int)
	// Len returns the number of rows, header row included.
	Len() int
	// Row returns the cells of row i, padded to the used width.
	// Out of range rows are returned as empty.
	Row(i int) []string
	Close() error
}

// Opener opens a worksheet from a local path.
type Opener func(path string) (Worksheet, error)

// Open opens the first worksheet of the file at path, picking a reader by
// extension.
func Open(path string) (Worksheet, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm", ".xltx", ".xltm":
		return openWorkbook(path)
	case ".csv", ".txt":
		return openDelimited(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// Supported reports whether Open has a reader for fileName.
func Supported(fileName string) bool {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".xlsx", ".xlsm", ".xltx", ".xltm", ".csv", ".txt":
		return true
	}
	return false
}

// grid is the in-memory Worksheet shared by both readers.
type grid struct {
	rows  [][]string
	first int
	end   int
}

func newGrid(rows [][]string) *grid {
	g := &grid{rows: rows, first: -1}
	for _, row := range rows {
		for i, cell := range row {
			if strings.TrimSpace(cell) == "" {
				continue
			}
			if g.first < 0 || i < g.first {
				g.first = i
			}
			if i+1 > g.end {
				g.end = i + 1
			}
		}
	}
	if g.first < 0 {
		g.first = 0
	}
	return g
}

func (g *grid) Dimensions() (int, int) { return g.first, g.end }

func (g *grid) Len() int { return len(g.rows) }

func (g *grid) Row(i int) []string {
	out := make([]string, g.end)
	if i < 0 || i >= len(g.rows) {
		return out
	}
	copy(out, g.rows[i])
	return out
}

func (g *grid) Close() error { return nil }
