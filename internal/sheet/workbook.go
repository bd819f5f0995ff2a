package sheet

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

// openWorkbook loads the first sheet of an Excel workbook into memory.
func openWorkbook(path string) (Worksheet, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	name := f.GetSheetName(0)
	if name == "" {
		return nil, fmt.Errorf("open workbook: no sheets found")
	}

	rows, err := f.GetRows(name)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", name, err)
	}

	return newGrid(rows), nil
}
