package main

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// globalIDColumn is the fixed header of the spreadsheet column listing the
// global identifiers to process.
const globalIDColumn = "Attribute Value"

// readGlobalIDs reads the global identifiers from the first sheet of an
// Excel workbook, in file order. The column is located by header name on the
// first row; a missing column or unreadable file is fatal to the run.
func readGlobalIDs(path string) ([]string, error) {
	workbook, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening spreadsheet %s: %w", path, err)
	}
	defer workbook.Close()

	sheets := workbook.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("spreadsheet %s has no sheets", path)
	}

	rows, err := workbook.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("reading sheet %s: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("spreadsheet %s is empty", path)
	}

	column := -1
	for i, header := range rows[0] {
		if strings.TrimSpace(header) == globalIDColumn {
			column = i
			break
		}
	}
	if column < 0 {
		return nil, fmt.Errorf("spreadsheet %s has no %q column", path, globalIDColumn)
	}

	var globalIDs []string
	for _, row := range rows[1:] {
		if column >= len(row) {
			continue
		}
		if value := strings.TrimSpace(row[column]); value != "" {
			globalIDs = append(globalIDs, value)
		}
	}

	return globalIDs, nil
}
