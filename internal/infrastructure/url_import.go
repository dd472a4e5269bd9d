package infrastructure

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ImportEntry is one URL read from a spreadsheet
type ImportEntry struct {
	Row   int    `json:"row"` // 1-based spreadsheet row
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}

// ReadURLsFromExcel reads URLs from the first sheet of an .xlsx file.
// Columns are given by header name or column letter. An empty urlColumn
// picks the first column whose header mentions "url" or whose first data
// cell looks like a link. titleColumn is optional.
func ReadURLsFromExcel(path, urlColumn, titleColumn string) ([]ImportEntry, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open spreadsheet: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, fmt.Errorf("spreadsheet has no sheets")
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("spreadsheet has no data rows")
	}

	headers := rows[0]
	urlIdx := -1
	if urlColumn == "" {
		urlIdx = detectURLColumn(headers, rows[1])
	} else {
		urlIdx = columnIndex(urlColumn, headers)
	}
	if urlIdx < 0 {
		return nil, fmt.Errorf("url column not found: %q", urlColumn)
	}

	titleIdx := -1
	if titleColumn != "" {
		if titleIdx = columnIndex(titleColumn, headers); titleIdx < 0 {
			return nil, fmt.Errorf("title column not found: %q", titleColumn)
		}
	}

	var entries []ImportEntry
	for i, row := range rows[1:] {
		if len(row) <= urlIdx {
			continue
		}
		u := strings.TrimSpace(row[urlIdx])
		if u == "" {
			continue
		}
		entry := ImportEntry{Row: i + 2, URL: u}
		if titleIdx >= 0 && titleIdx < len(row) {
			entry.Title = strings.TrimSpace(row[titleIdx])
		}
		entries = append(entries, entry)
	}

	return entries, nil
}

// columnIndex resolves a header name, then a column letter, to a 0-based index
func columnIndex(column string, headers []string) int {
	column = strings.TrimSpace(column)
	for i, header := range headers {
		if strings.EqualFold(strings.TrimSpace(header), column) {
			return i
		}
	}
	n, err := excelize.ColumnNameToNumber(column)
	if err != nil {
		return -1
	}
	return n - 1
}

func detectURLColumn(headers, firstRow []string) int {
	for i, header := range headers {
		if strings.Contains(strings.ToLower(header), "url") {
			return i
		}
	}
	for i, cell := range firstRow {
		cell = strings.ToLower(strings.TrimSpace(cell))
		if strings.HasPrefix(cell, "http://") || strings.HasPrefix(cell, "https://") {
			return i
		}
	}
	return -1
}
