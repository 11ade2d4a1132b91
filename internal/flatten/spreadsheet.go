package flatten

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/kyleking/sqlnow/internal/inference"
	"github.com/kyleking/sqlnow/internal/logging"
)

// Built-in number formats that render dates or times
var dateNumFmts = map[int]bool{
	14: true, 15: true, 16: true, 17: true, 18: true, 19: true, 20: true, 21: true, 22: true,
	27: true, 30: true, 36: true, 45: true, 46: true, 47: true, 50: true, 57: true,
}

// SpreadsheetFile flattens every sheet of the xlsx workbook at path into its
// own table named after the sheet.
func SpreadsheetFile(path string, opts Options) (*Result, error) {
	r, err := OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	return Spreadsheet(r, opts)
}

// Spreadsheet flattens a workbook read from r. Row 0 of each sheet is the
// header; the remaining rows are data.
func Spreadsheet(r io.Reader, opts Options) (*Result, error) {
	workbook, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer func() {
		_ = workbook.Close()
	}()

	w := &sheetReader{file: workbook, dateStyles: make(map[int]bool)}

	var fields []Field

	rows := make(map[string][]Row)

	for _, sheet := range workbook.GetSheetList() {
		if !allowed(opts.Tables, sheet) {
			continue
		}

		columns, data, err := w.read(sheet)
		if err != nil {
			return nil, err
		}

		if len(columns) == 0 {
			logging.WithField("sheet", sheet).Warnf("Skipping sheet without a header row")
			continue
		}

		fields = append(fields, columns...)
		rows[sheet] = data
	}

	return &Result{Manifest: NewManifest(fields, nil), Rows: rows}, nil
}

type sheetReader struct {
	file       *excelize.File
	dateStyles map[int]bool
}

func (w *sheetReader) read(sheet string) ([]Field, []Row, error) {
	grid, err := w.file.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
	}

	if len(grid) == 0 || len(grid[0]) == 0 {
		return nil, nil, nil
	}

	names := headerNames(grid[0])
	accs := make([]inference.Accumulator, len(names))

	var data []Row

	for r := 1; r < len(grid); r++ {
		row := make(Row, len(names))
		empty := true

		for c := range names {
			if c >= len(grid[r]) || grid[r][c] == "" {
				continue
			}

			kind, value, err := w.cell(sheet, c, r, grid[r][c])
			if err != nil {
				return nil, nil, err
			}

			accs[c].Observe(kind)
			row[c] = text(value)
			empty = false
		}

		if !empty {
			data = append(data, row)
		}
	}

	fields := make([]Field, len(names))
	for c, name := range names {
		fields[c] = Field{Table: sheet, Name: name, Type: accs[c].Finalize()}
	}

	return fields, data, nil
}

// headerNames fills blank header cells with column-<index> and suffixes repeats
func headerNames(header []string) []string {
	names := make([]string, len(header))
	seen := make(map[string]int, len(header))

	for i, cell := range header {
		name := strings.TrimSpace(cell)
		if name == "" {
			name = "column-" + strconv.Itoa(i)
		}

		if n := seen[name]; n > 0 {
			seen[name] = n + 1
			name = fmt.Sprintf("%s_%d", name, n+1)
		} else {
			seen[name] = 1
		}

		names[i] = name
	}

	return names
}

// cell classifies one non-empty raw cell value and returns its load text
func (w *sheetReader) cell(sheet string, col, row int, raw string) (inference.ColumnType, string, error) {
	ref, err := excelize.CoordinatesToCellName(col+1, row+1)
	if err != nil {
		return "", "", err
	}

	cellType, err := w.file.GetCellType(sheet, ref)
	if err != nil {
		return "", "", fmt.Errorf("failed to read cell %s!%s: %w", sheet, ref, err)
	}

	switch cellType {
	case excelize.CellTypeBool:
		return inference.Boolean, strconv.FormatBool(raw == "1" || strings.EqualFold(raw, "true")), nil
	case excelize.CellTypeDate:
		if ts, ok := inference.CanonicalTimestamp(raw); ok {
			return inference.Timestamp, ts, nil
		}

		return inference.Text, raw, nil
	case excelize.CellTypeNumber, excelize.CellTypeUnset:
		number, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return inference.NaturalType(raw), raw, nil
		}

		isDate, err := w.isDate(sheet, ref)
		if err != nil {
			return "", "", err
		}

		if isDate {
			t, err := excelize.ExcelDateToTime(number, false)
			if err == nil {
				// serials carry float noise below a millisecond
				return inference.Timestamp, inference.FormatTimestamp(t.Round(time.Millisecond)), nil
			}
		}

		if _, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return inference.Integer, raw, nil
		}

		return inference.Float, raw, nil
	default:
		return inference.Text, raw, nil
	}
}

// isDate reports whether the cell's number format renders a date or time
func (w *sheetReader) isDate(sheet, ref string) (bool, error) {
	styleID, err := w.file.GetCellStyle(sheet, ref)
	if err != nil {
		return false, fmt.Errorf("failed to read style of %s!%s: %w", sheet, ref, err)
	}

	if isDate, ok := w.dateStyles[styleID]; ok {
		return isDate, nil
	}

	style, err := w.file.GetStyle(styleID)
	if err != nil {
		return false, fmt.Errorf("failed to read style %d: %w", styleID, err)
	}

	isDate := dateNumFmts[style.NumFmt]
	if !isDate && style.CustomNumFmt != nil {
		isDate = isDateFormat(*style.CustomNumFmt)
	}

	w.dateStyles[styleID] = isDate

	return isDate, nil
}

// isDateFormat looks for date tokens outside quoted literals and [] sections
func isDateFormat(format string) bool {
	var b strings.Builder

	inQuote, inBracket := false, false

	for _, r := range strings.ToLower(format) {
		switch {
		case r == '"':
			inQuote = !inQuote
		case inQuote:
		case r == '[':
			inBracket = true
		case r == ']':
			inBracket = false
		case !inBracket:
			b.WriteRune(r)
		}
	}

	return strings.ContainsAny(b.String(), "ydhs")
}
