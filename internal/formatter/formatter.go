package formatter

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/width"

	"github.com/kyleking/sqlnow/internal/catalog"
	"github.com/kyleking/sqlnow/internal/results"
)

// OutputFormat represents the output format type
type OutputFormat string

const (
	FormatLong  OutputFormat = "long"
	FormatShort OutputFormat = "short"
)

const (
	maxCellWidth = 40
	ellipsis     = "..."
	columnGap    = "  "
)

// Formatter renders catalog entries and query results for the terminal
type Formatter struct {
	maxCellWidth int
}

// NewFormatter creates a new formatter instance
func NewFormatter() *Formatter {
	return &Formatter{maxCellWidth: maxCellWidth}
}

// FormatTable formats a single catalog entry
func (f *Formatter) FormatTable(table catalog.TableDescriptor, format OutputFormat) string {
	switch format {
	case FormatLong:
		return f.formatLong(table)
	default:
		return f.formatShort(table)
	}
}

func (f *Formatter) formatShort(table catalog.TableDescriptor) string {
	return fmt.Sprintf("%s (%s)", table.DisplayName, plural(len(table.Columns), "column"))
}

func (f *Formatter) formatLong(table catalog.TableDescriptor) string {
	section := table.Section
	if section == "" {
		section = "-"
	}

	lines := []string{
		table.DisplayName + "  (ref: " + table.QualifiedRef + ")",
		"Catalog: " + table.Catalog,
		"Section: " + section,
		"Columns: " + strconv.Itoa(len(table.Columns)),
	}

	nameWidth := 0
	for _, column := range table.Columns {
		nameWidth = max(nameWidth, displayWidth(column.Name))
	}

	for _, column := range table.Columns {
		lines = append(lines, "  "+pad(column.Name, nameWidth)+columnGap+column.Type)
	}

	return strings.Join(lines, "\n")
}

// FormatCatalog lists tables without a section first, then each section
// with its tables indented beneath it
func (f *Formatter) FormatCatalog(tables []catalog.TableDescriptor, sections []string) string {
	if len(tables) == 0 {
		return "No tables"
	}

	var lines []string

	bySection := make(map[string][]catalog.TableDescriptor, len(sections))

	for _, table := range tables {
		if table.Section == "" {
			lines = append(lines, f.formatShort(table))
			continue
		}

		bySection[table.Section] = append(bySection[table.Section], table)
	}

	for _, section := range sections {
		lines = append(lines, "["+section+"]")
		for _, table := range bySection[section] {
			lines = append(lines, "  "+f.formatShort(table))
		}
	}

	return strings.Join(lines, "\n")
}

// FormatData renders a result as an aligned grid followed by a row count.
// Long cells are truncated and line breaks inside cells are escaped.
func (f *Formatter) FormatData(data *results.TableData) string {
	if data == nil || len(data.Headers) == 0 {
		return "(no columns)"
	}

	header := make([]string, len(data.Headers))
	for i, h := range data.Headers {
		header[i] = f.cell(h)
	}

	rows := make([][]string, len(data.Rows))
	for i, row := range data.Rows {
		rows[i] = make([]string, len(row))
		for j, v := range row {
			rows[i][j] = f.cell(v)
		}
	}

	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = displayWidth(h)
	}

	for _, row := range rows {
		for i, v := range row {
			if i < len(widths) {
				widths[i] = max(widths[i], displayWidth(v))
			}
		}
	}

	var b strings.Builder

	writeRow := func(cells []string) {
		parts := make([]string, len(cells))
		for i, v := range cells {
			parts[i] = pad(v, widths[i])
		}

		b.WriteString(strings.TrimRight(strings.Join(parts, columnGap), " "))
		b.WriteByte('\n')
	}

	writeRow(header)

	rules := make([]string, len(widths))
	for i, w := range widths {
		rules[i] = strings.Repeat("-", w)
	}

	writeRow(rules)

	for _, row := range rows {
		writeRow(row)
	}

	b.WriteString("(" + plural(len(rows), "row") + ")")

	return b.String()
}

// cell escapes control characters and truncates to the configured width
func (f *Formatter) cell(v string) string {
	v = strings.NewReplacer("\r", `\r`, "\n", `\n`, "\t", `\t`).Replace(v)

	if f.maxCellWidth <= 0 || displayWidth(v) <= f.maxCellWidth {
		return v
	}

	limit := f.maxCellWidth - len(ellipsis)
	used := 0

	var b strings.Builder

	for _, r := range v {
		w := runeWidth(r)
		if used+w > limit {
			break
		}

		b.WriteRune(r)

		used += w
	}

	return b.String() + ellipsis
}

// displayWidth counts terminal columns; wide East Asian characters take two
func displayWidth(s string) int {
	n := 0
	for _, r := range s {
		n += runeWidth(r)
	}

	return n
}

func runeWidth(r rune) int {
	switch width.LookupRune(r).Kind() {
	case width.EastAsianWide, width.EastAsianFullwidth:
		return 2
	default:
		return 1
	}
}

func pad(s string, w int) string {
	if gap := w - displayWidth(s); gap > 0 {
		return s + strings.Repeat(" ", gap)
	}

	return s
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}

	return strconv.Itoa(n) + " " + noun + "s"
}
