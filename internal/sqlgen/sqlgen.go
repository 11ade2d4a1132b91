// Package sqlgen renders the default queries offered for a table.
package sqlgen

import (
	"fmt"
	"strings"

	"github.com/kyleking/sqlnow/internal/catalog"
	"github.com/kyleking/sqlnow/internal/errors"
	"github.com/kyleking/sqlnow/internal/storage"
)

// Intent selects the shape of the generated query
type Intent string

const (
	SelectStar        Intent = "select-star"
	SelectFields      Intent = "select-fields"
	SelectFieldsTyped Intent = "select-fields-typed"
)

const (
	indent     = "    "
	typeGutter = 4
)

// Intents lists every intent in display order
func Intents() []Intent {
	return []Intent{SelectStar, SelectFields, SelectFieldsTyped}
}

// ParseIntent parses an intent name
func ParseIntent(name string) (Intent, error) {
	for _, intent := range Intents() {
		if string(intent) == name {
			return intent, nil
		}
	}

	return "", errors.Newf(errors.ErrTypeValidation, "unknown query intent: %s", name).
		WithSuggestion(fmt.Sprintf("Use one of %s, %s or %s", SelectStar, SelectFields, SelectFieldsTyped))
}

// Generate renders the query for table. The output depends only on its inputs.
func Generate(table catalog.TableDescriptor, intent Intent) string {
	switch intent {
	case SelectFields:
		return selectFields(table)
	case SelectFieldsTyped:
		return selectFieldsTyped(table)
	default:
		return "SELECT * FROM " + table.QualifiedRef
	}
}

func selectFields(table catalog.TableDescriptor) string {
	var b strings.Builder

	b.WriteString("SELECT\n")

	for i, col := range table.Columns {
		b.WriteString(indent)
		b.WriteString(columnText(col, i == len(table.Columns)-1))
		b.WriteString("\n")
	}

	b.WriteString("FROM ")
	b.WriteString(table.QualifiedRef)

	return b.String()
}

func selectFieldsTyped(table catalog.TableDescriptor) string {
	texts := make([]string, len(table.Columns))
	width := 0

	for i, col := range table.Columns {
		texts[i] = columnText(col, i == len(table.Columns)-1)
		if n := len([]rune(texts[i])); n > width {
			width = n
		}
	}

	var b strings.Builder

	b.WriteString("SELECT\n")

	for i, col := range table.Columns {
		b.WriteString(indent)
		b.WriteString(texts[i])
		b.WriteString(strings.Repeat(" ", width+typeGutter-len([]rune(texts[i]))))
		b.WriteString("-- ")
		b.WriteString(col.Type)
		b.WriteString("\n")
	}

	b.WriteString("FROM ")
	b.WriteString(table.QualifiedRef)

	return b.String()
}

func columnText(col catalog.Column, last bool) string {
	text := storage.QuoteIdent(col.Name)
	if !last {
		text += ","
	}

	return text
}
