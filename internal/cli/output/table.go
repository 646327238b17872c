package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
)

// Table represents tabular data.
type Table struct {
	Headers []string
	Rows    [][]string
}

// Tabular is implemented by results with a preferred table layout.
type Tabular interface {
	Table(wide bool) *Table
}

// NewTable creates a table with the given headers.
func NewTable(headers ...string) *Table {
	return &Table{Headers: headers}
}

// AddRow adds a row to the table.
func (t *Table) AddRow(cells ...string) {
	t.Rows = append(t.Rows, cells)
}

// Render renders the table to the writer.
func (t *Table) Render(w io.Writer, noHeaders bool) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if !noHeaders && len(t.Headers) > 0 {
		fmt.Fprintln(tw, strings.Join(t.Headers, "\t"))
	}
	for _, row := range t.Rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

// TableFormatter formats data as an aligned text table.
type TableFormatter struct {
	Wide      bool
	NoHeaders bool
}

// Format renders Tabular values and tables directly. Anything else is
// shown as FIELD/VALUE pairs of its JSON form.
func (f *TableFormatter) Format(w io.Writer, data any) error {
	switch v := data.(type) {
	case nil:
		return nil
	case *Table:
		return v.Render(w, f.NoHeaders)
	case Tabular:
		return v.Table(f.Wide).Render(w, f.NoHeaders)
	}

	t, err := fieldTable(data)
	if err != nil {
		return err
	}
	return t.Render(w, f.NoHeaders)
}

// fieldTable flattens the JSON object form of data into FIELD/VALUE rows.
// Nested objects use dotted field names.
func fieldTable(data any) (*Table, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}

	t := NewTable("FIELD", "VALUE")
	obj, ok := generic.(map[string]any)
	if !ok {
		t.Headers = []string{"VALUE"}
		t.AddRow(cell(generic))
		return t, nil
	}
	flatten(t, "", obj)
	return t, nil
}

func flatten(t *Table, prefix string, obj map[string]any) {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		name := k
		if prefix != "" {
			name = prefix + "." + k
		}
		if nested, ok := obj[k].(map[string]any); ok && len(nested) > 0 {
			flatten(t, name, nested)
			continue
		}
		t.AddRow(name, cell(obj[k]))
	}
}

// cell formats one decoded JSON value.
func cell(v any) string {
	switch x := v.(type) {
	case nil:
		return "-"
	case string:
		if x == "" {
			return "-"
		}
		return x
	case float64:
		if x == float64(int64(x)) {
			return fmt.Sprintf("%d", int64(x))
		}
		return fmt.Sprintf("%.2f", x)
	case []any:
		if len(x) == 0 {
			return "-"
		}
		return fmt.Sprintf("[%d items]", len(x))
	case map[string]any:
		return "-"
	default:
		return fmt.Sprint(x)
	}
}
