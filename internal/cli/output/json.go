package output

import (
	"encoding/json"
	"io"
)

// JSONFormatter writes data as JSON. Keys and values are emitted verbatim,
// so row keys such as "a<b" are not HTML-escaped.
type JSONFormatter struct {
	// Compact writes one line per document instead of indenting.
	Compact bool
}

// Format implements Formatter.
func (f *JSONFormatter) Format(w io.Writer, data any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if !f.Compact {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(data)
}
