// Package bufwriter builds multi-line SQL statements.
package bufwriter

import (
	"fmt"
	"strings"
)

// Writer accumulates lines of one statement.
type Writer struct {
	sb strings.Builder
}

// WriteLine appends a line.
func (w *Writer) WriteLine(s string) {
	w.sb.WriteString(s)
	w.sb.WriteByte('\n')
}

// WriteLinef appends a formatted line.
func (w *Writer) WriteLinef(format string, args ...any) {
	w.WriteLine(fmt.Sprintf(format, args...))
}

// String returns the statement without the final newline.
func (w *Writer) String() string {
	return strings.TrimSuffix(w.sb.String(), "\n")
}

// Reset clears the writer.
func (w *Writer) Reset() {
	w.sb.Reset()
}

// Statement runs build on a fresh writer and returns the result.
func Statement(build func(w *Writer)) string {
	var w Writer
	build(&w)
	return w.String()
}
