package errors

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// Formatter renders errors for terminal or log output.
type Formatter struct {
	// Writer is the output destination. Defaults to os.Stderr.
	Writer io.Writer

	// Indent is the prefix for context and suggestion lines.
	Indent string
}

// DefaultFormatter returns a Formatter writing to stderr.
func DefaultFormatter() *Formatter {
	return &Formatter{
		Writer: os.Stderr,
		Indent: "  ",
	}
}

// Format renders an error using the default formatter.
func Format(err error) string {
	return DefaultFormatter().Format(err)
}

// Format renders an error. ChimeErrors include code, context, cause and
// suggestions; other errors are printed with an "Error: " prefix.
func (f *Formatter) Format(err error) string {
	if err == nil {
		return ""
	}

	ce, ok := AsChimeError(err)
	if !ok {
		return "Error: " + err.Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Error [%s]: %s\n", ce.Code, ce.Message)

	if ce.HasContext() {
		sb.WriteString(f.Indent)
		sb.WriteString(ce.ContextString())
		sb.WriteString("\n")
	}

	if ce.Cause != nil {
		fmt.Fprintf(&sb, "%sCause: %v\n", f.Indent, ce.Cause)
	}

	if ce.HasSuggestions() {
		fmt.Fprintf(&sb, "%sTry:\n", f.Indent)
		for _, s := range ce.Suggestions {
			fmt.Fprintf(&sb, "%s%s- %s\n", f.Indent, f.Indent, s)
		}
	}

	return strings.TrimRight(sb.String(), "\n")
}

// Print writes the formatted error to the formatter's writer.
func (f *Formatter) Print(err error) {
	if err == nil {
		return
	}
	w := f.Writer
	if w == nil {
		w = os.Stderr
	}
	fmt.Fprintln(w, f.Format(err))
}
