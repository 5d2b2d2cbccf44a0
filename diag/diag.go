// Package diag holds compiler diagnostics.
//
// Every compiler-domain failure (bad operand shape, stack imbalance,
// unresolved symbol, byte overlap) is recorded as a Diagnostic instead of
// being returned as a Go error. Messages are stable literal text.
package diag

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/sarchlab/zax/ast"
)

// ID categorizes a diagnostic by the component that raised it.
type ID string

const (
	Encode   ID = "ENCODE"   // Instruction encoding failure
	OpExpand ID = "OPEXPAND" // Op overload resolution or expansion failure
	Stack    ID = "STACK"    // Stack-depth verification failure
	Control  ID = "CONTROL"  // Malformed structured control
	Address  ID = "ADDRESS"  // Typed storage access failure
	Fixup    ID = "FIXUP"    // Fixup resolution failure
	Layout   ID = "LAYOUT"   // Section placement or overlap failure
	Call     ID = "CALL"     // Typed call failure
)

// Severity is either error or warning.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Diagnostic is a single reported problem.
type Diagnostic struct {
	ID       ID
	Severity Severity
	Message  string
	File     string
	Line     int
	Column   int
}

// Errorf creates an error diagnostic located at span.
func Errorf(id ID, at ast.Span, format string, args ...any) *Diagnostic {
	return &Diagnostic{
		ID:       id,
		Severity: SeverityError,
		Message:  fmt.Sprintf(format, args...),
		File:     at.File,
		Line:     at.Line,
		Column:   at.Column,
	}
}

// Warnf creates a warning diagnostic located at span.
func Warnf(id ID, at ast.Span, format string, args ...any) *Diagnostic {
	d := Errorf(id, at, format, args...)
	d.Severity = SeverityWarning
	return d
}

// At moves the diagnostic to span, keeping an existing location when the
// span is empty.
func (d *Diagnostic) At(at ast.Span) *Diagnostic {
	if at == (ast.Span{}) {
		return d
	}
	d.File, d.Line, d.Column = at.File, at.Line, at.Column
	return d
}

// IsError reports whether the diagnostic blocks artifact emission.
func (d *Diagnostic) IsError() bool {
	return d.Severity == SeverityError
}

func (d *Diagnostic) String() string {
	loc := d.File
	if d.Line > 0 {
		loc = fmt.Sprintf("%s:%d:%d", d.File, d.Line, d.Column)
	}
	if loc == "" {
		return fmt.Sprintf("%s [%s] %s", d.Severity, d.ID, d.Message)
	}
	return fmt.Sprintf("%s: %s [%s] %s", loc, d.Severity, d.ID, d.Message)
}

// List is an append-only, ordered collection of diagnostics.
type List struct {
	items []*Diagnostic
	sink  func(*Diagnostic)
}

// OnAdd registers a callback invoked for each appended diagnostic.
func (l *List) OnAdd(f func(*Diagnostic)) {
	l.sink = f
}

// Add appends diagnostics, ignoring nil entries.
func (l *List) Add(ds ...*Diagnostic) {
	for _, d := range ds {
		if d == nil {
			continue
		}
		l.items = append(l.items, d)
		if l.sink != nil {
			l.sink(d)
		}
	}
}

// Items returns the diagnostics in the order they were added.
func (l *List) Items() []*Diagnostic {
	return l.items
}

// Len returns the number of diagnostics.
func (l *List) Len() int {
	return len(l.items)
}

// HasErrors reports whether any error-severity diagnostic was recorded.
func (l *List) HasErrors() bool {
	for _, d := range l.items {
		if d.IsError() {
			return true
		}
	}
	return false
}

// Messages returns only the message text of every diagnostic.
func (l *List) Messages() []string {
	out := make([]string, len(l.items))
	for i, d := range l.items {
		out[i] = d.Message
	}
	return out
}

// WriteReport renders the diagnostics as a table.
func (l *List) WriteReport(w io.Writer) {
	if len(l.items) == 0 {
		fmt.Fprintln(w, "No diagnostics.")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(fmt.Sprintf("Diagnostics (%d)", len(l.items)))
	t.AppendHeader(table.Row{"#", "Severity", "ID", "Location", "Message"})

	for i, d := range l.items {
		loc := ""
		if d.Line > 0 {
			loc = fmt.Sprintf("%s:%d:%d", d.File, d.Line, d.Column)
		}
		t.AppendRow(table.Row{i + 1, d.Severity, d.ID, loc, d.Message})
	}

	t.Render()
}
