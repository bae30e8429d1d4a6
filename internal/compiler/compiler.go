// Package compiler defines the contract symcache expects from a compiler
// front end. The front end itself is a black box: it turns one compilation
// unit into an executable image plus diagnostics.
package compiler

import (
	"context"
	"fmt"

	"github.com/jward/symcache/internal/workspace"
)

// Severity of a diagnostic.
type Severity string

const (
	SeverityHidden  Severity = "hidden"
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Diagnostic is one message reported by the front end.
type Diagnostic struct {
	Severity Severity `json:"severity"`
	ID       string   `json:"id,omitempty"`
	Message  string   `json:"message"`
	Path     string   `json:"path,omitempty"`
	Line     int      `json:"line,omitempty"`
	Column   int      `json:"column,omitempty"`
}

func (d Diagnostic) String() string {
	loc := d.Path
	if d.Line > 0 {
		loc = fmt.Sprintf("%s(%d,%d)", d.Path, d.Line, d.Column)
	}
	if loc != "" {
		loc += ": "
	}
	if d.ID != "" {
		return fmt.Sprintf("%s%s %s: %s", loc, d.Severity, d.ID, d.Message)
	}
	return fmt.Sprintf("%s%s: %s", loc, d.Severity, d.Message)
}

// Output is the result of compiling one unit.
type Output struct {
	// Image is the executable artifact.
	Image []byte `json:"image"`

	// EntryPoints maps documentation ids of methods to the image's callable
	// entry names. When empty every method uses EntryName; otherwise methods
	// missing from the map have no entry point.
	EntryPoints map[string]string `json:"entryPoints,omitempty"`

	Diagnostics []Diagnostic `json:"diagnostics,omitempty"`
}

// Errors returns the error-severity diagnostics.
func (o *Output) Errors() []Diagnostic {
	var errs []Diagnostic
	for _, d := range o.Diagnostics {
		if d.Severity == SeverityError {
			errs = append(errs, d)
		}
	}
	return errs
}

// Compiler compiles a unit. A non-nil error means the front end could not
// run at all; compile errors in the source are reported as diagnostics.
type Compiler interface {
	Compile(ctx context.Context, unit *workspace.Unit) (*Output, error)
}

// Func adapts a function to the Compiler interface.
type Func func(ctx context.Context, unit *workspace.Unit) (*Output, error)

// Compile calls f.
func (f Func) Compile(ctx context.Context, unit *workspace.Unit) (*Output, error) {
	return f(ctx, unit)
}

// Unavailable is the Compiler used when none is configured. Every unit
// fails with a single error diagnostic.
var Unavailable Compiler = Func(func(_ context.Context, unit *workspace.Unit) (*Output, error) {
	return &Output{Diagnostics: []Diagnostic{{
		Severity: SeverityError,
		ID:       "SC0001",
		Message:  "no compiler configured",
		Path:     unit.Path,
	}}}, nil
})

// EntryName derives the conventional entry name for a method's
// documentation id: the id without its kind prefix and parameter list, with
// every character that is not a letter, digit, or underscore replaced by
// an underscore. "M:Acme.Demo.Run(System.Int32)" becomes "Acme_Demo_Run".
func EntryName(docID string) string {
	if len(docID) > 2 && docID[1] == ':' {
		docID = docID[2:]
	}
	for i := 0; i < len(docID); i++ {
		if docID[i] == '(' {
			docID = docID[:i]
			break
		}
	}
	out := []byte(docID)
	for i, c := range out {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_':
		default:
			out[i] = '_'
		}
	}
	return string(out)
}
