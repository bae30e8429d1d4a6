package runtime

import (
	"context"
	"log"
	"strings"
	"sync"

	"github.com/risor-io/risor/object"
)

// recorder collects the console text and named attachments of one call.
type recorder struct {
	mu      sync.Mutex
	console strings.Builder
	named   map[string]string
}

func newRecorder() *recorder {
	return &recorder{named: make(map[string]string)}
}

func (r *recorder) write(s string) {
	r.mu.Lock()
	r.console.WriteString(s)
	r.mu.Unlock()
}

func (r *recorder) set(name, value string) {
	r.mu.Lock()
	r.named[name] = value
	r.mu.Unlock()
}

func (r *recorder) attachments() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]string, len(r.named)+1)
	for k, v := range r.named {
		out[k] = v
	}
	out[""] = r.console.String()
	return out
}

// stringify renders a Risor value the way print would.
func stringify(obj object.Object) string {
	if s, ok := obj.(*object.String); ok {
		return s.Value()
	}
	return obj.Inspect()
}

// makePrintFn creates the "print" host function, which replaces the VM's
// stdout printer with the call's console attachment.
//
// print(args...) → nil
func makePrintFn(rec *recorder) *object.Builtin {
	return object.NewBuiltin("print", func(ctx context.Context, args ...object.Object) object.Object {
		parts := make([]string, len(args))
		for i, arg := range args {
			parts[i] = stringify(arg)
		}
		rec.write(strings.Join(parts, " ") + "\n")
		return object.Nil
	})
}

// makeAttachFn creates the "attach" host function.
//
// attach(name, value) → nil
//
// The empty name is reserved for console output.
func makeAttachFn(rec *recorder) *object.Builtin {
	return object.NewBuiltin("attach", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("attach", 2, len(args))
		}
		name, ok := args[0].(*object.String)
		if !ok {
			return object.Errorf("attach: name must be a string, got %s", args[0].Type())
		}
		if name.Value() == "" {
			return object.Errorf("attach: name must not be empty")
		}
		rec.set(name.Value(), stringify(args[1]))
		return object.Nil
	})
}

// logObject provides log.info/warn/error methods for images.
type logObject struct {
	logger *log.Logger
}

func (l *logObject) Info(msg string) {
	l.logger.Printf("INFO: %s", msg)
}

func (l *logObject) Warn(msg string) {
	l.logger.Printf("WARN: %s", msg)
}

func (l *logObject) Error(msg string) {
	l.logger.Printf("ERROR: %s", msg)
}
