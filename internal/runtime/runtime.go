// Package runtime embeds a Risor VM that executes compiled unit images.
// An image is Risor source defining one function per entry point; calling
// an entry captures console output and named attachments.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/risor-io/risor"
	"github.com/risor-io/risor/importer"
	"github.com/risor-io/risor/object"
)

// ModuleExt is the file extension of importable reference modules.
const ModuleExt = ".risor"

// ErrNoEntry is returned when a call names an empty entry point.
var ErrNoEntry = errors.New("runtime: no entry point")

// Runtime evaluates images. References placed in importDir as
// <name>.risor are importable from images by name.
type Runtime struct {
	importDir string
	logger    *log.Logger
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithLogger routes the scripts' log.info/warn/error calls to l.
func WithLogger(l *log.Logger) Option {
	return func(r *Runtime) {
		r.logger = l
	}
}

// New creates a Runtime resolving imports from importDir. An empty
// importDir disables imports.
func New(importDir string, opts ...Option) *Runtime {
	r := &Runtime{
		importDir: importDir,
		logger:    log.New(os.Stderr, "", 0),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Program is a loaded image.
type Program struct {
	rt     *Runtime
	source string
}

// Load validates image by evaluating it once with output discarded.
func (r *Runtime) Load(ctx context.Context, image []byte) (*Program, error) {
	src := string(image)
	if _, err := r.eval(ctx, src, newRecorder()); err != nil {
		return nil, err
	}
	return &Program{rt: r, source: src}, nil
}

// Call invokes entry and returns its attachments: "" holds console output
// and is always present, "return" holds the string form of a non-nil
// return value, and attach(name, value) adds the rest.
func (p *Program) Call(ctx context.Context, entry string) (map[string]string, error) {
	if entry == "" {
		return nil, ErrNoEntry
	}
	rec := newRecorder()
	result, err := p.rt.eval(ctx, p.source+"\n"+entry+"()\n", rec)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", entry, err)
	}
	if result != nil && result != object.Nil {
		rec.set("return", stringify(result))
	}
	return rec.attachments(), nil
}

func (r *Runtime) eval(ctx context.Context, source string, rec *recorder) (object.Object, error) {
	globals := r.buildGlobals(rec)

	var opts []risor.Option
	for name, val := range globals {
		opts = append(opts, risor.WithGlobal(name, val))
	}
	if imp := r.buildImporter(globals); imp != nil {
		opts = append(opts, risor.WithImporter(imp))
	}

	result, err := risor.Eval(ctx, source, opts...)
	if err != nil {
		return nil, fmt.Errorf("runtime: %w", err)
	}
	return result, nil
}

// buildImporter returns an importer over the reference directory, or nil
// when none is configured.
func (r *Runtime) buildImporter(globals map[string]any) importer.Importer {
	if r.importDir == "" {
		return nil
	}
	globalNames := make([]string, 0, len(globals))
	for name := range globals {
		globalNames = append(globalNames, name)
	}
	return importer.NewLocalImporter(importer.LocalImporterOptions{
		GlobalNames: globalNames,
		SourceDir:   r.importDir,
		Extensions:  []string{ModuleExt},
	})
}

// buildGlobals constructs the host functions visible to an image. Each
// evaluation gets its own recorder so concurrent calls never share output.
func (r *Runtime) buildGlobals(rec *recorder) map[string]any {
	return map[string]any{
		"print":  makePrintFn(rec),
		"attach": makeAttachFn(rec),
		"log":    mustProxy(&logObject{logger: r.logger}),
	}
}

func mustProxy(v any) object.Object {
	p, err := object.NewProxy(v)
	if err != nil {
		panic(fmt.Sprintf("runtime: proxy error: %v", err))
	}
	return p
}
