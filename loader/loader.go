// Package loader bulk-loads entities into a silo.World from a JSON stream of
// the form {"Entities": [{"<component name>": <value>, ...}, ...]}.
// Component names are resolved in the world's registry and each value is
// decoded into the freshly added component.
package loader

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/goccy/go-json"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/TheBitDrifter/silo"
)

// EntitiesKey is the top-level key holding the entity list. Other top-level
// keys are skipped.
const EntitiesKey = "Entities"

const (
	DefaultMaxDepth     = 32
	DefaultMaxValueSize = 64 << 10
)

// Status classifies the outcome of a Load.
type Status int

const (
	Success Status = iota
	Invalid
	Incomplete
	BufferOverflow
	DepthOverflow
)

func (s Status) String() string {
	switch s {
	case Success:
		return "success"
	case Invalid:
		return "invalid"
	case Incomplete:
		return "incomplete"
	case BufferOverflow:
		return "buffer overflow"
	case DepthOverflow:
		return "depth overflow"
	}
	return "unknown"
}

// Result reports what a Load created. Entities holds every fully loaded
// entity, also when loading stopped early.
type Result struct {
	Status   Status
	Entities []silo.Entity
}

type options struct {
	maxDepth     int
	maxValueSize int
	log          *zap.Logger
}

type Option func(*options)

// WithMaxDepth bounds the nesting depth of the document, the root object
// counting as depth one.
func WithMaxDepth(n int) Option {
	return func(o *options) { o.maxDepth = n }
}

// WithMaxValueSize bounds the encoded size of one component value in bytes.
func WithMaxValueSize(n int) Option {
	return func(o *options) { o.maxValueSize = n }
}

func WithLogger(log *zap.Logger) Option {
	return func(o *options) { o.log = log }
}

type statusError struct {
	status Status
	err    error
}

func (e *statusError) Error() string { return e.err.Error() }

func (e *statusError) Unwrap() error { return e.err }

func fail(status Status, err error) error {
	return &statusError{status: status, err: err}
}

// Load reads the stream and creates one entity per object of the entity list.
// ctx is checked between entities. A failed entity is destroyed; entities
// loaded before it are kept and returned.
func Load(ctx context.Context, r io.Reader, w *silo.World, opts ...Option) (Result, error) {
	o := options{
		maxDepth:     DefaultMaxDepth,
		maxValueSize: DefaultMaxValueSize,
		log:          w.Logger(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	l := &loader{dec: json.NewDecoder(r), world: w, opts: o}
	err := l.document(ctx)
	res := Result{Status: Success, Entities: l.loaded}
	if err == nil {
		o.log.Debug("entities loaded", zap.Int("count", len(l.loaded)))
		return res, nil
	}

	res.Status = Invalid
	var se *statusError
	if errors.As(err, &se) {
		res.Status = se.status
	}
	o.log.Warn("entity load stopped",
		zap.Stringer("status", res.Status),
		zap.Int("loaded", len(l.loaded)),
		zap.Error(err),
	)
	return res, err
}

type loader struct {
	dec    *json.Decoder
	world  *silo.World
	opts   options
	loaded []silo.Entity
}

func (l *loader) document(ctx context.Context) error {
	if err := l.expectDelim('{'); err != nil {
		return err
	}
	for l.dec.More() {
		key, err := l.key()
		if err != nil {
			return err
		}
		if key != EntitiesKey {
			if _, err := l.value(1); err != nil {
				return err
			}
			continue
		}
		if err := l.entities(ctx); err != nil {
			return err
		}
	}
	return l.expectDelim('}')
}

func (l *loader) entities(ctx context.Context) error {
	if l.opts.maxDepth < 2 {
		return fail(DepthOverflow, eris.Errorf("entity list exceeds max depth %d", l.opts.maxDepth))
	}
	if err := l.expectDelim('['); err != nil {
		return err
	}
	for l.dec.More() {
		if err := ctx.Err(); err != nil {
			return fail(Incomplete, eris.Wrap(err, "load cancelled"))
		}
		e, err := l.entity()
		if err != nil {
			return err
		}
		l.loaded = append(l.loaded, e)
	}
	return l.expectDelim(']')
}

func (l *loader) entity() (silo.Entity, error) {
	if l.opts.maxDepth < 3 {
		return silo.Entity{}, fail(DepthOverflow, eris.Errorf("entity exceeds max depth %d", l.opts.maxDepth))
	}
	if err := l.expectDelim('{'); err != nil {
		return silo.Entity{}, err
	}
	e, err := l.world.NewEntity()
	if err != nil {
		return silo.Entity{}, fail(Invalid, eris.Wrap(err, "create entity"))
	}
	for l.dec.More() {
		if err := l.component(e); err != nil {
			e.Destroy()
			return silo.Entity{}, err
		}
	}
	if err := l.expectDelim('}'); err != nil {
		e.Destroy()
		return silo.Entity{}, err
	}
	return e, nil
}

func (l *loader) component(e silo.Entity) error {
	name, err := l.key()
	if err != nil {
		return err
	}
	raw, err := l.value(3)
	if err != nil {
		return err
	}
	if _, err := e.AddComponentByName(name); err != nil {
		return fail(Invalid, eris.Wrapf(err, "add component %q", name))
	}
	ptr, ok := e.ComponentByName(name)
	if !ok {
		return fail(Invalid, eris.Errorf("component %q not accessible after add", name))
	}
	if err := json.Unmarshal(raw, ptr); err != nil {
		return fail(Invalid, eris.Wrapf(err, "decode component %q", name))
	}
	return nil
}

// value reads the next value whole. depth is the nesting level it sits at.
func (l *loader) value(depth int) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := l.dec.Decode(&raw); err != nil {
		return nil, l.classify(err)
	}
	if len(raw) > l.opts.maxValueSize {
		return nil, fail(BufferOverflow, eris.Errorf("value of %d bytes exceeds %d", len(raw), l.opts.maxValueSize))
	}
	if d := depth + nesting(raw); d > l.opts.maxDepth {
		return nil, fail(DepthOverflow, eris.Errorf("depth %d exceeds %d", d, l.opts.maxDepth))
	}
	return raw, nil
}

func (l *loader) key() (string, error) {
	tok, err := l.dec.Token()
	if err != nil {
		return "", l.classify(err)
	}
	key, ok := tok.(string)
	if !ok {
		return "", fail(Invalid, eris.Errorf("expected object key, got %v", tok))
	}
	return key, nil
}

func (l *loader) expectDelim(want json.Delim) error {
	tok, err := l.dec.Token()
	if err != nil {
		return l.classify(err)
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fail(Invalid, eris.Errorf("expected %q, got %v", want, tok))
	}
	return nil
}

// classify maps decoder errors to a status: running out of input is
// Incomplete, everything else Invalid.
func (l *loader) classify(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		strings.Contains(err.Error(), "unexpected end of JSON input") {
		return fail(Incomplete, eris.Wrap(err, "stream ended early"))
	}
	return fail(Invalid, eris.Wrap(err, "malformed input"))
}

// nesting returns the maximum depth of objects and arrays in raw.
func nesting(raw []byte) int {
	depth, deepest := 0, 0
	inString, escaped := false, false
	for _, b := range raw {
		switch {
		case escaped:
			escaped = false
		case inString:
			switch b {
			case '\\':
				escaped = true
			case '"':
				inString = false
			}
		case b == '"':
			inString = true
		case b == '{' || b == '[':
			depth++
			deepest = max(deepest, depth)
		case b == '}' || b == ']':
			depth--
		}
	}
	return deepest
}
