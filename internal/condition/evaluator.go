package condition

import (
	"strings"
	"sync"

	"github.com/nerrad567/avbridge/internal/device"
)

// Logger defines the logging interface used by the Evaluator.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Expr is a compiled condition.
type Expr struct {
	src  string
	root node
}

// Compile parses expr. An empty expression compiles to one that is always
// true.
func Compile(expr string) (*Expr, error) {
	src := strings.TrimSpace(expr)
	if src == "" {
		return &Expr{}, nil
	}
	root, err := parse(src)
	if err != nil {
		return nil, err
	}
	return &Expr{src: src, root: root}, nil
}

// String returns the source text.
func (e *Expr) String() string { return e.src }

// Eval evaluates the expression against a snapshot. Errors yield false.
func (e *Expr) Eval(s device.State) (bool, error) {
	if e.root == nil {
		return true, nil
	}
	v, err := e.root.eval(s)
	if err != nil {
		return false, err
	}
	return truthy(v), nil
}

type cacheEntry struct {
	expr *Expr
	err  error
}

// Evaluator evaluates condition strings, caching their compiled form.
//
// Thread Safety:
//   - Safe for concurrent use.
type Evaluator struct {
	mu     sync.RWMutex
	cache  map[string]cacheEntry
	logger Logger
}

// NewEvaluator creates an evaluator with an empty cache.
func NewEvaluator() *Evaluator {
	return &Evaluator{
		cache:  make(map[string]cacheEntry),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger used for diagnostics.
func (e *Evaluator) SetLogger(logger Logger) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.logger = logger
}

// Evaluate reports whether expr holds for state. An empty expression is
// true. Any diagnostic makes the result false. and/or short-circuit, so an
// unknown field in a skipped operand goes unreported.
func (e *Evaluator) Evaluate(expr string, state device.State) (bool, error) {
	compiled, err := e.compile(expr)
	if err == nil {
		var ok bool
		ok, err = compiled.Eval(state)
		if err == nil {
			return ok, nil
		}
	}

	e.mu.RLock()
	logger := e.logger
	e.mu.RUnlock()
	logger.Warn("condition failed closed", "condition", expr, "error", err)
	return false, err
}

func (e *Evaluator) compile(expr string) (*Expr, error) {
	e.mu.RLock()
	entry, ok := e.cache[expr]
	e.mu.RUnlock()
	if ok {
		return entry.expr, entry.err
	}

	compiled, err := Compile(expr)
	e.mu.Lock()
	e.cache[expr] = cacheEntry{expr: compiled, err: err}
	e.mu.Unlock()
	return compiled, err
}
