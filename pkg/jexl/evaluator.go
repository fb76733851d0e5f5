// Package jexl implements the JEXL expression language used by forms and workflows.
//
// Expressions are parsed into a JEXL syntax tree, lowered into an expr-lang program
// and executed by the expr virtual machine. Compiled programs are cached per
// expression string, so an Evaluator is cheap to reuse and safe for concurrent use.
package jexl

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
)

// Transform implements a `subject|name(args...)` pipe.
type Transform func(subject any, args []any) (any, error)

// Context carries the values and context-bound transforms an expression sees.
type Context struct {
	Values     map[string]any
	Transforms map[string]Transform
}

// NewContext returns a context exposing the given top-level values.
func NewContext(values map[string]any) *Context {
	if values == nil {
		values = map[string]any{}
	}

	return &Context{Values: values, Transforms: map[string]Transform{}}
}

// WithTransform registers a context-bound transform and returns the context.
func (c *Context) WithTransform(name string, fn Transform) *Context {
	c.Transforms[name] = fn
	return c
}

// Evaluator evaluates JEXL expressions. Compiled programs are cached.
type Evaluator struct {
	mu         sync.RWMutex
	cache      map[string]*program
	transforms map[string]Transform
}

// New creates an evaluator with the built-in transforms registered.
func New() *Evaluator {
	return &Evaluator{
		cache:      make(map[string]*program),
		transforms: builtinTransforms(),
	}
}

var defaultEvaluator = New()

// Evaluate evaluates an expression with the shared default evaluator.
func Evaluate(expression string, ctx *Context) (any, error) {
	return defaultEvaluator.Evaluate(expression, ctx)
}

// EvaluateBool evaluates an expression with the shared default evaluator and applies truthiness.
func EvaluateBool(expression string, ctx *Context) (bool, error) {
	return defaultEvaluator.EvaluateBool(expression, ctx)
}

// Check reports syntax errors without evaluating.
func Check(expression string) error {
	return defaultEvaluator.Check(expression)
}

// Check parses and compiles an expression, returning an ExpressionSyntaxError for malformed input.
func (e *Evaluator) Check(expression string) error {
	if strings.TrimSpace(expression) == "" {
		return nil
	}

	_, err := e.compile(expression)

	return err
}

// Evaluate runs an expression against ctx. An empty expression yields nil.
func (e *Evaluator) Evaluate(expression string, ctx *Context) (any, error) {
	if strings.TrimSpace(expression) == "" {
		return nil, nil
	}

	prog, err := e.compile(expression)
	if err != nil {
		return nil, err
	}

	if ctx == nil {
		ctx = NewContext(nil)
	}

	run := &evaluation{source: expression, ctx: ctx, builtins: e.transforms}

	result, err := expr.Run(prog.vm, run.env())
	if run.err != nil {
		return nil, run.err
	}

	if err != nil {
		return nil, &EvaluationError{Expression: expression, Err: err}
	}

	return result, nil
}

// EvaluateBool runs an expression and converts the result with JEXL truthiness.
func (e *Evaluator) EvaluateBool(expression string, ctx *Context) (bool, error) {
	result, err := e.Evaluate(expression, ctx)
	if err != nil {
		return false, err
	}

	return Truthy(result), nil
}

// CacheSize returns the number of cached programs.
func (e *Evaluator) CacheSize() int {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return len(e.cache)
}

func (e *Evaluator) compile(expression string) (*program, error) {
	e.mu.RLock()
	prog, ok := e.cache[expression]
	e.mu.RUnlock()

	if ok {
		return prog, nil
	}

	prog, err := compile(expression)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.cache[expression] = prog
	e.mu.Unlock()

	return prog, nil
}

// evaluation is the state of one run. The first error raised by a helper is kept
// so that typed errors reach the caller unchanged.
type evaluation struct {
	source   string
	ctx      *Context
	builtins map[string]Transform
	err      error
}

func (ev *evaluation) env() map[string]any {
	return map[string]any{
		fnRef:    helperFunc(ev.ref),
		fnGet:    helperFunc(ev.get),
		fnTruthy: helperFunc(ev.truthy),
		fnUnary:  helperFunc(ev.unary),
		fnBinary: helperFunc(ev.binary),
		fnPipe:   helperFunc(ev.pipe),
	}
}

func (ev *evaluation) fail(err error) (any, error) {
	if ev.err == nil {
		var (
			missingErr *QuestionMissingError
			evalErr    *EvaluationError
		)

		switch {
		case errors.As(err, &missingErr), errors.As(err, &evalErr):
			ev.err = err
		default:
			ev.err = &EvaluationError{Expression: ev.source, Err: err}
		}
	}

	return nil, err
}

func (ev *evaluation) ref(args ...any) (any, error) {
	name, _ := args[0].(string)
	return ev.ctx.Values[name], nil
}

func (ev *evaluation) get(args ...any) (any, error) {
	return property(args[0], args[1]), nil
}

func (ev *evaluation) truthy(args ...any) (any, error) {
	return Truthy(args[0]), nil
}

func (ev *evaluation) unary(args ...any) (any, error) {
	n, ok := toNumber(args[1])
	if !ok {
		return ev.fail(typeError("cannot negate %s", describe(args[1])))
	}

	return -n, nil
}

func (ev *evaluation) binary(args ...any) (any, error) {
	op, _ := args[0].(string)

	result, err := applyBinary(op, args[1], args[2])
	if err != nil {
		return ev.fail(err)
	}

	return result, nil
}

func (ev *evaluation) pipe(args ...any) (any, error) {
	name, _ := args[0].(string)

	fn, ok := ev.ctx.Transforms[name]
	if !ok {
		fn, ok = ev.builtins[name]
	}

	if !ok {
		return ev.fail(fmt.Errorf("%w %q", ErrUnknownTransform, name))
	}

	result, err := fn(args[1], args[2:])
	if err != nil {
		return ev.fail(err)
	}

	return result, nil
}
