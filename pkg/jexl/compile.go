package jexl

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Helper functions the lowered programs call. The runtime environment binds them
// to the state of a single evaluation.
const (
	fnRef    = "jexlRef"
	fnGet    = "jexlGet"
	fnTruthy = "jexlTruthy"
	fnUnary  = "jexlUnary"
	fnBinary = "jexlBinary"
	fnPipe   = "jexlPipe"
)

type helperFunc = func(args ...any) (any, error)

func placeholder(...any) (any, error) { return nil, nil }

var compileEnv = map[string]any{
	fnRef:    helperFunc(placeholder),
	fnGet:    helperFunc(placeholder),
	fnTruthy: helperFunc(placeholder),
	fnUnary:  helperFunc(placeholder),
	fnBinary: helperFunc(placeholder),
	fnPipe:   helperFunc(placeholder),
}

// program is a parsed expression together with its compiled VM program.
type program struct {
	source string
	tree   Node
	vm     *vm.Program
}

func compile(source string) (*program, error) {
	tree, err := Parse(source)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	lower(&sb, tree)

	compiled, err := expr.Compile(sb.String(),
		expr.Env(compileEnv),
		expr.AllowUndefinedVariables(),
	)
	if err != nil {
		return nil, &EvaluationError{Expression: source, Err: fmt.Errorf("compiling lowered program: %w", err)}
	}

	return &program{source: source, tree: tree, vm: compiled}, nil
}

// lower writes node as a fully parenthesized expr-lang expression. Operators with
// JEXL specific semantics are routed through the helper functions.
func lower(sb *strings.Builder, node Node) {
	switch n := node.(type) {
	case *Literal:
		lowerLiteral(sb, n.Value)
	case *ArrayLiteral:
		sb.WriteString("[")
		for i, el := range n.Elements {
			if i > 0 {
				sb.WriteString(", ")
			}
			lower(sb, el)
		}
		sb.WriteString("]")
	case *ObjectLiteral:
		sb.WriteString("{")
		for i, key := range n.Keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(strconv.Quote(key))
			sb.WriteString(": ")
			lower(sb, n.Values[i])
		}
		sb.WriteString("}")
	case *Identifier:
		call(sb, fnRef, func() { sb.WriteString(strconv.Quote(n.Name)) })
	case *Member:
		call(sb, fnGet, func() {
			lower(sb, n.Object)
			sb.WriteString(", ")
			lower(sb, n.Property)
		})
	case *Unary:
		if n.Operator == "!" {
			sb.WriteString("(!")
			truthy(sb, n.Operand)
			sb.WriteString(")")
			return
		}

		call(sb, fnUnary, func() {
			sb.WriteString(strconv.Quote(n.Operator))
			sb.WriteString(", ")
			lower(sb, n.Operand)
		})
	case *Binary:
		switch n.Operator {
		case "&&", "||":
			sb.WriteString("(")
			truthy(sb, n.Left)
			sb.WriteString(" " + n.Operator + " ")
			truthy(sb, n.Right)
			sb.WriteString(")")
		default:
			call(sb, fnBinary, func() {
				sb.WriteString(strconv.Quote(n.Operator))
				sb.WriteString(", ")
				lower(sb, n.Left)
				sb.WriteString(", ")
				lower(sb, n.Right)
			})
		}
	case *Conditional:
		sb.WriteString("(")
		truthy(sb, n.Test)
		sb.WriteString(" ? ")
		lower(sb, n.Consequent)
		sb.WriteString(" : ")
		lower(sb, n.Alternate)
		sb.WriteString(")")
	case *Pipe:
		call(sb, fnPipe, func() {
			sb.WriteString(strconv.Quote(n.Name))
			sb.WriteString(", ")
			lower(sb, n.Subject)
			for _, arg := range n.Args {
				sb.WriteString(", ")
				lower(sb, arg)
			}
		})
	}
}

func lowerLiteral(sb *strings.Builder, value any) {
	switch v := value.(type) {
	case nil:
		sb.WriteString("nil")
	case bool:
		sb.WriteString(strconv.FormatBool(v))
	case string:
		sb.WriteString(strconv.Quote(v))
	case float64:
		text := strconv.FormatFloat(v, 'f', -1, 64)
		if !strings.Contains(text, ".") {
			text += ".0"
		}
		sb.WriteString(text)
	}
}

func truthy(sb *strings.Builder, node Node) {
	call(sb, fnTruthy, func() { lower(sb, node) })
}

func call(sb *strings.Builder, name string, args func()) {
	sb.WriteString(name)
	sb.WriteString("(")
	args()
	sb.WriteString(")")
}
