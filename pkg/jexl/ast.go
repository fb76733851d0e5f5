package jexl

// Node is an element of a parsed JEXL expression.
type Node interface {
	Pos() int
}

type (
	// Literal is a string, number (float64), bool or null constant.
	Literal struct {
		Offset int
		Value  any
	}

	ArrayLiteral struct {
		Offset   int
		Elements []Node
	}

	ObjectLiteral struct {
		Offset int
		Keys   []string
		Values []Node
	}

	Identifier struct {
		Offset int
		Name   string
	}

	// Member is `object.name` or `object[expr]`.
	Member struct {
		Offset   int
		Object   Node
		Property Node
	}

	Unary struct {
		Offset   int
		Operator string
		Operand  Node
	}

	Binary struct {
		Offset   int
		Operator string
		Left     Node
		Right    Node
	}

	Conditional struct {
		Offset     int
		Test       Node
		Consequent Node
		Alternate  Node
	}

	// Pipe is `subject|name` or `subject|name(args...)`.
	Pipe struct {
		Offset  int
		Subject Node
		Name    string
		Args    []Node
	}
)

func (n *Literal) Pos() int       { return n.Offset }
func (n *ArrayLiteral) Pos() int  { return n.Offset }
func (n *ObjectLiteral) Pos() int { return n.Offset }
func (n *Identifier) Pos() int    { return n.Offset }
func (n *Member) Pos() int        { return n.Offset }
func (n *Unary) Pos() int         { return n.Offset }
func (n *Binary) Pos() int        { return n.Offset }
func (n *Conditional) Pos() int   { return n.Offset }
func (n *Pipe) Pos() int          { return n.Offset }

// Walk calls fn for node and every node below it, depth first.
func Walk(node Node, fn func(Node)) {
	if node == nil {
		return
	}

	fn(node)

	switch n := node.(type) {
	case *ArrayLiteral:
		for _, el := range n.Elements {
			Walk(el, fn)
		}
	case *ObjectLiteral:
		for _, v := range n.Values {
			Walk(v, fn)
		}
	case *Member:
		Walk(n.Object, fn)
		Walk(n.Property, fn)
	case *Unary:
		Walk(n.Operand, fn)
	case *Binary:
		Walk(n.Left, fn)
		Walk(n.Right, fn)
	case *Conditional:
		Walk(n.Test, fn)
		Walk(n.Consequent, fn)
		Walk(n.Alternate, fn)
	case *Pipe:
		Walk(n.Subject, fn)
		for _, arg := range n.Args {
			Walk(arg, fn)
		}
	}
}
