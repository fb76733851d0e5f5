package jexl

import "fmt"

var binaryPrecedence = map[string]int{
	"||":         10,
	"&&":         10,
	"==":         20,
	"!=":         20,
	"<":          20,
	"<=":         20,
	">":          20,
	">=":         20,
	"in":         20,
	"intersects": 20,
	"+":          30,
	"-":          30,
	"*":          40,
	"/":          40,
	"//":         40,
	"%":          40,
	"^":          50,
}

type parser struct {
	input  string
	tokens []token
	pos    int
}

// Parse turns an expression into its syntax tree.
func Parse(input string) (Node, error) {
	tokens, err := tokenize(input)
	if err != nil {
		return nil, err
	}

	p := &parser{input: input, tokens: tokens}

	if p.peek().kind == tokenEOF {
		return nil, p.errorf(p.peek(), "empty expression")
	}

	node, err := p.parseExpression()
	if err != nil {
		return nil, err
	}

	if tok := p.peek(); tok.kind != tokenEOF {
		return nil, p.errorf(tok, fmt.Sprintf("unexpected %q", tok.text))
	}

	return node, nil
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) advance() token {
	tok := p.tokens[p.pos]
	if tok.kind != tokenEOF {
		p.pos++
	}

	return tok
}

func (p *parser) is(kind tokenKind, text string) bool {
	tok := p.peek()
	return tok.kind == kind && tok.text == text
}

func (p *parser) expect(kind tokenKind, text string) (token, error) {
	tok := p.peek()
	if tok.kind != kind || tok.text != text {
		return tok, p.errorf(tok, fmt.Sprintf("expected %q", text))
	}

	return p.advance(), nil
}

func (p *parser) errorf(tok token, msg string) error {
	if tok.kind == tokenEOF && msg != "empty expression" {
		msg += " but reached end of expression"
	}

	return &ExpressionSyntaxError{Expression: p.input, Position: tok.pos, Message: msg}
}

func (p *parser) parseExpression() (Node, error) {
	test, err := p.parseBinary(0)
	if err != nil {
		return nil, err
	}

	if !p.is(tokenPunct, "?") {
		return test, nil
	}

	question := p.advance()

	consequent, err := p.parseExpression()
	if err != nil {
		return nil, err
	}

	if _, err := p.expect(tokenPunct, ":"); err != nil {
		return nil, err
	}

	alternate, err := p.parseExpression()
	if err != nil {
		return nil, err
	}

	return &Conditional{Offset: question.pos, Test: test, Consequent: consequent, Alternate: alternate}, nil
}

func (p *parser) parseBinary(minPrecedence int) (Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}

	for {
		tok := p.peek()
		if tok.kind != tokenOperator {
			return left, nil
		}

		precedence, ok := binaryPrecedence[tok.text]
		if !ok || precedence <= minPrecedence {
			return left, nil
		}

		p.advance()

		right, err := p.parseBinary(precedence)
		if err != nil {
			return nil, err
		}

		left = &Binary{Offset: tok.pos, Operator: tok.text, Left: left, Right: right}
	}
}

func (p *parser) parseUnary() (Node, error) {
	tok := p.peek()
	if tok.kind == tokenOperator && (tok.text == "!" || tok.text == "-") {
		p.advance()

		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}

		return &Unary{Offset: tok.pos, Operator: tok.text, Operand: operand}, nil
	}

	primary, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}

	return p.parsePostfix(primary)
}

func (p *parser) parsePostfix(node Node) (Node, error) {
	for {
		tok := p.peek()
		if tok.kind != tokenPunct {
			return node, nil
		}

		switch tok.text {
		case ".":
			p.advance()

			name := p.advance()
			if name.kind != tokenIdentifier && !(name.kind == tokenOperator && isWord(name.text)) {
				return nil, p.errorf(name, "expected property name after '.'")
			}

			node = &Member{Offset: tok.pos, Object: node, Property: &Literal{Offset: name.pos, Value: name.text}}
		case "[":
			p.advance()

			property, err := p.parseExpression()
			if err != nil {
				return nil, err
			}

			if _, err := p.expect(tokenPunct, "]"); err != nil {
				return nil, err
			}

			node = &Member{Offset: tok.pos, Object: node, Property: property}
		case "|":
			p.advance()

			name := p.advance()
			if name.kind != tokenIdentifier && !(name.kind == tokenOperator && isWord(name.text)) {
				return nil, p.errorf(name, "expected transform name after '|'")
			}

			transform := &Pipe{Offset: tok.pos, Subject: node, Name: name.text}

			if p.is(tokenPunct, "(") {
				args, err := p.parseList("(", ")")
				if err != nil {
					return nil, err
				}

				transform.Args = args
			}

			node = transform
		default:
			return node, nil
		}
	}
}

func (p *parser) parsePrimary() (Node, error) {
	tok := p.peek()

	switch tok.kind {
	case tokenString, tokenNumber:
		p.advance()
		return &Literal{Offset: tok.pos, Value: tok.value}, nil
	case tokenIdentifier:
		p.advance()

		switch tok.text {
		case "true":
			return &Literal{Offset: tok.pos, Value: true}, nil
		case "false":
			return &Literal{Offset: tok.pos, Value: false}, nil
		case "null":
			return &Literal{Offset: tok.pos, Value: nil}, nil
		}

		return &Identifier{Offset: tok.pos, Name: tok.text}, nil
	case tokenPunct:
		switch tok.text {
		case "(":
			p.advance()

			inner, err := p.parseExpression()
			if err != nil {
				return nil, err
			}

			if _, err := p.expect(tokenPunct, ")"); err != nil {
				return nil, err
			}

			return inner, nil
		case "[":
			elements, err := p.parseList("[", "]")
			if err != nil {
				return nil, err
			}

			return &ArrayLiteral{Offset: tok.pos, Elements: elements}, nil
		case "{":
			return p.parseObject()
		}
	case tokenEOF:
		return nil, p.errorf(tok, "expected a value")
	}

	return nil, p.errorf(tok, fmt.Sprintf("unexpected %q", tok.text))
}

func (p *parser) parseList(open, closing string) ([]Node, error) {
	if _, err := p.expect(tokenPunct, open); err != nil {
		return nil, err
	}

	var items []Node

	for !p.is(tokenPunct, closing) {
		item, err := p.parseExpression()
		if err != nil {
			return nil, err
		}

		items = append(items, item)

		if !p.is(tokenPunct, ",") {
			break
		}

		p.advance()
	}

	if _, err := p.expect(tokenPunct, closing); err != nil {
		return nil, err
	}

	return items, nil
}

func (p *parser) parseObject() (Node, error) {
	open, err := p.expect(tokenPunct, "{")
	if err != nil {
		return nil, err
	}

	object := &ObjectLiteral{Offset: open.pos}

	for !p.is(tokenPunct, "}") {
		key := p.advance()

		switch key.kind {
		case tokenString:
			object.Keys = append(object.Keys, key.value.(string))
		case tokenIdentifier:
			object.Keys = append(object.Keys, key.text)
		default:
			return nil, p.errorf(key, "expected object key")
		}

		if _, err := p.expect(tokenPunct, ":"); err != nil {
			return nil, err
		}

		value, err := p.parseExpression()
		if err != nil {
			return nil, err
		}

		object.Values = append(object.Values, value)

		if !p.is(tokenPunct, ",") {
			break
		}

		p.advance()
	}

	if _, err := p.expect(tokenPunct, "}"); err != nil {
		return nil, err
	}

	return object, nil
}

func isWord(text string) bool {
	return text == "in" || text == "intersects"
}
