package condition

import (
	"fmt"
	"strings"
)

// pathRoot is the only identifier a field path may start with.
const pathRoot = "device"

type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) unexpected(t token) error {
	return fmt.Errorf("%w: unexpected %s at offset %d", ErrSyntax, t, t.pos)
}

func parse(src string) (node, error) {
	toks, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	root, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, p.unexpected(t)
	}
	return root, nil
}

func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().is("||") || p.peek().is("or") {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = orNode{left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.peek().is("&&") || p.peek().is("and") {
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = andNode{left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (node, error) {
	if p.peek().is("!") || p.peek().is("not") {
		p.next()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return notNode{operand: operand}, nil
	}
	return p.parseCompare()
}

func (p *parser) parseCompare() (node, error) {
	left, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	t := p.peek()
	if t.kind != tokOp {
		return left, nil
	}
	switch t.text {
	case "==", "!=", "<", "<=", ">", ">=":
	default:
		return left, nil
	}
	p.next()
	right, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	return compareNode{op: t.text, left: left, right: right}, nil
}

func (p *parser) parseOperand() (node, error) {
	t := p.next()
	switch t.kind {
	case tokLParen:
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if closing := p.next(); closing.kind != tokRParen {
			return nil, p.unexpected(closing)
		}
		return inner, nil
	case tokNumber:
		return literalNode{value: t.num}, nil
	case tokString:
		return literalNode{value: t.text}, nil
	case tokIdent:
		switch strings.ToLower(t.text) {
		case "true":
			return literalNode{value: true}, nil
		case "false":
			return literalNode{value: false}, nil
		case "null", "none":
			return literalNode{value: nil}, nil
		case pathRoot:
			return p.parsePath(t)
		}
		return nil, fmt.Errorf("%w: unknown identifier %q at offset %d (paths start with %q)",
			ErrSyntax, t.text, t.pos, pathRoot)
	}
	return nil, p.unexpected(t)
}

// parsePath reads the ".field" segments following "device".
func (p *parser) parsePath(root token) (node, error) {
	var fields []string
	for p.peek().kind == tokDot {
		p.next()
		seg := p.next()
		if seg.kind != tokIdent {
			return nil, p.unexpected(seg)
		}
		fields = append(fields, seg.text)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: %q at offset %d needs a field, e.g. device.power", ErrSyntax, root.text, root.pos)
	}
	return pathNode{fields: fields}, nil
}
