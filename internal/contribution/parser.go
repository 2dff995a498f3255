package contribution

import (
	"fmt"
	"regexp"
	"strconv"
)

// SyntaxError reports a malformed when-expression.
type SyntaxError struct {
	Pos int
	Msg string
}

// Error implements the error interface.
func (e *SyntaxError) Error() string {
	return fmt.Sprintf("when-expression: %s at offset %d", e.Msg, e.Pos)
}

// node is a compiled when-expression.
type node interface {
	eval(ctx Context) any
}

type (
	orNode    struct{ left, right node }
	andNode   struct{ left, right node }
	notNode   struct{ operand node }
	eqNode    struct{ left, right node }
	neqNode   struct{ left, right node }
	inNode    struct{ left, right node }
	matchNode struct {
		left node
		re   *regexp.Regexp
	}
	keyNode     struct{ key string }
	literalNode struct{ value any }
)

type parser struct {
	toks []token
	pos  int
}

func parse(src string) (node, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	n, err := p.or()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, &SyntaxError{Pos: tok.pos, Msg: fmt.Sprintf("unexpected %s", tok.kind)}
	}
	return n, nil
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) advance() token {
	tok := p.toks[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) or() (node, error) {
	left, err := p.and()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokOr {
		p.advance()
		right, err := p.and()
		if err != nil {
			return nil, err
		}
		left = orNode{left, right}
	}
	return left, nil
}

func (p *parser) and() (node, error) {
	left, err := p.unary()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokAnd {
		p.advance()
		right, err := p.unary()
		if err != nil {
			return nil, err
		}
		left = andNode{left, right}
	}
	return left, nil
}

func (p *parser) unary() (node, error) {
	if p.peek().kind == tokNot {
		p.advance()
		operand, err := p.unary()
		if err != nil {
			return nil, err
		}
		return notNode{operand}, nil
	}
	return p.comparison()
}

func (p *parser) comparison() (node, error) {
	left, err := p.primary()
	if err != nil {
		return nil, err
	}

	switch tok := p.peek(); tok.kind {
	case tokEq, tokNeq:
		p.advance()
		right, err := p.operand(true)
		if err != nil {
			return nil, err
		}
		if tok.kind == tokEq {
			return eqNode{left, right}, nil
		}
		return neqNode{left, right}, nil

	case tokIn:
		p.advance()
		right, err := p.operand(false)
		if err != nil {
			return nil, err
		}
		return inNode{left, right}, nil

	case tokMatch:
		p.advance()
		rhs := p.advance()
		if rhs.kind != tokRegex && rhs.kind != tokString {
			return nil, &SyntaxError{Pos: rhs.pos, Msg: "expected regular expression after =~"}
		}
		re, err := regexp.Compile(rhs.text)
		if err != nil {
			return nil, &SyntaxError{Pos: rhs.pos, Msg: err.Error()}
		}
		return matchNode{left, re}, nil
	}
	return left, nil
}

// operand parses the right side of a comparison. With bareLiteral set an
// identifier is read as a string literal rather than a context key.
func (p *parser) operand(bareLiteral bool) (node, error) {
	tok := p.peek()
	if bareLiteral && tok.kind == tokIdent {
		p.advance()
		return literalNode{tok.text}, nil
	}
	return p.primary()
}

func (p *parser) primary() (node, error) {
	tok := p.advance()
	switch tok.kind {
	case tokLParen:
		n, err := p.or()
		if err != nil {
			return nil, err
		}
		if closing := p.advance(); closing.kind != tokRParen {
			return nil, &SyntaxError{Pos: closing.pos, Msg: "expected )"}
		}
		return n, nil
	case tokIdent:
		return keyNode{tok.text}, nil
	case tokString:
		return literalNode{tok.text}, nil
	case tokNumber:
		f, err := strconv.ParseFloat(tok.text, 64)
		if err != nil {
			return nil, &SyntaxError{Pos: tok.pos, Msg: fmt.Sprintf("bad number %q", tok.text)}
		}
		return literalNode{f}, nil
	case tokTrue:
		return literalNode{true}, nil
	case tokFalse:
		return literalNode{false}, nil
	case tokEOF:
		return nil, &SyntaxError{Pos: tok.pos, Msg: "unexpected end of expression"}
	default:
		return nil, &SyntaxError{Pos: tok.pos, Msg: fmt.Sprintf("unexpected %s", tok.kind)}
	}
}
