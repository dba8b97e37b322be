package modelfile

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"normcheck/internal/domain"
	"normcheck/internal/formula"
)

// The expression language of model files:
//
//	expr     := or ( "->" expr )?
//	or       := and ( "||" and )*
//	and      := unary ( "&&" unary )*
//	unary    := "!" unary | primary
//	primary  := "(" expr ")" | "true" | "false" | quantified | atom
//	quantified := ("forall"|"exists") IDENT ":" IDENT "." expr
//	atom     := IDENT "(" IDENT ("," IDENT)* ")" ( cmp NUMBER )?
//
// Quantified variables range over the named sort; an atom followed by a
// comparison operator refers to a numeric attribute. Parsing is two-stage:
// a schema-independent tree first, then compilation with validation against
// the frozen schema so unknown references surface as *domain.SchemaError.

type token struct {
	kind string // ident, number, punct, eof
	text string
	pos  int
}

func lex(src string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(src) {
		c := rune(src[i])
		switch {
		case unicode.IsSpace(c):
			i++
		case unicode.IsLetter(c) || c == '_':
			j := i
			for j < len(src) && (unicode.IsLetter(rune(src[j])) || unicode.IsDigit(rune(src[j])) || src[j] == '_') {
				j++
			}
			toks = append(toks, token{kind: "ident", text: src[i:j], pos: i})
			i = j
		case unicode.IsDigit(c) || (c == '-' && i+1 < len(src) && unicode.IsDigit(rune(src[i+1]))):
			j := i + 1
			for j < len(src) && unicode.IsDigit(rune(src[j])) {
				j++
			}
			toks = append(toks, token{kind: "number", text: src[i:j], pos: i})
			i = j
		default:
			for _, op := range []string{"->", "&&", "||", "<=", ">=", "==", "!="} {
				if strings.HasPrefix(src[i:], op) {
					toks = append(toks, token{kind: "punct", text: op, pos: i})
					i += len(op)
					goto next
				}
			}
			switch c {
			case '(', ')', ',', '!', '.', ':', '<', '>':
				toks = append(toks, token{kind: "punct", text: string(c), pos: i})
				i++
			default:
				return nil, fmt.Errorf("unexpected character %q at offset %d", c, i)
			}
		next:
		}
	}
	return append(toks, token{kind: "eof", pos: len(src)}), nil
}

// Parse tree nodes.
type exprNode interface{ node() }

type constNode struct{ value bool }
type notNode struct{ arg exprNode }
type binNode struct {
	op   string // &&, ||, ->
	l, r exprNode
}
type atomNode struct {
	name string
	args []string
}
type cmpNode struct {
	attr  atomNode
	op    formula.CmpOp
	bound int
}
type quantNode struct {
	universal bool
	variable  string
	sortName  string
	body      exprNode
}

func (constNode) node() {}
func (notNode) node()   {}
func (binNode) node()   {}
func (atomNode) node()  {}
func (cmpNode) node()   {}
func (quantNode) node() {}

type exprParser struct {
	toks []token
	idx  int
	src  string
}

// parseExpr turns source text into a schema-independent tree.
func parseExpr(src string) (exprNode, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", src, err)
	}
	p := &exprParser{toks: toks, src: src}
	node, err := p.expr()
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", src, err)
	}
	if p.peek().kind != "eof" {
		return nil, fmt.Errorf("parse %q: trailing input at offset %d", src, p.peek().pos)
	}
	return node, nil
}

func (p *exprParser) peek() token { return p.toks[p.idx] }

func (p *exprParser) take() token {
	t := p.toks[p.idx]
	if t.kind != "eof" {
		p.idx++
	}
	return t
}

func (p *exprParser) accept(text string) bool {
	if p.peek().kind == "punct" && p.peek().text == text {
		p.idx++
		return true
	}
	return false
}

func (p *exprParser) expect(text string) error {
	if !p.accept(text) {
		return fmt.Errorf("expected %q at offset %d", text, p.peek().pos)
	}
	return nil
}

func (p *exprParser) expr() (exprNode, error) {
	l, err := p.or()
	if err != nil {
		return nil, err
	}
	if p.accept("->") {
		r, err := p.expr() // right associative
		if err != nil {
			return nil, err
		}
		return binNode{op: "->", l: l, r: r}, nil
	}
	return l, nil
}

func (p *exprParser) or() (exprNode, error) {
	l, err := p.and()
	if err != nil {
		return nil, err
	}
	for p.accept("||") {
		r, err := p.and()
		if err != nil {
			return nil, err
		}
		l = binNode{op: "||", l: l, r: r}
	}
	return l, nil
}

func (p *exprParser) and() (exprNode, error) {
	l, err := p.unary()
	if err != nil {
		return nil, err
	}
	for p.accept("&&") {
		r, err := p.unary()
		if err != nil {
			return nil, err
		}
		l = binNode{op: "&&", l: l, r: r}
	}
	return l, nil
}

func (p *exprParser) unary() (exprNode, error) {
	if p.accept("!") {
		arg, err := p.unary()
		if err != nil {
			return nil, err
		}
		return notNode{arg: arg}, nil
	}
	return p.primary()
}

func (p *exprParser) primary() (exprNode, error) {
	if p.accept("(") {
		inner, err := p.expr()
		if err != nil {
			return nil, err
		}
		if err := p.expect(")"); err != nil {
			return nil, err
		}
		return inner, nil
	}

	t := p.take()
	if t.kind != "ident" {
		return nil, fmt.Errorf("expected identifier at offset %d", t.pos)
	}
	switch t.text {
	case "true":
		return constNode{value: true}, nil
	case "false":
		return constNode{value: false}, nil
	case "forall", "exists":
		return p.quantified(t.text == "forall")
	}
	return p.atomOrCmp(t.text)
}

func (p *exprParser) quantified(universal bool) (exprNode, error) {
	v := p.take()
	if v.kind != "ident" {
		return nil, fmt.Errorf("expected quantified variable at offset %d", v.pos)
	}
	if err := p.expect(":"); err != nil {
		return nil, err
	}
	s := p.take()
	if s.kind != "ident" {
		return nil, fmt.Errorf("expected sort name at offset %d", s.pos)
	}
	if err := p.expect("."); err != nil {
		return nil, err
	}
	body, err := p.expr()
	if err != nil {
		return nil, err
	}
	return quantNode{universal: universal, variable: v.text, sortName: s.text, body: body}, nil
}

func (p *exprParser) atomOrCmp(name string) (exprNode, error) {
	if err := p.expect("("); err != nil {
		return nil, err
	}
	var args []string
	if !p.accept(")") {
		for {
			a := p.take()
			if a.kind != "ident" {
				return nil, fmt.Errorf("expected argument at offset %d", a.pos)
			}
			args = append(args, a.text)
			if p.accept(")") {
				break
			}
			if err := p.expect(","); err != nil {
				return nil, err
			}
		}
	}
	atom := atomNode{name: name, args: args}

	var op formula.CmpOp
	switch {
	case p.accept("<"):
		op = formula.Lt
	case p.accept("<="):
		op = formula.Le
	case p.accept("=="):
		op = formula.Eq
	case p.accept("!="):
		op = formula.Ne
	case p.accept(">="):
		op = formula.Ge
	case p.accept(">"):
		op = formula.Gt
	default:
		return atom, nil
	}

	n := p.take()
	if n.kind != "number" {
		return nil, fmt.Errorf("expected number at offset %d", n.pos)
	}
	bound, err := strconv.Atoi(n.text)
	if err != nil {
		return nil, err
	}
	return cmpNode{attr: atom, op: op, bound: bound}, nil
}

// compile turns a parse tree into a formula, resolving quantified variables
// through env and validating every reference against the schema.
func compile(schema *domain.Schema, node exprNode, env map[string]domain.Entity) (formula.Formula, error) {
	switch n := node.(type) {
	case constNode:
		if n.value {
			return formula.True, nil
		}
		return formula.False, nil
	case notNode:
		inner, err := compile(schema, n.arg, env)
		if err != nil {
			return nil, err
		}
		return formula.Not(inner), nil
	case binNode:
		l, err := compile(schema, n.l, env)
		if err != nil {
			return nil, err
		}
		r, err := compile(schema, n.r, env)
		if err != nil {
			return nil, err
		}
		switch n.op {
		case "&&":
			return formula.And(l, r), nil
		case "||":
			return formula.Or(l, r), nil
		case "->":
			return formula.Implies(l, r), nil
		}
		return nil, fmt.Errorf("unknown operator %q", n.op)
	case atomNode:
		tuple, err := resolveArgs(n.args, env)
		if err != nil {
			return nil, err
		}
		return formula.Atom(schema, n.name, tuple...)
	case cmpNode:
		tuple, err := resolveArgs(n.attr.args, env)
		if err != nil {
			return nil, err
		}
		return formula.AttrCmp(schema, n.attr.name, tuple, n.op, n.bound)
	case quantNode:
		body := func(e domain.Entity) (formula.Formula, error) {
			inner := make(map[string]domain.Entity, len(env)+1)
			for k, v := range env {
				inner[k] = v
			}
			inner[n.variable] = e
			return compile(schema, n.body, inner)
		}
		if n.universal {
			return formula.Forall(schema, n.sortName, body)
		}
		return formula.Exists(schema, n.sortName, body)
	}
	return nil, fmt.Errorf("unknown expression node %T", node)
}

func resolveArgs(args []string, env map[string]domain.Entity) ([]domain.Entity, error) {
	out := make([]domain.Entity, len(args))
	for i, a := range args {
		if e, ok := env[a]; ok {
			out[i] = e
			continue
		}
		out[i] = domain.Entity(a)
	}
	return out, nil
}

// CompileExpr parses and compiles an expression against a frozen schema.
func CompileExpr(schema *domain.Schema, src string) (formula.Formula, error) {
	node, err := parseExpr(src)
	if err != nil {
		return nil, err
	}
	return compile(schema, node, nil)
}
