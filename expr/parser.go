package expr

// Grammar, lowest precedence first:
//
//	expr        := or_expr
//	or_expr     := and_expr ( "OR" and_expr )*
//	and_expr    := not_expr ( "AND" not_expr )*
//	not_expr    := "NOT" not_expr | primary
//	primary     := comparison | "(" expr ")"
//	comparison  := IDENT comp_op literal
//	comp_op     := ">" | "<" | ">=" | "<=" | "=" | "!="
//	literal     := NUMBER | STRING | "TRUE" | "FALSE"
//
// One token of lookahead decides every production, so the parser never
// backtracks.

// parser holds a token slice and a forward cursor. The slice always ends
// with TokenEOF, so cur never runs off the end.
type parser struct {
	tokens []Token
	pos    int
}

// Parse tokenizes and parses a rule string.
func Parse(input string) (Node, error) {
	tokens, err := Tokenize(input)
	if err != nil {
		return nil, err
	}
	return ParseTokens(tokens)
}

// ParseTokens parses a token sequence produced by Tokenize. A missing
// trailing TokenEOF is tolerated.
func ParseTokens(tokens []Token) (Node, error) {
	if len(tokens) == 0 || tokens[len(tokens)-1].Kind != TokenEOF {
		end := 0
		if len(tokens) > 0 {
			last := tokens[len(tokens)-1]
			end = last.Pos + len(last.Text)
		}
		tokens = append(append([]Token(nil), tokens...), Token{Kind: TokenEOF, Pos: end})
	}

	p := &parser{tokens: tokens}
	n, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if tok := p.cur(); tok.Kind != TokenEOF {
		return nil, p.errorf(tok, "AND, OR or end of input")
	}
	return n, nil
}

func (p *parser) cur() Token {
	return p.tokens[p.pos]
}

func (p *parser) advance() Token {
	tok := p.tokens[p.pos]
	if tok.Kind != TokenEOF {
		p.pos++
	}
	return tok
}

func (p *parser) errorf(found Token, expected string) *SyntaxError {
	return &SyntaxError{Pos: found.Pos, Expected: expected, Found: found.describe()}
}

func (p *parser) parseOr() (Node, error) {
	return p.parseJunction(TokenOr, Or, p.parseAnd)
}

func (p *parser) parseAnd() (Node, error) {
	return p.parseJunction(TokenAnd, And, p.parseNot)
}

// parseJunction parses operand (sep operand)* and flattens the run into a
// single Logical node. A run of one operand is returned as-is.
func (p *parser) parseJunction(sep TokenKind, op LogicalOp, operand func() (Node, error)) (Node, error) {
	first, err := operand()
	if err != nil {
		return nil, err
	}
	if p.cur().Kind != sep {
		return first, nil
	}

	children := []Node{first}
	for p.cur().Kind == sep {
		p.advance()
		next, err := operand()
		if err != nil {
			return nil, err
		}
		children = append(children, next)
	}
	return &Logical{Op: op, Children: children}, nil
}

func (p *parser) parseNot() (Node, error) {
	if p.cur().Kind != TokenNot {
		return p.parsePrimary()
	}
	p.advance()
	child, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	return &Not{Child: child}, nil
}

func (p *parser) parsePrimary() (Node, error) {
	tok := p.cur()
	switch tok.Kind {
	case TokenLParen:
		p.advance()
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if closing := p.cur(); closing.Kind != TokenRParen {
			return nil, p.errorf(closing, "')'")
		}
		p.advance()
		return inner, nil
	case TokenIdent:
		return p.parseComparison()
	default:
		return nil, p.errorf(tok, "identifier, NOT or '('")
	}
}

func (p *parser) parseComparison() (Node, error) {
	attr := p.advance()

	opTok := p.cur()
	if !opTok.Kind.IsComparison() {
		return nil, p.errorf(opTok, "comparison operator")
	}
	p.advance()

	litTok := p.cur()
	var lit Literal
	switch litTok.Kind {
	case TokenNumber:
		lit = Number(litTok.Num)
	case TokenString:
		lit = String(litTok.Text)
	case TokenBool:
		lit = Bool(litTok.Bool)
	default:
		return nil, p.errorf(litTok, "number, string, TRUE or FALSE")
	}
	p.advance()

	return &Comparison{
		Attribute: attr.Text,
		Op:        CompareOp(opTok.Kind.String()),
		Value:     lit,
	}, nil
}
