package enums

import (
	"fmt"
	"strconv"
)

var (
	ErrSyntax = fmt.Errorf("invalid enum declaration")
)

type parser struct {
	lex *lexer

	current token
}

func newParser(input string) *parser {
	p := &parser{
		lex: &lexer{input: input},
	}
	p.current = p.lex.next()
	return p
}

func (p *parser) advance() token {
	tok := p.current
	p.current = p.lex.next()
	return tok
}

func (p *parser) expect(tt tokenType) (token, error) {
	if p.current.tokenType != tt {
		return token{}, p.unexpected(tt.String())
	}
	return p.advance(), nil
}

func (p *parser) unexpected(expected string) error {
	return fmt.Errorf(
		"%w: expected %s at offset %d, found %s",
		ErrSyntax,
		expected,
		p.current.position,
		p.current)
}

// ParseDeclarations parses one or more enum declarations of the form
//
//	enum NAME { A, B = 5, C = -1, D = 0x10 }
//
// Declarations may be separated by ';'.  A member without an explicit value
// takes the previous member's value plus one (the first defaults to 0).
func ParseDeclarations(input string) ([]*Definition, error) {
	p := newParser(input)

	result := []*Definition{}
	for {
		for p.current.tokenType == tokenSemicolon {
			p.advance()
		}

		if p.current.tokenType == tokenEOF {
			break
		}

		def, err := p.parseDeclaration()
		if err != nil {
			return nil, err
		}

		result = append(result, def)
	}

	if len(result) == 0 {
		return nil, fmt.Errorf("%w: no enum declaration found", ErrSyntax)
	}

	return result, nil
}

func (p *parser) parseDeclaration() (*Definition, error) {
	if p.current.tokenType != tokenWord || p.current.value != "enum" {
		return nil, p.unexpected("\"enum\"")
	}
	p.advance()

	name, err := p.expect(tokenWord)
	if err != nil {
		return nil, err
	}

	_, err = p.expect(tokenLBrace)
	if err != nil {
		return nil, err
	}

	def := &Definition{
		Name: name.value,
	}

	names := map[string]struct{}{}
	next := int64(0)
	for p.current.tokenType != tokenRBrace {
		memberName, err := p.expect(tokenWord)
		if err != nil {
			return nil, err
		}

		_, ok := names[memberName.value]
		if ok {
			return nil, fmt.Errorf(
				"%w: duplicate member %s in enum %s",
				ErrSyntax,
				memberName.value,
				def.Name)
		}
		names[memberName.value] = struct{}{}

		value := next
		if p.current.tokenType == tokenAssign {
			p.advance()

			valueToken, err := p.expect(tokenWord)
			if err != nil {
				return nil, err
			}

			value, err = strconv.ParseInt(valueToken.value, 0, 64)
			if err != nil {
				return nil, fmt.Errorf(
					"%w: invalid value %q for %s: %w",
					ErrSyntax,
					valueToken.value,
					memberName.value,
					err)
			}
		}

		def.Members = append(
			def.Members,
			Member{
				Name:  memberName.value,
				Value: value,
			})
		next = value + 1

		if p.current.tokenType == tokenComma {
			p.advance()
		} else if p.current.tokenType != tokenRBrace {
			return nil, p.unexpected("',' or '}'")
		}
	}
	p.advance() // '}'

	return def, nil
}
