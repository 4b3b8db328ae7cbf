package enums

import (
	"fmt"
	"unicode"
	"unicode/utf8"
)

type tokenType int

const (
	tokenEOF tokenType = iota
	tokenWord
	tokenLBrace
	tokenRBrace
	tokenComma
	tokenAssign
	tokenSemicolon
)

var tokenNames = map[tokenType]string{
	tokenEOF:       "end of input",
	tokenWord:      "word",
	tokenLBrace:    "'{'",
	tokenRBrace:    "'}'",
	tokenComma:     "','",
	tokenAssign:    "'='",
	tokenSemicolon: "';'",
}

func (tt tokenType) String() string {
	name, ok := tokenNames[tt]
	if ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", int(tt))
}

type token struct {
	tokenType
	value    string
	position int
}

func (tok token) String() string {
	if tok.tokenType == tokenWord {
		return fmt.Sprintf("%q", tok.value)
	}
	return tok.tokenType.String()
}

var punctuations = map[rune]tokenType{
	'{': tokenLBrace,
	'}': tokenRBrace,
	',': tokenComma,
	'=': tokenAssign,
	';': tokenSemicolon,
}

// Words are maximal runs of characters which are neither whitespace nor
// punctuation, hence enum names may contain characters such as '/' or ':'.
type lexer struct {
	input    string
	position int
}

func (lex *lexer) next() token {
	for lex.position < len(lex.input) {
		char, size := utf8.DecodeRuneInString(lex.input[lex.position:])
		if !unicode.IsSpace(char) {
			break
		}
		lex.position += size
	}

	start := lex.position
	if start == len(lex.input) {
		return token{tokenType: tokenEOF, position: start}
	}

	char, size := utf8.DecodeRuneInString(lex.input[start:])
	punct, ok := punctuations[char]
	if ok {
		lex.position += size
		return token{tokenType: punct, value: string(char), position: start}
	}

	for lex.position < len(lex.input) {
		char, size := utf8.DecodeRuneInString(lex.input[lex.position:])
		_, ok := punctuations[char]
		if ok || unicode.IsSpace(char) {
			break
		}
		lex.position += size
	}

	return token{
		tokenType: tokenWord,
		value:     lex.input[start:lex.position],
		position:  start,
	}
}
