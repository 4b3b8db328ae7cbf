package argspec

import (
	"fmt"
	"strconv"
	"strings"
)

type Format int

const (
	FormatAuto = Format(iota)
	FormatChar
	FormatString
	FormatFloat
	FormatEnum
)

func (format Format) String() string {
	switch format {
	case FormatAuto:
		return "auto"
	case FormatChar:
		return "char"
	case FormatString:
		return "string"
	case FormatFloat:
		return "float"
	case FormatEnum:
		return "enum"
	default:
		return fmt.Sprintf("unknown(%d)", int(format))
	}
}

type TokenKind int

const (
	ArgumentToken = TokenKind(iota)
	FloatArgumentToken
	ReturnValueToken
)

const (
	argumentPrefix      = "arg"
	floatArgumentPrefix = "fparg"
	returnValueName     = "retval"
	specPrefix          = "@"
	enumSuffixPrefix    = "e:"
)

// Token is a single entry of a spec string:
//
//	argN, argN/c, argN/s, argN/e:NAME
//	fpargM/SIZE
//	retval, retval/c, retval/s, retval/e:NAME
type Token struct {
	Kind TokenKind

	// Position among arguments of the same kind (1-based).  Unused by
	// return value tokens.
	Index int

	Format Format

	// Only applicable to float arguments.
	BitSize int

	// Only applicable to enum formats.
	EnumName string
}

func (token Token) String() string {
	builder := strings.Builder{}
	token.writeTo(&builder)
	return builder.String()
}

func (token Token) writeTo(builder *strings.Builder) {
	switch token.Kind {
	case FloatArgumentToken:
		builder.WriteString(floatArgumentPrefix)
		builder.WriteString(strconv.Itoa(token.Index))
		if token.BitSize > 0 {
			builder.WriteString("/")
			builder.WriteString(strconv.Itoa(token.BitSize))
		}
		return
	case ReturnValueToken:
		builder.WriteString(returnValueName)
	default:
		builder.WriteString(argumentPrefix)
		builder.WriteString(strconv.Itoa(token.Index))
	}

	switch token.Format {
	case FormatChar:
		builder.WriteString("/c")
	case FormatString:
		builder.WriteString("/s")
	case FormatEnum:
		builder.WriteString("/")
		builder.WriteString(enumSuffixPrefix)
		builder.WriteString(token.EnumName)
	}
}

// Spec is an ordered list of tokens.  A nil / empty spec means no format
// information is available.
type Spec []Token

func (spec Spec) String() string {
	if len(spec) == 0 {
		return ""
	}

	builder := strings.Builder{}
	builder.WriteString(specPrefix)
	for idx, token := range spec {
		if idx > 0 {
			builder.WriteString(",")
		}
		token.writeTo(&builder)
	}
	return builder.String()
}

// ParseSpec parses a spec string (e.g., "@arg1/s,fparg1/64,arg2/e:mode").
func ParseSpec(value string) (Spec, error) {
	body, ok := strings.CutPrefix(value, specPrefix)
	if !ok {
		return nil, fmt.Errorf("%w (%s): missing %s prefix", ErrInvalidSpec, value, specPrefix)
	}

	spec := Spec{}
	for _, field := range strings.Split(body, ",") {
		token, err := parseToken(field)
		if err != nil {
			return nil, fmt.Errorf("%w (%s): %w", ErrInvalidSpec, value, err)
		}
		spec = append(spec, token)
	}

	return spec, nil
}

func parseToken(field string) (Token, error) {
	name, suffix, hasSuffix := strings.Cut(field, "/")

	token := Token{}
	switch {
	case name == returnValueName:
		token.Kind = ReturnValueToken
	case strings.HasPrefix(name, floatArgumentPrefix):
		token.Kind = FloatArgumentToken
		token.Format = FormatFloat
		name = name[len(floatArgumentPrefix):]
	case strings.HasPrefix(name, argumentPrefix):
		token.Kind = ArgumentToken
		name = name[len(argumentPrefix):]
	default:
		return Token{}, fmt.Errorf("unknown token (%s)", field)
	}

	if token.Kind != ReturnValueToken {
		index, err := strconv.Atoi(name)
		if err != nil || index <= 0 || strings.HasPrefix(name, "+") {
			return Token{}, fmt.Errorf("invalid index in token (%s)", field)
		}
		token.Index = index
	}

	if !hasSuffix {
		return token, nil
	}

	if token.Kind == FloatArgumentToken {
		size, err := strconv.Atoi(suffix)
		if err != nil || (size != 32 && size != 64) {
			return Token{}, fmt.Errorf("invalid float size in token (%s)", field)
		}
		token.BitSize = size
		return token, nil
	}

	switch {
	case suffix == "c":
		token.Format = FormatChar
	case suffix == "s":
		token.Format = FormatString
	case strings.HasPrefix(suffix, enumSuffixPrefix):
		token.Format = FormatEnum
		token.EnumName = suffix[len(enumSuffixPrefix):]
		if token.EnumName == "" {
			return Token{}, fmt.Errorf("missing enum name in token (%s)", field)
		}
	default:
		return Token{}, fmt.Errorf("invalid suffix in token (%s)", field)
	}

	return token, nil
}
