// Package enums maintains named enumeration definitions which are used to
// render raw integer values (e.g., traced function arguments) symbolically.
package enums

import (
	"math/bits"
	"strconv"
	"strings"
)

type Member struct {
	Name  string
	Value int64
}

type Definition struct {
	Name    string
	Members []Member
}

// String renders the members as NAME=VALUE pairs joined by ','.
func (def *Definition) String() string {
	builder := strings.Builder{}
	for idx, member := range def.Members {
		if idx > 0 {
			builder.WriteString(",")
		}
		builder.WriteString(member.Name)
		builder.WriteString("=")
		builder.WriteString(strconv.FormatInt(member.Value, 10))
	}
	return builder.String()
}

// Declaration renders the definition in the form accepted by
// ParseDeclarations.
func (def *Definition) Declaration() string {
	return "enum " + def.Name + " { " + def.String() + " }"
}

func (def *Definition) Value(member string) (int64, bool) {
	for _, m := range def.Members {
		if m.Name == member {
			return m.Value, true
		}
	}
	return 0, false
}

// Format renders value as the first member with the exact value.  Failing
// that, a value entirely covered by single bit members is rendered as the
// members joined by '|'.  Otherwise, the value is rendered in decimal.
func (def *Definition) Format(value int64) string {
	for _, member := range def.Members {
		if member.Value == value {
			return member.Name
		}
	}

	if value > 0 {
		remaining := uint64(value)
		names := []string{}
		for _, member := range def.Members {
			if member.Value <= 0 || bits.OnesCount64(uint64(member.Value)) != 1 {
				continue
			}

			flag := uint64(member.Value)
			if remaining&flag != 0 {
				names = append(names, member.Name)
				remaining &^= flag
			}
		}

		if remaining == 0 && len(names) > 1 {
			return strings.Join(names, "|")
		}
	}

	return strconv.FormatInt(value, 10)
}
