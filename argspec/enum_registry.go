package argspec

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/pattyshack/argspec/dwarf"
	"github.com/pattyshack/argspec/enums"
)

const (
	unnamedUnit = "unnamed"

	// Characters which are not allowed in synthesized enum names.
	forbiddenEnumNameChars = "+-.() "

	// Bounds the typedef chain walked when determining an enum's underlying
	// base type.
	maxUnderlyingTypeDepth = 16
)

// EnumDeclarationParser parses declarations of the form
// "enum NAME { A=0,B=1 }" and records them in a shared dictionary.
// *enums.Dictionary implements this interface.
type EnumDeclarationParser interface {
	ParseAndRegister(declaration string) error
}

// EnumRegistry synthesizes enum definitions from debug info entries and
// hands them to the declaration parser.  The registry is safe for concurrent
// use if its parser is.
type EnumRegistry struct {
	parser EnumDeclarationParser
	logger zerolog.Logger
}

func NewEnumRegistry(
	parser EnumDeclarationParser,
	logger zerolog.Logger,
) *EnumRegistry {
	return &EnumRegistry{
		parser: parser,
		logger: logger,
	}
}

var (
	defaultEnumRegistry = NewEnumRegistry(enums.Default(), zerolog.Nop())
)

// DefaultEnumRegistry returns the registry backed by the process-wide enum
// dictionary (enums.Default()).
func DefaultEnumRegistry() *EnumRegistry {
	return defaultEnumRegistry
}

// EnumMembers returns the leading DW_TAG_enumerator children in declaration
// order.  Enumerators without a constant value are skipped.
func (registry *EnumRegistry) EnumMembers(
	entry *dwarf.DebugInfoEntry,
) []enums.Member {
	unsigned := isUnsignedEnum(entry)

	var members []enums.Member
	for child := range leadingChildren(entry, dwarf.DW_TAG_enumerator) {
		name, _ := child.String(dwarf.DW_AT_name)

		value, ok := enumeratorValue(child, unsigned)
		if !ok {
			registry.logger.Debug().
				Str("enumerator", name).
				Int("offset", int(child.SectionOffset)).
				Msg("skipping enumerator without constant value")
			continue
		}

		members = append(
			members,
			enums.Member{
				Name:  name,
				Value: value,
			})
	}

	if len(members) == 0 {
		registry.logger.Debug().
			Int("offset", int(entry.SectionOffset)).
			Msg("no enum values")
	}

	return members
}

func enumeratorValue(entry *dwarf.DebugInfoEntry, unsigned bool) (int64, bool) {
	format, ok := entry.Format(dwarf.DW_AT_const_value)
	if !ok {
		return 0, false
	}

	switch format {
	case dwarf.DW_FORM_data1, dwarf.DW_FORM_data2, dwarf.DW_FORM_data4:
		if unsigned {
			value, ok := entry.UnsignedConstant(dwarf.DW_AT_const_value)
			return int64(value), ok
		}
	}

	return entry.Constant(dwarf.DW_AT_const_value)
}

// isUnsignedEnum reports whether the enum's underlying type (DW_AT_type,
// through typedefs and qualifiers) is an unsigned base type.
func isUnsignedEnum(entry *dwarf.DebugInfoEntry) bool {
	current := entry
	for range maxUnderlyingTypeDepth {
		ref, ok := current.Reference(dwarf.DW_AT_type)
		if !ok {
			return false
		}

		next, err := ref.Get()
		if err != nil {
			return false
		}

		if next.Tag == dwarf.DW_TAG_base_type {
			encoding, _ := next.Uint(dwarf.DW_AT_encoding)
			switch encoding {
			case dwarf.DW_ATE_unsigned,
				dwarf.DW_ATE_unsigned_char,
				dwarf.DW_ATE_boolean:
				return true
			}
			return false
		}

		current = next
	}

	return false
}

// EnumName returns the enum's own name.  Anonymous enums are named after
// their compile unit and their offset within the unit, e.g.,
// "foo_bar_c_2d" for an enum at unit offset 0x2d in "foo-bar.c".
func (registry *EnumRegistry) EnumName(entry *dwarf.DebugInfoEntry) string {
	name, ok := entry.String(dwarf.DW_AT_name)
	if ok && name != "" {
		return name
	}

	unitName, ok, err := entry.CompileUnit.Name()
	if err != nil {
		registry.logger.Debug().Err(err).Msg("failed to read compile unit name")
	}
	if !ok || unitName == "" {
		unitName = unnamedUnit
	}

	synthesized := unitName + "_" + strconv.FormatUint(
		uint64(entry.OffsetInUnit()),
		16)

	return strings.Map(
		func(char rune) rune {
			if strings.ContainsRune(forbiddenEnumNameChars, char) {
				return '_'
			}
			return char
		},
		synthesized)
}

// Register hands the definition to the declaration parser.  Failures are
// logged, not returned.
func (registry *EnumRegistry) Register(name string, members []enums.Member) {
	definition := &enums.Definition{
		Name:    name,
		Members: members,
	}

	declaration := definition.Declaration()
	registry.logger.Trace().Str("declaration", declaration).Msg("dwarf enum")

	if registry.parser == nil {
		return
	}

	err := registry.parser.ParseAndRegister(declaration)
	if err != nil {
		registry.logger.Warn().
			Err(fmt.Errorf("failed to register enum %s: %w", name, err)).
			Msg("enum registration failed")
	}
}
