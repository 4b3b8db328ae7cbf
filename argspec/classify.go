package argspec

import (
	"github.com/rs/zerolog"

	"github.com/pattyshack/argspec/dwarf"
	"github.com/pattyshack/argspec/enums"
)

const (
	DefaultMaxChainDepth = 64
)

type TypeClassification struct {
	Format

	// 32 or 64.  Only applicable to FormatFloat.
	BitSize int

	// Number of pointer / pointer-to-member links traversed.
	PointerDepth int

	// Only applicable to FormatEnum.
	EnumName    string
	EnumMembers []enums.Member
}

// Resolver classifies debug info types and builds spec strings.  A Resolver
// is stateless between calls (apart from enum registration), hence
// identical inputs always produce identical outputs.
type Resolver struct {
	registry      *EnumRegistry
	logger        zerolog.Logger
	maxChainDepth int
}

func NewResolver(
	registry *EnumRegistry,
	logger zerolog.Logger,
	maxChainDepth int,
) *Resolver {
	if registry == nil {
		registry = DefaultEnumRegistry()
	}

	if maxChainDepth <= 0 {
		maxChainDepth = DefaultMaxChainDepth
	}

	return &Resolver{
		registry:      registry,
		logger:        logger,
		maxChainDepth: maxChainDepth,
	}
}

// Classify classifies the type referenced by the entry's DW_AT_type (e.g.,
// a formal parameter, or a subprogram's return type).  Entries without a
// type, or whose type chain is malformed, are classified as FormatAuto.
func (resolver *Resolver) Classify(
	entry *dwarf.DebugInfoEntry,
) TypeClassification {
	result := TypeClassification{
		Format: FormatAuto,
	}

	origin, err := typedEntry(entry, resolver.maxChainDepth)
	if err != nil {
		resolver.fallback(entry, err)
		return result
	}
	if origin == nil {
		return result
	}

	for typeEntry, err := range typeChain(origin, resolver.maxChainDepth) {
		if err != nil {
			resolver.fallback(entry, err)
			return TypeClassification{Format: FormatAuto}
		}

		switch typeEntry.Tag {
		case dwarf.DW_TAG_base_type:
			name, _ := typeEntry.String(dwarf.DW_AT_name)
			switch name {
			case "char", "signed char":
				if result.PointerDepth == 0 {
					result.Format = FormatChar
				} else if result.PointerDepth == 1 {
					result.Format = FormatString
				}
			case "float":
				result.Format = FormatFloat
				result.BitSize = 32
			case "double":
				result.Format = FormatFloat
				result.BitSize = 64
			}
			return result

		case dwarf.DW_TAG_enumeration_type:
			members := resolver.registry.EnumMembers(typeEntry)
			if len(members) == 0 {
				return result
			}

			result.Format = FormatEnum
			result.EnumName = resolver.registry.EnumName(typeEntry)
			result.EnumMembers = members

			resolver.registry.Register(result.EnumName, members)
			return result

		case dwarf.DW_TAG_pointer_type, dwarf.DW_TAG_ptr_to_member_type:
			result.PointerDepth++
		}

		if resolver.logger.GetLevel() <= zerolog.TraceLevel {
			name, _ := typeEntry.String(dwarf.DW_AT_name)
			resolver.logger.Trace().
				Str("name", name).
				Stringer("tag", typeEntry.Tag).
				Msg("dwarf type link")
		}
	}

	return result
}

func (resolver *Resolver) fallback(entry *dwarf.DebugInfoEntry, err error) {
	resolver.logger.Debug().
		Err(err).
		Int("offset", int(entry.SectionOffset)).
		Msg("falling back to default format")
}
