package argspec

import (
	"github.com/pattyshack/argspec/dwarf"
)

// ArgSpec builds the argument spec for the function's leading formal
// parameters.  The result is nil when the function has no parameters.
//
// Integer / pointer arguments and float arguments are numbered by separate
// counters, e.g., (int, float, int) yields "@arg1,fparg1/32,arg2".
func (resolver *Resolver) ArgSpec(function *dwarf.DebugInfoEntry) Spec {
	params, err := parameterEntries(function, resolver.maxChainDepth)
	if err != nil {
		resolver.fallback(function, err)
		params = nil
		for param := range leadingChildren(
			function,
			dwarf.DW_TAG_formal_parameter) {

			params = append(params, param)
		}
	}

	if len(params) == 0 {
		resolver.logger.Debug().
			Int("offset", int(function.SectionOffset)).
			Msg("has no argument (children)")
		return nil
	}

	spec := make(Spec, 0, len(params))
	argIdx := 0
	floatIdx := 0
	for _, param := range params {
		argIdx++

		classification := resolver.Classify(param)
		if classification.Format == FormatFloat {
			floatIdx++
			argIdx-- // float arguments do not consume an integer index

			spec = append(
				spec,
				Token{
					Kind:    FloatArgumentToken,
					Index:   floatIdx,
					Format:  FormatFloat,
					BitSize: classification.BitSize,
				})
			continue
		}

		spec = append(
			spec,
			Token{
				Kind:     ArgumentToken,
				Index:    argIdx,
				Format:   classification.Format,
				EnumName: classification.EnumName,
			})
	}

	return spec
}

// RetSpec builds the return value spec.  The result is nil for void
// functions.  Float return values are described as "fparg1/SIZE".
func (resolver *Resolver) RetSpec(function *dwarf.DebugInfoEntry) Spec {
	origin, err := typedEntry(function, resolver.maxChainDepth)
	if err != nil {
		resolver.fallback(function, err)
		_, ok := function.Any(dwarf.DW_AT_type)
		if !ok {
			return nil
		}
		origin = function
	}

	if origin == nil {
		return nil
	}

	classification := resolver.Classify(origin)
	if classification.Format == FormatFloat {
		return Spec{
			{
				Kind:    FloatArgumentToken,
				Index:   1,
				Format:  FormatFloat,
				BitSize: classification.BitSize,
			},
		}
	}

	return Spec{
		{
			Kind:     ReturnValueToken,
			Format:   classification.Format,
			EnumName: classification.EnumName,
		},
	}
}
