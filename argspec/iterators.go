package argspec

import (
	"fmt"
	"iter"

	"github.com/pattyshack/argspec/dwarf"
)

// leadingChildren yields the entry's children up to (but excluding) the
// first child whose tag differs from the given tag.
func leadingChildren(
	entry *dwarf.DebugInfoEntry,
	tag dwarf.Tag,
) iter.Seq[*dwarf.DebugInfoEntry] {
	return func(yield func(*dwarf.DebugInfoEntry) bool) {
		for _, child := range entry.Children {
			if child.Tag != tag {
				return
			}

			if !yield(child) {
				return
			}
		}
	}
}

// subprograms yields the unit's DW_TAG_subprogram entries in document
// (depth-first) order.
func subprograms(
	unit *dwarf.CompileUnit,
) iter.Seq2[*dwarf.DebugInfoEntry, error] {
	return func(yield func(*dwarf.DebugInfoEntry, error) bool) {
		entries, err := unit.DebugInfoEntries()
		if err != nil {
			yield(nil, err)
			return
		}

		for _, entry := range entries {
			if entry.Tag != dwarf.DW_TAG_subprogram {
				continue
			}

			if !yield(entry, nil) {
				return
			}
		}
	}
}

// origins yields the entry followed by the entries reachable through
// DW_AT_specification / DW_AT_abstract_origin, at most maxDepth entries in
// total.
func origins(
	entry *dwarf.DebugInfoEntry,
	maxDepth int,
) iter.Seq2[*dwarf.DebugInfoEntry, error] {
	return func(yield func(*dwarf.DebugInfoEntry, error) bool) {
		current := entry
		for depth := 0; ; depth++ {
			if depth >= maxDepth {
				yield(
					nil,
					fmt.Errorf(
						"%w: origin chain of DIE (%d) exceeds %d entries",
						ErrMalformedTypeChain,
						entry.SectionOffset,
						maxDepth))
				return
			}

			if !yield(current, nil) {
				return
			}

			ref, ok := current.Reference(dwarf.DW_AT_abstract_origin)
			if !ok {
				ref, ok = current.Reference(dwarf.DW_AT_specification)
			}
			if !ok {
				return
			}

			next, err := ref.Get()
			if err != nil {
				yield(nil, fmt.Errorf("%w: %w", ErrMalformedTypeChain, err))
				return
			}
			current = next
		}
	}
}

// typedEntry returns the first entry in the origin chain which carries a
// DW_AT_type attribute, or nil if no entry does (e.g., void functions).
func typedEntry(
	entry *dwarf.DebugInfoEntry,
	maxDepth int,
) (
	*dwarf.DebugInfoEntry,
	error,
) {
	for origin, err := range origins(entry, maxDepth) {
		if err != nil {
			return nil, err
		}

		_, ok := origin.Any(dwarf.DW_AT_type)
		if ok {
			return origin, nil
		}
	}

	return nil, nil
}

// parameterEntries returns the formal parameters of the first entry in the
// origin chain which has any.
func parameterEntries(
	function *dwarf.DebugInfoEntry,
	maxDepth int,
) (
	[]*dwarf.DebugInfoEntry,
	error,
) {
	for origin, err := range origins(function, maxDepth) {
		if err != nil {
			return nil, err
		}

		var params []*dwarf.DebugInfoEntry
		for param := range leadingChildren(origin, dwarf.DW_TAG_formal_parameter) {
			params = append(params, param)
		}

		if len(params) > 0 {
			return params, nil
		}
	}

	return nil, nil
}

// typeChain yields the entries reachable from origin by repeatedly following
// DW_AT_type.  The chain ends when an entry has no DW_AT_type or its
// DW_AT_type is not resolvable within the file (supplementary file
// references, and type signatures without a matching type unit).  Exceeding maxDepth links, or failing to
// resolve a reference, yields ErrMalformedTypeChain.
func typeChain(
	origin *dwarf.DebugInfoEntry,
	maxDepth int,
) iter.Seq2[*dwarf.DebugInfoEntry, error] {
	return func(yield func(*dwarf.DebugInfoEntry, error) bool) {
		current := origin
		for depth := 0; ; depth++ {
			ref, ok := current.Reference(dwarf.DW_AT_type)
			if !ok {
				return
			}

			if depth >= maxDepth {
				yield(
					nil,
					fmt.Errorf(
						"%w: type chain of DIE (%d) exceeds %d links",
						ErrMalformedTypeChain,
						origin.SectionOffset,
						maxDepth))
				return
			}

			next, err := ref.Get()
			if err != nil {
				yield(nil, fmt.Errorf("%w: %w", ErrMalformedTypeChain, err))
				return
			}

			if !yield(next, nil) {
				return
			}

			current = next
		}
	}
}
