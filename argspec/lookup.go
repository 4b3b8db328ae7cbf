package argspec

import (
	"fmt"

	"github.com/pattyshack/argspec/dwarf"
	"github.com/pattyshack/argspec/elf"
)

// Lookup returns the first DW_TAG_subprogram named name (either its
// DW_AT_name or, for C++ symbols, its linkage name) within the compile unit
// covering the runtime address.  Functions sharing the name elsewhere
// (including later in the same unit) are ignored.  Declarations (e.g.,
// member function declarations left in the unit when the class is moved
// into a type unit) only match when the unit has no such definition.
func (session *Session) Lookup(
	name string,
	address uint64,
) (
	*dwarf.DebugInfoEntry,
	error,
) {
	if !session.HasDebugInfo() {
		return nil, ErrNoDebugInfo
	}

	fileAddress := elf.FileAddress(address - session.offset)

	unit, err := session.dwarf.CompileUnitContainingAddress(fileAddress)
	if err != nil {
		return nil, err
	}
	if unit == nil {
		return nil, fmt.Errorf(
			"%w: no compile unit covers %#x",
			ErrNotFound,
			uint64(fileAddress))
	}

	var declaration *dwarf.DebugInfoEntry
	for entry, err := range subprograms(unit) {
		if err != nil {
			return nil, err
		}

		matched, err := hasName(entry, name)
		if err != nil {
			session.logger.Trace().
				Err(err).
				Int("offset", int(entry.SectionOffset)).
				Msg("failed to read subprogram name")
			continue
		}

		if !matched {
			continue
		}

		isDeclaration, _ := entry.Bool(dwarf.DW_AT_declaration)
		if !isDeclaration {
			return entry, nil
		}

		if declaration == nil {
			declaration = entry
		}
	}

	if declaration != nil {
		return declaration, nil
	}

	return nil, fmt.Errorf(
		"%w: function %s not in compile unit at %#x",
		ErrNotFound,
		name,
		int(unit.Start))
}

func hasName(entry *dwarf.DebugInfoEntry, name string) (bool, error) {
	entryName, ok, err := entry.Name()
	if err != nil {
		return false, err
	}
	if ok && entryName == name {
		return true, nil
	}

	linkageName, ok, err := entry.LinkageName()
	if err != nil {
		return false, err
	}
	return ok && linkageName == name, nil
}

// FunctionAddress returns the runtime entry address of the first defined
// (i.e., has code) subprogram whose DW_AT_name is name.  This locates
// functions (e.g., C++ functions) whose symbol names are mangled.
func (session *Session) FunctionAddress(name string) (uint64, bool) {
	if !session.HasDebugInfo() {
		return 0, false
	}

	entries, err := session.dwarf.FunctionEntriesWithName(name)
	if err != nil {
		session.logger.Debug().
			Err(err).
			Str("function", name).
			Msg("failed to search subprograms")
		return 0, false
	}

	for _, entry := range entries {
		ranges, err := entry.AddressRanges()
		if err != nil {
			session.logger.Trace().
				Err(err).
				Int("offset", int(entry.SectionOffset)).
				Msg("failed to read subprogram address ranges")
			continue
		}

		if len(ranges) > 0 {
			return uint64(ranges[0].Low) + session.offset, true
		}
	}

	return 0, false
}
