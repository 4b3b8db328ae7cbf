package dwarf

import (
	"errors"
	"fmt"

	"github.com/pattyshack/argspec/elf"
)

const (
	// Bounds DW_AT_specification / DW_AT_abstract_origin chains when looking
	// up an entry's name.
	maxNameIndirections = 16
)

var (
	ErrSkipVisitingChildren = errors.New("skip visiting children")
)

type DebugInfoEntry struct {
	*CompileUnit
	SectionOffset

	*Abbreviation
	Values []interface{}

	Parent   *DebugInfoEntry
	Children []*DebugInfoEntry
}

func parseDebugInfoEntry(
	unit *CompileUnit,
	abbrevTable AbbreviationTable,
	decode *Cursor,
) (
	uint64,
	*DebugInfoEntry,
	error,
) {
	startAddr := unit.ContentStart + SectionOffset(decode.Position)

	code, err := decode.ULEB128(64)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to parse DIE. invalid code: %w", err)
	}

	if code == 0 {
		return 0, nil, nil
	}

	abbrev, ok := abbrevTable[code]
	if !ok {
		return 0, nil, fmt.Errorf(
			"failed to parse DIE (%d). abbreviation (%d) not found",
			startAddr,
			code)
	}

	values := make([]interface{}, 0, len(abbrev.AttributeSpecs))
	for _, spec := range abbrev.AttributeSpecs {
		value, err := decode.Value(unit, spec)
		if err != nil {
			return 0, nil, fmt.Errorf(
				"failed to parse DIE (%d) attribute %s: %w",
				startAddr,
				spec.Attribute,
				err)
		}
		values = append(values, value)
	}

	entry := &DebugInfoEntry{
		CompileUnit:   unit,
		SectionOffset: startAddr,
		Abbreviation:  abbrev,
		Values:        values,
	}

	return code, entry, nil
}

// OffsetInUnit returns the entry's offset relative to its unit header.
func (entry *DebugInfoEntry) OffsetInUnit() SectionOffset {
	return entry.SectionOffset - entry.CompileUnit.Start
}

func (entry *DebugInfoEntry) SpecIndex(attr Attribute) int {
	for idx, spec := range entry.AttributeSpecs {
		if attr == spec.Attribute {
			return idx
		}
	}
	return -1
}

func (entry *DebugInfoEntry) Any(attr Attribute) (interface{}, bool) {
	idx := entry.SpecIndex(attr)
	if idx == -1 {
		return nil, false
	}
	return entry.Values[idx], true
}

func (entry *DebugInfoEntry) Format(attr Attribute) (Format, bool) {
	idx := entry.SpecIndex(attr)
	if idx == -1 {
		return 0, false
	}
	return entry.AttributeSpecs[idx].Format, true
}

func (entry *DebugInfoEntry) Address(
	attr Attribute,
) (
	elf.FileAddress,
	bool,
	error,
) {
	val, ok := entry.Any(attr)
	if !ok {
		return 0, false, nil
	}

	switch addr := val.(type) {
	case elf.FileAddress:
		return addr, true, nil
	case addressIndex:
		resolved, err := entry.CompileUnit.resolveAddress(uint64(addr))
		if err != nil {
			return 0, false, fmt.Errorf(
				"failed to resolve %s (%s): %w",
				attr,
				addr,
				err)
		}
		return resolved, true, nil
	default:
		return 0, false, nil
	}
}

func (entry *DebugInfoEntry) Offset(attr Attribute) (SectionOffset, bool) {
	val, ok := entry.Any(attr)
	if !ok {
		return 0, false
	}
	offset, ok := val.(SectionOffset)
	return offset, ok
}

func (entry *DebugInfoEntry) Bool(attr Attribute) (bool, bool) {
	val, ok := entry.Any(attr)
	if !ok {
		return false, false
	}
	flag, ok := val.(bool)
	return flag, ok
}

func (entry *DebugInfoEntry) Uint(attr Attribute) (uint64, bool) {
	val, ok := entry.Any(attr)
	if !ok {
		return 0, false
	}
	result, ok := val.(uint64)
	return result, ok
}

func (entry *DebugInfoEntry) Int(attr Attribute) (int64, bool) {
	val, ok := entry.Any(attr)
	if !ok {
		return 0, false
	}
	result, ok := val.(int64)
	return result, ok
}

// Constant returns the attribute's value as a signed integer.  Fixed size
// data forms are sign extended from their encoded width, while
// DW_FORM_udata is zero extended.
func (entry *DebugInfoEntry) Constant(attr Attribute) (int64, bool) {
	idx := entry.SpecIndex(attr)
	if idx == -1 {
		return 0, false
	}

	switch val := entry.Values[idx].(type) {
	case int64: // sdata / implicit_const
		return val, true
	case uint64:
		switch entry.AttributeSpecs[idx].Format {
		case DW_FORM_data1:
			return int64(int8(val)), true
		case DW_FORM_data2:
			return int64(int16(val)), true
		case DW_FORM_data4:
			return int64(int32(val)), true
		default:
			return int64(val), true
		}
	default:
		return 0, false
	}
}

// UnsignedConstant returns the attribute's value zero extended from its
// encoded width.  Negative sdata / implicit_const values are reinterpreted
// as two's complement.
func (entry *DebugInfoEntry) UnsignedConstant(attr Attribute) (uint64, bool) {
	val, ok := entry.Any(attr)
	if !ok {
		return 0, false
	}

	switch constant := val.(type) {
	case uint64:
		return constant, true
	case int64:
		return uint64(constant), true
	default:
		return 0, false
	}
}

func (entry *DebugInfoEntry) Bytes(attr Attribute) ([]byte, bool) {
	val, ok := entry.Any(attr)
	if !ok {
		return nil, false
	}
	content, ok := val.([]byte)
	return content, ok
}

// StringValue returns the attribute's string, resolving DWARF 5 string
// offset indices as needed.
func (entry *DebugInfoEntry) StringValue(
	attr Attribute,
) (
	string,
	bool,
	error,
) {
	val, ok := entry.Any(attr)
	if !ok {
		return "", false, nil
	}

	switch str := val.(type) {
	case string:
		return str, true, nil
	case stringIndex:
		resolved, err := entry.CompileUnit.resolveString(str)
		if err != nil {
			return "", false, fmt.Errorf(
				"failed to resolve %s (%s): %w",
				attr,
				str,
				err)
		}
		return resolved, true, nil
	default:
		// supplementary strings are not resolvable.
		return "", false, nil
	}
}

func (entry *DebugInfoEntry) String(attr Attribute) (string, bool) {
	str, ok, err := entry.StringValue(attr)
	if err != nil {
		return "", false
	}
	return str, ok
}

// Reference returns false for references which cannot be resolved within
// the file (supplementary file references, and type signatures without a
// matching type unit).
func (entry *DebugInfoEntry) Reference(
	attr Attribute,
) (
	*DebugInfoEntryReference,
	bool,
) {
	val, ok := entry.Any(attr)
	if !ok {
		return nil, false
	}

	switch ref := val.(type) {
	case *DebugInfoEntryReference:
		return ref, true
	case TypeSignature:
		unit, ok := entry.CompileUnit.File.TypeUnit(ref)
		if !ok {
			return nil, false
		}
		return newDebugInfoEntryReference(
			unit.File,
			unit.Section,
			unit.Start+unit.TypeOffset), true
	default:
		return nil, false
	}
}

func (entry *DebugInfoEntry) Name() (
	string,
	bool, // false if not found
	error,
) {
	return entry.inheritedString(DW_AT_name)
}

// LinkageName returns the entry's mangled name (DW_AT_linkage_name, or the
// pre-dwarf 4 DW_AT_MIPS_linkage_name).
func (entry *DebugInfoEntry) LinkageName() (
	string,
	bool, // false if not found
	error,
) {
	return entry.inheritedString(DW_AT_linkage_name, DW_AT_MIPS_linkage_name)
}

// inheritedString returns the first of the given attributes found on the
// entry, or on the declaration / abstract instance the entry refers to.
func (entry *DebugInfoEntry) inheritedString(attrs ...Attribute) (
	string,
	bool,
	error,
) {
	current := entry
	for range maxNameIndirections {
		for _, attr := range attrs {
			value, ok, err := current.StringValue(attr)
			if err != nil {
				return "", false, err
			}
			if ok {
				return value, true, nil
			}
		}

		// Current entry is either a function definition whose declaration
		// carries the name, or an inlined / out-of-line instance of an
		// abstract function.
		ref, ok := current.Reference(DW_AT_specification)
		if !ok {
			ref, ok = current.Reference(DW_AT_abstract_origin)
		}
		if !ok {
			return "", false, nil
		}

		var err error
		current, err = ref.Get()
		if err != nil {
			return "", false, err
		}
	}

	return "", false, fmt.Errorf(
		"DIE (%d) name indirection chain too long",
		entry.SectionOffset)
}

func (entry *DebugInfoEntry) TypeEntry() (*DebugInfoEntry, error) {
	ref, ok := entry.Reference(DW_AT_type)
	if !ok {
		return nil, fmt.Errorf("type entry not found")
	}

	return ref.Get()
}

func (entry *DebugInfoEntry) Line() (int64, bool) {
	if entry.Tag == DW_TAG_inlined_subroutine {
		val, ok := entry.Uint(DW_AT_call_line)
		return int64(val), ok
	}

	val, ok := entry.Uint(DW_AT_decl_line)
	return int64(val), ok
}

func (entry *DebugInfoEntry) AddressRanges() (AddressRanges, error) {
	lowAddr, lowOk, err := entry.Address(DW_AT_low_pc)
	if err != nil {
		return nil, err
	}

	high, highOk := entry.Any(DW_AT_high_pc)

	if lowOk && highOk {
		switch val := high.(type) {
		case elf.FileAddress:
			return AddressRanges{{Low: lowAddr, High: val}}, nil
		case uint64: // offset from low pc
			return AddressRanges{
				{
					Low:  lowAddr,
					High: lowAddr + elf.FileAddress(val),
				},
			}, nil
		case addressIndex:
			highAddr, _, err := entry.Address(DW_AT_high_pc)
			if err != nil {
				return nil, err
			}
			return AddressRanges{{Low: lowAddr, High: highAddr}}, nil
		default:
			return nil, fmt.Errorf(
				"DIE (%d) has invalid DW_AT_high_pc (%v)",
				entry.SectionOffset,
				high)
		}
	}

	ranges, ok := entry.Any(DW_AT_ranges)
	if !ok {
		return nil, nil
	}

	// NOTE: DW_AT_low_pc is the base address for the range list when it is
	// present.  Otherwise, use the unit's base address.
	if !lowOk && entry.Tag != DW_TAG_compile_unit {
		root, err := entry.CompileUnit.Root()
		if err != nil {
			return nil, err
		}
		if root != entry {
			lowAddr, _, err = root.Address(DW_AT_low_pc)
			if err != nil {
				return nil, err
			}
		}
	}

	return entry.CompileUnit.rangeListAt(ranges, lowAddr)
}

func (entry *DebugInfoEntry) ContainsAddress(
	address elf.FileAddress,
) (
	bool,
	error,
) {
	addressRanges, err := entry.AddressRanges()
	if err != nil {
		return false, err
	}

	return addressRanges.Contains(address), nil
}

func (entry *DebugInfoEntry) Visit(enter ProcessFunc, exit ProcessFunc) error {
	skipVisitingChildren := false
	if enter != nil {
		err := enter(entry)
		if err != nil {
			if errors.Is(err, ErrSkipVisitingChildren) {
				skipVisitingChildren = true
			} else {
				return err
			}
		}
	}

	if !skipVisitingChildren {
		for _, child := range entry.Children {
			err := child.Visit(enter, exit)
			if err != nil {
				return err
			}
		}
	}

	if exit != nil {
		err := exit(entry)
		if err != nil {
			return err
		}
	}

	return nil
}
