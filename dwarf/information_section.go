package dwarf

import (
	"errors"
	"fmt"

	"github.com/pattyshack/argspec/elf"
)

const (
	ElfDebugInformationSection = ".debug_info"

	// dwarf 4 type units
	ElfDebugTypesSection = ".debug_types"
)

type ProcessFunc func(*DebugInfoEntry) error

type CompileUnit struct {
	*File
	Section *InformationSection

	Start        SectionOffset
	ContentStart SectionOffset
	End          SectionOffset

	Version     uint16
	UnitType    uint8
	AddressSize uint8

	AbbreviationIndex SectionOffset
	Content           []byte

	// Only set for type units.  TypeOffset is relative to the unit's Start.
	Signature  TypeSignature
	TypeOffset SectionOffset

	// nil indicates the compile unit's content has not been parsed yet.
	root    *DebugInfoEntry
	entries []*DebugInfoEntry
}

// parseCompileUnit parses the unit header.  typeSection indicates the unit
// is from the dwarf 4 .debug_types section, whose headers carry the type
// signature and type offset after the address size.
func parseCompileUnit(
	decode *Cursor,
	typeSection bool,
) (
	*CompileUnit,
	error,
) {
	start := SectionOffset(decode.Position)

	size, err := decode.U32()
	if err != nil {
		return nil, fmt.Errorf(
			"failed to parse compile unit. invalid size: %w",
			err)
	}
	if size == ^uint32(0) {
		return nil, fmt.Errorf(
			"failed to parse compile unit. 64-bit dwarf format not supported")
	}

	// NOTE: size does not include the size field itself (4-bytes), but
	// include the other header fields.
	end := decode.Position + int(size)
	if end > len(decode.Content) {
		return nil, fmt.Errorf(
			"failed to parse compile unit. out of bound unit size (%d)",
			size)
	}

	version, err := decode.U16()
	if err != nil {
		return nil, fmt.Errorf(
			"failed to parse compile unit. invalid version: %w",
			err)
	}
	if version < 2 || version > 5 {
		return nil, fmt.Errorf(
			"failed to parse compile unit. dwarf version %d not supported",
			version)
	}

	unitType := uint8(DW_UT_compile)
	var abbrevIndex uint32
	var addrSize uint8
	var signature uint64
	var typeOffset uint32
	if version >= 5 {
		unitType, err = decode.U8()
		if err != nil {
			return nil, fmt.Errorf(
				"failed to parse compile unit. invalid unit type: %w",
				err)
		}

		addrSize, err = decode.U8()
		if err != nil {
			return nil, fmt.Errorf(
				"failed to parse compile unit. invalid address size: %w",
				err)
		}

		abbrevIndex, err = decode.U32()
		if err != nil {
			return nil, fmt.Errorf(
				"failed to parse compile unit. invalid abbreviation index: %w",
				err)
		}

		switch unitType {
		case DW_UT_type, DW_UT_split_type:
			signature, typeOffset, err = parseTypeUnitHeader(decode)
		case DW_UT_skeleton, DW_UT_split_compile: // dwo id
			_, err = decode.Bytes(8)
		}
		if err != nil {
			return nil, fmt.Errorf(
				"failed to parse compile unit. invalid unit header: %w",
				err)
		}
	} else {
		abbrevIndex, err = decode.U32()
		if err != nil {
			return nil, fmt.Errorf(
				"failed to parse compile unit. invalid abbreviation index: %w",
				err)
		}

		addrSize, err = decode.U8()
		if err != nil {
			return nil, fmt.Errorf(
				"failed to parse compile unit. invalid address size: %w",
				err)
		}

		if typeSection {
			unitType = DW_UT_type
			signature, typeOffset, err = parseTypeUnitHeader(decode)
			if err != nil {
				return nil, fmt.Errorf(
					"failed to parse type unit. invalid unit header: %w",
					err)
			}
		}
	}

	if addrSize != 8 {
		return nil, fmt.Errorf(
			"failed to parse compile unit. address size %d not supported",
			addrSize)
	}

	contentStart := SectionOffset(decode.Position)

	unitContent, err := decode.Bytes(end - decode.Position)
	if err != nil {
		return nil, fmt.Errorf(
			"failed to parse compile unit. invalid content: %w",
			err)
	}

	return &CompileUnit{
		Start:             start,
		ContentStart:      contentStart,
		End:               SectionOffset(decode.Position),
		Version:           version,
		UnitType:          unitType,
		AddressSize:       addrSize,
		AbbreviationIndex: SectionOffset(abbrevIndex),
		Content:           unitContent,
		Signature:         TypeSignature(signature),
		TypeOffset:        SectionOffset(typeOffset),
	}, nil
}

func parseTypeUnitHeader(decode *Cursor) (uint64, uint32, error) {
	signature, err := decode.U64()
	if err != nil {
		return 0, 0, err
	}

	typeOffset, err := decode.U32()
	if err != nil {
		return 0, 0, err
	}

	return signature, typeOffset, nil
}

func (unit *CompileUnit) IsTypeUnit() bool {
	return unit.UnitType == DW_UT_type || unit.UnitType == DW_UT_split_type
}

// TypeEntry returns the type unit's type definition entry.
func (unit *CompileUnit) TypeEntry() (*DebugInfoEntry, error) {
	if !unit.IsTypeUnit() {
		return nil, fmt.Errorf("unit (%d) is not a type unit", unit.Start)
	}

	return unit.EntryAt(unit.Start + unit.TypeOffset)
}

func (unit *CompileUnit) Contains(offset SectionOffset) bool {
	return unit.Start <= offset && offset < unit.End
}

func (unit *CompileUnit) Root() (*DebugInfoEntry, error) {
	err := unit.maybeParseDebugInfoEntries()
	if err != nil {
		return nil, err
	}

	return unit.root, nil
}

// Name returns the root entry's DW_AT_name (usually the primary source file
// name).
func (unit *CompileUnit) Name() (string, bool, error) {
	root, err := unit.Root()
	if err != nil {
		return "", false, err
	}

	name, ok := root.String(DW_AT_name)
	return name, ok, nil
}

func (unit *CompileUnit) DebugInfoEntries() ([]*DebugInfoEntry, error) {
	err := unit.maybeParseDebugInfoEntries()
	if err != nil {
		return nil, err
	}

	return unit.entries, nil
}

func (unit *CompileUnit) EntryAt(
	offset SectionOffset,
) (
	*DebugInfoEntry,
	error,
) {
	entries, err := unit.DebugInfoEntries()
	if err != nil {
		return nil, err
	}

	// entries are sorted by section offset
	low := 0
	high := len(entries)
	for low < high {
		mid := (low + high) / 2

		entry := entries[mid]
		if offset == entry.SectionOffset {
			return entry, nil
		} else if offset < entry.SectionOffset {
			high = mid
		} else {
			low = mid + 1
		}
	}

	return nil, fmt.Errorf("invalid debug info entry location (%d)", offset)
}

func (unit *CompileUnit) ForEach(process ProcessFunc) error {
	err := unit.maybeParseDebugInfoEntries()
	if err != nil {
		return err
	}

	for _, entry := range unit.entries {
		err := process(entry)
		if err != nil {
			return err
		}
	}

	return nil
}

func (unit *CompileUnit) Visit(enter ProcessFunc, exit ProcessFunc) error {
	root, err := unit.Root()
	if err != nil {
		return err
	}

	return root.Visit(enter, exit)
}

func (unit *CompileUnit) rootBase(attr Attribute) (SectionOffset, error) {
	root, err := unit.Root()
	if err != nil {
		return 0, err
	}

	base, ok := root.Offset(attr)
	if !ok {
		return 0, fmt.Errorf("compile unit has no %s", attr)
	}

	return base, nil
}

func (unit *CompileUnit) resolveString(idx stringIndex) (string, error) {
	base, err := unit.rootBase(DW_AT_str_offsets_base)
	if err != nil {
		return "", err
	}

	offset, err := unit.File.StringOffsetsSection.StringOffsetAt(
		base,
		uint64(idx))
	if err != nil {
		return "", err
	}

	return unit.File.StringSection.StringAt(offset)
}

func (unit *CompileUnit) resolveAddress(idx uint64) (elf.FileAddress, error) {
	base, err := unit.rootBase(DW_AT_addr_base)
	if err != nil {
		return 0, err
	}

	addr, err := unit.File.AddressSection.AddressAt(base, idx)
	if err != nil {
		return 0, err
	}

	return elf.FileAddress(addr), nil
}

func (unit *CompileUnit) rangeListAt(
	ranges interface{},
	baseAddress elf.FileAddress,
) (
	AddressRanges,
	error,
) {
	if unit.Version < 5 {
		offset, ok := ranges.(SectionOffset)
		if !ok {
			return nil, fmt.Errorf("invalid DW_AT_ranges value (%v)", ranges)
		}

		return unit.File.AddressRangesSection.AddressRangesAt(offset, baseAddress)
	}

	var offset SectionOffset
	switch value := ranges.(type) {
	case SectionOffset:
		offset = value
	case RangeListIndex:
		base, err := unit.rootBase(DW_AT_rnglists_base)
		if err != nil {
			return nil, err
		}

		offset, err = unit.File.RangeListsSection.RangeListOffset(base, value)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("invalid DW_AT_ranges value (%v)", ranges)
	}

	return unit.File.RangeListsSection.RangeListAt(
		offset,
		baseAddress,
		unit.resolveAddress)
}

func (unit *CompileUnit) maybeParseDebugInfoEntries() error {
	if unit.root != nil {
		return nil
	}

	abbrevTable, ok := unit.AbbreviationTables[unit.AbbreviationIndex]
	if !ok {
		return fmt.Errorf(
			"failed to parse DIEs. abbreviation table (%d) not found",
			unit.AbbreviationIndex)
	}

	var root *DebugInfoEntry
	entries := []*DebugInfoEntry{}
	scope := []*DebugInfoEntry{}

	decode := NewCursor(unit.ByteOrder(), unit.Content)
	for !decode.HasReachedEnd() {
		code, entry, err := parseDebugInfoEntry(unit, abbrevTable, decode)
		if err != nil {
			return err
		}

		if code == 0 { // end of scope
			if len(scope) == 0 {
				// NOTE: some producers pad the unit with trailing null entries.
				if root != nil {
					continue
				}
				return fmt.Errorf("failed to parse DIEs. too many null DIEs")
			}

			scope = scope[:len(scope)-1]
			continue
		}

		entries = append(entries, entry)

		if root == nil {
			root = entry
		} else if len(scope) > 0 {
			parent := scope[len(scope)-1]
			entry.Parent = parent
			parent.Children = append(parent.Children, entry)
		} else {
			return fmt.Errorf("failed to parse DIEs. DIE not rooted")
		}

		if entry.HasChildren {
			scope = append(scope, entry)
		}
	}

	if root == nil {
		return fmt.Errorf("failed to parse DIEs. compile unit has no root DIE")
	}

	if len(scope) != 0 {
		return fmt.Errorf("failed to parse DIEs. not enough null DIEs")
	}

	unit.root = root
	unit.entries = entries

	return nil
}

type InformationSection struct {
	Name         string
	CompileUnits []*CompileUnit
}

// NewInformationSection parses the unit headers of a .debug_info or
// .debug_types section.
func NewInformationSection(
	file *File,
	name string,
	content []byte,
) (
	*InformationSection,
	error,
) {
	section := &InformationSection{
		Name: name,
	}

	decode := NewCursor(file.ByteOrder(), content)
	for !decode.HasReachedEnd() {
		unit, err := parseCompileUnit(decode, name == ElfDebugTypesSection)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}

		unit.File = file
		unit.Section = section
		section.CompileUnits = append(section.CompileUnits, unit)
	}

	return section, nil
}

func (section *InformationSection) CompileUnitAt(
	offset SectionOffset,
) *CompileUnit {
	for _, unit := range section.CompileUnits {
		if unit.Contains(offset) {
			return unit
		}
	}
	return nil
}

func (section *InformationSection) EntryAt(
	offset SectionOffset,
) (
	*DebugInfoEntry,
	error,
) {
	unit := section.CompileUnitAt(offset)
	if unit == nil {
		return nil, fmt.Errorf("invalid debug info entry location (%d)", offset)
	}

	return unit.EntryAt(offset)
}

func (section *InformationSection) ForEach(process ProcessFunc) error {
	for _, unit := range section.CompileUnits {
		err := unit.ForEach(process)
		if err != nil {
			return err
		}
	}
	return nil
}

func (section *InformationSection) Visit(
	enter ProcessFunc,
	exit ProcessFunc,
) error {
	for _, unit := range section.CompileUnits {
		err := unit.Visit(enter, exit)
		if err != nil {
			return err
		}
	}
	return nil
}

// CompileUnitContainingAddress returns nil (without error) when no unit
// covers the address.  Units which fail to parse are skipped, and their
// errors are only returned when no other unit covers the address.
func (file *File) CompileUnitContainingAddress(
	address elf.FileAddress,
) (
	*CompileUnit,
	error,
) {
	offset, ok := file.UnitOffsetContainingAddress(address)
	if ok {
		unit := file.CompileUnitAt(offset)
		if unit != nil {
			return unit, nil
		}
	}

	var errs []error
	for _, unit := range file.CompileUnits {
		if unit.IsTypeUnit() {
			continue
		}

		contains, err := unit.containsAddress(address)
		if err != nil {
			errs = append(
				errs,
				fmt.Errorf("skipped compile unit (%d): %w", unit.Start, err))
			continue
		}

		if contains {
			return unit, nil
		}
	}

	return nil, errors.Join(errs...)
}

func (unit *CompileUnit) containsAddress(
	address elf.FileAddress,
) (
	bool,
	error,
) {
	root, err := unit.Root()
	if err != nil {
		return false, err
	}

	return root.ContainsAddress(address)
}

func (section *InformationSection) FunctionEntriesWithName(
	name string,
) (
	[]*DebugInfoEntry,
	error,
) {
	result := []*DebugInfoEntry{}
	err := section.ForEach(
		func(entry *DebugInfoEntry) error {
			if entry.Tag != DW_TAG_subprogram {
				return nil
			}

			entryName, ok, err := entry.Name()
			if err != nil {
				return err
			}

			if ok && name == entryName {
				result = append(result, entry)
			}
			return nil
		})
	if err != nil {
		return nil, err
	}

	return result, nil
}
