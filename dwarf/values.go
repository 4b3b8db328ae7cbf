package dwarf

import (
	"fmt"
)

type SectionOffset int

// Reference attribute value.  Section is the section holding the referenced
// entry (.debug_info when nil).
type DebugInfoEntryReference struct {
	*File
	Section *InformationSection
	SectionOffset
}

func (ref DebugInfoEntryReference) String() string {
	return fmt.Sprintf("DIE@%08x", ref.SectionOffset)
}

func newDebugInfoEntryReference(
	file *File,
	section *InformationSection,
	offset SectionOffset,
) *DebugInfoEntryReference {
	return &DebugInfoEntryReference{
		File:          file,
		Section:       section,
		SectionOffset: offset,
	}
}

func (ref DebugInfoEntryReference) Get() (*DebugInfoEntry, error) {
	section := ref.Section
	if section == nil {
		section = ref.File.InformationSection
	}

	entry, err := section.EntryAt(ref.SectionOffset)
	if err != nil {
		return nil, fmt.Errorf(
			"failed to get referenced entry (%d): %w",
			ref.SectionOffset,
			err)
	}
	return entry, nil
}

// Type unit reference (DW_FORM_ref_sig8).  Resolved through the file's type
// unit index (see File.TypeUnit).
type TypeSignature uint64

func (sig TypeSignature) String() string {
	return fmt.Sprintf("signature(%016x)", uint64(sig))
}

// Reference into a supplementary (dwz / alt) object file.  The
// supplementary file is not loaded, hence the reference cannot be resolved.
type SupplementaryReference struct {
	Format
	SectionOffset
}

func (ref SupplementaryReference) String() string {
	return fmt.Sprintf("%s@%08x", ref.Format, ref.SectionOffset)
}

// String stored in a supplementary object file's string section.
type SupplementaryString SectionOffset

func (str SupplementaryString) String() string {
	return fmt.Sprintf("alt_str@%08x", int(str))
}

// Index into .debug_str_offsets, relative to the unit's DW_AT_str_offsets_base
type stringIndex uint64

func (idx stringIndex) String() string {
	return fmt.Sprintf("strx(%d)", uint64(idx))
}

// Index into .debug_addr, relative to the unit's DW_AT_addr_base
type addressIndex uint64

func (idx addressIndex) String() string {
	return fmt.Sprintf("addrx(%d)", uint64(idx))
}

// Index into .debug_rnglists' offset table, relative to the unit's
// DW_AT_rnglists_base
type RangeListIndex uint64

func (idx RangeListIndex) String() string {
	return fmt.Sprintf("rnglistx(%d)", uint64(idx))
}

// Index into .debug_loclists' offset table
type LocationListIndex uint64

func (idx LocationListIndex) String() string {
	return fmt.Sprintf("loclistx(%d)", uint64(idx))
}
