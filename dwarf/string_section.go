package dwarf

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

const (
	ElfDebugStringSection        = ".debug_str"
	ElfDebugLineStringSection    = ".debug_line_str"
	ElfDebugStringOffsetsSection = ".debug_str_offsets"
)

type StringSection struct {
	name    string
	found   bool
	content []byte
}

func NewStringSection(name string, content []byte, found bool) *StringSection {
	return &StringSection{
		name:    name,
		found:   found,
		content: content,
	}
}

func (table *StringSection) StringAt(offset SectionOffset) (string, error) {
	value, _, err := table.getStringAt(int(offset))
	return value, err
}

func (table *StringSection) getStringAt(offset int) (string, int, error) {
	if !table.found {
		return "", 0, fmt.Errorf("elf %s %w", table.name, ErrSectionNotFound)
	}

	if offset < 0 || len(table.content) <= offset {
		return "", 0, fmt.Errorf(
			"out of bound %s reference (%d)",
			table.name,
			offset)
	}

	content := table.content[offset:]
	end := bytes.IndexByte(content, 0)
	if end == -1 {
		return "", 0, fmt.Errorf("%s reference not terminated", table.name)
	}

	return string(content[:end]), offset + end + 1, nil
}

func (table *StringSection) StringEntries() ([]string, error) {
	result := []string{}
	offset := 0
	for len(table.content) > offset {
		value, next, err := table.getStringAt(offset)
		if err != nil {
			return nil, err
		}

		result = append(result, value)
		offset = next
	}

	return result, nil
}

// .debug_str_offsets (dwarf 5).  Each unit's contribution starts at the
// unit's DW_AT_str_offsets_base, which points past the contribution header.
type StringOffsetsSection struct {
	byteOrder binary.ByteOrder
	found     bool
	content   []byte
}

func NewStringOffsetsSection(
	byteOrder binary.ByteOrder,
	content []byte,
	found bool,
) *StringOffsetsSection {
	return &StringOffsetsSection{
		byteOrder: byteOrder,
		found:     found,
		content:   content,
	}
}

func (section *StringOffsetsSection) StringOffsetAt(
	base SectionOffset,
	idx uint64,
) (
	SectionOffset,
	error,
) {
	if !section.found {
		return 0, fmt.Errorf(
			"elf %s %w",
			ElfDebugStringOffsetsSection,
			ErrSectionNotFound)
	}

	pos := int(base) + int(idx)*4
	if int(base) < 0 || pos < int(base) || pos+4 > len(section.content) {
		return 0, fmt.Errorf("out of bound string offset index (%d)", idx)
	}

	return SectionOffset(section.byteOrder.Uint32(section.content[pos:])), nil
}

// .debug_addr (dwarf 5).  Each unit's contribution starts at the unit's
// DW_AT_addr_base.  Only 8-byte addresses are supported.
type AddressSection struct {
	byteOrder binary.ByteOrder
	found     bool
	content   []byte
}

const (
	ElfDebugAddressSection = ".debug_addr"
)

func NewAddressSection(
	byteOrder binary.ByteOrder,
	content []byte,
	found bool,
) *AddressSection {
	return &AddressSection{
		byteOrder: byteOrder,
		found:     found,
		content:   content,
	}
}

func (section *AddressSection) AddressAt(
	base SectionOffset,
	idx uint64,
) (
	uint64,
	error,
) {
	if !section.found {
		return 0, fmt.Errorf(
			"elf %s %w",
			ElfDebugAddressSection,
			ErrSectionNotFound)
	}

	pos := int(base) + int(idx)*8
	if int(base) < 0 || pos < int(base) || pos+8 > len(section.content) {
		return 0, fmt.Errorf("out of bound address index (%d)", idx)
	}

	return section.byteOrder.Uint64(section.content[pos:]), nil
}
