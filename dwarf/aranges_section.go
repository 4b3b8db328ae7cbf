package dwarf

import (
	"encoding/binary"
	"fmt"

	"github.com/pattyshack/argspec/elf"
)

const (
	ElfDebugArangesSection = ".debug_aranges"
)

type UnitAddressRange struct {
	AddressRange

	// Offset of the owning unit's header in .debug_info
	UnitOffset SectionOffset
}

// .debug_aranges lookup table.  A missing section yields an empty table;
// callers fall back to scanning unit address ranges.
type ArangesSection struct {
	Ranges []UnitAddressRange
}

func NewArangesSection(
	byteOrder binary.ByteOrder,
	content []byte,
) (
	*ArangesSection,
	error,
) {
	ranges := []UnitAddressRange{}

	decode := NewCursor(byteOrder, content)
	for !decode.HasReachedEnd() {
		setStart := decode.Position

		length, err := decode.U32()
		if err != nil {
			return nil, fmt.Errorf("failed to parse aranges. invalid length: %w", err)
		}
		if length == ^uint32(0) {
			return nil, fmt.Errorf(
				"failed to parse aranges. 64-bit dwarf format not supported")
		}

		setEnd := decode.Position + int(length)
		if setEnd > len(content) {
			return nil, fmt.Errorf("failed to parse aranges. out of bound set")
		}

		version, err := decode.U16()
		if err != nil {
			return nil, fmt.Errorf("failed to parse aranges. invalid version: %w", err)
		}
		if version != 2 {
			return nil, fmt.Errorf(
				"failed to parse aranges. version %d not supported",
				version)
		}

		unitOffset, err := decode.U32()
		if err != nil {
			return nil, fmt.Errorf(
				"failed to parse aranges. invalid unit offset: %w",
				err)
		}

		addrSize, err := decode.U8()
		if err != nil {
			return nil, err
		}
		if addrSize != 8 {
			return nil, fmt.Errorf(
				"failed to parse aranges. address size %d not supported",
				addrSize)
		}

		segmentSize, err := decode.U8()
		if err != nil {
			return nil, err
		}
		if segmentSize != 0 {
			return nil, fmt.Errorf(
				"failed to parse aranges. segmented addresses not supported")
		}

		// tuples are aligned to twice the address size, relative to the set
		tupleSize := 2 * int(addrSize)
		headerSize := decode.Position - setStart
		padding := (tupleSize - headerSize%tupleSize) % tupleSize
		_, err = decode.Bytes(padding)
		if err != nil {
			return nil, err
		}

		for decode.Position+tupleSize <= setEnd {
			addr, err := decode.U64()
			if err != nil {
				return nil, err
			}

			size, err := decode.U64()
			if err != nil {
				return nil, err
			}

			if addr == 0 && size == 0 {
				break
			}

			ranges = append(
				ranges,
				UnitAddressRange{
					AddressRange: AddressRange{
						Low:  elf.FileAddress(addr),
						High: elf.FileAddress(addr + size),
					},
					UnitOffset: SectionOffset(unitOffset),
				})
		}

		decode.Position = setEnd
	}

	return &ArangesSection{
		Ranges: ranges,
	}, nil
}

func (section *ArangesSection) UnitOffsetContainingAddress(
	address elf.FileAddress,
) (
	SectionOffset,
	bool,
) {
	for _, unitRange := range section.Ranges {
		if unitRange.Contains(address) {
			return unitRange.UnitOffset, true
		}
	}
	return 0, false
}
