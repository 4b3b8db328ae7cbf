package dwarf

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/pattyshack/argspec/elf"
)

const (
	ElfDebugRangesSection     = ".debug_ranges"
	ElfDebugRangeListsSection = ".debug_rnglists"

	baseAddressFlag = ^uint64(0)
)

type AddressRange struct {
	Low  elf.FileAddress
	High elf.FileAddress
}

func (addrRange AddressRange) Contains(addr elf.FileAddress) bool {
	return addrRange.Low <= addr && addr < addrRange.High
}

type AddressRanges []AddressRange

func (ranges AddressRanges) Contains(addr elf.FileAddress) bool {
	for _, addrRange := range ranges {
		if addrRange.Contains(addr) {
			return true
		}
	}
	return false
}

// .debug_ranges (dwarf 2-4)
type AddressRangesSection struct {
	byteOrder binary.ByteOrder
	found     bool
	content   []byte
}

func NewAddressRangesSection(
	byteOrder binary.ByteOrder,
	content []byte,
	found bool,
) *AddressRangesSection {
	return &AddressRangesSection{
		byteOrder: byteOrder,
		found:     found,
		content:   content,
	}
}

func (section *AddressRangesSection) AddressRangesAt(
	index SectionOffset,
	baseAddress elf.FileAddress,
) (
	AddressRanges,
	error,
) {
	if !section.found {
		return nil, fmt.Errorf(
			"elf %s %w",
			ElfDebugRangesSection,
			ErrSectionNotFound)
	}

	decode := NewCursor(section.byteOrder, section.content)
	_, err := decode.Seek(int(index), io.SeekStart)
	if err != nil {
		return nil, fmt.Errorf("invalid address ranges index (%d): %w", index, err)
	}

	result := AddressRanges{}
	for !decode.HasReachedEnd() {
		low, err := decode.U64()
		if err != nil {
			return nil, fmt.Errorf(
				"failed to parse address ranges. cannot decode low: %w",
				err)
		}

		high, err := decode.U64()
		if err != nil {
			return nil, fmt.Errorf(
				"failed to parse address ranges. cannot decode high: %w",
				err)
		}

		if low == baseAddressFlag {
			baseAddress = elf.FileAddress(high)
			continue
		}

		if low == 0 && high == 0 {
			return result, nil
		}

		result = append(
			result,
			AddressRange{
				Low:  baseAddress + elf.FileAddress(low),
				High: baseAddress + elf.FileAddress(high),
			})
	}

	return nil, fmt.Errorf("address ranges (%d) not terminated", index)
}

// .debug_rnglists (dwarf 5)
type RangeListsSection struct {
	byteOrder binary.ByteOrder
	found     bool
	content   []byte
}

func NewRangeListsSection(
	byteOrder binary.ByteOrder,
	content []byte,
	found bool,
) *RangeListsSection {
	return &RangeListsSection{
		byteOrder: byteOrder,
		found:     found,
		content:   content,
	}
}

// RangeListOffset translates a DW_FORM_rnglistx index into a section offset.
// base is the unit's DW_AT_rnglists_base, which points at the offset table.
func (section *RangeListsSection) RangeListOffset(
	base SectionOffset,
	idx RangeListIndex,
) (
	SectionOffset,
	error,
) {
	if !section.found {
		return 0, fmt.Errorf(
			"elf %s %w",
			ElfDebugRangeListsSection,
			ErrSectionNotFound)
	}

	pos := int(base) + int(idx)*4
	if int(base) < 0 || pos < int(base) || pos+4 > len(section.content) {
		return 0, fmt.Errorf("out of bound range list index (%d)", idx)
	}

	return base + SectionOffset(section.byteOrder.Uint32(section.content[pos:])), nil
}

// RangeListAt decodes the range list at the given section offset.
// resolveAddress translates .debug_addr indices for the owning unit.
func (section *RangeListsSection) RangeListAt(
	offset SectionOffset,
	baseAddress elf.FileAddress,
	resolveAddress func(uint64) (elf.FileAddress, error),
) (
	AddressRanges,
	error,
) {
	if !section.found {
		return nil, fmt.Errorf(
			"elf %s %w",
			ElfDebugRangeListsSection,
			ErrSectionNotFound)
	}

	decode := NewCursor(section.byteOrder, section.content)
	_, err := decode.Seek(int(offset), io.SeekStart)
	if err != nil {
		return nil, fmt.Errorf("invalid range list offset (%d): %w", offset, err)
	}

	result := AddressRanges{}
	for !decode.HasReachedEnd() {
		kind, err := decode.U8()
		if err != nil {
			return nil, err
		}

		switch kind {
		case DW_RLE_end_of_list:
			return result, nil

		case DW_RLE_base_addressx:
			idx, err := decode.ULEB128(64)
			if err != nil {
				return nil, err
			}

			baseAddress, err = resolveAddress(idx)
			if err != nil {
				return nil, err
			}

		case DW_RLE_startx_endx:
			startIdx, err := decode.ULEB128(64)
			if err != nil {
				return nil, err
			}

			endIdx, err := decode.ULEB128(64)
			if err != nil {
				return nil, err
			}

			low, err := resolveAddress(startIdx)
			if err != nil {
				return nil, err
			}

			high, err := resolveAddress(endIdx)
			if err != nil {
				return nil, err
			}

			result = append(result, AddressRange{Low: low, High: high})

		case DW_RLE_startx_length:
			startIdx, err := decode.ULEB128(64)
			if err != nil {
				return nil, err
			}

			length, err := decode.ULEB128(64)
			if err != nil {
				return nil, err
			}

			low, err := resolveAddress(startIdx)
			if err != nil {
				return nil, err
			}

			result = append(
				result,
				AddressRange{Low: low, High: low + elf.FileAddress(length)})

		case DW_RLE_offset_pair:
			start, err := decode.ULEB128(64)
			if err != nil {
				return nil, err
			}

			end, err := decode.ULEB128(64)
			if err != nil {
				return nil, err
			}

			result = append(
				result,
				AddressRange{
					Low:  baseAddress + elf.FileAddress(start),
					High: baseAddress + elf.FileAddress(end),
				})

		case DW_RLE_base_address:
			addr, err := decode.U64()
			if err != nil {
				return nil, err
			}

			baseAddress = elf.FileAddress(addr)

		case DW_RLE_start_end:
			low, err := decode.U64()
			if err != nil {
				return nil, err
			}

			high, err := decode.U64()
			if err != nil {
				return nil, err
			}

			result = append(
				result,
				AddressRange{
					Low:  elf.FileAddress(low),
					High: elf.FileAddress(high),
				})

		case DW_RLE_start_length:
			low, err := decode.U64()
			if err != nil {
				return nil, err
			}

			length, err := decode.ULEB128(64)
			if err != nil {
				return nil, err
			}

			result = append(
				result,
				AddressRange{
					Low:  elf.FileAddress(low),
					High: elf.FileAddress(low + length),
				})

		default:
			return nil, fmt.Errorf("unsupported range list entry kind (%d)", kind)
		}
	}

	return nil, fmt.Errorf("range list (%d) not terminated", offset)
}
