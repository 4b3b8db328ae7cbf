package dwarf

import (
	"encoding/binary"
	"fmt"
)

var (
	ErrSectionNotFound = fmt.Errorf("section not found")
)

// SectionSource provides raw section content by name.  *elf.File implements
// this interface.
type SectionSource interface {
	ByteOrder() binary.ByteOrder

	// SectionContent returns (nil, false, nil) when the section does not
	// exist.
	SectionContent(name string) ([]byte, bool, error)
}

type File struct {
	SectionSource

	*AbbreviationSection
	*InformationSection
	*StringSection
	*ArangesSection

	LineStringSection    *StringSection
	StringOffsetsSection *StringOffsetsSection
	AddressSection       *AddressSection
	AddressRangesSection *AddressRangesSection
	RangeListsSection    *RangeListsSection

	// nil when the file has no .debug_types section.
	TypesSection *InformationSection

	typeUnits map[TypeSignature]*CompileUnit
}

func NewFile(source SectionSource) (*File, error) {
	byteOrder := source.ByteOrder()

	load := func(name string, required bool) ([]byte, bool, error) {
		content, found, err := source.SectionContent(name)
		if err != nil {
			return nil, false, err
		}
		if !found && required {
			return nil, false, fmt.Errorf("elf %s %w", name, ErrSectionNotFound)
		}
		return content, found, nil
	}

	content, _, err := load(ElfDebugAbbreviationSection, true)
	if err != nil {
		return nil, err
	}

	abbrevSection, err := NewAbbreviationSection(byteOrder, content)
	if err != nil {
		return nil, err
	}

	file := &File{
		SectionSource:       source,
		AbbreviationSection: abbrevSection,
	}

	content, found, err := load(ElfDebugStringSection, false)
	if err != nil {
		return nil, err
	}
	file.StringSection = NewStringSection(ElfDebugStringSection, content, found)

	content, found, err = load(ElfDebugLineStringSection, false)
	if err != nil {
		return nil, err
	}
	file.LineStringSection = NewStringSection(
		ElfDebugLineStringSection,
		content,
		found)

	content, found, err = load(ElfDebugStringOffsetsSection, false)
	if err != nil {
		return nil, err
	}
	file.StringOffsetsSection = NewStringOffsetsSection(byteOrder, content, found)

	content, found, err = load(ElfDebugAddressSection, false)
	if err != nil {
		return nil, err
	}
	file.AddressSection = NewAddressSection(byteOrder, content, found)

	content, found, err = load(ElfDebugRangesSection, false)
	if err != nil {
		return nil, err
	}
	file.AddressRangesSection = NewAddressRangesSection(byteOrder, content, found)

	content, found, err = load(ElfDebugRangeListsSection, false)
	if err != nil {
		return nil, err
	}
	file.RangeListsSection = NewRangeListsSection(byteOrder, content, found)

	content, _, err = load(ElfDebugArangesSection, false)
	if err != nil {
		return nil, err
	}
	file.ArangesSection, err = NewArangesSection(byteOrder, content)
	if err != nil {
		return nil, err
	}

	content, _, err = load(ElfDebugInformationSection, true)
	if err != nil {
		return nil, err
	}
	file.InformationSection, err = NewInformationSection(
		file,
		ElfDebugInformationSection,
		content)
	if err != nil {
		return nil, err
	}

	content, found, err = load(ElfDebugTypesSection, false)
	if err != nil {
		return nil, err
	}
	if found {
		file.TypesSection, err = NewInformationSection(
			file,
			ElfDebugTypesSection,
			content)
		if err != nil {
			return nil, err
		}
	}

	file.indexTypeUnits()

	return file, nil
}

func (file *File) indexTypeUnits() {
	file.typeUnits = map[TypeSignature]*CompileUnit{}

	sections := []*InformationSection{file.InformationSection}
	if file.TypesSection != nil {
		sections = append(sections, file.TypesSection)
	}

	for _, section := range sections {
		for _, unit := range section.CompileUnits {
			if !unit.IsTypeUnit() {
				continue
			}

			// first definition wins (comdat duplicates are identical)
			_, ok := file.typeUnits[unit.Signature]
			if !ok {
				file.typeUnits[unit.Signature] = unit
			}
		}
	}
}

// TypeUnit returns the type unit (from either .debug_info or .debug_types)
// with the given signature.
func (file *File) TypeUnit(signature TypeSignature) (*CompileUnit, bool) {
	unit, ok := file.typeUnits[signature]
	return unit, ok
}
