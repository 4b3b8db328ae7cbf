package dwarf

import (
	"encoding/binary"
	"fmt"
)

const (
	ElfDebugAbbreviationSection = ".debug_abbrev"
)

type AttributeSpec struct {
	Attribute
	Format

	// Only applicable to DW_FORM_implicit_const
	ImplicitConst int64
}

type Abbreviation struct {
	Code uint64
	Tag
	HasChildren    bool
	AttributeSpecs []AttributeSpec
}

type AbbreviationTable map[uint64]*Abbreviation

type AbbreviationSection struct {
	AbbreviationTables map[SectionOffset]AbbreviationTable
}

func NewAbbreviationSection(
	byteOrder binary.ByteOrder,
	content []byte,
) (
	*AbbreviationSection,
	error,
) {
	tables := map[SectionOffset]AbbreviationTable{}

	decode := NewCursor(byteOrder, content)
	for !decode.HasReachedEnd() {
		tableId := SectionOffset(decode.Position)

		table, err := parseAbbreviationTable(decode)
		if err != nil {
			return nil, fmt.Errorf(
				"failed to parse abbreviation table (%d): %w",
				tableId,
				err)
		}

		tables[tableId] = table
	}

	return &AbbreviationSection{
		AbbreviationTables: tables,
	}, nil
}

func parseAbbreviationTable(decode *Cursor) (AbbreviationTable, error) {
	table := AbbreviationTable{}
	for {
		code, err := decode.ULEB128(64)
		if err != nil {
			return nil, fmt.Errorf("invalid code: %w", err)
		}

		if code == 0 {
			return table, nil
		}

		tag, err := decode.ULEB128(64)
		if err != nil {
			return nil, fmt.Errorf("invalid tag: %w", err)
		}

		hasChildren, err := decode.U8()
		if err != nil {
			return nil, fmt.Errorf("invalid hasChildren: %w", err)
		}

		var specs []AttributeSpec
		for {
			attribute, err := decode.ULEB128(64)
			if err != nil {
				return nil, fmt.Errorf("invalid attribute: %w", err)
			}

			format, err := decode.ULEB128(64)
			if err != nil {
				return nil, fmt.Errorf("invalid format: %w", err)
			}

			if attribute == 0 && format == 0 {
				break
			}

			spec := AttributeSpec{
				Attribute: Attribute(attribute),
				Format:    Format(format),
			}

			if spec.Format == DW_FORM_implicit_const {
				spec.ImplicitConst, err = decode.SLEB128(64)
				if err != nil {
					return nil, fmt.Errorf("invalid implicit const: %w", err)
				}
			}

			specs = append(specs, spec)
		}

		_, ok := table[code]
		if ok {
			return nil, fmt.Errorf("duplicate abbreviation code (%d)", code)
		}

		table[code] = &Abbreviation{
			Code:           code,
			Tag:            Tag(tag),
			HasChildren:    hasChildren != 0,
			AttributeSpecs: specs,
		}
	}
}
