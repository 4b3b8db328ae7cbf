package elf

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sort"
	"strings"
)

// Resources:
// https://refspecs.linuxfoundation.org/

var (
	supportedArchitectures = map[MachineArchitecture]DataEncoding{
		MachineArchitectureX86_64:  DataEncodingLittleEndian,
		MachineArchitectureAArch64: DataEncodingLittleEndian,
		MachineArchitectureRISCV:   DataEncodingLittleEndian,
	}
)

type File struct {
	ElfHeader
	Sections []Section

	byteOrder binary.ByteOrder
}

func (file *File) ByteOrder() binary.ByteOrder {
	return file.byteOrder
}

// Position independent executables and shared libraries are both ET_DYN.
// Their debug info addresses are relative to the runtime load bias.
func (file *File) IsPositionIndependent() bool {
	return file.FileType == FileTypeSharedObject
}

func (file *File) GetSection(name string) (Section, bool) {
	for _, section := range file.Sections {
		if section.Name() == name {
			return section, true
		}
	}

	return nil, false
}

// SectionContent returns the (decompressed) content of the named section.
// Sections without file content (SHT_NOBITS) are reported as not found.
// When a .debug_* section is missing, its gnu compressed .zdebug_*
// counterpart is used instead.
func (file *File) SectionContent(name string) ([]byte, bool, error) {
	content, ok, err := file.sectionContent(name)
	if ok || err != nil {
		return content, ok, err
	}

	suffix, isDebug := strings.CutPrefix(name, ".debug_")
	if !isDebug {
		return nil, false, nil
	}

	content, ok, err = file.sectionContent(".zdebug_" + suffix)
	if !ok || err != nil {
		return nil, ok, err
	}

	content, err = decompressGnu(content)
	if err != nil {
		return nil, true, fmt.Errorf("failed to read .zdebug_%s section: %w", suffix, err)
	}

	return content, true, nil
}

func (file *File) sectionContent(name string) ([]byte, bool, error) {
	section, ok := file.GetSection(name)
	if !ok || section.Header().SectionType == SectionTypeNoSpace {
		return nil, false, nil
	}

	content, err := section.RawContent()
	if err != nil {
		return nil, true, fmt.Errorf("failed to read %s section: %w", name, err)
	}

	if section.Header().SectionFlags&SectionIsCompressed != 0 {
		content, err = Decompress(file.byteOrder, content)
		if err != nil {
			return nil, true, fmt.Errorf("failed to read %s section: %w", name, err)
		}
	}

	return content, true, nil
}

func (file *File) SymbolTables() []*SymbolTableSection {
	result := []*SymbolTableSection{}
	for _, name := range []string{SymbolTableName, DynamicSymbolTableName} {
		section, ok := file.GetSection(name)
		if !ok {
			continue
		}

		table, ok := section.(*SymbolTableSection)
		if ok {
			result = append(result, table)
		}
	}
	return result
}

func (file *File) SymbolsByName(name string) []*Symbol {
	result := []*Symbol{}
	for _, table := range file.SymbolTables() {
		result = append(result, table.SymbolsByName(name)...)
	}
	return result
}

func (file *File) SymbolSpans(address FileAddress) *Symbol {
	for _, table := range file.SymbolTables() {
		symbol := table.SymbolSpans(address)
		if symbol != nil {
			return symbol
		}
	}
	return nil
}

// FunctionSymbols returns defined function symbols sorted by address.  A
// symbol present in both .symtab and .dynsym is only returned once.
func (file *File) FunctionSymbols() []*Symbol {
	type key struct {
		name  string
		value uint64
	}

	seen := map[key]struct{}{}
	result := []*Symbol{}
	for _, table := range file.SymbolTables() {
		for _, symbol := range table.Symbols {
			if !symbol.IsFunction() {
				continue
			}

			_, _, ok := symbol.AddressRange()
			if !ok {
				continue
			}

			k := key{symbol.Name, symbol.Value}
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}

			result = append(result, symbol)
		}
	}

	sort.SliceStable(
		result,
		func(i int, j int) bool { return result[i].Value < result[j].Value })

	return result
}

type parser struct {
	content []byte

	File
}

func Parse(reader io.Reader) (*File, error) {
	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read elf file: %w", err)
	}

	return ParseBytes(content)
}

// ParseBytes parses the elf file without copying content.  The returned
// file's sections reference the given buffer.
func ParseBytes(content []byte) (*File, error) {
	p := parser{
		content: content,
	}

	err := p.parse()
	if err != nil {
		return nil, err
	}

	return &p.File, nil
}

func (p *parser) parse() error {
	// NOTE: identifier (e_ident) has no endian-ness.  We must parse identifier
	// to determine the elf file's endian-ness (including the elf header).
	err := p.parseIdentifier()
	if err != nil {
		return err
	}

	err = p.parseHeader()
	if err != nil {
		return err
	}

	return p.parseSections()
}

func (p *parser) parseIdentifier() error {
	id := &Identifier{}

	_, err := binary.Decode(p.content, binary.NativeEndian, id)
	if err != nil {
		return fmt.Errorf("failed to parse identifier: %w", err)
	}

	if !bytes.Equal(id.Magic[:], IdentifierMagic) {
		return fmt.Errorf("invalid elf magic number")
	}

	if id.Class != Class64 {
		return fmt.Errorf("unsupported elf class: %s", id.Class)
	}

	switch id.DataEncoding {
	case DataEncodingLittleEndian:
		p.byteOrder = binary.LittleEndian
	case DataEncodingBigEndian:
		p.byteOrder = binary.BigEndian
	default:
		return fmt.Errorf("unsupported data encoding: %s", id.DataEncoding)
	}

	if id.IdentifierVersion != IdentifierVersion {
		return fmt.Errorf(
			"unsupported identifier version: %d",
			id.IdentifierVersion)
	}

	if id.OperatingSystemABI != OperatingSystemABIUnixSystemV &&
		id.OperatingSystemABI != OperatingSystemABILinux {

		return fmt.Errorf("unsupported os/abi: %s", id.OperatingSystemABI)
	}

	return nil
}

func (p *parser) parseHeader() error {
	n, err := binary.Decode(p.content, p.byteOrder, &p.ElfHeader)
	if err != nil {
		return fmt.Errorf("failed to parse header: %w", err)
	}

	if n != Elf64HeaderSize {
		panic("should never happen")
	}

	encoding, ok := supportedArchitectures[p.MachineArchitecture]
	if !ok {
		return fmt.Errorf(
			"unsupported machine architecture: %s",
			p.MachineArchitecture)
	}

	if encoding != p.DataEncoding {
		return fmt.Errorf(
			"invalid data encoding (%s) for machine architecture (%s)",
			p.DataEncoding,
			p.MachineArchitecture)
	}

	if p.FormatVersion != FormatVersion {
		return fmt.Errorf("unsupported format version: %d", p.FormatVersion)
	}

	if p.ElfHeaderSize != Elf64HeaderSize {
		return fmt.Errorf("unexpected elf64 header size: %d", p.ElfHeaderSize)
	}

	if p.NumSectionHeaderEntries > 0 &&
		p.SectionHeaderEntrySize != Elf64SectionHeaderEntrySize {

		return fmt.Errorf(
			"unexpected elf64 section header entry size: %d",
			p.SectionHeaderEntrySize)
	}

	// For simplicity, we'll disallow extended section header.
	if p.SectionHeaderOffset > 0 && p.NumSectionHeaderEntries == 0 {
		return fmt.Errorf("extended section header not supported")
	}

	return nil
}

func (p *parser) parseSections() error {
	if p.NumSectionHeaderEntries == 0 {
		return nil
	}

	if p.SectionHeaderOffset >= uint64(len(p.content)) {
		return fmt.Errorf(
			"out of bound section header offset (%d)",
			p.SectionHeaderOffset)
	}

	headers := make([]SectionHeaderEntry, p.NumSectionHeaderEntries)
	_, err := binary.Decode(
		p.content[p.SectionHeaderOffset:],
		p.byteOrder,
		headers)
	if err != nil {
		return fmt.Errorf("failed to read section header entries: %w", err)
	}

	for _, header := range headers {
		var content []byte
		if header.SectionType != SectionTypeNoSpace {
			start := header.Offset
			end := start + header.Size
			if end < start || end > uint64(len(p.content)) {
				return fmt.Errorf(
					"out of bound section (%d > %d)",
					end,
					len(p.content))
			}

			content = p.content[start:end]
		}

		switch header.SectionType {
		case SectionTypeStringTable:
			p.Sections = append(
				p.Sections,
				NewStringTableSection(header, content))
		case SectionTypeSymbolTable, SectionTypeDynamicSymbolTable:
			table, err := p.parseSymbolTable(header, content)
			if err != nil {
				return err
			}
			p.Sections = append(p.Sections, table)
		default:
			p.Sections = append(p.Sections, newRawSection(header, content))
		}
	}

	if p.SectionStringTableIndex != SectionIndexUndefined {
		idx := int(p.SectionStringTableIndex)
		if idx >= len(p.Sections) {
			return fmt.Errorf(
				"section name index out of bound (%d >= %d)",
				idx,
				len(p.Sections))
		}

		names, ok := p.Sections[idx].(*StringTableSection)
		if !ok {
			return fmt.Errorf("section name index does not point to a string table")
		}

		for _, section := range p.Sections {
			section.bindName(names)
		}
	}

	// See elf spec. Figure 1-12. sh_link and sh_info Interpretation.
	for _, section := range p.Sections {
		table, ok := section.(*SymbolTableSection)
		if !ok || table.Link == 0 {
			continue
		}

		if table.Link >= uint32(len(p.Sections)) {
			return fmt.Errorf(
				"string table index out of bound (%d >= %d)",
				table.Link,
				len(p.Sections))
		}

		names, ok := p.Sections[table.Link].(*StringTableSection)
		if !ok {
			return fmt.Errorf("string table index does not point to a string table")
		}

		table.bindSymbolNames(names)
	}

	return nil
}

func (p *parser) parseSymbolTable(
	header SectionHeaderEntry,
	content []byte,
) (
	*SymbolTableSection,
	error,
) {
	if len(content)%Elf64SymbolEntrySize != 0 {
		return nil, fmt.Errorf("invalid symbol table size (%d)", len(content))
	}

	numEntries := len(content) / Elf64SymbolEntrySize
	entries := make([]SymbolEntry, numEntries)
	_, err := binary.Decode(content, p.byteOrder, entries)
	if err != nil {
		return nil, fmt.Errorf("failed to parse symbol table: %w", err)
	}

	symbols := make([]*Symbol, 0, numEntries)
	for _, entry := range entries {
		symbols = append(symbols, &Symbol{SymbolEntry: entry})
	}

	return &SymbolTableSection{
		BaseSection: newBaseSection(header),
		Symbols:     symbols,
	}, nil
}
