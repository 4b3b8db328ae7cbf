// Package elftest builds minimal little endian elf64 images for tests.  The
// images carry section headers only (no program headers), which is enough
// for section and symbol lookups.
package elftest

import (
	"bytes"
	"encoding/binary"

	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"

	"github.com/pattyshack/argspec/elf"
)

type Section struct {
	Name    string
	Content []byte
	Flags   elf.SectionFlags
}

type Symbol struct {
	Name  string
	Value uint64
	Size  uint64
	Type  elf.SymbolType
}

type File struct {
	FileType            elf.FileType
	MachineArchitecture elf.MachineArchitecture

	Sections []Section
	Symbols  []Symbol
}

type stringTable struct {
	content []byte
}

func newStringTable() *stringTable {
	return &stringTable{content: []byte{0}}
}

func (table *stringTable) add(value string) uint32 {
	if value == "" {
		return 0
	}

	idx := uint32(len(table.content))
	table.content = append(table.content, value...)
	table.content = append(table.content, 0)
	return idx
}

type section struct {
	name   string
	header elf.SectionHeaderEntry
	data   []byte
}

func (file File) Bytes() []byte {
	arch := file.MachineArchitecture
	if arch == elf.MachineArchitectureNone {
		arch = elf.MachineArchitectureX86_64
	}

	fileType := file.FileType
	if fileType == elf.FileTypeNone {
		fileType = elf.FileTypeExecutable
	}

	sections := []*section{
		{}, // SHN_UNDEF
	}

	for _, s := range file.Sections {
		sections = append(
			sections,
			&section{
				name: s.Name,
				header: elf.SectionHeaderEntry{
					SectionType:      elf.SectionTypeProgramDefinedInfo,
					SectionFlags:     s.Flags,
					AddressAlignment: 1,
				},
				data: s.Content,
			})
	}

	if len(file.Symbols) > 0 {
		names := newStringTable()

		symbols := &bytes.Buffer{}
		writeValue(symbols, elf.SymbolEntry{})
		for _, symbol := range file.Symbols {
			writeValue(
				symbols,
				elf.SymbolEntry{
					NameIndex:    names.add(symbol.Name),
					Info:         elf.SymbolInfo(elf.SymbolBindingGlobal, symbol.Type),
					SectionIndex: 1,
					Value:        symbol.Value,
					Size:         symbol.Size,
				})
		}

		symbolTableIdx := len(sections)
		sections = append(
			sections,
			&section{
				name: elf.SymbolTableName,
				header: elf.SectionHeaderEntry{
					SectionType:      elf.SectionTypeSymbolTable,
					Link:             uint32(symbolTableIdx + 1),
					Info:             1,
					AddressAlignment: 8,
					EntrySize:        elf.Elf64SymbolEntrySize,
				},
				data: symbols.Bytes(),
			},
			&section{
				name: elf.StringTableName,
				header: elf.SectionHeaderEntry{
					SectionType:      elf.SectionTypeStringTable,
					AddressAlignment: 1,
				},
				data: names.content,
			})
	}

	sectionNames := newStringTable()
	namesSection := &section{
		name: elf.SectionStringTableName,
		header: elf.SectionHeaderEntry{
			SectionType:      elf.SectionTypeStringTable,
			AddressAlignment: 1,
		},
	}
	sections = append(sections, namesSection)

	for _, s := range sections[1:] {
		s.header.NameIndex = sectionNames.add(s.name)
	}
	namesSection.data = sectionNames.content

	// Layout: elf header, section contents, section header table
	offset := uint64(elf.Elf64HeaderSize)
	for _, s := range sections[1:] {
		s.header.Offset = offset
		s.header.Size = uint64(len(s.data))
		offset += s.header.Size
	}

	// section header table is 8-byte aligned
	padding := (8 - offset%8) % 8
	sectionHeaderOffset := offset + padding

	header := elf.ElfHeader{
		Identifier: elf.Identifier{
			Class:              elf.Class64,
			DataEncoding:       elf.DataEncodingLittleEndian,
			IdentifierVersion:  elf.IdentifierVersion,
			OperatingSystemABI: elf.OperatingSystemABIUnixSystemV,
		},
		FileType:                fileType,
		MachineArchitecture:     arch,
		FormatVersion:           elf.FormatVersion,
		SectionHeaderOffset:     sectionHeaderOffset,
		ElfHeaderSize:           elf.Elf64HeaderSize,
		ProgramHeaderEntrySize:  elf.Elf64ProgramHeaderEntrySize,
		SectionHeaderEntrySize:  elf.Elf64SectionHeaderEntrySize,
		NumSectionHeaderEntries: uint16(len(sections)),
		SectionStringTableIndex: elf.SectionIndex(len(sections) - 1),
	}
	copy(header.Magic[:], elf.IdentifierMagic)

	buffer := &bytes.Buffer{}
	writeValue(buffer, header)
	for _, s := range sections[1:] {
		buffer.Write(s.data)
	}
	buffer.Write(make([]byte, padding))
	for _, s := range sections {
		writeValue(buffer, s.header)
	}

	return buffer.Bytes()
}

func writeValue(buffer *bytes.Buffer, value interface{}) {
	err := binary.Write(buffer, binary.LittleEndian, value)
	if err != nil {
		panic(err)
	}
}

// Compress returns the content of a SHF_COMPRESSED section (an Elf64_Chdr
// followed by the compressed payload).
func Compress(ctype elf.CompressionType, content []byte) []byte {
	payload := &bytes.Buffer{}
	switch ctype {
	case elf.CompressionTypeZlib:
		writer := zlib.NewWriter(payload)
		_, err := writer.Write(content)
		if err != nil {
			panic(err)
		}
		err = writer.Close()
		if err != nil {
			panic(err)
		}
	case elf.CompressionTypeZstd:
		encoder, err := zstd.NewWriter(nil)
		if err != nil {
			panic(err)
		}
		payload.Write(encoder.EncodeAll(content, nil))
		err = encoder.Close()
		if err != nil {
			panic(err)
		}
	default:
		// unknown types carry the content as is
		payload.Write(content)
	}

	buffer := &bytes.Buffer{}
	writeValue(
		buffer,
		elf.CompressionHeader{
			CompressionType:  ctype,
			Size:             uint64(len(content)),
			AddressAlignment: 1,
		})
	buffer.Write(payload.Bytes())
	return buffer.Bytes()
}

// CompressGnu returns the content of a gnu .zdebug_* section.
func CompressGnu(content []byte) []byte {
	buffer := &bytes.Buffer{}
	buffer.WriteString("ZLIB")

	size := binary.BigEndian.AppendUint64(nil, uint64(len(content)))
	buffer.Write(size)

	writer := zlib.NewWriter(buffer)
	_, err := writer.Write(content)
	if err != nil {
		panic(err)
	}
	err = writer.Close()
	if err != nil {
		panic(err)
	}

	return buffer.Bytes()
}
