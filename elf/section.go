package elf

import (
	"bytes"
	"fmt"

	"github.com/ianlancetaylor/demangle"
)

type FileAddress uint64

type Section interface {
	Header() SectionHeaderEntry
	Name() string

	RawContent() ([]byte, error)

	bindName(sectionNames *StringTableSection)
}

type BaseSection struct {
	SectionHeaderEntry

	name string
}

func newBaseSection(header SectionHeaderEntry) BaseSection {
	return BaseSection{
		SectionHeaderEntry: header,
	}
}

func (base *BaseSection) Header() SectionHeaderEntry {
	return base.SectionHeaderEntry
}

func (base *BaseSection) Name() string {
	return base.name
}

func (base *BaseSection) bindName(sectionNames *StringTableSection) {
	base.name = sectionNames.Get(base.NameIndex)
}

func (BaseSection) RawContent() ([]byte, error) {
	return nil, fmt.Errorf("cannot get raw content")
}

// NOTE: raw sections reference the parsed buffer directly.  The buffer must
// outlive the file (e.g., a read-only memory mapping).
type RawSection struct {
	BaseSection

	Content []byte
}

func newRawSection(header SectionHeaderEntry, content []byte) *RawSection {
	return &RawSection{
		BaseSection: newBaseSection(header),
		Content:     content,
	}
}

// RawContent returns the section's content as stored in the file, i.e.,
// SHF_COMPRESSED sections are not decompressed.  See File.SectionContent.
func (section *RawSection) RawContent() ([]byte, error) {
	return section.Content, nil
}

type StringTableSection struct {
	BaseSection

	Content []byte
}

func NewStringTableSection(
	header SectionHeaderEntry,
	content []byte,
) *StringTableSection {
	return &StringTableSection{
		BaseSection: newBaseSection(header),
		Content:     content,
	}
}

func (table *StringTableSection) RawContent() ([]byte, error) {
	return table.Content, nil
}

func (table *StringTableSection) Get(index uint32) string {
	if index >= uint32(len(table.Content)) {
		return ""
	}

	chunk := table.Content[index:]
	end := bytes.IndexByte(chunk, 0)
	if end == -1 {
		return ""
	}

	return string(chunk[:end])
}

type Symbol struct {
	SymbolEntry

	Name          string
	DemangledName string // human readable c++ / rust name
}

func (symbol *Symbol) PrettyName() string {
	if symbol.DemangledName != "" {
		return symbol.DemangledName
	}

	return symbol.Name
}

func (symbol *Symbol) Type() SymbolType {
	return SymbolInfoToType(symbol.Info)
}

func (symbol *Symbol) Binding() SymbolBinding {
	return SymbolInfoToBinding(symbol.Info)
}

func (symbol *Symbol) IsFunction() bool {
	return symbol.Type() == SymbolTypeFunction ||
		symbol.Type() == SymbolTypeIndirect
}

func (symbol *Symbol) AddressRange() (FileAddress, FileAddress, bool) {
	if symbol.Value == 0 ||
		symbol.NameIndex == 0 ||
		symbol.Type() == SymbolTypeTLSObject {

		return 0, 0, false
	}

	start := FileAddress(symbol.Value)
	end := FileAddress(symbol.Value + symbol.Size)
	return start, end, true
}

type SymbolTableSection struct {
	BaseSection

	Symbols []*Symbol
}

func (table *SymbolTableSection) bindSymbolNames(names *StringTableSection) {
	for _, symbol := range table.Symbols {
		symbol.Name = names.Get(symbol.NameIndex)
		val, err := demangle.ToString(symbol.Name)
		if err == nil {
			symbol.DemangledName = val
		}
	}
}

func (table *SymbolTableSection) SymbolsByName(name string) []*Symbol {
	result := []*Symbol{}
	for _, symbol := range table.Symbols {
		if symbol.Name == name || symbol.DemangledName == name {
			result = append(result, symbol)
		}
	}
	return result
}

func (table *SymbolTableSection) SymbolSpans(address FileAddress) *Symbol {
	for _, symbol := range table.Symbols {
		low, high, ok := symbol.AddressRange()
		if !ok {
			continue
		}

		// zero sized symbols only match their exact address
		if low == address || (low < address && address < high) {
			return symbol
		}
	}

	return nil
}
