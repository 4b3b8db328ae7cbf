// Package dwarftest encodes little endian DWARF 4 / 5 sections from a DIE
// tree description.  Each DIE gets its own abbreviation, references are
// patched once every unit has been laid out, and DWARF 5 string / address
// indices are collected into per-unit .debug_str_offsets / .debug_addr
// contributions (the matching base attributes are injected into the root).
// Type units are emitted into .debug_info (DWARF 5) or .debug_types
// (DWARF 4).
package dwarftest

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/pattyshack/argspec/dwarf"
	"github.com/pattyshack/argspec/elf/elftest"
)

// Attribute value types by format:
//
//	addr, addrx*, data*, udata, sec_offset, rnglistx,
//	ref_sig8, ref_sup4, GNU_ref_alt:  uint64
//	sdata, implicit_const:            int64
//	flag:                             bool
//	flag_present:                     nil
//	string, strp, line_strp, strx*:   string
//	ref4, ref_addr:                   *DIE
//	block1, exprloc:                  []byte
type Attr struct {
	dwarf.Attribute
	dwarf.Format
	Value interface{}
}

type DIE struct {
	dwarf.Tag
	Attrs    []Attr
	Children []*DIE

	offset int
	unit   *Unit
}

func (die *DIE) Add(children ...*DIE) *DIE {
	die.Children = append(die.Children, children...)
	return die
}

// Offset returns the entry's section offset (.debug_types for DWARF 4 type
// units, .debug_info otherwise).  Only valid after Build.
func (die *DIE) Offset() dwarf.SectionOffset {
	return dwarf.SectionOffset(die.offset)
}

// OffsetInUnit returns the entry's offset relative to its unit header.  Only
// valid after Build.
func (die *DIE) OffsetInUnit() dwarf.SectionOffset {
	return dwarf.SectionOffset(die.offset - die.unit.offset)
}

type Unit struct {
	Version uint16 // defaults to 4
	Root    *DIE

	// Only set for type units.
	Signature uint64
	TypeDIE   *DIE

	offset int
}

func (unit *Unit) isTypeUnit() bool {
	return unit.TypeDIE != nil
}

func (unit *Unit) Offset() dwarf.SectionOffset {
	return dwarf.SectionOffset(unit.offset)
}

type Arange struct {
	*Unit
	Low  uint64
	Size uint64
}

type Range struct {
	Low  uint64
	High uint64
}

type Builder struct {
	Units   []*Unit
	Aranges []Arange

	ranges     []byte
	rangeLists []byte
}

func (builder *Builder) AddUnit(version uint16, root *DIE) *Unit {
	unit := &Unit{
		Version: version,
		Root:    root,
	}
	builder.Units = append(builder.Units, unit)
	return unit
}

// AddTypeUnit adds a type unit defining typeDIE (a descendant of root)
// under the given signature.
func (builder *Builder) AddTypeUnit(
	version uint16,
	signature uint64,
	root *DIE,
	typeDIE *DIE,
) *Unit {
	unit := &Unit{
		Version:   version,
		Root:      root,
		Signature: signature,
		TypeDIE:   typeDIE,
	}
	builder.Units = append(builder.Units, unit)
	return unit
}

func (builder *Builder) AddArange(unit *Unit, low uint64, size uint64) {
	builder.Aranges = append(
		builder.Aranges,
		Arange{
			Unit: unit,
			Low:  low,
			Size: size,
		})
}

// AddRanges appends a .debug_ranges list (addresses relative to the unit's
// base address) and returns its section offset.
func (builder *Builder) AddRanges(ranges ...Range) uint64 {
	offset := uint64(len(builder.ranges))
	for _, r := range ranges {
		builder.ranges = binary.LittleEndian.AppendUint64(builder.ranges, r.Low)
		builder.ranges = binary.LittleEndian.AppendUint64(builder.ranges, r.High)
	}
	builder.ranges = binary.LittleEndian.AppendUint64(builder.ranges, 0)
	builder.ranges = binary.LittleEndian.AppendUint64(builder.ranges, 0)
	return offset
}

// AddRangeListTable appends a .debug_rnglists contribution holding the given
// lists (encoded as DW_RLE_start_end entries), indexed by DW_FORM_rnglistx.
// The returned value is the DW_AT_rnglists_base for the contribution.
func (builder *Builder) AddRangeListTable(lists ...[]Range) uint64 {
	var body []byte
	offsets := make([]uint32, 0, len(lists))
	tableSize := 4 * len(lists)
	for _, list := range lists {
		offsets = append(offsets, uint32(tableSize+len(body)))
		for _, r := range list {
			body = append(body, dwarf.DW_RLE_start_end)
			body = binary.LittleEndian.AppendUint64(body, r.Low)
			body = binary.LittleEndian.AppendUint64(body, r.High)
		}
		body = append(body, dwarf.DW_RLE_end_of_list)
	}

	header := []byte{}
	// length excludes the length field itself
	header = binary.LittleEndian.AppendUint32(
		header,
		uint32(2+1+1+4+tableSize+len(body)))
	header = binary.LittleEndian.AppendUint16(header, 5)
	header = append(header, 8, 0)
	header = binary.LittleEndian.AppendUint32(header, uint32(len(lists)))

	builder.rangeLists = append(builder.rangeLists, header...)
	base := uint64(len(builder.rangeLists))
	for _, offset := range offsets {
		builder.rangeLists = binary.LittleEndian.AppendUint32(
			builder.rangeLists,
			offset)
	}
	builder.rangeLists = append(builder.rangeLists, body...)

	return base
}

type fixup struct {
	position int
	target   *DIE
	relative *Unit // nil for section relative references
	types    bool  // true if the position is in .debug_types
}

type encoder struct {
	abbrev      []byte
	info        []byte // the section currently being written
	types       []byte
	inTypes     bool
	str         []byte
	lineStr     []byte
	strOffsets  []byte
	addr        []byte
	fixups      []fixup
	stringCache map[string]uint32
}

func (enc *encoder) addString(value string) uint32 {
	offset, ok := enc.stringCache[value]
	if ok {
		return offset
	}

	offset = uint32(len(enc.str))
	enc.str = append(enc.str, value...)
	enc.str = append(enc.str, 0)
	enc.stringCache[value] = offset
	return offset
}

func (enc *encoder) addLineString(value string) uint32 {
	offset := uint32(len(enc.lineStr))
	enc.lineStr = append(enc.lineStr, value...)
	enc.lineStr = append(enc.lineStr, 0)
	return offset
}

func appendULEB128(out []byte, value uint64) []byte {
	for {
		b := byte(value & 0x7f)
		value >>= 7
		if value != 0 {
			out = append(out, b|0x80)
		} else {
			return append(out, b)
		}
	}
}

func appendSLEB128(out []byte, value int64) []byte {
	for {
		b := byte(value & 0x7f)
		value >>= 7
		done := (value == 0 && b&0x40 == 0) || (value == -1 && b&0x40 != 0)
		if done {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}

func usesForm(die *DIE, match func(dwarf.Format) bool) bool {
	for _, attr := range die.Attrs {
		if match(attr.Format) {
			return true
		}
	}
	for _, child := range die.Children {
		if usesForm(child, match) {
			return true
		}
	}
	return false
}

func isStringIndex(format dwarf.Format) bool {
	switch format {
	case dwarf.DW_FORM_strx,
		dwarf.DW_FORM_strx1,
		dwarf.DW_FORM_strx2,
		dwarf.DW_FORM_strx4:
		return true
	}
	return false
}

func isAddressIndex(format dwarf.Format) bool {
	switch format {
	case dwarf.DW_FORM_addrx,
		dwarf.DW_FORM_addrx1,
		dwarf.DW_FORM_addrx2,
		dwarf.DW_FORM_addrx4:
		return true
	}
	return false
}

type unitState struct {
	*Unit
	abbrevCode     uint64
	strOffsetsBase int
	numStrings     int
	addrBase       int
	numAddrs       int
}

func (enc *encoder) encodeUnit(unit *Unit) error {
	version := unit.Version
	if version == 0 {
		version = 4
	}
	if version < 2 || version > 5 {
		return fmt.Errorf("unsupported version (%d)", version)
	}

	if unit.Root == nil {
		return fmt.Errorf("unit has no root")
	}

	state := &unitState{Unit: unit}

	if unit.isTypeUnit() && version < 5 {
		if version < 4 {
			return fmt.Errorf(".debug_types requires dwarf 4")
		}

		saved := enc.info
		enc.info = enc.types
		enc.inTypes = true
		defer func() {
			enc.types = enc.info
			enc.info = saved
			enc.inTypes = false
		}()
	}

	var strOffsetsHeader, addrHeader int
	root := unit.Root
	injected := []Attr{}
	if version >= 5 && usesForm(root, isStringIndex) {
		strOffsetsHeader = len(enc.strOffsets)
		enc.strOffsets = append(enc.strOffsets, 0, 0, 0, 0, 5, 0, 0, 0)
		state.strOffsetsBase = len(enc.strOffsets)
		injected = append(
			injected,
			Attr{
				dwarf.DW_AT_str_offsets_base,
				dwarf.DW_FORM_sec_offset,
				uint64(state.strOffsetsBase),
			})
	}
	if version >= 5 && usesForm(root, isAddressIndex) {
		addrHeader = len(enc.addr)
		enc.addr = append(enc.addr, 0, 0, 0, 0, 5, 0, 8, 0)
		state.addrBase = len(enc.addr)
		injected = append(
			injected,
			Attr{
				dwarf.DW_AT_addr_base,
				dwarf.DW_FORM_sec_offset,
				uint64(state.addrBase),
			})
	}

	abbrevOffset := len(enc.abbrev)

	unit.offset = len(enc.info)
	header := enc.info
	header = append(header, 0, 0, 0, 0) // patched below
	header = binary.LittleEndian.AppendUint16(header, version)
	if version >= 5 {
		unitType := byte(dwarf.DW_UT_compile)
		if unit.isTypeUnit() {
			unitType = dwarf.DW_UT_type
		}
		header = append(header, unitType, 8)
		header = binary.LittleEndian.AppendUint32(header, uint32(abbrevOffset))
	} else {
		header = binary.LittleEndian.AppendUint32(header, uint32(abbrevOffset))
		header = append(header, 8)
	}

	typeOffsetPosition := 0
	if unit.isTypeUnit() {
		header = binary.LittleEndian.AppendUint64(header, unit.Signature)
		typeOffsetPosition = len(header)
		header = append(header, 0, 0, 0, 0) // patched below
	}
	enc.info = header

	err := enc.encodeEntry(state, version, root, injected)
	if err != nil {
		return err
	}

	if unit.isTypeUnit() {
		if unit.TypeDIE.unit != unit {
			return fmt.Errorf("type unit's type entry is not in the unit")
		}
		binary.LittleEndian.PutUint32(
			enc.info[typeOffsetPosition:],
			uint32(unit.TypeDIE.offset-unit.offset))
	}

	enc.abbrev = append(enc.abbrev, 0) // end of table

	binary.LittleEndian.PutUint32(
		enc.info[unit.offset:],
		uint32(len(enc.info)-unit.offset-4))

	if state.strOffsetsBase != 0 {
		binary.LittleEndian.PutUint32(
			enc.strOffsets[strOffsetsHeader:],
			uint32(4+4*state.numStrings))
	}
	if state.addrBase != 0 {
		binary.LittleEndian.PutUint32(
			enc.addr[addrHeader:],
			uint32(4+8*state.numAddrs))
	}

	return nil
}

func (enc *encoder) encodeEntry(
	state *unitState,
	version uint16,
	die *DIE,
	extraAttrs []Attr,
) error {
	die.offset = len(enc.info)
	die.unit = state.Unit

	attrs := append(append([]Attr{}, extraAttrs...), die.Attrs...)

	state.abbrevCode++
	code := state.abbrevCode

	enc.abbrev = appendULEB128(enc.abbrev, code)
	enc.abbrev = appendULEB128(enc.abbrev, uint64(die.Tag))
	if len(die.Children) > 0 {
		enc.abbrev = append(enc.abbrev, 1)
	} else {
		enc.abbrev = append(enc.abbrev, 0)
	}
	for _, attr := range attrs {
		enc.abbrev = appendULEB128(enc.abbrev, uint64(attr.Attribute))
		enc.abbrev = appendULEB128(enc.abbrev, uint64(attr.Format))
		if attr.Format == dwarf.DW_FORM_implicit_const {
			enc.abbrev = appendSLEB128(enc.abbrev, attr.Value.(int64))
		}
	}
	enc.abbrev = append(enc.abbrev, 0, 0)

	enc.info = appendULEB128(enc.info, code)
	for _, attr := range attrs {
		err := enc.encodeValue(state, version, attr)
		if err != nil {
			return fmt.Errorf(
				"failed to encode %s (%s): %w",
				attr.Attribute,
				attr.Format,
				err)
		}
	}

	if len(die.Children) == 0 {
		return nil
	}

	for _, child := range die.Children {
		err := enc.encodeEntry(state, version, child, nil)
		if err != nil {
			return err
		}
	}

	enc.info = append(enc.info, 0) // end of children
	return nil
}

func (enc *encoder) encodeValue(
	state *unitState,
	version uint16,
	attr Attr,
) error {
	out := enc.info

	switch attr.Format {
	case dwarf.DW_FORM_addr, dwarf.DW_FORM_data8, dwarf.DW_FORM_ref_sig8:
		out = binary.LittleEndian.AppendUint64(out, attr.Value.(uint64))
	case dwarf.DW_FORM_data1:
		out = append(out, byte(attr.Value.(uint64)))
	case dwarf.DW_FORM_data2:
		out = binary.LittleEndian.AppendUint16(out, uint16(attr.Value.(uint64)))
	case dwarf.DW_FORM_data4,
		dwarf.DW_FORM_sec_offset,
		dwarf.DW_FORM_ref_sup4,
		dwarf.DW_FORM_GNU_ref_alt:
		out = binary.LittleEndian.AppendUint32(out, uint32(attr.Value.(uint64)))
	case dwarf.DW_FORM_udata, dwarf.DW_FORM_rnglistx:
		out = appendULEB128(out, attr.Value.(uint64))
	case dwarf.DW_FORM_sdata:
		out = appendSLEB128(out, attr.Value.(int64))
	case dwarf.DW_FORM_implicit_const, dwarf.DW_FORM_flag_present:
		// no encoded bytes
	case dwarf.DW_FORM_flag:
		if attr.Value.(bool) {
			out = append(out, 1)
		} else {
			out = append(out, 0)
		}
	case dwarf.DW_FORM_string:
		out = append(out, attr.Value.(string)...)
		out = append(out, 0)
	case dwarf.DW_FORM_strp:
		out = binary.LittleEndian.AppendUint32(
			out,
			enc.addString(attr.Value.(string)))
	case dwarf.DW_FORM_line_strp:
		out = binary.LittleEndian.AppendUint32(
			out,
			enc.addLineString(attr.Value.(string)))
	case dwarf.DW_FORM_strx,
		dwarf.DW_FORM_strx1,
		dwarf.DW_FORM_strx2,
		dwarf.DW_FORM_strx4:

		if version < 5 {
			return fmt.Errorf("string index requires dwarf 5")
		}

		enc.strOffsets = binary.LittleEndian.AppendUint32(
			enc.strOffsets,
			enc.addString(attr.Value.(string)))
		idx := uint64(state.numStrings)
		state.numStrings++

		out = appendIndex(out, attr.Format, idx)
	case dwarf.DW_FORM_addrx,
		dwarf.DW_FORM_addrx1,
		dwarf.DW_FORM_addrx2,
		dwarf.DW_FORM_addrx4:

		if version < 5 {
			return fmt.Errorf("address index requires dwarf 5")
		}

		enc.addr = binary.LittleEndian.AppendUint64(
			enc.addr,
			attr.Value.(uint64))
		idx := uint64(state.numAddrs)
		state.numAddrs++

		out = appendIndex(out, attr.Format, idx)
	case dwarf.DW_FORM_ref4:
		enc.fixups = append(
			enc.fixups,
			fixup{
				position: len(out),
				target:   attr.Value.(*DIE),
				relative: state.Unit,
				types:    enc.inTypes,
			})
		out = append(out, 0, 0, 0, 0)
	case dwarf.DW_FORM_ref_addr:
		if version <= 2 {
			return fmt.Errorf("ref_addr requires dwarf 3+")
		}
		if enc.inTypes {
			return fmt.Errorf("ref_addr not supported in .debug_types")
		}
		enc.fixups = append(
			enc.fixups,
			fixup{
				position: len(out),
				target:   attr.Value.(*DIE),
			})
		out = append(out, 0, 0, 0, 0)
	case dwarf.DW_FORM_block1:
		content := attr.Value.([]byte)
		out = append(out, byte(len(content)))
		out = append(out, content...)
	case dwarf.DW_FORM_exprloc:
		content := attr.Value.([]byte)
		out = appendULEB128(out, uint64(len(content)))
		out = append(out, content...)
	default:
		return fmt.Errorf("unsupported format")
	}

	enc.info = out
	return nil
}

func appendIndex(out []byte, format dwarf.Format, idx uint64) []byte {
	switch format {
	case dwarf.DW_FORM_strx1, dwarf.DW_FORM_addrx1:
		return append(out, byte(idx))
	case dwarf.DW_FORM_strx2, dwarf.DW_FORM_addrx2:
		return binary.LittleEndian.AppendUint16(out, uint16(idx))
	case dwarf.DW_FORM_strx4, dwarf.DW_FORM_addrx4:
		return binary.LittleEndian.AppendUint32(out, uint32(idx))
	default:
		return appendULEB128(out, idx)
	}
}

func (enc *encoder) encodeAranges(aranges []Arange) []byte {
	byUnit := map[*Unit][]Arange{}
	order := []*Unit{}
	for _, arange := range aranges {
		_, ok := byUnit[arange.Unit]
		if !ok {
			order = append(order, arange.Unit)
		}
		byUnit[arange.Unit] = append(byUnit[arange.Unit], arange)
	}

	var out []byte
	for _, unit := range order {
		entries := byUnit[unit]

		// 12 byte header + 4 byte padding, followed by the tuples and the
		// terminating tuple.
		length := 2 + 4 + 1 + 1 + 4 + 16*(len(entries)+1)
		out = binary.LittleEndian.AppendUint32(out, uint32(length))
		out = binary.LittleEndian.AppendUint16(out, 2)
		out = binary.LittleEndian.AppendUint32(out, uint32(unit.offset))
		out = append(out, 8, 0, 0, 0, 0, 0)
		for _, entry := range entries {
			out = binary.LittleEndian.AppendUint64(out, entry.Low)
			out = binary.LittleEndian.AppendUint64(out, entry.Size)
		}
		out = binary.LittleEndian.AppendUint64(out, 0)
		out = binary.LittleEndian.AppendUint64(out, 0)
	}

	return out
}

func (builder *Builder) Build() (Sections, error) {
	enc := &encoder{
		stringCache: map[string]uint32{},
	}

	for idx, unit := range builder.Units {
		err := enc.encodeUnit(unit)
		if err != nil {
			return nil, fmt.Errorf("failed to encode unit %d: %w", idx, err)
		}
	}

	for _, fix := range enc.fixups {
		if fix.target.unit == nil {
			return nil, fmt.Errorf("reference to DIE outside of any unit")
		}

		offset := fix.target.offset
		if fix.relative != nil {
			if fix.target.unit != fix.relative {
				return nil, fmt.Errorf("ref4 reference crosses unit boundary")
			}
			offset -= fix.relative.offset
		} else if fix.target.unit.isTypeUnit() && fix.target.unit.Version < 5 {
			return nil, fmt.Errorf("ref_addr reference into .debug_types")
		}

		out := enc.info
		if fix.types {
			out = enc.types
		}
		binary.LittleEndian.PutUint32(out[fix.position:], uint32(offset))
	}

	sections := Sections{
		dwarf.ElfDebugAbbreviationSection: enc.abbrev,
		dwarf.ElfDebugInformationSection:  enc.info,
	}

	if len(enc.types) > 0 {
		sections[dwarf.ElfDebugTypesSection] = enc.types
	}
	if len(enc.str) > 0 {
		sections[dwarf.ElfDebugStringSection] = enc.str
	}
	if len(enc.lineStr) > 0 {
		sections[dwarf.ElfDebugLineStringSection] = enc.lineStr
	}
	if len(enc.strOffsets) > 0 {
		sections[dwarf.ElfDebugStringOffsetsSection] = enc.strOffsets
	}
	if len(enc.addr) > 0 {
		sections[dwarf.ElfDebugAddressSection] = enc.addr
	}
	if len(builder.ranges) > 0 {
		sections[dwarf.ElfDebugRangesSection] = builder.ranges
	}
	if len(builder.rangeLists) > 0 {
		sections[dwarf.ElfDebugRangeListsSection] = builder.rangeLists
	}
	if len(builder.Aranges) > 0 {
		sections[dwarf.ElfDebugArangesSection] = enc.encodeAranges(
			builder.Aranges)
	}

	return sections, nil
}

// Sections maps section names to content.  It implements
// dwarf.SectionSource.
type Sections map[string][]byte

func (Sections) ByteOrder() binary.ByteOrder {
	return binary.LittleEndian
}

func (sections Sections) SectionContent(name string) ([]byte, bool, error) {
	content, ok := sections[name]
	return content, ok, nil
}

// ElfSections returns the sections in name order, ready to be embedded into
// an elftest.File.
func (sections Sections) ElfSections() []elftest.Section {
	names := make([]string, 0, len(sections))
	for name := range sections {
		names = append(names, name)
	}
	sort.Strings(names)

	result := make([]elftest.Section, 0, len(names))
	for _, name := range names {
		result = append(
			result,
			elftest.Section{
				Name:    name,
				Content: sections[name],
			})
	}
	return result
}

// Helpers for the common entry shapes.

func CompileUnit(name string, attrs ...Attr) *DIE {
	return &DIE{
		Tag: dwarf.DW_TAG_compile_unit,
		Attrs: append(
			[]Attr{{dwarf.DW_AT_name, dwarf.DW_FORM_string, name}},
			attrs...),
	}
}

func Named(tag dwarf.Tag, name string, attrs ...Attr) *DIE {
	return &DIE{
		Tag: tag,
		Attrs: append(
			[]Attr{{dwarf.DW_AT_name, dwarf.DW_FORM_string, name}},
			attrs...),
	}
}

func Anonymous(tag dwarf.Tag, attrs ...Attr) *DIE {
	return &DIE{
		Tag:   tag,
		Attrs: attrs,
	}
}

func BaseType(name string, encoding uint64, byteSize uint64) *DIE {
	return Named(
		dwarf.DW_TAG_base_type,
		name,
		Attr{dwarf.DW_AT_encoding, dwarf.DW_FORM_data1, encoding},
		Attr{dwarf.DW_AT_byte_size, dwarf.DW_FORM_data1, byteSize})
}

func Type(target *DIE) Attr {
	return Attr{dwarf.DW_AT_type, dwarf.DW_FORM_ref4, target}
}

// TypeSignature references a type unit's type entry.
func TypeSignature(signature uint64) Attr {
	return Attr{dwarf.DW_AT_type, dwarf.DW_FORM_ref_sig8, signature}
}

func TypeUnit(attrs ...Attr) *DIE {
	return Anonymous(dwarf.DW_TAG_type_unit, attrs...)
}

func LowPC(addr uint64) Attr {
	return Attr{dwarf.DW_AT_low_pc, dwarf.DW_FORM_addr, addr}
}

// HighPC encodes the high pc as an offset from the low pc.
func HighPC(size uint64) Attr {
	return Attr{dwarf.DW_AT_high_pc, dwarf.DW_FORM_data8, size}
}

func PointerTo(target *DIE) *DIE {
	return Anonymous(
		dwarf.DW_TAG_pointer_type,
		Attr{dwarf.DW_AT_byte_size, dwarf.DW_FORM_data1, uint64(8)},
		Type(target))
}

func Enumerator(name string, value int64) *DIE {
	return Named(
		dwarf.DW_TAG_enumerator,
		name,
		Attr{dwarf.DW_AT_const_value, dwarf.DW_FORM_sdata, value})
}

func Parameter(name string, paramType *DIE) *DIE {
	return Named(dwarf.DW_TAG_formal_parameter, name, Type(paramType))
}
