package argspec

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pattyshack/gt/testing/expect"
	"github.com/rs/zerolog"

	"github.com/pattyshack/argspec/dwarf"
	"github.com/pattyshack/argspec/dwarf/dwarftest"
	"github.com/pattyshack/argspec/elf"
	"github.com/pattyshack/argspec/elf/elftest"
	"github.com/pattyshack/argspec/enums"
)

const (
	progLow   = 0x1000
	otherLow  = 0x2000
	unitSize  = 0x1000
	pieOffset = 0x7f0000000000
)

// program describes a two unit binary:
//
//	test-prog.c [0x1000, 0x2000): the bulk of the functions
//	other.c     [0x2000, 0x3000): a second "mixed" and cross unit references
type program struct {
	builder *dwarftest.Builder

	colorEnum *dwarftest.DIE
	anonEnum  *dwarftest.DIE

	concrete *dwarftest.DIE
}

func subprogram(name string, ret *dwarftest.DIE, params ...*dwarftest.DIE) *dwarftest.DIE {
	attrs := []dwarftest.Attr{}
	if ret != nil {
		attrs = append(attrs, dwarftest.Type(ret))
	}

	return dwarftest.Named(dwarf.DW_TAG_subprogram, name, attrs...).Add(
		params...)
}

func newProgram() *program {
	intType := dwarftest.BaseType("int", dwarf.DW_ATE_signed, 4)
	ucharType := dwarftest.BaseType("unsigned char", dwarf.DW_ATE_unsigned_char, 1)
	charType := dwarftest.BaseType("char", dwarf.DW_ATE_signed_char, 1)
	scharType := dwarftest.BaseType("signed char", dwarf.DW_ATE_signed_char, 1)
	floatType := dwarftest.BaseType("float", dwarf.DW_ATE_float, 4)
	doubleType := dwarftest.BaseType("double", dwarf.DW_ATE_float, 8)

	charPtr := dwarftest.PointerTo(charType)
	charPtrPtr := dwarftest.PointerTo(charPtr)
	scharPtr := dwarftest.PointerTo(scharType)
	ucharPtr := dwarftest.PointerTo(ucharType)
	constChar := dwarftest.Anonymous(
		dwarf.DW_TAG_const_type,
		dwarftest.Type(charType))
	constCharPtr := dwarftest.PointerTo(constChar)
	stringT := dwarftest.Named(
		dwarf.DW_TAG_typedef,
		"string_t",
		dwarftest.Type(charPtr))
	charRef := dwarftest.Anonymous(
		dwarf.DW_TAG_reference_type,
		dwarftest.Type(charType))
	charArray := dwarftest.Anonymous(
		dwarf.DW_TAG_array_type,
		dwarftest.Type(charType))
	memberPtr := dwarftest.Anonymous(
		dwarf.DW_TAG_ptr_to_member_type,
		dwarftest.Type(charType))
	floatPtr := dwarftest.PointerTo(floatType)

	colorEnum := dwarftest.Named(dwarf.DW_TAG_enumeration_type, "color").Add(
		dwarftest.Enumerator("RED", 0),
		dwarftest.Enumerator("GREEN", 1),
		dwarftest.Enumerator("BLUE", 5))
	colorPtr := dwarftest.PointerTo(colorEnum)

	anonEnum := dwarftest.Anonymous(dwarf.DW_TAG_enumeration_type).Add(
		dwarftest.Enumerator("X", 1),
		dwarftest.Enumerator("Y", 2))

	emptyEnum := dwarftest.Named(
		dwarf.DW_TAG_enumeration_type,
		"empty",
		dwarftest.Attr{Attribute: dwarf.DW_AT_declaration, Format: dwarf.DW_FORM_flag_present, Value: nil})

	flagsEnum := dwarftest.Named(
		dwarf.DW_TAG_enumeration_type,
		"flags",
		dwarftest.Type(ucharType)).Add(
		dwarftest.Named(
			dwarf.DW_TAG_enumerator,
			"HIGH",
			dwarftest.Attr{Attribute: dwarf.DW_AT_const_value, Format: dwarf.DW_FORM_data1, Value: uint64(0x80)}),
		dwarftest.Named(
			dwarf.DW_TAG_enumerator,
			"ALL",
			dwarftest.Attr{Attribute: dwarf.DW_AT_const_value, Format: dwarf.DW_FORM_data1, Value: uint64(0xff)}))

	levelEnum := dwarftest.Named(dwarf.DW_TAG_enumeration_type, "level").Add(
		dwarftest.Named(
			dwarf.DW_TAG_enumerator,
			"NONE",
			dwarftest.Attr{Attribute: dwarf.DW_AT_const_value, Format: dwarf.DW_FORM_data1, Value: uint64(0xff)}),
		dwarftest.Named(dwarf.DW_TAG_enumerator, "BOGUS"),
		dwarftest.Enumerator("LOW", 1))

	loop := dwarftest.Named(dwarf.DW_TAG_typedef, "loop")
	loop.Attrs = append(loop.Attrs, dwarftest.Type(loop))

	signatureParam := dwarftest.Named(
		dwarf.DW_TAG_formal_parameter,
		"sig",
		dwarftest.Attr{Attribute: dwarf.DW_AT_type, Format: dwarf.DW_FORM_ref_sig8, Value: uint64(0xdeadbeef)})

	abstractParam := dwarftest.Parameter("s", charPtr)
	abstract := dwarftest.Named(
		dwarf.DW_TAG_subprogram,
		"inlined",
		dwarftest.Type(charType),
		dwarftest.Attr{Attribute: dwarf.DW_AT_inline, Format: dwarf.DW_FORM_data1, Value: uint64(1)}).Add(
		abstractParam)
	concrete := dwarftest.Anonymous(
		dwarf.DW_TAG_subprogram,
		dwarftest.Attr{Attribute: dwarf.DW_AT_abstract_origin, Format: dwarf.DW_FORM_ref4, Value: abstract},
		dwarftest.LowPC(progLow+0x800),
		dwarftest.HighPC(0x10)).Add(
		dwarftest.Anonymous(
			dwarf.DW_TAG_formal_parameter,
			dwarftest.Attr{Attribute: dwarf.DW_AT_abstract_origin, Format: dwarf.DW_FORM_ref4, Value: abstractParam}))

	stops := subprogram("stops", nil, dwarftest.Parameter("a", intType))
	stops.Add(
		dwarftest.Named(dwarf.DW_TAG_variable, "local", dwarftest.Type(intType)),
		dwarftest.Parameter("b", charType))

	ns := dwarftest.Named(dwarf.DW_TAG_namespace, "ns").Add(
		subprogram("nested", nil, dwarftest.Parameter("c", charType)))

	prog := dwarftest.CompileUnit(
		"test-prog (v1).c",
		dwarftest.LowPC(progLow),
		dwarftest.HighPC(unitSize))
	prog.Add(
		intType,
		ucharType,
		charType,
		scharType,
		floatType,
		doubleType,
		charPtr,
		charPtrPtr,
		scharPtr,
		ucharPtr,
		constChar,
		constCharPtr,
		stringT,
		charRef,
		charArray,
		memberPtr,
		floatPtr,
		colorEnum,
		colorPtr,
		anonEnum,
		emptyEnum,
		flagsEnum,
		levelEnum,
		loop,
		subprogram("no_args", nil),
		subprogram("no_args_int", intType),
		subprogram(
			"mixed",
			doubleType,
			dwarftest.Parameter("a", intType),
			dwarftest.Parameter("b", floatType),
			dwarftest.Parameter("c", intType)),
		subprogram(
			"strings",
			charPtr,
			dwarftest.Parameter("c", charType),
			dwarftest.Parameter("s", charPtr),
			dwarftest.Parameter("pp", charPtrPtr),
			dwarftest.Parameter("cs", constCharPtr),
			dwarftest.Parameter("t", stringT),
			dwarftest.Parameter("sc", scharPtr),
			dwarftest.Parameter("uc", ucharPtr)),
		subprogram(
			"wrappers",
			nil,
			dwarftest.Parameter("r", charRef),
			dwarftest.Parameter("arr", charArray),
			dwarftest.Parameter("m", memberPtr),
			dwarftest.Parameter("fp", floatPtr)),
		subprogram(
			"floats",
			floatType,
			dwarftest.Parameter("a", doubleType),
			dwarftest.Parameter("b", floatType),
			dwarftest.Parameter("c", intType),
			dwarftest.Parameter("d", doubleType)),
		subprogram(
			"colors",
			colorEnum,
			dwarftest.Parameter("c", colorEnum),
			dwarftest.Parameter("anon", anonEnum),
			dwarftest.Parameter("cp", colorPtr)),
		subprogram(
			"enum_values",
			flagsEnum,
			dwarftest.Parameter("f", flagsEnum),
			dwarftest.Parameter("l", levelEnum),
			dwarftest.Parameter("e", emptyEnum)),
		subprogram(
			"broken",
			loop,
			dwarftest.Parameter("l", loop),
			signatureParam,
			dwarftest.Anonymous(dwarf.DW_TAG_formal_parameter)),
		subprogram("dup", nil, dwarftest.Parameter("a", intType)),
		subprogram("dup", nil, dwarftest.Parameter("c", charType)),
		stops,
		ns,
		abstract,
		concrete)

	otherChar := dwarftest.BaseType("char", dwarf.DW_ATE_signed_char, 1)
	other := dwarftest.CompileUnit(
		"other.c",
		dwarftest.LowPC(otherLow),
		dwarftest.HighPC(unitSize))
	other.Add(
		otherChar,
		subprogram("mixed", nil, dwarftest.Parameter("c", otherChar)),
		subprogram(
			"cross",
			nil,
			dwarftest.Named(
				dwarf.DW_TAG_formal_parameter,
				"s",
				dwarftest.Attr{Attribute: dwarf.DW_AT_type, Format: dwarf.DW_FORM_ref_addr, Value: charPtr})))

	builder := &dwarftest.Builder{}
	builder.AddUnit(4, prog)
	builder.AddUnit(5, other)

	return &program{
		builder:   builder,
		colorEnum: colorEnum,
		anonEnum:  anonEnum,
		concrete:  concrete,
	}
}

func (prog *program) sections(t *testing.T) dwarftest.Sections {
	sections, err := prog.builder.Build()
	expect.Nil(t, err)
	return sections
}

func (prog *program) dwarfFile(t *testing.T) *dwarf.File {
	file, err := dwarf.NewFile(prog.sections(t))
	expect.Nil(t, err)
	return file
}

func (prog *program) elfBytes(t *testing.T, fileType elf.FileType) []byte {
	return elftest.File{
		FileType: fileType,
		Sections: prog.sections(t).ElfSections(),
		Symbols: []elftest.Symbol{
			{
				Name:  "mixed",
				Value: progLow + 0x100,
				Size:  0x40,
				Type:  elf.SymbolTypeFunction,
			},
			{
				Name:  "strings",
				Value: progLow + 0x200,
				Size:  0x40,
				Type:  elf.SymbolTypeFunction,
			},
			{
				Name:  "cross",
				Value: otherLow + 0x100,
				Size:  0x20,
				Type:  elf.SymbolTypeFunction,
			},
			{
				Name:  "counter",
				Value: progLow + 0x900,
				Size:  0x4,
				Type:  elf.SymbolTypeObject,
			},
		},
	}.Bytes()
}

func writeFile(t *testing.T, name string, content []byte) string {
	path := filepath.Join(t.TempDir(), name)
	err := os.WriteFile(path, content, 0o644)
	expect.Nil(t, err)
	return path
}

type recordingParser struct {
	declarations []string
	err          error
}

func (parser *recordingParser) ParseAndRegister(declaration string) error {
	parser.declarations = append(parser.declarations, declaration)
	return parser.err
}

func newTestResolver(parser EnumDeclarationParser, maxDepth int) *Resolver {
	return NewResolver(
		NewEnumRegistry(parser, zerolog.Nop()),
		zerolog.Nop(),
		maxDepth)
}

func firstFunction(
	t *testing.T,
	file *dwarf.File,
	name string,
) *dwarf.DebugInfoEntry {
	entries, err := file.FunctionEntriesWithName(name)
	expect.Nil(t, err)
	expect.True(t, len(entries) > 0)
	return entries[0]
}

func newDictionaryOption() (*enums.Dictionary, Option) {
	dict := enums.NewDictionary()
	return dict, WithEnumRegistry(NewEnumRegistry(dict, zerolog.Nop()))
}
