package argspec

import (
	"testing"

	"github.com/pattyshack/gt/testing/expect"

	"github.com/pattyshack/argspec/dwarf"
	"github.com/pattyshack/argspec/dwarf/dwarftest"
	"github.com/pattyshack/argspec/elf"
	"github.com/pattyshack/argspec/elf/elftest"
)

const (
	widgetLow = 0x5000
	shapesLow = 0x6000

	modeSignature   = 0x6d6f6465
	widgetSignature = 0x77696467
	shapeSignature  = 0x73686170
	unknownSig      = 0xdeadbeef

	fMangled = "_Z1f4ModeRKcPKPc"
	mMangled = "_ZN6Widget1mEPKcd"
	gMangled = "_Z1g5Shape"
)

// cxxProgram mirrors g++ -fdebug-types-section output:
//
//	.debug_types: Mode and Widget (dwarf 4 type units)
//	widget.cc [0x5000, 0x6000): f(Mode, char const&, char const* const*) and
//	    the out-of-line Widget::m(char const*, double), declared in the
//	    unit's Widget skeleton
//	.debug_info: Shape (dwarf 5 type unit)
//	shapes.cc [0x6000, 0x7000): Mode g(Shape)
type cxxProgram struct {
	builder *dwarftest.Builder
}

func declaration() dwarftest.Attr {
	return dwarftest.Attr{Attribute: dwarf.DW_AT_declaration, Format: dwarf.DW_FORM_flag_present, Value: nil}
}

func linkageName(name string) dwarftest.Attr {
	return dwarftest.Attr{Attribute: dwarf.DW_AT_linkage_name, Format: dwarf.DW_FORM_string, Value: name}
}

func newCxxProgram() *cxxProgram {
	uintType := dwarftest.BaseType("unsigned int", dwarf.DW_ATE_unsigned, 4)
	modeEnum := dwarftest.Named(
		dwarf.DW_TAG_enumeration_type,
		"Mode",
		dwarftest.Type(uintType)).Add(
		dwarftest.Named(
			dwarf.DW_TAG_enumerator,
			"OFF",
			dwarftest.Attr{Attribute: dwarf.DW_AT_const_value, Format: dwarf.DW_FORM_data1, Value: uint64(0)}),
		dwarftest.Named(
			dwarf.DW_TAG_enumerator,
			"ON",
			dwarftest.Attr{Attribute: dwarf.DW_AT_const_value, Format: dwarf.DW_FORM_data1, Value: uint64(1)}))
	modeUnit := dwarftest.TypeUnit().Add(uintType, modeEnum)

	widgetStruct := dwarftest.Named(
		dwarf.DW_TAG_structure_type,
		"Widget",
		dwarftest.Attr{Attribute: dwarf.DW_AT_byte_size, Format: dwarf.DW_FORM_data1, Value: uint64(1)}).Add(
		dwarftest.Named(
			dwarf.DW_TAG_subprogram,
			"m",
			linkageName(mMangled),
			declaration()))
	widgetUnit := dwarftest.TypeUnit().Add(widgetStruct)

	charType := dwarftest.BaseType("char", dwarf.DW_ATE_signed_char, 1)
	doubleType := dwarftest.BaseType("double", dwarf.DW_ATE_float, 8)
	constChar := dwarftest.Anonymous(
		dwarf.DW_TAG_const_type,
		dwarftest.Type(charType))
	constCharRef := dwarftest.Anonymous(
		dwarf.DW_TAG_reference_type,
		dwarftest.Type(constChar))
	constCharPtr := dwarftest.PointerTo(constChar)
	constCharPtrConst := dwarftest.Anonymous(
		dwarf.DW_TAG_const_type,
		dwarftest.Type(constCharPtr))
	argvType := dwarftest.PointerTo(constCharPtrConst)

	mDecl := dwarftest.Named(
		dwarf.DW_TAG_subprogram,
		"m",
		linkageName(mMangled),
		declaration())
	widgetSkeleton := dwarftest.Named(
		dwarf.DW_TAG_structure_type,
		"Widget",
		declaration(),
		dwarftest.Attr{Attribute: dwarf.DW_AT_signature, Format: dwarf.DW_FORM_ref_sig8, Value: uint64(widgetSignature)}).Add(
		mDecl)
	widgetPtr := dwarftest.PointerTo(widgetSkeleton)

	widget := dwarftest.CompileUnit(
		"widget.cc",
		dwarftest.LowPC(widgetLow),
		dwarftest.HighPC(unitSize))
	widget.Add(
		charType,
		doubleType,
		constChar,
		constCharRef,
		constCharPtr,
		constCharPtrConst,
		argvType,
		widgetSkeleton,
		widgetPtr,
		dwarftest.Named(
			dwarf.DW_TAG_subprogram,
			"f",
			linkageName(fMangled),
			dwarftest.LowPC(widgetLow+0x100),
			dwarftest.HighPC(0x40)).Add(
			dwarftest.Named(
				dwarf.DW_TAG_formal_parameter,
				"mode",
				dwarftest.TypeSignature(modeSignature)),
			dwarftest.Parameter("c", constCharRef),
			dwarftest.Parameter("argv", argvType)),
		dwarftest.Anonymous(
			dwarf.DW_TAG_subprogram,
			dwarftest.Attr{Attribute: dwarf.DW_AT_specification, Format: dwarf.DW_FORM_ref4, Value: mDecl},
			dwarftest.LowPC(widgetLow+0x200),
			dwarftest.HighPC(0x40)).Add(
			dwarftest.Named(
				dwarf.DW_TAG_formal_parameter,
				"this",
				dwarftest.Type(widgetPtr),
				dwarftest.Attr{Attribute: dwarf.DW_AT_artificial, Format: dwarf.DW_FORM_flag_present, Value: nil}),
			dwarftest.Parameter("s", constCharPtr),
			dwarftest.Parameter("d", doubleType)),
		dwarftest.Named(
			dwarf.DW_TAG_subprogram,
			"unknown",
			dwarftest.TypeSignature(unknownSig),
			dwarftest.LowPC(widgetLow+0x300),
			dwarftest.HighPC(0x10)))

	shapeEnum := dwarftest.Named(dwarf.DW_TAG_enumeration_type, "Shape").Add(
		dwarftest.Enumerator("CIRCLE", 0),
		dwarftest.Enumerator("SQUARE", 4))
	shapeUnit := dwarftest.TypeUnit().Add(shapeEnum)

	shapes := dwarftest.CompileUnit(
		"shapes.cc",
		dwarftest.LowPC(shapesLow),
		dwarftest.HighPC(unitSize))
	shapes.Add(
		dwarftest.Named(
			dwarf.DW_TAG_subprogram,
			"g",
			linkageName(gMangled),
			dwarftest.TypeSignature(modeSignature),
			dwarftest.LowPC(shapesLow+0x100),
			dwarftest.HighPC(0x20)).Add(
			dwarftest.Named(
				dwarf.DW_TAG_formal_parameter,
				"shape",
				dwarftest.TypeSignature(shapeSignature))))

	builder := &dwarftest.Builder{}
	builder.AddTypeUnit(4, modeSignature, modeUnit, modeEnum)
	builder.AddTypeUnit(4, widgetSignature, widgetUnit, widgetStruct)
	builder.AddUnit(4, widget)
	builder.AddTypeUnit(5, shapeSignature, shapeUnit, shapeEnum)
	builder.AddUnit(5, shapes)

	return &cxxProgram{
		builder: builder,
	}
}

func (prog *cxxProgram) sections(t *testing.T) dwarftest.Sections {
	sections, err := prog.builder.Build()
	expect.Nil(t, err)
	return sections
}

func (prog *cxxProgram) dwarfFile(t *testing.T) *dwarf.File {
	file, err := dwarf.NewFile(prog.sections(t))
	expect.Nil(t, err)
	return file
}

func (prog *cxxProgram) elfBytes(t *testing.T) []byte {
	return elftest.File{
		Sections: prog.sections(t).ElfSections(),
		Symbols: []elftest.Symbol{
			{
				Name:  fMangled,
				Value: widgetLow + 0x100,
				Size:  0x40,
				Type:  elf.SymbolTypeFunction,
			},
			{
				Name:  mMangled,
				Value: widgetLow + 0x200,
				Size:  0x40,
				Type:  elf.SymbolTypeFunction,
			},
			{
				Name:  gMangled,
				Value: shapesLow + 0x100,
				Size:  0x20,
				Type:  elf.SymbolTypeFunction,
			},
		},
	}.Bytes()
}
