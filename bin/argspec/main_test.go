package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pattyshack/gt/testing/expect"
	"github.com/pattyshack/gt/testing/suite"
	"github.com/rs/zerolog"

	"github.com/pattyshack/argspec/argspec"
	"github.com/pattyshack/argspec/dwarf"
	"github.com/pattyshack/argspec/dwarf/dwarftest"
	"github.com/pattyshack/argspec/elf"
	"github.com/pattyshack/argspec/elf/elftest"
	"github.com/pattyshack/argspec/enums"
)

type CliSuite struct{}

func TestCli(t *testing.T) {
	suite.RunTests(t, &CliSuite{})
}

func (CliSuite) binary(t *testing.T) string {
	charType := dwarftest.BaseType("char", dwarf.DW_ATE_signed_char, 1)
	doubleType := dwarftest.BaseType("double", dwarf.DW_ATE_float, 8)
	charPtr := dwarftest.PointerTo(charType)
	mode := dwarftest.Named(dwarf.DW_TAG_enumeration_type, "mode").Add(
		dwarftest.Enumerator("OFF", 0),
		dwarftest.Enumerator("ON", 1))

	greet := dwarftest.Named(
		dwarf.DW_TAG_subprogram,
		"greet",
		dwarftest.Type(mode)).Add(
		dwarftest.Parameter("name", charPtr),
		dwarftest.Parameter("scale", doubleType))

	root := dwarftest.CompileUnit(
		"cli.c",
		dwarftest.LowPC(0x1000),
		dwarftest.HighPC(0x1000)).Add(
		charType,
		doubleType,
		charPtr,
		mode,
		greet,
		dwarftest.Named(dwarf.DW_TAG_subprogram, "noop"))

	builder := &dwarftest.Builder{}
	builder.AddUnit(4, root)

	sections, err := builder.Build()
	expect.Nil(t, err)

	content := elftest.File{
		Sections: sections.ElfSections(),
		Symbols: []elftest.Symbol{
			{Name: "greet", Value: 0x1100, Size: 0x40, Type: elf.SymbolTypeFunction},
			{Name: "noop", Value: 0x1200, Size: 0x10, Type: elf.SymbolTypeFunction},
		},
	}.Bytes()

	path := filepath.Join(t.TempDir(), "cli")
	expect.Nil(t, os.WriteFile(path, content, 0o755))
	return path
}

// cxxBinary mirrors g++ -fdebug-types-section output, where function symbols
// are mangled and State is defined in .debug_types.
func (CliSuite) cxxBinary(t *testing.T) string {
	state := dwarftest.Named(dwarf.DW_TAG_enumeration_type, "State").Add(
		dwarftest.Enumerator("IDLE", 0),
		dwarftest.Enumerator("BUSY", 1))
	stateUnit := dwarftest.TypeUnit().Add(state)

	doubleType := dwarftest.BaseType("double", dwarf.DW_ATE_float, 8)
	moveDecl := dwarftest.Named(
		dwarf.DW_TAG_subprogram,
		"move",
		dwarftest.Attr{Attribute: dwarf.DW_AT_linkage_name, Format: dwarf.DW_FORM_string, Value: "_ZN5Robot4moveEd"},
		dwarftest.Attr{Attribute: dwarf.DW_AT_declaration, Format: dwarf.DW_FORM_flag_present, Value: nil})
	robot := dwarftest.Named(
		dwarf.DW_TAG_structure_type,
		"Robot",
		dwarftest.Attr{Attribute: dwarf.DW_AT_declaration, Format: dwarf.DW_FORM_flag_present, Value: nil},
		dwarftest.Attr{Attribute: dwarf.DW_AT_signature, Format: dwarf.DW_FORM_ref_sig8, Value: uint64(0x526f626f74)}).Add(
		moveDecl)
	robotPtr := dwarftest.PointerTo(robot)

	root := dwarftest.CompileUnit(
		"cli.cc",
		dwarftest.LowPC(0x1000),
		dwarftest.HighPC(0x1000)).Add(
		doubleType,
		robot,
		robotPtr,
		dwarftest.Anonymous(
			dwarf.DW_TAG_subprogram,
			dwarftest.Attr{Attribute: dwarf.DW_AT_specification, Format: dwarf.DW_FORM_ref4, Value: moveDecl},
			dwarftest.LowPC(0x1100),
			dwarftest.HighPC(0x40)).Add(
			dwarftest.Parameter("this", robotPtr),
			dwarftest.Parameter("speed", doubleType)),
		dwarftest.Named(
			dwarf.DW_TAG_subprogram,
			"run",
			dwarftest.Attr{Attribute: dwarf.DW_AT_linkage_name, Format: dwarf.DW_FORM_string, Value: "_Z3run5State"},
			dwarftest.LowPC(0x1200),
			dwarftest.HighPC(0x10)).Add(
			dwarftest.Named(
				dwarf.DW_TAG_formal_parameter,
				"state",
				dwarftest.TypeSignature(0x5374617465))))

	builder := &dwarftest.Builder{}
	builder.AddTypeUnit(4, 0x5374617465, stateUnit, state)
	builder.AddUnit(4, root)

	sections, err := builder.Build()
	expect.Nil(t, err)

	content := elftest.File{
		Sections: sections.ElfSections(),
		Symbols: []elftest.Symbol{
			{Name: "_ZN5Robot4moveEd", Value: 0x1100, Size: 0x40, Type: elf.SymbolTypeFunction},
			{Name: "_Z3run5State", Value: 0x1200, Size: 0x10, Type: elf.SymbolTypeFunction},
		},
	}.Bytes()

	path := filepath.Join(t.TempDir(), "cli-cxx")
	expect.Nil(t, os.WriteFile(path, content, 0o755))
	return path
}

func (CliSuite) execute(t *testing.T, args ...string) (string, string, error) {
	cmd := newRootCmd()

	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func (s CliSuite) TestArgs(t *testing.T) {
	path := s.binary(t)

	stdout, _, err := s.execute(t, "args", path, "greet", "noop", "missing")
	expect.Nil(t, err)
	expect.Equal(
		t,
		"greet\t@arg1/s,fparg1/64\nnoop\t-\nmissing\t-\n",
		stdout)

	stdout, _, err = s.execute(t, "args", path, "greet@0x1100", "greet@0x9000")
	expect.Nil(t, err)
	expect.Equal(t, "greet\t@arg1/s,fparg1/64\ngreet\t-\n", stdout)

	_, _, err = s.execute(t, "args", path)
	expect.NotNil(t, err)
}

func (s CliSuite) TestCxxArgs(t *testing.T) {
	path := s.cxxBinary(t)

	// unqualified names fall back to the debug info's entry address
	stdout, _, err := s.execute(t, "args", path, "move", "run", "_Z3run5State")
	expect.Nil(t, err)
	expect.Equal(
		t,
		"move\t@arg1,fparg1/64\nrun\t@arg1/e:State\n_Z3run5State\t@arg1/e:State\n",
		stdout)

	stdout, _, err = s.execute(t, "scan", path)
	expect.Nil(t, err)

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	expect.Equal(t, 5, len(lines))
	expect.Equal(
		t,
		[]string{"_Z3run5State", "@arg1/e:State", "-"},
		strings.Fields(lines[1]))
	expect.Equal(
		t,
		[]string{"_ZN5Robot4moveEd", "@arg1,fparg1/64", "-"},
		strings.Fields(lines[2]))
	expect.Equal(t, "enum State { IDLE=0,BUSY=1 }", lines[4])

	stdout, _, err = s.execute(t, "dump", path)
	expect.Nil(t, err)
	expect.True(t, strings.Contains(stdout, ".debug_types:"))
	expect.True(t, strings.Contains(
		stdout,
		"TypeUnit: Start = 0 Version = 4 Signature = signature(0000005374617465)"))
}

func (s CliSuite) TestRet(t *testing.T) {
	path := s.binary(t)

	stdout, _, err := s.execute(t, "ret", path, "greet", "noop")
	expect.Nil(t, err)
	expect.Equal(t, "greet\t@retval/e:mode\nnoop\t-\n", stdout)
}

func (s CliSuite) TestScan(t *testing.T) {
	path := s.binary(t)

	stdout, _, err := s.execute(t, "scan", path)
	expect.Nil(t, err)

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	expect.Equal(t, 5, len(lines))
	expect.Equal(
		t,
		[]string{"greet", "@arg1/s,fparg1/64", "@retval/e:mode"},
		strings.Fields(lines[1]))
	expect.Equal(t, []string{"noop", "-", "-"}, strings.Fields(lines[2]))
	expect.Equal(t, "enum mode { OFF=0,ON=1 }", lines[4])

	stdout, _, err = s.execute(t, "scan", "--enums=false", path)
	expect.Nil(t, err)
	expect.False(t, strings.Contains(stdout, "enum mode"))
}

func (s CliSuite) TestFlags(t *testing.T) {
	path := s.binary(t)

	_, _, err := s.execute(t, "--offset", "0x1000", "--pid", "1", "args", path, "greet")
	expect.Error(t, err, "mutually exclusive")

	_, _, err = s.execute(t, "--offset", "zz", "args", path, "greet")
	expect.Error(t, err, "invalid address")

	_, _, err = s.execute(t, "--log-level", "loud", "args", path, "greet")
	expect.Error(t, err, "invalid log level")

	_, _, err = s.execute(t, "--max-depth", "0", "args", path, "greet")
	expect.Error(t, err, "invalid --max-depth")

	// executables ignore the load offset
	stdout, _, err := s.execute(t, "--offset", "0x5000", "args", path, "greet")
	expect.Nil(t, err)
	expect.Equal(t, "greet\t@arg1/s,fparg1/64\n", stdout)

	_, _, err = s.execute(t, "args", filepath.Join(t.TempDir(), "missing"), "greet")
	expect.True(t, err != nil)

	_, stderr, err := s.execute(
		t,
		"--log-level", "debug",
		"--pretty=false",
		"args", path, "unknown@0x1100")
	expect.Nil(t, err)
	expect.True(t, strings.Contains(stderr, "no DWARF info found"))
}

func (s CliSuite) TestDump(t *testing.T) {
	path := s.binary(t)

	stdout, _, err := s.execute(t, "dump", "--elf", "--strings", "--abbrev", path)
	expect.Nil(t, err)
	expect.True(t, strings.Contains(stdout, "greet"))
	expect.True(t, strings.Contains(stdout, "(greet)"))
	expect.True(t, strings.Contains(stdout, ".debug_abbrev:"))
	expect.True(t, strings.Contains(stdout, ".debug_info:"))
	expect.True(t, strings.Contains(stdout, "CompileUnit: Start = 0 Version = 4"))

	stdout, _, err = s.execute(t, "dump", "--unit", "nomatch", path)
	expect.Nil(t, err)
	expect.False(t, strings.Contains(stdout, "CompileUnit"))

	notElf := filepath.Join(t.TempDir(), "notelf")
	expect.Nil(t, os.WriteFile(notElf, []byte("text"), 0o644))

	_, _, err = s.execute(t, "dump", notElf)
	expect.Error(t, err, "has no usable debug info")
}

func (s CliSuite) TestRun(t *testing.T) {
	path := s.binary(t)

	configPath := filepath.Join(t.TempDir(), "argspec.yaml")
	expect.Nil(
		t,
		os.WriteFile(
			configPath,
			[]byte(`
log:
  level: error
targets:
  - path: `+path+`
    functions: [greet]
  - path: `+path+`
    load_offset: 0x4000
`),
			0o644))

	stdout, _, err := s.execute(t, "run", "--config", configPath)
	expect.Nil(t, err)
	expect.True(t, strings.Contains(stdout, "# "+path+" (load offset 0x0)"))
	expect.Equal(t, 2, strings.Count(stdout, "@arg1/s,fparg1/64"))
	expect.Equal(t, 1, strings.Count(stdout, "noop"))
	expect.True(t, strings.Contains(stdout, "enum mode { OFF=0,ON=1 }"))

	_, _, err = s.execute(t, "run")
	expect.NotNil(t, err)

	badConfig := filepath.Join(t.TempDir(), "bad.yaml")
	expect.Nil(t, os.WriteFile(badConfig, []byte("targets:\n  - pid: 1\n"), 0o644))

	_, _, err = s.execute(t, "run", "--config", badConfig)
	expect.Error(t, err, "targets[0].path")
}

func (s CliSuite) TestShell(t *testing.T) {
	path := s.binary(t)

	dict := enums.NewDictionary()
	session, err := argspec.Open(
		path,
		0,
		argspec.WithEnumRegistry(argspec.NewEnumRegistry(dict, zerolog.Nop())))
	expect.Nil(t, err)
	defer session.Close()

	out := &bytes.Buffer{}
	sh := &shell{
		session: session,
		dict:    dict,
		out:     out,
	}

	run := func(line string) string {
		out.Reset()
		expect.Nil(t, sh.execute(line))
		return out.String()
	}

	expect.Equal(t, "@arg1/s,fparg1/64\n", run("args greet"))
	expect.Equal(t, "@retval/e:mode\n", run("ret greet"))
	expect.Equal(t, "-\n", run("ret noop"))
	expect.Equal(t, "greet\t@arg1/s,fparg1/64\t@retval/e:mode\n", run("at 0x1110"))
	expect.Equal(t, "no function at 0x9000\n", run("at 0x9000"))
	expect.Equal(t, "greet\nnoop\n", run("fun"))
	expect.Equal(t, "noop\n", run("functions oo"))
	expect.Equal(t, "enum mode { OFF=0,ON=1 }\n", run("enums"))
	expect.Equal(t, "ON\n", run("enum mode 1"))
	expect.Equal(t, "unknown enum: other\n", run("enum other 1"))
	expect.Equal(
		t,
		"arg1/s\tstring\nfparg1/64\tfloat (64 bits)\nretval/e:mode\tenum {OFF=0,ON=1}\n",
		run("parse @arg1/s,fparg1/64,retval/e:mode"))
	expect.True(t, strings.Contains(run("parse arg1"), "missing @ prefix"))
	expect.Equal(t, "invalid command: bogus\n", run("bogus"))
	expect.True(t, strings.Contains(run("help"), "enum NAME VALUE"))
	expect.Equal(t, "", run(""))

	expect.Equal(t, errQuit, sh.execute("quit"))
}
