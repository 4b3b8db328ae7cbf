package enums

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/pattyshack/gt/testing/expect"
	"github.com/pattyshack/gt/testing/suite"
)

type EnumsSuite struct{}

func TestEnums(t *testing.T) {
	suite.RunTests(t, &EnumsSuite{})
}

func (EnumsSuite) TestLexer(t *testing.T) {
	lex := &lexer{input: " enum foo.c/x_1a{A=-1 ,B};"}

	expected := []token{
		{tokenType: tokenWord, value: "enum", position: 1},
		{tokenType: tokenWord, value: "foo.c/x_1a", position: 6},
		{tokenType: tokenLBrace, value: "{", position: 16},
		{tokenType: tokenWord, value: "A", position: 17},
		{tokenType: tokenAssign, value: "=", position: 18},
		{tokenType: tokenWord, value: "-1", position: 19},
		{tokenType: tokenComma, value: ",", position: 22},
		{tokenType: tokenWord, value: "B", position: 23},
		{tokenType: tokenRBrace, value: "}", position: 24},
		{tokenType: tokenSemicolon, value: ";", position: 25},
		{tokenType: tokenEOF, position: 26},
	}

	for _, exp := range expected {
		expect.Equal(t, exp, lex.next())
	}
}

func (EnumsSuite) TestParseSingle(t *testing.T) {
	defs, err := ParseDeclarations("enum color { RED=0,GREEN=1,BLUE=2 }")
	expect.Nil(t, err)
	expect.Equal(t, 1, len(defs))
	expect.Equal(
		t,
		&Definition{
			Name: "color",
			Members: []Member{
				{Name: "RED", Value: 0},
				{Name: "GREEN", Value: 1},
				{Name: "BLUE", Value: 2},
			},
		},
		defs[0])
}

func (EnumsSuite) TestParseAutoIncrement(t *testing.T) {
	defs, err := ParseDeclarations(`
		enum a { X, Y = 0x10, Z, W = -3, V, };
		enum b { };
		enum c { ONLY }`)
	expect.Nil(t, err)
	expect.Equal(t, 3, len(defs))

	expect.Equal(
		t,
		[]Member{
			{Name: "X", Value: 0},
			{Name: "Y", Value: 16},
			{Name: "Z", Value: 17},
			{Name: "W", Value: -3},
			{Name: "V", Value: -2},
		},
		defs[0].Members)

	expect.Equal(t, "b", defs[1].Name)
	expect.Equal(t, 0, len(defs[1].Members))

	expect.Equal(t, "c", defs[2].Name)
	expect.Equal(t, []Member{{Name: "ONLY", Value: 0}}, defs[2].Members)
}

func (EnumsSuite) TestParseErrors(t *testing.T) {
	for _, input := range []string{
		"",
		";;",
		"struct s { A }",
		"enum { A }",
		"enum e A }",
		"enum e { A B }",
		"enum e { A = }",
		"enum e { A = x }",
		"enum e { A, A }",
		"enum e { A",
	} {
		_, err := ParseDeclarations(input)
		expect.NotNil(t, err)
		expect.True(t, errors.Is(err, ErrSyntax))
	}

	_, err := ParseDeclarations("enum e { A = 12abc }")
	expect.Error(t, err, "invalid value \"12abc\" for A")
}

func (EnumsSuite) TestDefinitionRendering(t *testing.T) {
	def := &Definition{
		Name: "mode",
		Members: []Member{
			{Name: "READ", Value: 1},
			{Name: "WRITE", Value: 2},
			{Name: "EXEC", Value: 4},
			{Name: "NONE", Value: 0},
			{Name: "ERR", Value: -1},
		},
	}

	expect.Equal(t, "READ=1,WRITE=2,EXEC=4,NONE=0,ERR=-1", def.String())
	expect.Equal(
		t,
		"enum mode { READ=1,WRITE=2,EXEC=4,NONE=0,ERR=-1 }",
		def.Declaration())

	expect.Equal(t, "WRITE", def.Format(2))
	expect.Equal(t, "NONE", def.Format(0))
	expect.Equal(t, "ERR", def.Format(-1))
	expect.Equal(t, "READ|EXEC", def.Format(5))
	expect.Equal(t, "READ|WRITE|EXEC", def.Format(7))
	expect.Equal(t, "8", def.Format(8))
	expect.Equal(t, "9", def.Format(9))
	expect.Equal(t, "-2", def.Format(-2))

	value, ok := def.Value("EXEC")
	expect.True(t, ok)
	expect.Equal(t, int64(4), value)

	_, ok = def.Value("MISSING")
	expect.False(t, ok)

	// the declaration round trips through the parser
	defs, err := ParseDeclarations(def.Declaration())
	expect.Nil(t, err)
	expect.Equal(t, def, defs[0])
}

func (EnumsSuite) TestDictionary(t *testing.T) {
	dict := NewDictionary()

	err := dict.ParseAndRegister("enum b { X=1 }; enum a { Y=2 }")
	expect.Nil(t, err)
	expect.Equal(t, []string{"a", "b"}, dict.Names())
	expect.Equal(t, 2, dict.Len())

	defs := dict.Definitions()
	expect.Equal(t, 2, len(defs))
	expect.Equal(t, "a", defs[0].Name)
	expect.Equal(t, "b", defs[1].Name)

	expect.Equal(t, "X", dict.Format("b", 1))
	expect.Equal(t, "3", dict.Format("b", 3))
	expect.Equal(t, "7", dict.Format("unknown", 7))

	// re-registration replaces the existing definition
	err = dict.ParseAndRegister("enum b { Z=1 }")
	expect.Nil(t, err)
	expect.Equal(t, "Z", dict.Format("b", 1))

	err = dict.ParseAndRegister("enum c { BROKEN")
	expect.True(t, errors.Is(err, ErrSyntax))
	_, ok := dict.Lookup("c")
	expect.False(t, ok)

	dict.Register(&Definition{Name: "c", Members: []Member{{"ONE", 1}}})
	def, ok := dict.Lookup("c")
	expect.True(t, ok)
	expect.Equal(t, "ONE=1", def.String())
}

func (EnumsSuite) TestConcurrentRegistration(t *testing.T) {
	dict := NewDictionary()

	wg := sync.WaitGroup{}
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := dict.ParseAndRegister(
				fmt.Sprintf("enum e%d { A=%d }", i, i))
			expect.Nil(t, err)
			dict.Names()
		}(i)
	}
	wg.Wait()

	expect.Equal(t, 16, dict.Len())
	expect.Equal(t, "A", dict.Format("e7", 7))
}

func (EnumsSuite) TestDefault(t *testing.T) {
	expect.True(t, Default() == Default())
}
