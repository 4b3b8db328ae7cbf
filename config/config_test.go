package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pattyshack/gt/testing/expect"
	"github.com/pattyshack/gt/testing/suite"
)

type ConfigSuite struct{}

func TestConfig(t *testing.T) {
	suite.RunTests(t, &ConfigSuite{})
}

func (ConfigSuite) TestDefault(t *testing.T) {
	cfg := Default()
	expect.Equal(t, "warn", cfg.Log.Level)
	expect.True(t, cfg.Log.Pretty)
	expect.Equal(t, 64, cfg.MaxChainDepth)
	expect.Equal(t, 0, len(cfg.Targets))
	expect.Nil(t, cfg.Validate())
}

func (ConfigSuite) TestParse(t *testing.T) {
	cfg, err := Parse([]byte(`
log:
  level: debug
targets:
  - path: ./libfoo.so
    load_offset: 0x7f0000000000
    functions: [foo, bar]
  - path: /usr/bin/prog
    pid: 1234
  - path: ./prog
    load_offset: 4096
`))
	expect.Nil(t, err)
	expect.Nil(t, cfg.Validate())

	expect.Equal(t, "debug", cfg.Log.Level)
	expect.True(t, cfg.Log.Pretty) // default kept
	expect.Equal(t, 64, cfg.MaxChainDepth)

	expect.Equal(
		t,
		[]Target{
			{
				Path:       "./libfoo.so",
				LoadOffset: 0x7f0000000000,
				Functions:  []string{"foo", "bar"},
			},
			{
				Path: "/usr/bin/prog",
				Pid:  1234,
			},
			{
				Path:       "./prog",
				LoadOffset: 4096,
			},
		},
		cfg.Targets)

	loggingConfig := cfg.LoggingConfig()
	expect.Equal(t, "debug", loggingConfig.Level)
	expect.True(t, loggingConfig.Pretty)
}

func (ConfigSuite) TestParseErrors(t *testing.T) {
	_, err := Parse([]byte("targets:\n  - path: x\n    load_offset: nope\n"))
	expect.Error(t, err, "invalid address")

	_, err = Parse([]byte("targets:\n  - path: x\n    load_offset: [1]\n"))
	expect.Error(t, err, "address must be a scalar")

	_, err = Parse([]byte("max_chain_depth: [\n"))
	expect.NotNil(t, err)
}

func (ConfigSuite) TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Log.Level = "loud"
	cfg.MaxChainDepth = 0
	cfg.Targets = []Target{
		{Pid: -1},
		{Path: "a", Pid: 1, LoadOffset: 1, Functions: []string{""}},
	}

	err := cfg.Validate()
	expect.NotNil(t, err)

	multi, ok := err.(*MultiValidationError)
	expect.True(t, ok)
	expect.Equal(t, 6, len(multi.Errors))
	expect.Equal(t, "log.level", multi.Errors[0].Field)
	expect.Equal(t, "max_chain_depth", multi.Errors[1].Field)
	expect.Equal(t, "targets[0].path", multi.Errors[2].Field)
	expect.Equal(t, "targets[0].pid", multi.Errors[3].Field)
	expect.Equal(t, "targets[1]", multi.Errors[4].Field)
	expect.Equal(t, "targets[1].functions", multi.Errors[5].Field)
	expect.Error(t, err, "validation failed with 6 errors")

	single := &MultiValidationError{
		Errors: []ValidationError{{Field: "a", Message: "b"}},
	}
	expect.Equal(t, "a: b", single.Error())
}

func (ConfigSuite) TestLoadAndMarshal(t *testing.T) {
	cfg := Default()
	cfg.Targets = []Target{
		{Path: "./prog", LoadOffset: 0x1000, Functions: []string{"main"}},
	}

	data, err := cfg.Marshal()
	expect.Nil(t, err)

	path := filepath.Join(t.TempDir(), "argspec.yaml")
	expect.Nil(t, os.WriteFile(path, data, 0o644))

	loaded, err := Load(path)
	expect.Nil(t, err)
	expect.Equal(t, cfg, loaded)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	expect.Error(t, err, "failed to read config")
}

func (ConfigSuite) TestApplyEnv(t *testing.T) {
	t.Setenv(EnvLogLevel, "trace")
	t.Setenv(EnvMaxChainDepth, "8")

	cfg := Default()
	expect.Nil(t, cfg.ApplyEnv())
	expect.Equal(t, "trace", cfg.Log.Level)
	expect.Equal(t, 8, cfg.MaxChainDepth)

	t.Setenv(EnvMaxChainDepth, "deep")
	expect.Error(t, cfg.ApplyEnv(), "invalid ARGSPEC_MAX_CHAIN_DEPTH")
}
