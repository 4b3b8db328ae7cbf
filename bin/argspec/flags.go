package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/pattyshack/argspec/argspec"
	"github.com/pattyshack/argspec/enums"
	"github.com/pattyshack/argspec/logging"
	"github.com/pattyshack/argspec/procfs"
)

// addressValue is a pflag.Value accepting decimal or 0x prefixed hex
// addresses.
type addressValue uint64

func (addr *addressValue) String() string {
	return fmt.Sprintf("%#x", uint64(*addr))
}

func (addr *addressValue) Set(value string) error {
	parsed, err := strconv.ParseUint(value, 0, 64)
	if err != nil {
		return fmt.Errorf("invalid address (%s): %w", value, err)
	}
	*addr = addressValue(parsed)
	return nil
}

func (addressValue) Type() string {
	return "address"
}

type globalFlags struct {
	LogLevel string
	Pretty   bool
	Offset   addressValue
	Pid      int
	MaxDepth int
}

func (f *globalFlags) AddFlags(flags *pflag.FlagSet) {
	flags.StringVar(
		&f.LogLevel,
		"log-level",
		"warn",
		"Log level (trace, debug, info, warn, error, disabled)")
	flags.BoolVar(&f.Pretty, "pretty", true, "Human readable log output")
	flags.Var(
		&f.Offset,
		"offset",
		"Load offset of a position independent binary (e.g. 0x7f0000000000)")
	flags.IntVar(
		&f.Pid,
		"pid",
		0,
		"Read the load offset from the process' memory maps")
	flags.IntVar(
		&f.MaxDepth,
		"max-depth",
		argspec.DefaultMaxChainDepth,
		"Maximum number of type links followed per parameter")
}

func (f *globalFlags) Validate() error {
	_, err := logging.ParseLevel(f.LogLevel)
	if err != nil {
		return err
	}

	if f.Pid < 0 {
		return fmt.Errorf("invalid --pid (%d)", f.Pid)
	}

	if f.Pid > 0 && f.Offset != 0 {
		return fmt.Errorf("--offset and --pid are mutually exclusive")
	}

	if f.MaxDepth <= 0 {
		return fmt.Errorf("invalid --max-depth (%d)", f.MaxDepth)
	}

	return nil
}

func (f *globalFlags) Logger(output io.Writer) zerolog.Logger {
	return logging.NewWithComponent(
		logging.Config{
			Level:  f.LogLevel,
			Pretty: f.Pretty,
			Output: output,
		},
		"argspec")
}

// target describes how to open one binary.
type target struct {
	path       string
	loadOffset uint64
	pid        int
}

// resolveLoadOffset returns the explicit load offset, or the offset derived
// from the process' memory maps when a pid is given.
func (t target) resolveLoadOffset() (uint64, error) {
	if t.pid == 0 {
		return t.loadOffset, nil
	}

	regions, err := procfs.GetMappedMemoryRegions(t.pid)
	if err != nil {
		return 0, err
	}

	path, err := filepath.Abs(t.path)
	if err != nil {
		return 0, err
	}

	resolved, err := filepath.EvalSymlinks(path)
	if err == nil {
		path = resolved
	}

	offset, ok := procfs.LoadOffset(regions, path)
	if !ok {
		return 0, fmt.Errorf("%s is not mapped by process %d", path, t.pid)
	}

	return offset, nil
}

// openSession opens the target.  Binaries without debug info yield a session
// which answers every query with no spec; the failure is only logged.
func openSession(
	t target,
	logger zerolog.Logger,
	dict *enums.Dictionary,
	maxDepth int,
) (
	*argspec.Session,
	error,
) {
	offset, err := t.resolveLoadOffset()
	if err != nil {
		return nil, err
	}

	session, err := argspec.Open(
		t.path,
		offset,
		argspec.WithLogger(logger),
		argspec.WithEnumRegistry(argspec.NewEnumRegistry(dict, logger)),
		argspec.WithMaxChainDepth(maxDepth))
	if session == nil {
		return nil, err
	}

	if err != nil {
		logger.Warn().Err(err).Msg("no usable debug info")
	}

	return session, nil
}
