// Package argspec infers argument / return value format specs (e.g.,
// "@arg1/s,fparg1/64,arg2/e:mode") for functions in an ELF binary from its
// DWARF debug info.
package argspec

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/pattyshack/argspec/dwarf"
	"github.com/pattyshack/argspec/elf"
)

type options struct {
	logger        zerolog.Logger
	registry      *EnumRegistry
	maxChainDepth int
}

type Option func(*options)

func WithLogger(logger zerolog.Logger) Option {
	return func(opts *options) {
		opts.logger = logger
	}
}

// WithEnumRegistry overrides the registry which receives the enum
// definitions discovered while classifying types.  Defaults to
// DefaultEnumRegistry().
func WithEnumRegistry(registry *EnumRegistry) Option {
	return func(opts *options) {
		opts.registry = registry
	}
}

func WithMaxChainDepth(depth int) Option {
	return func(opts *options) {
		opts.maxChainDepth = depth
	}
}

// Session holds the parsed debug info of a single binary (executable or
// shared library).  The binary's content is memory mapped for the lifetime
// of the session.  A Session is not safe for concurrent use.
type Session struct {
	filename string

	content []byte // nil if not mapped
	closed  bool

	elf   *elf.File   // nil if the file is not a valid elf file
	dwarf *dwarf.File // nil if the file has no usable debug info

	// Load bias for position independent binaries, 0 otherwise.
	offset uint64

	resolver *Resolver
	logger   zerolog.Logger
}

// Open maps and parses the binary.  loadOffset is only retained for
// position independent binaries (ET_DYN); the runtime addresses passed to
// spec queries are translated by subtracting it.
//
// An unopenable file returns a nil session and an error wrapping ErrOpen.
// A file without usable debug info returns a session (which answers every
// spec query with no spec) together with an error wrapping both ErrOpen and
// ErrNoDebugInfo.
func Open(
	filename string,
	loadOffset uint64,
	opts ...Option,
) (
	*Session,
	error,
) {
	o := options{
		logger:        zerolog.Nop(),
		maxChainDepth: DefaultMaxChainDepth,
	}
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger.With().Str("file", filename).Logger()

	content, err := mapFile(filename)
	if err != nil {
		logger.Error().Err(err).Msg("cannot open")
		return nil, fmt.Errorf("%w %s: %w", ErrOpen, filename, err)
	}

	session := &Session{
		filename: filename,
		content:  content,
		resolver: NewResolver(o.registry, logger, o.maxChainDepth),
		logger:   logger,
	}

	elfFile, err := elf.ParseBytes(content)
	if err != nil {
		logger.Debug().Err(err).Msg("failed to setup debug info")
		return session, fmt.Errorf(
			"%w %s: %w: %w",
			ErrOpen,
			filename,
			ErrNoDebugInfo,
			err)
	}
	session.elf = elfFile

	// symbol addresses are already adjusted by the load offset, but debug
	// info uses file addresses (for shared libraries).
	if elfFile.IsPositionIndependent() {
		session.offset = loadOffset
	}

	dwarfFile, err := dwarf.NewFile(elfFile)
	if err != nil {
		logger.Debug().Err(err).Msg("failed to setup debug info")
		return session, fmt.Errorf(
			"%w %s: %w: %w",
			ErrOpen,
			filename,
			ErrNoDebugInfo,
			err)
	}
	session.dwarf = dwarfFile

	return session, nil
}

func mapFile(filename string) ([]byte, error) {
	fd, err := unix.Open(filename, unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, err
	}
	defer unix.Close(fd)

	stat := unix.Stat_t{}
	err = unix.Fstat(fd, &stat)
	if err != nil {
		return nil, err
	}

	if stat.Mode&unix.S_IFMT != unix.S_IFREG {
		return nil, fmt.Errorf("not a regular file")
	}

	if stat.Size == 0 {
		return nil, nil
	}

	return unix.Mmap(fd, 0, int(stat.Size), unix.PROT_READ, unix.MAP_PRIVATE)
}

// Close unmaps the binary.  Closing a nil or closed session is a no-op.
func (session *Session) Close() error {
	if session == nil || session.closed {
		return nil
	}

	session.closed = true
	session.elf = nil
	session.dwarf = nil

	content := session.content
	session.content = nil
	if content == nil {
		return nil
	}

	err := unix.Munmap(content)
	if err != nil {
		return fmt.Errorf("failed to unmap %s: %w", session.filename, err)
	}
	return nil
}

func (session *Session) Filename() string {
	return session.filename
}

func (session *Session) LoadOffset() uint64 {
	return session.offset
}

func (session *Session) HasDebugInfo() bool {
	return session != nil && !session.closed && session.dwarf != nil
}

// ElfFile returns the parsed elf file, or nil if the file is not a valid elf
// file.
func (session *Session) ElfFile() *elf.File {
	if session == nil || session.closed {
		return nil
	}
	return session.elf
}

// DebugInfo returns the parsed debug info, or nil if unavailable.
func (session *Session) DebugInfo() *dwarf.File {
	if !session.HasDebugInfo() {
		return nil
	}
	return session.dwarf
}

func (session *Session) Resolver() *Resolver {
	return session.resolver
}

// ArgSpec returns the argument spec for the named function, located by its
// runtime address.  false is returned when no spec is available.
func (session *Session) ArgSpec(name string, address uint64) (string, bool) {
	return session.query(name, address, session.resolverArgSpec)
}

// RetSpec returns the return value spec for the named function, located by
// its runtime address.  false is returned when no spec is available (this
// includes void functions).
func (session *Session) RetSpec(name string, address uint64) (string, bool) {
	return session.query(name, address, session.resolverRetSpec)
}

func (session *Session) resolverArgSpec(function *dwarf.DebugInfoEntry) Spec {
	session.logger.Debug().Str("function", session.nameOf(function)).Msg(
		"found function for argspec")
	return session.resolver.ArgSpec(function)
}

func (session *Session) resolverRetSpec(function *dwarf.DebugInfoEntry) Spec {
	session.logger.Debug().Str("function", session.nameOf(function)).Msg(
		"found function for retspec")
	return session.resolver.RetSpec(function)
}

func (session *Session) nameOf(entry *dwarf.DebugInfoEntry) string {
	name, _, _ := entry.Name()
	return name
}

func (session *Session) query(
	name string,
	address uint64,
	build func(*dwarf.DebugInfoEntry) Spec,
) (
	string,
	bool,
) {
	if !session.HasDebugInfo() {
		return "", false
	}

	function, err := session.Lookup(name, address)
	if err != nil {
		session.logger.Debug().
			Err(err).
			Str("function", name).
			Str("address", fmt.Sprintf("%#x", address-session.offset)).
			Msg("no DWARF info found")
		return "", false
	}

	spec := build(function)
	if len(spec) == 0 {
		return "", false
	}

	return spec.String(), true
}

// SymbolAddress returns the runtime address of the named function symbol
// (raw or demangled name).
func (session *Session) SymbolAddress(name string) (uint64, bool) {
	if session == nil || session.closed || session.elf == nil {
		return 0, false
	}

	for _, symbol := range session.elf.SymbolsByName(name) {
		if !symbol.IsFunction() {
			continue
		}

		low, _, ok := symbol.AddressRange()
		if ok {
			return uint64(low) + session.offset, true
		}
	}

	return 0, false
}

// FunctionAt returns the name of the function symbol spanning the runtime
// address.
func (session *Session) FunctionAt(address uint64) (string, bool) {
	if session == nil || session.closed || session.elf == nil {
		return "", false
	}

	symbol := session.elf.SymbolSpans(elf.FileAddress(address - session.offset))
	if symbol == nil || !symbol.IsFunction() {
		return "", false
	}

	return symbol.Name, true
}

// Functions returns the sorted, de-duplicated function symbol names.
func (session *Session) Functions() []string {
	if session == nil || session.closed || session.elf == nil {
		return nil
	}

	seen := map[string]struct{}{}
	names := []string{}
	for _, symbol := range session.elf.FunctionSymbols() {
		_, ok := seen[symbol.Name]
		if ok {
			continue
		}
		seen[symbol.Name] = struct{}{}
		names = append(names, symbol.Name)
	}

	sort.Strings(names)
	return names
}
