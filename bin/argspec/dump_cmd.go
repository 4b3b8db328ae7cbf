package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pattyshack/argspec/dwarf"
	"github.com/pattyshack/argspec/elf"
)

type dumpOptions struct {
	elf     bool
	strings bool
	abbrev  bool
	unit    string
}

func newDumpCmd(c *cli) *cobra.Command {
	opts := dumpOptions{}

	cmd := &cobra.Command{
		Use:   "dump BINARY",
		Short: "Print the binary's debug info entry tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := openSession(
				c.target(args[0]),
				c.logger,
				c.dict,
				c.flags.MaxDepth)
			if err != nil {
				return err
			}
			defer session.Close()

			out := cmd.OutOrStdout()

			if opts.elf {
				elfFile := session.ElfFile()
				if elfFile == nil {
					return fmt.Errorf("%s is not an elf file", args[0])
				}
				dumpElf(out, elfFile)
			}

			file := session.DebugInfo()
			if file == nil {
				return fmt.Errorf("%s has no usable debug info", args[0])
			}

			return dumpDwarf(out, file, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.elf, "elf", false, "Print elf sections and symbols")
	cmd.Flags().BoolVar(&opts.strings, "strings", false, "Print .debug_str entries")
	cmd.Flags().BoolVar(&opts.abbrev, "abbrev", false, "Print .debug_abbrev tables")
	cmd.Flags().StringVar(
		&opts.unit,
		"unit",
		"",
		"Only print compile units whose name contains the given substring")

	return cmd
}

func dumpElf(out io.Writer, file *elf.File) {
	fmt.Fprintf(
		out,
		"Header: type=%s machine=%s\n",
		file.FileType,
		file.MachineArchitecture)

	fmt.Fprintln(out, "Sections:", len(file.Sections))
	for sectionIdx, section := range file.Sections {
		fmt.Fprintf(
			out,
			"  [%d] %s: %s\n",
			sectionIdx,
			section.Name(),
			section.Header().SectionType)
	}

	for _, table := range file.SymbolTables() {
		fmt.Fprintf(out, "%s:\n", table.Name())
		for symbolIdx, entry := range table.Symbols {
			if entry.Name == "" {
				continue
			}

			fmt.Fprintf(
				out,
				"  %d: %x %d %s %s\n",
				symbolIdx,
				entry.Value,
				entry.Size,
				entry.Type(),
				entry.PrettyName())
		}
	}
}

func dumpDwarf(out io.Writer, file *dwarf.File, opts dumpOptions) error {
	if opts.strings {
		entries, err := file.StringSection.StringEntries()
		if err != nil {
			return err
		}

		fmt.Fprintln(out, ".debug_str:")
		for idx, value := range entries {
			fmt.Fprintf(out, "  %d: %s\n", idx, value)
		}
	}

	if opts.abbrev {
		offsets := []dwarf.SectionOffset{}
		for offset := range file.AbbreviationTables {
			offsets = append(offsets, offset)
		}
		sort.Slice(
			offsets,
			func(i int, j int) bool { return offsets[i] < offsets[j] })

		fmt.Fprintln(out, ".debug_abbrev:")
		for _, offset := range offsets {
			table := file.AbbreviationTables[offset]
			fmt.Fprintf(out, "  table (%d):\n", offset)

			sorted := []*dwarf.Abbreviation{}
			for _, abbrev := range table {
				sorted = append(sorted, abbrev)
			}
			sort.Slice(
				sorted,
				func(i int, j int) bool { return sorted[i].Code < sorted[j].Code })

			for _, abbrev := range sorted {
				fmt.Fprintf(
					out,
					"    Code: %d\tHasChildren: %v\tTag: %s\n",
					abbrev.Code,
					abbrev.HasChildren,
					abbrev.Tag)
				for _, spec := range abbrev.AttributeSpecs {
					fmt.Fprintf(
						out,
						"      Attribute: %s\tFormat: %s\n",
						spec.Attribute,
						spec.Format)
				}
			}
		}
	}

	sections := []*dwarf.InformationSection{file.InformationSection}
	if file.TypesSection != nil {
		sections = append(sections, file.TypesSection)
	}

	for _, section := range sections {
		err := dumpUnits(out, section, opts)
		if err != nil {
			return err
		}
	}

	return nil
}

func dumpUnits(
	out io.Writer,
	section *dwarf.InformationSection,
	opts dumpOptions,
) error {
	fmt.Fprintf(out, "%s:\n", section.Name)
	for _, unit := range section.CompileUnits {
		name, _, err := unit.Name()
		if err != nil {
			return err
		}

		if opts.unit != "" && !strings.Contains(name, opts.unit) {
			continue
		}

		entries, err := unit.DebugInfoEntries()
		if err != nil {
			return err
		}

		if unit.IsTypeUnit() {
			fmt.Fprintf(
				out,
				"  TypeUnit: Start = %d Version = %d Signature = %s NumEntries = %d\n",
				unit.Start,
				unit.Version,
				unit.Signature,
				len(entries))
		} else {
			fmt.Fprintf(
				out,
				"  CompileUnit: Start = %d Version = %d NumEntries = %d\n",
				unit.Start,
				unit.Version,
				len(entries))
		}

		root, err := unit.Root()
		if err != nil {
			return err
		}

		err = dumpDebugInfoEntry(out, root, 0)
		if err != nil {
			return err
		}
	}

	return nil
}

func dumpDebugInfoEntry(
	out io.Writer,
	entry *dwarf.DebugInfoEntry,
	level int,
) error {
	indent := strings.Repeat("| ", level)

	name, found, err := entry.Name()
	if err != nil {
		return err
	}

	if found {
		name = " (" + name + ")"
	}

	fmt.Fprintf(out, "    %s%08x: %s%s\n", indent, entry.SectionOffset, entry.Tag, name)
	for idx, spec := range entry.AttributeSpecs {
		fmt.Fprintf(
			out,
			"    %s    %s (%s):\t%v\n",
			indent,
			spec.Attribute,
			spec.Format,
			entry.Values[idx])
	}

	for _, child := range entry.Children {
		err := dumpDebugInfoEntry(out, child, level+1)
		if err != nil {
			return err
		}
	}

	return nil
}
