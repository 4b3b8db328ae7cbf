package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pattyshack/argspec/argspec"
	"github.com/pattyshack/argspec/enums"
)

const noSpec = "-"

// resolveFunction parses NAME or NAME@ADDR.  Without an explicit address,
// the function's symbol address is used, falling back to the debug info's
// entry address (e.g., unmangled C++ function names).
func resolveFunction(
	session *argspec.Session,
	arg string,
) (
	string,
	uint64,
	error,
) {
	name, addrStr, found := strings.Cut(arg, "@")
	if name == "" {
		return "", 0, fmt.Errorf("missing function name (%s)", arg)
	}

	if found {
		addr, err := strconv.ParseUint(addrStr, 0, 64)
		if err != nil {
			return "", 0, fmt.Errorf("invalid address (%s): %w", arg, err)
		}
		return name, addr, nil
	}

	addr, ok := session.SymbolAddress(name)
	if ok {
		return name, addr, nil
	}

	addr, ok = session.FunctionAddress(name)
	if ok {
		return name, addr, nil
	}

	return "", 0, fmt.Errorf("no function symbol named %s", name)
}

func formatSpec(spec string, ok bool) string {
	if !ok {
		return noSpec
	}
	return spec
}

type specFunc func(
	session *argspec.Session,
	name string,
	address uint64,
) (
	string,
	bool,
)

func newSpecCmd(
	c *cli,
	use string,
	short string,
	query specFunc,
) *cobra.Command {
	return &cobra.Command{
		Use:   use + " BINARY FUNC[@ADDR]...",
		Short: short,
		Args:  cobra.MinimumNArgs(2),
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
			for _, arg := range args[1:] {
				name, addr, err := resolveFunction(session, arg)
				if err != nil {
					c.logger.Warn().Err(err).Msg("skipping function")
					fmt.Fprintf(out, "%s\t%s\n", arg, noSpec)
					continue
				}

				spec, ok := query(session, name, addr)
				fmt.Fprintf(out, "%s\t%s\n", name, formatSpec(spec, ok))
			}
			return nil
		},
	}
}

func newArgsCmd(c *cli) *cobra.Command {
	return newSpecCmd(
		c,
		"args",
		"Print the argument specs of the named functions",
		(*argspec.Session).ArgSpec)
}

func newRetCmd(c *cli) *cobra.Command {
	return newSpecCmd(
		c,
		"ret",
		"Print the return value specs of the named functions",
		(*argspec.Session).RetSpec)
}

func scanSession(
	out io.Writer,
	session *argspec.Session,
	functions []string,
) {
	if len(functions) == 0 {
		functions = session.Functions()
	}

	writer := tabwriter.NewWriter(out, 0, 8, 2, ' ', 0)
	fmt.Fprintln(writer, "FUNCTION\tARGS\tRETVAL")
	for _, function := range functions {
		name, addr, err := resolveFunction(session, function)
		if err != nil {
			fmt.Fprintf(writer, "%s\t%s\t%s\n", function, noSpec, noSpec)
			continue
		}

		args, argsOk := session.ArgSpec(name, addr)
		ret, retOk := session.RetSpec(name, addr)
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\n",
			name,
			formatSpec(args, argsOk),
			formatSpec(ret, retOk))
	}
	writer.Flush()
}

func printEnums(out io.Writer, dict *enums.Dictionary) {
	for _, def := range dict.Definitions() {
		fmt.Fprintln(out, def.Declaration())
	}
}

func newScanCmd(c *cli) *cobra.Command {
	showEnums := true

	cmd := &cobra.Command{
		Use:   "scan BINARY",
		Short: "Print the specs of every function symbol",
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
			scanSession(out, session, nil)

			if showEnums && c.dict.Len() > 0 {
				fmt.Fprintln(out)
				printEnums(out, c.dict)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(
		&showEnums,
		"enums",
		true,
		"Print the enum declarations registered while scanning")

	return cmd
}
