package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/pattyshack/argspec/enums"
)

type cli struct {
	flags globalFlags

	logger zerolog.Logger
	dict   *enums.Dictionary
}

func (c *cli) target(path string) target {
	return target{
		path:       path,
		loadOffset: uint64(c.flags.Offset),
		pid:        c.flags.Pid,
	}
}

func newRootCmd() *cobra.Command {
	c := &cli{
		logger: zerolog.Nop(),
		dict:   enums.NewDictionary(),
	}

	rootCmd := &cobra.Command{
		Use:   "argspec",
		Short: "Infer argument / return value specs from DWARF debug info",
		Long: `Infer the argument and return value formats of functions from the
DWARF debug info of an ELF binary, e.g.,

  @arg1/s,fparg1/64,arg2/e:mode

Enumeration types referenced by the inferred specs are registered and can be
listed alongside the specs.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			err := c.flags.Validate()
			if err != nil {
				return err
			}

			c.logger = c.flags.Logger(cmd.ErrOrStderr())
			return nil
		},
	}

	c.flags.AddFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(
		newArgsCmd(c),
		newRetCmd(c),
		newScanCmd(c),
		newDumpCmd(c),
		newShellCmd(c),
		newRunCmd(c))

	return rootCmd
}

func main() {
	err := newRootCmd().Execute()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
