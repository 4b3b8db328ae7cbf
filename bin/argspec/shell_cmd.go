package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/pattyshack/argspec/argspec"
	"github.com/pattyshack/argspec/enums"
)

var errQuit = errors.New("quit")

type shellCommand struct {
	name  string
	usage string
	run   func(*shell, []string) error
}

func shellCommands() []shellCommand {
	return []shellCommand{
		{
			name:  "args",
			usage: "args FUNC[@ADDR]",
			run:   (*shell).args,
		},
		{
			name:  "ret",
			usage: "ret FUNC[@ADDR]",
			run:   (*shell).ret,
		},
		{
			name:  "at",
			usage: "at ADDR",
			run:   (*shell).at,
		},
		{
			name:  "functions",
			usage: "functions [SUBSTRING]",
			run:   (*shell).functions,
		},
		{
			name:  "enums",
			usage: "enums",
			run:   (*shell).enums,
		},
		{
			name:  "enum",
			usage: "enum NAME VALUE",
			run:   (*shell).enum,
		},
		{
			name:  "parse",
			usage: "parse SPEC",
			run:   (*shell).parse,
		},
		{
			name:  "help",
			usage: "help",
			run:   (*shell).help,
		},
		{
			name:  "quit",
			usage: "quit",
			run: func(*shell, []string) error {
				return errQuit
			},
		},
	}
}

type shell struct {
	session *argspec.Session
	dict    *enums.Dictionary
	out     io.Writer
}

// execute runs a single command line.  errQuit is returned once the user
// asks to quit.
func (sh *shell) execute(line string) error {
	args := strings.Fields(line)
	if len(args) == 0 {
		return nil
	}

	// exact matches take precedence over prefix matches (e.g., "enum" vs
	// "enums").
	commands := shellCommands()

	var matched *shellCommand
	for idx, cmd := range commands {
		if cmd.name == args[0] {
			matched = &commands[idx]
			break
		}

		if matched == nil && strings.HasPrefix(cmd.name, args[0]) {
			matched = &commands[idx]
		}
	}

	if matched == nil {
		fmt.Fprintln(sh.out, "invalid command:", args[0])
		return nil
	}

	return matched.run(sh, args[1:])
}

func (sh *shell) spec(args []string, query specFunc) error {
	if len(args) != 1 {
		fmt.Fprintln(sh.out, "expected exactly one function")
		return nil
	}

	name, addr, err := resolveFunction(sh.session, args[0])
	if err != nil {
		fmt.Fprintln(sh.out, err)
		return nil
	}

	spec, ok := query(sh.session, name, addr)
	fmt.Fprintln(sh.out, formatSpec(spec, ok))
	return nil
}

func (sh *shell) args(args []string) error {
	return sh.spec(args, (*argspec.Session).ArgSpec)
}

func (sh *shell) ret(args []string) error {
	return sh.spec(args, (*argspec.Session).RetSpec)
}

func (sh *shell) at(args []string) error {
	if len(args) != 1 {
		fmt.Fprintln(sh.out, "expected exactly one address")
		return nil
	}

	addr, err := strconv.ParseUint(args[0], 0, 64)
	if err != nil {
		fmt.Fprintf(sh.out, "invalid address (%s): %s\n", args[0], err)
		return nil
	}

	name, ok := sh.session.FunctionAt(addr)
	if !ok {
		fmt.Fprintf(sh.out, "no function at %#x\n", addr)
		return nil
	}

	argsSpec, argsOk := sh.session.ArgSpec(name, addr)
	retSpec, retOk := sh.session.RetSpec(name, addr)
	fmt.Fprintf(
		sh.out,
		"%s\t%s\t%s\n",
		name,
		formatSpec(argsSpec, argsOk),
		formatSpec(retSpec, retOk))
	return nil
}

func (sh *shell) functions(args []string) error {
	for _, name := range sh.session.Functions() {
		if len(args) > 0 && !strings.Contains(name, args[0]) {
			continue
		}
		fmt.Fprintln(sh.out, name)
	}
	return nil
}

func (sh *shell) enums([]string) error {
	printEnums(sh.out, sh.dict)
	return nil
}

func (sh *shell) enum(args []string) error {
	if len(args) != 2 {
		fmt.Fprintln(sh.out, "expected enum name and value")
		return nil
	}

	_, ok := sh.dict.Lookup(args[0])
	if !ok {
		fmt.Fprintln(sh.out, "unknown enum:", args[0])
		return nil
	}

	value, err := strconv.ParseInt(args[1], 0, 64)
	if err != nil {
		fmt.Fprintf(sh.out, "invalid value (%s): %s\n", args[1], err)
		return nil
	}

	fmt.Fprintln(sh.out, sh.dict.Format(args[0], value))
	return nil
}

func (sh *shell) parse(args []string) error {
	if len(args) != 1 {
		fmt.Fprintln(sh.out, "expected exactly one spec")
		return nil
	}

	spec, err := argspec.ParseSpec(args[0])
	if err != nil {
		fmt.Fprintln(sh.out, err)
		return nil
	}

	for _, token := range spec {
		fmt.Fprintf(sh.out, "%s\t%s", token, token.Format)
		if token.BitSize > 0 {
			fmt.Fprintf(sh.out, " (%d bits)", token.BitSize)
		}
		if token.EnumName != "" {
			def, ok := sh.dict.Lookup(token.EnumName)
			if ok {
				fmt.Fprintf(sh.out, " {%s}", def)
			}
		}
		fmt.Fprintln(sh.out)
	}
	return nil
}

func (sh *shell) help([]string) error {
	for _, cmd := range shellCommands() {
		fmt.Fprintln(sh.out, " ", cmd.usage)
	}
	return nil
}

func newShellCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "shell BINARY",
		Short: "Interactively query the binary's specs",
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

			rl, err := readline.NewEx(&readline.Config{
				Prompt: "argspec > ",
				Stdout: cmd.OutOrStdout(),
				Stderr: cmd.ErrOrStderr(),
			})
			if err != nil {
				return err
			}
			defer rl.Close()

			sh := &shell{
				session: session,
				dict:    c.dict,
				out:     rl.Stdout(),
			}

			lastLine := ""
			for {
				line, err := rl.Readline()
				if err != nil {
					if err == io.EOF || err == readline.ErrInterrupt {
						return nil
					}
					return err
				}

				line = strings.TrimSpace(line)
				if line == "" {
					line = lastLine
				}
				lastLine = line

				err = sh.execute(line)
				if err == errQuit {
					return nil
				}
				if err != nil {
					return err
				}
			}
		},
	}
}
