package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pattyshack/argspec/config"
)

// loadRunConfig loads the config file and applies environment variable and
// explicitly set command line overrides.
func loadRunConfig(cmd *cobra.Command, c *cli, path string) (*config.Config, error) {
	cfg := config.Default()
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	err := cfg.ApplyEnv()
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Log.Level = c.flags.LogLevel
	}
	if flags.Changed("pretty") {
		cfg.Log.Pretty = c.flags.Pretty
	}
	if flags.Changed("max-depth") {
		cfg.MaxChainDepth = c.flags.MaxDepth
	}

	err = cfg.Validate()
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

func newRunCmd(c *cli) *cobra.Command {
	configPath := ""

	cmd := &cobra.Command{
		Use:   "run --config FILE",
		Short: "Print the specs of every target listed in the config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadRunConfig(cmd, c, configPath)
			if err != nil {
				return err
			}

			loggingConfig := cfg.LoggingConfig()
			loggingConfig.Output = cmd.ErrOrStderr()
			c.flags.LogLevel = loggingConfig.Level
			c.flags.Pretty = loggingConfig.Pretty
			c.logger = c.flags.Logger(loggingConfig.Output)

			out := cmd.OutOrStdout()
			for idx, t := range cfg.Targets {
				logger := c.logger.With().Int("target", idx).Logger()

				session, err := openSession(
					target{
						path:       t.Path,
						loadOffset: uint64(t.LoadOffset),
						pid:        t.Pid,
					},
					logger,
					c.dict,
					cfg.MaxChainDepth)
				if err != nil {
					return fmt.Errorf("failed to open target %s: %w", t.Path, err)
				}

				if idx > 0 {
					fmt.Fprintln(out)
				}
				fmt.Fprintf(out, "# %s (load offset %#x)\n", t.Path, session.LoadOffset())
				scanSession(out, session, t.Functions)

				err = session.Close()
				if err != nil {
					return err
				}
			}

			if c.dict.Len() > 0 {
				fmt.Fprintln(out)
				printEnums(out, c.dict)
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "YAML config file")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}
