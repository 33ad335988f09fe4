package main

import (
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/tbourn/go-reflect-backend/internal/config"
	"github.com/tbourn/go-reflect-backend/internal/sysutil"
)

// commandContext carries state resolved once by the root command.
type commandContext struct {
	envFile string
	cfg     config.Config
	loaded  bool
}

func (c *commandContext) ensureConfig() (config.Config, error) {
	if c.loaded {
		return c.cfg, nil
	}
	if err := loadEnvFile(c.envFile); err != nil {
		return config.Config{}, err
	}
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	sysutil.SetupLogger(cfg.LogLevel, cfg.LogPretty, cfg.OTEL.ServiceName, nil)
	c.cfg, c.loaded = cfg, true
	return cfg, nil
}

// loadEnvFile applies a .env file without overriding variables already set.
// A missing file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "reportd",
		Short:         "Weekly reflection report service",
		Version:       sysutil.FirstNonEmpty(os.Getenv("APP_VERSION"), version),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" || cmd == cmd.Root() {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&ctx.envFile, "env-file", ".env", "Path to a .env file (ignored when missing)")

	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newMigrateCommand(ctx))
	rootCmd.AddCommand(newReapCommand(ctx))

	return rootCmd
}
