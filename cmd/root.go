// Package cmd wires the webgym CLI: configuration, logging, and the
// rollout and version subcommands.
package cmd

import (
	"context"
	"fmt"
	"strings"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webgym/internal/config"
	"github.com/xkilldash9x/webgym/internal/observability"
)

// NewRootCommand builds a fresh root command. Commands are never shared
// between executions so flag state cannot leak.
func NewRootCommand() *cobra.Command {
	var cfgFile string

	root := &cobra.Command{
		Use:     "webgym",
		Short:   "webgym is an episodic browser environment for training web agents.",
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Runs before any subcommand, setting up config and logging.
			if err := initializeConfig(cfgFile); err != nil {
				return err
			}

			cfg, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				// Initialize a fallback logger so the error itself is visible.
				observability.InitializeLogger(observability.LoggerConfig{Level: "info", Format: "console", ServiceName: "webgym"})
				return err
			}

			observability.InitializeLogger(cfg.Logger)
			observability.GetLogger().Info("Starting webgym.", zap.String("version", Version))
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", `config file (default "webgym.yaml" in $HOME or the working directory)`)
	root.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	root.AddCommand(newRolloutCmd())
	root.AddCommand(newVersionCmd())

	return root
}

// Execute builds the root command and runs it against the given context.
// Errors are logged here; the caller decides the exit code.
func Execute(ctx context.Context) error {
	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		observability.GetLogger().Error("Command execution failed.", zap.Error(err))
		return err
	}
	return nil
}

// initializeConfig layers defaults, an optional config file, and WEBGYM_*
// environment variables onto the global viper instance.
func initializeConfig(cfgFile string) error {
	v := viper.GetViper()
	config.SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		if home, err := homedir.Dir(); err == nil {
			v.AddConfigPath(home)
		}
		v.AddConfigPath(".")
		v.SetConfigName("webgym")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("WEBGYM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; proceed with defaults and env vars.
	}
	return nil
}
