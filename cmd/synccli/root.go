package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/jrsteele09/go-resource-sync/internal/config"
	"github.com/jrsteele09/go-resource-sync/internal/logging"
)

var errSignInRequired = errors.New("sign in required")

// cli carries what the root command resolves for its subcommands
type cli struct {
	envFile    string
	configFile string
	logLevel   string
	console    bool
	cfg        config.Config
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:   "synccli",
		Short: "Resource sync client",
		Long: `synccli is a small host for the resource sync library. Every invocation
behaves like one tab: it gets its own tab identifier and in-memory tab tier,
and shares tokens and stored values with other invocations through the
durable SQLite tier in the data folder.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(c.envFile, c.configFile)
			if err != nil {
				return err
			}
			level := cfg.GetLogLevel()
			if c.logLevel != "" {
				level = c.logLevel
			}
			logging.Setup(level, c.console, cmd.ErrOrStderr())
			c.cfg = cfg
			return nil
		},
	}

	root.PersistentFlags().StringVar(&c.envFile, "env-file", ".env", "Path to a dotenv file")
	root.PersistentFlags().StringVarP(&c.configFile, "config", "c", "", "Path to a YAML config file")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "Log level (overrides LOG_LEVEL)")
	root.PersistentFlags().BoolVar(&c.console, "console-log", true, "Human readable log output")

	root.AddCommand(c.newLoginCmd())
	root.AddCommand(c.newLogoutCmd())
	root.AddCommand(c.newWhoamiCmd())
	root.AddCommand(c.newSetNameCmd())
	root.AddCommand(c.newStatusCmd())
	root.AddCommand(c.newStorageCmd())
	root.AddCommand(c.newServeMockCmd())
	return root
}

// withApp opens the client stack for one command and closes it afterwards
func (c *cli) withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := newApp(ctx, c.cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

// guarded runs fn only when the session may reach the command's location
func (c *cli) guarded(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	return c.withApp(cmd, func(ctx context.Context, a *app) error {
		if !a.guard.Check("/" + cmd.Name()) {
			return errSignInRequired
		}
		return fn(ctx, a)
	})
}
