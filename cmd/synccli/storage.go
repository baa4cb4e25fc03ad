package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func (c *cli) newStorageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "storage",
		Short: "Read and write tab storage",
	}
	cmd.AddCommand(c.newStorageGetCmd())
	cmd.AddCommand(c.newStorageSetCmd())
	cmd.AddCommand(c.newStorageRemoveCmd())
	cmd.AddCommand(c.newStorageListCmd())
	return cmd
}

func (c *cli) newStorageGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print the stored JSON value of key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				value, ok, err := a.storage.GetRaw(args[0])
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("%s: not set", args[0])
				}
				fmt.Fprintln(cmd.OutOrStdout(), value)
				return nil
			})
		},
	}
}

func (c *cli) newStorageSetCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Store value under key in both tiers",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var value any = args[1]
			if asJSON {
				var decoded any
				if err := json.Unmarshal([]byte(args[1]), &decoded); err != nil {
					return fmt.Errorf("value is not JSON: %w", err)
				}
				value = decoded
			}
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				return a.storage.Set(args[0], value)
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Parse value as JSON instead of storing it as a string")
	return cmd
}

func (c *cli) newStorageRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "rm <key>",
		Aliases: []string{"remove"},
		Short:   "Remove key from both tiers",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				return a.storage.Remove(args[0])
			})
		},
	}
}

func (c *cli) newStorageListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List keys in the durable tier",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				keys, err := a.durable.Keys()
				if err != nil {
					return err
				}
				for _, key := range keys {
					fmt.Fprintln(cmd.OutOrStdout(), key)
				}
				return nil
			})
		},
	}
}
