package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jrsteele09/go-resource-sync/apiclient"
	"github.com/jrsteele09/go-resource-sync/internal/utils"
	"github.com/jrsteele09/go-resource-sync/token"
)

func (c *cli) newLoginCmd() *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the token pair",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				if email == "" {
					email = a.lastEmail.Load()
				}
				if email == "" {
					return errors.New("--email is required")
				}

				if _, err := a.authority.Login(ctx, email, password); err != nil {
					return err
				}
				if err := a.lastEmail.Store(email); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", email)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&email, "email", "e", "", "Email address (defaults to the last one used)")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Password")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func (c *cli) newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget both tokens",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.authority.Logout(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
				return nil
			})
		},
	}
}

func (c *cli) newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Fetch the signed-in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.guarded(cmd, func(ctx context.Context, a *app) error {
				user, err := a.user.Remote(ctx)
				if err != nil {
					return err
				}
				printUser(cmd, user)
				return nil
			})
		},
	}
}

func (c *cli) newSetNameCmd() *cobra.Command {
	var firstName, lastName, email string

	cmd := &cobra.Command{
		Use:   "set-name",
		Short: "Edit the signed-in user and commit the changed fields",
		RunE: func(cmd *cobra.Command, args []string) error {
			var first, last, addr *string
			if cmd.Flags().Changed("first") {
				first = utils.Ptr(firstName)
			}
			if cmd.Flags().Changed("last") {
				last = utils.Ptr(lastName)
			}
			if cmd.Flags().Changed("email") {
				addr = utils.Ptr(email)
			}
			if first == nil && last == nil && addr == nil {
				return errors.New("nothing to change: pass --first, --last or --email")
			}

			return c.guarded(cmd, func(ctx context.Context, a *app) error {
				// seeds the draft
				if _, err := a.user.Remote(ctx); err != nil {
					return err
				}

				a.user.UpdateDraft(func(u apiclient.UserDto) apiclient.UserDto {
					if first != nil {
						u.FirstName = utils.Value(first)
					}
					if last != nil {
						u.LastName = utils.Value(last)
					}
					if addr != nil {
						u.EmailAddress = utils.Value(addr)
					}
					return u
				})
				if err := a.user.CommitUpdate(ctx); err != nil {
					return err
				}

				latest, _ := a.user.Latest()
				printUser(cmd, latest)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&firstName, "first", "", "First name")
	cmd.Flags().StringVar(&lastName, "last", "", "Last name")
	cmd.Flags().StringVar(&email, "email", "", "Email address")
	return cmd
}

func (c *cli) newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the tab and credential state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				now := a.session.Now()
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Environment:   %s\n", a.cfg.GetEnv())
				fmt.Fprintf(out, "Tab:           %s\n", a.storage.TabID())
				fmt.Fprintf(out, "API host:      %s\n", a.cfg.GetAPIHost())
				fmt.Fprintf(out, "Durable store: %s\n", a.cfg.GetDurableStorePath())
				fmt.Fprintf(out, "Logged in:     %t\n", a.authority.IsLoggedIn())
				fmt.Fprintf(out, "Access token:  %s\n", describeToken(a.session.AccessToken(), now))
				fmt.Fprintf(out, "Refresh token: %s\n", describeToken(a.session.RefreshToken(), now))
				return nil
			})
		},
	}
}

func describeToken(t *token.Token, now time.Time) string {
	if t == nil {
		return "absent"
	}
	if !token.IsValid(t, now) {
		return fmt.Sprintf("expired %s", t.Expiry().Format(time.RFC3339))
	}
	return fmt.Sprintf("valid until %s (subject %s)", t.Expiry().Format(time.RFC3339), t.Subject)
}

func printUser(cmd *cobra.Command, user apiclient.UserDto) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "ID:    %s\n", user.ID)
	fmt.Fprintf(out, "Email: %s\n", user.EmailAddress)
	fmt.Fprintf(out, "Name:  %s %s\n", user.FirstName, user.LastName)
}
