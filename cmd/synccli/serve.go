package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/jrsteele09/go-resource-sync/internal/mockapi"
)

type serveOptions struct {
	addr          string
	secret        string
	rsa           bool
	email         string
	password      string
	firstName     string
	lastName      string
	accessExpiry  time.Duration
	refreshExpiry time.Duration
}

func (c *cli) newServeMockCmd() *cobra.Command {
	opts := serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve-mock",
		Short: "Run the development backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serveMock(c.cfg.GetAppName(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.addr, "addr", ":8080", "Listen address")
	cmd.Flags().StringVar(&opts.secret, "secret", "", "HMAC signing secret (random when empty)")
	cmd.Flags().BoolVar(&opts.rsa, "rsa", false, "Sign with a generated RSA key and publish it at "+mockapi.JWKSPath)
	cmd.Flags().StringVar(&opts.email, "user-email", "demo@example.com", "Seed user email")
	cmd.Flags().StringVar(&opts.password, "user-password", "password", "Seed user password")
	cmd.Flags().StringVar(&opts.firstName, "user-first", "Demo", "Seed user first name")
	cmd.Flags().StringVar(&opts.lastName, "user-last", "User", "Seed user last name")
	cmd.Flags().DurationVar(&opts.accessExpiry, "access-expiry", 15*time.Minute, "Access token lifetime")
	cmd.Flags().DurationVar(&opts.refreshExpiry, "refresh-expiry", 7*24*time.Hour, "Refresh token lifetime")
	return cmd
}

func serveMock(appName string, opts serveOptions) error {
	signer, err := newSigner(opts)
	if err != nil {
		return err
	}

	backend := mockapi.New(signer, mockapi.WithTokenExpiry(opts.accessExpiry, opts.refreshExpiry))
	if _, err := backend.AddUser(mockapi.User{
		Email:     opts.email,
		FirstName: opts.firstName,
		LastName:  opts.lastName,
	}, opts.password); err != nil {
		return err
	}

	displayAppname(appName)
	server := &http.Server{Addr: opts.addr, Handler: backend}
	errs := make(chan error, 1)
	go func() {
		errs <- listenAndServe(server)
	}()

	select {
	case err := <-errs:
		return err
	case <-waitForStopSignal():
	}
	return shutdown(server)
}

func newSigner(opts serveOptions) (mockapi.Signer, error) {
	if opts.rsa {
		return mockapi.NewKeyPairSigner(uuid.New().String(), 2048)
	}
	if opts.secret == "" {
		return mockapi.NewRandomHMACSigner()
	}
	return mockapi.NewHMACSigner(opts.secret), nil
}

func listenAndServe(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("Mock backend listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() <-chan os.Signal {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	return stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	log.Info().Msg("Mock backend stopped")
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
