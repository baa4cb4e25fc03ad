package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-resource-sync/apiclient"
	"github.com/jrsteele09/go-resource-sync/auth"
	"github.com/jrsteele09/go-resource-sync/internal/config"
	"github.com/jrsteele09/go-resource-sync/resource"
	"github.com/jrsteele09/go-resource-sync/sessions"
	"github.com/jrsteele09/go-resource-sync/tabstorage"
	"github.com/jrsteele09/go-resource-sync/tabstorage/sqlitetier"
	"github.com/jrsteele09/go-resource-sync/token"
)

const lastEmailKey = "lastEmail"

// app is the client stack of one tab
type app struct {
	cfg       config.Config
	durable   *sqlitetier.Tier
	storage   *tabstorage.Storage
	session   *sessions.Session
	authority *auth.Authority
	guard     *auth.Guard
	protected *apiclient.ProtectedAPI
	user      *resource.Resource[apiclient.UserDto]
	lastEmail *tabstorage.Binding[string]
}

func newApp(ctx context.Context, cfg config.Config, out io.Writer) (*app, error) {
	durable, err := sqlitetier.Open(cfg.GetDurableStorePath())
	if err != nil {
		return nil, err
	}

	storage, err := tabstorage.New(tabstorage.NewMemoryTier(), durable)
	if err != nil {
		durable.Close()
		return nil, err
	}

	session, err := sessions.New(storage)
	if err != nil {
		durable.Close()
		return nil, err
	}

	limit := apiclient.WithRateLimit(cfg.GetRequestsPerSecond(), 1)
	public := apiclient.NewPublic(cfg.GetAPIHost(), limit)

	authOptions := []auth.Option{
		auth.WithSignInPath(cfg.GetSignInPath()),
		auth.WithRedirector(auth.RedirectFunc(func(path string) {
			fmt.Fprintf(out, "Sign in required (%s): run `synccli login`\n", path)
		})),
	}
	if jwksURL := cfg.GetJWKSURL(); jwksURL != "" {
		authOptions = append(authOptions, auth.WithVerifier(token.NewRemoteKeySetVerifier(ctx, jwksURL)))
	}

	authority, err := auth.New(session, public, authOptions...)
	if err != nil {
		durable.Close()
		return nil, err
	}

	protected := apiclient.NewProtected(cfg.GetAPIHost(), authority.TokenSource(ctx), limit)

	log.Debug().
		Str("tab_id", storage.TabID()).
		Str("api_host", cfg.GetAPIHost()).
		Str("durable_store", cfg.GetDurableStorePath()).
		Msg("Client stack ready")

	return &app{
		cfg:       cfg,
		durable:   durable,
		storage:   storage,
		session:   session,
		authority: authority,
		guard:     auth.NewGuard(authority, cfg.GetPublicPaths()...),
		protected: protected,
		user:      newUserResource(protected, cfg.GetFetchTimeout()),
		lastEmail: tabstorage.Bind(storage, lastEmailKey, ""),
	}, nil
}

func newUserResource(protected *apiclient.ProtectedAPI, fetchTimeout time.Duration) *resource.Resource[apiclient.UserDto] {
	return resource.New(resource.Funcs[apiclient.UserDto]{
		Get: func(ctx context.Context) (apiclient.UserDto, error) {
			user, err := protected.GetUser(ctx)
			if err != nil {
				return apiclient.UserDto{}, err
			}
			return *user, nil
		},
		Put: func(ctx context.Context, draft apiclient.UserDto, diff resource.Diff) error {
			return protected.UpdateUser(ctx, draft, diff)
		},
	},
		resource.WithName[apiclient.UserDto]("user"),
		resource.WithFetchTimeout[apiclient.UserDto](fetchTimeout),
	)
}

func (a *app) Close() {
	if err := a.durable.Close(); err != nil {
		log.Err(err).Msg("Failed to close durable store")
	}
}
