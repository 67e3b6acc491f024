package cli

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/uptrace/bun"

	authclient "github.com/goliatone/go-auth-client"
	"github.com/goliatone/go-auth-client/activitymap"
	"github.com/goliatone/go-auth-client/client"
	"github.com/goliatone/go-auth-client/config"
	"github.com/goliatone/go-auth-client/repository"
)

// runtime wires the library components for a single command invocation.
type runtime struct {
	cfg      *config.Config
	db       *bun.DB
	client   *client.Client
	session  *authclient.SessionMachine
	roles    *authclient.RoleService
	churches *authclient.ChurchSelector
	password *authclient.ChangePasswordHandler
	logger   authclient.Logger
}

func newRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	logger := authclient.NopLogger()
	if verbose {
		logger = authclient.DefaultLogger()
	}

	db, err := repository.Open(ctx, cfg.GetStorageDSN())
	if err != nil {
		return nil, err
	}
	creds := repository.NewCredentialRepository(db)

	api := client.NewFromConfig(cfg, creds, client.WithLogger(logger))

	sink := activitymap.Sink(func(_ context.Context, n activitymap.Normalized) error {
		logger.Info("activity %s", print.MaybePrettyJSON(n))
		return nil
	}, activitymap.WithDefaultChannel("authctl"))

	session := authclient.NewSessionMachine(api, creds).
		WithLogger(logger).
		WithActivitySink(sink).
		WithPhoneRegion(cfg.GetPhoneRegion())

	// a 401 that revokes the token ends the session
	api.OnRevocation(session.CredentialRevoked)

	rt := &runtime{
		cfg:     cfg,
		db:      db,
		client:  api,
		session: session,
		roles: authclient.NewRoleService(api, session).
			WithLogger(logger).
			WithActivitySink(sink).
			WithSettleDelay(cfg.GetRoleSettleDelay()),
		churches: authclient.NewChurchSelector(api, creds, session.Store()).
			WithLogger(logger).
			WithActivitySink(sink),
		password: authclient.NewChangePasswordHandler(api, session).
			WithLogger(logger).
			WithActivitySink(sink),
		logger: logger,
	}
	return rt, nil
}

// restore runs Initialize and fails when no session could be restored.
func (r *runtime) restore(ctx context.Context) error {
	if err := r.session.Initialize(ctx); err != nil {
		return err
	}
	snap := r.session.Snapshot()
	if !snap.IsAuthenticated {
		if snap.Error != "" {
			return goerrors.New(snap.Error, goerrors.CategoryAuth).
				WithTextCode(authclient.TextCodeNotAuthenticated)
		}
		return authclient.ErrNotAuthenticated
	}
	return nil
}

func (r *runtime) close() {
	r.churches.Close()
	r.session.Wait()
	if err := r.db.Close(); err != nil {
		r.logger.Warn("failed to close credential database: %v", err)
	}
}

func withRuntime(ctx context.Context, fn func(rt *runtime) error) error {
	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.close()
	return fn(rt)
}

// render prints v as JSON when --json is set, otherwise runs text.
func render(v any, text func()) {
	if jsonOutput {
		printf("%s\n", print.MaybePrettyJSON(v))
		return
	}
	text()
}
