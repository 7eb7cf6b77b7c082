package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"chat-client/internal/api"
	"chat-client/internal/config"
	"chat-client/internal/models"
	"chat-client/internal/storage"
	"chat-client/internal/telemetry"
	"chat-client/internal/transport"
)

// clientDeps is everything a client-side command needs.
type clientDeps struct {
	cfg       config.Client
	logger    *slog.Logger
	prefs     storage.Store
	api       *api.Client
	transport *transport.Manager
	shutdown  func(context.Context) error
}

func newClientDeps(ctx context.Context, cfg config.Client, logger *slog.Logger) (*clientDeps, error) {
	prefs, err := openStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := rememberCredentials(ctx, prefs, cfg); err != nil {
		logger.Warn("could not persist credentials", "error", err)
	}

	shutdown, err := telemetry.SetupTracing(ctx, telemetry.TracingConfig{
		ServiceName: "chat-client",
		Version:     version,
		Endpoint:    cfg.OTLPEndpoint,
	})
	if err != nil {
		return nil, err
	}

	client := api.NewClient(cfg.BaseURL, api.NewTokenRouter(tokenSource(ctx, cfg, prefs)), api.WithLogger(logger))
	manager := transport.NewManager(
		transport.StompDialer{URL: cfg.WSURL, HeartBeat: cfg.HeartBeat, Logger: logger},
		transport.WithLogger(logger),
		transport.WithReconnectPolicy(transport.ReconnectPolicy{
			InitialInterval: cfg.ReconnectInitial,
			MaxInterval:     cfg.ReconnectMax,
			MaxRetries:      uint64(cfg.ReconnectRetries),
		}),
	)

	return &clientDeps{
		cfg:       cfg,
		logger:    logger,
		prefs:     prefs,
		api:       client,
		transport: manager,
		shutdown:  shutdown,
	}, nil
}

func (d *clientDeps) Close(ctx context.Context) {
	if err := d.shutdown(ctx); err != nil {
		d.logger.Warn("tracer shutdown failed", "error", err)
	}
	if closer, ok := d.prefs.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
}

func openStorage(ctx context.Context, cfg config.Client) (storage.Store, error) {
	switch cfg.Storage {
	case "redis":
		return storage.DialRedis(ctx, cfg.RedisAddr, storage.DefaultRedisPrefix)
	case "memory":
		return storage.NewMemory(), nil
	case "file", "":
		return storage.NewFile(cfg.StoragePath)
	}
	return nil, fmt.Errorf("unknown storage %q", cfg.Storage)
}

// rememberCredentials stores the identity and any tokens given on the
// environment so later runs can omit them.
func rememberCredentials(ctx context.Context, prefs storage.Store, cfg config.Client) error {
	if cfg.Token != "" {
		if err := prefs.Set(ctx, storage.KeyToken, cfg.Token); err != nil {
			return err
		}
	}
	if cfg.SubAdminToken != "" {
		if err := prefs.Set(ctx, storage.KeySubAdminToken, cfg.SubAdminToken); err != nil {
			return err
		}
	}
	if len(cfg.Roles) > 0 {
		roles, err := json.Marshal(cfg.Roles)
		if err != nil {
			return err
		}
		if err := prefs.Set(ctx, storage.KeyRoles, string(roles)); err != nil {
			return err
		}
	}
	user, err := json.Marshal(cfg.User())
	if err != nil {
		return err
	}
	return prefs.Set(ctx, storage.KeyUser, string(user))
}

// sessionUser is the configured identity, with roles from an earlier run
// when none are configured now.
func sessionUser(ctx context.Context, prefs storage.Store, cfg config.Client) (models.User, error) {
	user := cfg.User()
	if len(user.Roles) > 0 {
		return user, nil
	}
	raw, err := storage.GetOr(ctx, prefs, storage.KeyRoles, "")
	if err != nil || raw == "" {
		return user, err
	}
	if err := json.Unmarshal([]byte(raw), &user.Roles); err != nil {
		return user, fmt.Errorf("decode stored roles: %w", err)
	}
	return user, nil
}

// tokenSource prefers the configured tokens and falls back to stored ones.
func tokenSource(ctx context.Context, cfg config.Client, prefs storage.Store) api.TokenSource {
	return func() api.Tokens {
		t := api.Tokens{Auth: cfg.Token, SubAdmin: cfg.SubAdminToken}
		if t.Auth == "" {
			t.Auth, _ = storage.GetOr(ctx, prefs, storage.KeyToken, "")
		}
		if t.SubAdmin == "" {
			t.SubAdmin, _ = storage.GetOr(ctx, prefs, storage.KeySubAdminToken, "")
		}
		return t
	}
}
