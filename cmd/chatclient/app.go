package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/peerchat/chat-client/internal/api"
	"github.com/peerchat/chat-client/internal/chat"
	"github.com/peerchat/chat-client/internal/config"
	"github.com/peerchat/chat-client/internal/logger"
	"github.com/peerchat/chat-client/internal/messaging"
	"github.com/peerchat/chat-client/internal/session"
	"github.com/peerchat/chat-client/internal/ws"
)

// app is the wired client shared by all commands.
type app struct {
	cfg  *config.Config
	ctrl *session.Controller
	conn *ws.Connection

	redis *redis.Client
	bus   *messaging.EventBus
	out   *printer
}

// fanout delivers each event to every notifier.
type fanout []session.Notifier

func (f fanout) Notify(ev session.Event) {
	for _, n := range f {
		n.Notify(ev)
	}
}

func newApp(ctx context.Context, cmd *cobra.Command) (*app, error) {
	envFile, _ := cmd.Flags().GetString("env-file")
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, err
	}
	if _, err := logger.New(cfg.LogLevel, cfg.LogFormat); err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, out: newPrinter(cmd.OutOrStdout())}

	var creds session.CredentialStore = session.NewMemoryCredentials()
	if cfg.RedisAddr != "" {
		a.redis, err = session.DialRedis(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, err
		}
		creds = session.NewRedisCredentials(a.redis, cfg.CredentialsProfile)
	}

	notifier := fanout{a.out}
	if cfg.NATSURL != "" {
		natsCfg := messaging.DefaultNATSConfig()
		natsCfg.URL = cfg.NATSURL
		a.bus, err = messaging.NewEventBus(natsCfg)
		if err != nil {
			a.close()
			return nil, err
		}
		notifier = append(notifier, a.bus)
	}

	a.conn = ws.New(cfg.Transport())
	a.ctrl, err = session.NewController(session.Options{
		Backend:          api.New(cfg.API()),
		Transport:        a.conn,
		Inbound:          ws.NewDispatcher(a.conn),
		Outbound:         ws.NewPublisher(a.conn),
		Credentials:      creds,
		Notifier:         notifier,
		ProfileCacheSize: cfg.ProfileCacheSize,
	})
	if err != nil {
		a.close()
		return nil, err
	}
	a.out.view = a.ctrl.View()

	log.Debug().
		Str("api", cfg.APIBaseURL).
		Str("ws", cfg.WSURL).
		Bool("redis", a.redis != nil).
		Bool("nats", a.bus != nil).
		Msg("client configured")
	return a, nil
}

// resume starts the session from stored credentials.
func (a *app) resume(ctx context.Context) error {
	err := a.ctrl.Resume(ctx)
	if errors.Is(err, chat.ErrNotAuthenticated) {
		return fmt.Errorf("not logged in: run \"chatclient login\" first")
	}
	return err
}

// close releases connections without clearing stored credentials.
func (a *app) close() {
	if a.conn != nil {
		a.conn.Close()
	}
	if a.ctrl != nil {
		a.ctrl.Wait()
	}
	if a.bus != nil {
		a.bus.Close()
	}
	if a.redis != nil {
		a.redis.Close()
	}
}

// withApp runs fn with a wired app and closes it afterwards.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.close()
	return fn(ctx, a)
}
