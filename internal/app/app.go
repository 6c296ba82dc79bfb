// Package app wires the vCard bot: configuration, storage, the conversation
// controller, batch dispatch and the Telegram transport.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/vcfbot/core/batch"
	"github.com/m3rciful/vcfbot/core/bootstrap"
	corecmd "github.com/m3rciful/vcfbot/core/cmd"
	coreconfig "github.com/m3rciful/vcfbot/core/config"
	"github.com/m3rciful/vcfbot/core/conversation"
	coredatabase "github.com/m3rciful/vcfbot/core/database"
	"github.com/m3rciful/vcfbot/core/dispatch"
	"github.com/m3rciful/vcfbot/core/health"
	"github.com/m3rciful/vcfbot/core/logger"
	"github.com/m3rciful/vcfbot/core/state"
	"github.com/m3rciful/vcfbot/core/telegram"
	"github.com/m3rciful/vcfbot/core/telegram/keyboard"
	"github.com/m3rciful/vcfbot/core/telegram/membership"
	"github.com/m3rciful/vcfbot/core/telegram/router"
	"github.com/m3rciful/vcfbot/core/telegram/sender"
)

// App holds the wired components of a running bot.
type App struct {
	cfg   *coreconfig.Config
	infra *bootstrap.Result
	bot   *tele.Bot

	store      *state.Store
	messenger  *telegram.Messenger
	dispatcher *dispatch.Dispatcher
	collector  *batch.Collector
	controller *conversation.Controller
	journal    *coredatabase.TaskJournal
	registry   *telegram.Registry
	health     *health.Server

	stopHealth context.CancelFunc
	healthDone chan error
}

// LoadConfig adapts config.Load to cmd.Options.
func LoadConfig(path string) (corecmd.ConfigCarrier, error) {
	return coreconfig.Load(path)
}

// Bootstrap initializes infrastructure and wires the bot.
func Bootstrap(carrier corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
	cfg := carrier.CoreConfig()
	infra, err := bootstrap.Run(context.Background(), bootstrap.Options{Config: cfg})
	if err != nil {
		return nil, err
	}
	bot, err := telegram.NewBot(cfg)
	if err != nil {
		_ = infra.Close()
		return nil, err
	}
	a, err := New(cfg, infra, bot)
	if err != nil {
		_ = infra.Close()
		return nil, err
	}
	return a, nil
}

// New wires the components around an initialized bot and infrastructure.
func New(cfg *coreconfig.Config, infra *bootstrap.Result, bot *tele.Bot) (*App, error) {
	if cfg == nil || infra == nil || infra.Blobs == nil || bot == nil {
		return nil, errors.New("app: config, infrastructure and bot are required")
	}
	a := &App{cfg: cfg, infra: infra, bot: bot, store: state.NewStore()}

	a.messenger = telegram.NewMessenger(bot,
		sender.NewRetrier(sender.DefaultOptions()),
		keyboard.NewMenus(cfg.Access.Channels),
		cfg.MaxUploadBytes(),
	)

	var recorder dispatch.Recorder
	if infra.DB != nil {
		a.journal = coredatabase.NewTaskJournal(infra.DB)
		recorder = a.journal
	}
	a.dispatcher = dispatch.New(a.store, infra.Blobs, a.messenger, dispatch.Options{Journal: recorder})
	a.collector = batch.New(a.store, clockwork.NewRealClock(), batch.Window, a.runBatch)

	usernames := make([]string, 0, len(cfg.Access.Channels))
	for _, ch := range cfg.Access.Channels {
		usernames = append(usernames, ch.Username)
	}
	opts := conversation.Options{
		Blobs:       infra.Blobs,
		Collector:   a.collector,
		Runner:      a.dispatcher,
		Channels:    usernames,
		MaxUploadMB: cfg.Telegram.MaxUploadMB,
		Credit:      cfg.Telegram.Credit,
	}
	if len(usernames) > 0 {
		timeout := time.Duration(cfg.Access.CheckTimeoutSeconds) * time.Second
		opts.Members = membership.New(bot, usernames, timeout)
	}
	a.controller = conversation.New(a.store, a.messenger, opts)

	a.registry = telegram.NewRegistry()
	if err := router.RegisterConversation(a.registry, a.controller, a.messenger); err != nil {
		return nil, fmt.Errorf("app: register conversation: %w", err)
	}
	a.registerAdminCommands()

	if cfg.HTTP.Enabled {
		a.health = health.New(cfg.HTTP, a.healthChecks()...)
	}
	return a, nil
}

// runBatch turns a closed upload batch into a dispatch job.
func (a *App) runBatch(ctx context.Context, b batch.Batch) {
	a.dispatcher.Run(ctx, dispatch.Job{
		UserID:      b.UserID,
		ChatID:      b.ChatID,
		Mode:        b.Mode,
		Files:       b.Files,
		Config:      b.Config,
		Instruction: b.Instruction,
	})
}

func (a *App) healthChecks() []health.Check {
	checks := []health.Check{{Name: "blobstore", Check: a.infra.Blobs.Ping}}
	if a.journal != nil {
		checks = append(checks, health.Check{Name: "postgres", Check: a.journal.Ping})
	}
	return checks
}

// TelegramRunOptions implements cmd.TelegramApp.
func (a *App) TelegramRunOptions() (telegram.RunOptions, error) {
	routes := router.CommandRoutes(a.registry, router.CommandRouteOptions{AdminID: a.cfg.Telegram.AdminID})
	routes = append(routes, router.CallbackRoute(a.registry, router.CallbackOptions{}))
	routes = append(routes, router.TextRoutes(a.registry, router.TextOptions{})...)

	return telegram.RunOptions{
		Config:      a.cfg,
		Bot:         a.bot,
		Registry:    a.registry,
		Middlewares: telegram.DefaultMiddlewares(a.cfg, limitedNotice(a.messenger.SendText)),
		Routes:      routes,
		OnStart:     a.onStart,
		OnStop:      a.onStop,
	}, nil
}

func (a *App) onStart(ctx context.Context, _ telegram.Runtime) error {
	if a.health == nil {
		return nil
	}
	hctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a.stopHealth = cancel
	a.healthDone = make(chan error, 1)
	go func() {
		a.healthDone <- a.health.Run(hctx)
	}()
	a.health.SetTelegramState(health.TelegramRunning)
	return nil
}

func (a *App) onStop(ctx context.Context, _ telegram.Runtime) error {
	var errs []error
	if a.health != nil {
		a.health.SetTelegramState(health.TelegramStopped)
		if a.stopHealth != nil {
			a.stopHealth()
			if err := <-a.healthDone; err != nil {
				errs = append(errs, err)
			}
		}
	}
	if err := a.infra.Close(); err != nil {
		errs = append(errs, err)
	}
	logger.Info(ctx, logger.ComponentApp, "app.stopped",
		slog.String("status", logger.Status(errors.Join(errs...))),
		slog.Int("sessions", a.store.Len()),
	)
	return errors.Join(errs...)
}
