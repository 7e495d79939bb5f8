package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	tgbot "github.com/go-telegram/bot"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/tbourn/forum-relay-bot/internal/bot"
	"github.com/tbourn/forum-relay-bot/internal/config"
	httpapi "github.com/tbourn/forum-relay-bot/internal/http"
	"github.com/tbourn/forum-relay-bot/internal/observability"
	"github.com/tbourn/forum-relay-bot/internal/repo"
	"github.com/tbourn/forum-relay-bot/internal/services"
	"github.com/tbourn/forum-relay-bot/internal/sysutil"
	"github.com/tbourn/forum-relay-bot/internal/telegram"
)

const (
	shutdownTimeout = 10 * time.Second
	janitorInterval = time.Hour
)

func runCommand() *cli.Command {
	return &cli.Command{
		Name:   "run",
		Usage:  "Start the bot (polling or webhook, per UPDATE_MODE)",
		Action: runBot,
	}
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Create or update the database schema and exit",
		Action: func(c *cli.Context) error {
			cfg, lg, err := loadConfig(c)
			if err != nil {
				return err
			}
			db, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer closeDB(db, lg)
			lg.Info().Str("driver", cfg.DBDriver).Msg("schema up to date")
			return nil
		},
	}
}

// loadConfig reads the optional env file, then the environment, and installs
// the global logger.
func loadConfig(c *cli.Context) (config.Config, zerolog.Logger, error) {
	if f := c.String("env-file"); f != "" {
		// A missing file is fine: production sets real environment variables.
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return config.Config{}, zerolog.Nop(), fmt.Errorf("load %s: %w", f, err)
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return cfg, zerolog.Nop(), fmt.Errorf("config: %w", err)
	}
	return cfg, sysutil.SetupLogger(cfg.LogLevel, cfg.LogPretty), nil
}

func openStore(cfg config.Config) (*gorm.DB, error) {
	db, err := repo.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

func closeDB(db *gorm.DB, lg zerolog.Logger) {
	sqlDB, err := db.DB()
	if err == nil {
		err = sqlDB.Close()
	}
	if err != nil {
		lg.Warn().Err(err).Msg("close database")
	}
}

func component(lg zerolog.Logger, name string) zerolog.Logger {
	return lg.With().Str("component", name).Logger()
}

func runBot(c *cli.Context) error {
	cfg, lg, err := loadConfig(c)
	if err != nil {
		return err
	}
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version, cfg.Telegram.Mode, lg)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			lg.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeDB(db, lg)
	store := repo.NewStore(db)

	// Polled updates reach the dispatcher through the poller, whose handler
	// and stored offset must be handed to the client at construction.
	var poller *bot.Poller
	var pollOpts []tgbot.Option
	if cfg.Telegram.Mode != config.ModeWebhook {
		poller = &bot.Poller{Offsets: store, Token: cfg.Telegram.Token, Log: component(lg, "poller")}
		if pollOpts, err = poller.Options(ctx); err != nil {
			return err
		}
	}

	client, err := telegram.New(cfg.Telegram.Token, cfg.Telegram.APIURL, cfg.Telegram.PollTimeout, pollOpts...)
	if err != nil {
		return err
	}
	me, err := client.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("getMe: %w", telegram.RedactToken(err, cfg.Telegram.Token))
	}
	forum, err := telegram.CheckForum(ctx, client, cfg.Telegram.ForumGroupID)
	if err != nil {
		return fmt.Errorf("forum group: %w", telegram.RedactToken(err, cfg.Telegram.Token))
	}
	lg.Info().
		Int64("bot_id", me.ID).
		Str("bot_username", me.Username).
		Int64("forum_chat_id", forum.ID).
		Str("forum_title", forum.Title).
		Str("mode", cfg.Telegram.Mode).
		Str("version", version).
		Msg("bot starting")

	transport := telegram.NewTransport(client, cfg.Telegram.Token, cfg.Telegram.RPS, cfg.Telegram.Burst)
	relay := services.NewRelay(store, transport, cfg.Telegram.ForumGroupID, component(lg, "relay"))
	dispatcher := bot.NewDispatcher(relay, store, cfg.UpdateReceiptTTL, cfg.MaxConcurrency, component(lg, "dispatcher"))
	// Handlers still running at exit finish before the database closes.
	defer dispatcher.Wait()

	r := gin.New()
	httpapi.RegisterRoutes(r, httpapi.Deps{Dispatcher: dispatcher, DB: store}, cfg)
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		lg.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	g.Go(func() error {
		janitor := &bot.Janitor{Store: store, Interval: janitorInterval, Log: component(lg, "janitor")}
		janitor.RunOnce(gctx)
		janitor.Run(gctx)
		return nil
	})

	switch cfg.Telegram.Mode {
	case config.ModeWebhook:
		_, err := client.SetWebhook(ctx, &tgbot.SetWebhookParams{
			URL:            cfg.Telegram.WebhookURL,
			SecretToken:    cfg.Telegram.WebhookSec,
			AllowedUpdates: telegram.AllowedUpdates,
		})
		if err != nil {
			stop()
			_ = g.Wait()
			return fmt.Errorf("setWebhook: %w", telegram.RedactToken(err, cfg.Telegram.Token))
		}
		lg.Info().Str("path", httpapi.WebhookPath(cfg.Telegram.WebhookURL)).Msg("webhook registered")
	default:
		// getUpdates is refused while a webhook is set. Pending updates are kept.
		if _, err := client.DeleteWebhook(ctx, &tgbot.DeleteWebhookParams{}); err != nil {
			stop()
			_ = g.Wait()
			return fmt.Errorf("deleteWebhook: %w", telegram.RedactToken(err, cfg.Telegram.Token))
		}
		poller.Dispatcher = dispatcher
		g.Go(func() error {
			poller.Run(gctx, client)
			return nil
		})
	}

	err = g.Wait()
	lg.Info().Msg("bot stopped")
	return err
}
