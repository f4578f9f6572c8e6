// Copyright 2024-2026 Aiku AI

// Command modmail is a Mattermost mod-mail bot. It relays direct
// messages between users and per-user private staff channels, keeps a
// transcript of every session, and exposes staff actions (close, ban,
// ping) as interactive message buttons.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattermost/mattermost/server/public/model"
	_ "github.com/mattn/go-sqlite3"
	"go.mau.fi/util/dbutil"

	"github.com/aiku/modmail/pkg/mailbot"
	"github.com/aiku/modmail/pkg/store"
)

// These are filled at build time with -ldflags.
var (
	Tag       = "unknown"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the config file")
	version := flag.Bool("version", false, "print the version and exit")
	flag.Parse()

	if *version {
		fmt.Printf("modmail %s (%s) built %s\n", Tag, Commit, BuildTime)
		return
	}

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := mailbot.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := cfg.Logging.Compile()
	if err != nil {
		return fmt.Errorf("failed to configure logging: %w", err)
	}
	log.Info().Str("version", Tag).Str("commit", Commit).Msg("Starting modmail")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := dbutil.NewFromConfig("modmail", cfg.Database, dbutil.ZeroLogger(*log))
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	st, err := store.NewSQL(ctx, db)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}

	api := model.NewAPIv4Client(cfg.ServerURL)
	api.SetToken(cfg.BotToken)

	me, _, err := api.GetMe(ctx, "")
	if err != nil {
		return fmt.Errorf("failed to verify Mattermost credentials: %w", err)
	}

	gw := mailbot.NewGateway(api, cfg.ServerURL, cfg.CallbackURL, me.Id, *log)
	bot := mailbot.New(gw, st, mailbot.Options{
		HostedURL: cfg.HostedURL,
		Log:       *log,
	})
	if err := bot.Start(ctx); err != nil {
		return fmt.Errorf("failed to start bot: %w", err)
	}

	client := mailbot.NewClient(bot, api, cfg.ServerURL, *log)
	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer client.Disconnect()

	callbacks := mailbot.NewCallbackServer(bot, cfg.ListenAddr, *log)
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- callbacks.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("callback server failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return callbacks.Shutdown(shutdownCtx)
}
