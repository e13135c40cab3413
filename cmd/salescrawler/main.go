package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"

	"github.com/tkclough/salescrawler/internal/config"
	"github.com/tkclough/salescrawler/internal/discord"
	"github.com/tkclough/salescrawler/internal/pipeline"
	"github.com/tkclough/salescrawler/internal/reddit"
	"github.com/tkclough/salescrawler/internal/rule"
	"github.com/tkclough/salescrawler/internal/sms"
	"github.com/tkclough/salescrawler/internal/storage"
)

type options struct {
	Config string `short:"c" long:"config" default:"./config.toml" description:"Path to the configuration file"`
}

func main() {
	var opts options
	parser := flags.NewParser(&opts, flags.Default)

	if _, err := parser.AddCommand("setup",
		"Create the database and apply the schema",
		"Creates the data directory and database file and applies all pending schema migrations.",
		&setupCommand{opts: &opts}); err != nil {
		slog.Error("register command", "error", err)
		os.Exit(1)
	}
	if _, err := parser.AddCommand("poll",
		"Watch listings and send notifications",
		"Polls the listing source, matches new listings against the rule file and posts batched notifications.",
		&pollCommand{opts: &opts}); err != nil {
		slog.Error("register command", "error", err)
		os.Exit(1)
	}

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			return
		}
		os.Exit(1)
	}
}

type setupCommand struct {
	opts *options
}

func (c *setupCommand) Execute(args []string) error {
	cfg, err := config.Load(c.opts.Config)
	if err != nil {
		return err
	}
	log := newLogger(cfg.LogLevel)

	if err := ensureDir(cfg.DB.Path); err != nil {
		return err
	}

	store, err := storage.NewSQLite(cfg.DB.Path)
	if err != nil {
		return fmt.Errorf("open database %s: %w", cfg.DB.Path, err)
	}
	defer func() { _ = store.Close() }()

	log.Info("database ready", "path", cfg.DB.Path)
	return nil
}

type pollCommand struct {
	opts *options
}

func (c *pollCommand) Execute(args []string) error {
	cfg, err := config.Load(c.opts.Config)
	if err != nil {
		return err
	}
	log := newLogger(cfg.LogLevel)

	rules, err := rule.LoadFile(cfg.RulesFile)
	if err != nil {
		return err
	}
	log.Info("loaded rules", "path", cfg.RulesFile, "count", len(rules.Rules()))

	for _, p := range []string{cfg.DB.Path, cfg.Reddit.TokenFile} {
		if err := ensureDir(p); err != nil {
			return err
		}
	}

	store, err := storage.NewSQLite(cfg.DB.Path)
	if err != nil {
		return fmt.Errorf("open database %s: %w", cfg.DB.Path, err)
	}
	defer func() { _ = store.Close() }()

	source := reddit.New(cfg.Reddit, http.DefaultClient, log)
	if err := source.ReadAuthFile(); err != nil {
		return fmt.Errorf("read token file: %w", err)
	}
	sink := discord.New(cfg.Discord, http.DefaultClient, log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	p := &pipeline.Pipeline{
		Source:       source,
		Sink:         sink,
		Store:        store,
		Rules:        rules,
		Subreddit:    cfg.Reddit.Subreddit,
		SendInterval: time.Duration(cfg.Discord.SendingIntervalSecs) * time.Second,
		Log:          log,
	}

	log.Info("watching for listings", "subreddit", cfg.Reddit.Subreddit)
	if err := p.Run(ctx); err != nil {
		alert(cfg, log, err)
		return err
	}
	log.Info("stopped")
	return nil
}

// alert texts the operator about a fatal pipeline failure, when a
// messaging account is configured.
func alert(cfg *config.Config, log *slog.Logger, cause error) {
	if cfg.Twilio == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client := sms.New(*cfg.Twilio, http.DefaultClient)
	receipt, err := client.SendText(ctx, fmt.Sprintf("salescrawler stopped: %v", cause))
	if err != nil {
		log.Error("send crash alert", "error", err)
		return
	}
	log.Info("sent crash alert", "uri", receipt.URI)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}
	return nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
