// bothive hosts user-submitted bots as managed child processes.
//
// Usage:
//
//	bothive serve --config config.yaml
//	bothive code --config config.yaml --chat-id <id> [--name <display name>]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/bothive/bothive/internal/api"
	"github.com/bothive/bothive/internal/authcode"
	"github.com/bothive/bothive/internal/config"
	"github.com/bothive/bothive/internal/lock"
	"github.com/bothive/bothive/internal/log"
	"github.com/bothive/bothive/internal/logsink"
	"github.com/bothive/bothive/internal/registry"
	"github.com/bothive/bothive/internal/sandbox"
	"github.com/bothive/bothive/internal/session"
	"github.com/bothive/bothive/internal/storage"
	"github.com/bothive/bothive/internal/supervisor"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "serve":
		os.Exit(runServe(os.Args[2:]))
	case "code":
		os.Exit(runCode(os.Args[2:]))
	case "help", "-h", "--help":
		printUsage()
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", os.Args[1])
		printUsage()
		os.Exit(2)
	}
}

func printUsage() {
	fmt.Fprint(os.Stderr, `bothive - hosted bot supervisor

Commands:
  serve   run the host (HTTP API + process supervisor)
  code    issue a one-time login code for a chat identity

Run 'bothive <command> -h' for command flags.
`)
}

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "path to config file")
	_ = fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel)
	logger := log.WithComponent("main")

	for _, path := range []string{cfg.Storage.Path, cfg.Storage.DataDir} {
		if err := storage.ValidateLocalPath(path); err != nil {
			logger.Error("storage check failed", "error", err)
			return 1
		}
	}

	hostLock, err := lock.Acquire(filepath.Join(cfg.Storage.DataDir, ".bothive.lock"))
	if err != nil {
		logger.Error("acquire host lock", "error", err)
		return 1
	}
	defer func() { _ = hostLock.Release() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := storage.Open(ctx, cfg.Storage.Path)
	if err != nil {
		logger.Error("open storage", "error", err)
		return 1
	}
	defer func() { _ = db.Close() }()

	reg := registry.New(db)
	files := sandbox.NewStore()
	sink := logsink.NewStore(db)
	sup := supervisor.New(files, reg, sink)
	broker := authcode.New(db, cfg.Auth.CodeTTL)
	sessions := session.NewManager(db)

	server := api.New(api.Config{
		Listen:        cfg.API.Listen,
		DataDir:       cfg.Storage.DataDir,
		ShutdownGrace: cfg.Service.ShutdownGrace,
	}, reg, sup, files, broker, sessions, sink, cfg.QuotaFor, log.WithComponent("api"))

	logger.Info("bothive starting", "name", cfg.Service.Name, "listen", cfg.API.Listen)

	err = server.Start(ctx)

	// Signal every live bot process before the host exits.
	sup.Shutdown()

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server stopped", "error", err)
		return 1
	}
	logger.Info("bothive stopped")
	return 0
}

// runCode issues a login code out-of-band, standing in for the chat bridge.
func runCode(args []string) int {
	fs := flag.NewFlagSet("code", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "path to config file")
	chatID := fs.String("chat-id", "", "external chat identity")
	name := fs.String("name", "", "display name")
	avatar := fs.String("avatar", "", "avatar reference")
	_ = fs.Parse(args)

	if *chatID == "" {
		fmt.Fprintln(os.Stderr, "--chat-id is required")
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel)
	ctx := context.Background()

	db, err := storage.Open(ctx, cfg.Storage.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open storage: %v\n", err)
		return 1
	}
	defer func() { _ = db.Close() }()

	broker := authcode.New(db, cfg.Auth.CodeTTL)
	code, err := broker.Issue(ctx, authcode.Identity{
		ChatID:      *chatID,
		DisplayName: *name,
		AvatarRef:   *avatar,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "issue code: %v\n", err)
		return 1
	}

	fmt.Println(code)
	return 0
}
