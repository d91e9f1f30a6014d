package main

import (
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/matheus3301/chatsync/internal/admin"
	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/cache"
	"github.com/matheus3301/chatsync/internal/config"
	"github.com/matheus3301/chatsync/internal/instance"
	"github.com/matheus3301/chatsync/internal/logging"
	"github.com/matheus3301/chatsync/internal/remote"
	"github.com/matheus3301/chatsync/internal/status"
	intsync "github.com/matheus3301/chatsync/internal/sync"
	"github.com/matheus3301/chatsync/internal/tui"
	"github.com/matheus3301/chatsync/internal/tui/model"
	"go.uber.org/zap"
)

func main() {
	instanceFlag := flag.String("instance", "", "instance name (overrides config default)")
	userFlag := flag.String("user", "", "user id to sign in as (overrides config)")
	serverFlag := flag.String("server", "", "server URL (overrides config)")
	flag.Parse()

	name := instance.Resolve(*instanceFlag)
	if err := instance.ValidateName(name); err != nil {
		fatalf("error: %v", err)
	}

	cfg, err := config.LoadOrDefault(instance.ConfigPath())
	if err != nil {
		fatalf("error: load config: %v", err)
	}
	if *userFlag != "" {
		cfg.Client.UserID = *userFlag
	}
	if *serverFlag != "" {
		cfg.Client.ServerURL = *serverFlag
	}
	if cfg.Client.UserID == "" {
		fatalf("error: no user; pass --user or set client.user_id in %s", instance.ConfigPath())
	}

	if err := instance.EnsureDir(name); err != nil {
		fatalf("error: %v", err)
	}
	logger, err := logging.New(instance.LogPath(name, "chattui"), "chattui", logging.Options{Quiet: true})
	if err != nil {
		fatalf("error: init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	// A local server is started on demand, like any other instance daemon.
	if isLocal(cfg.Client.ServerURL) {
		socketPath := instance.SocketPath(name)
		if cfg.Server.AdminSocket != "" {
			socketPath = cfg.Server.AdminSocket
		}
		if !probeDaemon(socketPath) {
			fmt.Fprintf(os.Stderr, "daemon not running for instance %q, starting...\n", name)
			if err := startDaemon(name); err != nil {
				fatalf("failed to start daemon: %v", err)
			}
			if !waitForDaemon(socketPath, 10*time.Second) {
				fatalf("daemon did not become ready")
			}
		}
	}

	client, err := remote.NewClient(cfg.Client.ServerURL, cfg.Client.UserID, cfg.Client.RequestTimeout.Duration)
	if err != nil {
		fatalf("error: %v", err)
	}

	b := bus.New()
	machine := status.NewMachine(b)
	push := remote.NewPush(client.BaseURL(), cfg.Client.UserID, b, logger.Named("push"))
	coord := intsync.New(client, push, b, machine, intsync.Options{
		UserID: cfg.Client.UserID,
		Cache: cache.Policy{
			TTL:     cfg.Client.Cache.TTL.Duration,
			MaxSize: cfg.Client.Cache.MaxSize,
		},
		TypingIdle:    cfg.Client.TypingIdle.Duration,
		SeenThreshold: cfg.Client.SeenThreshold,
		Logger:        logger.Named("sync"),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		if err := coord.Start(ctx); err != nil {
			logger.Warn("initial connect failed", zap.Error(err))
		}
	}()
	defer coord.Stop()

	vm := model.NewViewModel(coord, b)
	app := tui.NewApp(vm, tui.Options{
		Instance: name,
		Server:   cfg.Client.ServerURL,
		Self:     cfg.Client.UserID,
	})
	if err := app.Run(); err != nil {
		fatalf("error: %v", err)
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func isLocal(serverURL string) bool {
	u, err := url.Parse(serverURL)
	if err != nil {
		return false
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

// probeDaemon checks if a daemon is running and responsive on the socket.
func probeDaemon(socketPath string) bool {
	if _, err := os.Stat(socketPath); err != nil {
		return false
	}
	c, err := admin.Dial(socketPath)
	if err != nil {
		return false
	}
	defer func() { _ = c.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err = c.Status(ctx)
	return err == nil
}

func startDaemon(name string) error {
	executable, err := os.Executable()
	if err != nil {
		return err
	}
	chatd := filepath.Join(filepath.Dir(executable), "chatd")
	if _, err := os.Stat(chatd); err != nil {
		chatd = "chatd"
	}

	cmd := exec.Command(chatd, "--instance", name)
	// Inherit stderr so daemon startup errors are visible.
	cmd.Stderr = os.Stderr
	return cmd.Start()
}

// waitForDaemon polls the admin Status call until it answers.
func waitForDaemon(socketPath string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if probeDaemon(socketPath) {
			return true
		}
		time.Sleep(300 * time.Millisecond)
	}
	return false
}
