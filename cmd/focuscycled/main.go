package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"focuscycle/internal/api"
	"focuscycle/internal/config"
	"focuscycle/internal/core"
	"focuscycle/internal/logging"
	focusmcp "focuscycle/internal/mcp"
	"focuscycle/internal/notify"
	"focuscycle/internal/store"
)

type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	cycles   *core.CycleStore
	journal  *store.Store
	driver   *core.Driver
	notifier *notify.CompletionListener
}

func main() {
	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to parse config: %v\n", err)
		os.Exit(2)
	}

	// stdout carries the MCP stdio transport, so logs go to stderr there.
	logger := logging.New(cfg.Log.Level, cfg.Log.Format)
	if cfg.Mode != "http" {
		logger = logging.NewWithWriter(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	}

	a, err := newApp(cfg, logger)
	if err != nil {
		logger.Error("startup", "err", err)
		os.Exit(1)
	}
	defer a.close()

	switch cfg.Mode {
	case "http":
		err = a.runHTTP()
	case "mcp":
		err = a.runMCP()
	case "both":
		err = a.runBoth()
	}
	if err != nil {
		logger.Error("exit", "mode", cfg.Mode, "err", err)
		a.close()
		os.Exit(1)
	}
}

func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	journal, err := store.Open(context.Background(), cfg.StateDir, cfg.Journal.Retention)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	cycles := core.NewCycleStore(core.WithLogger(logger))
	driver := core.NewDriver(cycles, logger, core.WithTickInterval(cfg.Timer.TickInterval))

	var notifier notify.Notifier = &notify.NoOpNotifier{}
	if cfg.Notification.Bark.Enabled {
		bark, err := notify.NewBarkNotifier(cfg.Notification.Bark.URL)
		if err != nil {
			_ = journal.Close()
			return nil, fmt.Errorf("bark notifier: %w", err)
		}
		notifier = notify.NewMultiNotifier(bark)
		logger.Info("bark notifications enabled")
	}
	completion := notify.NewCompletionListener(notifier, logger)

	// Listeners run in subscription order; the driver detaches first.
	cycles.Subscribe(driver)
	cycles.Subscribe(store.NewJournal(journal, logger))
	cycles.Subscribe(completion)

	driver.Start()
	logger.Info("focuscycle started",
		"mode", cfg.Mode,
		"state_dir", cfg.StateDir,
		"tick", cfg.Timer.TickInterval.String(),
	)

	return &app{
		cfg:      cfg,
		logger:   logger,
		cycles:   cycles,
		journal:  journal,
		driver:   driver,
		notifier: completion,
	}, nil
}

func (a *app) mcpServer() *focusmcp.MCPServer {
	return focusmcp.NewMCPServer(a.cycles, a.journal, a.logger, a.cfg.Location())
}

// runHTTP serves the API, with MCP mounted at /mcp, until a signal arrives.
func (a *app) runHTTP() error {
	return a.serveHTTP(a.mcpServer(), nil)
}

// runMCP serves MCP on stdio until stdin closes or a signal arrives.
func (a *app) runMCP() error {
	mcpErr := make(chan error, 1)
	go func() {
		mcpErr <- a.mcpServer().Run()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		a.logger.Info("received signal", "signal", sig.String())
		return nil
	case err := <-mcpErr:
		return err
	}
}

// runBoth serves MCP on stdio alongside the HTTP API.
func (a *app) runBoth() error {
	mcpServer := a.mcpServer()
	mcpErr := make(chan error, 1)
	go func() {
		if err := mcpServer.Run(); err != nil {
			mcpErr <- err
		}
	}()
	return a.serveHTTP(mcpServer, mcpErr)
}

func (a *app) serveHTTP(mcpServer *focusmcp.MCPServer, mcpErr <-chan error) error {
	server, err := api.NewServer(a.cfg.Server.Addr, a.cfg.Server.AuthToken, a.cycles, a.journal, mcpServer.Handler(), a.logger)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}
	if a.cfg.Server.AuthToken == "" {
		a.logger.Warn("http api has no auth token configured")
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigs:
		a.logger.Info("received signal", "signal", sig.String())
	case runErr = <-serverErr:
	case runErr = <-mcpErr:
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), a.cfg.ShutdownGrace)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown", "err", err)
	}
	return runErr
}

func (a *app) close() {
	if a.driver == nil {
		return
	}
	stopCtx := a.driver.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(a.cfg.ShutdownGrace):
		a.logger.Warn("driver stop timed out")
	}
	a.driver = nil

	a.notifier.Wait()
	if err := a.journal.Close(); err != nil {
		a.logger.Error("close journal", "err", err)
	}
	a.logger.Info("shutdown complete")
}
