// Package daemon assembles and runs the long-lived finsight service:
// the research service behind the HTTP gateway, with config hot-reload
// and graceful shutdown.
package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"finsight/internal/config"
	"finsight/internal/logger"
	"finsight/internal/observability"
	"finsight/internal/tracing"
	"finsight/pkg/gateway"
	"finsight/pkg/service"
	"finsight/pkg/team"
	"finsight/pkg/trace"
)

// Daemon represents the finsight daemon service
type Daemon struct {
	config *config.Config
	logger *logger.Logger

	runs          *switchableService
	gatewayServer *gateway.Server
	broadcaster   *gateway.Broadcaster
	configWatcher *config.Watcher
	lifecycle     *LifecycleManager

	configPath string

	startTime time.Time
	running   bool
	mu        sync.RWMutex

	tracingEnabled bool
}

// switchableService lets the gateway keep serving while a config
// reload swaps the assembled service underneath it. Handles issued by
// the previous service are forgotten on swap.
type switchableService struct {
	v atomic.Pointer[service.Service]
}

func (s *switchableService) Submit(ctx context.Context, query string) (service.Handle, error) {
	return s.v.Load().Submit(ctx, query)
}

func (s *switchableService) Result(handle service.Handle) (team.Response, error) {
	return s.v.Load().Result(handle)
}

func (s *switchableService) Trace(handle service.Handle) ([]trace.Event, error) {
	return s.v.Load().Trace(handle)
}

// New creates a new daemon instance
func New(cfg *config.Config, log *logger.Logger, configPath string) (*Daemon, error) {
	observability.EnsureRegistered()

	tracingEnabled := true
	if err := tracing.InitOpenTelemetry("finsight-daemon"); err != nil {
		log.Warn().Err(err).Msg("Failed to initialize tracing, continuing without distributed tracing")
		tracingEnabled = false
	} else {
		log.Info().Msg("Tracing initialized successfully")
	}

	auditPath := filepath.Join(cfg.DataDir, "audit.log")
	if err := observability.InitAuditLogger(auditPath); err != nil {
		log.Warn().Err(err).Msg("Failed to initialize audit logger, using default stderr")
	} else {
		log.Info().Str("path", auditPath).Msg("Audit logger initialized")
	}

	d := &Daemon{
		config:         cfg,
		logger:         log,
		runs:           &switchableService{},
		broadcaster:    gateway.NewBroadcaster(log.GetZerolog()),
		configPath:     configPath,
		tracingEnabled: tracingEnabled,
	}

	svc, err := service.FromConfig(cfg, d.broadcaster, log.GetZerolog())
	if err != nil {
		d.shutdownTracing()
		return nil, fmt.Errorf("failed to assemble service: %w", err)
	}
	d.runs.v.Store(svc)

	gw, err := gateway.NewServer(gateway.Config{
		Host:         cfg.Gateway.Host,
		Port:         cfg.Gateway.Port,
		SharedSecret: cfg.Gateway.SharedSecret,
		Service:      d.runs,
		Broadcaster:  d.broadcaster,
		Logger:       log.GetZerolog(),
	})
	if err != nil {
		d.shutdownTracing()
		return nil, fmt.Errorf("failed to create gateway: %w", err)
	}
	d.gatewayServer = gw
	d.lifecycle = NewLifecycleManager(d)

	return d, nil
}

// Start starts the daemon and blocks until a shutdown signal arrives.
func (d *Daemon) Start() error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is already running")
	}
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	if err := d.lifecycle.Start(); err != nil {
		return fmt.Errorf("failed to start lifecycle manager: %w", err)
	}

	if err := d.gatewayServer.Start(); err != nil {
		return fmt.Errorf("failed to start gateway: %w", err)
	}

	if d.configPath != "" {
		watcher, err := config.NewWatcher(d.configPath, 0, d.onConfigReload)
		if err != nil {
			d.logger.Warn().Err(err).Msg("Config watcher unavailable; config changes require restart")
		} else if err := watcher.Start(); err != nil {
			d.logger.Warn().Err(err).Msg("Failed to start config watcher")
		} else {
			d.configWatcher = watcher
		}
	}

	d.logger.Info().
		Int("port", d.config.Gateway.Port).
		Msg("Daemon started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	d.logger.Info().Str("signal", sig.String()).Msg("Shutdown signal received")

	return d.Stop()
}

// Stop gracefully stops the daemon
func (d *Daemon) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = false
	d.mu.Unlock()

	if d.configWatcher != nil {
		if err := d.configWatcher.Stop(); err != nil {
			d.logger.Warn().Err(err).Msg("Failed to stop config watcher")
		}
	}

	if err := d.gatewayServer.Stop(); err != nil {
		d.logger.Error().Err(err).Msg("Failed to stop gateway")
	}

	if err := d.lifecycle.Stop(); err != nil {
		d.logger.Warn().Err(err).Msg("Failed to stop lifecycle manager")
	}

	d.shutdownTracing()

	d.logger.Info().Msg("Daemon stopped")
	return nil
}

// onConfigReload rebuilds the service from the fresh config. Runs in
// flight on the old service finish there; their handles are dropped.
func (d *Daemon) onConfigReload(cfg *config.Config) {
	svc, err := service.FromConfig(cfg, d.broadcaster, d.logger.GetZerolog())
	if err != nil {
		d.logger.Error().Err(err).Msg("Config reload: service rebuild failed; keeping previous service")
		return
	}

	d.mu.Lock()
	d.config = cfg
	d.mu.Unlock()
	d.runs.v.Store(svc)

	observability.RecordConfigAudit(context.Background(), "reload", "daemon", nil)
	d.logger.Info().Msg("Config reload applied")
}

// Uptime returns how long the daemon has been running.
func (d *Daemon) Uptime() time.Duration {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.running {
		return 0
	}
	return time.Since(d.startTime)
}

// IsRunning reports whether the daemon has been started.
func (d *Daemon) IsRunning() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.running
}

func (d *Daemon) shutdownTracing() {
	if !d.tracingEnabled {
		return
	}
	d.tracingEnabled = false

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tracing.ShutdownOpenTelemetry(ctx); err != nil {
		d.logger.Warn().Err(err).Msg("Failed to shutdown tracing")
	}
}
