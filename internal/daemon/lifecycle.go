package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// LifecycleManager owns the daemon's on-disk presence: the data
// directory and the PID file other finsight commands probe to find a
// running daemon.
type LifecycleManager struct {
	daemon  *Daemon
	pidFile string
}

func NewLifecycleManager(d *Daemon) *LifecycleManager {
	return &LifecycleManager{
		daemon:  d,
		pidFile: filepath.Join(d.config.DataDir, "finsight.pid"),
	}
}

// Start claims the PID file. It refuses to start over a live daemon but
// silently replaces a stale PID file left by a crash.
func (l *LifecycleManager) Start() error {
	if err := os.MkdirAll(l.daemon.config.DataDir, 0755); err != nil {
		return fmt.Errorf("data directory: %w", err)
	}

	if pid, err := l.GetPID(); err == nil && pid != os.Getpid() && processAlive(pid) {
		return fmt.Errorf("daemon already running (pid %d)", pid)
	}

	pid := os.Getpid()
	if err := os.WriteFile(l.pidFile, []byte(strconv.Itoa(pid)), 0644); err != nil {
		return fmt.Errorf("pid file: %w", err)
	}

	l.daemon.logger.Info().
		Str("pid_file", l.pidFile).
		Int("pid", pid).
		Msg("PID file claimed")

	return nil
}

// Stop releases the PID file. A missing file is not an error.
func (l *LifecycleManager) Stop() error {
	if err := os.Remove(l.pidFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("pid file: %w", err)
	}
	return nil
}

// GetPID reads the process id recorded in the PID file.
func (l *LifecycleManager) GetPID() (int, error) {
	data, err := os.ReadFile(l.pidFile)
	if err != nil {
		return 0, err
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("malformed pid file %s: %w", l.pidFile, err)
	}
	return pid, nil
}

// IsRunning reports whether the PID file names a live process.
func (l *LifecycleManager) IsRunning() bool {
	pid, err := l.GetPID()
	if err != nil {
		return false
	}
	return processAlive(pid)
}

// processAlive probes pid with signal 0. On Unix FindProcess always
// succeeds, so the signal is the real check.
func processAlive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
