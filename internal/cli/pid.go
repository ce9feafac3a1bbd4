package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

func getPIDFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "/tmp/finsight.pid"
	}
	return filepath.Join(home, ".finsight", "finsight.pid")
}

func readPID(pidFile string) (int, error) {
	data, err := os.ReadFile(pidFile)
	if err != nil {
		return 0, fmt.Errorf("failed to read PID file: %w", err)
	}

	var pid int
	if _, err := fmt.Sscanf(string(data), "%d", &pid); err != nil {
		return 0, fmt.Errorf("invalid PID file: %w", err)
	}
	return pid, nil
}

func isRunning(pidFile string) bool {
	pid, err := readPID(pidFile)
	if err != nil {
		return false
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// On Unix, FindProcess always succeeds, so we need to send signal 0
	return process.Signal(syscall.Signal(0)) == nil
}

// stopDaemon sends SIGTERM to the process named in the PID file.
func stopDaemon(pidFile string) error {
	pid, err := readPID(pidFile)
	if err != nil {
		return err
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process: %w", err)
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to send SIGTERM: %w", err)
	}

	fmt.Printf("Sent SIGTERM to PID %d\n", pid)
	return nil
}
