package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show service status",
	Long:  `Show the current status of the finsight gateway service.`,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	pidFile := getPIDFilePath()

	if !isRunning(pidFile) {
		fmt.Println("Status: stopped")
		return nil
	}

	pid, err := readPID(pidFile)
	if err != nil {
		return err
	}

	// PID file modification time approximates the start time
	fileInfo, err := os.Stat(pidFile)
	if err == nil {
		uptime := time.Since(fileInfo.ModTime())
		fmt.Printf("Status: running\n")
		fmt.Printf("PID: %d\n", pid)
		fmt.Printf("Uptime: %s\n", formatDuration(uptime))
	} else {
		fmt.Printf("Status: running\n")
		fmt.Printf("PID: %d\n", pid)
	}

	return nil
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
