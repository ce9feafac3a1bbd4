package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"finsight/internal/config"
	"finsight/internal/logger"
	"finsight/internal/observability"
	"finsight/pkg/service"
	"finsight/pkg/team"
	"finsight/pkg/trace"

	"github.com/spf13/cobra"
)

const defaultQuery = "Summarize analyst recommendations and share the latest news for NVDA"

var (
	askOutput  string
	askTrace   bool
	askTimeout time.Duration
)

var askCmd = &cobra.Command{
	Use:   "ask [query]",
	Short: "Ask the research team a question",
	Long: `Ask dispatches a query to the agent team and prints the merged
answer as markdown. With no query, a sample market question is used.`,
	Args: cobra.ArbitraryArgs,
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVarP(&askOutput, "output", "o", "", "write the answer to a markdown file")
	askCmd.Flags().BoolVar(&askTrace, "trace", false, "print agent trace events while running")
	askCmd.Flags().DurationVar(&askTimeout, "timeout", 2*time.Minute, "overall run timeout")
	rootCmd.AddCommand(askCmd)
}

// tracePrinter streams events to the terminal as they happen.
type tracePrinter struct{}

func (tracePrinter) Record(event trace.Event) {
	marker := ""
	if event.Failed {
		marker = " (failed)"
	}
	fmt.Fprintf(os.Stderr, "[%s] %s%s: %s\n", event.Agent, event.Kind, marker, event.Payload)
}

func runAsk(cmd *cobra.Command, args []string) error {
	query := strings.TrimSpace(strings.Join(args, " "))
	if query == "" {
		query = defaultQuery
		fmt.Fprintf(os.Stderr, "No query given, using: %q\n\n", query)
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	// Prompt for a key rather than fail when none is configured
	if len(cfg.Providers) == 0 {
		wizard := config.NewWizard()
		if err := wizard.PromptCredentials(cfg); err != nil {
			return err
		}
	}

	log, err := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		Console:   true,
		Redaction: cfg.Logging.Redaction,
	})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Close()

	observability.EnsureRegistered()

	var sink trace.Sink
	if askTrace {
		sink = tracePrinter{}
	}

	svc, err := service.FromConfig(cfg, sink, log.GetZerolog())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), askTimeout)
	defer cancel()

	handle, err := svc.Submit(ctx, query)
	if err != nil {
		if errors.Is(err, service.ErrConfig) {
			return fmt.Errorf("cannot run query: %w", err)
		}
		return err
	}

	response, err := svc.Wait(ctx, handle)
	if err != nil {
		if errors.Is(err, team.ErrAllAgentsFailed) {
			return fmt.Errorf("no agent could answer: %w", err)
		}
		return err
	}

	markdown := response.Markdown()
	fmt.Println(markdown)

	if askOutput != "" {
		if err := exportMarkdown(askOutput, query, markdown); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "\nSaved to %s\n", askOutput)
	}

	return nil
}

// exportMarkdown writes the answer to a file, prefixed with the query
// as a title.
func exportMarkdown(path, query, markdown string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	content := fmt.Sprintf("# %s\n\n%s\n", query, markdown)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	return nil
}
