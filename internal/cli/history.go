package cli

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vaultpilot/vaultpilot/internal/config"
	"github.com/vaultpilot/vaultpilot/pkg/history"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent agent turns",
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 10, "number of turns to show")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	archive, err := history.Open(cfg.History.Path, zerolog.Nop())
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer archive.Close()

	records, err := archive.Recent(cmd.Context(), historyLimit)
	if err != nil {
		return fmt.Errorf("read history: %w", err)
	}

	if len(records) == 0 {
		cmd.Println("No turns recorded yet.")
		return nil
	}

	for _, rec := range records {
		status := "completed"
		if rec.Cancelled {
			status = "cancelled"
		}
		cmd.Printf("%s  [%s]  %s\n", rec.CreatedAt.Local().Format("2006-01-02 15:04"), status, firstLine(rec.Prompt))
		cmd.Printf("    %d tool calls, %d in / %d out tokens\n", len(rec.ToolCalls), rec.InputTokens, rec.OutputTokens)
	}
	return nil
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i] + " ..."
		}
		if i > 76 {
			return s[:i] + "..."
		}
	}
	return s
}
