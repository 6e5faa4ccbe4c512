package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/dhcgn/chatlog-reconstruct/reconcile"
)

func newCombineCmd() *cobra.Command {
	var (
		first   string
		second  string
		output  string
		preview int
	)

	cmd := &cobra.Command{
		Use:   "combine",
		Short: "Merge two message logs into one chronological log without downloading",
		RunE: func(cmd *cobra.Command, args []string) error {
			if first == "" || second == "" {
				return fmt.Errorf("both --input-file-1 and --input-file-2 are required")
			}

			records, summary := reconcile.Combine(first, second, output, slog.Default())

			pterm.DefaultSection.Println("Combined message logs")
			pterm.Info.Printf("%s: %d messages\n", first, summary.First)
			pterm.Info.Printf("%s: %d messages\n", second, summary.Second)
			pterm.Info.Printf("Unique messages: %d\n", summary.Combined)
			if summary.Saved {
				pterm.Success.Printf("Saved to %s\n", output)
			}

			if preview > 0 {
				WriteTimeline(os.Stdout, records, preview)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&first, "input-file-1", "1", "", "Path to the first message log")
	cmd.Flags().StringVarP(&second, "input-file-2", "2", "", "Path to the second message log")
	cmd.Flags().StringVarP(&output, "output", "o", "messages.json", "Path of the combined message log (empty to skip saving)")
	cmd.Flags().IntVarP(&preview, "preview", "n", 0, "Print the first N messages of the combined conversation")
	return cmd
}
