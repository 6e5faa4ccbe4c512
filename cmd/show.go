package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/dhcgn/chatlog-reconstruct/attachment"
	"github.com/dhcgn/chatlog-reconstruct/model"
	"github.com/dhcgn/chatlog-reconstruct/parser"
)

const defaultPreview = 20

func newShowCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "show [messages file]",
		Short: "Print the conversation timeline of a message log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			records := parser.ParseFile(args[0], slog.Default())
			pterm.DefaultSection.Printf("Conversation timeline: %s\n", args[0])
			WriteTimeline(os.Stdout, records, limit)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", defaultPreview, "Number of messages to show (0 shows all)")
	return cmd
}

// WriteTimeline prints the first limit records in a readable form. A limit of
// zero or less prints every record.
func WriteTimeline(w io.Writer, records []model.Record, limit int) {
	if limit <= 0 || limit > len(records) {
		limit = len(records)
	}

	for _, record := range records[:limit] {
		ts, ok := record.Timestamp()
		if !ok {
			ts = "Unknown time"
		}
		id := record.DisplayID()
		if id == "" {
			id = "Unknown ID"
		}

		fmt.Fprintf(w, "\n[%s] ID: %s\n", ts, id)
		if contents := record.Contents(); contents != "" {
			fmt.Fprintf(w, "  Message: %s\n", contents)
		}
		if described := attachment.Describe(record.Attachments()); described != "" {
			fmt.Fprintf(w, "  Attachments: %s\n", described)
		}
	}

	if rest := len(records) - limit; rest > 0 {
		fmt.Fprintf(w, "\n... and %d more messages\n", rest)
	}
}
