package cmd

import (
	"github.com/spf13/cobra"
)

// AddCommands registers the subcommands on root.
func AddCommands(root *cobra.Command) {
	root.AddCommand(
		newCombineCmd(),
		newAttachmentsCmd(),
		newShowCmd(),
	)
}
