package client

import (
	"github.com/spf13/cobra"
)

// NewRoot constructs a root Cobra command for the log server client.
// It registers the log and health command groups.
func NewRoot(baseURL BaseURLFunc) *cobra.Command {
	root := &cobra.Command{
		Use:   "logserver",
		Short: "Log server client commands",
	}
	root.AddCommand(NewLogCommand(baseURL))
	root.AddCommand(NewHealthCommand())
	return root
}
