package cli

import (
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the guessing game HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Serve(cmd.Context())
	},
}
