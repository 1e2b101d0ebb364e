package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"laptopmcp/internal/protocol"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the server name and version",
	RunE: func(cmd *cobra.Command, _ []string) error {
		out := cmd.OutOrStdout()
		if globalFlags.JSON {
			return json.NewEncoder(out).Encode(map[string]string{
				"name":    protocol.ServerName,
				"version": protocol.ServerVersion,
			})
		}
		fmt.Fprintf(out, "%s %s\n", protocol.ServerName, protocol.ServerVersion)
		return nil
	},
}
