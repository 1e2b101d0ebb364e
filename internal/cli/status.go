package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var statusServerURL string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Probe a running server's health endpoint",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusServerURL, "server", "http://127.0.0.1:8080", "base URL of the running server")
}

func runStatus(cmd *cobra.Command, _ []string) error {
	client := newToolClient(statusServerURL)
	report, err := client.health(cmd.Context())
	if err != nil {
		exitWith(ExitGenericError, "ERROR: "+err.Error())
	}

	out := cmd.OutOrStdout()
	if globalFlags.JSON {
		return json.NewEncoder(out).Encode(report)
	}

	st := newStyles(out, globalFlags.JSON)
	state := st.Green.Render("connected")
	if !report.Connected {
		state = st.Red.Render("disconnected")
	}
	fmt.Fprintln(out, st.Header.Render(report.Server), st.Dim.Render("v"+report.Version))
	fmt.Fprintln(out, st.Key.Render("  status: "), st.Value.Render(report.Status))
	fmt.Fprintln(out, st.Key.Render("  store:  "), state)
	return nil
}
