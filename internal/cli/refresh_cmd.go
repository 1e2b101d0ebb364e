package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"laptopmcp/internal/protocol"
)

var refreshServerURL string

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Reload listing data on a running server",
	RunE:  runRefresh,
}

func init() {
	refreshCmd.Flags().StringVar(&refreshServerURL, "server", "http://127.0.0.1:8080", "base URL of the running server")
}

func runRefresh(cmd *cobra.Command, _ []string) error {
	client := newToolClient(refreshServerURL)
	result, err := client.callTool(cmd.Context(), protocol.ToolNameRefresh, map[string]interface{}{})
	if err != nil {
		exitWith(ExitGenericError, "ERROR: "+err.Error())
	}

	out := cmd.OutOrStdout()
	if globalFlags.JSON {
		fmt.Fprintln(out, string(result))
		return nil
	}

	var parsed struct {
		IsError bool `json:"isError"`
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
		StructuredContent struct {
			Count  int    `json:"count"`
			Status string `json:"status"`
		} `json:"structuredContent"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}

	st := newStyles(out, globalFlags.JSON)
	if parsed.IsError {
		for _, item := range parsed.Content {
			fmt.Fprintln(out, st.Error.Render(item.Text))
		}
		exitWith(ExitGenericError, "ERROR: refresh failed")
	}

	fmt.Fprintln(out, st.Green.Render("refreshed"), st.Value.Render(fmt.Sprintf("%d laptops", parsed.StructuredContent.Count)))
	return nil
}
