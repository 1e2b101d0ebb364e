package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"laptopmcp/internal/protocol"
)

var (
	searchServerURL string
	searchKeyword   string
	searchMinPrice  float64
	searchMaxPrice  float64
	searchSimilar   string
	searchLaptopID  uint64
	searchProductID string
	searchLimit     int
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Run a one-shot query against a running server",
	Long: `Run one query and print the matching laptops.

Pick exactly one mode:
  --keyword        substring search over brand, model, title, description
  --min/--max      price range (both required, bounds inclusive)
  --similar        free-text similarity search
  --laptop-id      similarity to an existing laptop (reference excluded)
  --product-id     exact lookup by marketplace product id`,
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().StringVar(&searchServerURL, "server", "http://127.0.0.1:8080", "base URL of the running server")
	searchCmd.Flags().StringVar(&searchKeyword, "keyword", "", "keyword to search for")
	searchCmd.Flags().Float64Var(&searchMinPrice, "min", 0, "minimum price")
	searchCmd.Flags().Float64Var(&searchMaxPrice, "max", 0, "maximum price")
	searchCmd.Flags().StringVar(&searchSimilar, "similar", "", "description for similarity search")
	searchCmd.Flags().Uint64Var(&searchLaptopID, "laptop-id", 0, "reference laptop id for similarity search")
	searchCmd.Flags().StringVar(&searchProductID, "product-id", "", "marketplace product id")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 0, "maximum similar results")
}

func runSearch(cmd *cobra.Command, _ []string) error {
	tool, arguments, err := buildSearchCall(cmd)
	if err != nil {
		exitWith(ExitGenericError, "ERROR: "+err.Error())
	}

	client := newToolClient(searchServerURL)
	result, err := client.callTool(cmd.Context(), tool, arguments)
	if err != nil {
		exitWith(ExitGenericError, "ERROR: "+err.Error())
	}
	return printToolResult(cmd, result)
}

func buildSearchCall(cmd *cobra.Command) (string, map[string]interface{}, error) {
	switch {
	case searchProductID != "":
		return protocol.ToolNameGetByID, map[string]interface{}{"productId": searchProductID}, nil
	case searchSimilar != "":
		args := map[string]interface{}{"description": searchSimilar}
		if searchLimit > 0 {
			args["limit"] = searchLimit
		}
		return protocol.ToolNameFindSimilar, args, nil
	case searchLaptopID != 0:
		args := map[string]interface{}{"laptopId": searchLaptopID}
		if searchLimit > 0 {
			args["limit"] = searchLimit
		}
		return protocol.ToolNameFindSimilar, args, nil
	case searchKeyword != "":
		return protocol.ToolNameSearch, map[string]interface{}{"keyword": searchKeyword}, nil
	case cmd.Flags().Changed("min") || cmd.Flags().Changed("max"):
		if !cmd.Flags().Changed("min") || !cmd.Flags().Changed("max") {
			return "", nil, fmt.Errorf("price search needs both --min and --max")
		}
		return protocol.ToolNameSearch, map[string]interface{}{"minPrice": searchMinPrice, "maxPrice": searchMaxPrice}, nil
	default:
		return "", nil, fmt.Errorf("pick one of --keyword, --min/--max, --similar, --laptop-id or --product-id")
	}
}

func printToolResult(cmd *cobra.Command, result json.RawMessage) error {
	out := cmd.OutOrStdout()
	if globalFlags.JSON {
		fmt.Fprintln(out, string(result))
		return nil
	}

	var parsed struct {
		IsError           bool `json:"isError"`
		Content           []struct {
			Text string `json:"text"`
		} `json:"content"`
		StructuredContent struct {
			Count   int `json:"count"`
			Laptops []struct {
				ID         uint64  `json:"id"`
				ProductID  string  `json:"productId"`
				Brand      string  `json:"brand"`
				Model      string  `json:"model"`
				Title      string  `json:"title"`
				Price      float64 `json:"price"`
				ProductURL string  `json:"productUrl"`
			} `json:"laptops"`
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
		return nil
	}

	if len(parsed.StructuredContent.Laptops) == 0 && parsed.StructuredContent.Count == 0 {
		// single-laptop payloads and refresh results print as raw text
		for _, item := range parsed.Content {
			fmt.Fprintln(out, item.Text)
		}
		return nil
	}

	fmt.Fprintln(out, st.Header.Render(fmt.Sprintf("%d laptops", parsed.StructuredContent.Count)))
	for _, l := range parsed.StructuredContent.Laptops {
		fmt.Fprintf(out, "  %s %s %s %s\n",
			st.Dim.Render(fmt.Sprintf("#%d", l.ID)),
			st.Bold.Render(l.Brand+" "+l.Model),
			st.Value.Render(fmt.Sprintf("¥%.0f", l.Price)),
			st.URL.Render(l.ProductURL))
	}
	return nil
}
