package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"laptopmcp/internal/app"
	"laptopmcp/internal/config"
)

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Start the laptop search server",
	RunE:  runUp,
}

var (
	upListen    string
	upTCPListen string
	upMCPPath   string
	upStore     string
	upFeedURL   string
)

func init() {
	upCmd.Flags().StringVar(&upListen, "listen", "", "host:port for the HTTP transport")
	upCmd.Flags().StringVar(&upTCPListen, "tcp-listen", "", "host:port for the TCP transport (empty string in config disables it)")
	upCmd.Flags().StringVar(&upMCPPath, "mcp-path", "", "HTTP path for the tool endpoint")
	upCmd.Flags().StringVar(&upStore, "store", "", "metadata store backend: sqlite|redis")
	upCmd.Flags().StringVar(&upFeedURL, "feed-url", "", "listing feed URL for refresh_laptop_data")
}

func runUp(cmd *cobra.Command, _ []string) error {
	configureLogging()

	rootDir, err := filepath.Abs(globalFlags.Dir)
	if err != nil {
		exitWith(ExitGenericError, "ERROR: working directory inaccessible: "+err.Error())
	}

	overrides := &config.Overrides{}
	if cmd.Flags().Changed("listen") {
		overrides.Listen = &upListen
	}
	if cmd.Flags().Changed("tcp-listen") {
		overrides.TCPListen = &upTCPListen
	}
	if cmd.Flags().Changed("mcp-path") {
		overrides.MCPPath = &upMCPPath
	}
	if cmd.Flags().Changed("store") {
		overrides.StoreBackend = &upStore
	}
	if cmd.Flags().Changed("feed-url") {
		overrides.FeedURL = &upFeedURL
	}

	cfg, err := config.Load(config.Options{
		ConfigPath: globalFlags.ConfigPath,
		RootDir:    rootDir,
		Overrides:  overrides,
	})
	if err != nil {
		exitWith(ExitConfigInvalid, "ERROR: "+err.Error())
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg)
	if err != nil {
		exitWith(ExitGenericError, "ERROR: "+err.Error())
	}
	defer func() { _ = application.Close() }()

	if !globalFlags.Quiet && !globalFlags.JSON {
		st := newStyles(cmd.OutOrStdout(), globalFlags.JSON)
		fmt.Fprintln(cmd.OutOrStdout(), st.Header.Render("laptop search server"))
		fmt.Fprintln(cmd.OutOrStdout(), st.Key.Render("  endpoint: "), st.URL.Render("http://"+cfg.Server.Listen+cfg.Server.MCPPath))
		if cfg.Server.TCPListen != "" {
			fmt.Fprintln(cmd.OutOrStdout(), st.Key.Render("  tcp:      "), st.Value.Render(cfg.Server.TCPListen))
		}
		fmt.Fprintln(cmd.OutOrStdout(), st.Key.Render("  store:    "), st.Value.Render(cfg.Store.Backend))
	}

	if err := application.Run(ctx); err != nil {
		var opErr *net.OpError
		if errors.As(err, &opErr) && opErr.Op == "listen" {
			exitWith(ExitBindFailure, "ERROR: server bind failure: "+err.Error())
		}
		exitWith(ExitGenericError, "ERROR: "+err.Error())
	}
	return nil
}

// configureLogging sets the process-wide logger: JSON records under --json,
// warnings only under --quiet.
func configureLogging() {
	level := slog.LevelInfo
	if globalFlags.Quiet {
		level = slog.LevelWarn
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if globalFlags.JSON {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}
