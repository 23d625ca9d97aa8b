package commands

import (
	"time"

	"github.com/evan-idocoding/lifekit/internal/app"
	"github.com/evan-idocoding/lifekit/internal/config"
	"github.com/evan-idocoding/lifekit/internal/logger"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the demo until interrupted",
		Long: `Run mounts the product page and toggles its price component every --toggle-every.
While mounted, the price component logs a tick every --tick-period.

Examples:
  # Toggle every 3.5s, stop after 10s
  lifekit-demo run --duration 10s

  # Expose /metrics, /scopes and /healthz
  lifekit-demo run --metrics --metrics-addr 127.0.0.1:9090`,
		Args: cobra.NoArgs,
		RunE: runDemo,
	}
	fs := cmd.Flags()
	fs.String("log-level", "info", "log level (debug, info, warn, error)")
	fs.String("log-format", "console", "log format (console, json)")
	fs.Duration("tick-period", time.Second, "price ticker period")
	fs.Duration("toggle-every", 3500*time.Millisecond, "toggle the price component (0 disables)")
	fs.Duration("increase-every", 0, "increase the price (0 disables)")
	fs.Duration("duration", 0, "stop after this long (0 runs until interrupted)")
	fs.Bool("metrics", false, "serve ops endpoints")
	fs.String("metrics-addr", "127.0.0.1:9090", "ops listen address")
	return cmd
}

func runDemo(cmd *cobra.Command, _ []string) error {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path, cmd.Flags())
	if err != nil {
		return err
	}
	log, err := logger.NewWithWriter(cfg.Logging, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	return app.New(cfg, log).Run(cmd.Context())
}
