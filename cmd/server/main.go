package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vaughanknight/trex-sub003/internal/infrastructure/config"
	"github.com/vaughanknight/trex-sub003/internal/infrastructure/server"
	"github.com/vaughanknight/trex-sub003/internal/tmux"
)

type flags struct {
	configPath string
	host       string
	port       string
	shell      string
	dev        bool
	noTmux     bool
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var f flags

	cmd := &cobra.Command{
		Use:          "trex",
		Short:        "Multi-session web terminal backend",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), &f)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&f.configPath, "config", "", "path to a YAML config file (default: $TREX_CONFIG)")
	pf.StringVar(&f.host, "host", "", "listen host (overrides config)")
	pf.StringVar(&f.port, "port", "", "listen port (overrides config)")
	pf.StringVar(&f.shell, "shell", "", "shell for new sessions (default: $SHELL)")
	pf.BoolVar(&f.dev, "dev", false, "development mode: console logs at debug level")
	pf.BoolVar(&f.noTmux, "no-tmux", false, "disable tmux discovery and attachment")

	cmd.AddCommand(serveCmd(&f), tmuxSessionsCmd(&f), versionCmd())
	return cmd
}

func serveCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the server (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), f)
		},
	}
}

func tmuxSessionsCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "tmux-sessions",
		Short: "List the sessions of the local tmux server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(f.configPath)
			if err != nil {
				return err
			}
			client := tmux.NewClient(tmux.Config{
				Binary:         cfg.Tmux.Binary,
				Socket:         cfg.Tmux.Socket,
				CommandTimeout: cfg.Tmux.CommandTimeout,
				EnvPrefix:      cfg.Tmux.EnvPrefix,
			})
			if !client.Available() {
				return fmt.Errorf("%w: %s not found", tmux.ErrUnavailable, cfg.Tmux.Binary)
			}

			sessions, err := client.ListSessions(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tWINDOWS\tATTACHED")
			for _, s := range sessions {
				fmt.Fprintf(w, "%s\t%d\t%d\n", s.Name, s.Windows, s.Attached)
			}
			return w.Flush()
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), server.Version)
		},
	}
}

func runServe(ctx context.Context, f *flags) error {
	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}

	srv, err := server.NewServer(cfg)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return srv.Run(ctx)
}

// loadConfig applies flag overrides on top of file and environment config
func loadConfig(f *flags) (*config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}
	if f.host != "" {
		cfg.Server.Host = f.host
	}
	if f.port != "" {
		cfg.Server.Port = f.port
	}
	if f.shell != "" {
		cfg.Terminal.Shell = f.shell
	}
	if f.dev {
		cfg.Logging.Development = true
		cfg.Logging.Level = "debug"
	}
	if f.noTmux {
		cfg.Tmux.Enabled = false
	}
	return cfg, cfg.Validate()
}
