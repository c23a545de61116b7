package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mcfleet/mcfleet/internal/config"
	"github.com/mcfleet/mcfleet/internal/daemon"
	"github.com/mcfleet/mcfleet/internal/logging"
	"github.com/mcfleet/mcfleet/internal/repo"
	"github.com/mcfleet/mcfleet/internal/sdnotify"
	"github.com/spf13/cobra"
)

var (
	daemonForeground bool
	daemonConfigPath string
	daemonLogRoot    string
)

var daemonCmd = &cobra.Command{
	Use:    "daemon",
	Short:  "Run the mcfleet daemon (internal)",
	Hidden: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		syscall.Umask(0077)
		signal.Ignore(syscall.SIGPIPE)

		cfg, err := config.LoadDaemonConfig(daemonConfigPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		if err := config.EnsureDir(daemonLogRoot, 0700); err != nil {
			fmt.Fprintf(os.Stderr, "mcfleet: cannot create log directory: %v\n", err)
		}

		logger, logCleanup, logErr := logging.Setup(daemonLogRoot, slog.LevelInfo, daemonForeground)
		if logErr != nil {
			fmt.Fprintf(os.Stderr, "mcfleet: cannot set up file logging: %v\n", logErr)
			logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
				Level: slog.LevelInfo,
			}))
			logCleanup = func() {}
		}
		defer logCleanup()

		d := daemon.New(cfg, repo.NewPaperRepository(), daemonLogRoot, version, logger)

		ctx, cancel := context.WithCancel(context.Background())
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		go func() {
			<-sigCh
			logger.Info("received shutdown signal")
			sdnotify.Stopping(logger)
			d.Dispatcher().RequestStop()
			cancel()
		}()

		return d.Run(ctx)
	},
}

func init() {
	daemonCmd.Flags().BoolVar(&daemonForeground, "foreground", false, "Run in foreground, also logging to stderr")
	daemonCmd.Flags().StringVar(&daemonConfigPath, "config", config.DefaultConfigFile, "Path to the daemon config file")
	daemonCmd.Flags().StringVar(&daemonLogRoot, "log-dir", "log", "Directory for daemon and unit logs")
	rootCmd.AddCommand(daemonCmd)
}
