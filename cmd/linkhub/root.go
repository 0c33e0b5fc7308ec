package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"LinkHub/global/config"
	"LinkHub/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configPath string
	logLevel   string
	version    = "dev"
)

var rootCmd = &cobra.Command{
	Use:   "linkhub",
	Short: "Session affinity gateway and chat session workers",
	Long: `linkhub multiplexes linked chat account sessions behind one entry point.

  linkhub gateway    # pin sessions to workers and proxy their traffic
  linkhub worker     # run sessions, sync history, stream live events
  linkhub migrate    # apply the postgres schema
  linkhub events     # tail events mirrored to kafka`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file (env LINKHUB_* overrides it)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug|info|warn|error, overrides log.level")
	rootCmd.AddCommand(gatewayCmd, workerCmd, migrateCmd, eventsCmd)
}

// loadConfig reads the config and applies the log settings of it.
func loadConfig() (*config.AppConfig, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	logger.SetLevel(cfg.Log.Level)
	logger.SetOutputFile(cfg.Log.File, cfg.Log.MaxSizeMB, cfg.Log.MaxBackups)
	return cfg, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// serve runs srv until ctx ends, then shuts it down gracefully.
func serve(ctx context.Context, name string, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("["+name+"] listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("[" + name + "] shutting down")
	shutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	// 注意：Shutdown 不会等待已劫持的 websocket 连接
	if err := srv.Shutdown(shutCtx); err != nil {
		logger.Warn("["+name+"] shutdown", zap.Error(err))
	}
	return nil
}
