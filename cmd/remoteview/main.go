package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/brporter/remoteview/internal/cli"
	"github.com/brporter/remoteview/internal/config"
)

func main() {
	var configPath string
	var verbose bool

	newLogger := func() *slog.Logger {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	}

	rootCmd := &cobra.Command{
		Use:          "remoteview",
		Short:        "View and control a remote device",
		Long:         "remoteview streams a remote device's screen into a local browser page and forwards touches and typed text back to it.",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", fmt.Sprintf("Config file (default: %s/config.yaml)", config.Dir()))
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	var endpoint, listen string
	var open, noStdin bool
	viewCmd := &cobra.Command{
		Use:   "view",
		Short: "Start a session and serve the local viewer",
		Example: `  # Connect to a known endpoint
  remoteview view --endpoint ws://localhost:8090/stream

  # Provision a device from the farm (after remoteview login)
  REMOTEVIEW_FARM_URL=https://farm.example REMOTEVIEW_FARM_DEVICE_ARN=arn:... remoteview view --open`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if endpoint != "" {
				cfg.Endpoint = endpoint
			}
			if listen != "" {
				cfg.Viewer.Listen = listen
			}

			app := &cli.App{
				Config: cfg,
				Logger: logger,
				Out:    os.Stderr,
				Open:   open,
			}
			if !noStdin {
				app.Stdin = os.Stdin
			}
			return app.Run(context.Background())
		},
	}
	viewCmd.Flags().StringVar(&endpoint, "endpoint", "", "Session endpoint URL (skips device farm provisioning)")
	viewCmd.Flags().StringVar(&listen, "listen", "", "Viewer listen address (default: 127.0.0.1:8070)")
	viewCmd.Flags().BoolVar(&open, "open", false, "Open the viewer in a browser")
	viewCmd.Flags().BoolVar(&noStdin, "no-stdin", false, "Do not type lines read from stdin on the device")

	var noBrowser bool
	loginCmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate with the device farm's identity provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return cli.Login(context.Background(), cfg.Auth, os.Stderr, !noBrowser)
		},
	}
	loginCmd.Flags().BoolVar(&noBrowser, "no-browser", false, "Only print the verification URL")

	logoutCmd := &cobra.Command{
		Use:   "logout",
		Short: "Clear cached authentication tokens",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.ClearTokenCache(); err != nil {
				return err
			}
			fmt.Println("Logged out successfully")
			return nil
		},
	}

	rootCmd.AddCommand(viewCmd, loginCmd, logoutCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
