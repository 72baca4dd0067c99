package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rokaszak/Advanced-Woo-Checkout-Fields/internal/auth"
	"github.com/rokaszak/Advanced-Woo-Checkout-Fields/internal/config"
	"github.com/rokaszak/Advanced-Woo-Checkout-Fields/internal/db"
	"github.com/rokaszak/Advanced-Woo-Checkout-Fields/internal/logging"
	"github.com/rokaszak/Advanced-Woo-Checkout-Fields/internal/server"
	"github.com/rokaszak/Advanced-Woo-Checkout-Fields/internal/settings"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// cliSource tags settings revisions written from the command line
const cliSource = "cli"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logrus.Fatal(err)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "awcf",
		Short: "awcf - checkout field configuration service",
		Long: `awcf serves the checkout field layout, company/VAT validation and
order company metadata for an online store, and stores the checkout
settings record edited from the admin screen.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServer,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "", "Configuration file path")
	flags.StringP("data-dir", "d", "./data", "Data directory path")
	flags.StringP("listen", "l", ":8090", "Listen address")
	flags.String("log-level", "info", "Log level (trace, debug, info, warn, error)")
	flags.String("log-format", "json", "Log format (json, text)")
	flags.String("tls-cert", "", "TLS certificate file")
	flags.String("tls-key", "", "TLS key file")
	flags.String("order-store", "badger", "Order metadata engine (badger, pebble)")

	rootCmd.AddCommand(
		newServeCmd(),
		newTokenCmd(),
		newSettingsCmd(),
		newHashPasswordCmd(),
	)

	return rootCmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE:  runServer,
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cmd)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := setupLogging(cfg)

	logger.WithFields(logrus.Fields{
		"version": version,
		"commit":  commit,
		"date":    date,
	}).Info("Starting awcf")

	srv, err := server.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info("awcf stopped")
	return nil
}

func setupLogging(cfg *config.Config) *logrus.Logger {
	return logging.Setup(logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	})
}

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an admin bearer token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cmd)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			logger := setupLogging(cfg)

			subject, _ := cmd.Flags().GetString("subject")
			ttl, _ := cmd.Flags().GetDuration("ttl")

			manager := auth.NewManager(cfg.Auth, logger)
			defer manager.Close()

			token, err := manager.Issue(subject, ttl)
			if err != nil {
				return fmt.Errorf("failed to issue token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().String("subject", "admin", "Token subject, recorded on settings revisions")
	cmd.Flags().Duration("ttl", 0, "Token lifetime (defaults to auth.token_ttl)")
	return cmd
}

func newSettingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Inspect or reset the checkout settings record",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the current settings record as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSettings(cmd, func(ctx context.Context, m *settings.Manager) error {
				current, err := m.Load(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), current)
			})
		},
	}

	reset := &cobra.Command{
		Use:   "reset",
		Short: "Overwrite the settings record with the defaults",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSettings(cmd, func(ctx context.Context, m *settings.Manager) error {
				if _, err := m.Reset(settings.WithSource(ctx, cliSource)); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Checkout settings reset to defaults")
				return nil
			})
		},
	}

	history := &cobra.Command{
		Use:   "history",
		Short: "List saved settings revisions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			return withSettings(cmd, func(ctx context.Context, m *settings.Manager) error {
				revisions, err := m.History(ctx, limit)
				if err != nil {
					return err
				}
				return printHistory(cmd.OutOrStdout(), revisions)
			})
		},
	}
	history.Flags().Int("limit", 10, "Maximum number of revisions (0 lists all)")

	cmd.AddCommand(show, reset, history)
	return cmd
}

// withSettings opens the settings database for one command
func withSettings(cmd *cobra.Command, fn func(ctx context.Context, m *settings.Manager) error) error {
	cfg, err := config.Load(cmd)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger := setupLogging(cfg)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	conn, err := db.Open(ctx, cfg.DataDir)
	if err != nil {
		return err
	}
	defer conn.Close()

	manager, err := settings.NewManager(conn, logger)
	if err != nil {
		return fmt.Errorf("failed to open settings: %w", err)
	}
	return fn(ctx, manager)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printHistory(w io.Writer, revisions []settings.Revision) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSAVED\tSOURCE\tVAT MODE\tFIELDS")
	for _, rev := range revisions {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%t\t%d\n",
			rev.ID,
			rev.SavedAt.Format(time.RFC3339),
			rev.Source,
			rev.Settings.VATModeEnabled,
			len(rev.Settings.Fields),
		)
	}
	return tw.Flush()
}

func newHashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Print a bcrypt hash for auth.admin_password_hash",
		Long: `Prints a bcrypt hash of the given password. Without an argument the
password is read from the first line of standard input.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var password string
			if len(args) == 1 {
				password = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && !errors.Is(err, io.EOF) {
					return fmt.Errorf("failed to read password: %w", err)
				}
				password = strings.TrimRight(line, "\r\n")
			}
			if password == "" {
				return fmt.Errorf("password must not be empty")
			}

			hash, err := auth.HashPassword(password)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}
