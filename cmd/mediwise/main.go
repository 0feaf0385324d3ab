package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Anup697028/mediwise-chat/internal/config"
	"github.com/Anup697028/mediwise-chat/internal/domain/scheduling"
	"github.com/Anup697028/mediwise-chat/internal/platform/localdb"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "mediwise",
		Short:        "MediWise telehealth API server",
		SilenceUsage: true,
	}
	root.AddCommand(serveCmd())
	root.AddCommand(initCmd())
	root.AddCommand(doctorsCmd())
	root.AddCommand(slotsCmd())
	root.AddCommand(remindersCmd())
	return root
}

// loadConfig loads and validates configuration. CLI commands other than serve
// never simulate latency.
func loadConfig(interactive bool) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if !interactive {
		cfg.SimulatedLatency = false
	}
	return cfg, nil
}

// withApp builds the app for a one-shot command and closes it afterwards.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	cfg, err := loadConfig(false)
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Env).Level(zerolog.WarnLevel)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server and the appointment reminder worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func runServer() error {
	cfg, err := loadConfig(true)
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Env)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to start")
		return err
	}
	defer a.Close()

	worker := scheduling.NewReminderWorker(a.scheduling, cfg.ReminderInterval, logger)
	if err := worker.Start(ctx); err != nil {
		return err
	}
	defer worker.Stop()

	e := a.newServer()

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("backend", cfg.StoreBackend).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize the configured store and list its collections",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				infos, err := a.db.Describe(ctx)
				if err != nil {
					return err
				}
				printCollections(cmd, infos)
				return nil
			})
		},
	}
}

func printCollections(cmd *cobra.Command, infos []localdb.CollectionInfo) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "COLLECTION\tKEY\tRECORDS")
	for _, info := range infos {
		records := fmt.Sprint(info.Records)
		if !info.Present {
			records = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", info.Collection, info.Key, records)
	}
	w.Flush()
}

func doctorsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctors",
		Short: "List doctors",
		RunE: func(cmd *cobra.Command, args []string) error {
			specialty, _ := cmd.Flags().GetString("specialty")
			return withApp(cmd, func(ctx context.Context, a *app) error {
				docs, err := a.scheduling.GetDoctors(ctx, specialty)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tNAME\tSPECIALTY\tFEE\tRATING")
				for _, d := range docs {
					fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%.1f\n", d.ID, d.Name, d.Specialty, d.ConsultationFee, d.Rating)
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().String("specialty", "", "Only list doctors with this exact specialty")
	return cmd
}

func slotsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "slots",
		Short: "Print a doctor's bookable start times on a date",
		RunE: func(cmd *cobra.Command, args []string) error {
			doctorID, _ := cmd.Flags().GetString("doctor")
			date, _ := cmd.Flags().GetString("date")
			return withApp(cmd, func(ctx context.Context, a *app) error {
				slots, err := a.scheduling.AvailableTimes(ctx, doctorID, date)
				if err != nil {
					return err
				}
				if len(slots) == 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "%s has no availability on %s\n", doctorID, date)
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), strings.Join(slots, " "))
				return nil
			})
		},
	}
	cmd.Flags().String("doctor", "", "Doctor id")
	cmd.Flags().String("date", "", "Date as YYYY-MM-DD")
	cmd.MarkFlagRequired("doctor")
	cmd.MarkFlagRequired("date")
	return cmd
}

func remindersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reminders",
		Short: "Run one appointment reminder sweep",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				n, err := a.scheduling.ReminderSweep(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "sent %d reminder(s)\n", n)
				return nil
			})
		},
	}
}
