package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"
	_ "time/tzdata"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/internal/logging"
	"github.com/hackgods/clinic-scheduling/internal/scheduling"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "clinicctl",
		Short:        "Clinic scheduling administration",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(slotsCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func connect(ctx context.Context) (config.Config, *pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, err
	}
	pgCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	pool, err := db.ConnectPostgresWith(pgCtx, cfg.PostgresDSN, db.PoolOptions{MaxConns: 4, MinConns: 1})
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, pool, nil
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, pool, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := db.Migrate(cmd.Context(), pool); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Println("Schema applied successfully.")
			return nil
		},
	}
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load the reference clinics and doctors, plus generated doctors",
		RunE: func(cmd *cobra.Command, args []string) error {
			reset, _ := cmd.Flags().GetBool("reset")
			fake, _ := cmd.Flags().GetInt("fake-doctors")

			cfg, pool, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()

			logger := logging.New(cfg.Env, "clinicctl")
			seeder := &Seeder{pool: pool, log: logger}
			if reset {
				if err := seeder.Reset(cmd.Context()); err != nil {
					return fmt.Errorf("reset: %w", err)
				}
			}
			if err := seeder.SeedReference(cmd.Context()); err != nil {
				return fmt.Errorf("seed reference data: %w", err)
			}
			if fake > 0 {
				if err := seeder.SeedFakeDoctors(cmd.Context(), fake); err != nil {
					return fmt.Errorf("seed generated doctors: %w", err)
				}
			}
			logger.Info().Msg("seed complete")
			return nil
		},
	}
	cmd.Flags().Bool("reset", false, "Delete clinics, doctors, availability and appointments first")
	cmd.Flags().Int("fake-doctors", 0, "Number of generated doctors to add")
	return cmd
}

func slotsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "slots",
		Short: "Print free slots for a doctor, clinic or search query",
		RunE: func(cmd *cobra.Command, args []string) error {
			doctor, _ := cmd.Flags().GetString("doctor")
			clinic, _ := cmd.Flags().GetString("clinic")
			query, _ := cmd.Flags().GetString("q")
			days, _ := cmd.Flags().GetInt("days")

			cfg, pool, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()

			tz, err := scheduling.NewNormalizer(cfg.Timezone)
			if err != nil {
				return err
			}
			svc := scheduling.NewService(scheduling.NewPgStore(pool), nil, tz, cfg, logging.New(cfg.Env, "clinicctl"))

			rows, err := svc.ListAvailableSlots(cmd.Context(), scheduling.Selector{Doctor: doctor, Clinic: clinic, Query: query}, days)
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				fmt.Println("No free slots in the requested horizon.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "DATE\tDAY\tDOCTOR\tCLINIC\tTIMES")
			for _, r := range rows {
				times := make([]string, 0, len(r.Times))
				for _, t := range r.Times {
					times = append(times, t.Format("15:04"))
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					r.Date.Format("2006-01-02"), r.Weekday, r.Doctor.Name, r.Doctor.ClinicName, strings.Join(times, " "))
			}
			return w.Flush()
		},
	}
	cmd.Flags().String("doctor", "", "Doctor id or name")
	cmd.Flags().String("clinic", "", "Clinic id or name")
	cmd.Flags().String("q", "", "Search words across doctor name, specialty and clinic")
	cmd.Flags().Int("days", 0, "Horizon in days (default from SLOT_HORIZON_DAYS)")
	return cmd
}
