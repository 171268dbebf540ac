package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/arthurmenson/telecheck-healthcare-V1.4-sub011/internal/config"
	"github.com/arthurmenson/telecheck-healthcare-V1.4-sub011/internal/domain/kpi"
	"github.com/arthurmenson/telecheck-healthcare-V1.4-sub011/internal/platform/blobstore"
	"github.com/arthurmenson/telecheck-healthcare-V1.4-sub011/internal/platform/db"
	"github.com/arthurmenson/telecheck-healthcare-V1.4-sub011/migrations"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "rcm-server",
		Short: "Claims and revenue-cycle processing engine",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(kpiCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the revenue-cycle API server and KPI scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool, migrations.FS).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, migrations.FS).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	})

	return cmd
}

func kpiCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kpi",
		Short: "KPI snapshot tools",
	}

	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Export KPI snapshots to a parquet file or the object store",
		RunE: func(cmd *cobra.Command, args []string) error {
			orgFlag, _ := cmd.Flags().GetString("org")
			fromFlag, _ := cmd.Flags().GetString("from")
			toFlag, _ := cmd.Flags().GetString("to")
			out, _ := cmd.Flags().GetString("out")
			key, _ := cmd.Flags().GetString("key")

			if (out == "") == (key == "") {
				return fmt.Errorf("exactly one of --out or --key is required")
			}
			org := uuid.Nil
			if orgFlag != "" {
				parsed, err := uuid.Parse(orgFlag)
				if err != nil {
					return fmt.Errorf("--org: %w", err)
				}
				org = parsed
			}
			from, to, err := exportRange(fromFlag, toFlag, time.Now().UTC())
			if err != nil {
				return err
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			snaps, err := kpi.NewSnapshotRepoPG(pool).ListRange(ctx, org, from, to)
			if err != nil {
				return fmt.Errorf("list snapshots: %w", err)
			}

			var n int
			if key != "" {
				store, err := blobstore.NewMinioStore(ctx, minioConfig(cfg))
				if err != nil {
					return err
				}
				n, err = kpi.ExportToStore(ctx, store, key, snaps)
				if err != nil {
					return err
				}
				fmt.Printf("Exported %d snapshot(s) to %s/%s.\n", n, cfg.MinioBucket, key)
				return nil
			}

			f, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("create %s: %w", out, err)
			}
			defer f.Close()
			if n, err = kpi.WriteParquet(f, snaps); err != nil {
				return err
			}
			fmt.Printf("Exported %d snapshot(s) to %s.\n", n, out)
			return nil
		},
	}
	exportCmd.Flags().String("org", "", "Organization id (all organizations when empty)")
	exportCmd.Flags().String("from", "", "First date, YYYY-MM-DD (default 90 days ago)")
	exportCmd.Flags().String("to", "", "Last date, YYYY-MM-DD (default today)")
	exportCmd.Flags().String("out", "", "Local parquet file to write")
	exportCmd.Flags().String("key", "", "Object key to upload to instead of a local file")

	cmd.AddCommand(exportCmd)
	return cmd
}

// exportRange parses the --from/--to flags, defaulting to the 90 days
// before now.
func exportRange(fromFlag, toFlag string, now time.Time) (time.Time, time.Time, error) {
	to := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	from := to.AddDate(0, 0, -90)
	var err error
	if fromFlag != "" {
		if from, err = time.Parse("2006-01-02", fromFlag); err != nil {
			return from, to, fmt.Errorf("--from: %w", err)
		}
	}
	if toFlag != "" {
		if to, err = time.Parse("2006-01-02", toFlag); err != nil {
			return from, to, fmt.Errorf("--to: %w", err)
		}
	}
	if to.Before(from) {
		return from, to, fmt.Errorf("--to precedes --from")
	}
	return from, to, nil
}
