package synccmd

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/cw-konishi/copilot-metric-saver/apps/cli/store"
	copilotservice "github.com/cw-konishi/copilot-metric-saver/domains/copilot/be/service"
	tenantsservice "github.com/cw-konishi/copilot-metric-saver/domains/tenants/be/service"
	"github.com/cw-konishi/copilot-metric-saver/platform/go/githubapi"
	"github.com/cw-konishi/copilot-metric-saver/platform/go/logging"
	"github.com/cw-konishi/copilot-metric-saver/platform/go/syncjob"
)

// Command groups manual sync helpers.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Manual snapshot refresh",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			_ = godotenv.Load()
		},
	}

	cmd.AddCommand(onceCommand())
	return cmd
}

func onceCommand() *cobra.Command {
	var (
		backend         string
		databaseURL     string
		sqlitePath      string
		apiBase         string
		logLevel        string
		collectTeamData bool
	)

	c := &cobra.Command{
		Use:   "once",
		Short: "Refresh all active tenants once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			logger, err := logging.NewLogger(logging.Config{Component: "sync-cli", Level: logLevel})
			if err != nil {
				log.Fatalf("init zap logger: %v", err)
			}
			defer func() {
				_ = logger.Sync()
			}()

			stores, err := store.Open(ctx, store.Options{
				Backend:     backend,
				DatabaseURL: databaseURL,
				SQLitePath:  sqlitePath,
			})
			if err != nil {
				return err
			}
			defer stores.Close()

			github := githubapi.NewClient(githubapi.Config{BaseURL: apiBase})
			registry := tenantsservice.NewRegistry(stores.Tenants, github)
			factory := copilotservice.NewFactory(stores.Snapshots, github)

			job := syncjob.New(registry, factory, syncjob.Config{
				CollectTeamData: collectTeamData,
			}, logger, nil)

			report, err := job.RunOnce(ctx)
			if err != nil {
				return fmt.Errorf("sync run: %w", err)
			}

			for _, tenant := range report.Tenants {
				for _, kind := range tenant.Kinds {
					switch {
					case kind.Err != nil:
						fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\tfailed: %v\n", tenant.Tenant, kind.Kind, kind.Err)
					case !kind.Saved:
						fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\tempty\n", tenant.Tenant, kind.Kind)
					default:
						fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\tsaved\n", tenant.Tenant, kind.Kind)
					}
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d tenants, %d failures, took %s\n",
				len(report.Tenants), report.Failures(), report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond))
			return nil
		},
	}

	c.Flags().StringVar(&backend, "backend", "sqlite", "storage backend (sqlite | postgres)")
	c.Flags().StringVar(&databaseURL, "database-url", "", "postgres connection string")
	c.Flags().StringVar(&sqlitePath, "sqlite-path", "./.data/copilot.db", "sqlite database file")
	c.Flags().StringVar(&apiBase, "github-api-base", "https://api.github.com", "GitHub API base URL")
	c.Flags().StringVar(&logLevel, "log-level", "info", "log verbosity")
	c.Flags().BoolVar(&collectTeamData, "collect-team-data", true, "include team-scoped tenants")
	return c
}
