package tenantcmd

import (
	"context"
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/cw-konishi/copilot-metric-saver/apps/cli/store"
	"github.com/cw-konishi/copilot-metric-saver/domains/tenants/be/service"
	"github.com/cw-konishi/copilot-metric-saver/platform/go/githubapi"
)

type storageFlags struct {
	backend     string
	databaseURL string
	sqlitePath  string
	apiBase     string
}

func (f *storageFlags) register(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&f.backend, "backend", "sqlite", "storage backend (sqlite | postgres)")
	cmd.PersistentFlags().StringVar(&f.databaseURL, "database-url", "", "postgres connection string")
	cmd.PersistentFlags().StringVar(&f.sqlitePath, "sqlite-path", "./.data/copilot.db", "sqlite database file")
	cmd.PersistentFlags().StringVar(&f.apiBase, "github-api-base", "https://api.github.com", "GitHub API base URL")
}

func (f *storageFlags) registry(ctx context.Context) (*service.Registry, func(), error) {
	stores, err := store.Open(ctx, store.Options{
		Backend:     f.backend,
		DatabaseURL: f.databaseURL,
		SQLitePath:  f.sqlitePath,
	})
	if err != nil {
		return nil, nil, err
	}
	github := githubapi.NewClient(githubapi.Config{BaseURL: f.apiBase})
	return service.NewRegistry(stores.Tenants, github), stores.Close, nil
}

// Command groups tenant registry helpers.
func Command() *cobra.Command {
	flags := &storageFlags{}

	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Tenant registry utilities (add/list/remove)",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			_ = godotenv.Load()
		},
	}
	flags.register(cmd)

	cmd.AddCommand(addCommand(flags))
	cmd.AddCommand(listCommand(flags))
	cmd.AddCommand(removeCommand(flags))
	return cmd
}

func addCommand(flags *storageFlags) *cobra.Command {
	var (
		scopeType string
		scopeName string
		teamSlug  string
		token     string
	)

	c := &cobra.Command{
		Use:   "add",
		Short: "Validate a token upstream and register the tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			st, err := service.ParseScopeType(scopeType)
			if err != nil {
				return err
			}

			registry, closeFn, err := flags.registry(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			tenant, err := registry.Register(ctx, service.Tenant{
				ScopeType: st,
				ScopeName: scopeName,
				TeamSlug:  teamSlug,
				Token:     token,
				IsActive:  true,
			})
			if err != nil {
				return fmt.Errorf("register tenant: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "registered %s\n", tenant.Key())
			return nil
		},
	}

	c.Flags().StringVar(&scopeType, "scope-type", "", "organization or enterprise")
	c.Flags().StringVar(&scopeName, "scope-name", "", "organization/enterprise slug")
	c.Flags().StringVar(&teamSlug, "team", "", "optional team slug")
	c.Flags().StringVar(&token, "token", "", "GitHub access token")
	_ = c.MarkFlagRequired("scope-type")
	_ = c.MarkFlagRequired("scope-name")
	_ = c.MarkFlagRequired("token")
	return c
}

func listCommand(flags *storageFlags) *cobra.Command {
	var all bool

	c := &cobra.Command{
		Use:   "list",
		Short: "List registered tenants",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			registry, closeFn, err := flags.registry(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			var tenants []service.Tenant
			if all {
				tenants, err = registry.ListAll(ctx)
			} else {
				tenants, err = registry.ListActive(ctx)
			}
			if err != nil {
				return fmt.Errorf("list tenants: %w", err)
			}

			for _, t := range tenants {
				status := "active"
				if !t.IsActive {
					status = "inactive"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", t.Key(), status)
			}
			return nil
		},
	}

	c.Flags().BoolVar(&all, "all", false, "include deactivated tenants")
	return c
}

func removeCommand(flags *storageFlags) *cobra.Command {
	var (
		scopeType string
		scopeName string
		teamSlug  string
		token     string
	)

	c := &cobra.Command{
		Use:   "remove",
		Short: "Deactivate a tenant (stored snapshots are kept)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			st, err := service.ParseScopeType(scopeType)
			if err != nil {
				return err
			}

			registry, closeFn, err := flags.registry(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			id := service.Identity{ScopeType: st, ScopeName: scopeName, TeamSlug: teamSlug}
			if err := registry.Remove(ctx, id, token); err != nil {
				return fmt.Errorf("remove tenant: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "deactivated %s\n", id.Key())
			return nil
		},
	}

	c.Flags().StringVar(&scopeType, "scope-type", "", "organization or enterprise")
	c.Flags().StringVar(&scopeName, "scope-name", "", "organization/enterprise slug")
	c.Flags().StringVar(&teamSlug, "team", "", "optional team slug")
	c.Flags().StringVar(&token, "token", "", "GitHub access token")
	_ = c.MarkFlagRequired("scope-type")
	_ = c.MarkFlagRequired("scope-name")
	_ = c.MarkFlagRequired("token")
	return c
}
