package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/boddenberg/leadflow-go/internal/bootstrap"
	"github.com/boddenberg/leadflow-go/internal/config"
	"github.com/boddenberg/leadflow-go/internal/domain"
	"github.com/boddenberg/leadflow-go/internal/infra/postgres"
)

func newMigrateCmd(a *app) *cobra.Command {
	var printOnly bool
	cmd := &cobra.Command{
		Use:     "migrate",
		GroupID: "admin",
		Short:   "Apply the embedded Postgres schema",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if printOnly {
				_, err := fmt.Fprint(a.out, postgres.Schema())
				return err
			}
			if err := a.connect(cmd.Context(), true); err != nil {
				return err
			}
			if a.backend.Name != config.BackendPostgres {
				return fmt.Errorf("migrate requires STORE_BACKEND=postgres, got %q", a.backend.Name)
			}
			return a.print(map[string]string{"status": "migrated"}, "Schema applied")
		},
	}
	cmd.Flags().BoolVar(&printOnly, "print", false, "print the schema instead of applying it")
	return cmd
}

func newSeedCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "seed",
		GroupID: "admin",
		Short:   "Create demo principals and leads",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.connect(cmd.Context(), false); err != nil {
				return err
			}
			if err := bootstrap.SeedDemo(cmd.Context(), a.backend.Leads, a.backend.Principals, a.logger); err != nil {
				return err
			}
			return a.print(map[string]string{"status": "seeded"},
				"Demo data ready (password %q for every seeded principal)", bootstrap.DemoPassword)
		},
	}
}

func newTokenCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "token <principal-id>",
		GroupID: "admin",
		Short:   "Mint an access token for a principal",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid principal id %q", args[0])
			}
			if err := a.connect(cmd.Context(), false); err != nil {
				return err
			}
			p, err := a.backend.Principals.GetPrincipal(cmd.Context(), id)
			if err != nil {
				return err
			}
			if !p.Active {
				return fmt.Errorf("principal %d is inactive", id)
			}
			tok, err := a.auth.IssueToken(p)
			if err != nil {
				return err
			}
			return a.print(tok, "%s", tok.AccessToken)
		},
	}
}

func newPermsCmd(a *app) *cobra.Command {
	var custom []string
	cmd := &cobra.Command{
		Use:     "perms <role>",
		GroupID: "admin",
		Short:   "Show the effective permissions of a role",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			role := domain.ParseRole(args[0])
			overrides := make([]domain.Permission, 0, len(custom))
			for _, c := range custom {
				overrides = append(overrides, domain.Permission(strings.TrimSpace(c)))
			}
			perms := domain.ResolvePermissions(role, overrides).Sorted()

			names := make([]string, len(perms))
			for i, p := range perms {
				names[i] = string(p)
			}
			return a.print(domain.PermissionsResponse{Role: role, Permissions: perms},
				"%s: %s", role, strings.Join(names, ", "))
		},
	}
	cmd.Flags().StringSliceVar(&custom, "custom", nil, "custom permission list that overrides the role defaults")
	return cmd
}
