package commands

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/benvon/smart-survey/internal/config"
	"github.com/benvon/smart-survey/internal/database"
	"github.com/benvon/smart-survey/internal/models"
	"github.com/benvon/smart-survey/internal/ratelimit"
	"github.com/spf13/cobra"
	"github.com/ulule/limiter/v3"
)

// NewRatelimitCmd creates the ratelimit configuration command with list, set and reset subcommands.
func NewRatelimitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ratelimit",
		Short: "Manage rate limit configuration",
		Long:  "List or update the admin rate and the per endpoint survey quotas (e.g. 5-S, 100-M). Stored in database.",
	}
	cmd.AddCommand(newRatelimitListCmd())
	cmd.AddCommand(newRatelimitSetCmd())
	cmd.AddCommand(newRatelimitResetCmd())
	return cmd
}

func newRatelimitListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List current rate limit configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, db, err := openDatabase()
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()
			repo := database.NewRatelimitConfigRepository(db)
			configs, err := repo.List(context.Background())
			if err != nil {
				return fmt.Errorf("list ratelimit config: %w", err)
			}
			printPolicies(cmd, configs)
			return nil
		},
	}
}

func printPolicies(cmd *cobra.Command, configs []*models.RatelimitConfig) {
	stored := make(map[string]string, len(configs))
	for _, c := range configs {
		stored[c.Scope] = c.Rate
	}

	out := cmd.OutOrStdout()
	adminRate, ok := stored[models.RatelimitScopeAdmin]
	if !ok {
		adminRate = config.DefaultAdminRate + " (default)"
	}
	fmt.Fprintln(out, "Admin rate:")
	fmt.Fprintf(out, "  %s\n", adminRate)

	defaults := ratelimit.DefaultPolicies()
	fmt.Fprintln(out, "Survey endpoints:")
	for _, name := range defaults.Names() {
		if rate, ok := stored[name]; ok {
			fmt.Fprintf(out, "  %-14s %s (override, default %s)\n", name, rate, defaults[name])
			continue
		}
		fmt.Fprintf(out, "  %-14s %s\n", name, defaults[name])
	}
}

// scopeFor maps the --endpoint flag to a stored scope. An empty endpoint
// selects the admin rate.
func scopeFor(endpoint string) (string, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return models.RatelimitScopeAdmin, nil
	}
	names := ratelimit.DefaultPolicies().Names()
	if !slices.Contains(names, endpoint) {
		return "", fmt.Errorf("unknown endpoint %q (one of %s)", endpoint, strings.Join(names, ", "))
	}
	return endpoint, nil
}

func newRatelimitSetCmd() *cobra.Command {
	var rate, endpoint string
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Set rate limit configuration",
		Long:  "Update the admin rate, or the quota of one survey endpoint with --endpoint (e.g. 5-S, 100-M, 1000-H). Stored in database.",
		RunE: func(cmd *cobra.Command, args []string) error {
			rate = strings.TrimSpace(rate)
			if rate == "" {
				return fmt.Errorf("--rate is required (e.g. 5-S, 100-M)")
			}
			scope, err := scopeFor(endpoint)
			if err != nil {
				return err
			}
			if scope == models.RatelimitScopeAdmin {
				if _, err := limiter.NewRateFromFormatted(rate); err != nil {
					return fmt.Errorf("invalid rate %q: %w", rate, err)
				}
			} else if _, err := ratelimit.ParsePolicy(rate); err != nil {
				return err
			}

			_, db, err := openDatabase()
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()
			repo := database.NewRatelimitConfigRepository(db)
			if err := repo.Set(context.Background(), &models.RatelimitConfig{Scope: scope, Rate: rate}); err != nil {
				return fmt.Errorf("set ratelimit config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Rate limit for %s updated to %s.\n", scope, rate)
			return nil
		},
	}
	cmd.Flags().StringVar(&rate, "rate", "", "Rate (e.g. 5-S, 100-M, 1000-H) (required)")
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "Survey endpoint to override; omit for the admin rate")
	return cmd
}

func newRatelimitResetCmd() *cobra.Command {
	var endpoint string
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Remove a survey endpoint override",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(endpoint) == "" {
				return fmt.Errorf("--endpoint is required")
			}
			scope, err := scopeFor(endpoint)
			if err != nil {
				return err
			}
			_, db, err := openDatabase()
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()
			repo := database.NewRatelimitConfigRepository(db)
			if err := repo.Delete(context.Background(), scope); err != nil {
				return fmt.Errorf("reset ratelimit config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Rate limit for %s reset to default.\n", scope)
			return nil
		},
	}
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "Survey endpoint whose override to remove (required)")
	return cmd
}
