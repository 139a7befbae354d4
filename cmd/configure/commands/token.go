package commands

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/benvon/smart-survey/internal/auth"
	"github.com/spf13/cobra"
)

// NewTokenCmd creates the token command for minting admin bearer tokens.
func NewTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage admin bearer tokens",
	}
	cmd.AddCommand(newTokenIssueCmd())
	return cmd
}

func newTokenIssueCmd() *cobra.Command {
	var subject, secret string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Print a signed admin token",
		Long:  "Sign an HS256 admin token with ADMIN_JWT_SECRET (or --secret) and print it to stdout.",
		RunE: func(cmd *cobra.Command, args []string) error {
			subject = strings.TrimSpace(subject)
			if subject == "" {
				return fmt.Errorf("--subject is required")
			}
			if ttl <= 0 {
				return fmt.Errorf("--ttl must be positive")
			}
			if secret == "" {
				secret = os.Getenv("ADMIN_JWT_SECRET")
			}
			issuer, err := auth.NewTokenIssuer(secret)
			if err != nil {
				return fmt.Errorf("create token issuer: %w", err)
			}
			token, err := issuer.Issue(subject, ttl)
			if err != nil {
				return fmt.Errorf("issue token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "Operator the token is issued to (required)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	cmd.Flags().StringVar(&secret, "secret", "", "Signing secret (defaults to ADMIN_JWT_SECRET)")
	return cmd
}
