package commands

import (
	"context"
	"fmt"

	"github.com/benvon/smart-survey/internal/database"
	"github.com/benvon/smart-survey/internal/logger"
	"github.com/benvon/smart-survey/internal/submission"
	"github.com/benvon/smart-survey/internal/validation"
	"github.com/spf13/cobra"
)

// NewReconcileCmd creates the reconcile command, which removes duplicate
// completed results so each session keeps only its newest.
func NewReconcileCmd() *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Remove duplicate completed results",
		Long:  "Run the duplicate sweep for one session (--session) or for every session holding more than one completed result.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if sessionID != "" {
				if err := validation.ValidateSessionID(sessionID); err != nil {
					return err
				}
			}
			cfg, db, err := openDatabase()
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			log, err := logger.New(cfg.Environment, false)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			defer func() { _ = logger.Sync(log) }()

			reconciler := submission.NewReconciler(database.NewResultRepository(db), log)
			ctx := context.Background()
			out := cmd.OutOrStdout()
			if sessionID != "" {
				removed, err := reconciler.Prune(ctx, sessionID)
				if err != nil {
					return fmt.Errorf("reconcile session: %w", err)
				}
				fmt.Fprintf(out, "Removed %d duplicate result(s) for %s.\n", removed, sessionID)
				return nil
			}
			sessions, removed, err := reconciler.PruneAll(ctx)
			if err != nil {
				return fmt.Errorf("reconcile: %w", err)
			}
			fmt.Fprintf(out, "Removed %d duplicate result(s) across %d session(s).\n", removed, sessions)
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "Only reconcile this session id")
	return cmd
}
