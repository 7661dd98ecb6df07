package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/staffmanagement/authservice/internal/daemon"
)

func init() { //nolint: gochecknoinits
	resyncCmd.Flags().Uint64Var(&resyncUserID, "user-id", 0, "Resync the remote groups of this user")
	resyncCmd.Flags().BoolVar(&resyncAll, "all", false, "Resync the remote groups of every user")
	resyncCmd.MarkFlagsMutuallyExclusive("user-id", "all")

	rootCmd.AddCommand(resyncCmd)
}

var errResyncTarget = errors.New("either --user-id or --all is required")

var (
	resyncUserID uint64
	resyncAll    bool

	resyncCmd = &cobra.Command{
		Use:   "resync",
		Short: "Repair drift between local roles and remote group membership",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if resyncUserID == 0 && !resyncAll {
				return errResyncTarget
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx := context.Background()

			core, err := daemon.NewCore(ctx, &cfg)
			if err != nil {
				return err
			}
			defer core.Close()

			ids := []uint64{resyncUserID}

			if resyncAll {
				users, err := core.Identity.ListUsers(ctx)
				if err != nil {
					return err
				}

				ids = ids[:0]
				for _, u := range users {
					ids = append(ids, u.ID)
				}
			}

			var failed int

			for _, id := range ids {
				res, err := core.Reconciler.Resync(ctx, id)
				if err != nil {
					return fmt.Errorf("resync of user %d: %w", id, err)
				}

				if res.Skipped {
					log.Warn().Msg("remote group sync is disabled, nothing to do")
					return nil
				}

				failed += len(res.RemoteFailures)

				fmt.Fprintf(cmd.OutOrStdout(), "user %d: added %v removed %v failures %d\n",
					id, res.GroupsAdded, res.GroupsRemoved, len(res.RemoteFailures))
			}

			if failed > 0 {
				return fmt.Errorf("%d remote calls failed", failed)
			}

			return nil
		},
	}
)
