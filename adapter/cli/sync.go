package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/skalley/caldrift/internal/sync/application"
)

var syncAccountEmail string

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run a sync pass now",
	Long: `Drains the offline change queue, then pulls remote changes for
every visible calendar of every account. With --account only that
account is pulled; the queue is drained either way.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireContainer()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		if syncAccountEmail != "" {
			account, err := c.AccountRepo.FindByEmail(ctx, syncAccountEmail)
			if err != nil {
				return err
			}
			if account == nil {
				return fmt.Errorf("no account with email %q", syncAccountEmail)
			}

			queueResult, err := c.Processor.ProcessQueue(ctx)
			if err != nil {
				return err
			}
			printQueueResult(queueResult)

			result, err := c.Engine.SyncAccount(ctx, account.ID())
			if err != nil {
				return err
			}
			printAccountResult(syncAccountEmail, result)
			return nil
		}

		err = c.Scheduler.PerformSync(ctx)
		switch {
		case errors.Is(err, application.ErrSyncInProgress):
			fmt.Println("A sync pass is already running.")
			return nil
		case errors.Is(err, application.ErrOffline):
			fmt.Println("Offline; sync skipped.")
			return nil
		case err != nil:
			return err
		}
		fmt.Println("Sync complete.")
		return nil
	},
}

func printQueueResult(result *application.QueueResult) {
	if result.Total == 0 {
		return
	}
	fmt.Printf("Queue: %d replayed, %d succeeded, %d failed\n",
		result.Total, result.Successful, result.Failed)
	for _, item := range result.Items {
		if item.Success {
			continue
		}
		state := "will retry"
		if item.Terminal {
			state = "gave up"
		}
		fmt.Printf("  %s %s (%s): %s\n", item.Operation, item.EventID, state, item.Error)
	}
}

func printAccountResult(email string, result *application.AccountSyncResult) {
	for _, cal := range result.Calendars {
		fmt.Printf("%s/%s: +%d ~%d -%d",
			email, cal.CalendarID, cal.Added, cal.Updated, cal.Deleted)
		if cal.Conflicts > 0 {
			fmt.Printf(" (%d conflicts)", cal.Conflicts)
		}
		fmt.Println()
	}
	for _, calErr := range result.Errors {
		fmt.Printf("%s/%s: sync failed: %v\n", email, calErr.CalendarID, calErr.Err)
	}
}

func init() {
	syncCmd.Flags().StringVarP(&syncAccountEmail, "account", "a", "", "sync only this account (email)")
	AddCommand(syncCmd)
}
