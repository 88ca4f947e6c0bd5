package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/skalley/caldrift/internal/sync/domain"
)

const recentErrorLimit = 10

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sync state per calendar and recent errors",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireContainer()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		state := c.Scheduler.State()
		fmt.Printf("Scheduler: running=%t syncing=%t online=%t\n",
			state.Running, state.Syncing, state.Online)

		from, to := c.Engine.Window()
		fmt.Printf("Window: %s .. %s\n", from.Format("2006-01-02"), to.Format("2006-01-02"))

		accounts, err := c.AccountRepo.FindAll(ctx)
		if err != nil {
			return err
		}
		if len(accounts) == 0 {
			fmt.Println("No accounts configured.")
		}
		for _, account := range accounts {
			fmt.Printf("\n%s (%s)\n", account.Email(), account.Provider())
			rows, err := c.SyncMetadataRepo.FindByAccount(ctx, account.ID())
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				fmt.Println("  never synced")
				continue
			}
			for _, meta := range rows {
				fmt.Printf("  %-30s %s", meta.CalendarID(), formatSyncState(meta))
				fmt.Println()
			}
		}

		entries, err := c.ErrorLogRepo.FindRecent(ctx, recentErrorLimit)
		if err != nil {
			return err
		}
		if len(entries) > 0 {
			fmt.Println("\nRecent errors:")
			for _, entry := range entries {
				fmt.Printf("  %s [%s] %s\n",
					entry.CreatedAt().Local().Format(time.DateTime), entry.Source(), entry.Message())
			}
		}
		return nil
	},
}

func formatSyncState(meta *domain.SyncMetadata) string {
	switch meta.LastStatus() {
	case domain.SyncStatusSuccess:
		return fmt.Sprintf("ok, last sync %s", meta.LastSyncAt().Local().Format(time.DateTime))
	case domain.SyncStatusError:
		return fmt.Sprintf("failed: %s", meta.ErrorMessage())
	default:
		return "pending first sync"
	}
}

func init() {
	AddCommand(statusCmd)
}
