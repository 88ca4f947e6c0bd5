package cli

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect and manage the offline change queue",
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List queued changes in replay order",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireContainer()
		if err != nil {
			return err
		}

		changes, err := c.PendingChangeRepo.FindAllOrdered(cmd.Context())
		if err != nil {
			return err
		}
		if len(changes) == 0 {
			fmt.Println("Queue is empty.")
			return nil
		}

		for _, change := range changes {
			fmt.Printf("%3d  %-8s %-36s %s", change.Seq(), change.Operation(), change.ID(), change.EventID())
			if change.RetryCount() > 0 {
				fmt.Printf("  retries=%d last_error=%q", change.RetryCount(), change.LastError())
			}
			fmt.Println()
		}
		return nil
	},
}

var queueProcessCmd = &cobra.Command{
	Use:   "process",
	Short: "Replay queued changes against the remote now",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireContainer()
		if err != nil {
			return err
		}

		result, err := c.Processor.ProcessQueue(cmd.Context())
		if err != nil {
			return err
		}
		if result.Total == 0 {
			fmt.Println("Queue is empty.")
			return nil
		}
		printQueueResult(result)
		return nil
	},
}

var queueDiscardCmd = &cobra.Command{
	Use:   "discard <change-id>",
	Short: "Drop a queued change and undo its local bookkeeping",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireContainer()
		if err != nil {
			return err
		}

		changeID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid change ID %q: %w", args[0], err)
		}
		if err := c.Queue.Discard(cmd.Context(), changeID); err != nil {
			return err
		}
		fmt.Printf("Discarded change %s\n", changeID)
		return nil
	},
}

var queueRetryCmd = &cobra.Command{
	Use:   "retry <change-id>",
	Short: "Reset a permanently failed change for another replay",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireContainer()
		if err != nil {
			return err
		}

		changeID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid change ID %q: %w", args[0], err)
		}
		if err := c.Queue.Retry(cmd.Context(), changeID); err != nil {
			return err
		}
		fmt.Printf("Change %s will replay on the next pass\n", changeID)
		return nil
	},
}

func init() {
	queueCmd.AddCommand(queueListCmd)
	queueCmd.AddCommand(queueProcessCmd)
	queueCmd.AddCommand(queueDiscardCmd)
	queueCmd.AddCommand(queueRetryCmd)
	AddCommand(queueCmd)
}
