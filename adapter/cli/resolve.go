package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var resolveKeep string

var resolveCmd = &cobra.Command{
	Use:   "resolve <event-id>",
	Short: "Resolve a sync conflict by keeping one version",
	Long: `Resolves a conflicted event by keeping either the local or the remote
version. Keeping local re-queues the event for push; keeping remote applies
the remote snapshot and withdraws any queued change for the event.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireContainer()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		eventID := args[0]

		switch resolveKeep {
		case "local":
			if err := c.Resolver.KeepLocal(ctx, eventID); err != nil {
				return err
			}
			fmt.Printf("Kept the local version of %s; it will push on the next pass.\n", eventID)
		case "remote":
			if err := c.Resolver.KeepRemote(ctx, eventID); err != nil {
				return err
			}
			fmt.Printf("Kept the remote version of %s; queued changes were withdrawn.\n", eventID)
		default:
			return fmt.Errorf("--keep must be local or remote, got %q", resolveKeep)
		}
		return nil
	},
}

func init() {
	resolveCmd.Flags().StringVar(&resolveKeep, "keep", "", "which version to keep (local or remote)")
	resolveCmd.MarkFlagRequired("keep")
	AddCommand(resolveCmd)
}
