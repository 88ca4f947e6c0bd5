package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the background sync scheduler until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireContainer()
		if err != nil {
			return err
		}
		if !c.Config.AutoSyncEnabled {
			return fmt.Errorf("auto-sync is disabled; set CALDRIFT_AUTO_SYNC=true")
		}

		ctx := cmd.Context()
		c.Scheduler.Start(ctx)
		fmt.Printf("Syncing every %s. Press Ctrl+C to stop.\n", c.Config.SyncInterval)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigCh)

		select {
		case <-ctx.Done():
		case <-sigCh:
		}

		c.Scheduler.Stop()
		return nil
	},
}

func init() {
	AddCommand(daemonCmd)
}
