package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"github.com/skalley/caldrift/internal/sync/domain"
	caldavclient "github.com/skalley/caldrift/internal/sync/infrastructure/caldav"
)

var (
	accountProvider  string
	accountTokenFile string
	accountServerURL string
	accountUsername  string
	accountPassword  string
)

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Manage connected calendar accounts",
}

var accountAddCmd = &cobra.Command{
	Use:   "add <email>",
	Short: "Connect a remote calendar account",
	Long: `Connects a remote account and discovers its calendars.

For --provider google, --token-file must point to an OAuth2 token JSON
obtained through the consent flow. For --provider caldav, pass the server
URL and credentials (an app-specific password for Apple iCloud).`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireContainer()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		email := args[0]

		existing, err := c.AccountRepo.FindByEmail(ctx, email)
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("account %s is already connected", email)
		}

		var credential []byte
		var expiresAt time.Time
		switch accountProvider {
		case "google":
			if accountTokenFile == "" {
				return fmt.Errorf("--token-file is required for the google provider")
			}
			raw, err := os.ReadFile(accountTokenFile)
			if err != nil {
				return fmt.Errorf("reading token file: %w", err)
			}
			var token oauth2.Token
			if err := json.Unmarshal(raw, &token); err != nil {
				return fmt.Errorf("parsing token file: %w", err)
			}
			credential = raw
			expiresAt = token.Expiry
		case "caldav":
			serverURL := accountServerURL
			if serverURL == "" {
				serverURL = c.Config.CalDAVEndpoint
			}
			username := accountUsername
			if username == "" {
				username = email
			}
			if serverURL == "" || accountPassword == "" {
				return fmt.Errorf("--server and --password are required for the caldav provider")
			}
			credential, err = json.Marshal(caldavclient.Credentials{
				ServerURL: serverURL,
				Username:  username,
				Password:  accountPassword,
			})
			if err != nil {
				return err
			}
		default:
			return fmt.Errorf("unknown provider %q (expected google or caldav)", accountProvider)
		}

		account, err := domain.NewAccount(email, accountProvider, credential, expiresAt)
		if err != nil {
			return err
		}
		if err := c.AccountRepo.Save(ctx, account); err != nil {
			return err
		}

		count, err := discoverCalendars(cmd, account)
		if err != nil {
			fmt.Printf("Connected %s, but calendar discovery failed: %v\n", email, err)
			fmt.Println("Run `caldrift account refresh` to retry.")
			return nil
		}
		fmt.Printf("Connected %s (%s), %d calendars discovered.\n", email, accountProvider, count)
		return nil
	},
}

var accountListCmd = &cobra.Command{
	Use:   "list",
	Short: "List connected accounts and their calendars",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireContainer()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		accounts, err := c.AccountRepo.FindAll(ctx)
		if err != nil {
			return err
		}
		if len(accounts) == 0 {
			fmt.Println("No accounts connected. Run `caldrift account add`.")
			return nil
		}

		for _, account := range accounts {
			fmt.Printf("%s (%s)\n", account.Email(), account.Provider())
			calendars, err := c.CalendarRepo.FindByAccount(ctx, account.ID())
			if err != nil {
				return err
			}
			for _, cal := range calendars {
				marker := " "
				if cal.Primary() {
					marker = "*"
				}
				visibility := "synced"
				if !cal.Visible() {
					visibility = "hidden"
				}
				fmt.Printf("  %s %-40s %s\n", marker, cal.Name(), visibility)
			}
		}
		return nil
	},
}

var accountRefreshCmd = &cobra.Command{
	Use:   "refresh [email]",
	Short: "Re-discover calendars for one or all accounts",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireContainer()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		var accounts []*domain.Account
		if len(args) == 1 {
			account, err := c.AccountRepo.FindByEmail(ctx, args[0])
			if err != nil {
				return err
			}
			if account == nil {
				return fmt.Errorf("no account with email %q", args[0])
			}
			accounts = append(accounts, account)
		} else {
			accounts, err = c.AccountRepo.FindAll(ctx)
			if err != nil {
				return err
			}
		}

		for _, account := range accounts {
			count, err := discoverCalendars(cmd, account)
			if err != nil {
				fmt.Printf("%s: discovery failed: %v\n", account.Email(), err)
				continue
			}
			fmt.Printf("%s: %d calendars\n", account.Email(), count)
		}
		return nil
	},
}

var accountRemoveCmd = &cobra.Command{
	Use:   "remove <email>",
	Short: "Disconnect an account and drop its local mirror",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireContainer()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		account, err := c.AccountRepo.FindByEmail(ctx, args[0])
		if err != nil {
			return err
		}
		if account == nil {
			return fmt.Errorf("no account with email %q", args[0])
		}
		if err := c.AccountRepo.Delete(ctx, account.ID()); err != nil {
			return err
		}
		fmt.Printf("Removed %s; local events and queued changes were dropped.\n", account.Email())
		return nil
	},
}

// discoverCalendars upserts the remote calendar list, preserving the
// visibility choices of calendars already known locally.
func discoverCalendars(cmd *cobra.Command, account *domain.Account) (int, error) {
	c, err := requireContainer()
	if err != nil {
		return 0, err
	}
	ctx := cmd.Context()

	type discovered struct {
		id      string
		name    string
		color   string
		primary bool
	}
	var remote []discovered

	switch account.Provider() {
	case "google":
		calendars, err := c.GoogleClient.ListCalendars(ctx, account.ID())
		if err != nil {
			return 0, err
		}
		for _, cal := range calendars {
			remote = append(remote, discovered{id: cal.ID, name: cal.Name, color: cal.Color, primary: cal.Primary})
		}
	case "caldav":
		calendars, err := c.CalDAVClient.ListCalendars(ctx, account.ID())
		if err != nil {
			return 0, err
		}
		for _, cal := range calendars {
			remote = append(remote, discovered{id: cal.ID, name: cal.Name, primary: cal.Primary})
		}
	default:
		return 0, fmt.Errorf("unknown provider %q", account.Provider())
	}

	for _, found := range remote {
		calendar, err := c.CalendarRepo.FindByAccountAndID(ctx, account.ID(), found.id)
		if err != nil {
			return 0, err
		}
		if calendar == nil {
			calendar, err = domain.NewCalendar(account.ID(), found.id, found.name)
			if err != nil {
				return 0, err
			}
		} else {
			calendar.SetName(found.name)
		}
		if found.color != "" {
			calendar.SetColor(found.color)
		}
		calendar.SetPrimary(found.primary)
		if err := c.CalendarRepo.Save(ctx, calendar); err != nil {
			return 0, err
		}
	}
	return len(remote), nil
}

func init() {
	accountAddCmd.Flags().StringVarP(&accountProvider, "provider", "p", "google", "account provider (google or caldav)")
	accountAddCmd.Flags().StringVar(&accountTokenFile, "token-file", "", "OAuth2 token JSON file (google)")
	accountAddCmd.Flags().StringVar(&accountServerURL, "server", "", "CalDAV server URL")
	accountAddCmd.Flags().StringVar(&accountUsername, "username", "", "CalDAV username (defaults to the email)")
	accountAddCmd.Flags().StringVar(&accountPassword, "password", "", "CalDAV password")

	accountCmd.AddCommand(accountAddCmd)
	accountCmd.AddCommand(accountListCmd)
	accountCmd.AddCommand(accountRefreshCmd)
	accountCmd.AddCommand(accountRemoveCmd)
	AddCommand(accountCmd)
}
