package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/hwidlock/services"
)

func newKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Manage activation keys",
		Long:  "Generate, list, delete, reset, disable and enable activation keys directly against the configured store.",
	}

	cmd.AddCommand(newKeyGenerateCmd())
	cmd.AddCommand(newKeyListCmd())
	cmd.AddCommand(newKeyDeleteCmd())
	cmd.AddCommand(newKeyResetCmd())
	cmd.AddCommand(newKeySetActiveCmd("disable", "Disable a key without deleting it", false))
	cmd.AddCommand(newKeySetActiveCmd("enable", "Re-enable a disabled key", true))

	return cmd
}

// ---------- key generate ----------

func newKeyGenerateCmd() *cobra.Command {
	var (
		count      int
		customKey  string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate new keys",
		Example: `  hwidlock key generate --count 10
  hwidlock key generate --custom VIP-2024`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openAdminApp()
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.admin.Generate(context.Background(), count, customKey)
			if err != nil {
				return cliError(err)
			}
			if jsonOutput {
				return printJSON(res)
			}
			for _, k := range res.Keys {
				fmt.Println(k)
			}
			if res.Skipped > 0 {
				fmt.Printf("%d slot(s) skipped because the key already exists\n", res.Skipped)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", 1, "number of keys to generate")
	cmd.Flags().StringVar(&customKey, "custom", "", "use this value for the first key")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	return cmd
}

// ---------- key list ----------

func newKeyListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List all keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openAdminApp()
			if err != nil {
				return err
			}
			defer a.Close()

			list, err := a.admin.ListKeys(context.Background())
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(list)
			}
			if list.Total == 0 {
				fmt.Println("No keys yet. Use 'hwidlock key generate' to create some.")
				return nil
			}

			fmt.Printf("%-24s %-18s %-8s %-6s %-20s\n", "KEY", "HWID", "ACTIVE", "USES", "LAST USED")
			fmt.Printf("%-24s %-18s %-8s %-6s %-20s\n", "---", "----", "------", "----", "---------")
			for _, k := range list.Keys {
				hwid, lastUsed, active := "-", "-", "yes"
				if k.HWID != nil {
					hwid = *k.HWID
				}
				if k.LastUsed != nil {
					lastUsed = k.LastUsed.Local().Format(time.DateTime)
				}
				if !k.Active {
					active = "no"
				}
				fmt.Printf("%-24s %-18s %-8s %-6d %-20s\n", k.Key, hwid, active, k.UsageCount, lastUsed)
			}
			fmt.Printf("\n%d keys, %d used, %d unused\n", list.Total, list.Used, list.Unused)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	return cmd
}

// ---------- key delete / reset / disable / enable ----------

func newKeyDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <key>",
		Short: "Delete a key and its usage history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openAdminApp()
			if err != nil {
				return err
			}
			defer a.Close()

			remaining, err := a.admin.DeleteKey(context.Background(), args[0])
			if err != nil {
				return cliError(err)
			}
			fmt.Printf("Deleted %s (%d keys remaining)\n", args[0], remaining)
			return nil
		},
	}
}

func newKeyResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset <key>",
		Short: "Clear the device binding of a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openAdminApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.admin.ResetKey(context.Background(), args[0]); err != nil {
				return cliError(err)
			}
			fmt.Printf("%s: Available for new device\n", args[0])
			return nil
		},
	}
}

func newKeySetActiveCmd(use, short string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <key>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openAdminApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.admin.SetActive(context.Background(), args[0], active); err != nil {
				return cliError(err)
			}
			fmt.Printf("%s: %sd\n", args[0], use)
			return nil
		},
	}
}

// cliError drops the kind prefix from business errors.
func cliError(err error) error {
	var svcErr *services.Error
	if errors.As(err, &svcErr) {
		return errors.New(svcErr.Message)
	}
	return err
}
