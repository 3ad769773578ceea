package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newLogsCmd() *cobra.Command {
	var (
		key        string
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the usage log, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openAdminApp()
			if err != nil {
				return err
			}
			defer a.Close()

			page, err := a.admin.Logs(context.Background(), key, limit)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(page)
			}

			fmt.Printf("%-20s %-24s %-18s %-9s %-16s %s\n", "TIME", "KEY", "HWID", "TYPE", "USER", "IP")
			for _, e := range page.Logs {
				fmt.Printf("%-20s %-24s %-18s %-9s %-16s %s\n",
					e.Timestamp.Local().Format(time.DateTime), e.Key, e.HWID, e.Type, e.Username, e.IP)
			}
			fmt.Printf("\n%d of %d entries\n", len(page.Logs), page.TotalLogs)
			return nil
		},
	}

	cmd.Flags().StringVar(&key, "key", "", "only show entries for this key")
	cmd.Flags().IntVarP(&limit, "limit", "n", 100, "maximum number of entries")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	return cmd
}

func newStatsCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show key and usage statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openAdminApp()
			if err != nil {
				return err
			}
			defer a.Close()

			s, err := a.admin.Stats(context.Background())
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(s)
			}

			lastActivity := "never"
			if s.LastActivity != nil {
				lastActivity = s.LastActivity.Local().Format(time.DateTime)
			}
			fmt.Printf("Keys:          %d (%d used, %d unused)\n", s.TotalKeys, s.UsedKeys, s.UnusedKeys)
			fmt.Printf("Usage:         %d total, %d today, %d this week\n", s.TotalUsage, s.TodayUsage, s.WeekUsage)
			fmt.Printf("Unique users:  %d\n", s.UniqueUsers)
			fmt.Printf("Bound devices: %d\n", s.UniqueHWIDs)
			fmt.Printf("Seen devices:  %d\n", s.LoggedHWIDs)
			fmt.Printf("Rejected:      %d\n", s.RejectedAttempts)
			fmt.Printf("Last activity: %s\n", lastActivity)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	return cmd
}
