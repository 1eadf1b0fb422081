package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var eventLimit int

func init() {
	eventsCmd.Flags().IntVarP(&eventLimit, "limit", "n", 20, "Maximum entries to show")
	historyCmd.Flags().IntVarP(&eventLimit, "limit", "n", 20, "Maximum entries to show")
	rootCmd.AddCommand(eventsCmd, historyCmd)
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Show recent data set lifecycle events from the audit log",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		events, err := a.audit.Recent(eventLimit)
		if err != nil {
			return err
		}
		for _, e := range events {
			fmt.Printf("%s  %-10s %-40s %s (%s)\n",
				e.Time.Format(time.RFC3339), e.Kind, e.UUID, e.Message, e.Author)
		}
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the versioned store's commit history",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()

		commits, err := a.gfs.History(eventLimit)
		if err != nil {
			return err
		}
		for _, c := range commits {
			fmt.Printf("%s  %s  %-12s %s\n",
				c.Hash[:8], c.When.Format(time.RFC3339), c.Author, c.Message)
		}
		return nil
	},
}
