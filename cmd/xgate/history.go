package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/eliteGoblin/focusd/xgate/internal/config"
	"github.com/eliteGoblin/focusd/xgate/internal/history"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent block decision changes",
	Long:  `Lists the transitions journaled by the daemon. Requires history_db in the config.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Ensure(configPath())
		if err != nil {
			return err
		}
		if cfg.HistoryDB == "" {
			return errors.New("history is disabled; set history_db in the config")
		}

		store, err := history.Open(config.ExpandHome(cfg.HistoryDB))
		if err != nil {
			return err
		}
		defer store.Close()

		transitions, err := store.Recent(cmd.Context(), historyLimit)
		if err != nil {
			return err
		}
		if len(transitions) == 0 {
			fmt.Println("(no transitions)")
			return nil
		}
		for _, t := range transitions {
			verdict := "allow"
			if t.Block {
				verdict = "block"
			}
			line := fmt.Sprintf("%s  %-5s  reasons=%s evidence=%s domains=%d",
				time.Unix(t.TimestampUnix, 0).Format("2006-01-02 15:04:05"),
				verdict, orNone(t.Reasons), orNone(t.Evidence), t.Domains)
			if !t.HostsChanged {
				line += " (hosts unchanged)"
			}
			fmt.Fprintln(os.Stdout, line)
		}
		return nil
	},
}

func orNone(values []string) string {
	if len(values) == 0 {
		return "-"
	}
	return strings.Join(values, ",")
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Number of transitions to show")
	rootCmd.AddCommand(historyCmd)
}
