package main

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/eliteGoblin/focusd/xgate/internal/config"
	"github.com/eliteGoblin/focusd/xgate/internal/policy"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the default config",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath()
		if _, err := os.Stat(path); err == nil {
			fmt.Printf("Config already exists: %s\n", path)
			return nil
		}
		if err := config.Save(path, config.Default()); err != nil {
			return err
		}
		fmt.Printf("Created config: %s\n", path)
		return nil
	},
}

var enableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Enable gating",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := config.Update(configPath(), func(c *config.Config) error {
			c.Enabled = true
			return nil
		}); err != nil {
			return err
		}
		fmt.Println("Enabled")
		return nil
	},
}

var disableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Disable gating",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := config.Update(configPath(), func(c *config.Config) error {
			c.Enabled = false
			return nil
		}); err != nil {
			return err
		}
		fmt.Println("Disabled")
		return nil
	},
}

var toggleCmd = &cobra.Command{
	Use:   "toggle",
	Short: "Toggle gating on/off",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Update(configPath(), func(c *config.Config) error {
			c.Enabled = !c.Enabled
			return nil
		})
		if err != nil {
			return err
		}
		fmt.Printf("Enabled: %t\n", c.Enabled)
		return nil
	},
}

var rewardCmd = &cobra.Command{
	Use:       "reward on|off",
	Short:     "Set reward mode (sites open only while the agent works)",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"on", "off"},
	RunE: func(cmd *cobra.Command, args []string) error {
		value := strings.ToLower(args[0])
		if value != "on" && value != "off" {
			return fmt.Errorf("reward must be 'on' or 'off'")
		}
		if _, err := config.Update(configPath(), func(c *config.Config) error {
			c.RewardMode = value == "on"
			return nil
		}); err != nil {
			return err
		}
		fmt.Printf("Reward mode: %s\n", value)
		return nil
	},
}

var blocklistCmd = &cobra.Command{
	Use:   "blocklist",
	Short: "Manage blocked domains",
}

var blocklistListCmd = &cobra.Command{
	Use:   "list",
	Short: "List blocked domains (expanded)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Ensure(configPath())
		if err != nil {
			return err
		}
		domains, invalid := policy.ExpandDomains(c.Blocklist, c.IncludeWWW)
		for _, d := range domains {
			fmt.Println(d)
		}
		for _, err := range invalid {
			fmt.Fprintf(os.Stderr, "ignored: %v\n", err)
		}
		return nil
	},
}

var blocklistAddCmd = &cobra.Command{
	Use:   "add DOMAIN...",
	Short: "Add blocked domains",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		normalized, err := normalizeAll(args)
		if err != nil {
			return err
		}
		if _, err := config.Update(configPath(), func(c *config.Config) error {
			for _, d := range normalized {
				if !slices.Contains(c.Blocklist, d) {
					c.Blocklist = append(c.Blocklist, d)
				}
			}
			return nil
		}); err != nil {
			return err
		}
		fmt.Println("Added")
		return nil
	},
}

var blocklistRemoveCmd = &cobra.Command{
	Use:   "remove DOMAIN...",
	Short: "Remove blocked domains",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		normalized, err := normalizeAll(args)
		if err != nil {
			return err
		}
		if _, err := config.Update(configPath(), func(c *config.Config) error {
			c.Blocklist = slices.DeleteFunc(c.Blocklist, func(d string) bool {
				n, err := policy.NormalizeDomain(d)
				return err == nil && slices.Contains(normalized, n)
			})
			return nil
		}); err != nil {
			return err
		}
		fmt.Println("Removed")
		return nil
	},
}

func normalizeAll(values []string) ([]string, error) {
	out := make([]string, 0, len(values))
	for _, v := range values {
		d, err := policy.NormalizeDomain(v)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

var timerCmd = &cobra.Command{
	Use:   "timer",
	Short: "Force the block on for a while",
}

var timerSetCmd = &cobra.Command{
	Use:     "set DURATION",
	Short:   "Block for DURATION from now (e.g. 45m, 1h 30m, 2d4h)",
	Example: "  xgate timer set 1h30m",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		secs, err := policy.ParseDurationSeconds(strings.Join(args, " "))
		if err != nil {
			return err
		}
		until := time.Now().Add(time.Duration(secs) * time.Second)
		if _, err := config.Update(configPath(), func(c *config.Config) error {
			c.BlockUntilUnix = float64(until.Unix())
			return nil
		}); err != nil {
			return err
		}
		fmt.Printf("Blocking until %s\n", until.Format("2006-01-02 15:04:05"))
		return nil
	},
}

var timerClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Cancel the timer",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := config.Update(configPath(), func(c *config.Config) error {
			c.BlockUntilUnix = 0
			return nil
		}); err != nil {
			return err
		}
		fmt.Println("Timer cleared")
		return nil
	},
}

var timerShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the remaining timer",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Ensure(configPath())
		if err != nil {
			return err
		}
		fmt.Println(describeTimer(c, time.Now()))
		return nil
	},
}

// describeTimer renders the timer state for humans.
func describeTimer(c config.Config, now time.Time) string {
	if !c.TimerActive(now) {
		return "No timer"
	}
	until := time.Unix(int64(c.BlockUntilUnix), 0)
	remaining := until.Sub(now).Round(time.Second)
	return fmt.Sprintf("Blocking until %s (%s left)", until.Format("2006-01-02 15:04:05"), remaining)
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Manage daily block windows",
}

var scheduleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List block windows",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Ensure(configPath())
		if err != nil {
			return err
		}
		if len(c.TimeBlocks) == 0 {
			fmt.Println("(none)")
			return nil
		}
		now := time.Now()
		for _, w := range c.TimeBlocks {
			marker := ""
			if policy.WindowActive(w, now) {
				marker = "  (active)"
			} else if _, err := policy.ParseWindow(w); err != nil {
				marker = "  (invalid, ignored)"
			}
			fmt.Printf("%s%s\n", w, marker)
		}
		return nil
	},
}

var scheduleAddCmd = &cobra.Command{
	Use:     "add WINDOW",
	Short:   "Add a daily window HH:MM-HH:MM (may wrap past midnight)",
	Example: "  xgate schedule add 09:00-12:00\n  xgate schedule add 22:00-07:00",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := policy.NormalizeWindow(strings.Join(args, " "))
		if err != nil {
			return err
		}
		if _, err := config.Update(configPath(), func(c *config.Config) error {
			if !slices.Contains(c.TimeBlocks, w) {
				c.TimeBlocks = append(c.TimeBlocks, w)
			}
			return nil
		}); err != nil {
			return err
		}
		fmt.Printf("Added %s\n", w)
		return nil
	},
}

var errWindowNotFound = errors.New("window not in schedule")

var scheduleRemoveCmd = &cobra.Command{
	Use:   "remove WINDOW",
	Short: "Remove a daily window",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := policy.NormalizeWindow(strings.Join(args, " "))
		if err != nil {
			return err
		}
		if _, err := config.Update(configPath(), func(c *config.Config) error {
			before := len(c.TimeBlocks)
			c.TimeBlocks = slices.DeleteFunc(c.TimeBlocks, func(s string) bool {
				n, err := policy.NormalizeWindow(s)
				return err == nil && n == w
			})
			if len(c.TimeBlocks) == before {
				return fmt.Errorf("%w: %s", errWindowNotFound, w)
			}
			return nil
		}); err != nil {
			return err
		}
		fmt.Printf("Removed %s\n", w)
		return nil
	},
}

func init() {
	blocklistCmd.AddCommand(blocklistListCmd, blocklistAddCmd, blocklistRemoveCmd)
	timerCmd.AddCommand(timerSetCmd, timerClearCmd, timerShowCmd)
	scheduleCmd.AddCommand(scheduleListCmd, scheduleAddCmd, scheduleRemoveCmd)

	rootCmd.AddCommand(initCmd, enableCmd, disableCmd, toggleCmd, rewardCmd)
	rootCmd.AddCommand(blocklistCmd, timerCmd, scheduleCmd)
}
