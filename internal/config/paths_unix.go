//go:build !windows

package config

import (
	"os"
	"os/user"
	"strconv"
	"syscall"
)

// consoleUserHome resolves the owner of /dev/console (the logged-in macOS user).
func consoleUserHome() string {
	info, err := os.Stat("/dev/console")
	if err != nil {
		return ""
	}
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok || st.Uid == 0 {
		return ""
	}
	u, err := user.LookupId(strconv.FormatUint(uint64(st.Uid), 10))
	if err != nil {
		return ""
	}
	return u.HomeDir
}
