//go:build windows

package config

func consoleUserHome() string { return "" }
