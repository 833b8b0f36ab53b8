package config

import (
	"os"
	"path/filepath"
)

// All gateway-owned directories live under home (~/.agrogw or AGROGW_HOME)
// so a deployment can be moved or backed up as one tree.

// ResolveHome returns the AGROGW_HOME directory.
// Priority: AGROGW_HOME env > ~/.agrogw/
func ResolveHome() string {
	if home := os.Getenv("AGROGW_HOME"); home != "" {
		return home
	}
	userHome, err := os.UserHomeDir()
	if err != nil {
		return ".agrogw"
	}
	return filepath.Join(userHome, ".agrogw")
}

// ResolveConfigPath finds the config file.
// Priority: --config flag > AGROGW_HOME/config.yaml
func ResolveConfigPath(flagPath string) string {
	if flagPath != "" {
		return flagPath
	}
	return filepath.Join(ResolveHome(), "config.yaml")
}

// Path returns the process-wide config file path (ResolveConfigPath("")).
func Path() string {
	return ResolveConfigPath("")
}

// DataDir returns the data directory, fixed at home/data.
func DataDir() string {
	return filepath.Join(ResolveHome(), "data")
}

// OutboxPath returns the outbox spool file, fixed at home/data/outbox.json.
func OutboxPath() string {
	return filepath.Join(DataDir(), "outbox.json")
}

// SubscriptionsPath returns the alert subscription file, fixed at
// home/data/subscriptions.json.
func SubscriptionsPath() string {
	return filepath.Join(DataDir(), "subscriptions.json")
}

// LogsDir returns the log directory, fixed at home/logs.
func LogsDir() string {
	return filepath.Join(ResolveHome(), "logs")
}
