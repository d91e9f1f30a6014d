package instance

import (
	"os"

	"github.com/matheus3301/chatsync/internal/config"
)

const (
	DefaultName = "main"
	// EnvName selects the instance when no --instance flag is given.
	EnvName = "CHATSYNC_INSTANCE"
)

// Resolve picks the instance chatd, chattui and chatctl operate on. The
// --instance flag wins, then $CHATSYNC_INSTANCE, then default_instance from
// the shared config.toml, then DefaultName. An unreadable config is treated
// as absent so a broken file never blocks the admin tools.
func Resolve(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv(EnvName); env != "" {
		return env
	}
	if cfg, err := config.Load(ConfigPath()); err == nil && cfg.DefaultInstance != "" {
		return cfg.DefaultInstance
	}
	return DefaultName
}
