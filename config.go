package kvdb

import (
	"go.uber.org/zap"
)

// Config configures a Store.
type Config struct {
	// DirPath is the directory holding one file per shard.
	DirPath string

	// SyncOnWrite flushes the owning shard after every successful Set.
	// Off by default: the design gives no durability guarantee, callers
	// that need one opt in here or call Store.Sync themselves.
	SyncOnWrite bool

	// Logger receives structured open/split events. Nil means no logging.
	Logger *zap.Logger
}

// DefaultConfig returns the default store configuration for path.
func DefaultConfig(path string) Config {
	return Config{
		DirPath:     path,
		SyncOnWrite: false,
		Logger:      nil,
	}
}
