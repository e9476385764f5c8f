package store

import (
	"context"
	"fmt"
	"time"
)

const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
	DriverBadger = "badger"
)

// Options selects and configures a backend.
type Options struct {
	Driver string
	// Path is the SQLite file or the Badger directory.
	Path      string
	RedisAddr string
	RedisTTL  time.Duration
}

// Open returns the backend named by opts.Driver.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Driver {
	case DriverMemory:
		return NewMemoryStore(), nil
	case DriverSQLite, "":
		return OpenSQLite(opts.Path)
	case DriverRedis:
		return OpenRedis(ctx, opts.RedisAddr, opts.RedisTTL)
	case DriverBadger:
		return OpenBadger(BadgerConfig{Path: opts.Path, SyncWrites: true})
	default:
		return nil, fmt.Errorf("unknown store driver %q", opts.Driver)
	}
}
