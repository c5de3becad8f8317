// Package ledger persists one entry per pipeline run.
//
// Backends register a Factory under an engine name from their init function
// and are constructed through New, so callers stay independent of any
// particular database. Import csvsift/internal/ledger/all to enable every
// built-in engine.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"csvsift/internal/logger"
)

// Table is the ledger table name on every engine.
const Table = "csvsift_runs"

// ErrUnknownEngine is returned by New for an engine nobody registered.
var ErrUnknownEngine = errors.New("unknown ledger engine")

// Entry is one recorded run.
type Entry struct {
	ID          string
	Input       string
	Output      string
	Processed   int64
	Skipped     int64
	Status      string // committed | deleted_empty | deleted_error
	Fingerprint string
	StartedAt   time.Time
	Duration    time.Duration
	Error       string
}

// Repository stores and lists run entries.
type Repository interface {
	// EnsureSchema creates the ledger table if it does not exist.
	EnsureSchema(ctx context.Context) error
	// Record inserts e. An entry whose ID already exists is an error.
	Record(ctx context.Context, e Entry) error
	// Recent returns up to limit entries, newest first.
	Recent(ctx context.Context, limit int) ([]Entry, error)
	// Close releases the underlying connection pool.
	Close() error
}

// Config selects and configures a backend.
type Config struct {
	Engine string
	DSN    string
	Logger logger.Logger
	// ConnectTimeout bounds the connection retry loop; zero means one minute.
	ConnectTimeout time.Duration
}

// Factory builds a Repository for one engine.
type Factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register makes a backend available under engine. It panics if f is nil or
// engine is already taken.
func Register(engine string, f Factory) {
	mu.Lock()
	defer mu.Unlock()

	if f == nil {
		panic("ledger: Register factory is nil for " + engine)
	}
	if _, dup := factories[engine]; dup {
		panic("ledger: Register called twice for " + engine)
	}
	factories[engine] = f
}

// Engines lists registered engine names in sorted order.
func Engines() []string {
	mu.RLock()
	defer mu.RUnlock()

	names := make([]string, 0, len(factories))
	for n := range factories {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// New opens the Repository registered for cfg.Engine.
func New(ctx context.Context, cfg Config) (Repository, error) {
	mu.RLock()
	f, ok := factories[cfg.Engine]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (registered: %v)", ErrUnknownEngine, cfg.Engine, Engines())
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNoopLogger()
	}
	return f(ctx, cfg)
}

// WaitReady calls ping with exponential backoff until it succeeds, ctx is
// done, or cfg.ConnectTimeout elapses.
func WaitReady(ctx context.Context, cfg Config, ping func(context.Context) error) error {
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = time.Minute
	if cfg.ConnectTimeout > 0 {
		policy.MaxElapsedTime = cfg.ConnectTimeout
	}
	log := cfg.Logger
	if log == nil {
		log = logger.NewNoopLogger()
	}

	attempt := 1
	return backoff.Retry(func() error {
		err := ping(ctx)
		if err != nil {
			log.Info("waiting for ledger database", zap.String("engine", cfg.Engine), zap.Int("attempt", attempt))
			attempt++
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
		}
		return err
	}, backoff.WithContext(policy, ctx))
}
