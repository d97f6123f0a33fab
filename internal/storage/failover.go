package storage

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"kinderbook/internal/model"
)

// Backend is a snapshot store usable by the ledger and the failover wrapper.
type Backend interface {
	Load(ctx context.Context, userID string) (model.Snapshot, error)
	Save(ctx context.Context, userID string, snapshot model.Snapshot) error
	Users(ctx context.Context) ([]string, error)
	Ping(ctx context.Context) error
}

const recheckInterval = time.Minute

// Failover pairs a primary with a fallback that receives every write.
// Reads consult both and serve the snapshot with the higher Version, copying
// it to the stale side, so writes made while primary was down survive
// restarts and reach primary once it recovers.
type Failover struct {
	primary  Backend
	fallback Backend
	logger   *zerolog.Logger

	isDown    atomic.Bool
	mu        sync.Mutex
	lastCheck time.Time
}

func NewFailover(primary, fallback Backend, logger *zerolog.Logger) *Failover {
	return &Failover{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

// usePrimary reports whether primary should be tried now.
func (f *Failover) usePrimary() bool {
	if !f.isDown.Load() {
		return true
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if time.Since(f.lastCheck) > recheckInterval {
		f.lastCheck = time.Now()
		return true
	}
	return false
}

func (f *Failover) markDown(op string, err error) {
	f.mu.Lock()
	f.lastCheck = time.Now()
	f.mu.Unlock()
	if !f.isDown.Swap(true) {
		f.logger.Warn().Err(err).Str("op", op).Msg("primary storage failed, switching to fallback")
	}
}

func (f *Failover) markUp() {
	if f.isDown.Swap(false) {
		f.logger.Info().Msg("primary storage recovered")
	}
}

func (f *Failover) Load(ctx context.Context, userID string) (model.Snapshot, error) {
	if !f.usePrimary() {
		return f.fallback.Load(ctx, userID)
	}

	primary, err := f.primary.Load(ctx, userID)
	if err != nil {
		f.markDown("load", err)
		return f.fallback.Load(ctx, userID)
	}
	f.markUp()

	fallback, err := f.fallback.Load(ctx, userID)
	if err != nil {
		f.logger.Warn().Err(err).Str("user_id", userID).Msg("fallback load failed, serving primary")
		return primary, nil
	}

	switch {
	case fallback.Version > primary.Version:
		if err := f.primary.Save(ctx, userID, fallback); err != nil {
			f.markDown("resync", err)
		} else {
			f.logger.Info().Str("user_id", userID).Int64("version", fallback.Version).Msg("primary resynced from fallback")
		}
		return fallback, nil
	case primary.Version > fallback.Version:
		if err := f.fallback.Save(ctx, userID, primary); err != nil {
			f.logger.Warn().Err(err).Str("user_id", userID).Msg("fallback resync failed")
		}
	}
	return primary, nil
}

func (f *Failover) Save(ctx context.Context, userID string, snapshot model.Snapshot) error {
	if err := f.fallback.Save(ctx, userID, snapshot); err != nil {
		return err
	}

	if f.usePrimary() {
		if err := f.primary.Save(ctx, userID, snapshot); err != nil {
			f.markDown("save", err)
			return nil
		}
		f.markUp()
	}
	return nil
}

// Users returns the union of users known to either backend.
func (f *Failover) Users(ctx context.Context) ([]string, error) {
	users, err := f.fallback.Users(ctx)
	if err != nil {
		return nil, err
	}

	if f.usePrimary() {
		primaryUsers, err := f.primary.Users(ctx)
		if err != nil {
			f.markDown("users", err)
		} else {
			f.markUp()
			users = append(users, primaryUsers...)
		}
	}

	seen := make(map[string]struct{}, len(users))
	out := make([]string, 0, len(users))
	for _, u := range users {
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	sort.Strings(out)
	return out, nil
}

// Ping succeeds while the fallback is reachable.
func (f *Failover) Ping(ctx context.Context) error {
	return f.fallback.Ping(ctx)
}

// Degraded reports whether requests are currently served by the fallback.
func (f *Failover) Degraded() bool {
	return f.isDown.Load()
}
