package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
)

// BreakerConfig configures BreakerStore.
type BreakerConfig struct {
	Name             string
	FailureThreshold uint32
	Timeout          time.Duration
	Logger           *slog.Logger
}

// BreakerStore guards a Store with a circuit breaker so an unreachable
// database fails fast. Every failure, including an open breaker, is reported
// as ErrStoreUnavailable.
type BreakerStore struct {
	next Store
	cb   *gobreaker.CircuitBreaker[[]string]
}

// NewBreakerStore wraps next.
func NewBreakerStore(next Store, cfg BreakerConfig) *BreakerStore {
	if cfg.Name == "" {
		cfg.Name = "rbac-store"
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	logger := cfg.Logger
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if logger != nil {
				logger.Warn("rbac store breaker state change",
					slog.String("breaker", name),
					slog.String("from", from.String()),
					slog.String("to", to.String()))
			}
		},
	}
	return &BreakerStore{next: next, cb: gobreaker.NewCircuitBreaker[[]string](settings)}
}

// FindRolesForPrincipal implements Store.
func (b *BreakerStore) FindRolesForPrincipal(ctx context.Context, principalID int64) ([]string, error) {
	names, err := b.cb.Execute(func() ([]string, error) {
		return b.next.FindRolesForPrincipal(ctx, principalID)
	})
	return names, unavailable(err)
}

// FindPermissionsForRoles implements Store.
func (b *BreakerStore) FindPermissionsForRoles(ctx context.Context, roles []string) ([]string, error) {
	names, err := b.cb.Execute(func() ([]string, error) {
		return b.next.FindPermissionsForRoles(ctx, roles)
	})
	return names, unavailable(err)
}

// State reports the breaker state for diagnostics.
func (b *BreakerStore) State() string {
	return b.cb.State().String()
}

func unavailable(err error) error {
	if err == nil || errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}

var _ Store = (*BreakerStore)(nil)
