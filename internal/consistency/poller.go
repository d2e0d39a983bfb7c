// Package consistency closes the read-after-write gap between a successful
// conversion and the server's asynchronously refreshed live sessions view.
// The conversion itself has already succeeded; this only chases local
// visibility, so giving up is a staleness condition, not a failure.
package consistency

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/tutorlane/liveclient/internal/models"
	"github.com/tutorlane/liveclient/internal/sessioncache"
)

const (
	// DefaultMaxAttempts bounds the number of forced refetches.
	DefaultMaxAttempts = 5
	// DefaultInterval is the delay between attempts.
	DefaultInterval = 500 * time.Millisecond
)

// LiveFetcher reads the authoritative current-live view.
type LiveFetcher interface {
	CurrentLiveSession(ctx context.Context) (*models.OnlineSession, error)
}

// Poller repeatedly forces a refetch of the current-live view until it
// reflects a newly created room or the attempt budget runs out.
type Poller struct {
	cache    *sessioncache.Store
	api      LiveFetcher
	attempts int
	interval time.Duration
	log      *zap.Logger
}

// NewPoller creates a poller with the default budget.
func NewPoller(cache *sessioncache.Store, api LiveFetcher, log *zap.Logger) *Poller {
	if log == nil {
		log = zap.NewNop()
	}
	return &Poller{
		cache:    cache,
		api:      api,
		attempts: DefaultMaxAttempts,
		interval: DefaultInterval,
		log:      log,
	}
}

// WithBudget overrides attempts and interval. Used by tests.
func (p *Poller) WithBudget(attempts int, interval time.Duration) *Poller {
	p.attempts = attempts
	p.interval = interval
	return p
}

// WaitForRoom polls until the cached current-live view names roomID.
// Returns true when the view caught up, false when the budget was
// exhausted or ctx was cancelled. Exhaustion is deliberately silent: the
// room exists server-side regardless of local visibility, and the next
// natural refetch will pick it up.
func (p *Poller) WaitForRoom(ctx context.Context, roomID string) bool {
	for attempt := 1; attempt <= p.attempts; attempt++ {
		var live models.OnlineSession
		if p.cache.GetAs(sessioncache.KeyCurrentLive, &live) && live.RoomID == roomID {
			p.log.Debug("live view caught up", zap.String("room_id", roomID), zap.Int("attempt", attempt))
			return true
		}

		// Invalidation alone is not enough here: force an explicit refetch
		// and write it through.
		fetched, err := p.api.CurrentLiveSession(ctx)
		if err != nil {
			p.log.Debug("live view refetch failed", zap.Int("attempt", attempt), zap.Error(err))
		} else if fetched != nil {
			if putErr := p.cache.Put(sessioncache.KeyCurrentLive, fetched); putErr != nil {
				p.log.Debug("live view cache write failed", zap.Error(putErr))
			}
			if fetched.RoomID == roomID {
				p.log.Debug("live view caught up", zap.String("room_id", roomID), zap.Int("attempt", attempt))
				return true
			}
		}

		if attempt == p.attempts {
			break
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(p.interval):
		}
	}
	p.log.Debug("live view still stale after polling", zap.String("room_id", roomID), zap.Int("attempts", p.attempts))
	return false
}
