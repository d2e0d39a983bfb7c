// Package conversion executes the online/offline transition for a tutoring
// session: optimistic cache mutation, remote call, and success/failure
// reconciliation against every view that holds the session.
package conversion

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tutorlane/liveclient/internal/models"
	"github.com/tutorlane/liveclient/internal/sessioncache"
)

// SessionService is the remote side of a conversion transaction.
type SessionService interface {
	ConvertToOnline(ctx context.Context, sessionID uuid.UUID) (*models.OnlineSession, error)
	RevertToOffline(ctx context.Context, sessionID uuid.UUID) error
}

// Notifier surfaces conversion outcomes to the user's connected UIs.
type Notifier interface {
	ConversionSucceeded(userID uuid.UUID, online *models.OnlineSession)
	ReversionSucceeded(userID uuid.UUID, sessionID uuid.UUID)
	ConversionFailed(userID uuid.UUID, sessionID uuid.UUID, reason *ConversionError)
}

// RoomWaiter closes the read-after-write gap on the live sessions view
// after a successful conversion. Implemented by consistency.Poller.
type RoomWaiter interface {
	WaitForRoom(ctx context.Context, roomID string) bool
}

// Coordinator runs one conversion transaction at a time per session ID.
// The cache is patched before the remote call is dispatched and restored
// before any failure is surfaced, so the UI never shows a confirmed state
// that was actually rejected.
type Coordinator struct {
	cache  *sessioncache.Store
	api    SessionService
	notify Notifier
	waiter RoomWaiter
	log    *zap.Logger

	// base context for the detached poller; the poller only refreshes a
	// read cache, so abandoning it on shutdown is safe.
	pollCtx context.Context

	mu       sync.Mutex
	inflight map[uuid.UUID]struct{}
}

// NewCoordinator wires a conversion coordinator. waiter and notify may be
// nil (tests, headless runs).
func NewCoordinator(cache *sessioncache.Store, api SessionService, notify Notifier, waiter RoomWaiter, pollCtx context.Context, log *zap.Logger) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	if pollCtx == nil {
		pollCtx = context.Background()
	}
	return &Coordinator{
		cache:    cache,
		api:      api,
		notify:   notify,
		waiter:   waiter,
		pollCtx:  pollCtx,
		log:      log,
		inflight: make(map[uuid.UUID]struct{}),
	}
}

func (c *Coordinator) acquire(sessionID uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, busy := c.inflight[sessionID]; busy {
		return false
	}
	c.inflight[sessionID] = struct{}{}
	return true
}

func (c *Coordinator) release(sessionID uuid.UUID) {
	c.mu.Lock()
	delete(c.inflight, sessionID)
	c.mu.Unlock()
}

// snapshotPrefixes are the view families a conversion can touch.
var snapshotPrefixes = []sessioncache.Key{
	sessioncache.PrefixSessions,
	sessioncache.PrefixLive,
	sessioncache.PrefixOnline,
}

func setOnline(sessionID uuid.UUID, online bool) func([]models.Session) []models.Session {
	return func(content []models.Session) []models.Session {
		for i := range content {
			if content[i].ID == sessionID {
				content[i].IsOnline = online
			}
		}
		return content
	}
}

// ConvertToOnline transitions a session into a live room. On success the
// affected view prefixes are invalidated and the consistency poller is
// started to wait for the live view to catch up.
func (c *Coordinator) ConvertToOnline(ctx context.Context, userID, sessionID uuid.UUID) (*models.OnlineSession, error) {
	if !c.acquire(sessionID) {
		return nil, ErrConversionInFlight
	}
	defer c.release(sessionID)

	snap := c.cache.Snapshot(snapshotPrefixes...)
	if _, err := c.cache.PatchSessions(sessioncache.PrefixSessions, setOnline(sessionID, true)); err != nil {
		// A view that no longer decodes is dropped from the patch, not a
		// reason to abort the conversion.
		c.log.Warn("optimistic patch", zap.Error(err), zap.String("session_id", sessionID.String()))
	}

	online, err := c.api.ConvertToOnline(ctx, sessionID)
	if err != nil {
		c.cache.Restore(snap)
		reason := Classify(err)
		c.log.Info("conversion rejected",
			zap.String("session_id", sessionID.String()),
			zap.String("reason", string(reason.Reason)),
			zap.Error(err),
		)
		if c.notify != nil {
			c.notify.ConversionFailed(userID, sessionID, reason)
		}
		return nil, reason
	}

	if c.notify != nil {
		c.notify.ConversionSucceeded(userID, online)
	}
	c.invalidateViews()

	if c.waiter != nil && online.RoomID != "" {
		go c.waiter.WaitForRoom(c.pollCtx, online.RoomID)
	}

	c.log.Info("session converted to online",
		zap.String("session_id", sessionID.String()),
		zap.String("room_id", online.RoomID),
	)
	return online, nil
}

// RevertToOffline takes a converted session back offline. Mirrors the
// conversion transaction without the consistency poller.
func (c *Coordinator) RevertToOffline(ctx context.Context, userID, sessionID uuid.UUID) error {
	if !c.acquire(sessionID) {
		return ErrConversionInFlight
	}
	defer c.release(sessionID)

	snap := c.cache.Snapshot(snapshotPrefixes...)
	if _, err := c.cache.PatchSessions(sessioncache.PrefixSessions, setOnline(sessionID, false)); err != nil {
		c.log.Warn("optimistic patch", zap.Error(err), zap.String("session_id", sessionID.String()))
	}

	if err := c.api.RevertToOffline(ctx, sessionID); err != nil {
		c.cache.Restore(snap)
		reason := Classify(err)
		c.log.Info("reversion rejected",
			zap.String("session_id", sessionID.String()),
			zap.String("reason", string(reason.Reason)),
			zap.Error(err),
		)
		if c.notify != nil {
			c.notify.ConversionFailed(userID, sessionID, reason)
		}
		return reason
	}

	if c.notify != nil {
		c.notify.ReversionSucceeded(userID, sessionID)
	}
	c.invalidateViews()

	c.log.Info("session reverted to offline", zap.String("session_id", sessionID.String()))
	return nil
}

func (c *Coordinator) invalidateViews() {
	c.cache.Invalidate(sessioncache.PrefixSessions)
	c.cache.Invalidate(sessioncache.PrefixLive)
	c.cache.Invalidate(sessioncache.PrefixOnline)
}
