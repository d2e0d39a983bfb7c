// Package sessions serves the agent's read views of session records:
// cache-first, refetching from the session service when a view is missing
// or has been invalidated.
package sessions

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/tutorlane/liveclient/internal/models"
	"github.com/tutorlane/liveclient/internal/sessioncache"
)

// Service is the remote side of the read views.
type Service interface {
	SessionsByMonth(ctx context.Context, month string, page, size int) (*models.Page, error)
	CurrentLiveSession(ctx context.Context) (*models.OnlineSession, error)
	OnlineSessions(ctx context.Context) ([]models.OnlineSession, error)
}

// Reader is a read-through view cache over the session service.
type Reader struct {
	cache *sessioncache.Store
	api   Service
	log   *zap.Logger
}

// NewReader creates a read-through reader.
func NewReader(cache *sessioncache.Store, api Service, log *zap.Logger) *Reader {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reader{cache: cache, api: api, log: log}
}

// ByMonth returns one page of the sessions-in-month view.
func (r *Reader) ByMonth(ctx context.Context, month string, page, size int) (*models.Page, error) {
	key := sessioncache.SessionsKey(month, page)
	if !r.cache.IsStale(key) {
		var cached models.Page
		if r.cache.GetAs(key, &cached) {
			return &cached, nil
		}
	}
	fetched, err := r.api.SessionsByMonth(ctx, month, page, size)
	if err != nil {
		return nil, fmt.Errorf("sessions by month: %w", err)
	}
	if err := r.cache.Put(key, fetched); err != nil {
		r.log.Warn("cache write", zap.Error(err))
	}
	return fetched, nil
}

// CurrentLive returns the caller's live session, or nil when none is live.
func (r *Reader) CurrentLive(ctx context.Context) (*models.OnlineSession, error) {
	key := sessioncache.KeyCurrentLive
	if !r.cache.IsStale(key) {
		var cached models.OnlineSession
		if r.cache.GetAs(key, &cached) && cached.RoomID != "" {
			return &cached, nil
		}
	}
	fetched, err := r.api.CurrentLiveSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("current live session: %w", err)
	}
	if fetched == nil {
		// No live session; drop any leftover view so a stale room does not
		// linger.
		r.cache.Drop(key)
		return nil, nil
	}
	if err := r.cache.Put(key, fetched); err != nil {
		r.log.Warn("cache write", zap.Error(err))
	}
	return fetched, nil
}

// Online returns the online sessions listing.
func (r *Reader) Online(ctx context.Context) ([]models.OnlineSession, error) {
	key := sessioncache.KeyOnlineList
	if !r.cache.IsStale(key) {
		var cached []models.OnlineSession
		if r.cache.GetAs(key, &cached) {
			return cached, nil
		}
	}
	fetched, err := r.api.OnlineSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("online sessions: %w", err)
	}
	if err := r.cache.Put(key, fetched); err != nil {
		r.log.Warn("cache write", zap.Error(err))
	}
	return fetched, nil
}
