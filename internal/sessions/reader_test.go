package sessions

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutorlane/liveclient/internal/models"
	"github.com/tutorlane/liveclient/internal/sessioncache"
)

type fakeAPI struct {
	page      *models.Page
	live      *models.OnlineSession
	online    []models.OnlineSession
	err       error
	pageCalls int
	liveCalls int
}

func (f *fakeAPI) SessionsByMonth(ctx context.Context, month string, page, size int) (*models.Page, error) {
	f.pageCalls++
	return f.page, f.err
}

func (f *fakeAPI) CurrentLiveSession(ctx context.Context) (*models.OnlineSession, error) {
	f.liveCalls++
	return f.live, f.err
}

func (f *fakeAPI) OnlineSessions(ctx context.Context) ([]models.OnlineSession, error) {
	return f.online, f.err
}

func TestByMonthFetchesOnceThenServesCache(t *testing.T) {
	store := sessioncache.NewStore(nil)
	api := &fakeAPI{page: &models.Page{Content: []models.Session{{ID: uuid.New()}}, Size: 20, TotalElements: 1, TotalPages: 1}}
	r := NewReader(store, api, nil)

	first, err := r.ByMonth(context.Background(), "2024-05", 0, 20)
	require.NoError(t, err)
	second, err := r.ByMonth(context.Background(), "2024-05", 0, 20)
	require.NoError(t, err)

	assert.Equal(t, 1, api.pageCalls)
	assert.Equal(t, first.Content[0].ID, second.Content[0].ID)
}

func TestByMonthRefetchesAfterInvalidation(t *testing.T) {
	store := sessioncache.NewStore(nil)
	api := &fakeAPI{page: &models.Page{Size: 20}}
	r := NewReader(store, api, nil)

	_, err := r.ByMonth(context.Background(), "2024-05", 0, 20)
	require.NoError(t, err)
	store.Invalidate(sessioncache.PrefixSessions)

	_, err = r.ByMonth(context.Background(), "2024-05", 0, 20)
	require.NoError(t, err)
	assert.Equal(t, 2, api.pageCalls)
}

func TestByMonthPropagatesRemoteError(t *testing.T) {
	store := sessioncache.NewStore(nil)
	api := &fakeAPI{err: errors.New("service down")}
	r := NewReader(store, api, nil)

	_, err := r.ByMonth(context.Background(), "2024-05", 0, 20)
	assert.Error(t, err)
}

func TestCurrentLiveDropsViewWhenNothingLive(t *testing.T) {
	store := sessioncache.NewStore(nil)
	require.NoError(t, store.Put(sessioncache.KeyCurrentLive, models.OnlineSession{RoomID: "stale-room"}))
	store.Invalidate(sessioncache.PrefixLive)

	api := &fakeAPI{live: nil}
	r := NewReader(store, api, nil)

	got, err := r.CurrentLive(context.Background())
	require.NoError(t, err)
	assert.Nil(t, got)

	_, ok := store.Get(sessioncache.KeyCurrentLive)
	assert.False(t, ok, "stale room view must not linger")
}

func TestCurrentLiveServesCachedRoom(t *testing.T) {
	store := sessioncache.NewStore(nil)
	require.NoError(t, store.Put(sessioncache.KeyCurrentLive, models.OnlineSession{RoomID: "room-1"}))

	api := &fakeAPI{}
	r := NewReader(store, api, nil)

	got, err := r.CurrentLive(context.Background())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "room-1", got.RoomID)
	assert.Zero(t, api.liveCalls)
}

func TestOnlineWritesThrough(t *testing.T) {
	store := sessioncache.NewStore(nil)
	api := &fakeAPI{online: []models.OnlineSession{{RoomID: "room-2"}}}
	r := NewReader(store, api, nil)

	got, err := r.Online(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)

	var cached []models.OnlineSession
	require.True(t, store.GetAs(sessioncache.KeyOnlineList, &cached))
	assert.Equal(t, "room-2", cached[0].RoomID)
}
