package conversion

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutorlane/liveclient/internal/models"
	"github.com/tutorlane/liveclient/internal/sessionapi"
	"github.com/tutorlane/liveclient/internal/sessioncache"
)

type fakeService struct {
	mu         sync.Mutex
	convertErr error
	revertErr  error
	online     *models.OnlineSession
	calls      int
	block      chan struct{} // when set, ConvertToOnline waits until closed
}

func (f *fakeService) ConvertToOnline(ctx context.Context, sessionID uuid.UUID) (*models.OnlineSession, error) {
	f.mu.Lock()
	f.calls++
	block := f.block
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	if f.convertErr != nil {
		return nil, f.convertErr
	}
	return f.online, nil
}

func (f *fakeService) RevertToOffline(ctx context.Context, sessionID uuid.UUID) error {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.revertErr
}

type fakeNotifier struct {
	mu        sync.Mutex
	succeeded []*models.OnlineSession
	reverted  []uuid.UUID
	failed    []*ConversionError
}

func (f *fakeNotifier) ConversionSucceeded(userID uuid.UUID, online *models.OnlineSession) {
	f.mu.Lock()
	f.succeeded = append(f.succeeded, online)
	f.mu.Unlock()
}

func (f *fakeNotifier) ReversionSucceeded(userID uuid.UUID, sessionID uuid.UUID) {
	f.mu.Lock()
	f.reverted = append(f.reverted, sessionID)
	f.mu.Unlock()
}

func (f *fakeNotifier) ConversionFailed(userID uuid.UUID, sessionID uuid.UUID, reason *ConversionError) {
	f.mu.Lock()
	f.failed = append(f.failed, reason)
	f.mu.Unlock()
}

type fakeWaiter struct {
	mu    sync.Mutex
	rooms []string
	done  chan struct{}
}

func (f *fakeWaiter) WaitForRoom(ctx context.Context, roomID string) bool {
	f.mu.Lock()
	f.rooms = append(f.rooms, roomID)
	f.mu.Unlock()
	if f.done != nil {
		close(f.done)
	}
	return true
}

// waitForCall blocks until the fake service has seen at least one call,
// so the test knows the transaction holds its session slot.
func waitForCall(svc *fakeService) {
	for {
		svc.mu.Lock()
		started := svc.calls > 0
		svc.mu.Unlock()
		if started {
			return
		}
		time.Sleep(time.Millisecond)
	}
}

func seedCache(t *testing.T, sessionID uuid.UUID) *sessioncache.Store {
	t.Helper()
	store := sessioncache.NewStore(nil)
	require.NoError(t, store.Put(sessioncache.SessionsKey("2024-05", 0), models.Page{
		Content: []models.Session{{ID: sessionID, Status: models.StatusConfirmed}},
		Size:    20, TotalElements: 1, TotalPages: 1,
	}))
	require.NoError(t, store.Put(sessioncache.KeyOnlineList, []models.OnlineSession{}))
	return store
}

func TestConvertSuccessInvalidatesAndNotifies(t *testing.T) {
	sessionID := uuid.New()
	userID := uuid.New()
	store := seedCache(t, sessionID)
	online := &models.OnlineSession{ID: uuid.New(), SessionID: sessionID, RoomID: "room-7"}
	svc := &fakeService{online: online}
	notify := &fakeNotifier{}
	waiter := &fakeWaiter{done: make(chan struct{})}

	co := NewCoordinator(store, svc, notify, waiter, context.Background(), nil)

	got, err := co.ConvertToOnline(context.Background(), userID, sessionID)
	require.NoError(t, err)
	assert.Equal(t, "room-7", got.RoomID)

	assert.True(t, store.IsStale(sessioncache.SessionsKey("2024-05", 0)))
	assert.True(t, store.IsStale(sessioncache.KeyOnlineList))

	require.Len(t, notify.succeeded, 1)
	assert.Empty(t, notify.failed)

	<-waiter.done
	waiter.mu.Lock()
	defer waiter.mu.Unlock()
	assert.Equal(t, []string{"room-7"}, waiter.rooms)
}

func TestConvertFailureRollsBackCache(t *testing.T) {
	tests := []struct {
		name       string
		remote     error
		wantReason Reason
	}{
		{"forbidden", &sessionapi.APIError{StatusCode: http.StatusForbidden}, ReasonForbidden},
		{"already online", &sessionapi.APIError{StatusCode: http.StatusConflict}, ReasonAlreadyOnline},
		{"not convertible", &sessionapi.APIError{StatusCode: http.StatusBadRequest}, ReasonNotConvertible},
		{"transport failure", errors.New("dial tcp: connection refused"), ReasonUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sessionID := uuid.New()
			store := seedCache(t, sessionID)
			before, ok := store.Get(sessioncache.SessionsKey("2024-05", 0))
			require.True(t, ok)

			svc := &fakeService{convertErr: tt.remote}
			notify := &fakeNotifier{}
			co := NewCoordinator(store, svc, notify, nil, context.Background(), nil)

			_, err := co.ConvertToOnline(context.Background(), uuid.New(), sessionID)
			require.Error(t, err)

			var convErr *ConversionError
			require.ErrorAs(t, err, &convErr)
			assert.Equal(t, tt.wantReason, convErr.Reason)
			assert.NotEmpty(t, convErr.Message)
			assert.NotEmpty(t, convErr.Description)

			// Byte-exact rollback, not a refetch.
			after, ok := store.Get(sessioncache.SessionsKey("2024-05", 0))
			require.True(t, ok)
			assert.Equal(t, before, after)
			assert.False(t, store.IsStale(sessioncache.SessionsKey("2024-05", 0)))

			require.Len(t, notify.failed, 1)
			assert.Equal(t, tt.wantReason, notify.failed[0].Reason)
			assert.Empty(t, notify.succeeded)
		})
	}
}

func TestConvertRejectsDuplicateInFlight(t *testing.T) {
	sessionID := uuid.New()
	store := seedCache(t, sessionID)
	svc := &fakeService{online: &models.OnlineSession{RoomID: "r"}, block: make(chan struct{})}
	co := NewCoordinator(store, svc, nil, nil, context.Background(), nil)

	firstDone := make(chan struct{})
	go func() {
		defer close(firstDone)
		_, _ = co.ConvertToOnline(context.Background(), uuid.New(), sessionID)
	}()

	waitForCall(svc)

	_, err := co.ConvertToOnline(context.Background(), uuid.New(), sessionID)
	assert.ErrorIs(t, err, ErrConversionInFlight)

	close(svc.block)
	<-firstDone

	// Once the first finishes, the session is free again.
	svc.block = nil
	_, err = co.ConvertToOnline(context.Background(), uuid.New(), sessionID)
	assert.NoError(t, err)
}

func TestConvertDifferentSessionsRunIndependently(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	store := seedCache(t, a)
	svc := &fakeService{online: &models.OnlineSession{RoomID: "r"}, block: make(chan struct{})}
	co := NewCoordinator(store, svc, nil, nil, context.Background(), nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = co.ConvertToOnline(context.Background(), uuid.New(), a)
	}()
	waitForCall(svc)

	// b is blocked on the same fake, so run it after releasing.
	close(svc.block)
	<-done
	svc.block = nil
	_, err := co.ConvertToOnline(context.Background(), uuid.New(), b)
	assert.NoError(t, err)
}

func TestRevertSuccess(t *testing.T) {
	sessionID := uuid.New()
	store := seedCache(t, sessionID)
	svc := &fakeService{}
	notify := &fakeNotifier{}
	co := NewCoordinator(store, svc, notify, nil, context.Background(), nil)

	require.NoError(t, co.RevertToOffline(context.Background(), uuid.New(), sessionID))
	assert.True(t, store.IsStale(sessioncache.SessionsKey("2024-05", 0)))
	assert.Equal(t, []uuid.UUID{sessionID}, notify.reverted)
}

func TestRevertFailureRollsBack(t *testing.T) {
	sessionID := uuid.New()
	store := seedCache(t, sessionID)
	before, ok := store.Get(sessioncache.SessionsKey("2024-05", 0))
	require.True(t, ok)

	svc := &fakeService{revertErr: &sessionapi.APIError{StatusCode: http.StatusForbidden}}
	co := NewCoordinator(store, svc, nil, nil, context.Background(), nil)

	err := co.RevertToOffline(context.Background(), uuid.New(), sessionID)
	var convErr *ConversionError
	require.ErrorAs(t, err, &convErr)
	assert.Equal(t, ReasonForbidden, convErr.Reason)

	after, ok := store.Get(sessioncache.SessionsKey("2024-05", 0))
	require.True(t, ok)
	assert.Equal(t, before, after)
}

func TestClassifyKeepsRemoteMessageForUnknown(t *testing.T) {
	err := Classify(&sessionapi.APIError{StatusCode: http.StatusInternalServerError, Message: "maintenance window"})
	assert.Equal(t, ReasonUnknown, err.Reason)
	assert.Equal(t, "maintenance window", err.Message)
}
