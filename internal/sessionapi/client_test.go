package sessionapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutorlane/liveclient/internal/identity"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "agent-token", 5*time.Second, nil)
}

func TestConvertToOnlineSuccess(t *testing.T) {
	sessionID := uuid.New()
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/sessions/"+sessionID.String()+"/convert", r.URL.Path)
		assert.Equal(t, "Bearer agent-token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"data":{"session_id":"` + sessionID.String() + `","room_id":"room-9","room_status":"WAITING"}}`))
	})

	online, err := client.ConvertToOnline(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Equal(t, "room-9", online.RoomID)
	assert.Equal(t, sessionID, online.SessionID)
}

func TestConvertToOnlineStatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus int
		wantMsg    string
	}{
		{"forbidden", http.StatusForbidden, `{"success":false,"error":"not your session"}`, http.StatusForbidden, "not your session"},
		{"conflict", http.StatusConflict, `{"success":false,"error":"already online"}`, http.StatusConflict, "already online"},
		{"bad request", http.StatusBadRequest, `{"success":false,"error":"session already started"}`, http.StatusBadRequest, "session already started"},
		{"proxy html error", http.StatusBadGateway, `<html>bad gateway</html>`, http.StatusBadGateway, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			_, err := client.ConvertToOnline(context.Background(), uuid.New())
			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.wantStatus, apiErr.StatusCode)
			assert.Equal(t, tt.wantMsg, apiErr.Message)
		})
	}
}

func TestCallerTokenWinsOverAgentToken(t *testing.T) {
	var gotAuth string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"success":true}`))
	})

	ctx := identity.WithContext(context.Background(), identity.Identity{
		UserID:   uuid.New(),
		RawToken: "caller-token",
	})
	require.NoError(t, client.RevertToOffline(ctx, uuid.New()))
	assert.Equal(t, "Bearer caller-token", gotAuth)
}

func TestSessionsByMonthSendsQuery(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "2024-05", q.Get("month"))
		assert.Equal(t, "2", q.Get("page"))
		assert.Equal(t, "20", q.Get("size"))
		w.Write([]byte(`{"success":true,"data":{"content":[],"page":2,"size":20,"total_elements":41,"total_pages":3}}`))
	})

	page, err := client.SessionsByMonth(context.Background(), "2024-05", 2, 20)
	require.NoError(t, err)
	assert.Equal(t, 2, page.Page)
	assert.Equal(t, int64(41), page.TotalElements)
}

func TestCurrentLiveSessionNotFoundMeansNoLiveSession(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"success":false,"error":"no live session"}`))
	})

	online, err := client.CurrentLiveSession(context.Background())
	require.NoError(t, err)
	assert.Nil(t, online)
}

func TestCurrentLiveSessionEmptyRoomMeansNoLiveSession(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true,"data":{}}`))
	})

	online, err := client.CurrentLiveSession(context.Background())
	require.NoError(t, err)
	assert.Nil(t, online)
}
