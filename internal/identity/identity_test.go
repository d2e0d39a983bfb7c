package identity

import (
	"context"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := tok.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

func TestFromToken(t *testing.T) {
	userID := uuid.New()
	token := signedToken(t, jwt.MapClaims{
		"sub":  userID.String(),
		"name": "Ken Watanabe",
		"role": "TUTOR",
	})

	id, err := FromToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID, id.UserID)
	assert.Equal(t, "Ken Watanabe", id.Name)
	assert.Equal(t, "TUTOR", id.Role)
	assert.Equal(t, token, id.RawToken)
}

func TestFromTokenErrors(t *testing.T) {
	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-jwt"},
		{"no subject", ""},
	}
	// Build the no-subject case from a real token.
	tests[1].token = signedToken(t, jwt.MapClaims{"name": "anonymous"})

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromToken(tt.token)
			assert.Error(t, err)
		})
	}
}

func TestFromTokenRejectsNonUUIDSubject(t *testing.T) {
	_, err := FromToken(signedToken(t, jwt.MapClaims{"sub": "user-42"}))
	assert.Error(t, err)
}

func TestContextRoundTrip(t *testing.T) {
	id := Identity{UserID: uuid.New(), Name: "Mia", RawToken: "tok"}
	ctx := WithContext(context.Background(), id)

	got, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, id, got)

	_, ok = FromContext(context.Background())
	assert.False(t, ok)
}
