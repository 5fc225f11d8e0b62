package identity

import (
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("some-upstream-secret"))
	require.NoError(t, err)
	return token
}

func TestFromRequestWithQueryParams(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws?tenantId=t-1&userId=u1", nil)

	claims, err := FromRequest(r)

	require.NoError(t, err)
	assert.Equal(t, "t-1", claims.TenantID)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, SourceQuery, claims.Source)
	assert.True(t, claims.Present())
}

func TestFromRequestWithoutClaims(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws", nil)

	claims, err := FromRequest(r)

	require.NoError(t, err)
	assert.False(t, claims.Present())
	assert.Equal(t, SourceNone, claims.Source)
}

func TestFromRequestTrustsTokenWithoutVerification(t *testing.T) {
	// The token is signed with a key the hub has never seen; the claims are
	// still accepted because identity is trust-on-receipt.
	token := signedToken(t, jwt.MapClaims{"tenantId": "t-9", "userId": "u-9"})
	r := httptest.NewRequest("GET", "/ws?token="+token, nil)

	claims, err := FromRequest(r)

	require.NoError(t, err)
	assert.Equal(t, "t-9", claims.TenantID)
	assert.Equal(t, "u-9", claims.UserID)
	assert.Equal(t, SourceToken, claims.Source)
}

func TestFromRequestMalformedToken(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws?token=not-a-jwt", nil)

	claims, err := FromRequest(r)

	assert.Error(t, err)
	assert.False(t, claims.Present())
}

func TestFromRequestTokenWithoutIdentityClaims(t *testing.T) {
	token := signedToken(t, jwt.MapClaims{"sub": "something-else"})
	r := httptest.NewRequest("GET", "/ws?token="+token, nil)

	claims, err := FromRequest(r)

	assert.Error(t, err)
	assert.False(t, claims.Present())
}
