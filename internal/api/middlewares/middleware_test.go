package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/contexta-chat/internal/logger"
)

var secret = []byte("test-secret")

func echoUser(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := UserIDFromContext(r.Context())
		require.True(t, ok)
		_, _ = w.Write([]byte(id))
	})
}

func TestJWTMiddleware_AcceptsIssuedToken(t *testing.T) {
	tok, err := IssueToken(secret, "user-1", time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/chats", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()

	JWTMiddleware(secret)(echoUser(t)).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-1", rec.Body.String())
}

func TestJWTMiddleware_Rejects(t *testing.T) {
	expired, err := IssueToken(secret, "user-1", -time.Hour)
	require.NoError(t, err)
	foreign, err := IssueToken([]byte("other"), "user-1", time.Hour)
	require.NoError(t, err)
	noClaim, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()}).SignedString(secret)
	require.NoError(t, err)

	for name, header := range map[string]string{
		"missing":     "",
		"not bearer":  "Basic abc",
		"expired":     "Bearer " + expired,
		"wrong key":   "Bearer " + foreign,
		"no user_id":  "Bearer " + noClaim,
		"garbage jwt": "Bearer not.a.jwt",
	} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		JWTMiddleware(secret)(echoUser(t)).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, name)
	}
}

func TestRateLimiter_FailsOpen(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer rdb.Close()

	rl := NewRateLimiter(rdb, logger.Discard())
	h := rl.Limit("ai", 1, time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
		assert.Equal(t, http.StatusNoContent, rec.Code)
	}
}

func TestCallerKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.7:5555"
	assert.Equal(t, "ip:10.0.0.7", callerKey(req))

	req = req.WithContext(WithUserID(req.Context(), "user-9"))
	assert.Equal(t, "user:user-9", callerKey(req))
}
