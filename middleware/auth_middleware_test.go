package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Danya2kk/diplomTMS/cache"
	"github.com/Danya2kk/diplomTMS/config"
	"github.com/Danya2kk/diplomTMS/testutil"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// authEnv is a protected route behind the Auth middleware plus the cache
// that holds the session keys.
type authEnv struct {
	r     *gin.Engine
	cache cache.Cache
}

func newAuthEnv(t *testing.T) *authEnv {
	t.Helper()
	c, _ := testutil.SetupTestCache(t)
	sec := config.SecurityConfig{JWTSecret: testSecret, JWTTTLH: time.Hour}
	r := gin.New()
	r.Use(Auth(sec, c))
	r.GET("/protected", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"account_id": GetAccountID(ctx)})
	})
	return &authEnv{r: r, cache: c}
}

func (e *authEnv) get(t *testing.T, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	e.r.ServeHTTP(w, req)
	return w
}

// session issues a token and registers its session key, the way login does.
func (e *authEnv) session(t *testing.T, accountID int64) string {
	t.Helper()
	tok, err := GenerateToken(accountID, testSecret, time.Hour)
	require.NoError(t, err)
	require.NoError(t, e.cache.Set(context.Background(), "session:"+tok, "1", time.Hour))
	return tok
}

func TestAuthRejectsBadCredentials(t *testing.T) {
	env := newAuthEnv(t)

	assert.Equal(t, http.StatusUnauthorized, env.get(t).Code, "no header")
	assert.Equal(t, http.StatusUnauthorized,
		env.get(t, "Authorization", "Token abc123").Code, "wrong scheme")
	assert.Equal(t, http.StatusUnauthorized,
		env.get(t, "Authorization", "Bearer notavalidtoken").Code, "garbage token")
}

func TestAuthRejectsRevokedSession(t *testing.T) {
	env := newAuthEnv(t)

	// A valid JWT with no session key behind it is a logged-out token.
	tok, err := GenerateToken(42, testSecret, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized,
		env.get(t, "Authorization", "Bearer "+tok).Code)
}

func TestAuthPassesAccountID(t *testing.T) {
	env := newAuthEnv(t)
	tok := env.session(t, 42)

	w := env.get(t, "Authorization", "Bearer "+tok)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"account_id":42`)
}

func TestGetAccountIDDefaultsToZero(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Equal(t, int64(0), GetAccountID(c))
}

func TestRecoveryCatchesPanic(t *testing.T) {
	r := gin.New()
	r.Use(TraceID(), Recovery(zap.NewNop()))
	r.GET("/panic", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
