package rest_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Danya2kk/diplomTMS/activity"
	"github.com/Danya2kk/diplomTMS/api/rest"
	"github.com/Danya2kk/diplomTMS/config"
	"github.com/Danya2kk/diplomTMS/group"
	mw "github.com/Danya2kk/diplomTMS/middleware"
	"github.com/Danya2kk/diplomTMS/presence"
	"github.com/Danya2kk/diplomTMS/relation"
	"github.com/Danya2kk/diplomTMS/testutil"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	r        *gin.Engine
	db       *gorm.DB
	presence *presence.Service
}

// newEnv wires the full REST router the way main does, on an in-memory DB.
func newEnv(t *testing.T) *testEnv {
	t.Helper()
	db := testutil.SetupTestDB(t)
	c, ps := testutil.SetupTestCache(t)
	sec := config.SecurityConfig{JWTSecret: "test-secret", JWTTTLH: 72 * time.Hour}
	logger := zap.NewNop()

	act := activity.New(db, logger)
	t.Cleanup(func() { act.Stop(context.Background()) })
	pres := presence.New(db, ps, logger)
	relSvc := relation.New(db, c, pres, act, logger)
	grpSvc := group.New(db, c, pres, act, logger)

	authH := rest.NewAuthHandler(db, c, sec)
	friendH := rest.NewFriendshipHandler(db, relSvc, pres, c)
	groupH := rest.NewGroupHandler(db, grpSvc, c)
	noteH := rest.NewNotificationHandler(db, pres)

	r := gin.New()
	r.POST("/api/auth/login", authH.Login)
	api := r.Group("/api", mw.Auth(sec, c))
	api.POST("/auth/logout", authH.Logout)
	api.POST("/auth/refresh", authH.Refresh)

	api.GET("/friends", friendH.ListFriends)
	api.GET("/friends/requests", friendH.ListRequests)
	api.POST("/friends/request", friendH.SendRequest)
	api.POST("/friends/accept/:id", friendH.Accept)
	api.POST("/friends/deny/:id", friendH.Deny)
	api.DELETE("/friends/:id", friendH.Unfriend)
	api.POST("/friends/block/:id", friendH.Block)
	api.POST("/friends/unblock/:id", friendH.Unblock)

	api.POST("/groups", groupH.Create)
	api.GET("/groups", groupH.List)
	api.GET("/groups/:id", groupH.Get)
	api.PUT("/groups/:id", groupH.Update)
	api.DELETE("/groups/:id", groupH.Delete)
	api.POST("/groups/:id/invite", groupH.Invite)
	api.POST("/groups/:id/join", groupH.Join)
	api.POST("/groups/:id/leave", groupH.Leave)
	api.POST("/groups/:id/kick/:profile_id", groupH.Kick)

	api.GET("/notifications", noteH.List)
	api.POST("/notifications/:id/read", noteH.MarkRead)
	api.GET("/status", noteH.GetStatus)
	api.PUT("/status", noteH.SetStatus)

	return &testEnv{r: r, db: db, presence: pres}
}

// login auto-registers the user and returns their token and profile id.
func (e *testEnv) login(t *testing.T, username, first, last string) (string, int64) {
	t.Helper()
	w := postJSON(e.r, "/api/auth/login", map[string]string{
		"username":   username,
		"password":   "pass1234",
		"first_name": first,
		"last_name":  last,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	token := resp["token"].(string)

	var profileID int64
	require.NoError(t, e.db.Table("profiles").
		Joins("JOIN accounts ON accounts.id = profiles.account_id").
		Where("accounts.username = ?", username).
		Pluck("profiles.id", &profileID).Error)
	return token, profileID
}

func postJSON(r *gin.Engine, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	return doJSON(r, http.MethodPost, path, body, headers...)
}

func putJSON(r *gin.Engine, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	return doJSON(r, http.MethodPut, path, body, headers...)
}

func doJSON(r *gin.Engine, method, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		b, _ := json.Marshal(body)
		req = httptest.NewRequest(method, path, bytes.NewReader(b))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func getJSON(r *gin.Engine, path string, headers ...string) *httptest.ResponseRecorder {
	return doJSON(r, http.MethodGet, path, nil, headers...)
}

func deleteReq(r *gin.Engine, path string, headers ...string) *httptest.ResponseRecorder {
	return doJSON(r, http.MethodDelete, path, nil, headers...)
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}
