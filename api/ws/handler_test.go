package ws_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Danya2kk/diplomTMS/api/ws"
	"github.com/Danya2kk/diplomTMS/cache"
	"github.com/Danya2kk/diplomTMS/chat"
	"github.com/Danya2kk/diplomTMS/config"
	mw "github.com/Danya2kk/diplomTMS/middleware"
	"github.com/Danya2kk/diplomTMS/model"
	"github.com/Danya2kk/diplomTMS/presence"
	"github.com/Danya2kk/diplomTMS/testutil"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type wsEnv struct {
	srv      *httptest.Server
	db       *gorm.DB
	cache    cache.Cache
	store    *chat.Store
	presence *presence.Service
	sec      config.SecurityConfig
}

func newWSEnv(t *testing.T) *wsEnv {
	t.Helper()
	db := testutil.SetupTestDB(t)
	c, ps := testutil.SetupTestCache(t)
	logger := zap.NewNop()
	sec := config.SecurityConfig{JWTSecret: "test-secret", JWTTTLH: time.Hour}
	chatCfg := config.ChatConfig{MaxMessageLen: 2000, SendBuf: 256}

	pres := presence.New(db, ps, logger)
	registry := chat.NewRegistry(logger)
	store := chat.NewStore(db, chatCfg.MaxMessageLen)

	h := ws.NewHandler(db, c, sec, chatCfg, registry, store, pres, logger)
	r := gin.New()
	r.GET("/ws/chat/:room", h.ServeChat)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &wsEnv{srv: srv, db: db, cache: c, store: store, presence: pres, sec: sec}
}

// connect registers the profile's session token and dials the room.
func (e *wsEnv) connect(t *testing.T, p *model.Profile, room string) *websocket.Conn {
	t.Helper()
	token, err := mw.GenerateToken(p.AccountID, e.sec.JWTSecret, e.sec.JWTTTLH)
	require.NoError(t, err)
	require.NoError(t, e.cache.Set(context.Background(), "session:"+token, "1", time.Hour))

	url := "ws" + strings.TrimPrefix(e.srv.URL, "http") +
		fmt.Sprintf("/ws/chat/%s?token=%s", room, token)
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) chat.Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var f chat.Frame
	require.NoError(t, json.Unmarshal(raw, &f))
	return f
}

func expectNoFrame(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err, "expected no frame")
}

func TestChatRejectsMissingToken(t *testing.T) {
	env := newWSEnv(t)

	url := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/ws/chat/10"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestChatRejectsNonNumericRoom(t *testing.T) {
	env := newWSEnv(t)
	carol := testutil.CreateProfile(t, env.db, "carol", "Carol", "White")

	token, err := mw.GenerateToken(carol.AccountID, env.sec.JWTSecret, env.sec.JWTTTLH)
	require.NoError(t, err)
	require.NoError(t, env.cache.Set(context.Background(), "session:"+token, "1", time.Hour))

	url := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/ws/chat/lobby?token=" + token
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestChatBroadcastAndRoomIsolation(t *testing.T) {
	env := newWSEnv(t)
	carol := testutil.CreateProfile(t, env.db, "carol", "Carol", "White")
	dave := testutil.CreateProfile(t, env.db, "dave", "Dave", "Gray")
	eve := testutil.CreateProfile(t, env.db, "eve", "Eve", "Black")

	daveConn := env.connect(t, dave, "10")
	eveConn := env.connect(t, eve, "11")
	carolConn := env.connect(t, carol, "10")

	require.NoError(t, carolConn.WriteJSON(map[string]string{"message": "hi"}))

	got := readFrame(t, daveConn)
	assert.Equal(t, "hi", got.Message)
	assert.Equal(t, "Carol", got.Username)
	assert.Equal(t, "White", got.LastName)

	// The sender receives their own broadcast too.
	self := readFrame(t, carolConn)
	assert.Equal(t, "hi", self.Message)

	// Room 11 hears nothing.
	expectNoFrame(t, eveConn)
}

func TestChatHistoryReplayOnConnect(t *testing.T) {
	env := newWSEnv(t)
	carol := testutil.CreateProfile(t, env.db, "carol", "Carol", "White")
	dave := testutil.CreateProfile(t, env.db, "dave", "Dave", "Gray")

	ctx := context.Background()
	_, err := env.store.Append(ctx, 10, carol.ID, "first")
	require.NoError(t, err)
	_, err = env.store.Append(ctx, 10, dave.ID, "second")
	require.NoError(t, err)
	// Another room's history must not leak in.
	_, err = env.store.Append(ctx, 11, dave.ID, "elsewhere")
	require.NoError(t, err)

	conn := env.connect(t, carol, "10")

	f1 := readFrame(t, conn)
	assert.Equal(t, "first", f1.Message)
	assert.Equal(t, "Carol", f1.Username)
	f2 := readFrame(t, conn)
	assert.Equal(t, "second", f2.Message)
	assert.Equal(t, "Dave", f2.Username)
	expectNoFrame(t, conn)
}

func TestChatMalformedFrameKeepsConnection(t *testing.T) {
	env := newWSEnv(t)
	carol := testutil.CreateProfile(t, env.db, "carol", "Carol", "White")

	conn := env.connect(t, carol, "10")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	// Empty message fails validation but must not kill the connection either.
	require.NoError(t, conn.WriteJSON(map[string]string{"message": "   "}))

	require.NoError(t, conn.WriteJSON(map[string]string{"message": "still here"}))
	got := readFrame(t, conn)
	assert.Equal(t, "still here", got.Message)

	// Neither bad frame was persisted.
	var count int64
	require.NoError(t, env.db.Model(&model.ChatMessage{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestChatMessagePersistedBeforeBroadcast(t *testing.T) {
	env := newWSEnv(t)
	carol := testutil.CreateProfile(t, env.db, "carol", "Carol", "White")

	conn := env.connect(t, carol, "10")
	require.NoError(t, conn.WriteJSON(map[string]string{"message": "saved"}))
	_ = readFrame(t, conn)

	var msg model.ChatMessage
	require.NoError(t, env.db.First(&msg).Error)
	assert.Equal(t, "saved", msg.Content)
	assert.EqualValues(t, 10, msg.GroupID)
	assert.Equal(t, carol.ID, msg.ProfileID)
}

func TestChatPresenceTracksConnection(t *testing.T) {
	env := newWSEnv(t)
	carol := testutil.CreateProfile(t, env.db, "carol", "Carol", "White")
	ctx := context.Background()

	conn := env.connect(t, carol, "10")

	require.Eventually(t, func() bool {
		return env.presence.IsOnline(ctx, carol.ID)
	}, 2*time.Second, 50*time.Millisecond, "online after connect")

	conn.Close()

	require.Eventually(t, func() bool {
		return !env.presence.IsOnline(ctx, carol.ID)
	}, 2*time.Second, 50*time.Millisecond, "offline after disconnect")
}
