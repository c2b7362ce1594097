package server

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alimertcetin/xiv.filo.inventorysystem/internal/catalog"
	"github.com/alimertcetin/xiv.filo.inventorysystem/internal/config"
	"github.com/alimertcetin/xiv.filo.inventorysystem/internal/network"
	"github.com/alimertcetin/xiv.filo.inventorysystem/pkg/models"
)

const testIssuer = "login.test"

type testEnv struct {
	t     *testing.T
	key   *ecdsa.PrivateKey
	redis *miniredis.Miniredis
	cfg   *config.Config
	srv   *Server
	http  *httptest.Server
}

func newTestEnv(t *testing.T, mutate func(cfg *config.Config)) *testEnv {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})

	keySrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(pemBytes)
	}))
	t.Cleanup(keySrv.Close)

	mr := miniredis.RunT(t)

	cfg := &config.Config{
		JWT: config.JWTConfig{
			Issuer:              testIssuer,
			PublicKeyURL:        keySrv.URL,
			PublicKeyRefreshHrs: 24,
		},
		Redis: config.RedisConfig{
			Address:         mr.Addr(),
			BlacklistPrefix: "blacklist:user:",
		},
		Session: config.SessionConfig{
			MaxPlayers: 4,
			StarterKit: "starter",
		},
		Limits: config.LimitsConfig{
			CommandsPerSecond: 1000,
			CommandBurst:      1000,
			MaxMessageSize:    4096,
			MaxSlots:          16,
		},
	}
	if mutate != nil {
		mutate(cfg)
	}

	srv, err := New(cfg)
	require.NoError(t, err)
	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.Shutdown()
		hs.Close()
	})

	return &testEnv{t: t, key: key, redis: mr, cfg: cfg, srv: srv, http: hs}
}

func (e *testEnv) token(userID int64, permissions int64, mutate func(c *Claims)) string {
	e.t.Helper()
	claims := &Claims{
		UserID:      userID,
		Username:    "pilot",
		Email:       "pilot@example.com",
		Permissions: permissions,
		Activated:   time.Now().Unix(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    testIssuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	if mutate != nil {
		mutate(claims)
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodES256, claims).SignedString(e.key)
	require.NoError(e.t, err)
	return signed
}

func (e *testEnv) wsURL() string {
	return "ws" + strings.TrimPrefix(e.http.URL, "http") + "/ws"
}

func (e *testEnv) dial(token string) *websocket.Conn {
	e.t.Helper()
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	ws, _, err := websocket.DefaultDialer.Dial(e.wsURL(), header)
	require.NoError(e.t, err)
	e.t.Cleanup(func() { ws.Close() })
	return ws
}

// join dials and joins, returning the welcome payload.
func (e *testEnv) join(userID, permissions int64) (*websocket.Conn, network.WelcomePayload) {
	e.t.Helper()
	ws := e.dial(e.token(userID, permissions, nil))
	send(e.t, ws, network.MsgTypeJoin, nil)
	var welcome network.WelcomePayload
	expect(e.t, ws, network.MsgTypeWelcome, &welcome)
	return ws, welcome
}

type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func send(t *testing.T, ws *websocket.Conn, msgType string, payload any) {
	t.Helper()
	msg := map[string]any{"type": msgType}
	if payload != nil {
		msg["payload"] = payload
	}
	require.NoError(t, ws.WriteJSON(msg))
}

func expect(t *testing.T, ws *websocket.Conn, msgType string, into any) {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	var env envelope
	require.NoError(t, ws.ReadJSON(&env))
	require.Equal(t, msgType, env.Type, "payload: %s", env.Payload)
	if into != nil {
		require.NoError(t, json.Unmarshal(env.Payload, into))
	}
}

func expectError(t *testing.T, ws *websocket.Conn, code string) {
	t.Helper()
	var p network.ErrorPayload
	expect(t, ws, network.MsgTypeError, &p)
	assert.Equal(t, code, p.Code, p.Message)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, err := http.Get(env.http.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok","players":0}`, string(body))
}

func TestNewFailsWithoutRedis(t *testing.T) {
	_, err := New(&config.Config{Redis: config.RedisConfig{Address: "127.0.0.1:1"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to Redis")
}

func TestUpgradeRequiresValidToken(t *testing.T) {
	env := newTestEnv(t, nil)

	_, resp, err := websocket.DefaultDialer.Dial(env.wsURL(), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	header := http.Header{}
	header.Set("Authorization", "Bearer not-a-jwt")
	_, resp, err = websocket.DefaultDialer.Dial(env.wsURL(), header)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestBlacklistedUserIsRejected(t *testing.T) {
	env := newTestEnv(t, nil)
	require.NoError(t, env.redis.Set("blacklist:user:7", "1"))

	header := http.Header{}
	header.Set("Authorization", "Bearer "+env.token(7, 0, nil))
	_, resp, err := websocket.DefaultDialer.Dial(env.wsURL(), header)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestValidateTokenClaims(t *testing.T) {
	env := newTestEnv(t, nil)
	v := env.srv.jwtValidator

	player, err := v.ValidateToken(env.token(42, models.PermInventoryGrant, nil))
	require.NoError(t, err)
	assert.Equal(t, "42", player.ID)
	assert.True(t, player.Can(models.PermInventoryGrant))

	_, err = v.ValidateToken(env.token(42, 0, func(c *Claims) { c.Issuer = "someone-else" }))
	assert.ErrorIs(t, err, ErrInvalidIssuer)

	_, err = v.ValidateToken(env.token(42, 0, func(c *Claims) { c.Activated = 0 }))
	assert.ErrorIs(t, err, ErrNotActivated)

	_, err = v.ValidateToken(env.token(42, 0, func(c *Claims) { c.Activated = -1 }))
	assert.ErrorIs(t, err, ErrBanned)

	_, err = v.ValidateToken(env.token(42, 0, func(c *Claims) {
		c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	}))
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)

	require.NoError(t, env.redis.Set("blacklist:user:42", "1"))
	_, err = v.ValidateToken(env.token(42, 0, nil))
	assert.ErrorIs(t, err, ErrTokenBlacklisted)
}

func TestExtractToken(t *testing.T) {
	tests := []struct {
		name   string
		header map[string]string
		query  string
		want   string
	}{
		{name: "subprotocol", header: map[string]string{"Sec-WebSocket-Protocol": "access_token, abc"}, want: "abc"},
		{name: "bearer", header: map[string]string{"Authorization": "Bearer def"}, want: "def"},
		{name: "query", query: "?token=ghi", want: "ghi"},
		{name: "wrong scheme", header: map[string]string{"Authorization": "Basic xyz"}, want: ""},
		{name: "unrelated subprotocol", header: map[string]string{"Sec-WebSocket-Protocol": "chat, v2"}, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/ws"+tt.query, nil)
			for k, v := range tt.header {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, extractTokenFromHeader(r))
		})
	}
}

func TestSubprotocolToken(t *testing.T) {
	env := newTestEnv(t, nil)
	dialer := websocket.Dialer{Subprotocols: []string{"access_token", env.token(3, 0, nil)}}
	ws, _, err := dialer.Dial(env.wsURL(), nil)
	require.NoError(t, err)
	defer ws.Close()
	assert.Equal(t, "access_token", ws.Subprotocol())

	send(t, ws, network.MsgTypePing, nil)
	expect(t, ws, network.MsgTypePong, nil)
}

func TestJoinSendsSeededInventory(t *testing.T) {
	env := newTestEnv(t, nil)
	_, welcome := env.join(1, 0)

	assert.Equal(t, "1", welcome.PlayerID)
	assert.Equal(t, env.srv.Session().ID, welcome.SessionID)
	assert.Equal(t, 1, welcome.SessionStatus.PlayerCount)
	assert.Len(t, welcome.Items, 8)

	inv := welcome.Inventory
	require.Equal(t, 8, inv.SlotCount)
	require.Len(t, inv.Slots, 8)
	assert.Equal(t, network.SlotState{Index: 0, ItemID: "smartmatter", Quantity: 10}, inv.Slots[0])
	assert.Equal(t, network.SlotState{Index: 3, ItemID: "knife-missile", Quantity: 2}, inv.Slots[3])
	assert.Equal(t, network.SlotState{Index: 4}, inv.Slots[4])
}

func TestCommandsRequireJoin(t *testing.T) {
	env := newTestEnv(t, nil)
	ws := env.dial(env.token(1, 0, nil))

	send(t, ws, network.MsgTypeInventoryState, nil)
	expectError(t, ws, "not_joined")

	send(t, ws, "teleport", nil)
	expectError(t, ws, network.ErrCodeUnknownType)

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("{")))
	expectError(t, ws, network.ErrCodeInvalidMessage)
}

func TestInventoryCommandsForwardChanges(t *testing.T) {
	env := newTestEnv(t, nil)
	ws, _ := env.join(1, models.PermInventoryGrant)

	// knife-missile stacks to 4; slot 3 holds 2
	send(t, ws, network.MsgTypeInventoryAdd, network.ItemQuantityPayload{ItemID: "knife-missile", Quantity: 3})
	var changed network.InventoryChangedPayload
	expect(t, ws, network.MsgTypeInventoryChanged, &changed)
	require.Len(t, changed.Changes, 2)
	assert.Equal(t, network.SlotState{Index: 3, ItemID: "knife-missile", Quantity: 4}, changed.Changes[0].After)
	assert.Equal(t, network.SlotState{Index: 4, ItemID: "knife-missile", Quantity: 1}, changed.Changes[1].After)
	var result network.InventoryResultPayload
	expect(t, ws, network.MsgTypeInventoryResult, &result)
	assert.Equal(t, network.InventoryResultPayload{Op: network.MsgTypeInventoryAdd, OK: true}, result)

	send(t, ws, network.MsgTypeInventorySwap, network.SlotPairPayload{Index1: 0, Index2: 7})
	expect(t, ws, network.MsgTypeInventoryChanged, &changed)
	require.Len(t, changed.Changes, 2)
	assert.True(t, changed.Changes[0].Moved)
	assert.Equal(t, network.SlotState{Index: 7, ItemID: "smartmatter", Quantity: 10}, changed.Changes[0].After)

	// slot 3 holds a full stack of 4, slot 4 holds 1
	send(t, ws, network.MsgTypeInventoryMerge, network.SlotPairPayload{Index1: 3, Index2: 4})
	var merged network.InventoryChangedPayload
	expect(t, ws, network.MsgTypeInventoryChanged, &merged)
	require.Len(t, merged.Changes, 2)
	assert.False(t, merged.Changes[0].Merged)
	assert.Equal(t, network.SlotState{Index: 3, ItemID: "knife-missile", Quantity: 1}, merged.Changes[0].After)
	assert.True(t, merged.Changes[1].Merged)
	assert.Equal(t, network.SlotState{Index: 3, ItemID: "knife-missile", Quantity: 3}, merged.Changes[1].Before)
	assert.Equal(t, network.SlotState{Index: 4, ItemID: "knife-missile", Quantity: 4}, merged.Changes[1].After)
	expect(t, ws, network.MsgTypeInventoryResult, &result)
	assert.Equal(t, network.InventoryResultPayload{Op: network.MsgTypeInventoryMerge, OK: true, Remaining: 1}, result)

	// merging a slot onto itself is refused without a change batch
	send(t, ws, network.MsgTypeInventoryMerge, network.SlotPairPayload{Index1: 7, Index2: 7})
	expect(t, ws, network.MsgTypeInventoryResult, &result)
	assert.Equal(t, network.InventoryResultPayload{Op: network.MsgTypeInventoryMerge, OK: false, Remaining: -1}, result)

	send(t, ws, network.MsgTypeInventoryAddSlot, network.SlotCountPayload{Count: 2})
	expect(t, ws, network.MsgTypeInventoryChanged, &changed)
	assert.Equal(t, 8, changed.SlotCountBefore)
	assert.Equal(t, 10, changed.SlotCountAfter)
	assert.Empty(t, changed.Changes)

	send(t, ws, network.MsgTypeInventoryCanAdd, network.ItemQuantityPayload{ItemID: "diamondite", Quantity: 1000})
	expect(t, ws, network.MsgTypeInventoryResult, &result)
	assert.False(t, result.OK)
	assert.Positive(t, result.Remaining)

	send(t, ws, network.MsgTypeInventoryState, nil)
	var state network.InventoryStatePayload
	expect(t, ws, network.MsgTypeInventoryState, &state)
	assert.Equal(t, 10, state.SlotCount)
	assert.Equal(t, 16, state.Capacity)
}

func TestInventoryCommandValidation(t *testing.T) {
	env := newTestEnv(t, nil)
	ws, _ := env.join(1, models.PermInventoryGrant)

	send(t, ws, network.MsgTypeInventorySwap, network.SlotPairPayload{Index1: 0, Index2: 8})
	expectError(t, ws, network.ErrCodeInvalidSlot)

	send(t, ws, network.MsgTypeInventoryMove, network.SlotPairPayload{Index1: -1, Index2: 0})
	expectError(t, ws, network.ErrCodeInvalidSlot)

	send(t, ws, network.MsgTypeInventoryAdd, network.ItemQuantityPayload{ItemID: "unobtainium", Quantity: 1})
	expectError(t, ws, network.ErrCodeUnknownItem)

	send(t, ws, network.MsgTypeInventoryRemove, network.ItemQuantityPayload{ItemID: "diamondite", Quantity: 0})
	expectError(t, ws, network.ErrCodeInvalidQuantity)

	send(t, ws, network.MsgTypeInventoryAddSlot, network.SlotCountPayload{Count: 9})
	expectError(t, ws, network.ErrCodeInvalidQuantity)

	send(t, ws, network.MsgTypeInventorySwap, nil)
	expectError(t, ws, network.ErrCodeInvalidPayload)

	// the connection is still usable
	send(t, ws, network.MsgTypePing, nil)
	expect(t, ws, network.MsgTypePong, nil)
}

func TestGrantPermissionRequired(t *testing.T) {
	env := newTestEnv(t, nil)
	ws, _ := env.join(1, 0)

	send(t, ws, network.MsgTypeInventoryAdd, network.ItemQuantityPayload{ItemID: "diamondite", Quantity: 1})
	expectError(t, ws, "forbidden")

	send(t, ws, network.MsgTypeInventoryClear, nil)
	expectError(t, ws, "forbidden")

	send(t, ws, network.MsgTypeInventoryMove, network.SlotPairPayload{Index1: 1, Index2: 5})
	expect(t, ws, network.MsgTypeInventoryChanged, nil)
}

func TestSecondConnectionIsRefused(t *testing.T) {
	env := newTestEnv(t, nil)
	env.join(1, 0)

	second := env.dial(env.token(1, 0, nil))
	send(t, second, network.MsgTypeJoin, nil)
	expectError(t, second, "already_connected")
}

func TestOtherPlayersAreNotified(t *testing.T) {
	env := newTestEnv(t, nil)
	first, _ := env.join(1, 0)
	second, _ := env.join(2, 0)

	var joined network.PlayerJoinedPayload
	expect(t, first, network.MsgTypePlayerJoined, &joined)
	assert.Equal(t, "2", joined.PlayerID)

	send(t, second, network.MsgTypeLeave, nil)
	var left network.PlayerLeftPayload
	expect(t, first, network.MsgTypePlayerLeft, &left)
	assert.Equal(t, "2", left.PlayerID)
}

func TestReconnectKeepsInventory(t *testing.T) {
	env := newTestEnv(t, nil)
	ws, _ := env.join(1, 0)

	send(t, ws, network.MsgTypeInventorySwap, network.SlotPairPayload{Index1: 0, Index2: 7})
	expect(t, ws, network.MsgTypeInventoryChanged, nil)
	require.NoError(t, ws.Close())

	require.Eventually(t, func() bool {
		_, ok := env.srv.Session().GetPlayer("1")
		return !ok
	}, 5*time.Second, 10*time.Millisecond)

	_, welcome := env.join(1, 0)
	assert.Equal(t, network.SlotState{Index: 0}, welcome.Inventory.Slots[0])
	assert.Equal(t, network.SlotState{Index: 7, ItemID: "smartmatter", Quantity: 10}, welcome.Inventory.Slots[7])
}

func TestSessionHandsOutPlayerCopies(t *testing.T) {
	env := newTestEnv(t, nil)
	ws, welcome := env.join(1, 0)
	session := env.srv.Session()

	player, ok := session.GetPlayer("1")
	require.True(t, ok)
	assert.True(t, player.Connected)
	assert.Equal(t, welcome.SessionID, player.SessionID)
	assert.Equal(t, "starter", player.Kit)
	require.False(t, player.LastSeen.IsZero())
	joinedAt := player.LastSeen

	player.Username = "changed"
	players := session.GetPlayers()
	require.Len(t, players, 1)
	assert.Equal(t, "pilot", players[0].Username)

	time.Sleep(5 * time.Millisecond)
	send(t, ws, network.MsgTypePing, nil)
	expect(t, ws, network.MsgTypePong, nil)

	player, ok = session.GetPlayer("1")
	require.True(t, ok)
	assert.True(t, player.LastSeen.After(joinedAt))
}

func TestCommandsAreRateLimited(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.Limits.CommandsPerSecond = 0.001
		cfg.Limits.CommandBurst = 1
	})
	ws := env.dial(env.token(1, 0, nil))

	send(t, ws, network.MsgTypePing, nil)
	expect(t, ws, network.MsgTypePong, nil)

	send(t, ws, network.MsgTypePing, nil)
	expectError(t, ws, network.ErrCodeRateLimited)
}

func TestMissingCatalogFile(t *testing.T) {
	_, err := New(&config.Config{
		Session: config.SessionConfig{CatalogPath: "testdata/missing.yaml"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load catalog")
}

func TestUnknownStarterKit(t *testing.T) {
	cfg := &config.Config{Session: config.SessionConfig{StarterKit: "pirate"}}
	_, err := NewSession(cfg, catalog.Default())
	assert.ErrorIs(t, err, catalog.ErrUnknownKit)
}

func TestSessionCapacity(t *testing.T) {
	cfg := &config.Config{Session: config.SessionConfig{MaxPlayers: 1}}
	session, err := NewSession(cfg, catalog.Default())
	require.NoError(t, err)

	first, second := &Connection{}, &Connection{}
	inv, err := session.AddPlayer(&models.Player{ID: "1"}, first)
	require.NoError(t, err)
	assert.Equal(t, 8, inv.SlotCount())

	_, err = session.AddPlayer(&models.Player{ID: "2"}, second)
	assert.ErrorIs(t, err, ErrSessionFull)

	assert.False(t, session.RemovePlayer("1", second), "only the owning connection may leave")
	assert.True(t, session.RemovePlayer("1", first))
	assert.Equal(t, "waiting", session.GetStatus().State)
}
