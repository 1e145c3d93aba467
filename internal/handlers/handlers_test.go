// internal/handlers/handlers_test.go
package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jason-s-yu/cardclash/internal/auth"
	"github.com/jason-s-yu/cardclash/internal/database"
	"github.com/jason-s-yu/cardclash/internal/models"
	"github.com/jason-s-yu/cardclash/internal/store"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	hostAddr  = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
	guestAddr = "0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359"
	thirdAddr = "0xdbF03B407c01E7cD3CBea99509d93f8DDDC8C6FB"
)

type harness struct {
	t      *testing.T
	h      http.Handler
	srv    *APIServer
	ledger *database.MemoryLedger
}

func newHarness(t *testing.T, s store.Store) *harness {
	t.Helper()
	require.NoError(t, auth.Init(time.Hour))
	logger, _ := test.NewNullLogger()
	ledger := database.NewMemoryLedger(database.DefaultFees)
	srv := NewAPIServer(s, ledger, ledger, logger)
	srv.AdminToken = "s3cret"
	srv.EnqueueBackoff = time.Millisecond
	return &harness{t: t, h: srv.Routes(), srv: srv, ledger: ledger}
}

func (hs *harness) login(addr, name string) *http.Cookie {
	hs.t.Helper()
	w := hs.do(nil, http.MethodPost, "/session", map[string]string{"address": addr, "displayName": name})
	require.Equal(hs.t, http.StatusOK, w.Code, w.Body.String())
	for _, c := range w.Result().Cookies() {
		if c.Name == auth.CookieName {
			return c
		}
	}
	hs.t.Fatal("no session cookie")
	return nil
}

func (hs *harness) do(cookie *http.Cookie, method, path string, body interface{}) *httptest.ResponseRecorder {
	hs.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(hs.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	hs.h.ServeHTTP(w, req)
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body ErrorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body.Error
}

func decodeRoom(t *testing.T, w *httptest.ResponseRecorder) models.Room {
	t.Helper()
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var r models.Room
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &r))
	return r
}

func TestSessionRejectsBadAddress(t *testing.T) {
	hs := newHarness(t, store.NewMemoryStore())
	w := hs.do(nil, http.MethodPost, "/session", map[string]string{"address": "alice"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = hs.do(nil, http.MethodGet, "/room/mine", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSessionNormalizesAddress(t *testing.T) {
	hs := newHarness(t, store.NewMemoryStore())
	w := hs.do(nil, http.MethodPost, "/session", map[string]string{"address": "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed"})
	require.Equal(t, http.StatusOK, w.Code)
	var resp sessionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, hostAddr, resp.Address)
	assert.Equal(t, hostAddr[:8], resp.DisplayName)
}

// TestDirectRoomBattle plays a full battle through the HTTP API.
func TestDirectRoomBattle(t *testing.T) {
	hs := newHarness(t, store.NewMemoryStore())
	host := hs.login(hostAddr, "host")
	guest := hs.login(guestAddr, "guest")

	w := hs.do(host, http.MethodPost, "/room/create", map[string]string{"mode": "ranked"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var created roomIDResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	code := created.RoomID

	r := decodeRoom(t, hs.do(guest, http.MethodPost, "/room/join", map[string]string{"roomId": code}))
	assert.Equal(t, models.RoomReady, r.Status)
	assert.Equal(t, "guest", r.Guest.DisplayName)

	hostHand := []models.CardRef{{ID: "c1", Power: 100}, {ID: "c2", Power: 20}}
	r = decodeRoom(t, hs.do(host, http.MethodPost, "/room/hand", map[string]interface{}{"roomId": code, "cards": hostHand}))
	assert.Equal(t, 120, *r.HostPower)

	w = hs.do(host, http.MethodPost, "/room/hand", map[string]interface{}{"roomId": code, "cards": hostHand})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "hand_already_submitted", errorCode(t, w))

	r = decodeRoom(t, hs.do(guest, http.MethodPost, "/room/hand", map[string]interface{}{
		"roomId": code, "cards": []models.CardRef{{ID: "g1", Power: 95}},
	}))
	assert.Equal(t, models.RoomPlaying, r.Status)

	w = hs.do(guest, http.MethodPost, "/settlement/reward", map[string]string{"roomId": code})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "invalid_winner", errorCode(t, w))

	w = hs.do(guest, http.MethodPost, "/room/finish", map[string]string{"roomId": code, "winner": "guest"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "invalid_winner", errorCode(t, w))

	r = decodeRoom(t, hs.do(host, http.MethodPost, "/room/finish", map[string]string{"roomId": code}))
	assert.Equal(t, models.RoomFinished, r.Status)
	assert.Equal(t, models.SideHost, *r.Winner)

	w = hs.do(host, http.MethodPost, "/room/finish", map[string]string{"roomId": code})
	assert.Equal(t, "room_not_playing", errorCode(t, w))

	for _, path := range []string{"/settlement/fee", "/settlement/reward", "/settlement/record"} {
		w = hs.do(host, http.MethodPost, path, map[string]string{"roomId": code})
		assert.Less(t, w.Code, 300, "%s: %s", path, w.Body.String())
	}
	w = hs.do(guest, http.MethodPost, "/settlement/record", map[string]string{"roomId": code})
	require.Equal(t, http.StatusOK, w.Code)
	var rec models.MatchResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	assert.Equal(t, 95, rec.PlayerPower)
	assert.Equal(t, hostAddr, rec.Opponent)
	assert.Equal(t, r.Key.String(), rec.MatchKey)
	assert.Equal(t, code, rec.RoomID)

	w = hs.do(host, http.MethodGet, "/account", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var acct models.Account
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &acct))
	assert.Equal(t, database.DefaultFees.StartingCoins-database.DefaultFees.RankedEntry+database.DefaultFees.RankedReward, acct.Coins)
	assert.Greater(t, acct.Elo, 1500)

	w = hs.do(guest, http.MethodGet, "/account/history?limit=5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var history []models.MatchResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &history))
	require.Len(t, history, 1)
	assert.Equal(t, code, history[0].RoomID)
	assert.False(t, history[0].Won())

	w = hs.do(guest, http.MethodGet, "/account/history?limit=zero", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRoomErrors(t *testing.T) {
	hs := newHarness(t, store.NewMemoryStore())
	host := hs.login(hostAddr, "host")
	guest := hs.login(guestAddr, "guest")
	third := hs.login(thirdAddr, "third")

	w := hs.do(guest, http.MethodPost, "/room/join", map[string]string{"roomId": "NOPE42"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "room_not_found", errorCode(t, w))

	w = hs.do(host, http.MethodPost, "/room/join", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = hs.do(host, http.MethodPost, "/room/create", map[string]string{"mode": "blitz"})
	assert.Equal(t, "invalid_mode", errorCode(t, w))

	w = hs.do(host, http.MethodPost, "/room/create", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var created roomIDResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	require.Equal(t, http.StatusOK, hs.do(guest, http.MethodPost, "/room/join", map[string]string{"roomId": created.RoomID}).Code)
	w = hs.do(third, http.MethodPost, "/room/join", map[string]string{"roomId": created.RoomID})
	assert.Equal(t, "room_full", errorCode(t, w))

	w = hs.do(third, http.MethodPost, "/room/hand", map[string]interface{}{"roomId": created.RoomID, "cards": []models.CardRef{{ID: "x", Power: 1}}})
	assert.Equal(t, "not_participant", errorCode(t, w))

	w = hs.do(host, http.MethodPost, "/room/hand", map[string]interface{}{"roomId": created.RoomID, "cards": []models.CardRef{}})
	assert.Equal(t, "invalid_hand", errorCode(t, w))

	huge := []models.CardRef{{ID: "big", Power: math.MaxInt64}, {ID: "one", Power: 1}}
	w = hs.do(host, http.MethodPost, "/room/hand", map[string]interface{}{"roomId": created.RoomID, "cards": huge})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "invalid_hand", errorCode(t, w))

	w = hs.do(host, http.MethodPost, "/settlement/fee", map[string]string{"roomId": created.RoomID})
	assert.Equal(t, "room_not_playing", errorCode(t, w))

	r := decodeRoom(t, hs.do(guest, http.MethodGet, "/room/mine", nil))
	assert.Equal(t, created.RoomID, r.ID)

	r = decodeRoom(t, hs.do(guest, http.MethodPost, "/room/leave", map[string]string{"roomId": created.RoomID}))
	assert.Equal(t, models.RoomCancelled, r.Status)
	w = hs.do(guest, http.MethodGet, "/room/mine", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMatchmakingEndpoints(t *testing.T) {
	hs := newHarness(t, store.NewMemoryStore())
	a := hs.login(hostAddr, "a")
	b := hs.login(guestAddr, "b")
	c := hs.login(thirdAddr, "c")

	w := hs.do(a, http.MethodGet, "/matchmaking/status", nil)
	assert.Equal(t, "entry_not_found", errorCode(t, w))

	var resp findMatchResponse
	w = hs.do(a, http.MethodPost, "/matchmaking/find", nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Matched)

	w = hs.do(b, http.MethodPost, "/matchmaking/find", nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.True(t, resp.Matched)

	w = hs.do(a, http.MethodGet, "/matchmaking/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var entry models.MatchmakingEntry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entry))
	assert.Equal(t, models.EntryMatched, entry.Status)
	assert.Equal(t, resp.RoomID, entry.MatchedRoom)

	r := decodeRoom(t, hs.do(a, http.MethodGet, "/room/"+resp.RoomID, nil))
	assert.Equal(t, hostAddr, r.Host.Address)
	assert.Equal(t, models.ModeRanked, r.Mode)

	w = hs.do(a, http.MethodPost, "/room/create", nil)
	assert.Equal(t, "already_in_room", errorCode(t, w))

	hs.do(c, http.MethodPost, "/matchmaking/find", nil)
	assert.Equal(t, http.StatusNoContent, hs.do(c, http.MethodPost, "/matchmaking/cancel", nil).Code)
	w = hs.do(c, http.MethodGet, "/matchmaking/status", nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entry))
	assert.Equal(t, models.EntryCancelled, entry.Status)
}

func TestAdminCleanup(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	hs := newHarness(t, store.NewMemoryStore(store.WithClock(func() time.Time { return now })))
	host := hs.login(hostAddr, "host")
	require.Equal(t, http.StatusOK, hs.do(host, http.MethodPost, "/room/create", nil).Code)

	assert.Equal(t, http.StatusForbidden, hs.do(nil, http.MethodPost, "/admin/cleanup", nil).Code)

	now = now.Add(time.Hour)
	req := httptest.NewRequest(http.MethodPost, "/admin/cleanup", nil)
	req.Header.Set(AdminTokenHeader, "s3cret")
	w := httptest.NewRecorder()
	hs.h.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	var resp cleanupResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Removed)
}

// downStore fails every call the way a lost Redis connection would.
type downStore struct{ store.Store }

var errDown = errors.New("dial tcp 127.0.0.1:6379: connect: connection refused")

func (downStore) GetRoomByPlayer(context.Context, string) (*models.Room, error) { return nil, errDown }
func (downStore) FindMatch(context.Context, models.Participant) (string, error) { return "", errDown }

// blipStore fails the first FindMatch calls and then recovers.
type blipStore struct {
	store.Store
	mu       sync.Mutex
	failures int
	calls    int
}

func (b *blipStore) FindMatch(ctx context.Context, p models.Participant) (string, error) {
	b.mu.Lock()
	b.calls++
	fail := b.calls <= b.failures
	b.mu.Unlock()
	if fail {
		return "", errDown
	}
	return b.Store.FindMatch(ctx, p)
}

func TestFindMatchRetriesUnavailableStore(t *testing.T) {
	s := &blipStore{Store: store.NewMemoryStore(), failures: 2}
	hs := newHarness(t, s)
	a := hs.login(hostAddr, "a")

	w := hs.do(a, http.MethodPost, "/matchmaking/find", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp findMatchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Matched)
	assert.Equal(t, 3, s.calls)

	w = hs.do(a, http.MethodGet, "/matchmaking/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var entry models.MatchmakingEntry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entry))
	assert.Equal(t, models.EntryWaiting, entry.Status)
}

func TestRequestBodies(t *testing.T) {
	hs := newHarness(t, store.NewMemoryStore())
	host := hs.login(hostAddr, "host")

	send := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/room/create", strings.NewReader(body))
		req.AddCookie(host)
		w := httptest.NewRecorder()
		hs.h.ServeHTTP(w, req)
		return w
	}

	w := send(`{"mode":`)
	assert.Equal(t, http.StatusBadRequest, w.Code, "truncated JSON is not an empty body")
	assert.Equal(t, CodeBadRequest, errorCode(t, w))

	w = send(`not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = send("")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var created roomIDResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	r := decodeRoom(t, hs.do(host, http.MethodGet, "/room/"+created.RoomID, nil))
	assert.Equal(t, models.ModeCasual, r.Mode, "an empty body falls back to the defaults")
}

func TestStoreUnavailable(t *testing.T) {
	hs := newHarness(t, downStore{store.NewMemoryStore()})
	a := hs.login(hostAddr, "a")

	w := hs.do(a, http.MethodGet, "/room/mine", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, CodeUnavailable, errorCode(t, w))

	w = hs.do(a, http.MethodPost, "/matchmaking/find", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
