package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"rps-arena/config"
	"rps-arena/escrow"
	"rps-arena/models"
	"rps-arena/services"
	"rps-arena/store"
)

type arena struct {
	store   *store.GormStore
	hub     *Hub
	auth    *services.AuthService
	pairing *services.PairingService
	matches *services.MatchService
	ws      *WSHandler
}

func newArena(t *testing.T) *arena {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	st := store.New(db)
	require.NoError(t, st.Migrate())
	for i, key := range []string{"key-1", "key-2"} {
		a := &models.Agent{ID: []string{"a1", "a2"}[i], Name: []string{"alpha", "beta"}[i], Elo: 1000, APIKeyHash: services.HashAPIKey(key)}
		require.NoError(t, db.Create(a).Error)
	}

	cfg := config.DefaultGame()
	cfg.RoundMinDelay = 0
	cfg.RoundCooldown = 0
	cfg.DepositCheckRetries = 0

	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	gw := &escrow.Gateway{}
	a := &arena{store: st, hub: NewHub(), auth: services.NewAuthService(st)}
	a.pairing = services.NewPairingService(st, gw, clock, cfg.DepositTimeout, "")
	a.matches = services.NewMatchService(st, gw, a.hub, clock, cfg)
	t.Cleanup(a.matches.Close)
	a.ws = NewWSHandler(a.hub, a.auth, a.pairing, a.matches)
	return a
}

func frame(t *testing.T, event string, data any) inboundFrame {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	return inboundFrame{Event: event, Data: raw}
}

func errorText(t *testing.T, ev services.Event) string {
	t.Helper()
	require.Equal(t, services.EventError, ev.Name)
	return ev.Data.(services.ErrorPayload).Error
}

func TestSocketRejectsBeforeAuthentication(t *testing.T) {
	a := newArena(t)
	ctx := context.Background()
	conn := &recorder{}
	sess := a.hub.Register(conn)

	a.ws.handleFrame(ctx, sess, frame(t, inJoinQueue, joinQueueRequest{WagerTier: 1}))
	assert.Equal(t, services.ErrNotAuthenticated.Error(), errorText(t, conn.last()))

	a.ws.handleFrame(ctx, sess, frame(t, inAuthenticate, authenticateRequest{APIKey: "wrong"}))
	assert.Equal(t, services.ErrInvalidAPIKey.Error(), errorText(t, conn.last()))

	a.ws.handleFrame(ctx, sess, frame(t, "dance", nil))
	assert.Equal(t, errUnknownEvent.Error(), errorText(t, conn.last()))

	a.ws.handleFrame(ctx, sess, inboundFrame{Event: inJoinMatch, Data: json.RawMessage(`"oops"`)})
	assert.Equal(t, errBadPayload.Error(), errorText(t, conn.last()))
}

func TestSocketMatchFlow(t *testing.T) {
	a := newArena(t)
	ctx := context.Background()
	c1, c2 := &recorder{}, &recorder{}
	s1, s2 := a.hub.Register(c1), a.hub.Register(c2)

	a.ws.handleFrame(ctx, s1, frame(t, inAuthenticate, authenticateRequest{APIKey: "key-1"}))
	a.ws.handleFrame(ctx, s2, frame(t, inAuthenticate, authenticateRequest{APIKey: "key-2"}))
	assert.Equal(t, services.EventAuthenticated, c1.last().Name)
	assert.Equal(t, "a2", c2.last().Data.(services.AuthenticatedPayload).AgentID)

	a.ws.handleFrame(ctx, s1, frame(t, inJoinQueue, joinQueueRequest{WagerTier: 7}))
	assert.Contains(t, errorText(t, c1.last()), "wager tier")

	a.ws.handleFrame(ctx, s1, frame(t, inJoinQueue, joinQueueRequest{WagerTier: 1}))
	assert.Equal(t, services.EventQueued, c1.last().Name)
	a.ws.handleFrame(ctx, s2, frame(t, inJoinQueue, joinQueueRequest{WagerTier: 1}))

	require.Equal(t, services.EventMatched, c1.last().Name)
	require.Equal(t, services.EventMatched, c2.last().Name)
	matched := c1.last().Data.(services.MatchedPayload)
	assert.Equal(t, "a2", matched.Opponent.ID)
	assert.Empty(t, matched.EscrowAddress)
	matchID := matched.MatchID
	assert.Equal(t, matchID, s2.CurrentMatch())

	a.ws.handleFrame(ctx, s1, frame(t, inDepositAck, depositRequest{MatchID: matchID, TxHash: "0xfeed"}))
	assert.Equal(t, services.EventDepositSaved, c1.last().Name)
	a.ws.handleFrame(ctx, s1, frame(t, inDepositTx, depositRequest{MatchID: matchID, TxHash: "0xbeef"}))
	assert.Equal(t, services.ErrDepositRecorded.Error(), errorText(t, c1.last()))

	a.ws.handleFrame(ctx, s1, frame(t, inJoinMatch, joinMatchRequest{MatchID: matchID}))
	state := c1.last().Data.(*services.GameStatePayload)
	assert.Equal(t, string(models.MatchWaitingDeposits), state.Status)

	a.ws.handleFrame(ctx, s2, frame(t, inJoinMatch, joinMatchRequest{MatchID: matchID}))
	assert.Contains(t, c1.names(), services.EventRoundStarted)
	state = c2.last().Data.(*services.GameStatePayload)
	assert.Equal(t, string(models.MatchPlaying), state.Status)
	assert.Equal(t, 1, state.CurrentRound)

	a.ws.handleFrame(ctx, s1, frame(t, inSendMessage, messageRequest{Body: "gl"}))
	assert.Equal(t, services.EventMessage, c2.last().Name)

	a.ws.handleFrame(ctx, s1, frame(t, inSubmitMove, moveRequest{Choice: "rock"}))
	a.ws.handleFrame(ctx, s2, frame(t, inSubmitMove, moveRequest{MatchID: matchID, Choice: "scissors"}))
	assert.Contains(t, c2.names(), services.EventRoundResolved)
	assert.Equal(t, services.EventRoundStarted, c1.last().Name)

	m, err := a.store.GetMatch(ctx, matchID)
	require.NoError(t, err)
	assert.Equal(t, 1, m.Agent1Wins)
	assert.Equal(t, 2, m.CurrentRound)
}

func TestDisconnectLeavesQueue(t *testing.T) {
	a := newArena(t)
	ctx := context.Background()
	conn := &recorder{}
	sess := a.hub.Register(conn)

	a.ws.handleFrame(ctx, sess, frame(t, inAuthenticate, authenticateRequest{APIKey: "key-1"}))
	a.ws.handleFrame(ctx, sess, frame(t, inJoinQueue, joinQueueRequest{WagerTier: 2}))
	require.Equal(t, 1, a.pairing.Waiting(2))

	a.ws.disconnect(sess)
	assert.Equal(t, 0, a.pairing.Waiting(2))
	assert.Equal(t, 0, a.hub.Connections())
}

func TestRoutes(t *testing.T) {
	a := newArena(t)
	app := fiber.New()
	SetupRoutes(app, a.hub, a.auth, a.matches, a.ws)

	resp, err := app.Test(httptest.NewRequest("GET", "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/matches/missing", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/ws", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUpgradeRequired, resp.StatusCode)

	m := &models.Match{Agent1ID: "a1", Agent2ID: "a2", WagerTier: 1, BestOf: 5, Status: models.MatchWaitingDeposits}
	require.NoError(t, a.store.CreateMatch(context.Background(), m))
	resp, err = app.Test(httptest.NewRequest("GET", "/matches/"+m.ID, nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var got struct {
		Match  models.Match   `json:"match"`
		Rounds []models.Round `json:"rounds"`
	}
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, m.ID, got.Match.ID)
	assert.Empty(t, got.Rounds)
}

func TestBadFrameKeepsSession(t *testing.T) {
	var f inboundFrame
	assert.True(t, badFrame(json.Unmarshal([]byte(`{"event":5}`), &f)))
	assert.True(t, badFrame(json.Unmarshal([]byte(`{"event":`), &f)))
	assert.True(t, badFrame(json.Unmarshal([]byte(`[1,2]`), &f)))
	assert.False(t, badFrame(io.ErrUnexpectedEOF))
	assert.False(t, badFrame(errors.New("websocket: close 1000 (normal)")))
}
