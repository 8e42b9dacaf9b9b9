package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"rps-arena/game"
	"rps-arena/middleware"
	"rps-arena/models"
	"rps-arena/services"
)

// Inbound event names.
const (
	inAuthenticate = "authenticate"
	inJoinQueue    = "join_queue"
	inDepositAck   = "deposit_ack"
	inDepositTx    = "deposit_tx"
	inJoinMatch    = "join_match"
	inSubmitMove   = "submit_move"
	inSendMessage  = "send_message"
)

type inboundFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type authenticateRequest struct {
	APIKey string `json:"api_key"`
}

type joinQueueRequest struct {
	WagerTier int `json:"wager_tier"`
}

type depositRequest struct {
	MatchID string `json:"match_id"`
	TxHash  string `json:"tx_hash"`
}

type joinMatchRequest struct {
	MatchID string `json:"match_id"`
}

type moveRequest struct {
	MatchID string `json:"match_id"`
	Choice  string `json:"choice"`
}

type messageRequest struct {
	MatchID string `json:"match_id"`
	Body    string `json:"body"`
}

var (
	errUnknownEvent = errors.New("unsupported event")
	errBadPayload   = errors.New("invalid event payload")
	errNoMatch      = errors.New("match_id required")
)

// WSHandler serves the realtime event socket.
type WSHandler struct {
	hub     *Hub
	auth    *services.AuthService
	pairing *services.PairingService
	matches *services.MatchService
}

func NewWSHandler(hub *Hub, auth *services.AuthService, pairing *services.PairingService, matches *services.MatchService) *WSHandler {
	return &WSHandler{hub: hub, auth: auth, pairing: pairing, matches: matches}
}

// Upgrade is the fiber handler for the socket route. An agent resolved by
// AgentAuthMiddleware starts the session authenticated.
func (h *WSHandler) Upgrade() fiber.Handler {
	return websocket.New(func(c *websocket.Conn) {
		sess := h.hub.Register(c)
		defer h.disconnect(sess)

		if agent, ok := c.Locals(middleware.AgentLocalsKey).(*models.Agent); ok && agent != nil {
			sess.SetAgent(agent)
			h.reply(sess, services.Event{Name: services.EventAuthenticated, Data: services.AuthenticatedPayload{AgentID: agent.ID, Name: agent.Name}})
		}
		log.Printf("[WS] Session %s connected", sess.ID)

		for {
			var f inboundFrame
			if err := c.ReadJSON(&f); err != nil {
				if badFrame(err) {
					h.reply(sess, services.ErrorEvent(errBadPayload))
					continue
				}
				return
			}
			h.handleFrame(context.Background(), sess, f)
		}
	})
}

// badFrame reports whether a read failed on the frame's JSON rather than on
// the connection, so the session can carry on.
func badFrame(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr)
}

func (h *WSHandler) disconnect(sess *Session) {
	if id := sess.agentID(); id != "" {
		h.pairing.Dequeue(id)
	}
	h.hub.Unregister(sess)
	log.Printf("[WS] Session %s disconnected", sess.ID)
}

func (h *WSHandler) reply(sess *Session, ev services.Event) {
	if err := sess.Send(ev); err != nil {
		log.Printf("[WS] Reply %s to session %s: %v", ev.Name, sess.ID, err)
	}
}

// handleFrame routes one inbound event. Rejections go back to the sender only.
func (h *WSHandler) handleFrame(ctx context.Context, sess *Session, f inboundFrame) {
	var err error
	switch f.Event {
	case inAuthenticate:
		err = h.onAuthenticate(ctx, sess, f.Data)
	case inJoinQueue:
		err = h.onJoinQueue(ctx, sess, f.Data)
	case inDepositAck, inDepositTx:
		err = h.onDeposit(ctx, sess, f.Data)
	case inJoinMatch:
		err = h.onJoinMatch(ctx, sess, f.Data)
	case inSubmitMove:
		err = h.onSubmitMove(ctx, sess, f.Data)
	case inSendMessage:
		err = h.onSendMessage(ctx, sess, f.Data)
	default:
		err = errUnknownEvent
	}
	if err != nil {
		h.reply(sess, services.ErrorEvent(err))
	}
}

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return errBadPayload
	}
	return nil
}

func (h *WSHandler) onAuthenticate(ctx context.Context, sess *Session, raw json.RawMessage) error {
	var req authenticateRequest
	if err := decode(raw, &req); err != nil {
		return err
	}
	agent, err := h.auth.Authenticate(ctx, req.APIKey)
	if err != nil {
		return err
	}
	sess.SetAgent(agent)
	log.Printf("[WS] Session %s authenticated as %s", sess.ID, agent.ID)
	h.reply(sess, services.Event{Name: services.EventAuthenticated, Data: services.AuthenticatedPayload{AgentID: agent.ID, Name: agent.Name}})
	return nil
}

func (h *WSHandler) onJoinQueue(ctx context.Context, sess *Session, raw json.RawMessage) error {
	agent := sess.Agent()
	if agent == nil {
		return services.ErrNotAuthenticated
	}
	var req joinQueueRequest
	if err := decode(raw, &req); err != nil {
		return err
	}
	tier, err := game.ParseTier(req.WagerTier)
	if err != nil {
		return err
	}

	h.pairing.Enqueue(services.QueueEntry{
		AgentID:   agent.ID,
		AgentName: agent.Name,
		SessionID: sess.ID,
		Tier:      tier,
	})
	h.reply(sess, services.Event{Name: services.EventQueued, Data: services.QueuedPayload{
		WagerTier: int(tier),
		Waiting:   h.pairing.Waiting(tier),
	}})

	pair, err := h.pairing.TryPair(ctx, tier)
	if errors.Is(err, services.ErrNoPair) {
		return nil
	}
	if err != nil {
		log.Printf("[MATCHMAKING] Pairing tier %d failed: %v", tier, err)
		return errors.New("failed to create match")
	}
	for _, e := range []services.QueueEntry{pair.First, pair.Second} {
		if s := h.hub.Session(e.SessionID); s != nil {
			s.SetCurrentMatch(pair.Match.ID)
		}
		h.hub.SendSession(e.SessionID, pair.MatchedEvent(e.AgentID))
	}
	return nil
}

func (h *WSHandler) onDeposit(ctx context.Context, sess *Session, raw json.RawMessage) error {
	agent := sess.Agent()
	if agent == nil {
		return services.ErrNotAuthenticated
	}
	var req depositRequest
	if err := decode(raw, &req); err != nil {
		return err
	}
	if err := h.matches.RecordDeposit(ctx, agent.ID, req.MatchID, req.TxHash); err != nil {
		return err
	}
	h.reply(sess, services.Event{Name: services.EventDepositSaved, Data: services.DepositSavedPayload{
		MatchID: strings.TrimSpace(req.MatchID),
		TxHash:  strings.TrimSpace(req.TxHash),
	}})
	return nil
}

func (h *WSHandler) onJoinMatch(ctx context.Context, sess *Session, raw json.RawMessage) error {
	var req joinMatchRequest
	if err := decode(raw, &req); err != nil {
		return err
	}
	matchID := strings.TrimSpace(req.MatchID)
	if matchID == "" {
		return errNoMatch
	}

	h.hub.Join(matchID, sess)
	sess.SetCurrentMatch(matchID)
	state, err := h.matches.JoinMatch(ctx, sess.agentID(), matchID)
	if err != nil {
		return err
	}
	h.reply(sess, services.Event{Name: services.EventGameState, Data: state})
	return nil
}

// matchFor prefers an explicit match id, falling back to the session's current match.
func matchFor(sess *Session, explicit string) (string, error) {
	if id := strings.TrimSpace(explicit); id != "" {
		return id, nil
	}
	if id := sess.CurrentMatch(); id != "" {
		return id, nil
	}
	return "", errNoMatch
}

func (h *WSHandler) onSubmitMove(ctx context.Context, sess *Session, raw json.RawMessage) error {
	agent := sess.Agent()
	if agent == nil {
		return services.ErrNotAuthenticated
	}
	var req moveRequest
	if err := decode(raw, &req); err != nil {
		return err
	}
	matchID, err := matchFor(sess, req.MatchID)
	if err != nil {
		return err
	}
	return h.matches.SubmitMove(ctx, agent.ID, matchID, req.Choice)
}

func (h *WSHandler) onSendMessage(ctx context.Context, sess *Session, raw json.RawMessage) error {
	agent := sess.Agent()
	if agent == nil {
		return services.ErrNotAuthenticated
	}
	var req messageRequest
	if err := decode(raw, &req); err != nil {
		return err
	}
	matchID, err := matchFor(sess, req.MatchID)
	if err != nil {
		return err
	}
	return h.matches.SendMessage(ctx, agent.ID, agent.Name, matchID, req.Body)
}
