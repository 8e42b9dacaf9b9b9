package handlers

import (
	"log"
	"sync"

	"github.com/google/uuid"

	"rps-arena/models"
	"rps-arena/services"
)

// frameWriter is the part of a socket the hub writes to.
type frameWriter interface {
	WriteJSON(v any) error
}

// Session is one connected socket. An agent may hold several sessions.
type Session struct {
	ID string

	writeMu sync.Mutex
	conn    frameWriter

	mu      sync.Mutex
	agent   *models.Agent
	matchID string
}

func (s *Session) Agent() *models.Agent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.agent
}

func (s *Session) SetAgent(a *models.Agent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agent = a
}

// CurrentMatch is the match the session was last paired into or joined.
func (s *Session) CurrentMatch() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.matchID
}

func (s *Session) SetCurrentMatch(matchID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.matchID = matchID
}

func (s *Session) agentID() string {
	if a := s.Agent(); a != nil {
		return a.ID
	}
	return ""
}

// Send writes one event. Writes on a session are serialized.
func (s *Session) Send(ev services.Event) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(ev)
}

// Hub tracks sessions and the match rooms they joined.
type Hub struct {
	mu       sync.Mutex
	sessions map[string]*Session
	rooms    map[string]map[string]*Session
}

func NewHub() *Hub {
	return &Hub{
		sessions: make(map[string]*Session),
		rooms:    make(map[string]map[string]*Session),
	}
}

// Register adds a socket and returns its session.
func (h *Hub) Register(conn frameWriter) *Session {
	s := &Session{ID: uuid.NewString(), conn: conn}
	h.mu.Lock()
	h.sessions[s.ID] = s
	h.mu.Unlock()
	return s
}

// Unregister drops the session and removes it from every room.
func (h *Hub) Unregister(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions, s.ID)
	for matchID, room := range h.rooms {
		delete(room, s.ID)
		if len(room) == 0 {
			delete(h.rooms, matchID)
		}
	}
}

// Join puts the session in the match room.
func (h *Hub) Join(matchID string, s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[matchID]
	if !ok {
		room = make(map[string]*Session)
		h.rooms[matchID] = room
	}
	room[s.ID] = s
}

func (h *Hub) members(matchID string) []*Session {
	h.mu.Lock()
	defer h.mu.Unlock()
	room := h.rooms[matchID]
	out := make([]*Session, 0, len(room))
	for _, s := range room {
		out = append(out, s)
	}
	return out
}

// Broadcast sends ev to every session in the match room.
func (h *Hub) Broadcast(matchID string, ev services.Event) {
	for _, s := range h.members(matchID) {
		if err := s.Send(ev); err != nil {
			log.Printf("[WS] Send %s to session %s: %v", ev.Name, s.ID, err)
		}
	}
}

// Session looks a connected session up by id.
func (h *Hub) Session(sessionID string) *Session {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sessions[sessionID]
}

// SendSession sends ev to one session, if it is still connected.
func (h *Hub) SendSession(sessionID string, ev services.Event) {
	s := h.Session(sessionID)
	if s == nil {
		return
	}
	if err := s.Send(ev); err != nil {
		log.Printf("[WS] Send %s to session %s: %v", ev.Name, s.ID, err)
	}
}

func (h *Hub) RoomSize(matchID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[matchID])
}

// InRoom reports whether any session of agentID is in the match room.
func (h *Hub) InRoom(matchID, agentID string) bool {
	for _, s := range h.members(matchID) {
		if s.agentID() == agentID {
			return true
		}
	}
	return false
}

// Connections is the number of open sockets.
func (h *Hub) Connections() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}
