package handlers

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rps-arena/models"
	"rps-arena/services"
)

// recorder stands in for a socket and keeps every event written to it.
type recorder struct {
	mu     sync.Mutex
	events []services.Event
	err    error
}

func (r *recorder) WriteJSON(v any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, v.(services.Event))
	return nil
}

func (r *recorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Name)
	}
	return out
}

func (r *recorder) last() services.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return services.Event{}
	}
	return r.events[len(r.events)-1]
}

func TestHubRooms(t *testing.T) {
	hub := NewHub()
	c1, c2, c3 := &recorder{}, &recorder{}, &recorder{}
	s1, s2, s3 := hub.Register(c1), hub.Register(c2), hub.Register(c3)
	s1.SetAgent(&models.Agent{ID: "a1"})
	s2.SetAgent(&models.Agent{ID: "a2"})

	hub.Join("m1", s1)
	hub.Join("m1", s2)
	hub.Join("m1", s1)
	hub.Join("m2", s3)

	assert.Equal(t, 3, hub.Connections())
	assert.Equal(t, 2, hub.RoomSize("m1"))
	assert.True(t, hub.InRoom("m1", "a1"))
	assert.True(t, hub.InRoom("m1", "a2"))
	assert.False(t, hub.InRoom("m2", "a1"))

	hub.Broadcast("m1", services.Event{Name: services.EventRoundStarted})
	assert.Equal(t, []string{services.EventRoundStarted}, c1.names())
	assert.Equal(t, []string{services.EventRoundStarted}, c2.names())
	assert.Empty(t, c3.names())

	hub.SendSession(s3.ID, services.Event{Name: services.EventMatched})
	hub.SendSession("gone", services.Event{Name: services.EventMatched})
	assert.Equal(t, []string{services.EventMatched}, c3.names())

	hub.Unregister(s1)
	assert.Equal(t, 1, hub.RoomSize("m1"))
	assert.False(t, hub.InRoom("m1", "a1"))
	assert.Nil(t, hub.Session(s1.ID))

	hub.Unregister(s2)
	assert.Equal(t, 0, hub.RoomSize("m1"))
}

func TestHubBroadcastSkipsFailedWriter(t *testing.T) {
	hub := NewHub()
	bad, good := &recorder{err: errors.New("closed")}, &recorder{}
	hub.Join("m1", hub.Register(bad))
	hub.Join("m1", hub.Register(good))

	hub.Broadcast("m1", services.Event{Name: services.EventMessage})
	require.Len(t, good.names(), 1)
	assert.Empty(t, bad.names())
}
