package ws

import (
	"context"

	"haven/internal/events"
)

// FeedMessage is what session participants receive on /ws/sessions.
type FeedMessage struct {
	Type  string       `json:"type"`
	Event events.Event `json:"event"`
}

// SessionFeed forwards session events to the participants' open sockets.
type SessionFeed struct {
	hub *Hub
}

func NewSessionFeed(hub *Hub) *SessionFeed {
	return &SessionFeed{hub: hub}
}

// HandleEvent is an events.Handler.
func (f *SessionFeed) HandleEvent(_ context.Context, e events.Event) error {
	msg := FeedMessage{Type: e.Type, Event: e}
	for _, uid := range e.Recipients() {
		f.hub.SendToUser(uid, msg)
	}
	return nil
}
