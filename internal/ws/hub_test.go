package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"haven/config"
	"haven/internal/auth"
	"haven/internal/events"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionFeed_DeliversToParticipantsOnly(t *testing.T) {
	hub := NewHub()
	seeker := NewClient(1, 4)
	volunteer := NewClient(2, 4)
	stranger := NewClient(3, 4)
	for _, c := range []*Client{seeker, volunteer, stranger} {
		hub.Register(c)
	}

	vid := uint(2)
	feed := NewSessionFeed(hub)
	require.NoError(t, feed.HandleEvent(context.Background(), events.Event{Type: events.SessionEnded, SessionID: 7, SeekerID: 1, VolunteerID: &vid}))

	for _, c := range []*Client{seeker, volunteer} {
		select {
		case raw := <-c.Send:
			var msg FeedMessage
			require.NoError(t, json.Unmarshal(raw, &msg))
			assert.Equal(t, events.SessionEnded, msg.Type)
			assert.Equal(t, uint(7), msg.Event.SessionID)
		default:
			t.Fatalf("user %d got nothing", c.UserID)
		}
	}
	assert.Len(t, stranger.Send, 0)
}

func TestHub_ClosedClientIsSkipped(t *testing.T) {
	hub := NewHub()
	c := NewClient(1, 1)
	hub.Register(c)
	c.Close()
	c.Close()
	assert.Equal(t, 0, hub.SendToUser(1, map[string]string{"x": "y"}))
	assert.Equal(t, 0, hub.ConnectedUsers())
}

func TestUpgradeSessionFeed(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := &config.JWTConfig{AccessSecret: "s", RefreshSecret: "r", AccessExpiry: time.Minute, RefreshExpiry: time.Hour, Issuer: "haven"}
	hub := NewHub()
	r := gin.New()
	r.GET("/ws/sessions", UpgradeSessionFeed(cfg, hub))
	srv := httptest.NewServer(r)
	defer srv.Close()
	base := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/sessions"

	_, resp, err := websocket.DefaultDialer.Dial(base, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	tok, err := auth.GenerateAccessToken(cfg, 5, "v@x.y", "VOLUNTEER")
	require.NoError(t, err)
	conn, _, err := websocket.DefaultDialer.Dial(base+"?token="+tok, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.ConnectedUsers() == 1 }, time.Second, 10*time.Millisecond)
	hub.SendToUser(5, FeedMessage{Type: events.VolunteerAssigned, Event: events.Event{SessionID: 11}})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg FeedMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, uint(11), msg.Event.SessionID)
}
