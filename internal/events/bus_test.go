package events

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBus_DeliversToEverySubscriber(t *testing.T) {
	b := NewBus(8, 2)
	var mu sync.Mutex
	got := map[string]int{}
	for i := 0; i < 2; i++ {
		b.Subscribe(func(ctx context.Context, e Event) error {
			mu.Lock()
			got[e.Type]++
			mu.Unlock()
			return nil
		})
	}
	b.Start()
	b.Publish(Event{Type: SessionCreated, SessionID: 1})
	b.Publish(Event{Type: SessionEnded, SessionID: 1})
	b.Close()

	assert.Equal(t, 2, got[SessionCreated])
	assert.Equal(t, 2, got[SessionEnded])
}

func TestBus_StampsIDAndSurvivesFailingHandlers(t *testing.T) {
	b := NewBus(4, 1)
	var seen []Event
	b.Subscribe(func(ctx context.Context, e Event) error { panic("boom") })
	b.Subscribe(func(ctx context.Context, e Event) error { return errors.New("nope") })
	b.Subscribe(func(ctx context.Context, e Event) error {
		seen = append(seen, e)
		return nil
	})
	b.Start()
	b.Publish(Event{Type: VolunteerAssigned, SessionID: 9})
	b.Close()

	if assert.Len(t, seen, 1) {
		assert.NotEmpty(t, seen[0].ID)
		assert.False(t, seen[0].OccurredAt.IsZero())
	}
}

func TestBus_PublishAfterCloseIsDropped(t *testing.T) {
	b := NewBus(1, 1)
	b.Start()
	b.Close()
	assert.NotPanics(t, func() { b.Publish(Event{Type: SessionEnded}) })
	b.Close()
}

func TestEvent_Recipients(t *testing.T) {
	v := uint(5)
	assert.Equal(t, []uint{1}, Event{SeekerID: 1}.Recipients())
	assert.Equal(t, []uint{1, 5}, Event{SeekerID: 1, VolunteerID: &v}.Recipients())
}
