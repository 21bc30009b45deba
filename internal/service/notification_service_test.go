package service

import (
	"context"
	"errors"
	"testing"

	"haven/internal/domain"
	"haven/internal/events"
	"haven/internal/repository"
	"haven/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockPusher struct {
	mock.Mock
}

func (m *mockPusher) Push(ctx context.Context, token, notifType, title, body string, data map[string]interface{}) error {
	args := m.Called(ctx, token, notifType, title, body, data)
	return args.Error(0)
}

func TestNotificationService_SessionCreatedNotifiesBothSides(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seeker := testutil.CreateUser(t, f.db, domain.RoleSeeker, testutil.UserOpts{})
	vol := testutil.CreateVolunteer(t, f.db, testutil.VolunteerOpts{})
	users := repository.NewUserRepository(f.db)
	require.NoError(t, users.SetFCMToken(ctx, vol.ID, "vol-token"))

	push := &mockPusher{}
	push.On("Push", mock.Anything, "vol-token", domain.NotificationSessionCreated, mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("fcm down")).Once()

	svc := NewNotificationService(repository.NewNotificationRepository(f.db), users, push)
	err := svc.HandleEvent(ctx, events.Event{Type: events.SessionCreated, SessionID: 3, SeekerID: seeker.ID, VolunteerID: &vol.ID})
	require.NoError(t, err, "push failures are logged, not returned")
	push.AssertExpectations(t)

	page, err := svc.List(ctx, seeker.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, page.Notifications, 1)
	assert.Equal(t, domain.NotificationVolunteerAssigned, page.Notifications[0].Type)
	assert.EqualValues(t, 1, page.Unread)

	require.NoError(t, svc.MarkRead(ctx, seeker.ID, page.Notifications[0].ID))
	assert.ErrorIs(t, svc.MarkRead(ctx, vol.ID, page.Notifications[0].ID), ErrNotFound)
	page, err = svc.List(ctx, seeker.ID, 0, 0)
	require.NoError(t, err)
	assert.Zero(t, page.Unread)
}

func TestNotificationService_SessionEndedReachesParticipants(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seeker := testutil.CreateUser(t, f.db, domain.RoleSeeker, testutil.UserOpts{})
	vol := testutil.CreateVolunteer(t, f.db, testutil.VolunteerOpts{})

	var nilFCM *FCMService
	svc := NewNotificationService(repository.NewNotificationRepository(f.db), repository.NewUserRepository(f.db), nilFCM)
	err := svc.HandleEvent(ctx, events.Event{
		Type: events.SessionEnded, SessionID: 4, SeekerID: seeker.ID, VolunteerID: &vol.ID,
		Data: map[string]interface{}{"reward_points": int64(240)},
	})
	require.NoError(t, err)

	page, err := svc.List(ctx, vol.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, page.Notifications, 1)
	assert.Contains(t, page.Notifications[0].Body, "240 points")
	assert.Contains(t, page.Notifications[0].Data, `"reward_points":240`)
}
