package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"haven/internal/domain"
	"haven/internal/events"
	"haven/internal/models"
	"haven/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionService_CreateRequiresStoredSeekerRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	vol := f.volunteer(t, testutil.VolunteerOpts{})

	// a forged role claim does not matter, the stored role does
	_, err := f.lifecycle.Create(ctx, Principal{UserID: vol.UserID, Role: domain.RoleSeeker}, nil, CreateParams{})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.lifecycle.Create(ctx, Principal{}, nil, CreateParams{})
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestSessionService_CreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seeker := f.seeker(t, "KE")

	_, err := f.lifecycle.Create(ctx, seeker, nil, CreateParams{SessionType: "party"})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = f.lifecycle.Create(ctx, seeker, nil, CreateParams{SessionType: domain.SessionTypeOneOnOne, MaxParticipants: 5})
	assert.ErrorIs(t, err, ErrValidation)

	sess, err := f.lifecycle.Create(ctx, seeker, nil, CreateParams{SessionType: domain.SessionTypeGroup, Language: "EN", Topic: " exams "})
	require.NoError(t, err)
	assert.Equal(t, domain.SessionStatusWaiting, sess.Status)
	assert.Equal(t, 6, sess.MaxParticipants)
	assert.Equal(t, "en", sess.Language)
	assert.Equal(t, "exams", sess.Topic)
	assert.Equal(t, "USD", sess.Currency)
	assert.Equal(t, []string{events.SessionCreated}, f.bus.types())
}

func TestSessionService_SecondOpenSessionConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seeker := f.seeker(t, "KE")

	_, err := f.lifecycle.Create(ctx, seeker, nil, CreateParams{})
	require.NoError(t, err)
	_, err = f.lifecycle.Create(ctx, seeker, nil, CreateParams{})
	assert.ErrorIs(t, err, ErrActiveSessionExists)
}

func TestSessionService_ConcurrentCreatesYieldOneOpenSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seeker := f.seeker(t, "KE")

	const n = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	var ok, conflicts int
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.lifecycle.Create(ctx, seeker, nil, CreateParams{})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case assert.ErrorIs(t, err, ErrActiveSessionExists):
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, n-1, conflicts)
	var open int64
	require.NoError(t, f.db.Model(&models.ChatSession{}).
		Where("seeker_id = ? AND status IN ?", seeker.UserID, []string{domain.SessionStatusWaiting, domain.SessionStatusActive}).
		Count(&open).Error)
	assert.EqualValues(t, 1, open)
}

func TestSessionService_EndIsIdempotentAndFinalizesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seeker := f.seeker(t, "KE")
	vol := f.volunteer(t, testutil.VolunteerOpts{Country: "KE", Max: 2})

	sess, err := f.lifecycle.Create(ctx, seeker, &vol.UserID, CreateParams{})
	require.NoError(t, err)
	assert.Equal(t, domain.SessionStatusActive, sess.Status)
	f.assertCapacityConsistent(t, vol.UserID)

	f.advance(6 * time.Minute)
	first, err := f.lifecycle.End(ctx, seeker, sess.ID)
	require.NoError(t, err)
	assert.False(t, first.AlreadyEnded)
	require.NotNil(t, first.Reward.Earnings)
	assert.EqualValues(t, 240, first.Reward.Earnings.PointsEarned)
	assert.InDelta(t, 24.0, first.Reward.Earnings.AmountEarned, 0.001)
	f.assertCapacityConsistent(t, vol.UserID)
	assert.Equal(t, 0, testutil.ActiveCount(t, f.db, vol.UserID))

	// later, repeated end from the volunteer changes nothing
	f.advance(10 * time.Minute)
	second, err := f.lifecycle.End(ctx, vol, sess.ID)
	require.NoError(t, err)
	assert.True(t, second.AlreadyEnded)
	assert.Equal(t, first.Reward.Earnings.ID, second.Reward.Earnings.ID)
	assert.Equal(t, first.Reward.Earnings.PointsEarned, second.Reward.Earnings.PointsEarned)
	assert.Equal(t, 0, testutil.ActiveCount(t, f.db, vol.UserID))

	var rows int64
	require.NoError(t, f.db.Model(&models.VolunteerEarnings{}).Count(&rows).Error)
	assert.EqualValues(t, 1, rows)

	ended := 0
	for _, typ := range f.bus.types() {
		if typ == events.SessionEnded {
			ended++
		}
	}
	assert.Equal(t, 1, ended)
}

func TestSessionService_EndAuthorization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seeker := f.seeker(t, "KE")
	stranger := f.seeker(t, "KE")
	admin := f.admin(t)

	sess, err := f.lifecycle.Create(ctx, seeker, nil, CreateParams{})
	require.NoError(t, err)

	_, err = f.lifecycle.End(ctx, stranger, sess.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.lifecycle.End(ctx, admin, 4242)
	assert.ErrorIs(t, err, ErrNotFound)

	res, err := f.lifecycle.End(ctx, admin, sess.ID)
	require.NoError(t, err)
	assert.Nil(t, res.Reward.Earnings, "no volunteer means no earnings row")
	assert.Zero(t, res.Reward.Totals.Points)
}

func TestSessionService_AssignVolunteer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seeker := f.seeker(t, "KE")
	vol := f.volunteer(t, testutil.VolunteerOpts{})
	other := f.volunteer(t, testutil.VolunteerOpts{})

	sess, err := f.lifecycle.Create(ctx, seeker, nil, CreateParams{})
	require.NoError(t, err)

	_, err = f.lifecycle.AssignVolunteer(ctx, vol, sess.ID, other.UserID)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.lifecycle.AssignVolunteer(ctx, seeker, sess.ID, vol.UserID)
	assert.ErrorIs(t, err, ErrForbidden)

	f.advance(time.Minute)
	got, err := f.lifecycle.AssignVolunteer(ctx, vol, sess.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionStatusActive, got.Status)
	assert.Equal(t, domain.MatchedByManual, got.MatchedBy)
	assert.WithinDuration(t, f.clock, got.StartedAt, time.Second)
	f.assertCapacityConsistent(t, vol.UserID)

	_, err = f.lifecycle.AssignVolunteer(ctx, other, sess.ID, 0)
	assert.ErrorIs(t, err, ErrSessionNotWaiting)
	assert.Contains(t, f.bus.types(), events.VolunteerAssigned)
}

func TestSessionService_AssignToFullVolunteerFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seeker := f.seeker(t, "KE")
	admin := f.admin(t)
	vol := f.volunteer(t, testutil.VolunteerOpts{Max: 1, Active: 1})

	sess, err := f.lifecycle.Create(ctx, seeker, nil, CreateParams{})
	require.NoError(t, err)
	_, err = f.lifecycle.AssignVolunteer(ctx, admin, sess.ID, vol.UserID)
	assert.ErrorIs(t, err, ErrVolunteerUnavailable)

	got, err := f.sessions.GetByID(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionStatusWaiting, got.Status)
}

func TestSessionService_ContinueRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seeker := f.seeker(t, "KE")
	vol := f.volunteer(t, testutil.VolunteerOpts{})

	sess, err := f.lifecycle.Create(ctx, seeker, &vol.UserID, CreateParams{})
	require.NoError(t, err)

	_, err = f.lifecycle.Continue(ctx, seeker, sess.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	got, err := f.lifecycle.Continue(ctx, vol, sess.ID)
	require.NoError(t, err)
	assert.True(t, got.ContinuedAfterLimit)
	assert.False(t, got.AutoTerminated)
	assert.Equal(t, domain.SessionStatusActive, got.Status)

	_, err = f.lifecycle.End(ctx, vol, sess.ID)
	require.NoError(t, err)
	_, err = f.lifecycle.Continue(ctx, vol, sess.ID)
	assert.ErrorIs(t, err, ErrSessionNotActive)
}

func TestSessionService_RewardsPollingFlagsThenAutoTerminates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seeker := f.seeker(t, "KE")
	vol := f.volunteer(t, testutil.VolunteerOpts{})

	sess, err := f.lifecycle.Create(ctx, seeker, &vol.UserID, CreateParams{})
	require.NoError(t, err)

	f.advance(4 * time.Minute)
	snap, err := f.lifecycle.Rewards(ctx, seeker, sess.ID)
	require.NoError(t, err)
	assert.False(t, snap.ShouldAutoTerminate)
	assert.EqualValues(t, 160, snap.Points)

	f.advance(90 * time.Second)
	snap, err = f.lifecycle.Rewards(ctx, vol, sess.ID)
	require.NoError(t, err)
	assert.True(t, snap.ShouldAutoTerminate)
	assert.True(t, snap.LimitReached)
	assert.True(t, snap.AutoTerminated)
	assert.Equal(t, domain.SessionStatusActive, snap.Status)

	// past the grace period the poll ends the session
	f.advance(2 * time.Minute)
	snap, err = f.lifecycle.Rewards(ctx, seeker, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionStatusEnded, snap.Status)
	assert.True(t, snap.AutoTerminated)
	assert.Equal(t, 0, testutil.ActiveCount(t, f.db, vol.UserID))
}

func TestSessionService_ContinuedSessionIsRerated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seeker := f.seeker(t, "KE")
	vol := f.volunteer(t, testutil.VolunteerOpts{})

	sess, err := f.lifecycle.Create(ctx, seeker, &vol.UserID, CreateParams{})
	require.NoError(t, err)
	f.advance(5*time.Minute + 10*time.Second)
	snap, _, err := f.lifecycle.RewardAction(ctx, vol, sess.ID, "continue")
	require.NoError(t, err)
	assert.True(t, snap.ContinuedAfterLimit)

	f.advance(50 * time.Second)
	_, fin, err := f.lifecycle.RewardAction(ctx, vol, sess.ID, "finalize")
	require.NoError(t, err)
	assert.EqualValues(t, 360, fin.Earnings.PointsEarned)

	_, _, err = f.lifecycle.RewardAction(ctx, vol, sess.ID, "refund")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestSessionService_ListIsRoleScoped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.seeker(t, "KE")
	b := f.seeker(t, "KE")
	vol := f.volunteer(t, testutil.VolunteerOpts{})
	admin := f.admin(t)

	_, err := f.lifecycle.Create(ctx, a, &vol.UserID, CreateParams{})
	require.NoError(t, err)
	_, err = f.lifecycle.Create(ctx, b, nil, CreateParams{})
	require.NoError(t, err)

	list, _, err := f.lifecycle.List(ctx, a, ListFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	list, _, err = f.lifecycle.List(ctx, vol, ListFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	queue, _, err := f.lifecycle.List(ctx, vol, ListFilter{Status: domain.SessionStatusWaiting})
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, b.UserID, queue[0].SeekerID)

	all, total, err := f.lifecycle.List(ctx, admin, ListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.EqualValues(t, 2, total)

	byVolunteer, total, err := f.lifecycle.List(ctx, admin, ListFilter{UserID: vol.UserID})
	require.NoError(t, err)
	require.Len(t, byVolunteer, 1)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, a.UserID, byVolunteer[0].SeekerID)

	bySeeker, _, err := f.lifecycle.List(ctx, admin, ListFilter{UserID: b.UserID})
	require.NoError(t, err)
	require.Len(t, bySeeker, 1)
	assert.Nil(t, bySeeker[0].VolunteerID)

	// non-admins cannot widen their scope
	own, _, err := f.lifecycle.List(ctx, a, ListFilter{UserID: b.UserID})
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, a.UserID, own[0].SeekerID)

	_, _, err = f.lifecycle.List(ctx, admin, ListFilter{Status: "paused"})
	assert.ErrorIs(t, err, ErrValidation)
}
