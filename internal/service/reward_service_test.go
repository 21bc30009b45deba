package service

import (
	"context"
	"testing"
	"time"

	"haven/config"
	"haven/internal/database"
	"haven/internal/models"
	"haven/internal/repository"
	"haven/internal/reward"
	"haven/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoredSettings_FallsBackWithoutActiveRow(t *testing.T) {
	f := newFixture(t)
	p := NewStoredSettings(repository.NewRewardSettingsRepository(f.db), reward.DefaultSettings())
	assert.Equal(t, reward.DefaultSettings(), p.Current(context.Background()))

	cfg := config.Defaults().Rewards
	cfg.PointsPerMinute = 60
	require.NoError(t, database.SeedRewardSettings(f.db, &cfg))
	assert.Equal(t, 60.0, p.Current(context.Background()).PointsPerMinute)
}

func TestRewardService_UpdateSettingsKeepsOneActiveRow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.rewards.UpdateSettings(ctx, reward.Settings{PointsPerMinute: 0, PointsToDollarRate: 1, MaxFreeMinutes: 1, ContinuationRateMultiplier: 1})
	assert.ErrorIs(t, err, ErrValidation)

	for _, ppm := range []float64{30, 50} {
		st := reward.DefaultSettings()
		st.PointsPerMinute = ppm
		_, err := f.rewards.UpdateSettings(ctx, st)
		require.NoError(t, err)
	}
	var active int64
	require.NoError(t, f.db.Model(&models.RewardSettings{}).Where("is_active = ?", true).Count(&active).Error)
	assert.EqualValues(t, 1, active)
	assert.Equal(t, 50.0, f.rewards.Settings(ctx).PointsPerMinute)

	history, err := f.rewards.SettingsHistory(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestRewardService_SnapshotUsesSessionCurrency(t *testing.T) {
	f := newFixture(t)
	start := time.Now().Add(-3 * time.Minute)
	vid := uint(9)
	sess := &models.ChatSession{
		ID: 1, VolunteerID: &vid, Status: "active", StartedAt: start,
		Currency: "KES", ExchangeRate: 130,
	}
	snap := f.rewards.Snapshot(sess, reward.DefaultSettings(), start.Add(3*time.Minute))
	assert.EqualValues(t, 120, snap.Points)
	assert.InDelta(t, 12.0, snap.Amount, 0.001)
	assert.InDelta(t, 1560.0, snap.LocalAmount, 0.001)
	assert.InDelta(t, 2.0, snap.FreeMinutesRemaining, 0.001)
	assert.False(t, snap.LimitReached)

	// a session nobody picked up accrues nothing
	waiting := &models.ChatSession{ID: 2, Status: "waiting", StartedAt: start}
	snap = f.rewards.Snapshot(waiting, reward.DefaultSettings(), start.Add(time.Hour))
	assert.Zero(t, snap.Points)
	assert.Nil(t, snap.LimitAt)
}

func TestRewardService_EarningsOnlyForVolunteers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seeker := f.seeker(t, "KE")
	vol := f.volunteer(t, testutil.VolunteerOpts{})

	sess, err := f.lifecycle.Create(ctx, seeker, &vol.UserID, CreateParams{})
	require.NoError(t, err)
	f.advance(2 * time.Minute)
	_, err = f.lifecycle.End(ctx, seeker, sess.ID)
	require.NoError(t, err)

	page, err := f.rewards.Earnings(ctx, vol, 0, 0)
	require.NoError(t, err)
	require.Len(t, page.Earnings, 1)
	assert.EqualValues(t, 80, page.Summary.PointsEarned)
	assert.InDelta(t, 8.0, page.Summary.PendingAmount, 0.001)

	_, err = f.rewards.Earnings(ctx, seeker, 0, 0)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.lifecycle.End(ctx, seeker, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}
