package database

import (
	"errors"
	"testing"

	"haven/config"
	"haven/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := OpenSQLite("file:" + uuid.NewString() + "?mode=memory&cache=shared")
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))
	return db
}

func TestOpenSessionIndex_RejectsSecondOpenSession(t *testing.T) {
	db := openTestDB(t)
	seeker := uint(7)

	first := &models.ChatSession{SeekerID: seeker, OpenSeekerID: &seeker, Status: "waiting", SessionType: "one_on_one"}
	require.NoError(t, db.Create(first).Error)

	second := &models.ChatSession{SeekerID: seeker, OpenSeekerID: &seeker, Status: "waiting", SessionType: "one_on_one"}
	err := db.Create(second).Error
	assert.True(t, errors.Is(err, gorm.ErrDuplicatedKey), "got %v", err)

	// once the first session is closed the slot is released
	require.NoError(t, db.Model(first).Update("open_seeker_id", nil).Error)
	assert.NoError(t, db.Create(second).Error)
}

func TestSeedRewardSettings_Idempotent(t *testing.T) {
	db := openTestDB(t)
	cfg := config.Defaults().Rewards
	require.NoError(t, SeedRewardSettings(db, &cfg))
	require.NoError(t, SeedRewardSettings(db, &cfg))

	var count int64
	db.Model(&models.RewardSettings{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestNewDB_UnknownDriver(t *testing.T) {
	_, err := NewDB(&config.DatabaseConfig{Driver: "postgres"})
	assert.Error(t, err)
}

func TestSeedAdmin(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, SeedAdmin(db, &config.AdminConfig{}))
	var count int64
	require.NoError(t, db.Model(&models.User{}).Count(&count).Error)
	assert.Zero(t, count)

	cfg := &config.AdminConfig{Email: "ops@haven.test", Password: "s3cret-pass"}
	require.NoError(t, SeedAdmin(db, cfg))
	require.NoError(t, SeedAdmin(db, cfg))

	var admins []models.User
	require.NoError(t, db.Where("email = ?", cfg.Email).Find(&admins).Error)
	require.Len(t, admins, 1)
	assert.True(t, admins[0].IsAdmin())
	assert.NotEqual(t, cfg.Password, admins[0].PasswordHash)
}
