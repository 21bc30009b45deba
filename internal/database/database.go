package database

import (
	"fmt"
	"log"
	"os"
	"time"

	"haven/config"
	"haven/internal/domain"
	"haven/internal/models"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func NewDB(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "", "mysql":
		dialector = mysql.Open(cfg.DSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
	db, err := gorm.Open(dialector, gormConfig())
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	return db, nil
}

// OpenSQLite opens a single-connection SQLite database. Used by tests with
// "file:<name>?mode=memory&cache=shared" DSNs.
func OpenSQLite(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), gormConfig())
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite serializes writers anyway; one connection avoids "database is locked".
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		Logger: logger.New(log.New(os.Stdout, "\r\n", log.LstdFlags), logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Error,
			IgnoreRecordNotFoundError: true,
		}),
		// unique index violations surface as gorm.ErrDuplicatedKey
		TranslateError: true,
	}
}

// AutoMigrate runs Gorm auto-migration for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.VolunteerAvailability{},
		&models.VolunteerRegion{},
		&models.ChatSession{},
		&models.SessionParticipant{},
		&models.RewardSettings{},
		&models.VolunteerEarnings{},
		&models.Notification{},
		&models.RegionCurrency{},
	)
}

// SeedRewardSettings inserts the active reward settings row when none exists.
func SeedRewardSettings(db *gorm.DB, cfg *config.RewardsConfig) error {
	var count int64
	if err := db.Model(&models.RewardSettings{}).Where("is_active = ?", true).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	log.Printf("[Database] seeding default reward settings")
	return db.Create(&models.RewardSettings{
		PointsPerMinute:            cfg.PointsPerMinute,
		PointsToDollarRate:         cfg.PointsToDollarRate,
		MaxFreeMinutes:             cfg.MaxFreeMinutes,
		ContinuationRateMultiplier: cfg.ContinuationRateMultiplier,
		IsActive:                   true,
	}).Error
}

// SeedAdmin creates the configured admin account if no user holds that email.
func SeedAdmin(db *gorm.DB, cfg *config.AdminConfig) error {
	if cfg.Email == "" || cfg.Password == "" {
		return nil
	}
	var count int64
	if err := db.Model(&models.User{}).Where("email = ?", cfg.Email).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.Password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	log.Printf("[Database] seeding admin %s", cfg.Email)
	return db.Create(&models.User{
		Username:     "admin",
		Email:        cfg.Email,
		PasswordHash: string(hash),
		Role:         domain.RoleAdmin,
		IsActive:     true,
	}).Error
}
