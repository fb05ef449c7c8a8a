package repository

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormLogger "gorm.io/gorm/logger"

	"github.com/core-coin/mintviewer/internal/models"
	"github.com/core-coin/mintviewer/pkg/logger"
)

type DB struct {
	logger *logger.Logger

	Conn *gorm.DB
}

// PostgresDSN builds a libpq connection string.
func PostgresDSN(user, password, dbname, host string, port int) string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		host, user, password, dbname, port)
}

// NewPostgresDB opens the subscription store on PostgreSQL.
func NewPostgresDB(user, password, dbname, host string, port int, logger *logger.Logger) (*DB, error) {
	return open(postgres.Open(PostgresDSN(user, password, dbname, host, port)), "PostgreSQL", logger)
}

// NewSQLiteDB opens the subscription store in a SQLite file.
func NewSQLiteDB(path string, logger *logger.Logger) (*DB, error) {
	return open(sqlite.Open(path), "SQLite", logger)
}

func open(dialector gorm.Dialector, name string, logger *logger.Logger) (*DB, error) {
	// Configure GORM logger to suppress "record not found" messages
	gormLogger := gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  true,
		},
	)
	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", name, err)
	}

	if err := db.AutoMigrate(&models.Subscription{}); err != nil {
		return nil, fmt.Errorf("failed to auto-migrate models: %w", err)
	}
	logger.Infow("Successfully connected to database", "driver", name)
	return &DB{Conn: db, logger: logger}, nil
}

func (db *DB) Close() error {
	sqlDB, err := db.Conn.DB()
	if err != nil {
		return fmt.Errorf("failed to get database connection: %w", err)
	}
	return sqlDB.Close()
}

// InsertSubscriptionIfAbsent stores a subscription inside its own transaction.
// An existing row for the chat is left untouched.
func (db *DB) InsertSubscriptionIfAbsent(ctx context.Context, id models.RecipientID, at time.Time) error {
	sub := models.Subscription{ChatID: int64(id), SubscriptionDate: at.UTC()}
	err := db.Conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&sub).Error
	})
	if err != nil {
		return fmt.Errorf("failed to add subscription: %w", err)
	}
	db.logger.Debugw("Subscription stored", "chat_id", id)
	return nil
}

func (db *DB) LoadSubscriberIDs(ctx context.Context) ([]models.RecipientID, error) {
	var chatIDs []int64
	if err := db.Conn.WithContext(ctx).Model(&models.Subscription{}).Pluck("chat_id", &chatIDs).Error; err != nil {
		return nil, fmt.Errorf("failed to load subscriptions: %w", err)
	}
	ids := make([]models.RecipientID, len(chatIDs))
	for i, id := range chatIDs {
		ids[i] = models.RecipientID(id)
	}
	return ids, nil
}

// GetSubscription returns the stored record for id, or nil when there is none.
func (db *DB) GetSubscription(ctx context.Context, id models.RecipientID) (*models.Subscription, error) {
	var sub models.Subscription
	err := db.Conn.WithContext(ctx).Where("chat_id = ?", int64(id)).Limit(1).Find(&sub).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	if sub.ChatID == 0 {
		return nil, nil
	}
	return &sub, nil
}
