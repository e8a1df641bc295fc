package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"maatje/pkg/domain"
)

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and migrates the tables this service owns.
// The profiles table is owned by the auth provider and left untouched.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.AutoMigrate(&ChatTurnModel{}, &AlertModel{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

// AppendTurn writes one chat exchange.
func (s *GormStore) AppendTurn(ctx context.Context, turn domain.ChatTurn) error {
	if turn.UserID == "" {
		return fmt.Errorf("chat turn requires user id")
	}
	ts := turn.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	model := ChatTurnModel{
		UserID:      turn.UserID,
		UserMessage: turn.UserMessage,
		BotReply:    turn.BotReply,
		Timestamp:   ts,
	}
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	return nil
}

// ListTurns returns a user's turns ordered by timestamp.
func (s *GormStore) ListTurns(ctx context.Context, userID string, limit int, asc bool) ([]domain.ChatTurn, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	order := "timestamp DESC"
	if asc {
		order = "timestamp ASC"
	}
	var models []ChatTurnModel
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order(order).
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("list turns: %w", err)
	}
	turns := make([]domain.ChatTurn, 0, len(models))
	for _, m := range models {
		turns = append(turns, domain.ChatTurn{
			UserID:      m.UserID,
			UserMessage: m.UserMessage,
			BotReply:    m.BotReply,
			Timestamp:   m.Timestamp,
		})
	}
	return turns, nil
}

// CreateAlert writes one silent alert record.
func (s *GormStore) CreateAlert(ctx context.Context, alert domain.AlertRecord) error {
	if alert.UserID == "" {
		return fmt.Errorf("alert requires user id")
	}
	status := alert.Status
	if status == "" {
		status = domain.AlertOpen
	}
	createdAt := alert.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	model := AlertModel{
		UserID:         alert.UserID,
		UserMessage:    alert.UserMessage,
		AIResponse:     alert.AIResponse,
		Status:         string(status),
		CaretakerEmail: alert.CaretakerEmail,
		CreatedAt:      createdAt,
	}
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return fmt.Errorf("create alert: %w", err)
	}
	return nil
}

// GetProfile fetches a profile row by user id.
func (s *GormStore) GetProfile(ctx context.Context, userID string) (domain.Profile, bool, error) {
	var model ProfileModel
	err := s.db.WithContext(ctx).Where("id = ?", userID).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Profile{}, false, nil
	}
	if err != nil {
		return domain.Profile{}, false, fmt.Errorf("get profile: %w", err)
	}
	return domain.Profile{
		ID:             model.ID,
		FullName:       model.FullName,
		CaretakerEmail: model.CaretakerEmail,
	}, true, nil
}
