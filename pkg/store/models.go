package store

import "time"

// GORM models used for persistence. Table and column names match the hosted
// store's record shapes so existing rows keep working.

type ChatTurnModel struct {
	ID          uint      `gorm:"primaryKey;autoIncrement"`
	UserID      string    `gorm:"column:user_id;not null;index"`
	UserMessage string    `gorm:"column:user_message;type:text;not null"`
	BotReply    string    `gorm:"column:bot_reply;type:text;not null"`
	Timestamp   time.Time `gorm:"column:timestamp;not null;index"`
}

func (ChatTurnModel) TableName() string { return "chat_history" }

type AlertModel struct {
	ID             uint      `gorm:"primaryKey;autoIncrement"`
	UserID         string    `gorm:"column:user_id;not null;index"`
	UserMessage    string    `gorm:"column:user_message;type:text;not null"`
	AIResponse     string    `gorm:"column:ai_response;type:text;not null"`
	Status         string    `gorm:"column:status;not null"`
	CaretakerEmail string    `gorm:"column:caretaker_email;not null"`
	CreatedAt      time.Time `gorm:"column:created_at;not null"`
}

func (AlertModel) TableName() string { return "alerts" }

// ProfileModel is read-only: the table is owned and written by the auth
// provider, never migrated or mutated from here.
type ProfileModel struct {
	ID             string `gorm:"primaryKey;column:id"`
	FullName       string `gorm:"column:full_name"`
	CaretakerEmail string `gorm:"column:caretaker_email"`
}

func (ProfileModel) TableName() string { return "profiles" }
