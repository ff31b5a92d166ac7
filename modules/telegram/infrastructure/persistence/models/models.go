package models

import (
	"database/sql"
	"time"
)

type AccountLink struct {
	ID              string
	BotID           string
	LinkerUserID    string
	PhoneNumber     string
	TelegramUserID  sql.NullInt64
	Username        sql.NullString
	SessionMaterial []byte
	PhoneCodeHash   sql.NullString
	IsActive        bool
	LastConnectedAt sql.NullTime
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
