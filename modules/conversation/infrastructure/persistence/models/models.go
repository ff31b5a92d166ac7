package models

import (
	"database/sql"
	"time"
)

type Conversation struct {
	ID              string
	OwnerID         string
	BotID           string
	BotNameSnapshot sql.NullString
	Platform        string
	SenderID        string
	SenderNumber    sql.NullString
	SenderNickname  sql.NullString
	CRMCatalogID    sql.NullString
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type Message struct {
	ID             string
	ConversationID string
	Role           string
	Content        string
	Timestamp      time.Time
	TokensUser     int
	TokensAI       int
	// Seq breaks timestamp ties in insertion order.
	Seq int64
}
