package models

import (
	"database/sql"
	"time"
)

type Bot struct {
	ID                string
	OwnerID           string
	BotType           string
	Name              sql.NullString
	Status            string
	Tariff            sql.NullString
	AutoDeduction     bool
	CRMLeadID         sql.NullString
	Instructions      sql.NullString
	Temperature       float64
	TopP              float64
	TopK              int
	MaxResponse       int
	RepetitionPenalty float64
	GenerationModel   string
	TokenLimit        int
	TokensLeft        int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type BotParticipant struct {
	ID        string
	BotID     string
	UserID    string
	Role      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type BotService struct {
	ID              string
	BotID           string
	Platform        string
	Status          string
	LinkedAccountID sql.NullString
	ServiceDetails  map[string]string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type BotDocument struct {
	ID          string
	BotID       string
	Filename    string
	ContentType sql.NullString
	FileBlob    []byte
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
