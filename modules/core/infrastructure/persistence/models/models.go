package models

import (
	"database/sql"
	"time"
)

type User struct {
	ID         string
	Email      string
	AvatarURL  sql.NullString
	IsVerified bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
