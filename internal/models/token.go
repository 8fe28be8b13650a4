package models

import (
	"time"

	"github.com/gofrs/uuid"
)

// Token is a persisted refresh token. Access tokens are stateless JWTs;
// only the long-lived refresh credential gets a row.
type Token struct {
	ID           uuid.UUID `json:"id" gorm:"primaryKey;type:uuid"`
	UserID       uuid.UUID `json:"user_id" gorm:"type:uuid;not null;index"`
	RefreshToken uuid.UUID `json:"refresh_token" gorm:"type:uuid;not null;uniqueIndex"`
	ExpiresAt    time.Time `json:"expires_at" gorm:"not null"`

	CreatedAt time.Time `json:"created_at"`
}

func (t *Token) IsExpired() bool {
	return time.Now().After(t.ExpiresAt)
}
