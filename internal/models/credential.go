package models

import "time"

// Credential is the single durable copy of the signed-in user's token and
// last-verified identity. At most one row exists.
type Credential struct {
	ID        uint   `gorm:"primaryKey"`
	Token     string `gorm:"type:text;not null"`
	Handle    string `gorm:"size:128"`
	AvatarURL string `gorm:"size:512"`
	UpdatedAt time.Time
}
