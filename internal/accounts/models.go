package accounts

import "time"

// Account is a registered user. The username doubles as the name of the
// account's note store file.
type Account struct {
	ID         uint   `gorm:"primaryKey"`
	Username   string `gorm:"uniqueIndex;not null;size:64"`
	Hash       string `gorm:"not null"`
	HasTestSet bool   `gorm:"not null;default:false"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// SessionRecord is the server-side half of a browser session.
type SessionRecord struct {
	ID        string    `gorm:"primaryKey;size:32"`
	Data      []byte    `gorm:"not null"`
	ExpiresAt time.Time `gorm:"index;not null"`
}

func (SessionRecord) TableName() string {
	return "sessions"
}
