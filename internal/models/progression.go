package models

import "time"

// UserProgression holds a user's XP and the level derived from it.
// ID is the user id.
type UserProgression struct {
	ID        string    `gorm:"primaryKey;size:64" json:"user_id"`
	XP        int64     `gorm:"not null;default:0" json:"xp"`
	Level     int       `gorm:"not null;default:1" json:"level"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Versioned
}

// TableName specifies the table name for GORM
func (UserProgression) TableName() string {
	return string(KindProgression)
}

// Ref returns the store reference of the progression.
func (p *UserProgression) Ref() EntityRef { return ProgressionRef(p.ID) }
