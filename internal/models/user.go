package models

import (
	"time"
)

type UserInfo struct {
	Address   string    `gorm:"primaryKey;size:64" json:"address"`
	Username  string    `gorm:"not null;index" json:"username"`
	Bio       *string   `gorm:"size:500" json:"bio"`
	Email     *string   `json:"email"`
	Link      *string   `json:"link"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
