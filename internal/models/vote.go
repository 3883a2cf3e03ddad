package models

import (
	"time"
)

// Vote records one voter's current direction on one item.
// The (item_id, user_address) unique index keeps it to a single row per voter and item.
type Vote struct {
	ID          string      `gorm:"primaryKey;size:36" json:"id"`
	ItemID      string      `gorm:"size:36;not null;uniqueIndex:idx_vote_item_user" json:"item_id"`
	ItemType    VotableType `gorm:"size:16;not null" json:"item_type"`
	UserAddress string      `gorm:"size:64;not null;uniqueIndex:idx_vote_item_user;index" json:"user_address"`
	Value       VoteType    `gorm:"not null" json:"vote"` // 1 or -1
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}
