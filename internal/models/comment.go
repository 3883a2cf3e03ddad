package models

import (
	"time"
)

type Comment struct {
	ID          string `gorm:"primaryKey;size:36" json:"id"`
	ServiceID   string `gorm:"size:36;not null;index" json:"service_id"`
	UserAddress string `gorm:"size:64;not null;index" json:"user_address"`
	Comment     string `gorm:"type:text;not null" json:"comment"`
	Votable
	CreatedAt time.Time `json:"created_at"`
}

func (c *Comment) ItemID() string        { return c.ID }
func (c *Comment) ItemType() VotableType { return VotableComment }
func (c *Comment) Counters() *Votable    { return &c.Votable }
