package models

import (
	"time"
)

// Permission grants UserAddress access to a paid service.
type Permission struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	UserAddress string    `gorm:"size:64;not null;uniqueIndex:idx_permission_user_service" json:"user_address"`
	ServiceID   string    `gorm:"size:36;not null;uniqueIndex:idx_permission_user_service;index" json:"service_id"`
	PaymentID   *string   `gorm:"size:36" json:"payment_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
