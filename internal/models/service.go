package models

import (
	"html/template"
	"time"

	"github.com/shopspring/decimal"
)

type Service struct {
	ID             string          `gorm:"primaryKey;size:36" json:"id"`
	Name           string          `gorm:"not null" json:"name"`
	Description    string          `gorm:"type:text" json:"description"` // Markdown
	URL            string          `gorm:"uniqueIndex;not null" json:"url"`
	ImageURL       *string         `json:"image_url"`
	Price          decimal.Decimal `gorm:"type:numeric;not null;default:0" json:"price"`
	Tags           []string        `gorm:"serializer:json" json:"tags"`
	OwnerAddress   string          `gorm:"size:64;not null;index" json:"owner_address"`
	CommentCounter int             `gorm:"not null;default:0" json:"comment_counter"`
	PaymentID      *string         `gorm:"size:36" json:"payment_id"` // 最近一次成功授权的支付
	Votable
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// 非数据库字段，用于响应时填充
	DescriptionHTML template.HTML `gorm:"-" json:"description_html,omitempty"`
	Permitted       *bool         `gorm:"-" json:"permitted,omitempty"`
}

func (s *Service) ItemID() string        { return s.ID }
func (s *Service) ItemType() VotableType { return VotableService }
func (s *Service) Counters() *Votable    { return &s.Votable }
