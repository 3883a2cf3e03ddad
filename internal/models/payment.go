package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payment is an on-chain transfer reported by the payment oracle. Immutable once stored.
type Payment struct {
	ID              string          `gorm:"primaryKey;size:36" json:"id"`
	TxHash          string          `gorm:"uniqueIndex;size:80;not null" json:"tx_hash"`
	ContractAddress string          `gorm:"size:64" json:"contract_address"`
	TokenAddress    string          `gorm:"size:64" json:"token_address"`
	FromAddress     string          `gorm:"size:64;not null;index" json:"from"`
	ToAddress       string          `gorm:"size:64;not null" json:"to"`
	Amount          decimal.Decimal `gorm:"type:numeric;not null" json:"amount"`
	Reference       string          `json:"reference"`
	CreatedAt       time.Time       `json:"created_at"`
}
