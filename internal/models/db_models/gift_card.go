package db_models

import (
	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/datatypes"
)

type GiftCard struct {
	BaseModel
	Code string `gorm:"size:32;uniqueIndex;not null"`

	InitialAmountMinor  int64  `gorm:"not null"`
	CurrentBalanceMinor int64  `gorm:"not null;default:0"`
	Currency            string `gorm:"size:3;not null;default:'USD'"` // ISO 4217

	DesignTheme string         `gorm:"size:64"`
	DesignTags  pq.StringArray `gorm:"type:text[]"`

	RecipientName  string         `gorm:"size:120"`
	RecipientEmail string         `gorm:"size:255;index"`
	Metadata       datatypes.JSON `gorm:"type:jsonb;default:'{}'"`

	// Cards are deactivated, never deleted. Purchased cards stay inactive
	// until the funding settlement completes.
	IsActive    bool `gorm:"index;default:false"`
	ActivatedAt *int64

	IssuedByID *uuid.UUID `gorm:"index"`

	// Optional bcrypt hash of the card PIN; empty means no PIN set.
	PinHash string `gorm:"size:72"`

	Transactions []LedgerTransaction `gorm:"foreignKey:GiftCardID"`
}

func (GiftCard) TableName() string {
	return "gift_cards"
}
