package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// TransferStatus represents the status of a land transfer
type TransferStatus string

const (
	TransferStatusPending    TransferStatus = "pending"
	TransferStatusProcessing TransferStatus = "processing"
	TransferStatusCompleted  TransferStatus = "completed"
	TransferStatusFailed     TransferStatus = "failed"
	TransferStatusCancelled  TransferStatus = "cancelled"
)

// Active reports whether the transfer still blocks new initiations on its land
func (s TransferStatus) Active() bool {
	return s == TransferStatusPending || s == TransferStatusProcessing
}

// Terminal reports whether no further transition is possible
func (s TransferStatus) Terminal() bool {
	switch s {
	case TransferStatusCompleted, TransferStatusFailed, TransferStatusCancelled:
		return true
	}
	return false
}

// ActiveTransferStatuses lists the statuses that count against the
// one-active-transfer-per-land rule
var ActiveTransferStatuses = []TransferStatus{TransferStatusPending, TransferStatusProcessing}

// TransferType represents the kind of ownership change
type TransferType string

const (
	TransferTypeSale        TransferType = "sale"
	TransferTypeGift        TransferType = "gift"
	TransferTypeInheritance TransferType = "inheritance"
)

// Valid reports whether t is a known transfer type
func (t TransferType) Valid() bool {
	switch t {
	case TransferTypeSale, TransferTypeGift, TransferTypeInheritance:
		return true
	}
	return false
}

// Transfer represents a proposed or executed change of land ownership
type Transfer struct {
	ID               uuid.UUID       `gorm:"type:char(36);primary_key" json:"id"`
	LandID           uuid.UUID       `gorm:"type:char(36);index;not null" json:"land_id"`
	FromUserID       uuid.UUID       `gorm:"type:char(36);index;not null" json:"from_user_id"`
	ToUserID         uuid.UUID       `gorm:"type:char(36);index;not null" json:"to_user_id"`
	Price            decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"price"`
	TransferType     TransferType    `gorm:"size:20;not null" json:"transfer_type"`
	Status           TransferStatus  `gorm:"size:20;index;not null;default:'pending'" json:"status"`
	InitiatedAt      time.Time       `gorm:"not null" json:"initiated_at"`
	CompletedAt      *time.Time      `json:"completed_at"`
	BlockchainTxHash *string         `gorm:"size:66" json:"blockchain_tx_hash"`
	FailureReason    *string         `gorm:"size:500" json:"failure_reason,omitempty"`
	UpdatedAt        time.Time       `json:"updated_at"`

	// Relations
	Land     *Land `gorm:"foreignKey:LandID" json:"-"`
	FromUser *User `gorm:"foreignKey:FromUserID" json:"-"`
	ToUser   *User `gorm:"foreignKey:ToUserID" json:"-"`

	// Computed fields (not stored in DB)
	LandTitle    string `gorm:"-" json:"land_title,omitempty"`
	PropertyID   string `gorm:"-" json:"property_id,omitempty"`
	FromUsername string `gorm:"-" json:"from_username,omitempty"`
	ToUsername   string `gorm:"-" json:"to_username,omitempty"`
}

// BeforeCreate hooks
func (t *Transfer) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.Status == "" {
		t.Status = TransferStatusPending
	}
	if t.InitiatedAt.IsZero() {
		t.InitiatedAt = time.Now().UTC()
	}
	return nil
}

// AfterFind fills the computed display fields from preloaded relations
func (t *Transfer) AfterFind(tx *gorm.DB) error {
	if t.Land != nil {
		t.LandTitle = t.Land.Title
		t.PropertyID = t.Land.PropertyID
	}
	if t.FromUser != nil {
		t.FromUsername = t.FromUser.Username
	}
	if t.ToUser != nil {
		t.ToUsername = t.ToUser.Username
	}
	return nil
}
