package client

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transfer statuses
const (
	TransferPending    = "pending"
	TransferProcessing = "processing"
	TransferCompleted  = "completed"
	TransferFailed     = "failed"
	TransferCancelled  = "cancelled"
)

// Land statuses
const (
	LandPending  = "pending"
	LandVerified = "verified"
	LandRejected = "rejected"
)

// RoleAdmin is the administrator role
const RoleAdmin = "admin"

// User is the public view of an account
type User struct {
	ID               string     `json:"id"`
	Username         string     `json:"username"`
	Email            string     `json:"email"`
	FirstName        string     `json:"first_name"`
	LastName         string     `json:"last_name"`
	Phone            string     `json:"phone"`
	Address          string     `json:"address"`
	Role             string     `json:"role"`
	WalletAddress    string     `json:"wallet_address"`
	IsActive         bool       `json:"is_active"`
	TwoFactorEnabled bool       `json:"two_factor_enabled"`
	LandCount        int64      `json:"land_count"`
	LastLoginAt      *time.Time `json:"last_login_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// IsAdmin reports whether the user holds the admin role
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// DisplayName prefers the full name over the username
func (u *User) DisplayName() string {
	if u.FirstName == "" && u.LastName == "" {
		return u.Username
	}
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// Land is a registered property
type Land struct {
	ID                       string              `json:"id"`
	PropertyID               string              `json:"property_id"`
	Title                    string              `json:"title"`
	Description              string              `json:"description"`
	Location                 string              `json:"location"`
	Latitude                 *float64            `json:"latitude"`
	Longitude                *float64            `json:"longitude"`
	Area                     float64             `json:"area"`
	PropertyType             string              `json:"property_type"`
	Price                    decimal.NullDecimal `json:"price"`
	Status                   string              `json:"status"`
	OwnerID                  string              `json:"owner_id"`
	OwnerName                string              `json:"owner_name,omitempty"`
	OwnerUsername            string              `json:"owner_username,omitempty"`
	ReviewComments           string              `json:"review_comments,omitempty"`
	ReviewedAt               *time.Time          `json:"reviewed_at,omitempty"`
	IsRegisteredOnBlockchain bool                `json:"is_registered_on_blockchain"`
	TokenID                  *string             `json:"token_id"`
	BlockchainTxHash         *string             `json:"blockchain_tx_hash"`
	CreatedAt                time.Time           `json:"created_at"`
	UpdatedAt                time.Time           `json:"updated_at"`
}

// Transfer is one ownership hand-over
type Transfer struct {
	ID               string          `json:"id"`
	LandID           string          `json:"land_id"`
	FromUserID       string          `json:"from_user_id"`
	ToUserID         string          `json:"to_user_id"`
	Price            decimal.Decimal `json:"price"`
	TransferType     string          `json:"transfer_type"`
	Status           string          `json:"status"`
	InitiatedAt      time.Time       `json:"initiated_at"`
	CompletedAt      *time.Time      `json:"completed_at"`
	BlockchainTxHash *string         `json:"blockchain_tx_hash"`
	FailureReason    *string         `json:"failure_reason,omitempty"`
	LandTitle        string          `json:"land_title,omitempty"`
	PropertyID       string          `json:"property_id,omitempty"`
	FromUsername     string          `json:"from_username,omitempty"`
	ToUsername       string          `json:"to_username,omitempty"`
}

// Active reports whether the transfer still blocks new ones
func (t *Transfer) Active() bool {
	return t.Status == TransferPending || t.Status == TransferProcessing
}

// Pagination is shared by every paged listing
type Pagination struct {
	Total   int64 `json:"total"`
	Page    int   `json:"page"`
	PerPage int   `json:"per_page"`
	Pages   int   `json:"pages"`
}

// LandPage is one page of lands
type LandPage struct {
	Lands []Land `json:"lands"`
	Pagination
}

// UserPage is one page of users
type UserPage struct {
	Users []User `json:"users"`
	Pagination
}

// TransferPage is one page of transfers
type TransferPage struct {
	Transfers []Transfer `json:"transfers"`
	Pagination
}

// AuditEntry is one recorded state-changing request
type AuditEntry struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id,omitempty"`
	Username     string    `json:"username,omitempty"`
	Action       string    `json:"action"`
	ResourceType string    `json:"resource_type"`
	ResourceID   string    `json:"resource_id"`
	IPAddress    string    `json:"ip_address"`
	Success      bool      `json:"success"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// AuditPage is one page of the audit trail
type AuditPage struct {
	Entries []AuditEntry `json:"entries"`
	Pagination
}

// LandStatistics aggregates the registry
type LandStatistics struct {
	TotalLands      int64            `json:"total_lands"`
	PendingLands    int64            `json:"pending_lands"`
	VerifiedLands   int64            `json:"verified_lands"`
	RejectedLands   int64            `json:"rejected_lands"`
	BlockchainLands int64            `json:"blockchain_lands"`
	TotalArea       float64          `json:"total_area"`
	TotalValue      decimal.Decimal  `json:"total_value"`
	ByPropertyType  map[string]int64 `json:"by_property_type"`
}

// Receipt confirms a ledger write
type Receipt struct {
	TokenID     string `json:"token_id"`
	TxHash      string `json:"tx_hash"`
	BlockNumber uint64 `json:"block_number"`
}

// Registration is the result of putting a land on chain
type Registration struct {
	Land    *Land    `json:"land"`
	Receipt *Receipt `json:"receipt"`
}

// ChainTransfer is a transfer event read back from the ledger
type ChainTransfer struct {
	TokenID     string    `json:"token_id"`
	From        string    `json:"from"`
	To          string    `json:"to"`
	TxHash      string    `json:"transaction_hash"`
	BlockNumber uint64    `json:"block_number"`
	Timestamp   time.Time `json:"timestamp"`
}

// TransferHistory is the combined stored and on-chain history of a land
type TransferHistory struct {
	LandID              string          `json:"land_id"`
	TokenID             *string         `json:"token_id"`
	DatabaseTransfers   []Transfer      `json:"database_transfers"`
	BlockchainTransfers []ChainTransfer `json:"blockchain_transfers"`
	BlockchainError     string          `json:"blockchain_error,omitempty"`
}

// BlockchainStatus describes the ledger connection
type BlockchainStatus struct {
	Connected       bool   `json:"connected"`
	Network         string `json:"network"`
	ChainID         int64  `json:"chain_id,omitempty"`
	BlockNumber     uint64 `json:"block_number"`
	Account         string `json:"account,omitempty"`
	Balance         string `json:"balance"`
	ContractAddress string `json:"contract_address,omitempty"`
	Error           string `json:"error,omitempty"`
}

// UserSummary counts accounts
type UserSummary struct {
	Total     int64 `json:"total"`
	Active    int64 `json:"active"`
	Admins    int64 `json:"admins"`
	TwoFactor int64 `json:"two_factor"`
}

// Dashboard is the admin overview
type Dashboard struct {
	Lands           *LandStatistics  `json:"lands"`
	Users           UserSummary      `json:"users"`
	Transfers       map[string]int64 `json:"transfers"`
	PendingLands    []Land           `json:"pending_lands"`
	RecentTransfers []Transfer       `json:"recent_transfers"`
}

// TOTPSetup carries a fresh authenticator secret
type TOTPSetup struct {
	Secret string `json:"secret"`
	URL    string `json:"url"`
	QRCode string `json:"qr_code"`
}

// Health is the server health report
type Health struct {
	Status     string `json:"status"`
	Version    string `json:"version"`
	Uptime     string `json:"uptime"`
	Components map[string]struct {
		Status  string `json:"status"`
		Message string `json:"message,omitempty"`
	} `json:"components"`
}

// AuthResponse is returned by login, register and demo login
type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      *User     `json:"user"`
}

// LoginRequest authenticates with a username or email
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	TOTPCode string `json:"totp_code,omitempty"`
}

// RegisterRequest creates an account
type RegisterRequest struct {
	Username      string `json:"username"`
	Email         string `json:"email"`
	Password      string `json:"password"`
	FirstName     string `json:"first_name,omitempty"`
	LastName      string `json:"last_name,omitempty"`
	Phone         string `json:"phone,omitempty"`
	Address       string `json:"address,omitempty"`
	WalletAddress string `json:"wallet_address,omitempty"`
}

// ProfileUpdate changes only the fields that are set
type ProfileUpdate struct {
	Email     *string `json:"email,omitempty"`
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
	Phone     *string `json:"phone,omitempty"`
	Address   *string `json:"address,omitempty"`
}

// PasswordChange replaces the caller's password
type PasswordChange struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// LandRequest registers a new land
type LandRequest struct {
	PropertyID   string           `json:"property_id"`
	Title        string           `json:"title"`
	Description  string           `json:"description,omitempty"`
	Location     string           `json:"location"`
	Latitude     *float64         `json:"latitude,omitempty"`
	Longitude    *float64         `json:"longitude,omitempty"`
	Area         float64          `json:"area"`
	PropertyType string           `json:"property_type"`
	Price        *decimal.Decimal `json:"price,omitempty"`
}

// InitiateRequest proposes a transfer. ToUser is a username, email or
// wallet address.
type InitiateRequest struct {
	ToUser       string          `json:"to_user"`
	Price        decimal.Decimal `json:"price"`
	TransferType string          `json:"transfer_type,omitempty"`
}

// LandQuery filters land listings
type LandQuery struct {
	Search       string
	Status       string
	PropertyType string
	Page         int
	PerPage      int
}

// UserQuery filters the admin user listing
type UserQuery struct {
	Search  string
	Role    string
	Status  string
	Page    int
	PerPage int
}

// TransferQuery filters the admin transfer listing
type TransferQuery struct {
	Status  string
	LandID  string
	Page    int
	PerPage int
}

// AuditQuery filters the audit trail. A nil Success matches both outcomes.
type AuditQuery struct {
	Action     string
	UserID     string
	ResourceID string
	Success    *bool
	Page       int
	PerPage    int
}

// Bounds is a map viewport
type Bounds struct {
	South, West, North, East float64
}
