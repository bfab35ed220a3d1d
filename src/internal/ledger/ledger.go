// Package ledger records land tokens on a blockchain. The registry treats it
// as an opaque collaborator: it registers verified lands and moves their
// tokens when a transfer executes.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

var (
	ErrTokenNotFound  = errors.New("token not found on ledger")
	ErrNotTokenOwner  = errors.New("sender does not own the token")
	ErrUnavailable    = errors.New("ledger unavailable")
	ErrInvalidAddress = errors.New("invalid wallet address")
)

// Ledger is the blockchain collaborator used by the registry
type Ledger interface {
	RegisterLand(ctx context.Context, req RegisterRequest) (*Receipt, error)
	TransferToken(ctx context.Context, req TransferRequest) (*Receipt, error)
	TransferLog(ctx context.Context, tokenID string) ([]LogEntry, error)
	Status(ctx context.Context) (*Status, error)
}

// RegisterRequest mints a token for a land
type RegisterRequest struct {
	OwnerAddress string
	PropertyID   string
	Location     string
	Area         float64
}

// TransferRequest moves a land token between wallets
type TransferRequest struct {
	TokenID     string
	FromAddress string
	ToAddress   string
	Price       decimal.Decimal
}

// Receipt is the outcome of a mined ledger transaction
type Receipt struct {
	TokenID     string `json:"token_id"`
	TxHash      string `json:"tx_hash"`
	BlockNumber uint64 `json:"block_number"`
}

// LogEntry is one on-chain transfer of a token
type LogEntry struct {
	TokenID     string    `json:"token_id"`
	From        string    `json:"from"`
	To          string    `json:"to"`
	TxHash      string    `json:"transaction_hash"`
	BlockNumber uint64    `json:"block_number"`
	Timestamp   time.Time `json:"timestamp"`
}

// Status describes the ledger connection
type Status struct {
	Connected       bool   `json:"connected"`
	Network         string `json:"network"`
	ChainID         int64  `json:"chain_id,omitempty"`
	BlockNumber     uint64 `json:"block_number"`
	Account         string `json:"account,omitempty"`
	Balance         string `json:"balance"`
	ContractAddress string `json:"contract_address,omitempty"`
	Error           string `json:"error,omitempty"`
}

// New builds the ledger selected by ledger.type
func New(ctx context.Context, cfg *viper.Viper) (Ledger, error) {
	switch cfg.GetString("ledger.type") {
	case "memory", "":
		return NewMemoryLedger(cfg.GetString("ledger.network")), nil
	case "ethereum":
		return NewEthereumLedger(ctx, EthereumConfig{
			RPCURL:          cfg.GetString("ledger.rpc_url"),
			ContractAddress: cfg.GetString("ledger.contract_address"),
			PrivateKey:      cfg.GetString("ledger.private_key"),
			ChainID:         cfg.GetInt64("ledger.chain_id"),
			Network:         cfg.GetString("ledger.network"),
			Timeout:         cfg.GetDuration("ledger.timeout"),
		})
	default:
		return nil, fmt.Errorf("unsupported ledger type: %s", cfg.GetString("ledger.type"))
	}
}

// NewWalletAddress generates a fresh account address. The private key is
// discarded; custody happens outside the registry.
func NewWalletAddress() (string, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return "", fmt.Errorf("failed to generate wallet key: %w", err)
	}
	return crypto.PubkeyToAddress(key.PublicKey).Hex(), nil
}

// NormalizeAddress validates a hex address and returns its checksummed form
func NormalizeAddress(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if !strings.HasPrefix(addr, "0x") && !strings.HasPrefix(addr, "0X") {
		return "", ErrInvalidAddress
	}
	if !common.IsHexAddress(addr) {
		return "", ErrInvalidAddress
	}
	return common.HexToAddress(addr).Hex(), nil
}

// SameAddress compares two addresses ignoring case
func SameAddress(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
