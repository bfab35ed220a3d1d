package ledger

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
)

// MemoryLedger is an in-process ledger for development and tests
type MemoryLedger struct {
	mu        sync.Mutex
	network   string
	connected bool
	block     uint64
	nextToken uint64
	owners    map[string]string
	logs      map[string][]LogEntry
	failNext  error
}

// NewMemoryLedger creates an empty, connected ledger
func NewMemoryLedger(network string) *MemoryLedger {
	if network == "" {
		network = "memory"
	}
	return &MemoryLedger{
		network:   network,
		connected: true,
		block:     1,
		owners:    make(map[string]string),
		logs:      make(map[string][]LogEntry),
	}
}

// FailNext makes the next write operation return err
func (m *MemoryLedger) FailNext(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = err
}

// SetConnected toggles availability
func (m *MemoryLedger) SetConnected(connected bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = connected
}

// Owner returns the current owner address of a token
func (m *MemoryLedger) Owner(tokenID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	owner, ok := m.owners[tokenID]
	return owner, ok
}

func (m *MemoryLedger) RegisterLand(ctx context.Context, req RegisterRequest) (*Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.precheck(ctx); err != nil {
		return nil, err
	}
	owner, err := NormalizeAddress(req.OwnerAddress)
	if err != nil {
		return nil, err
	}

	m.nextToken++
	tokenID := strconv.FormatUint(m.nextToken, 10)
	m.owners[tokenID] = owner
	receipt := m.mine("register", tokenID, owner)

	return receipt, nil
}

func (m *MemoryLedger) TransferToken(ctx context.Context, req TransferRequest) (*Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.precheck(ctx); err != nil {
		return nil, err
	}
	owner, ok := m.owners[req.TokenID]
	if !ok {
		return nil, ErrTokenNotFound
	}
	if !SameAddress(owner, req.FromAddress) {
		return nil, ErrNotTokenOwner
	}
	to, err := NormalizeAddress(req.ToAddress)
	if err != nil {
		return nil, err
	}

	m.owners[req.TokenID] = to
	receipt := m.mine("transfer", req.TokenID, to)
	m.logs[req.TokenID] = append(m.logs[req.TokenID], LogEntry{
		TokenID:     req.TokenID,
		From:        owner,
		To:          to,
		TxHash:      receipt.TxHash,
		BlockNumber: receipt.BlockNumber,
		Timestamp:   time.Now().UTC(),
	})

	return receipt, nil
}

func (m *MemoryLedger) TransferLog(ctx context.Context, tokenID string) ([]LogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return nil, ErrUnavailable
	}
	if _, ok := m.owners[tokenID]; !ok {
		return nil, ErrTokenNotFound
	}
	entries := make([]LogEntry, len(m.logs[tokenID]))
	copy(entries, m.logs[tokenID])
	return entries, nil
}

func (m *MemoryLedger) Status(ctx context.Context) (*Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return &Status{
		Connected:   m.connected,
		Network:     m.network,
		BlockNumber: m.block,
		Balance:     "0",
	}, nil
}

// precheck must be called with mu held
func (m *MemoryLedger) precheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !m.connected {
		return ErrUnavailable
	}
	if m.failNext != nil {
		err := m.failNext
		m.failNext = nil
		return err
	}
	return nil
}

// mine must be called with mu held
func (m *MemoryLedger) mine(op, tokenID, addr string) *Receipt {
	m.block++
	hash := crypto.Keccak256Hash([]byte(fmt.Sprintf("%s:%s:%s:%d", op, tokenID, addr, m.block)))
	return &Receipt{
		TokenID:     tokenID,
		TxHash:      hash.Hex(),
		BlockNumber: m.block,
	}
}
