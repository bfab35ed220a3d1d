package ledger

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// landRegistryABI is the ABI of the land registry token contract
const landRegistryABI = `[
	{"type":"function","name":"registerLand","stateMutability":"nonpayable",
	 "inputs":[{"name":"owner","type":"address"},{"name":"propertyId","type":"string"},{"name":"location","type":"string"},{"name":"area","type":"uint256"}],
	 "outputs":[{"name":"tokenId","type":"uint256"}]},
	{"type":"function","name":"transferLand","stateMutability":"nonpayable",
	 "inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"tokenId","type":"uint256"},{"name":"price","type":"uint256"}],
	 "outputs":[]},
	{"type":"event","name":"LandRegistered","anonymous":false,
	 "inputs":[{"name":"tokenId","type":"uint256","indexed":true},{"name":"owner","type":"address","indexed":true},{"name":"propertyId","type":"string","indexed":false}]},
	{"type":"event","name":"Transfer","anonymous":false,
	 "inputs":[{"name":"from","type":"address","indexed":true},{"name":"to","type":"address","indexed":true},{"name":"tokenId","type":"uint256","indexed":true}]}
]`

// EthereumConfig configures the contract-backed ledger
type EthereumConfig struct {
	RPCURL          string
	ContractAddress string
	PrivateKey      string
	ChainID         int64
	Network         string
	Timeout         time.Duration
}

// EthereumLedger talks to the land registry contract over JSON-RPC
type EthereumLedger struct {
	client   *ethclient.Client
	contract *bind.BoundContract
	abi      abi.ABI
	address  common.Address
	auth     *bind.TransactOpts
	chainID  *big.Int
	network  string
	timeout  time.Duration

	// serializes transactions so nonces are assigned in order
	mu sync.Mutex
}

// ParseRegistryABI parses the contract ABI
func ParseRegistryABI() (abi.ABI, error) {
	return abi.JSON(strings.NewReader(landRegistryABI))
}

// NewEthereumLedger dials the node and binds the contract
func NewEthereumLedger(ctx context.Context, cfg EthereumConfig) (*EthereumLedger, error) {
	if !common.IsHexAddress(cfg.ContractAddress) {
		return nil, fmt.Errorf("invalid contract address: %q", cfg.ContractAddress)
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid ledger private key: %w", err)
	}

	parsed, err := ParseRegistryABI()
	if err != nil {
		return nil, fmt.Errorf("failed to parse contract ABI: %w", err)
	}

	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial ethereum node: %w", err)
	}

	chainID := big.NewInt(cfg.ChainID)
	if cfg.ChainID == 0 {
		chainID, err = client.ChainID(ctx)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to read chain id: %w", err)
		}
	}

	auth, err := bind.NewKeyedTransactorWithChainID(key, chainID)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to create transactor: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	address := common.HexToAddress(cfg.ContractAddress)
	return &EthereumLedger{
		client:   client,
		contract: bind.NewBoundContract(address, parsed, client, client, client),
		abi:      parsed,
		address:  address,
		auth:     auth,
		chainID:  chainID,
		network:  cfg.Network,
		timeout:  timeout,
	}, nil
}

// Close releases the RPC connection
func (l *EthereumLedger) Close() {
	l.client.Close()
}

func (l *EthereumLedger) RegisterLand(ctx context.Context, req RegisterRequest) (*Receipt, error) {
	owner, err := NormalizeAddress(req.OwnerAddress)
	if err != nil {
		return nil, err
	}

	receipt, err := l.transact(ctx, "registerLand",
		common.HexToAddress(owner), req.PropertyID, req.Location, big.NewInt(int64(req.Area)))
	if err != nil {
		return nil, err
	}

	eventID := l.abi.Events["LandRegistered"].ID
	for _, lg := range receipt.Logs {
		if len(lg.Topics) > 1 && lg.Topics[0] == eventID {
			return &Receipt{
				TokenID:     new(big.Int).SetBytes(lg.Topics[1].Bytes()).String(),
				TxHash:      receipt.TxHash.Hex(),
				BlockNumber: receipt.BlockNumber.Uint64(),
			}, nil
		}
	}

	return nil, fmt.Errorf("transaction %s emitted no LandRegistered event", receipt.TxHash.Hex())
}

func (l *EthereumLedger) TransferToken(ctx context.Context, req TransferRequest) (*Receipt, error) {
	tokenID, ok := new(big.Int).SetString(req.TokenID, 10)
	if !ok {
		return nil, ErrTokenNotFound
	}
	from, err := NormalizeAddress(req.FromAddress)
	if err != nil {
		return nil, err
	}
	to, err := NormalizeAddress(req.ToAddress)
	if err != nil {
		return nil, err
	}

	// prices travel on-chain in cents
	receipt, err := l.transact(ctx, "transferLand",
		common.HexToAddress(from), common.HexToAddress(to), tokenID, req.Price.Shift(2).BigInt())
	if err != nil {
		return nil, err
	}

	return &Receipt{
		TokenID:     req.TokenID,
		TxHash:      receipt.TxHash.Hex(),
		BlockNumber: receipt.BlockNumber.Uint64(),
	}, nil
}

func (l *EthereumLedger) TransferLog(ctx context.Context, tokenID string) ([]LogEntry, error) {
	id, ok := new(big.Int).SetString(tokenID, 10)
	if !ok {
		return nil, ErrTokenNotFound
	}

	query := ethereum.FilterQuery{
		FromBlock: big.NewInt(0),
		Addresses: []common.Address{l.address},
		Topics:    [][]common.Hash{{l.abi.Events["Transfer"].ID}, nil, nil, {common.BigToHash(id)}},
	}
	logs, err := l.client.FilterLogs(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to filter transfer logs: %w", err)
	}

	entries := make([]LogEntry, 0, len(logs))
	for _, lg := range logs {
		if len(lg.Topics) < 4 {
			continue
		}
		entry := LogEntry{
			TokenID:     tokenID,
			From:        common.BytesToAddress(lg.Topics[1].Bytes()).Hex(),
			To:          common.BytesToAddress(lg.Topics[2].Bytes()).Hex(),
			TxHash:      lg.TxHash.Hex(),
			BlockNumber: lg.BlockNumber,
		}
		if header, err := l.client.HeaderByNumber(ctx, new(big.Int).SetUint64(lg.BlockNumber)); err == nil {
			entry.Timestamp = time.Unix(int64(header.Time), 0).UTC()
		}
		entries = append(entries, entry)
	}

	return entries, nil
}

func (l *EthereumLedger) Status(ctx context.Context) (*Status, error) {
	status := &Status{
		Network:         l.network,
		ChainID:         l.chainID.Int64(),
		Account:         l.auth.From.Hex(),
		ContractAddress: l.address.Hex(),
		Balance:         "0",
	}

	block, err := l.client.BlockNumber(ctx)
	if err != nil {
		status.Error = err.Error()
		return status, nil
	}
	status.Connected = true
	status.BlockNumber = block

	balance, err := l.client.BalanceAt(ctx, l.auth.From, nil)
	if err == nil {
		status.Balance = weiToEther(balance)
	}

	return status, nil
}

// transact sends a contract call and waits for it to be mined
func (l *EthereumLedger) transact(ctx context.Context, method string, params ...interface{}) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	l.mu.Lock()
	opts := *l.auth
	opts.Context = ctx
	tx, err := l.contract.Transact(&opts, method, params...)
	l.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to send %s: %w", method, err)
	}

	receipt, err := bind.WaitMined(ctx, l.client, tx)
	if err != nil {
		return nil, fmt.Errorf("failed waiting for %s: %w", tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("%s reverted in tx %s", method, tx.Hash().Hex())
	}

	return receipt, nil
}

func weiToEther(wei *big.Int) string {
	f := new(big.Float).SetInt(wei)
	f.Quo(f, big.NewFloat(1e18))
	return f.Text('f', 6)
}
