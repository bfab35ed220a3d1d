package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"gorm.io/gorm"

	"github.com/casapps/landregistry/src/internal/database/models"
	apperrors "github.com/casapps/landregistry/src/internal/errors"
	"github.com/casapps/landregistry/src/internal/ledger"
	"github.com/casapps/landregistry/src/internal/notifications"
)

// TransitionRecorder counts transfer status transitions
type TransitionRecorder interface {
	RecordTransition(status string)
}

type nopRecorder struct{}

func (nopRecorder) RecordTransition(string) {}

// TransferService drives the land transfer state machine:
//
//	pending -> processing -> completed | failed
//	pending -> cancelled
//
// Every transition is a compare-and-swap on the status column, so two
// requests racing on the same transfer cannot both succeed.
type TransferService struct {
	db       *gorm.DB
	cfg      *viper.Viper
	ledger   ledger.Ledger
	users    *UserService
	lands    *LandService
	notifier *notifications.Service
	recorder TransitionRecorder

	// serializes the active-transfer check with the insert
	initiateMu sync.Mutex
}

// NewTransferService creates a new transfer service. notifier and recorder
// may be nil.
func NewTransferService(db *gorm.DB, cfg *viper.Viper, l ledger.Ledger, users *UserService, lands *LandService, notifier *notifications.Service, recorder TransitionRecorder) *TransferService {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &TransferService{
		db:       db,
		cfg:      cfg,
		ledger:   l,
		users:    users,
		lands:    lands,
		notifier: notifier,
		recorder: recorder,
	}
}

// InitiateInput is the payload of a transfer initiation
type InitiateInput struct {
	ToUser       string          `json:"to_user"`
	Price        decimal.Decimal `json:"price"`
	TransferType string          `json:"transfer_type"`
}

// TransferFilter narrows the admin transfer listing
type TransferFilter struct {
	Status  string
	LandID  *uuid.UUID
	Page    int
	PerPage int
}

// TransferPage is one page of transfers
type TransferPage struct {
	Transfers []models.Transfer `json:"transfers"`
	Page
}

// TransferHistory merges the stored transfers of a land with its on-chain log
type TransferHistory struct {
	LandID              uuid.UUID         `json:"land_id"`
	TokenID             *string           `json:"token_id"`
	DatabaseTransfers   []models.Transfer `json:"database_transfers"`
	BlockchainTransfers []ledger.LogEntry `json:"blockchain_transfers"`
	BlockchainError     string            `json:"blockchain_error,omitempty"`
}

const reasonTimedOut = "execution timed out"

// Initiate opens a pending transfer of landID from its owner to a recipient
func (s *TransferService) Initiate(ctx context.Context, ownerID, landID uuid.UUID, in InitiateInput) (*models.Transfer, error) {
	if in.TransferType == "" {
		in.TransferType = string(models.TransferTypeSale)
	}
	transferType := models.TransferType(strings.ToLower(in.TransferType))

	v := apperrors.NewValidator().
		Required("to_user", strings.TrimSpace(in.ToUser)).
		Check(transferType.Valid(), "transfer_type", "transfer_type must be sale, gift or inheritance").
		Check(!in.Price.IsNegative(), "price", "price cannot be negative")
	if transferType == models.TransferTypeSale {
		v.Check(in.Price.IsPositive(), "price", "a sale requires a price greater than zero")
	}
	if err := v.Err(); err != nil {
		return nil, err
	}

	land, err := s.lands.Get(ctx, landID)
	if err != nil {
		return nil, err
	}
	if land.OwnerID != ownerID {
		return nil, apperrors.ForbiddenError("only the land owner can initiate a transfer")
	}
	if err := landNotOnChain(land); err != nil {
		return nil, err
	}

	recipient, err := s.users.findRecipient(ctx, in.ToUser)
	if err != nil {
		return nil, err
	}
	switch {
	case recipient.ID == ownerID:
		return nil, apperrors.NewValidationError("you cannot transfer a land to yourself", "to_user")
	case !recipient.IsActive:
		return nil, apperrors.NewValidationError("recipient account is deactivated", "to_user")
	case recipient.WalletAddress == "":
		return nil, apperrors.NewValidationError("recipient has no wallet address", "to_user")
	}

	transfer := &models.Transfer{
		LandID:       land.ID,
		FromUserID:   ownerID,
		ToUserID:     recipient.ID,
		Price:        in.Price.Round(2),
		TransferType: transferType,
		Status:       models.TransferStatusPending,
	}
	if err := s.insertExclusive(ctx, transfer); err != nil {
		return nil, err
	}
	s.recorder.RecordTransition(string(models.TransferStatusPending))

	slog.Info("transfer initiated",
		"transfer_id", transfer.ID,
		"land_id", land.ID,
		"from_user_id", ownerID,
		"to_user_id", recipient.ID,
		"type", transferType,
		"price", transfer.Price.String())

	created, err := s.Get(ctx, transfer.ID)
	if err != nil {
		return nil, err
	}
	s.notifier.TransferInitiated(created)
	return created, nil
}

// insertExclusive creates transfer unless its land already has an active
// one. The partial unique index backs the lock across processes.
func (s *TransferService) insertExclusive(ctx context.Context, transfer *models.Transfer) error {
	s.initiateMu.Lock()
	defer s.initiateMu.Unlock()

	var active int64
	if err := s.db.WithContext(ctx).Model(&models.Transfer{}).
		Where("land_id = ? AND status IN ?", transfer.LandID, models.ActiveTransferStatuses).
		Count(&active).Error; err != nil {
		return apperrors.DatabaseError("failed to check active transfers", err)
	}
	if active > 0 {
		return errActiveTransfer()
	}

	if err := s.db.WithContext(ctx).Create(transfer).Error; err != nil {
		if err := apperrors.FromDB(err, "Transfer", ""); apperrors.IsType(err, apperrors.ErrorTypeConflict) {
			return errActiveTransfer()
		}
		return apperrors.DatabaseError("failed to create transfer", err)
	}
	return nil
}

func errActiveTransfer() error {
	return apperrors.ConflictError("this land already has a pending or processing transfer", "transfer")
}

// Execute records a pending transfer on the ledger. The transfer ends
// completed or failed; a ledger failure is reported through the returned
// transfer, not as an error.
func (s *TransferService) Execute(ctx context.Context, ownerID, landID, transferID uuid.UUID) (*models.Transfer, error) {
	transfer, err := s.ownedTransfer(ctx, ownerID, landID, transferID)
	if err != nil {
		return nil, err
	}
	if transfer.Status != models.TransferStatusPending {
		return nil, errWrongStatus(transfer.Status, models.TransferStatusPending, models.TransferStatusProcessing)
	}
	if transfer.Land == nil || transfer.Land.OwnerID != ownerID {
		return nil, apperrors.ForbiddenError("only the land owner can execute a transfer")
	}
	tokenID, err := landTokenID(transfer.Land)
	if err != nil {
		return nil, apperrors.NewValidationError(err.Error(), "land_id")
	}

	if err := s.transition(ctx, transferID, models.TransferStatusPending, models.TransferStatusProcessing, nil); err != nil {
		return nil, err
	}

	// the ledger call and the writes recording its outcome outlive a
	// disconnecting client
	settleCtx := context.WithoutCancel(ctx)
	ledgerCtx, cancel := context.WithTimeout(settleCtx, s.cfg.GetDuration("ledger.timeout"))
	defer cancel()

	receipt, ledgerErr := s.ledger.TransferToken(ledgerCtx, ledger.TransferRequest{
		TokenID:     tokenID,
		FromAddress: transfer.FromUser.WalletAddress,
		ToAddress:   transfer.ToUser.WalletAddress,
		Price:       transfer.Price,
	})

	if ledgerErr != nil {
		reason := truncate(ledgerErr.Error(), 500)
		if err := s.transition(settleCtx, transferID, models.TransferStatusProcessing, models.TransferStatusFailed, map[string]interface{}{
			"failure_reason": reason,
		}); err != nil {
			return nil, err
		}
		slog.Warn("transfer failed on ledger", "transfer_id", transferID, "error", ledgerErr)
	} else if err := s.complete(settleCtx, transfer, receipt); err != nil {
		return nil, err
	}

	s.lands.InvalidateStatistics(settleCtx)

	finished, err := s.Get(settleCtx, transferID)
	if err != nil {
		return nil, err
	}
	s.notifier.TransferFinished(finished)
	return finished, nil
}

func (s *TransferService) complete(ctx context.Context, transfer *models.Transfer, receipt *ledger.Receipt) error {
	now := time.Now().UTC()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Transfer{}).
			Where("id = ? AND status = ?", transfer.ID, models.TransferStatusProcessing).
			Updates(map[string]interface{}{
				"status":             models.TransferStatusCompleted,
				"blockchain_tx_hash": receipt.TxHash,
				"completed_at":       now,
				"updated_at":         now,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return errStaleTransition
		}

		landUpdates := map[string]interface{}{
			"owner_id":           transfer.ToUserID,
			"blockchain_tx_hash": receipt.TxHash,
		}
		if transfer.Price.IsPositive() {
			landUpdates["price"] = transfer.Price
		}
		return tx.Model(&models.Land{}).Where("id = ?", transfer.LandID).Updates(landUpdates).Error
	})
	if errors.Is(err, errStaleTransition) {
		slog.Error("transfer settled on ledger after leaving processing",
			"transfer_id", transfer.ID, "tx_hash", receipt.TxHash)
		return apperrors.ConflictError("transfer is no longer processing", "transfer")
	}
	if err != nil {
		return apperrors.DatabaseError("failed to complete transfer", err)
	}

	s.recorder.RecordTransition(string(models.TransferStatusCompleted))
	slog.Info("transfer completed", "transfer_id", transfer.ID, "land_id", transfer.LandID, "tx_hash", receipt.TxHash)
	return nil
}

var errStaleTransition = errors.New("stale transition")

// Cancel withdraws a pending transfer
func (s *TransferService) Cancel(ctx context.Context, ownerID, landID, transferID uuid.UUID) (*models.Transfer, error) {
	if _, err := s.ownedTransfer(ctx, ownerID, landID, transferID); err != nil {
		return nil, err
	}
	if err := s.transition(ctx, transferID, models.TransferStatusPending, models.TransferStatusCancelled, nil); err != nil {
		return nil, err
	}
	slog.Info("transfer cancelled", "transfer_id", transferID, "user_id", ownerID)
	return s.Get(ctx, transferID)
}

// transition moves a transfer from one status to another, failing with a
// conflict when the stored status is no longer from
func (s *TransferService) transition(ctx context.Context, transferID uuid.UUID, from, to models.TransferStatus, extra map[string]interface{}) error {
	updates := map[string]interface{}{
		"status":     to,
		"updated_at": time.Now().UTC(),
	}
	for k, v := range extra {
		updates[k] = v
	}

	result := s.db.WithContext(ctx).Model(&models.Transfer{}).
		Where("id = ? AND status = ?", transferID, from).
		Updates(updates)
	if result.Error != nil {
		return apperrors.DatabaseError("failed to update transfer", result.Error)
	}
	if result.RowsAffected == 0 {
		var current models.Transfer
		if err := s.db.WithContext(ctx).Select("status").First(&current, "id = ?", transferID).Error; err != nil {
			return apperrors.FromDB(err, "Transfer", transferID.String())
		}
		return errWrongStatus(current.Status, from, to)
	}

	s.recorder.RecordTransition(string(to))
	return nil
}

func errWrongStatus(current, from, to models.TransferStatus) error {
	return apperrors.ConflictError(
		fmt.Sprintf("transfer is %s; only %s transfers can move to %s", current, from, to), "transfer").
		WithDetail("status", current)
}

func (s *TransferService) ownedTransfer(ctx context.Context, userID, landID, transferID uuid.UUID) (*models.Transfer, error) {
	transfer, err := s.Get(ctx, transferID)
	if err != nil {
		return nil, err
	}
	if landID != uuid.Nil && transfer.LandID != landID {
		return nil, apperrors.NotFoundError("Transfer", transferID.String())
	}
	if transfer.FromUserID != userID {
		return nil, apperrors.ForbiddenError("only the land owner can act on this transfer")
	}
	return transfer, nil
}

// Get returns a transfer with its land and parties
func (s *TransferService) Get(ctx context.Context, transferID uuid.UUID) (*models.Transfer, error) {
	var transfer models.Transfer
	if err := s.preloaded(ctx).First(&transfer, "id = ?", transferID).Error; err != nil {
		return nil, apperrors.FromDB(err, "Transfer", transferID.String())
	}
	return &transfer, nil
}

func (s *TransferService) preloaded(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Preload("Land").Preload("FromUser").Preload("ToUser")
}

// ListForUser returns transfers the user sent, received, or both
func (s *TransferService) ListForUser(ctx context.Context, userID uuid.UUID, kind string) ([]models.Transfer, error) {
	query := s.preloaded(ctx)
	switch kind {
	case "sent":
		query = query.Where("from_user_id = ?", userID)
	case "received":
		query = query.Where("to_user_id = ?", userID)
	case "", "all":
		query = query.Where("from_user_id = ? OR to_user_id = ?", userID, userID)
	default:
		return nil, apperrors.NewValidationError("type must be sent, received or all", "type")
	}

	transfers := []models.Transfer{}
	if err := query.Order("initiated_at DESC").Find(&transfers).Error; err != nil {
		return nil, apperrors.DatabaseError("failed to list transfers", err)
	}
	return transfers, nil
}

// History returns the stored transfers of a land next to its on-chain log.
// A ledger failure is reported in BlockchainError.
func (s *TransferService) History(ctx context.Context, landID uuid.UUID) (*TransferHistory, error) {
	land, err := s.lands.Get(ctx, landID)
	if err != nil {
		return nil, err
	}

	history := &TransferHistory{
		LandID:              land.ID,
		TokenID:             land.TokenID,
		DatabaseTransfers:   []models.Transfer{},
		BlockchainTransfers: []ledger.LogEntry{},
	}
	if err := s.preloaded(ctx).Where("land_id = ?", landID).Order("initiated_at DESC").Find(&history.DatabaseTransfers).Error; err != nil {
		return nil, apperrors.DatabaseError("failed to load transfer history", err)
	}

	tokenID, err := landTokenID(land)
	if err != nil {
		return history, nil
	}
	entries, err := s.ledger.TransferLog(ctx, tokenID)
	if err != nil {
		slog.Warn("failed to read ledger transfer log", "land_id", landID, "token_id", tokenID, "error", err)
		history.BlockchainError = err.Error()
		return history, nil
	}
	history.BlockchainTransfers = entries
	return history, nil
}

// ListAll returns a page of every transfer for the admin console
func (s *TransferService) ListAll(ctx context.Context, f TransferFilter) (*TransferPage, error) {
	page, perPage := normalizePage(f.Page, f.PerPage)
	query := s.db.WithContext(ctx).Model(&models.Transfer{})
	if f.Status != "" {
		query = query.Where("status = ?", f.Status)
	}
	if f.LandID != nil {
		query = query.Where("land_id = ?", *f.LandID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, apperrors.DatabaseError("failed to count transfers", err)
	}

	transfers := []models.Transfer{}
	if err := query.Preload("Land").Preload("FromUser").Preload("ToUser").
		Order("initiated_at DESC").Offset(offset(page, perPage)).Limit(perPage).
		Find(&transfers).Error; err != nil {
		return nil, apperrors.DatabaseError("failed to list transfers", err)
	}
	return &TransferPage{Transfers: transfers, Page: newPage(total, page, perPage)}, nil
}

// FailStale settles transfers that have been processing since before
// cutoff. A transfer the ledger already carried out is completed with the
// on-chain hash; the others fail. A transfer whose token log cannot be read
// stays processing until a later run. It returns the number failed.
func (s *TransferService) FailStale(ctx context.Context, cutoff time.Time) (int64, error) {
	var stale []models.Transfer
	if err := s.preloaded(ctx).
		Where("status = ? AND updated_at < ?", models.TransferStatusProcessing, cutoff.UTC()).
		Find(&stale).Error; err != nil {
		return 0, apperrors.DatabaseError("failed to load stale transfers", err)
	}

	var failed, completed int64
	for i := range stale {
		transfer := &stale[i]

		entry, err := s.settledOnChain(ctx, transfer)
		if err != nil {
			slog.Warn("cannot check ledger for stale transfer", "transfer_id", transfer.ID, "error", err)
			continue
		}
		if entry != nil {
			receipt := &ledger.Receipt{TokenID: entry.TokenID, TxHash: entry.TxHash, BlockNumber: entry.BlockNumber}
			if err := s.complete(ctx, transfer, receipt); err != nil {
				slog.Error("failed to complete transfer settled on ledger", "transfer_id", transfer.ID, "error", err)
			} else {
				completed++
			}
			continue
		}

		err = s.transition(ctx, transfer.ID, models.TransferStatusProcessing, models.TransferStatusFailed, map[string]interface{}{
			"failure_reason": reasonTimedOut,
		})
		if apperrors.IsType(err, apperrors.ErrorTypeConflict) {
			continue
		}
		if err != nil {
			return failed, err
		}
		failed++
	}
	if completed > 0 {
		s.lands.InvalidateStatistics(ctx)
	}
	return failed, nil
}

// settledOnChain returns the log entry moving the transfer's token from the
// sender to the recipient when it is the latest move of that token, or nil
// when the chain has not carried the transfer out.
func (s *TransferService) settledOnChain(ctx context.Context, transfer *models.Transfer) (*ledger.LogEntry, error) {
	if transfer.Land == nil || transfer.FromUser == nil || transfer.ToUser == nil ||
		transfer.FromUser.WalletAddress == "" || transfer.ToUser.WalletAddress == "" {
		return nil, nil
	}
	tokenID, err := landTokenID(transfer.Land)
	if err != nil {
		return nil, nil
	}

	entries, err := s.ledger.TransferLog(ctx, tokenID)
	if errors.Is(err, ledger.ErrTokenNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}

	last := entries[len(entries)-1]
	if ledger.SameAddress(last.From, transfer.FromUser.WalletAddress) && ledger.SameAddress(last.To, transfer.ToUser.WalletAddress) {
		return &last, nil
	}
	return nil, nil
}
