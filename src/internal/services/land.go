package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"gorm.io/gorm"

	"github.com/casapps/landregistry/src/internal/cache"
	"github.com/casapps/landregistry/src/internal/database/models"
	apperrors "github.com/casapps/landregistry/src/internal/errors"
	"github.com/casapps/landregistry/src/internal/ledger"
)

// LandService handles land records, their review and on-chain registration
type LandService struct {
	db     *gorm.DB
	cfg    *viper.Viper
	cache  *cache.CacheManager
	ledger ledger.Ledger

	// one registration per land at a time, so a land is minted once
	registering keyedMutex
}

// NewLandService creates a new land service
func NewLandService(db *gorm.DB, cfg *viper.Viper, cacheManager *cache.CacheManager, l ledger.Ledger) *LandService {
	return &LandService{
		db:     db,
		cfg:    cfg,
		cache:  cacheManager,
		ledger: l,
	}
}

// LandInput is the payload of a land registration
type LandInput struct {
	PropertyID   string           `json:"property_id" validate:"required,max=64"`
	Title        string           `json:"title" validate:"required,max=200"`
	Description  string           `json:"description" validate:"max=5000"`
	Location     string           `json:"location" validate:"required,max=500"`
	Latitude     *float64         `json:"latitude" validate:"omitempty,min=-90,max=90"`
	Longitude    *float64         `json:"longitude" validate:"omitempty,min=-180,max=180"`
	Area         float64          `json:"area" validate:"gt=0"`
	PropertyType string           `json:"property_type" validate:"required,oneof=residential commercial agricultural"`
	Price        *decimal.Decimal `json:"price"`
}

// LandFilter narrows a land listing
type LandFilter struct {
	Search       string
	Status       string
	PropertyType string
	OwnerID      *uuid.UUID
	Page         int
	PerPage      int
}

// LandPage is one page of lands
type LandPage struct {
	Lands []models.Land `json:"lands"`
	Page
}

// Bounds is a map viewport
type Bounds struct {
	South float64
	West  float64
	North float64
	East  float64
}

// LandStatistics summarizes the registry
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

// RegistrationResult is the outcome of an on-chain registration
type RegistrationResult struct {
	Land    *models.Land    `json:"land"`
	Receipt *ledger.Receipt `json:"receipt"`
}

// Create registers a new land for owner in pending status
func (s *LandService) Create(ctx context.Context, ownerID uuid.UUID, in LandInput) (*models.Land, error) {
	in.PropertyID = strings.TrimSpace(in.PropertyID)
	in.Title = strings.TrimSpace(in.Title)
	in.Location = strings.TrimSpace(in.Location)

	v := apperrors.NewValidator().
		Required("property_id", in.PropertyID).
		MaxLength("property_id", in.PropertyID, 64).
		Required("title", in.Title).
		MaxLength("title", in.Title, 200).
		Required("location", in.Location).
		MaxLength("location", in.Location, 500).
		Check(in.Area > 0, "area", "area must be greater than zero").
		Check(models.PropertyType(in.PropertyType).Valid(), "property_type", "property_type must be residential, commercial or agricultural").
		Check(in.Price == nil || in.Price.IsPositive(), "price", "price must be greater than zero").
		Check(in.Latitude == nil || (*in.Latitude >= -90 && *in.Latitude <= 90), "latitude", "latitude must be between -90 and 90").
		Check(in.Longitude == nil || (*in.Longitude >= -180 && *in.Longitude <= 180), "longitude", "longitude must be between -180 and 180")
	if err := v.Err(); err != nil {
		return nil, err
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Land{}).Where("property_id = ?", in.PropertyID).Count(&count).Error; err != nil {
		return nil, apperrors.DatabaseError("failed to check property id", err)
	}
	if count > 0 {
		return nil, apperrors.ConflictError("a land with this property id is already registered", "land").WithDetail("field", "property_id")
	}

	land := &models.Land{
		PropertyID:   in.PropertyID,
		Title:        in.Title,
		Description:  strings.TrimSpace(in.Description),
		Location:     in.Location,
		Latitude:     in.Latitude,
		Longitude:    in.Longitude,
		Area:         in.Area,
		PropertyType: models.PropertyType(in.PropertyType),
		Status:       models.LandStatusPending,
		OwnerID:      ownerID,
	}
	if in.Price != nil {
		land.Price = decimal.NewNullDecimal(*in.Price)
	}

	if err := s.db.WithContext(ctx).Create(land).Error; err != nil {
		return nil, apperrors.FromDB(err, "Land", "")
	}
	s.InvalidateStatistics(ctx)

	slog.Info("land registered", "land_id", land.ID, "property_id", land.PropertyID, "owner_id", ownerID)
	return s.Get(ctx, land.ID)
}

// List returns a filtered page of lands
func (s *LandService) List(ctx context.Context, f LandFilter) (*LandPage, error) {
	page, perPage := normalizePage(f.Page, f.PerPage)
	query := s.db.WithContext(ctx).Model(&models.Land{})

	if search := strings.ToLower(strings.TrimSpace(f.Search)); search != "" {
		like := "%" + search + "%"
		query = query.Where("LOWER(title) LIKE ? OR LOWER(location) LIKE ? OR LOWER(property_id) LIKE ?", like, like, like)
	}
	if f.Status != "" {
		query = query.Where("status = ?", f.Status)
	}
	if f.PropertyType != "" {
		query = query.Where("property_type = ?", f.PropertyType)
	}
	if f.OwnerID != nil {
		query = query.Where("owner_id = ?", *f.OwnerID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, apperrors.DatabaseError("failed to count lands", err)
	}

	lands := []models.Land{}
	if err := query.Preload("Owner").Order("created_at DESC").Offset(offset(page, perPage)).Limit(perPage).Find(&lands).Error; err != nil {
		return nil, apperrors.DatabaseError("failed to list lands", err)
	}

	return &LandPage{Lands: lands, Page: newPage(total, page, perPage)}, nil
}

// Get returns a land with its owner
func (s *LandService) Get(ctx context.Context, landID uuid.UUID) (*models.Land, error) {
	var land models.Land
	if err := s.db.WithContext(ctx).Preload("Owner").First(&land, "id = ?", landID).Error; err != nil {
		return nil, apperrors.FromDB(err, "Land", landID.String())
	}
	return &land, nil
}

// MyLands returns every land owned by ownerID
func (s *LandService) MyLands(ctx context.Context, ownerID uuid.UUID) ([]models.Land, error) {
	lands := []models.Land{}
	if err := s.db.WithContext(ctx).Preload("Owner").Where("owner_id = ?", ownerID).Order("created_at DESC").Find(&lands).Error; err != nil {
		return nil, apperrors.DatabaseError("failed to list lands", err)
	}
	return lands, nil
}

// ParseBounds parses "south,west,north,east"
func ParseBounds(raw string) (*Bounds, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 4 {
		return nil, apperrors.NewValidationError("bounds must be south,west,north,east", "bounds")
	}

	values := make([]float64, 4)
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, apperrors.NewValidationError("bounds must be south,west,north,east", "bounds")
		}
		values[i] = f
	}

	b := &Bounds{South: values[0], West: values[1], North: values[2], East: values[3]}
	if b.South > b.North || b.South < -90 || b.North > 90 {
		return nil, apperrors.NewValidationError("bounds latitude range is invalid", "bounds")
	}
	return b, nil
}

// MapData returns lands with coordinates, optionally inside bounds. A
// viewport whose west edge lies east of its east edge crosses the
// antimeridian.
func (s *LandService) MapData(ctx context.Context, bounds *Bounds) ([]models.Land, error) {
	query := s.db.WithContext(ctx).Preload("Owner").
		Where("latitude IS NOT NULL AND longitude IS NOT NULL")

	if bounds != nil {
		query = query.Where("latitude BETWEEN ? AND ?", bounds.South, bounds.North)
		if bounds.West <= bounds.East {
			query = query.Where("longitude BETWEEN ? AND ?", bounds.West, bounds.East)
		} else {
			query = query.Where("(longitude >= ? OR longitude <= ?)", bounds.West, bounds.East)
		}
	}

	lands := []models.Land{}
	if err := query.Order("created_at DESC").Find(&lands).Error; err != nil {
		return nil, apperrors.DatabaseError("failed to load map data", err)
	}
	return lands, nil
}

// Statistics returns registry totals, served from cache when fresh
func (s *LandService) Statistics(ctx context.Context) (*LandStatistics, error) {
	var stats LandStatistics
	if err := s.cache.GetJSON(ctx, cache.CacheKeyLandStatistics, &stats); err == nil {
		return &stats, nil
	}

	db := s.db.WithContext(ctx).Model(&models.Land{})

	var byStatus []struct {
		Status string
		Count  int64
	}
	if err := db.Select("status, COUNT(*) AS count").Group("status").Scan(&byStatus).Error; err != nil {
		return nil, apperrors.DatabaseError("failed to compute statistics", err)
	}
	for _, row := range byStatus {
		stats.TotalLands += row.Count
		switch models.LandStatus(row.Status) {
		case models.LandStatusPending:
			stats.PendingLands = row.Count
		case models.LandStatusVerified:
			stats.VerifiedLands = row.Count
		case models.LandStatusRejected:
			stats.RejectedLands = row.Count
		}
	}

	var byType []struct {
		PropertyType string
		Count        int64
	}
	if err := s.db.WithContext(ctx).Model(&models.Land{}).Select("property_type, COUNT(*) AS count").Group("property_type").Scan(&byType).Error; err != nil {
		return nil, apperrors.DatabaseError("failed to compute statistics", err)
	}
	stats.ByPropertyType = make(map[string]int64, len(byType))
	for _, row := range byType {
		stats.ByPropertyType[row.PropertyType] = row.Count
	}

	if err := s.db.WithContext(ctx).Model(&models.Land{}).Where("is_registered_on_blockchain = ?", true).Count(&stats.BlockchainLands).Error; err != nil {
		return nil, apperrors.DatabaseError("failed to compute statistics", err)
	}

	var totals struct {
		TotalArea  float64
		TotalValue decimal.Decimal
	}
	if err := s.db.WithContext(ctx).Model(&models.Land{}).
		Select("COALESCE(SUM(area), 0) AS total_area, COALESCE(SUM(price), 0) AS total_value").
		Scan(&totals).Error; err != nil {
		return nil, apperrors.DatabaseError("failed to compute statistics", err)
	}
	stats.TotalArea = totals.TotalArea
	stats.TotalValue = totals.TotalValue

	if err := s.cache.SetJSON(ctx, cache.CacheKeyLandStatistics, &stats, s.cfg.GetDuration("cache.stats_ttl")); err != nil {
		slog.Warn("failed to cache land statistics", "error", err)
	}
	return &stats, nil
}

// InvalidateStatistics drops cached aggregates after a write
func (s *LandService) InvalidateStatistics(ctx context.Context) {
	s.cache.Delete(ctx, cache.CacheKeyLandStatistics)
	s.cache.Delete(ctx, cache.CacheKeyDashboard)
}

// ReviewAction maps a reviewer's action to the resulting status
func ReviewAction(action string) (models.LandStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(action)) {
	case "approve", "verify", "verified":
		return models.LandStatusVerified, true
	case "reject", "rejected":
		return models.LandStatusRejected, true
	}
	return "", false
}

// Review verifies or rejects a land. Lands already on-chain are final.
func (s *LandService) Review(ctx context.Context, adminID, landID uuid.UUID, action, comments string) (*models.Land, error) {
	status, ok := ReviewAction(action)
	if !ok {
		return nil, apperrors.NewValidationError("action must be approve or reject", "action")
	}
	if err := apperrors.NewValidator().MaxLength("comments", comments, 1000).Err(); err != nil {
		return nil, err
	}

	land, err := s.Get(ctx, landID)
	if err != nil {
		return nil, err
	}
	if land.IsRegisteredOnBlockchain {
		return nil, apperrors.ConflictError("land is already registered on the blockchain", "land")
	}

	now := time.Now().UTC()
	result := s.db.WithContext(ctx).Model(&models.Land{}).
		Where("id = ? AND is_registered_on_blockchain = ?", landID, false).
		Updates(map[string]interface{}{
			"status":          status,
			"reviewed_by":     adminID,
			"reviewed_at":     now,
			"review_comments": strings.TrimSpace(comments),
		})
	if result.Error != nil {
		return nil, apperrors.DatabaseError("failed to review land", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, apperrors.ConflictError("land is already registered on the blockchain", "land")
	}
	s.InvalidateStatistics(ctx)

	slog.Info("land reviewed", "land_id", landID, "status", status, "admin_id", adminID)
	return s.Get(ctx, landID)
}

// RegisterOnBlockchain mints a ledger token for a verified land
func (s *LandService) RegisterOnBlockchain(ctx context.Context, landID uuid.UUID) (*RegistrationResult, error) {
	unlock := s.registering.Lock(landID)
	defer unlock()

	land, err := s.Get(ctx, landID)
	if err != nil {
		return nil, err
	}
	if land.IsRegisteredOnBlockchain {
		return nil, apperrors.ConflictError("land is already registered on the blockchain", "land")
	}
	if land.Status != models.LandStatusVerified {
		return nil, apperrors.NewValidationError("only verified lands can be registered on the blockchain", "status")
	}
	if land.Owner == nil || land.Owner.WalletAddress == "" {
		return nil, apperrors.NewValidationError("land owner has no wallet address", "owner_id")
	}

	// a minted token must be recorded even if the client goes away
	settleCtx := context.WithoutCancel(ctx)
	ledgerCtx, cancel := context.WithTimeout(settleCtx, s.cfg.GetDuration("ledger.timeout"))
	defer cancel()

	receipt, err := s.ledger.RegisterLand(ledgerCtx, ledger.RegisterRequest{
		OwnerAddress: land.Owner.WalletAddress,
		PropertyID:   land.PropertyID,
		Location:     land.Location,
		Area:         land.Area,
	})
	if err != nil {
		return nil, apperrors.ExternalServiceError("blockchain", "registration failed", err)
	}

	result := s.db.WithContext(settleCtx).Model(&models.Land{}).
		Where("id = ? AND is_registered_on_blockchain = ?", landID, false).
		Updates(map[string]interface{}{
			"is_registered_on_blockchain": true,
			"token_id":                    receipt.TokenID,
			"blockchain_tx_hash":          receipt.TxHash,
		})
	if result.Error != nil {
		slog.Error("minted token not recorded", "land_id", landID, "token_id", receipt.TokenID, "tx_hash", receipt.TxHash, "error", result.Error)
		return nil, apperrors.DatabaseError("failed to record blockchain registration", result.Error)
	}
	if result.RowsAffected == 0 {
		slog.Error("minted token for a land registered meanwhile", "land_id", landID, "token_id", receipt.TokenID, "tx_hash", receipt.TxHash)
		return nil, apperrors.ConflictError("land is already registered on the blockchain", "land")
	}
	s.InvalidateStatistics(settleCtx)

	slog.Info("land registered on blockchain", "land_id", landID, "token_id", receipt.TokenID, "tx_hash", receipt.TxHash)

	land, err = s.Get(settleCtx, landID)
	if err != nil {
		return nil, err
	}
	return &RegistrationResult{Land: land, Receipt: receipt}, nil
}

// PendingReview returns lands awaiting review, oldest first
func (s *LandService) PendingReview(ctx context.Context, page, perPage int) (*LandPage, error) {
	page, perPage = normalizePage(page, perPage)
	query := s.db.WithContext(ctx).Model(&models.Land{}).Where("status = ?", models.LandStatusPending)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, apperrors.DatabaseError("failed to count lands", err)
	}

	lands := []models.Land{}
	if err := query.Preload("Owner").Order("created_at ASC").Offset(offset(page, perPage)).Limit(perPage).Find(&lands).Error; err != nil {
		return nil, apperrors.DatabaseError("failed to list lands", err)
	}
	return &LandPage{Lands: lands, Page: newPage(total, page, perPage)}, nil
}

func landTokenID(land *models.Land) (string, error) {
	if !land.IsRegisteredOnBlockchain || land.TokenID == nil || *land.TokenID == "" {
		return "", errors.New("land is not registered on the blockchain")
	}
	return *land.TokenID, nil
}

func landNotOnChain(land *models.Land) error {
	if _, err := landTokenID(land); err != nil {
		return apperrors.NewValidationError(fmt.Sprintf("land %s must be registered on the blockchain before it can be transferred", land.PropertyID), "land_id")
	}
	return nil
}
