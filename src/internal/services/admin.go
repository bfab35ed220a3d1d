package services

import (
	"context"
	"log/slog"

	"github.com/spf13/viper"
	"gorm.io/gorm"

	"github.com/casapps/landregistry/src/internal/cache"
	"github.com/casapps/landregistry/src/internal/database/models"
	apperrors "github.com/casapps/landregistry/src/internal/errors"
	"github.com/casapps/landregistry/src/internal/ledger"
)

// AdminService assembles the admin dashboard
type AdminService struct {
	db     *gorm.DB
	cfg    *viper.Viper
	cache  *cache.CacheManager
	lands  *LandService
	ledger ledger.Ledger
}

// NewAdminService creates a new admin service
func NewAdminService(db *gorm.DB, cfg *viper.Viper, cacheManager *cache.CacheManager, lands *LandService, l ledger.Ledger) *AdminService {
	return &AdminService{
		db:     db,
		cfg:    cfg,
		cache:  cacheManager,
		lands:  lands,
		ledger: l,
	}
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
	Lands           *LandStatistics   `json:"lands"`
	Users           UserSummary       `json:"users"`
	Transfers       map[string]int64  `json:"transfers"`
	PendingLands    []models.Land     `json:"pending_lands"`
	RecentTransfers []models.Transfer `json:"recent_transfers"`
}

// Dashboard returns the admin overview, served from cache when fresh
func (s *AdminService) Dashboard(ctx context.Context) (*Dashboard, error) {
	var dash Dashboard
	if err := s.cache.GetJSON(ctx, cache.CacheKeyDashboard, &dash); err == nil {
		return &dash, nil
	}

	stats, err := s.lands.Statistics(ctx)
	if err != nil {
		return nil, err
	}
	dash.Lands = stats

	db := s.db.WithContext(ctx)
	counts := []struct {
		dest  *int64
		query string
		args  []interface{}
	}{
		{&dash.Users.Total, "", nil},
		{&dash.Users.Active, "is_active = ?", []interface{}{true}},
		{&dash.Users.Admins, "role = ?", []interface{}{models.RoleAdmin}},
		{&dash.Users.TwoFactor, "two_factor_enabled = ?", []interface{}{true}},
	}
	for _, c := range counts {
		q := db.Model(&models.User{})
		if c.query != "" {
			q = q.Where(c.query, c.args...)
		}
		if err := q.Count(c.dest).Error; err != nil {
			return nil, apperrors.DatabaseError("failed to count users", err)
		}
	}

	var byStatus []struct {
		Status string
		Count  int64
	}
	if err := db.Model(&models.Transfer{}).Select("status, COUNT(*) AS count").Group("status").Scan(&byStatus).Error; err != nil {
		return nil, apperrors.DatabaseError("failed to count transfers", err)
	}
	dash.Transfers = map[string]int64{}
	for _, st := range []models.TransferStatus{
		models.TransferStatusPending,
		models.TransferStatusProcessing,
		models.TransferStatusCompleted,
		models.TransferStatusFailed,
		models.TransferStatusCancelled,
	} {
		dash.Transfers[string(st)] = 0
	}
	for _, row := range byStatus {
		dash.Transfers[row.Status] = row.Count
	}

	dash.PendingLands = []models.Land{}
	if err := db.Preload("Owner").Where("status = ?", models.LandStatusPending).
		Order("created_at ASC").Limit(5).Find(&dash.PendingLands).Error; err != nil {
		return nil, apperrors.DatabaseError("failed to load pending lands", err)
	}
	dash.RecentTransfers = []models.Transfer{}
	if err := db.Preload("Land").Preload("FromUser").Preload("ToUser").
		Order("initiated_at DESC").Limit(5).Find(&dash.RecentTransfers).Error; err != nil {
		return nil, apperrors.DatabaseError("failed to load recent transfers", err)
	}

	if err := s.cache.SetJSON(ctx, cache.CacheKeyDashboard, &dash, s.cfg.GetDuration("cache.stats_ttl")); err != nil {
		slog.Warn("failed to cache dashboard", "error", err)
	}
	return &dash, nil
}

// BlockchainStatus reports the ledger connection. An unreachable ledger is
// reported in the status rather than as an error.
func (s *AdminService) BlockchainStatus(ctx context.Context) *ledger.Status {
	status, err := s.ledger.Status(ctx)
	if err != nil {
		slog.Warn("ledger status unavailable", "error", err)
		return &ledger.Status{
			Connected: false,
			Network:   s.cfg.GetString("ledger.network"),
			Error:     err.Error(),
		}
	}
	return status
}
