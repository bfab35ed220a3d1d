// Package testutil provides fixtures shared by the package tests.
package testutil

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/casapps/landregistry/src/internal/auth"
	"github.com/casapps/landregistry/src/internal/config"
	"github.com/casapps/landregistry/src/internal/database"
	"github.com/casapps/landregistry/src/internal/database/models"
	"github.com/casapps/landregistry/src/internal/ledger"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Password is the password of every fixture user
const Password = "password123"

var seq atomic.Int64

// NewConfig returns a configuration suitable for tests
func NewConfig(t *testing.T) *viper.Viper {
	t.Helper()

	cfg := viper.New()
	config.SetDefaults(cfg)
	cfg.Set("environment", "test")
	cfg.Set("security.secret_key", "test-secret-key-for-testing-only")
	cfg.Set("ratelimit.enabled", false)
	cfg.Set("cache.enabled", true)
	return cfg
}

// NewDB opens a migrated sqlite database in a temporary directory
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "test.db") + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	require.NoError(t, err)
	require.NoError(t, database.MigrateDB(db))

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	return db
}

// CreateUser inserts an active user with a fresh wallet
func CreateUser(t *testing.T, db *gorm.DB, username string, role models.Role) *models.User {
	t.Helper()

	hash, err := auth.HashPassword(Password)
	require.NoError(t, err)
	wallet, err := ledger.NewWalletAddress()
	require.NoError(t, err)

	user := &models.User{
		Username:      username,
		Email:         username + "@example.com",
		PasswordHash:  hash,
		FirstName:     "Test",
		LastName:      username,
		Role:          role,
		WalletAddress: wallet,
		IsActive:      true,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

// LandOption customizes a fixture land
type LandOption func(*models.Land)

// Verified marks the land verified
func Verified() LandOption {
	return func(l *models.Land) {
		l.Status = models.LandStatusVerified
	}
}

// OnChain marks the land verified and registered under tokenID
func OnChain(tokenID string) LandOption {
	return func(l *models.Land) {
		hash := fmt.Sprintf("0x%064d", seq.Add(1))
		l.Status = models.LandStatusVerified
		l.IsRegisteredOnBlockchain = true
		l.TokenID = &tokenID
		l.BlockchainTxHash = &hash
	}
}

// Priced sets the asking price
func Priced(price int64) LandOption {
	return func(l *models.Land) {
		l.Price = decimal.NewNullDecimal(decimal.NewFromInt(price))
	}
}

// CreateLand inserts a land owned by owner
func CreateLand(t *testing.T, db *gorm.DB, owner *models.User, opts ...LandOption) *models.Land {
	t.Helper()

	n := seq.Add(1)
	land := &models.Land{
		PropertyID:   fmt.Sprintf("PROP-%04d", n),
		Title:        fmt.Sprintf("Parcel %d", n),
		Location:     "Ikeja, Lagos",
		Area:         500,
		PropertyType: models.PropertyTypeResidential,
		Status:       models.LandStatusPending,
		OwnerID:      owner.ID,
	}
	for _, opt := range opts {
		opt(land)
	}
	require.NoError(t, db.Create(land).Error)
	return land
}

// RegisterOnLedger mints a token for land on l and marks it on-chain
func RegisterOnLedger(t *testing.T, db *gorm.DB, l ledger.Ledger, land *models.Land, owner *models.User) {
	t.Helper()

	receipt, err := l.RegisterLand(context.Background(), ledger.RegisterRequest{
		OwnerAddress: owner.WalletAddress,
		PropertyID:   land.PropertyID,
	})
	require.NoError(t, err)

	land.Status = models.LandStatusVerified
	land.IsRegisteredOnBlockchain = true
	land.TokenID = &receipt.TokenID
	land.BlockchainTxHash = &receipt.TxHash
	require.NoError(t, db.Model(land).Select("status", "is_registered_on_blockchain", "token_id", "blockchain_tx_hash").Updates(land).Error)
}
