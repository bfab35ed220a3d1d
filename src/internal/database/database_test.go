package database_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/casapps/landregistry/src/internal/database"
	"github.com/casapps/landregistry/src/internal/database/models"
	"github.com/casapps/landregistry/src/internal/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitializeAndMigrate(t *testing.T) {
	cfg := testutil.NewConfig(t)
	cfg.Set("database.dsn", filepath.Join(t.TempDir(), "registry.db"))

	db, err := database.Initialize(cfg)
	require.NoError(t, err)
	require.NoError(t, database.MigrateDB(db))

	for _, m := range models.GetAllModels() {
		assert.True(t, db.Migrator().HasTable(m))
	}
	assert.True(t, db.Migrator().HasIndex(&models.Transfer{}, database.ActiveTransferIndex))

	// migrations are idempotent
	require.NoError(t, database.MigrateDB(db))
}

func TestDialector(t *testing.T) {
	for _, typ := range []string{"sqlite", "sqlite3", "postgres", "postgresql", "mysql"} {
		d, err := database.Dialector(typ, "dsn")
		require.NoError(t, err, typ)
		assert.NotNil(t, d)
	}

	_, err := database.Dialector("oracle", "dsn")
	assert.Error(t, err)
}

func TestActiveTransferIndex(t *testing.T) {
	db := testutil.NewDB(t)
	alice := testutil.CreateUser(t, db, "alice", models.RoleUser)
	bob := testutil.CreateUser(t, db, "bob", models.RoleUser)
	land := testutil.CreateLand(t, db, alice, testutil.OnChain("1"))

	newTransfer := func(status models.TransferStatus) *models.Transfer {
		return &models.Transfer{
			LandID:       land.ID,
			FromUserID:   alice.ID,
			ToUserID:     bob.ID,
			Price:        decimal.NewFromInt(10),
			TransferType: models.TransferTypeSale,
			Status:       status,
		}
	}

	require.NoError(t, db.Create(newTransfer(models.TransferStatusPending)).Error)
	assert.Error(t, db.Create(newTransfer(models.TransferStatusPending)).Error)
	assert.Error(t, db.Create(newTransfer(models.TransferStatusProcessing)).Error)

	// terminal rows do not count
	require.NoError(t, db.Create(newTransfer(models.TransferStatusCancelled)).Error)
	require.NoError(t, db.Create(newTransfer(models.TransferStatusFailed)).Error)

	var active int64
	require.NoError(t, db.Model(&models.Transfer{}).
		Where("land_id = ? AND status IN ?", land.ID, models.ActiveTransferStatuses).
		Count(&active).Error)
	assert.Equal(t, int64(1), active)
}

func TestSeedDemoData(t *testing.T) {
	db := testutil.NewDB(t)
	cfg := testutil.NewConfig(t)

	require.NoError(t, database.SeedDemoData(db, cfg))
	require.NoError(t, database.SeedDemoData(db, cfg))

	var users []models.User
	require.NoError(t, db.Order("username").Find(&users).Error)
	require.Len(t, users, 2)
	assert.Equal(t, "demo", users[0].Username)
	assert.Equal(t, models.RoleUser, users[0].Role)
	assert.Equal(t, "demoadmin", users[1].Username)
	assert.Equal(t, models.RoleAdmin, users[1].Role)
	assert.NotEmpty(t, users[0].WalletAddress)

	var lands int64
	require.NoError(t, db.Model(&models.Land{}).Count(&lands).Error)
	assert.Equal(t, int64(2), lands)
}

func TestTransferStatusHelpers(t *testing.T) {
	assert.True(t, models.TransferStatusPending.Active())
	assert.True(t, models.TransferStatusProcessing.Active())
	assert.False(t, models.TransferStatusFailed.Active())
	assert.True(t, models.TransferStatusCancelled.Terminal())
	assert.False(t, models.TransferStatusPending.Terminal())

	transfer := &models.Transfer{}
	require.NoError(t, transfer.BeforeCreate(nil))
	assert.Equal(t, models.TransferStatusPending, transfer.Status)
	assert.WithinDuration(t, time.Now(), transfer.InitiatedAt, time.Second)
}
